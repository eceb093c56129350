// Package saga contains multi-step processes that the store cannot apply
// atomically. Each saga keeps its own progress so a failed run can be
// inspected and resumed.
package saga

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/classroom"
	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
	"github.com/avalia-hub/avalia-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER CASCADE STEPS
// ══════════════════════════════════════════════════════════════════════════════

// CascadeStep represents a step in the roster cascade.
type CascadeStep string

const (
	StepListAssignments CascadeStep = "list_assignments"
	StepDeleteAuthored  CascadeStep = "delete_authored"
	StepDeleteReceived  CascadeStep = "delete_received"
	StepRecompute       CascadeStep = "recompute"
	StepClearClass      CascadeStep = "clear_class"
	StepAddMembers      CascadeStep = "add_members"
	StepDone            CascadeStep = "done"
)

// CascadeStatus is the lifecycle state of a cascade run.
type CascadeStatus string

const (
	StatusRunning   CascadeStatus = "running"
	StatusFailed    CascadeStatus = "failed"
	StatusCompleted CascadeStatus = "completed"
)

// CascadeCursor records how far a cascade run got. It is saved after every
// step. The head of Pending is the student being removed.
type CascadeCursor struct {
	RunID    string           `json:"runId"`
	ClassID  string           `json:"classId"`
	Strategy grading.Strategy `json:"strategy"`

	Pending   []string    `json:"pending"`
	Completed []string    `json:"completed"`
	Step      CascadeStep `json:"step"`

	// Progress of the student at the head of Pending.
	AssignmentIDs []string `json:"assignmentIds"`
	Touched       []string `json:"touched"`
	Recomputed    []string `json:"recomputed"`

	// Affected accumulates every recomputed assignment of the run.
	Affected []string `json:"affected"`

	PendingAdds []string `json:"pendingAdds"`
	Added       []string `json:"added"`

	Status      CascadeStatus `json:"status"`
	LastError   string        `json:"lastError,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// CurrentStudent returns the student being removed, if any.
func (c *CascadeCursor) CurrentStudent() string {
	if len(c.Pending) == 0 {
		return ""
	}
	return c.Pending[0]
}

// Finished reports whether the run reached its last step.
func (c *CascadeCursor) Finished() bool {
	return c.Status == StatusCompleted
}

// CascadeResult is returned by a successful cascade run.
type CascadeResult struct {
	RunID       string    `json:"runId,omitempty"`
	ClassID     string    `json:"classId"`
	Removed     []string  `json:"removed"`
	Added       []string  `json:"added"`
	Recomputed  []string  `json:"recomputed"`
	CompletedAt time.Time `json:"completedAt"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// ClassReader resolves the class a cascade runs for.
type ClassReader interface {
	GetByID(ctx context.Context, id string) (*classroom.Class, error)
}

// RosterStore reads and changes class membership.
type RosterStore interface {
	GetByID(ctx context.Context, id string) (*student.Student, error)
	ListByClass(ctx context.Context, classID string) ([]*student.Student, error)
	SetClass(ctx context.Context, studentID string, classID *string) error
}

// AssignmentLister lists the assignments of a class.
type AssignmentLister interface {
	ListByClass(ctx context.Context, classID string) ([]*assignment.Assignment, error)
}

// EvaluationPurger deletes evaluations that involve a departing student.
type EvaluationPurger interface {
	DeleteByEvaluator(ctx context.Context, assignmentIDs []string, studentID string) ([]string, error)
	DeleteByEvaluated(ctx context.Context, assignmentIDs []string, studentID string) ([]string, error)
}

// Recomputer recomputes the aggregate of one assignment.
type Recomputer interface {
	Recompute(ctx context.Context, assignmentID string, strategy grading.Strategy) (float64, error)
}

// CursorStore persists cascade cursors.
type CursorStore interface {
	// Save stores the cursor, replacing a previous version of the run.
	Save(ctx context.Context, c *CascadeCursor) error
	// Load returns the cursor of a run or ErrCascadeNotFound.
	Load(ctx context.Context, runID string) (*CascadeCursor, error)
	// ListUnfinished returns the IDs of runs that did not complete.
	ListUnfinished(ctx context.Context) ([]string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER CASCADE SAGA
// ══════════════════════════════════════════════════════════════════════════════

// CascadeConfig contains configuration for the roster cascade.
type CascadeConfig struct {
	// StepTimeout bounds every store round trip of a step.
	StepTimeout time.Duration
	// Strategy reduces evaluations when touched assignments are recomputed.
	Strategy grading.Strategy
	// StaleAfter is how long a cursor marked running must sit idle before
	// another process may resume it.
	StaleAfter time.Duration
}

// DefaultCascadeConfig returns default configuration.
func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		StepTimeout: 10 * time.Second,
		Strategy:    grading.StrategyRawSum,
		StaleAfter:  2 * time.Minute,
	}
}

// RosterCascade removes students from a class and deletes every evaluation
// their departure invalidates, then recomputes the touched assignments.
// Students are processed one at a time. A failing step stops the run:
// students already processed stay removed, the rest stay on the roster, and
// the cursor allows the run to be resumed.
type RosterCascade struct {
	classes     ClassReader
	students    RosterStore
	assignments AssignmentLister
	evaluations EvaluationPurger
	recomputer  Recomputer
	cursors     CursorStore
	config      CascadeConfig
	log         *logger.Logger

	// active holds the runs this process is driving.
	activeMu sync.Mutex
	active   map[string]struct{}

	newRunID func() string
	now      func() time.Time
}

// NewRosterCascade creates a roster cascade with all dependencies.
func NewRosterCascade(
	classes ClassReader,
	students RosterStore,
	assignments AssignmentLister,
	evaluations EvaluationPurger,
	recomputer Recomputer,
	cursors CursorStore,
	config CascadeConfig,
	log *logger.Logger,
) *RosterCascade {
	defaults := DefaultCascadeConfig()
	if config.StepTimeout <= 0 {
		config.StepTimeout = defaults.StepTimeout
	}
	if !config.Strategy.IsValid() {
		config.Strategy = defaults.Strategy
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if cursors == nil {
		cursors = NewMemoryCursorStore()
	}
	if log == nil {
		log = logger.Discard()
	}

	return &RosterCascade{
		classes:     classes,
		students:    students,
		assignments: assignments,
		evaluations: evaluations,
		recomputer:  recomputer,
		cursors:     cursors,
		config:      config,
		log:         log.With(logger.Component("roster_cascade")),
		active:      make(map[string]struct{}),
		newRunID:    uuid.NewString,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Strategy returns the reduction used for recomputation.
func (s *RosterCascade) Strategy() grading.Strategy {
	return s.config.Strategy
}

// RemoveStudent removes one student from a class roster.
func (s *RosterCascade) RemoveStudent(ctx context.Context, classID, studentID string) (*CascadeResult, error) {
	if _, err := s.classes.GetByID(ctx, classID); err != nil {
		return nil, err
	}

	st, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !st.InClass(classID) {
		return nil, shared.ErrStudentNotInClass
	}

	cursor := s.newCursor(classID, []string{studentID}, nil)
	return s.run(ctx, cursor)
}

// ApplyRoster replaces the roster of a class with target. Departing
// students go through the cascade first; new members are assigned after all
// removals succeed. Unknown students and students of another class are
// rejected before anything is changed.
func (s *RosterCascade) ApplyRoster(ctx context.Context, classID string, target []string) (*CascadeResult, error) {
	if _, err := s.classes.GetByID(ctx, classID); err != nil {
		return nil, err
	}

	members, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	current := make([]string, 0, len(members))
	for _, m := range members {
		current = append(current, m.ID)
	}

	diff := classroom.DiffRoster(current, target)
	if diff.IsEmpty() {
		return &CascadeResult{ClassID: classID, CompletedAt: s.now()}, nil
	}

	for _, id := range diff.Added {
		st, err := s.students.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if st.HasClass() && !st.InClass(classID) {
			return nil, shared.Validation("class", "ApplyRoster",
				fmt.Sprintf("student %s already belongs to another class", id))
		}
	}

	cursor := s.newCursor(classID, diff.Removed, diff.Added)
	return s.run(ctx, cursor)
}

// Resume continues a run that stopped at a failed step. The failed step is
// executed again; every step tolerates being repeated.
func (s *RosterCascade) Resume(ctx context.Context, runID string) (*CascadeResult, error) {
	cursor, err := s.cursors.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if cursor.Finished() {
		return nil, shared.ErrCascadeCompleted
	}
	// A running cursor that is still being saved belongs to a live driver,
	// possibly in another process.
	if cursor.Status == StatusRunning && s.now().Sub(cursor.UpdatedAt) < s.config.StaleAfter {
		return nil, shared.ErrCascadeInProgress
	}

	// A deletion may have committed before its cursor was saved. Recompute
	// every assignment the student could have touched.
	if cursor.Step == StepDeleteAuthored || cursor.Step == StepDeleteReceived {
		cursor.Touched = union(cursor.Touched, cursor.AssignmentIDs)
	}
	if cursor.Strategy == "" {
		cursor.Strategy = s.config.Strategy
	}

	s.log.Info("resuming roster cascade",
		logger.RunID(runID),
		logger.ClassID(cursor.ClassID),
		logger.String("step", string(cursor.Step)),
	)
	return s.run(ctx, cursor)
}

// Pending returns the IDs of runs that did not complete.
func (s *RosterCascade) Pending(ctx context.Context) ([]string, error) {
	return s.cursors.ListUnfinished(ctx)
}

// Cursor returns the saved state of a run.
func (s *RosterCascade) Cursor(ctx context.Context, runID string) (*CascadeCursor, error) {
	return s.cursors.Load(ctx, runID)
}

func (s *RosterCascade) newCursor(classID string, removed, added []string) *CascadeCursor {
	now := s.now()
	step := StepListAssignments
	if len(removed) == 0 {
		step = StepAddMembers
	}
	return &CascadeCursor{
		RunID:       s.newRunID(),
		ClassID:     classID,
		Strategy:    s.config.Strategy,
		Pending:     slices.Clone(removed),
		Completed:   []string{},
		Step:        step,
		PendingAdds: slices.Clone(added),
		Added:       []string{},
		Status:      StatusRunning,
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// run drives the cursor until it reaches StepDone or a step fails.
func (s *RosterCascade) run(ctx context.Context, cursor *CascadeCursor) (*CascadeResult, error) {
	if !s.claim(cursor.RunID) {
		return nil, shared.ErrCascadeInProgress
	}
	defer s.release(cursor.RunID)

	cursor.Status = StatusRunning
	cursor.LastError = ""
	cursor.UpdatedAt = s.now()
	s.save(ctx, cursor)

	for cursor.Step != StepDone {
		if err := s.execute(ctx, cursor); err != nil {
			return nil, s.fail(ctx, cursor, err)
		}
		cursor.UpdatedAt = s.now()
		s.save(ctx, cursor)
	}

	completedAt := s.now()
	cursor.Status = StatusCompleted
	cursor.CompletedAt = &completedAt
	cursor.UpdatedAt = completedAt
	s.save(ctx, cursor)

	s.log.Info("roster cascade completed",
		logger.RunID(cursor.RunID),
		logger.ClassID(cursor.ClassID),
		logger.Int("removed", len(cursor.Completed)),
		logger.Int("added", len(cursor.Added)),
		logger.Int("recomputed", len(cursor.Affected)),
	)

	return &CascadeResult{
		RunID:       cursor.RunID,
		ClassID:     cursor.ClassID,
		Removed:     slices.Clone(cursor.Completed),
		Added:       slices.Clone(cursor.Added),
		Recomputed:  slices.Clone(cursor.Affected),
		CompletedAt: completedAt,
	}, nil
}

func (s *RosterCascade) claim(runID string) bool {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	if _, busy := s.active[runID]; busy {
		return false
	}
	s.active[runID] = struct{}{}
	return true
}

func (s *RosterCascade) release(runID string) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	delete(s.active, runID)
}

// execute runs the current step and advances the cursor.
func (s *RosterCascade) execute(ctx context.Context, cursor *CascadeCursor) error {
	studentID := cursor.CurrentStudent()

	switch cursor.Step {
	case StepListAssignments:
		var list []*assignment.Assignment
		err := s.step(ctx, func(stepCtx context.Context) (err error) {
			list, err = s.assignments.ListByClass(stepCtx, cursor.ClassID)
			return err
		})
		if err != nil {
			return err
		}
		cursor.AssignmentIDs = make([]string, 0, len(list))
		for _, a := range list {
			cursor.AssignmentIDs = append(cursor.AssignmentIDs, a.ID)
		}
		cursor.Touched = []string{}
		cursor.Recomputed = []string{}
		cursor.Step = StepDeleteAuthored

	case StepDeleteAuthored:
		var touched []string
		err := s.step(ctx, func(stepCtx context.Context) (err error) {
			touched, err = s.evaluations.DeleteByEvaluator(stepCtx, cursor.AssignmentIDs, studentID)
			return err
		})
		if err != nil {
			return err
		}
		cursor.Touched = union(cursor.Touched, touched)
		cursor.Step = StepDeleteReceived

	case StepDeleteReceived:
		var touched []string
		err := s.step(ctx, func(stepCtx context.Context) (err error) {
			touched, err = s.evaluations.DeleteByEvaluated(stepCtx, cursor.AssignmentIDs, studentID)
			return err
		})
		if err != nil {
			return err
		}
		cursor.Touched = union(cursor.Touched, touched)
		cursor.Step = StepRecompute

	case StepRecompute:
		for _, id := range cursor.Touched {
			if slices.Contains(cursor.Recomputed, id) {
				continue
			}
			err := s.step(ctx, func(stepCtx context.Context) error {
				_, err := s.recomputer.Recompute(stepCtx, id, cursor.Strategy)
				return err
			})
			if err != nil {
				return err
			}
			cursor.Recomputed = append(cursor.Recomputed, id)
			cursor.Affected = union(cursor.Affected, []string{id})
			// Partial progress survives a failure on a later assignment.
			s.save(ctx, cursor)
		}
		cursor.Step = StepClearClass

	case StepClearClass:
		err := s.step(ctx, func(stepCtx context.Context) error {
			return s.students.SetClass(stepCtx, studentID, nil)
		})
		if err != nil && !errors.Is(err, shared.ErrStudentNotFound) {
			return err
		}

		s.log.Info("student removed from roster",
			logger.RunID(cursor.RunID),
			logger.ClassID(cursor.ClassID),
			logger.StudentID(studentID),
			logger.Int("recomputed", len(cursor.Recomputed)),
		)

		cursor.Completed = append(cursor.Completed, studentID)
		cursor.Pending = cursor.Pending[1:]
		cursor.AssignmentIDs = nil
		cursor.Touched = nil
		cursor.Recomputed = nil
		if len(cursor.Pending) > 0 {
			cursor.Step = StepListAssignments
		} else {
			cursor.Step = StepAddMembers
		}

	case StepAddMembers:
		classID := cursor.ClassID
		for _, id := range cursor.PendingAdds {
			if slices.Contains(cursor.Added, id) {
				continue
			}
			err := s.step(ctx, func(stepCtx context.Context) error {
				return s.students.SetClass(stepCtx, id, &classID)
			})
			if err != nil {
				return err
			}
			cursor.Added = append(cursor.Added, id)
		}
		cursor.Step = StepDone

	default:
		return fmt.Errorf("unknown cascade step %q", cursor.Step)
	}

	return nil
}

// step runs one store round trip under the step timeout.
func (s *RosterCascade) step(ctx context.Context, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
	defer cancel()

	err := fn(stepCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError("cascade", "Step", shared.ErrTimeout, "step timed out", err)
	}
	return err
}

// save stores the cursor. A failed save does not stop the run; the cursor
// is saved again after the next step.
func (s *RosterCascade) save(ctx context.Context, cursor *CascadeCursor) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.StepTimeout)
	defer cancel()

	if err := s.cursors.Save(saveCtx, cursor); err != nil {
		s.log.Warn("failed to save cascade cursor",
			logger.RunID(cursor.RunID),
			logger.String("step", string(cursor.Step)),
			logger.Err(err),
		)
	}
}

// fail marks the run failed and wraps the cause with saga context.
func (s *RosterCascade) fail(ctx context.Context, cursor *CascadeCursor, cause error) error {
	cursor.Status = StatusFailed
	cursor.LastError = cause.Error()
	cursor.UpdatedAt = s.now()
	s.save(ctx, cursor)

	cerr := &CascadeError{
		RunID:     cursor.RunID,
		ClassID:   cursor.ClassID,
		StudentID: cursor.CurrentStudent(),
		Step:      cursor.Step,
		Completed: slices.Clone(cursor.Completed),
		Remaining: slices.Clone(cursor.Pending),
		Cause:     cause,
	}

	s.log.Error("roster cascade aborted",
		logger.RunID(cursor.RunID),
		logger.ClassID(cursor.ClassID),
		logger.StudentID(cerr.StudentID),
		logger.String("step", string(cerr.Step)),
		logger.Err(cause),
	)
	return cerr
}

// union appends the elements of add missing from base.
func union(base, add []string) []string {
	out := slices.Clone(base)
	if out == nil {
		out = []string{}
	}
	for _, id := range add {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// CascadeError reports a run that stopped part way. Completed students are
// already removed; Remaining students are still on the roster.
type CascadeError struct {
	RunID     string
	ClassID   string
	StudentID string
	Step      CascadeStep
	Completed []string
	Remaining []string
	Cause     error
}

// Error implements the error interface.
func (e *CascadeError) Error() string {
	return fmt.Sprintf("roster cascade %s failed at step '%s' for student %s: %v",
		e.RunID, e.Step, e.StudentID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *CascadeError) Unwrap() error {
	return e.Cause
}

// Is matches ErrPartiallyApplied once the run may have changed the store:
// a student was already removed or the failing step was past the read-only
// assignment listing. A failed deletion is counted as applied since the
// store may have committed part of it.
func (e *CascadeError) Is(target error) bool {
	return target == shared.ErrPartiallyApplied && e.Applied()
}

// Applied reports whether the run may have changed the store.
func (e *CascadeError) Applied() bool {
	return len(e.Completed) > 0 || e.Step != StepListAssignments
}

// IsRetryable returns true if resuming the run can succeed.
func (e *CascadeError) IsRetryable() bool {
	return !shared.IsValidation(e.Cause) && !shared.IsNotFound(e.Cause)
}
