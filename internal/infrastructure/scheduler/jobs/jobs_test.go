package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalia-hub/avalia-hub/internal/application/aggregate"
	"github.com/avalia-hub/avalia-hub/internal/application/saga"
	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/classroom"
	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/infrastructure/persistence/memory"
	"github.com/avalia-hub/avalia-hub/pkg/retry"
)

var errInjected = errors.New("injected failure")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetrier(attempts int) *retry.Retrier {
	return retry.New(
		retry.WithMaxAttempts(attempts),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithJitter(0),
		retry.WithRetryIf(shared.IsRetryable),
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD AGGREGATES
// ══════════════════════════════════════════════════════════════════════════════

func TestRebuildAggregates_RepairsDrift(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	classes := memory.NewClassRepository(db)
	assignments := memory.NewAssignmentRepository(db)
	evaluations := memory.NewEvaluationRepository(db)

	c, err := classroom.New(classroom.NewParams{ID: "c1", Name: "Turma A", InstructorID: "prof"})
	require.NoError(t, err)
	require.NoError(t, classes.Create(ctx, c))

	for _, id := range []string{"a1", "a2", "a3"} {
		a, err := assignment.New(assignment.NewParams{ID: id, Name: "Task " + id, ClassID: "c1"})
		require.NoError(t, err)
		require.NoError(t, assignments.Create(ctx, a))
	}

	prof := "prof"
	e, err := evaluation.New(evaluation.NewParams{
		ID: "e1", AssignmentID: "a1", EvaluatorInstructorID: &prof, EvaluatedStudentID: "s1",
		Payload: `{"t":{"x":4,"y":6}}`,
	})
	require.NoError(t, err)
	require.NoError(t, evaluations.Create(ctx, e))

	// A writer outside the service left a wrong value behind.
	require.NoError(t, assignments.SetAggregate(ctx, "a1", 99))

	maintainer := aggregate.NewMaintainer(assignments, evaluations, nil)
	job := NewRebuildAggregatesJob(assignments, maintainer, quietLogger(), RebuildAggregatesConfig{
		PageSize: 2,
		Strategy: grading.StrategySimpleMedia,
	})

	require.NoError(t, job.Run(ctx))

	a1, err := assignments.GetByID(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, a1.Aggregate)
	assert.Equal(t, 5.0, *a1.Aggregate)

	a3, err := assignments.GetByID(ctx, "a3")
	require.NoError(t, err)
	require.NotNil(t, a3.Aggregate)
	assert.Equal(t, 0.0, *a3.Aggregate)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Scanned)
	assert.Equal(t, 3, stats.Recomputed)
	assert.Zero(t, stats.Failed)
}

type staticLister []string

func (l staticLister) ListIDs(_ context.Context, page shared.Page) ([]string, error) {
	if page.Offset >= len(l) {
		return nil, nil
	}
	end := page.Offset + page.Limit
	if end > len(l) {
		end = len(l)
	}
	return l[page.Offset:end], nil
}

// scriptedRecomputer fails per assignment a set number of times.
type scriptedRecomputer struct {
	mu       sync.Mutex
	failures map[string]int
	errs     map[string]error
	calls    map[string]int
}

func (r *scriptedRecomputer) Recompute(_ context.Context, id string, _ grading.Strategy) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id]++
	if r.failures[id] != 0 {
		if r.failures[id] > 0 {
			r.failures[id]--
		}
		return 0, r.errs[id]
	}
	return 1, nil
}

func TestRebuildAggregates_RetriesAndCollectsFailures(t *testing.T) {
	store := shared.StoreFailure("assignment", "SetAggregate", errInjected)
	rec := &scriptedRecomputer{
		failures: map[string]int{"flaky": 1, "broken": -1, "gone": -1},
		errs:     map[string]error{"flaky": store, "broken": store, "gone": shared.ErrAssignmentNotFound},
		calls:    map[string]int{},
	}
	job := NewRebuildAggregatesJob(staticLister{"a", "broken", "flaky", "gone"}, rec, quietLogger(),
		RebuildAggregatesConfig{PageSize: 3, Retrier: fastRetrier(3)})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assignment broken")
	assert.NotContains(t, err.Error(), "flaky")
	assert.True(t, shared.IsStore(err))

	assert.Equal(t, 2, rec.calls["flaky"])
	assert.Equal(t, 3, rec.calls["broken"])
	assert.Equal(t, 1, rec.calls["gone"])

	stats := job.LastStats()
	assert.Equal(t, 4, stats.Scanned)
	assert.Equal(t, 2, stats.Recomputed)
	assert.Equal(t, 1, stats.Vanished)
	assert.Equal(t, 1, stats.Failed)
}

func TestRebuildAggregates_StopsOnCancel(t *testing.T) {
	rec := &scriptedRecomputer{failures: map[string]int{}, errs: map[string]error{}, calls: map[string]int{}}
	job := NewRebuildAggregatesJob(staticLister{"a", "b"}, rec, quietLogger(), DefaultRebuildAggregatesConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Empty(t, rec.calls)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESUME CASCADES
// ══════════════════════════════════════════════════════════════════════════════

type fakeResumer struct {
	cursors map[string]*saga.CascadeCursor
	errs    map[string]error
	resumed []string
}

func (f *fakeResumer) Pending(context.Context) ([]string, error) {
	var ids []string
	for _, id := range []string{"r1", "r2", "r3", "r4", "r5"} {
		if _, ok := f.cursors[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeResumer) Cursor(_ context.Context, runID string) (*saga.CascadeCursor, error) {
	c, ok := f.cursors[runID]
	if !ok {
		return nil, shared.ErrCascadeNotFound
	}
	return c, nil
}

func (f *fakeResumer) Resume(_ context.Context, runID string) (*saga.CascadeResult, error) {
	if err := f.errs[runID]; err != nil {
		return nil, err
	}
	f.resumed = append(f.resumed, runID)
	return &saga.CascadeResult{RunID: runID, ClassID: f.cursors[runID].ClassID}, nil
}

func TestResumeCascades(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cursor := func(status saga.CascadeStatus, idle time.Duration) *saga.CascadeCursor {
		return &saga.CascadeCursor{ClassID: "c1", Status: status, UpdatedAt: now.Add(-idle)}
	}

	f := &fakeResumer{
		cursors: map[string]*saga.CascadeCursor{
			"r1": cursor(saga.StatusFailed, time.Second),
			"r2": cursor(saga.StatusRunning, 10*time.Second),
			"r3": cursor(saga.StatusRunning, 10*time.Minute),
			"r4": cursor(saga.StatusFailed, time.Minute),
			"r5": cursor(saga.StatusFailed, time.Minute),
		},
		errs: map[string]error{
			"r4": &saga.CascadeError{RunID: "r4", Step: saga.StepDeleteAuthored,
				Cause: shared.Validation("roster", "Remove", "student left the class")},
			"r5": &saga.CascadeError{RunID: "r5", Step: saga.StepDeleteAuthored,
				Cause: shared.StoreFailure("evaluation", "DeleteByEvaluator", errInjected)},
		},
	}

	job := NewResumeCascadesJob(f, quietLogger(), ResumeCascadesConfig{StaleAfter: 2 * time.Minute})
	job.now = func() time.Time { return now }

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume r5")
	assert.NotContains(t, err.Error(), "r4")
	assert.Equal(t, []string{"r1", "r3"}, f.resumed)
}

func TestResumeCascades_MaxRuns(t *testing.T) {
	now := time.Now()
	f := &fakeResumer{
		cursors: map[string]*saga.CascadeCursor{
			"r1": {Status: saga.StatusFailed, UpdatedAt: now},
			"r2": {Status: saga.StatusFailed, UpdatedAt: now},
			"r3": {Status: saga.StatusFailed, UpdatedAt: now},
		},
		errs: map[string]error{},
	}
	job := NewResumeCascadesJob(f, quietLogger(), ResumeCascadesConfig{MaxRuns: 2})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"r1", "r2"}, f.resumed)
}
