package command

import (
	"context"
	"fmt"

	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
	"github.com/avalia-hub/avalia-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// CreateStudentCommand contains the data to create a student.
type CreateStudentCommand struct {
	ID      string
	Name    string
	Email   string
	ClassID *string
}

// UpdateStudentCommand changes name or email. Class membership changes go
// through the roster commands.
type UpdateStudentCommand struct {
	ID    string
	Name  *string
	Email *string
}

// Validate validates the command.
func (c UpdateStudentCommand) Validate() error {
	if c.ID == "" {
		return shared.Validation("student", "Update", "id is required")
	}
	return nil
}

// DeleteStudentResult contains the deleted student and the assignments
// whose aggregates were recomputed.
type DeleteStudentResult struct {
	Student    *student.Student
	Recomputed []string
}

// StudentHandler handles the student commands.
type StudentHandler struct {
	students    student.Repository
	evaluations evaluation.Repository
	cascade     RosterCascade
	recomputer  Recomputer
	ids         IDGenerator
	log         *logger.Logger
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(
	students student.Repository,
	evaluations evaluation.Repository,
	cascade RosterCascade,
	recomputer Recomputer,
	ids IDGenerator,
	log *logger.Logger,
) *StudentHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &StudentHandler{
		students:    students,
		evaluations: evaluations,
		cascade:     cascade,
		recomputer:  recomputer,
		ids:         ids,
		log:         log.With(logger.Component("student_commands")),
	}
}

// Create creates a student, optionally already on a roster.
func (h *StudentHandler) Create(ctx context.Context, cmd CreateStudentCommand) (*student.Student, error) {
	s, err := student.New(student.NewParams{
		ID:      pickID(cmd.ID, h.ids),
		Name:    cmd.Name,
		Email:   cmd.Email,
		ClassID: cmd.ClassID,
	})
	if err != nil {
		return nil, err
	}

	if err := h.students.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create_student: %w", err)
	}
	return s, nil
}

// Update applies the changed fields.
func (h *StudentHandler) Update(ctx context.Context, cmd UpdateStudentCommand) (*student.Student, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	s, err := h.students.GetByID(ctx, cmd.ID)
	if err != nil {
		return nil, fmt.Errorf("update_student: %w", err)
	}
	if cmd.Name != nil {
		if err := s.Rename(*cmd.Name); err != nil {
			return nil, err
		}
	}
	if cmd.Email != nil {
		if err := s.ChangeEmail(*cmd.Email); err != nil {
			return nil, err
		}
	}

	if err := h.students.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("update_student: %w", err)
	}
	return s, nil
}

// Delete removes a student. A student on a roster is first removed through
// the roster cascade; evaluations left in other classes are then deleted and
// their assignments recomputed, so no aggregate keeps a deleted student's
// scores.
func (h *StudentHandler) Delete(ctx context.Context, id string) (*DeleteStudentResult, error) {
	if id == "" {
		return nil, shared.Validation("student", "Delete", "id is required")
	}

	s, err := h.students.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete_student: %w", err)
	}

	var recomputed []string
	if s.HasClass() {
		cascade, err := h.cascade.RemoveStudent(ctx, *s.ClassID, s.ID)
		if err != nil {
			return nil, fmt.Errorf("delete_student: %w", err)
		}
		recomputed = append(recomputed, cascade.Recomputed...)
	}

	touched, err := h.evaluations.DeleteByStudent(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("delete_student: %w", err)
	}
	if len(touched) > 0 {
		done, err := h.recomputer.RecomputeMany(ctx, touched, h.cascade.Strategy())
		recomputed = append(recomputed, done...)
		if err != nil {
			return nil, fmt.Errorf("delete_student: %w", err)
		}
	}

	if err := h.students.Delete(ctx, s.ID); err != nil {
		return nil, fmt.Errorf("delete_student: %w", err)
	}

	h.log.Info("student deleted",
		logger.StudentID(s.ID),
		logger.Int("recomputed", len(recomputed)),
	)
	return &DeleteStudentResult{Student: s, Recomputed: recomputed}, nil
}
