package command

import (
	"context"
	"fmt"

	"github.com/avalia-hub/avalia-hub/internal/application/saga"
	"github.com/avalia-hub/avalia-hub/internal/domain/classroom"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
	"github.com/avalia-hub/avalia-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASS AND ROSTER COMMANDS
// Removing a student from a roster goes through the roster cascade; adding
// one is a plain membership change.
// ══════════════════════════════════════════════════════════════════════════════

// CreateClassCommand contains the data to create a class.
type CreateClassCommand struct {
	ID           string
	Name         string
	InstructorID string
}

// UpdateClassCommand changes a class. A non-nil Roster replaces the roster.
type UpdateClassCommand struct {
	ID           string
	Name         *string
	InstructorID *string
	Roster       *[]string
}

// Validate validates the command.
func (c UpdateClassCommand) Validate() error {
	if c.ID == "" {
		return shared.Validation("class", "Update", "id is required")
	}
	return nil
}

// RosterCommand names one student of one class.
type RosterCommand struct {
	ClassID   string
	StudentID string
}

// Validate validates the command.
func (c RosterCommand) Validate() error {
	if c.ClassID == "" {
		return shared.Validation("class", "Roster", "classId is required")
	}
	if c.StudentID == "" {
		return shared.Validation("class", "Roster", "studentId is required")
	}
	return nil
}

// UpdateClassResult contains the updated class and, when the roster
// changed, the cascade outcome.
type UpdateClassResult struct {
	Class   *classroom.Class
	Cascade *saga.CascadeResult
}

// ClassHandler handles the class and roster commands.
type ClassHandler struct {
	classes  classroom.Repository
	students student.Repository
	cascade  RosterCascade
	ids      IDGenerator
	log      *logger.Logger
}

// NewClassHandler creates a new ClassHandler.
func NewClassHandler(
	classes classroom.Repository,
	students student.Repository,
	cascade RosterCascade,
	ids IDGenerator,
	log *logger.Logger,
) *ClassHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &ClassHandler{
		classes:  classes,
		students: students,
		cascade:  cascade,
		ids:      ids,
		log:      log.With(logger.Component("class_commands")),
	}
}

// Create creates a class.
func (h *ClassHandler) Create(ctx context.Context, cmd CreateClassCommand) (*classroom.Class, error) {
	c, err := classroom.New(classroom.NewParams{
		ID:           pickID(cmd.ID, h.ids),
		Name:         cmd.Name,
		InstructorID: cmd.InstructorID,
	})
	if err != nil {
		return nil, err
	}

	if err := h.classes.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create_class: %w", err)
	}
	return c, nil
}

// Update applies the changed fields, then diffs the roster when one is
// given. Departing students are cascaded before new members are added.
func (h *ClassHandler) Update(ctx context.Context, cmd UpdateClassCommand) (*UpdateClassResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	c, err := h.classes.GetByID(ctx, cmd.ID)
	if err != nil {
		return nil, fmt.Errorf("update_class: %w", err)
	}

	if cmd.Name != nil || cmd.InstructorID != nil {
		if cmd.Name != nil {
			if err := c.Rename(*cmd.Name); err != nil {
				return nil, err
			}
		}
		if cmd.InstructorID != nil {
			if err := c.ReassignInstructor(*cmd.InstructorID); err != nil {
				return nil, err
			}
		}
		if err := h.classes.Update(ctx, c); err != nil {
			return nil, fmt.Errorf("update_class: %w", err)
		}
	}

	result := &UpdateClassResult{Class: c}
	if cmd.Roster == nil {
		return result, nil
	}

	cascade, err := h.cascade.ApplyRoster(ctx, c.ID, *cmd.Roster)
	if err != nil {
		return nil, fmt.Errorf("update_class: roster: %w", err)
	}
	result.Cascade = cascade
	return result, nil
}

// Delete removes a class. Its assignments and their evaluations go with it;
// its students stay without a class.
func (h *ClassHandler) Delete(ctx context.Context, id string) (*classroom.Class, error) {
	if id == "" {
		return nil, shared.Validation("class", "Delete", "id is required")
	}

	c, err := h.classes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete_class: %w", err)
	}
	if err := h.classes.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete_class: %w", err)
	}

	h.log.Info("class deleted", logger.ClassID(id))
	return c, nil
}

// AddStudent puts a student without a class on the roster. Adding a
// student who is already a member is a no-op.
func (h *ClassHandler) AddStudent(ctx context.Context, cmd RosterCommand) (*student.Student, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if _, err := h.classes.GetByID(ctx, cmd.ClassID); err != nil {
		return nil, fmt.Errorf("add_student: %w", err)
	}
	s, err := h.students.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("add_student: %w", err)
	}

	if s.InClass(cmd.ClassID) {
		return s, nil
	}
	if s.HasClass() {
		return nil, shared.Validation("class", "AddStudent",
			fmt.Sprintf("student %s already belongs to another class", s.ID))
	}
	if err := s.JoinClass(cmd.ClassID); err != nil {
		return nil, err
	}

	if err := h.students.SetClass(ctx, s.ID, s.ClassID); err != nil {
		return nil, fmt.Errorf("add_student: %w", err)
	}
	return s, nil
}

// RemoveStudent runs the roster cascade for one student.
func (h *ClassHandler) RemoveStudent(ctx context.Context, cmd RosterCommand) (*saga.CascadeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result, err := h.cascade.RemoveStudent(ctx, cmd.ClassID, cmd.StudentID)
	if err != nil {
		return nil, fmt.Errorf("remove_student: %w", err)
	}
	return result, nil
}

// ResumeCascade continues a roster cascade that stopped part way.
func (h *ClassHandler) ResumeCascade(ctx context.Context, runID string) (*saga.CascadeResult, error) {
	if runID == "" {
		return nil, shared.Validation("class", "ResumeCascade", "runId is required")
	}

	result, err := h.cascade.Resume(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("resume_cascade: %w", err)
	}
	return result, nil
}
