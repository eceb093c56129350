package command

import (
	"context"
	"fmt"

	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENT COMMANDS
// The aggregate (mediaGeral) is derived. None of these commands writes it.
// ══════════════════════════════════════════════════════════════════════════════

// CreateAssignmentCommand contains the data to create an assignment.
type CreateAssignmentCommand struct {
	ID      string
	Name    string
	ClassID string
	Rubric  assignment.Rubric
	Dates   shared.DateRange
}

// UpdateAssignmentCommand changes the authored fields of an assignment.
// Nil fields are left unchanged.
type UpdateAssignmentCommand struct {
	ID     string
	Name   *string
	Rubric *assignment.Rubric
	Dates  *shared.DateRange

	// Aggregate is accepted only to be rejected: it has a single writer.
	Aggregate *float64
}

// Validate validates the command.
func (c UpdateAssignmentCommand) Validate() error {
	if c.ID == "" {
		return shared.Validation("assignment", "Update", "id is required")
	}
	if c.Aggregate != nil {
		return shared.ErrAggregateNotWritable
	}
	return nil
}

// AssignmentHandler handles the assignment commands.
type AssignmentHandler struct {
	assignments assignment.Repository
	ids         IDGenerator
}

// NewAssignmentHandler creates a new AssignmentHandler.
func NewAssignmentHandler(assignments assignment.Repository, ids IDGenerator) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, ids: ids}
}

// Create creates an assignment with an empty aggregate.
func (h *AssignmentHandler) Create(ctx context.Context, cmd CreateAssignmentCommand) (*assignment.Assignment, error) {
	a, err := assignment.New(assignment.NewParams{
		ID:      pickID(cmd.ID, h.ids),
		Name:    cmd.Name,
		ClassID: cmd.ClassID,
		Rubric:  cmd.Rubric,
		Dates:   cmd.Dates,
	})
	if err != nil {
		return nil, err
	}

	if err := h.assignments.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create_assignment: %w", err)
	}
	return a, nil
}

// Update applies the changed fields.
func (h *AssignmentHandler) Update(ctx context.Context, cmd UpdateAssignmentCommand) (*assignment.Assignment, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	a, err := h.assignments.GetByID(ctx, cmd.ID)
	if err != nil {
		return nil, fmt.Errorf("update_assignment: %w", err)
	}

	if cmd.Name != nil {
		if err := a.Rename(*cmd.Name); err != nil {
			return nil, err
		}
	}
	if cmd.Rubric != nil {
		if err := a.ChangeRubric(*cmd.Rubric); err != nil {
			return nil, err
		}
	}
	if cmd.Dates != nil {
		if err := a.Reschedule(*cmd.Dates); err != nil {
			return nil, err
		}
	}

	if err := h.assignments.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update_assignment: %w", err)
	}
	return a, nil
}

// Delete removes an assignment together with its evaluations.
func (h *AssignmentHandler) Delete(ctx context.Context, id string) (*assignment.Assignment, error) {
	if id == "" {
		return nil, shared.Validation("assignment", "Delete", "id is required")
	}

	a, err := h.assignments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("delete_assignment: %w", err)
	}
	if err := h.assignments.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete_assignment: %w", err)
	}
	return a, nil
}
