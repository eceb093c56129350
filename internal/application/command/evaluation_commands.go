package command

import (
	"context"
	"fmt"

	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
	"github.com/avalia-hub/avalia-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION COMMANDS
// Create, update and delete evaluations. Each mutation is followed by a
// synchronous recomputation of the owning assignment's aggregate.
// ══════════════════════════════════════════════════════════════════════════════

// CreateEvaluationCommand contains the data to create an evaluation.
type CreateEvaluationCommand struct {
	// ID is optional; a UUID is generated when empty.
	ID string

	AssignmentID string

	// Exactly one of EvaluatorStudentID and EvaluatorInstructorID is set.
	EvaluatorStudentID    *string
	EvaluatorInstructorID *string

	EvaluatedStudentID string

	// Payload is the JSON grade document: tag -> criterion -> score.
	Payload string

	FileGrades map[string]float64
}

// Validate validates the command.
func (c CreateEvaluationCommand) Validate() error {
	if c.AssignmentID == "" {
		return shared.Validation("evaluation", "Create", "assignmentId is required")
	}
	if c.EvaluatedStudentID == "" {
		return shared.Validation("evaluation", "Create", "evaluatedStudentId is required")
	}
	return nil
}

// UpdateEvaluationCommand replaces the grades of an evaluation.
type UpdateEvaluationCommand struct {
	ID         string
	Payload    string
	FileGrades map[string]float64
}

// Validate validates the command.
func (c UpdateEvaluationCommand) Validate() error {
	if c.ID == "" {
		return shared.Validation("evaluation", "Update", "id is required")
	}
	return nil
}

// DeleteEvaluationCommand deletes an evaluation.
type DeleteEvaluationCommand struct {
	ID string
}

// EvaluationResult contains the evaluation after the mutation and the
// recomputed aggregate of its assignment.
type EvaluationResult struct {
	Evaluation   *evaluation.Evaluation
	AssignmentID string
	Aggregate    float64
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// EvaluationConfig contains configuration for the evaluation handler.
type EvaluationConfig struct {
	// Strategy reduces each evaluation when the aggregate is recomputed.
	Strategy grading.Strategy
}

// DefaultEvaluationConfig returns default configuration.
func DefaultEvaluationConfig() EvaluationConfig {
	return EvaluationConfig{Strategy: grading.StrategySimpleMedia}
}

// EvaluationHandler handles the evaluation commands.
type EvaluationHandler struct {
	evaluations evaluation.Repository
	assignments assignment.Repository
	students    student.Repository
	recomputer  Recomputer
	ids         IDGenerator
	config      EvaluationConfig
	log         *logger.Logger
}

// NewEvaluationHandler creates a new EvaluationHandler.
func NewEvaluationHandler(
	evaluations evaluation.Repository,
	assignments assignment.Repository,
	students student.Repository,
	recomputer Recomputer,
	ids IDGenerator,
	config EvaluationConfig,
	log *logger.Logger,
) *EvaluationHandler {
	if !config.Strategy.IsValid() {
		config.Strategy = DefaultEvaluationConfig().Strategy
	}
	if log == nil {
		log = logger.Discard()
	}
	return &EvaluationHandler{
		evaluations: evaluations,
		assignments: assignments,
		students:    students,
		recomputer:  recomputer,
		ids:         ids,
		config:      config,
		log:         log.With(logger.Component("evaluation_commands")),
	}
}

// Create stores a new evaluation and recomputes the assignment aggregate.
func (h *EvaluationHandler) Create(ctx context.Context, cmd CreateEvaluationCommand) (*EvaluationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	e, err := evaluation.New(evaluation.NewParams{
		ID:                    pickID(cmd.ID, h.ids),
		AssignmentID:          cmd.AssignmentID,
		EvaluatorStudentID:    cmd.EvaluatorStudentID,
		EvaluatorInstructorID: cmd.EvaluatorInstructorID,
		EvaluatedStudentID:    cmd.EvaluatedStudentID,
		Payload:               cmd.Payload,
		FileGrades:            cmd.FileGrades,
	})
	if err != nil {
		return nil, err
	}

	if _, err := h.assignments.GetByID(ctx, e.AssignmentID); err != nil {
		return nil, fmt.Errorf("create_evaluation: %w", err)
	}
	if _, err := h.students.GetByID(ctx, e.EvaluatedStudentID); err != nil {
		return nil, fmt.Errorf("create_evaluation: evaluated student: %w", err)
	}
	if e.EvaluatorStudentID != nil {
		if _, err := h.students.GetByID(ctx, *e.EvaluatorStudentID); err != nil {
			return nil, fmt.Errorf("create_evaluation: evaluator: %w", err)
		}
	}

	if err := h.evaluations.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create_evaluation: %w", err)
	}

	return h.recompute(ctx, "create_evaluation", e, e.AssignmentID)
}

// Update replaces the grades of an evaluation and recomputes the aggregate
// from the post-update payload.
func (h *EvaluationHandler) Update(ctx context.Context, cmd UpdateEvaluationCommand) (*EvaluationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	e, err := h.evaluations.GetByID(ctx, cmd.ID)
	if err != nil {
		return nil, fmt.Errorf("update_evaluation: %w", err)
	}
	if err := e.Regrade(cmd.Payload, cmd.FileGrades); err != nil {
		return nil, err
	}
	if err := h.evaluations.Update(ctx, e); err != nil {
		return nil, fmt.Errorf("update_evaluation: %w", err)
	}

	return h.recompute(ctx, "update_evaluation", e, e.AssignmentID)
}

// Delete removes an evaluation. The assignment ID is read before the row is
// deleted so the aggregate can be recomputed afterwards.
func (h *EvaluationHandler) Delete(ctx context.Context, cmd DeleteEvaluationCommand) (*EvaluationResult, error) {
	if cmd.ID == "" {
		return nil, shared.Validation("evaluation", "Delete", "id is required")
	}

	e, err := h.evaluations.GetByID(ctx, cmd.ID)
	if err != nil {
		return nil, fmt.Errorf("delete_evaluation: %w", err)
	}
	assignmentID := e.AssignmentID

	if err := h.evaluations.Delete(ctx, cmd.ID); err != nil {
		return nil, fmt.Errorf("delete_evaluation: %w", err)
	}

	return h.recompute(ctx, "delete_evaluation", e, assignmentID)
}

func (h *EvaluationHandler) recompute(ctx context.Context, op string, e *evaluation.Evaluation, assignmentID string) (*EvaluationResult, error) {
	value, err := h.recomputer.Recompute(ctx, assignmentID, h.config.Strategy)
	if err != nil {
		h.log.Error("aggregate recomputation failed after evaluation change",
			logger.Operation(op),
			logger.EvaluationID(e.ID),
			logger.AssignmentID(assignmentID),
			logger.Err(err),
		)
		return nil, fmt.Errorf("%s: evaluation saved, recompute failed: %w", op, err)
	}

	return &EvaluationResult{
		Evaluation:   e,
		AssignmentID: assignmentID,
		Aggregate:    value,
	}, nil
}
