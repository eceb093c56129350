package query

import (
	"context"
	"fmt"

	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// ListEvaluationsHandler возвращает оценки задания.
type ListEvaluationsHandler struct {
	assignments assignment.Repository
	evaluations evaluation.Repository
}

// NewListEvaluationsHandler создаёт обработчик.
func NewListEvaluationsHandler(assignments assignment.Repository, evaluations evaluation.Repository) *ListEvaluationsHandler {
	return &ListEvaluationsHandler{assignments: assignments, evaluations: evaluations}
}

// Handle выполняет запрос.
func (h *ListEvaluationsHandler) Handle(ctx context.Context, assignmentID string) ([]EvaluationDTO, error) {
	if assignmentID == "" {
		return nil, shared.Validation("evaluation", "List", "assignmentId is required")
	}

	if _, err := h.assignments.GetByID(ctx, assignmentID); err != nil {
		return nil, fmt.Errorf("list_evaluations: %w", err)
	}
	list, err := h.evaluations.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list_evaluations: %w", err)
	}
	return evaluationDTOs(list), nil
}
