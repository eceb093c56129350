package query

import (
	"context"
	"fmt"

	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/classroom"
	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ASSIGNMENT QUERY
// Задание вместе с классом, ростером класса и всеми оценками.
// ══════════════════════════════════════════════════════════════════════════════

// GetAssignmentQuery содержит параметры запроса задания.
type GetAssignmentQuery struct {
	ID string
}

// GetAssignmentHandler обрабатывает GetAssignmentQuery.
type GetAssignmentHandler struct {
	assignments assignment.Repository
	classes     classroom.Repository
	students    student.Repository
	evaluations evaluation.Repository
}

// NewGetAssignmentHandler создаёт обработчик.
func NewGetAssignmentHandler(
	assignments assignment.Repository,
	classes classroom.Repository,
	students student.Repository,
	evaluations evaluation.Repository,
) *GetAssignmentHandler {
	return &GetAssignmentHandler{
		assignments: assignments,
		classes:     classes,
		students:    students,
		evaluations: evaluations,
	}
}

// Handle выполняет запрос.
func (h *GetAssignmentHandler) Handle(ctx context.Context, q GetAssignmentQuery) (*AssignmentDetailsDTO, error) {
	if q.ID == "" {
		return nil, shared.Validation("assignment", "Get", "id is required")
	}

	a, err := h.assignments.GetByID(ctx, q.ID)
	if err != nil {
		return nil, fmt.Errorf("get_assignment: %w", err)
	}

	c, err := h.classes.GetByID(ctx, a.ClassID)
	if err != nil {
		return nil, fmt.Errorf("get_assignment: class: %w", err)
	}
	roster, err := h.students.ListByClass(ctx, a.ClassID)
	if err != nil {
		return nil, fmt.Errorf("get_assignment: roster: %w", err)
	}
	evals, err := h.evaluations.ListByAssignment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("get_assignment: evaluations: %w", err)
	}

	class := NewClassDTO(c)
	class.Roster = studentDTOs(roster)

	return &AssignmentDetailsDTO{
		AssignmentDTO: NewAssignmentDTO(a),
		Class:         &class,
		Evaluations:   evaluationDTOs(evals),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST ASSIGNMENTS BY CLASS QUERY
// Задания класса. Если указан студент, mediaGeral заменяется его личным
// средним: null означает «нет оценок», 0 - настоящий ноль.
// ══════════════════════════════════════════════════════════════════════════════

// StudentAverager вычисляет личное среднее студента по заданию.
type StudentAverager interface {
	StudentAverage(ctx context.Context, assignmentID, studentID string, strategy grading.Strategy) (*float64, error)
}

// ListAssignmentsByClassQuery содержит параметры запроса.
type ListAssignmentsByClassQuery struct {
	ClassID string

	// StudentID - необязательный; включает личное среднее.
	StudentID string
}

// ListAssignmentsByClassHandler обрабатывает ListAssignmentsByClassQuery.
type ListAssignmentsByClassHandler struct {
	assignments assignment.Repository
	classes     classroom.Repository
	averager    StudentAverager
	strategy    grading.Strategy
}

// NewListAssignmentsByClassHandler создаёт обработчик. strategy - способ
// свёртки оценок для личного среднего.
func NewListAssignmentsByClassHandler(
	assignments assignment.Repository,
	classes classroom.Repository,
	averager StudentAverager,
	strategy grading.Strategy,
) *ListAssignmentsByClassHandler {
	if !strategy.IsValid() {
		strategy = grading.StrategySimpleMedia
	}
	return &ListAssignmentsByClassHandler{
		assignments: assignments,
		classes:     classes,
		averager:    averager,
		strategy:    strategy,
	}
}

// Handle выполняет запрос.
func (h *ListAssignmentsByClassHandler) Handle(ctx context.Context, q ListAssignmentsByClassQuery) ([]AssignmentDTO, error) {
	if q.ClassID == "" {
		return nil, shared.Validation("assignment", "ListByClass", "classId is required")
	}

	if _, err := h.classes.GetByID(ctx, q.ClassID); err != nil {
		return nil, fmt.Errorf("list_assignments: %w", err)
	}

	list, err := h.assignments.ListByClass(ctx, q.ClassID)
	if err != nil {
		return nil, fmt.Errorf("list_assignments: %w", err)
	}

	out := make([]AssignmentDTO, 0, len(list))
	for _, a := range list {
		dto := NewAssignmentDTO(a)
		if q.StudentID != "" {
			avg, err := h.averager.StudentAverage(ctx, a.ID, q.StudentID, h.strategy)
			if err != nil {
				return nil, fmt.Errorf("list_assignments: %w", err)
			}
			dto.MediaGeral = avg
		}
		out = append(out, dto)
	}
	return out, nil
}
