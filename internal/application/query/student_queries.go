package query

import (
	"context"
	"fmt"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
)

// ListStudentsQuery - поиск студентов.
type ListStudentsQuery struct {
	Query      string
	ClassID    string
	Unassigned bool
	Page       shared.Page
}

// StudentQueries обрабатывает запросы студентов.
type StudentQueries struct {
	students student.Repository
}

// NewStudentQueries создаёт обработчик.
func NewStudentQueries(students student.Repository) *StudentQueries {
	return &StudentQueries{students: students}
}

// List возвращает студентов по фильтрам.
func (h *StudentQueries) List(ctx context.Context, q ListStudentsQuery) ([]StudentDTO, error) {
	if q.ClassID != "" && q.Unassigned {
		return nil, shared.Validation("student", "List", "classId and unassigned are exclusive")
	}

	opts := student.DefaultListOptions().
		WithPage(q.Page.Limit, q.Page.Offset).
		WithQuery(q.Query).
		WithClass(q.ClassID)
	if q.Unassigned {
		opts = opts.WithUnassigned()
	}

	list, err := h.students.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list_students: %w", err)
	}
	return studentDTOs(list), nil
}

// Get возвращает студента по ID.
func (h *StudentQueries) Get(ctx context.Context, id string) (*StudentDTO, error) {
	if id == "" {
		return nil, shared.Validation("student", "Get", "id is required")
	}

	s, err := h.students.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get_student: %w", err)
	}
	dto := NewStudentDTO(s)
	return &dto, nil
}
