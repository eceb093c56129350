package query

import (
	"context"
	"fmt"

	"github.com/avalia-hub/avalia-hub/internal/domain/classroom"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASS QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ListClassesQuery - постраничный список классов.
type ListClassesQuery struct {
	Page shared.Page
}

// GetClassQuery - один класс с ростером.
type GetClassQuery struct {
	ID string
}

// ClassQueries обрабатывает запросы классов.
type ClassQueries struct {
	classes  classroom.Repository
	students student.Repository
}

// NewClassQueries создаёт обработчик.
func NewClassQueries(classes classroom.Repository, students student.Repository) *ClassQueries {
	return &ClassQueries{classes: classes, students: students}
}

// List возвращает классы без ростеров.
func (h *ClassQueries) List(ctx context.Context, q ListClassesQuery) ([]ClassDTO, error) {
	list, err := h.classes.List(ctx, q.Page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list_classes: %w", err)
	}

	out := make([]ClassDTO, 0, len(list))
	for _, c := range list {
		out = append(out, NewClassDTO(c))
	}
	return out, nil
}

// Get возвращает класс с ростером.
func (h *ClassQueries) Get(ctx context.Context, q GetClassQuery) (*ClassDTO, error) {
	if q.ID == "" {
		return nil, shared.Validation("class", "Get", "id is required")
	}

	c, err := h.classes.GetByID(ctx, q.ID)
	if err != nil {
		return nil, fmt.Errorf("get_class: %w", err)
	}
	roster, err := h.students.ListByClass(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("get_class: roster: %w", err)
	}

	dto := NewClassDTO(c)
	dto.Roster = studentDTOs(roster)
	return &dto, nil
}
