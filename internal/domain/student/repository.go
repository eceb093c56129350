package student

import (
	"context"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет основные операции CRUD для студентов.
type Repository interface {
	// Create создаёт нового студента.
	// Возвращает ошибку с ErrAlreadyExists, если email уже занят.
	Create(ctx context.Context, s *Student) error

	// GetByID возвращает студента по ID.
	// Возвращает ErrStudentNotFound, если студент не найден.
	GetByID(ctx context.Context, id string) (*Student, error)

	// Update обновляет имя, email и класс студента.
	// Возвращает ErrStudentNotFound, если студент не найден.
	Update(ctx context.Context, s *Student) error

	// Delete удаляет студента.
	// Возвращает ErrStudentNotFound, если студент не найден.
	Delete(ctx context.Context, id string) error

	// List возвращает студентов с фильтрами и пагинацией.
	List(ctx context.Context, opts ListOptions) ([]*Student, error)

	// ListByClass возвращает ростер класса.
	ListByClass(ctx context.Context, classID string) ([]*Student, error)

	// SetClass записывает студента в класс или очищает класс (classID == nil).
	// Возвращает ErrStudentNotFound, если студент не найден.
	SetClass(ctx context.Context, studentID string, classID *string) error
}

// ListOptions содержит параметры для пагинации и поиска.
type ListOptions struct {
	// Page - окно выборки.
	Page shared.Page

	// Query - подстрока имени или email (без учёта регистра).
	Query string

	// ClassID - только студенты указанного класса.
	ClassID string

	// Unassigned - только студенты без класса.
	Unassigned bool
}

// DefaultListOptions возвращает параметры по умолчанию.
func DefaultListOptions() ListOptions {
	return ListOptions{Page: shared.Page{Limit: shared.DefaultPageLimit}}
}

// WithPage устанавливает окно выборки.
func (o ListOptions) WithPage(limit, offset int) ListOptions {
	o.Page = shared.Page{Limit: limit, Offset: offset}
	return o
}

// WithQuery устанавливает строку поиска.
func (o ListOptions) WithQuery(q string) ListOptions {
	o.Query = q
	return o
}

// WithClass ограничивает выборку классом.
func (o ListOptions) WithClass(classID string) ListOptions {
	o.ClassID = classID
	return o
}

// WithUnassigned оставляет только студентов без класса.
func (o ListOptions) WithUnassigned() ListOptions {
	o.Unassigned = true
	return o
}
