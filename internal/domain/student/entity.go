// Package student содержит доменную модель студента.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package student

import (
	"net/mail"
	"strings"
	"time"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - студент, который оценивает и получает оценки.
type Student struct {
	// ID - уникальный идентификатор (UUID в строковом формате).
	ID string

	// Name - отображаемое имя.
	Name string

	// Email - адрес почты, уникален среди студентов.
	Email string

	// ClassID - класс, в ростере которого состоит студент. nil - вне класса.
	ClassID *string

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// MaxNameLength - максимальная длина имени.
const MaxNameLength = 120

// NewParams содержит параметры для создания нового студента.
type NewParams struct {
	ID      string
	Name    string
	Email   string
	ClassID *string
}

// New создаёт нового студента с валидацией всех полей.
func New(params NewParams) (*Student, error) {
	id, err := shared.NormalizeID("student", "id", params.ID)
	if err != nil {
		return nil, err
	}

	s := &Student{ID: id}
	if err := s.Rename(params.Name); err != nil {
		return nil, err
	}
	if err := s.ChangeEmail(params.Email); err != nil {
		return nil, err
	}
	if params.ClassID != nil {
		if err := s.JoinClass(*params.ClassID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// Rename меняет отображаемое имя.
func (s *Student) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return shared.Validation("student", "Validate", "name must be 1-120 chars")
	}
	s.Name = name
	s.touch()
	return nil
}

// ChangeEmail меняет email. Адрес приводится к нижнему регистру.
func (s *Student) ChangeEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return shared.Validation("student", "Validate", "email is invalid")
	}
	s.Email = email
	s.touch()
	return nil
}

// JoinClass записывает студента в класс. Предыдущий класс заменяется.
func (s *Student) JoinClass(classID string) error {
	id, err := shared.NormalizeID("student", "classId", classID)
	if err != nil {
		return err
	}
	s.ClassID = &id
	s.touch()
	return nil
}

// LeaveClass очищает принадлежность к классу.
func (s *Student) LeaveClass() {
	s.ClassID = nil
	s.touch()
}

// InClass проверяет, состоит ли студент в указанном классе.
func (s *Student) InClass(classID string) bool {
	return s.ClassID != nil && *s.ClassID == classID
}

// HasClass проверяет, состоит ли студент в каком-либо классе.
func (s *Student) HasClass() bool {
	return s.ClassID != nil
}

func (s *Student) touch() {
	s.UpdatedAt = time.Now().UTC()
}
