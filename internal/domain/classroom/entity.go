// Package classroom содержит доменную модель класса и его ростера.
package classroom

import (
	"strings"
	"time"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: CLASS
// ══════════════════════════════════════════════════════════════════════════════

// Class - учебный класс преподавателя. Ростер не хранится в классе:
// это студенты, у которых ClassID равен ID класса.
type Class struct {
	ID           string
	Name         string
	InstructorID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MaxNameLength - максимальная длина названия класса.
const MaxNameLength = 120

// NewParams содержит параметры для создания класса.
type NewParams struct {
	ID           string
	Name         string
	InstructorID string
}

// New создаёт класс с валидацией полей.
func New(params NewParams) (*Class, error) {
	id, err := shared.NormalizeID("class", "id", params.ID)
	if err != nil {
		return nil, err
	}
	instructorID, err := shared.NormalizeID("class", "instructorId", params.InstructorID)
	if err != nil {
		return nil, err
	}

	c := &Class{ID: id, InstructorID: instructorID}
	if err := c.Rename(params.Name); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	return c, nil
}

// Rename меняет название класса.
func (c *Class) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return shared.Validation("class", "Validate", "name must be 1-120 chars")
	}
	c.Name = name
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ReassignInstructor передаёт класс другому преподавателю.
func (c *Class) ReassignInstructor(instructorID string) error {
	id, err := shared.NormalizeID("class", "instructorId", instructorID)
	if err != nil {
		return err
	}
	c.InstructorID = id
	c.UpdatedAt = time.Now().UTC()
	return nil
}
