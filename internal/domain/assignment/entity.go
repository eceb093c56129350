// Package assignment содержит доменную модель задания с рубрикой и
// производным агрегатом оценок (mediaGeral).
package assignment

import (
	"strings"
	"time"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Criterion - критерий рубрики. Используется только для интерпретации
// оценок и не участвует в вычислении агрегата.
type Criterion struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	MaxScore    float64 `json:"maxScore"`
}

// Rubric - рубрика задания: тег -> список критериев.
type Rubric map[string][]Criterion

// Validate проверяет теги и критерии рубрики.
func (r Rubric) Validate() error {
	for tag, criteria := range r {
		if strings.TrimSpace(tag) == "" {
			return shared.Validation("assignment", "Validate", "rubric tag cannot be empty")
		}
		for _, c := range criteria {
			if strings.TrimSpace(c.Name) == "" {
				return shared.Validation("assignment", "Validate", "criterion name cannot be empty in tag "+tag)
			}
			if c.MaxScore < 0 {
				return shared.Validation("assignment", "Validate", "criterion maxScore cannot be negative: "+c.Name)
			}
		}
	}
	return nil
}

// MaxTotal - сумма максимальных баллов по всем критериям.
func (r Rubric) MaxTotal() float64 {
	var total float64
	for _, criteria := range r {
		for _, c := range criteria {
			total += c.MaxScore
		}
	}
	return total
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ASSIGNMENT
// ══════════════════════════════════════════════════════════════════════════════

// Assignment - задание класса.
type Assignment struct {
	ID      string
	Name    string
	ClassID string
	Rubric  Rubric
	Dates   shared.DateRange

	// Aggregate - mediaGeral. Производное значение: его пишет только
	// пересчёт агрегата, nil - ещё не вычислялся.
	Aggregate *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MaxNameLength - максимальная длина названия задания.
const MaxNameLength = 200

// NewParams содержит параметры для создания задания.
type NewParams struct {
	ID      string
	Name    string
	ClassID string
	Rubric  Rubric
	Dates   shared.DateRange
}

// New создаёт задание с валидацией полей. Агрегат не задаётся.
func New(params NewParams) (*Assignment, error) {
	id, err := shared.NormalizeID("assignment", "id", params.ID)
	if err != nil {
		return nil, err
	}
	classID, err := shared.NormalizeID("assignment", "classId", params.ClassID)
	if err != nil {
		return nil, err
	}

	a := &Assignment{ID: id, ClassID: classID}
	if err := a.Rename(params.Name); err != nil {
		return nil, err
	}
	if err := a.ChangeRubric(params.Rubric); err != nil {
		return nil, err
	}
	if err := a.Reschedule(params.Dates); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	return a, nil
}

// Rename меняет название задания.
func (a *Assignment) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > MaxNameLength {
		return shared.Validation("assignment", "Validate", "name must be 1-200 chars")
	}
	a.Name = name
	a.touch()
	return nil
}

// ChangeRubric заменяет рубрику.
func (a *Assignment) ChangeRubric(r Rubric) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r == nil {
		r = Rubric{}
	}
	a.Rubric = r
	a.touch()
	return nil
}

// Reschedule меняет даты начала и окончания.
func (a *Assignment) Reschedule(d shared.DateRange) error {
	if !d.IsValid() {
		return shared.ErrInvalidAssignmentDate
	}
	a.Dates = d
	a.touch()
	return nil
}

// AggregateOrZero возвращает агрегат или 0, если он не вычислялся.
func (a *Assignment) AggregateOrZero() float64 {
	if a.Aggregate == nil {
		return 0
	}
	return *a.Aggregate
}

func (a *Assignment) touch() {
	a.UpdatedAt = time.Now().UTC()
}
