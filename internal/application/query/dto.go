// Package query contains read operations (CQRS - Queries).
package query

import (
	"time"

	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/classroom"
	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTO
// Представления сущностей для чтения. Поля в camelCase, как их ждёт клиент.
// ══════════════════════════════════════════════════════════════════════════════

// StudentDTO - студент.
type StudentDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ClassID   *string   `json:"classId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ClassDTO - класс. Roster заполняется только при запросе одного класса.
type ClassDTO struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	InstructorID string       `json:"instructorId"`
	Roster       []StudentDTO `json:"roster,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// AssignmentDTO - задание. MediaGeral - сохранённый агрегат или, в выборке
// для студента, его личное среднее.
type AssignmentDTO struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	ClassID    string            `json:"classId"`
	Rubric     assignment.Rubric `json:"rubric"`
	StartDate  *time.Time        `json:"startDate"`
	EndDate    *time.Time        `json:"endDate"`
	MediaGeral *float64          `json:"mediaGeral"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// EvaluationDTO - оценка. Score - оценка по simple_media; для
// некорректного payload равна 0 и Malformed = true.
type EvaluationDTO struct {
	ID                    string             `json:"id"`
	AssignmentID          string             `json:"assignmentId"`
	EvaluatorStudentID    *string            `json:"evaluatorStudentId"`
	EvaluatorInstructorID *string            `json:"evaluatorInstructorId"`
	EvaluatedStudentID    string             `json:"evaluatedStudentId"`
	Kind                  grading.SheetKind  `json:"kind"`
	Payload               string             `json:"payload"`
	FileGrades            map[string]float64 `json:"fileGrades,omitempty"`
	Score                 float64            `json:"score"`
	Malformed             bool               `json:"malformed,omitempty"`
	CreatedAt             time.Time          `json:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt"`
}

// AssignmentDetailsDTO - задание вместе с классом, ростером и оценками.
type AssignmentDetailsDTO struct {
	AssignmentDTO
	Class       *ClassDTO       `json:"class"`
	Evaluations []EvaluationDTO `json:"evaluations"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPERS
// ══════════════════════════════════════════════════════════════════════════════

// NewStudentDTO переводит студента в DTO.
func NewStudentDTO(s *student.Student) StudentDTO {
	return StudentDTO{
		ID:        s.ID,
		Name:      s.Name,
		Email:     s.Email,
		ClassID:   s.ClassID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// NewClassDTO переводит класс в DTO.
func NewClassDTO(c *classroom.Class) ClassDTO {
	return ClassDTO{
		ID:           c.ID,
		Name:         c.Name,
		InstructorID: c.InstructorID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// NewAssignmentDTO переводит задание в DTO.
func NewAssignmentDTO(a *assignment.Assignment) AssignmentDTO {
	rubric := a.Rubric
	if rubric == nil {
		rubric = assignment.Rubric{}
	}
	return AssignmentDTO{
		ID:         a.ID,
		Name:       a.Name,
		ClassID:    a.ClassID,
		Rubric:     rubric,
		StartDate:  a.Dates.Start,
		EndDate:    a.Dates.End,
		MediaGeral: a.Aggregate,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// NewEvaluationDTO переводит оценку в DTO.
func NewEvaluationDTO(e *evaluation.Evaluation) EvaluationDTO {
	score, err := grading.StrategySimpleMedia.Score(e.Payload)
	return EvaluationDTO{
		ID:                    e.ID,
		AssignmentID:          e.AssignmentID,
		EvaluatorStudentID:    e.EvaluatorStudentID,
		EvaluatorInstructorID: e.EvaluatorInstructorID,
		EvaluatedStudentID:    e.EvaluatedStudentID,
		Kind:                  e.Kind(),
		Payload:               e.Payload,
		FileGrades:            e.FileGrades,
		Score:                 score,
		Malformed:             err != nil,
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
}

func studentDTOs(list []*student.Student) []StudentDTO {
	out := make([]StudentDTO, 0, len(list))
	for _, s := range list {
		out = append(out, NewStudentDTO(s))
	}
	return out
}

func evaluationDTOs(list []*evaluation.Evaluation) []EvaluationDTO {
	out := make([]EvaluationDTO, 0, len(list))
	for _, e := range list {
		out = append(out, NewEvaluationDTO(e))
	}
	return out
}
