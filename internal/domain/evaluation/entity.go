// Package evaluation содержит доменную модель оценки: кто оценил, кого,
// по какому заданию и с какими баллами.
package evaluation

import (
	"strings"
	"time"

	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// Evaluation - оценка одного студента по заданию. Оценивающий - ровно один
// из двух: студент (взаимная или самооценка) или преподаватель.
type Evaluation struct {
	ID                    string
	AssignmentID          string
	EvaluatorStudentID    *string
	EvaluatorInstructorID *string
	EvaluatedStudentID    string

	// Payload - баллы в виде JSON-текста: тег -> критерий -> число.
	Payload string

	// FileGrades - баллы за файлы (имя файла -> балл). Учитываются только
	// в итоговой разбивке преподавательской оценки.
	FileGrades map[string]float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewParams содержит параметры для создания оценки.
type NewParams struct {
	ID                    string
	AssignmentID          string
	EvaluatorStudentID    *string
	EvaluatorInstructorID *string
	EvaluatedStudentID    string
	Payload               string
	FileGrades            map[string]float64
}

// New создаёт оценку с валидацией оценивающего и формы payload.
func New(params NewParams) (*Evaluation, error) {
	id, err := shared.NormalizeID("evaluation", "id", params.ID)
	if err != nil {
		return nil, err
	}
	assignmentID, err := shared.NormalizeID("evaluation", "assignmentId", params.AssignmentID)
	if err != nil {
		return nil, err
	}
	evaluatedID, err := shared.NormalizeID("evaluation", "evaluatedStudentId", params.EvaluatedStudentID)
	if err != nil {
		return nil, err
	}

	e := &Evaluation{
		ID:                 id,
		AssignmentID:       assignmentID,
		EvaluatedStudentID: evaluatedID,
	}
	if err := e.setEvaluator(params.EvaluatorStudentID, params.EvaluatorInstructorID); err != nil {
		return nil, err
	}
	if err := e.Regrade(params.Payload, params.FileGrades); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	return e, nil
}

func (e *Evaluation) setEvaluator(studentID, instructorID *string) error {
	studentID = trimmed(studentID)
	instructorID = trimmed(instructorID)
	if (studentID == nil) == (instructorID == nil) {
		return shared.ErrEvaluatorAmbiguous
	}
	e.EvaluatorStudentID = studentID
	e.EvaluatorInstructorID = instructorID
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Regrade заменяет баллы. Payload должен быть JSON-объектом; отдельные
// нечисловые листья допустимы и пропускаются при агрегации.
func (e *Evaluation) Regrade(payload string, fileGrades map[string]float64) error {
	if strings.TrimSpace(payload) == "" {
		return shared.ErrPayloadRequired
	}
	if !grading.IsObject(payload) {
		return shared.ErrPayloadNotObject
	}
	e.Payload = payload
	e.FileGrades = fileGrades
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// Kind классифицирует оценку относительно оцениваемого студента.
func (e *Evaluation) Kind() grading.SheetKind {
	switch {
	case e.EvaluatorInstructorID != nil:
		return grading.SheetInstructor
	case *e.EvaluatorStudentID == e.EvaluatedStudentID:
		return grading.SheetSelf
	default:
		return grading.SheetPeer
	}
}

// EvaluatorID возвращает ID оценивающего независимо от его роли.
func (e *Evaluation) EvaluatorID() string {
	if e.EvaluatorInstructorID != nil {
		return *e.EvaluatorInstructorID
	}
	return *e.EvaluatorStudentID
}

// Involves проверяет, участвует ли студент в оценке как оценивающий или
// как оцениваемый.
func (e *Evaluation) Involves(studentID string) bool {
	if e.EvaluatedStudentID == studentID {
		return true
	}
	return e.EvaluatorStudentID != nil && *e.EvaluatorStudentID == studentID
}

// Sheet переводит оценку во входные данные итоговой разбивки.
func (e *Evaluation) Sheet() grading.Sheet {
	return grading.Sheet{
		Kind:        e.Kind(),
		EvaluatorID: e.EvaluatorID(),
		EvaluatedID: e.EvaluatedStudentID,
		Payload:     e.Payload,
		FileGrades:  e.FileGrades,
	}
}
