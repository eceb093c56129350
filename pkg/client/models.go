package client

import "time"

// Student is a student record.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ClassID   *string   `json:"classId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Class is a class. Roster is only filled by ClassService.Get.
type Class struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	InstructorID string    `json:"instructorId"`
	Roster       []Student `json:"roster,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Criterion is one graded item of a rubric tag.
type Criterion struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	MaxScore    float64 `json:"maxScore"`
}

// Rubric maps a tag to its criteria.
type Rubric map[string][]Criterion

// Assignment is an assignment. MediaGeral is nil until the first evaluation
// is aggregated; in a per-student list it is that student's own average.
type Assignment struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	ClassID    string     `json:"classId"`
	Rubric     Rubric     `json:"rubric"`
	StartDate  *time.Time `json:"startDate"`
	EndDate    *time.Time `json:"endDate"`
	MediaGeral *float64   `json:"mediaGeral"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// AssignmentDetails is an assignment with its class, roster and evaluations.
type AssignmentDetails struct {
	Assignment
	Class       *Class       `json:"class"`
	Evaluations []Evaluation `json:"evaluations"`
}

// Evaluation is one grade sheet.
type Evaluation struct {
	ID                    string             `json:"id"`
	AssignmentID          string             `json:"assignmentId"`
	EvaluatorStudentID    *string            `json:"evaluatorStudentId"`
	EvaluatorInstructorID *string            `json:"evaluatorInstructorId"`
	EvaluatedStudentID    string             `json:"evaluatedStudentId"`
	Kind                  string             `json:"kind"`
	Payload               string             `json:"payload"`
	FileGrades            map[string]float64 `json:"fileGrades,omitempty"`
	Score                 float64            `json:"score"`
	Malformed             bool               `json:"malformed,omitempty"`
	CreatedAt             time.Time          `json:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt"`
}

// EvaluationResult is the answer to an evaluation mutation: the sheet and
// the recomputed aggregate of its assignment.
type EvaluationResult struct {
	Evaluation   *Evaluation `json:"evaluation"`
	AssignmentID string      `json:"assignmentId"`
	MediaGeral   float64     `json:"mediaGeral"`
}

// CascadeResult reports a finished roster cascade.
type CascadeResult struct {
	RunID       string    `json:"runId,omitempty"`
	ClassID     string    `json:"classId"`
	Removed     []string  `json:"removed"`
	Added       []string  `json:"added"`
	Recomputed  []string  `json:"recomputed"`
	CompletedAt time.Time `json:"completedAt"`
}

// CascadeFailure is the progress of a roster cascade that stopped part way.
// A retryable run is continued with ClassService.ResumeCascade.
type CascadeFailure struct {
	Error     string   `json:"error"`
	RunID     string   `json:"runId"`
	ClassID   string   `json:"classId"`
	StudentID string   `json:"studentId"`
	Step      string   `json:"step"`
	Completed []string `json:"completed"`
	Remaining []string `json:"remaining"`
	Retryable bool     `json:"retryable"`
}

// UpdateClassResult is the updated class and, when the roster was replaced,
// the cascade that applied it.
type UpdateClassResult struct {
	Class   Class          `json:"class"`
	Cascade *CascadeResult `json:"cascade,omitempty"`
}

// DeleteStudentResult is the deleted student and the assignments whose
// aggregates were recomputed.
type DeleteStudentResult struct {
	Student    Student  `json:"student"`
	Recomputed []string `json:"recomputed"`
}

// GradeRow is one student's line of a grade report.
type GradeRow struct {
	StudentID  string  `json:"studentId"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Instructor float64 `json:"professor"`
	Self       float64 `json:"auto"`
	Peers      float64 `json:"peers"`
	PeerCount  int     `json:"peerCount"`
	Total      float64 `json:"total"`
	Malformed  int     `json:"malformed,omitempty"`
}

// GradeReport is the per-student breakdown of an assignment.
type GradeReport struct {
	Assignment  Assignment `json:"assignment"`
	MaxTotal    float64    `json:"maxTotal"`
	Rows        []GradeRow `json:"rows"`
	GeneratedAt time.Time  `json:"generatedAt"`
}
