// Package memory implements the repositories on process-local maps. It backs
// tests and the API when no DATABASE_URL is configured, and mirrors the
// foreign-key behaviour of the PostgreSQL schema.
package memory

import (
	"sort"
	"strings"
	"sync"

	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/classroom"
	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
)

// DB holds every table behind one lock.
type DB struct {
	mu          sync.RWMutex
	students    map[string]*student.Student
	classes     map[string]*classroom.Class
	assignments map[string]*assignment.Assignment
	evaluations map[string]*evaluation.Evaluation
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{
		students:    make(map[string]*student.Student),
		classes:     make(map[string]*classroom.Class),
		assignments: make(map[string]*assignment.Assignment),
		evaluations: make(map[string]*evaluation.Evaluation),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COPY HELPERS
// Rows never share memory with callers.
// ══════════════════════════════════════════════════════════════════════════════

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyStudent(s *student.Student) *student.Student {
	c := *s
	c.ClassID = copyString(s.ClassID)
	return &c
}

func copyClass(c *classroom.Class) *classroom.Class {
	out := *c
	return &out
}

func copyAssignment(a *assignment.Assignment) *assignment.Assignment {
	out := *a
	if a.Aggregate != nil {
		v := *a.Aggregate
		out.Aggregate = &v
	}
	if a.Dates.Start != nil {
		v := *a.Dates.Start
		out.Dates.Start = &v
	}
	if a.Dates.End != nil {
		v := *a.Dates.End
		out.Dates.End = &v
	}
	out.Rubric = make(assignment.Rubric, len(a.Rubric))
	for tag, criteria := range a.Rubric {
		out.Rubric[tag] = append([]assignment.Criterion(nil), criteria...)
	}
	return &out
}

func copyEvaluation(e *evaluation.Evaluation) *evaluation.Evaluation {
	out := *e
	out.EvaluatorStudentID = copyString(e.EvaluatorStudentID)
	out.EvaluatorInstructorID = copyString(e.EvaluatorInstructorID)
	if e.FileGrades != nil {
		out.FileGrades = make(map[string]float64, len(e.FileGrades))
		for k, v := range e.FileGrades {
			out.FileGrades[k] = v
		}
	}
	return &out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
