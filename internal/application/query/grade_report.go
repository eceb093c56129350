package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADE REPORT QUERY
// Итоговая разбивка по каждому студенту задания: преподаватель, самооценка,
// среднее взаимных оценок и сумма.
// ══════════════════════════════════════════════════════════════════════════════

// GradeReportQuery содержит параметры запроса отчёта.
type GradeReportQuery struct {
	AssignmentID string
}

// GradeReportRow - строка отчёта.
type GradeReportRow struct {
	grading.Breakdown
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GradeReportDTO - отчёт по заданию.
type GradeReportDTO struct {
	Assignment  AssignmentDTO    `json:"assignment"`
	MaxTotal    float64          `json:"maxTotal"`
	Rows        []GradeReportRow `json:"rows"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// GradeReportHandler обрабатывает GradeReportQuery.
type GradeReportHandler struct {
	assignments assignment.Repository
	students    student.Repository
	evaluations evaluation.Repository
	now         func() time.Time
}

// NewGradeReportHandler создаёт обработчик.
func NewGradeReportHandler(
	assignments assignment.Repository,
	students student.Repository,
	evaluations evaluation.Repository,
) *GradeReportHandler {
	return &GradeReportHandler{
		assignments: assignments,
		students:    students,
		evaluations: evaluations,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Handle выполняет запрос. В отчёт попадают студенты ростера и все, кого
// оценивали по заданию, даже если они уже вне класса.
func (h *GradeReportHandler) Handle(ctx context.Context, q GradeReportQuery) (*GradeReportDTO, error) {
	if q.AssignmentID == "" {
		return nil, shared.Validation("assignment", "Report", "id is required")
	}

	a, err := h.assignments.GetByID(ctx, q.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("grade_report: %w", err)
	}
	roster, err := h.students.ListByClass(ctx, a.ClassID)
	if err != nil {
		return nil, fmt.Errorf("grade_report: roster: %w", err)
	}
	evals, err := h.evaluations.ListByAssignment(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("grade_report: evaluations: %w", err)
	}

	sheets := make([]grading.Sheet, 0, len(evals))
	known := make(map[string]*student.Student, len(roster))
	for _, s := range roster {
		known[s.ID] = s
	}
	for _, e := range evals {
		sheets = append(sheets, e.Sheet())
		if _, ok := known[e.EvaluatedStudentID]; ok {
			continue
		}
		s, err := h.students.GetByID(ctx, e.EvaluatedStudentID)
		if err != nil {
			if shared.IsNotFound(err) {
				known[e.EvaluatedStudentID] = nil
				continue
			}
			return nil, fmt.Errorf("grade_report: student: %w", err)
		}
		known[s.ID] = s
	}

	rows := make([]GradeReportRow, 0, len(known))
	for id, s := range known {
		row := GradeReportRow{Breakdown: grading.ComputeBreakdown(id, sheets)}
		if s != nil {
			row.Name = s.Name
			row.Email = s.Email
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].StudentID < rows[j].StudentID
	})

	return &GradeReportDTO{
		Assignment:  NewAssignmentDTO(a),
		MaxTotal:    a.Rubric.MaxTotal(),
		Rows:        rows,
		GeneratedAt: h.now(),
	}, nil
}
