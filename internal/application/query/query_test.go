package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalia-hub/avalia-hub/internal/application/aggregate"
	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/classroom"
	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
	"github.com/avalia-hub/avalia-hub/internal/infrastructure/persistence/memory"
)

type queryEnv struct {
	students    *memory.StudentRepository
	classes     *memory.ClassRepository
	assignments *memory.AssignmentRepository
	evaluations *memory.EvaluationRepository
	maintainer  *aggregate.Maintainer
}

func strPtr(s string) *string { return &s }

func newQueryEnv(t *testing.T) *queryEnv {
	t.Helper()
	ctx := context.Background()
	db := memory.NewDB()
	env := &queryEnv{
		students:    memory.NewStudentRepository(db),
		classes:     memory.NewClassRepository(db),
		assignments: memory.NewAssignmentRepository(db),
		evaluations: memory.NewEvaluationRepository(db),
	}
	env.maintainer = aggregate.NewMaintainer(env.assignments, env.evaluations, nil)

	c, err := classroom.New(classroom.NewParams{ID: "c1", Name: "Turma A", InstructorID: "prof"})
	require.NoError(t, err)
	require.NoError(t, env.classes.Create(ctx, c))

	for _, p := range []student.NewParams{
		{ID: "s1", Name: "Ana", Email: "ana@example.com", ClassID: strPtr("c1")},
		{ID: "s2", Name: "Bruno", Email: "bruno@example.com", ClassID: strPtr("c1")},
		{ID: "s3", Name: "Carla", Email: "carla@example.com"},
	} {
		s, err := student.New(p)
		require.NoError(t, err)
		require.NoError(t, env.students.Create(ctx, s))
	}

	a, err := assignment.New(assignment.NewParams{
		ID:      "a1",
		Name:    "Essay",
		ClassID: "c1",
		Rubric: assignment.Rubric{
			"t": {{Name: "x", MaxScore: 10}, {Name: "y", MaxScore: 10}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, env.assignments.Create(ctx, a))

	env.add(t, evaluation.NewParams{
		ID: "e1", EvaluatorInstructorID: strPtr("prof"), EvaluatedStudentID: "s1",
		Payload: `{"t":{"x":5,"y":3}}`, FileGrades: map[string]float64{"report.pdf": 2},
	})
	env.add(t, evaluation.NewParams{
		ID: "e2", EvaluatorStudentID: strPtr("s1"), EvaluatedStudentID: "s1",
		Payload: `{"t":{"x":4}}`,
	})
	env.add(t, evaluation.NewParams{
		ID: "e3", EvaluatorStudentID: strPtr("s2"), EvaluatedStudentID: "s1",
		Payload: `{"t":{"x":3,"y":3}}`,
	})
	return env
}

func (env *queryEnv) add(t *testing.T, p evaluation.NewParams) {
	t.Helper()
	p.AssignmentID = "a1"
	e, err := evaluation.New(p)
	require.NoError(t, err)
	require.NoError(t, env.evaluations.Create(context.Background(), e))
}

func TestGetAssignment_Details(t *testing.T) {
	env := newQueryEnv(t)
	h := NewGetAssignmentHandler(env.assignments, env.classes, env.students, env.evaluations)

	dto, err := h.Handle(context.Background(), GetAssignmentQuery{ID: "a1"})
	require.NoError(t, err)

	assert.Equal(t, "Essay", dto.Name)
	assert.Nil(t, dto.MediaGeral)
	require.NotNil(t, dto.Class)
	assert.Equal(t, "Turma A", dto.Class.Name)
	require.Len(t, dto.Class.Roster, 2)
	assert.Equal(t, "s1", dto.Class.Roster[0].ID)
	require.Len(t, dto.Evaluations, 3)
	assert.Equal(t, grading.SheetInstructor, dto.Evaluations[0].Kind)
	assert.Equal(t, 4.0, dto.Evaluations[0].Score)
}

func TestGetAssignment_NotFound(t *testing.T) {
	env := newQueryEnv(t)
	h := NewGetAssignmentHandler(env.assignments, env.classes, env.students, env.evaluations)

	_, err := h.Handle(context.Background(), GetAssignmentQuery{ID: "missing"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(context.Background(), GetAssignmentQuery{})
	assert.True(t, shared.IsValidation(err))
}

func TestListAssignmentsByClass_StudentAverage(t *testing.T) {
	env := newQueryEnv(t)
	ctx := context.Background()
	h := NewListAssignmentsByClassHandler(env.assignments, env.classes, env.maintainer, grading.StrategySimpleMedia)

	_, err := env.maintainer.Recompute(ctx, "a1", grading.StrategySimpleMedia)
	require.NoError(t, err)

	all, err := h.Handle(ctx, ListAssignmentsByClassQuery{ClassID: "c1"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].MediaGeral)
	assert.InDelta(t, 3.67, *all[0].MediaGeral, 0.001)

	mine, err := h.Handle(ctx, ListAssignmentsByClassQuery{ClassID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	require.NotNil(t, mine[0].MediaGeral)
	assert.InDelta(t, 3.67, *mine[0].MediaGeral, 0.001)

	// No evaluations is reported as null, not as zero.
	none, err := h.Handle(ctx, ListAssignmentsByClassQuery{ClassID: "c1", StudentID: "s2"})
	require.NoError(t, err)
	assert.Nil(t, none[0].MediaGeral)

	_, err = h.Handle(ctx, ListAssignmentsByClassQuery{ClassID: "missing"})
	assert.ErrorIs(t, err, shared.ErrClassNotFound)
}

func TestGradeReport(t *testing.T) {
	env := newQueryEnv(t)
	h := NewGradeReportHandler(env.assignments, env.students, env.evaluations)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	report, err := h.Handle(context.Background(), GradeReportQuery{AssignmentID: "a1"})
	require.NoError(t, err)

	assert.Equal(t, 20.0, report.MaxTotal)
	assert.Equal(t, fixed, report.GeneratedAt)
	require.Len(t, report.Rows, 2)

	ana := report.Rows[0]
	assert.Equal(t, "Ana", ana.Name)
	assert.Equal(t, 10.0, ana.Instructor)
	assert.Equal(t, 4.0, ana.Self)
	assert.Equal(t, 6.0, ana.Peers)
	assert.Equal(t, 1, ana.PeerCount)
	assert.Equal(t, 20.0, ana.Total)

	bruno := report.Rows[1]
	assert.Equal(t, "s2", bruno.StudentID)
	assert.Equal(t, 0.0, bruno.Total)
}

func TestGradeReport_IncludesStudentsOffRoster(t *testing.T) {
	env := newQueryEnv(t)
	env.add(t, evaluation.NewParams{
		ID: "e4", EvaluatorStudentID: strPtr("s2"), EvaluatedStudentID: "s3",
		Payload: `{"t":{"x":7}}`,
	})
	h := NewGradeReportHandler(env.assignments, env.students, env.evaluations)

	report, err := h.Handle(context.Background(), GradeReportQuery{AssignmentID: "a1"})
	require.NoError(t, err)
	require.Len(t, report.Rows, 3)
	assert.Equal(t, "Carla", report.Rows[2].Name)
	assert.Equal(t, 7.0, report.Rows[2].Peers)
}

func TestClassQueries(t *testing.T) {
	env := newQueryEnv(t)
	h := NewClassQueries(env.classes, env.students)
	ctx := context.Background()

	list, err := h.List(ctx, ListClassesQuery{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Roster)

	c, err := h.Get(ctx, GetClassQuery{ID: "c1"})
	require.NoError(t, err)
	assert.Len(t, c.Roster, 2)

	_, err = h.Get(ctx, GetClassQuery{ID: "missing"})
	assert.ErrorIs(t, err, shared.ErrClassNotFound)
}

func TestStudentQueries(t *testing.T) {
	env := newQueryEnv(t)
	h := NewStudentQueries(env.students)
	ctx := context.Background()

	all, err := h.List(ctx, ListStudentsQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	inClass, err := h.List(ctx, ListStudentsQuery{ClassID: "c1"})
	require.NoError(t, err)
	assert.Len(t, inClass, 2)

	free, err := h.List(ctx, ListStudentsQuery{Unassigned: true})
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.Equal(t, "s3", free[0].ID)

	found, err := h.List(ctx, ListStudentsQuery{Query: "BRU"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "s2", found[0].ID)

	paged, err := h.List(ctx, ListStudentsQuery{Page: shared.Page{Limit: 1, Offset: 1}})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "s2", paged[0].ID)

	_, err = h.List(ctx, ListStudentsQuery{ClassID: "c1", Unassigned: true})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Get(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestListEvaluations(t *testing.T) {
	env := newQueryEnv(t)
	h := NewListEvaluationsHandler(env.assignments, env.evaluations)

	list, err := h.Handle(context.Background(), "a1")
	require.NoError(t, err)
	assert.Len(t, list, 3)

	_, err = h.Handle(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrAssignmentNotFound)
}
