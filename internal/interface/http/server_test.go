package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/avalia-hub/avalia-hub/internal/application/aggregate"
	"github.com/avalia-hub/avalia-hub/internal/application/command"
	"github.com/avalia-hub/avalia-hub/internal/application/query"
	"github.com/avalia-hub/avalia-hub/internal/application/saga"
	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/infrastructure/export"
	"github.com/avalia-hub/avalia-hub/internal/infrastructure/persistence/memory"
	"github.com/avalia-hub/avalia-hub/pkg/logger"
)

var errInjected = errors.New("injected store failure")

// switchablePurger fails authored-evaluation deletes while broken is set.
type switchablePurger struct {
	*memory.EvaluationRepository

	mu     sync.Mutex
	broken bool
}

func (p *switchablePurger) set(broken bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broken = broken
}

func (p *switchablePurger) DeleteByEvaluator(ctx context.Context, ids []string, studentID string) ([]string, error) {
	p.mu.Lock()
	broken := p.broken
	p.mu.Unlock()
	if broken {
		return nil, shared.StoreFailure("evaluation", "DeleteByEvaluator", errInjected)
	}
	return p.EvaluationRepository.DeleteByEvaluator(ctx, ids, studentID)
}

type apiEnv struct {
	server *Server
	purger *switchablePurger
}

func newAPIEnv(t *testing.T, checks map[string]HealthChecker) *apiEnv {
	t.Helper()
	db := memory.NewDB()
	students := memory.NewStudentRepository(db)
	classes := memory.NewClassRepository(db)
	assignments := memory.NewAssignmentRepository(db)
	evaluations := memory.NewEvaluationRepository(db)
	purger := &switchablePurger{EvaluationRepository: evaluations}

	maintainer := aggregate.NewMaintainer(assignments, evaluations, nil)
	cascade := saga.NewRosterCascade(classes, students, assignments, purger, maintainer,
		saga.NewMemoryCursorStore(), saga.DefaultCascadeConfig(), nil)
	ids := command.UUIDGenerator{}

	cfg := DefaultConfig()
	cfg.DisableRequestLogs = true
	server := NewServer(cfg, Dependencies{
		Evaluations: command.NewEvaluationHandler(evaluations, assignments, students, maintainer, ids,
			command.DefaultEvaluationConfig(), nil),
		Assignments:     command.NewAssignmentHandler(assignments, ids),
		Classes:         command.NewClassHandler(classes, students, cascade, ids, nil),
		Students:        command.NewStudentHandler(students, evaluations, cascade, maintainer, ids, nil),
		GetAssignment:   query.NewGetAssignmentHandler(assignments, classes, students, evaluations),
		ListAssignments: query.NewListAssignmentsByClassHandler(assignments, classes, maintainer, grading.StrategySimpleMedia),
		GradeReport:     query.NewGradeReportHandler(assignments, students, evaluations),
		ListEvaluations: query.NewListEvaluationsHandler(assignments, evaluations),
		ClassQueries:    query.NewClassQueries(classes, students),
		StudentQueries:  query.NewStudentQueries(students),
		HealthChecks:    checks,
		Logger:          logger.Discard(),
	})

	env := &apiEnv{server: server, purger: purger}
	env.seed(t)
	return env
}

func (env *apiEnv) seed(t *testing.T) {
	t.Helper()
	env.mustDo(t, http.MethodPost, "/classes/create", `{"id":"c1","name":"Turma A","instructorId":"prof"}`, http.StatusCreated)
	for _, body := range []string{
		`{"id":"s1","name":"Ana","email":"ana@example.com","classId":"c1"}`,
		`{"id":"s2","name":"Bruno","email":"bruno@example.com","classId":"c1"}`,
		`{"id":"s3","name":"Carla","email":"carla@example.com","classId":"c1"}`,
	} {
		env.mustDo(t, http.MethodPost, "/students/create", body, http.StatusCreated)
	}
	env.mustDo(t, http.MethodPost, "/assignments/create",
		`{"id":"a1","name":"Essay","classId":"c1","rubric":{"t":[{"name":"x","maxScore":10}]}}`, http.StatusCreated)
}

func (env *apiEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	buf.WriteString(body)
	req := httptest.NewRequest(method, path, &buf)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func (env *apiEnv) mustDo(t *testing.T, method, path, body string, wantCode int) *httptest.ResponseRecorder {
	t.Helper()
	rec := env.do(method, path, body)
	require.Equal(t, wantCode, rec.Code, "%s %s: %s", method, path, rec.Body.String())
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestEvaluationLifecycleKeepsAggregateCurrent(t *testing.T) {
	env := newAPIEnv(t, nil)

	rec := env.mustDo(t, http.MethodPost, "/evaluations/create",
		`{"id":"e1","assignmentId":"a1","evaluatorStudentId":"s2","evaluatedStudentId":"s1","payload":{"t":{"x":7}}}`,
		http.StatusCreated)
	assert.Equal(t, 7.0, decode[evaluationResponse](t, rec).MediaGeral)

	// A payload sent as a JSON string is accepted as well.
	rec = env.mustDo(t, http.MethodPost, "/evaluations/create",
		`{"id":"e2","assignmentId":"a1","evaluatorInstructorId":"prof","evaluatedStudentId":"s1","payload":"{\"t\":{\"x\":9}}"}`,
		http.StatusCreated)
	assert.Equal(t, 8.0, decode[evaluationResponse](t, rec).MediaGeral)

	rec = env.mustDo(t, http.MethodGet, "/assignments/get?id=a1", "", http.StatusOK)
	details := decode[query.AssignmentDetailsDTO](t, rec)
	require.NotNil(t, details.MediaGeral)
	assert.Equal(t, 8.0, *details.MediaGeral)
	assert.Len(t, details.Evaluations, 2)
	require.NotNil(t, details.Class)
	assert.Len(t, details.Class.Roster, 3)

	rec = env.mustDo(t, http.MethodPut, "/evaluations/update?id=e2", `{"payload":{"t":{"x":5}}}`, http.StatusOK)
	assert.Equal(t, 6.0, decode[evaluationResponse](t, rec).MediaGeral)

	rec = env.mustDo(t, http.MethodDelete, "/evaluations/delete?id=e2", "", http.StatusOK)
	assert.Equal(t, 7.0, decode[evaluationResponse](t, rec).MediaGeral)

	rec = env.mustDo(t, http.MethodGet, "/evaluations/list?assignmentId=a1", "", http.StatusOK)
	assert.Len(t, decode[[]query.EvaluationDTO](t, rec), 1)
}

func TestListAssignmentsByClass_StudentView(t *testing.T) {
	env := newAPIEnv(t, nil)
	env.mustDo(t, http.MethodPost, "/evaluations/create",
		`{"assignmentId":"a1","evaluatorStudentId":"s2","evaluatedStudentId":"s1","payload":{"t":{"x":4}}}`,
		http.StatusCreated)
	env.mustDo(t, http.MethodPost, "/evaluations/create",
		`{"assignmentId":"a1","evaluatorStudentId":"s1","evaluatedStudentId":"s2","payload":{"t":{"x":10}}}`,
		http.StatusCreated)

	rec := env.mustDo(t, http.MethodGet, "/assignments/list-by-class?classId=c1&studentId=s1", "", http.StatusOK)
	list := decode[[]query.AssignmentDTO](t, rec)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].MediaGeral)
	assert.Equal(t, 4.0, *list[0].MediaGeral)

	rec = env.mustDo(t, http.MethodGet, "/assignments/list-by-class?classId=c1", "", http.StatusOK)
	list = decode[[]query.AssignmentDTO](t, rec)
	assert.Equal(t, 7.0, *list[0].MediaGeral)

	rec = env.mustDo(t, http.MethodGet, "/assignments/list-by-class", "", http.StatusBadRequest)
	assert.Equal(t, "is required", decode[map[string]string](t, rec)["classId"])
}

func TestErrorMapping(t *testing.T) {
	env := newAPIEnv(t, nil)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
	}{
		{"missing required field", http.MethodPost, "/evaluations/create", `{"assignmentId":"a1","payload":{}}`, http.StatusBadRequest},
		{"both evaluators", http.MethodPost, "/evaluations/create",
			`{"assignmentId":"a1","evaluatorStudentId":"s2","evaluatorInstructorId":"prof","evaluatedStudentId":"s1","payload":{}}`,
			http.StatusBadRequest},
		{"payload is not an object", http.MethodPost, "/evaluations/create",
			`{"assignmentId":"a1","evaluatorStudentId":"s2","evaluatedStudentId":"s1","payload":[1,2]}`,
			http.StatusBadRequest},
		{"unknown assignment", http.MethodGet, "/assignments/get?id=missing", "", http.StatusNotFound},
		{"missing id", http.MethodGet, "/assignments/get", "", http.StatusBadRequest},
		{"aggregate is derived", http.MethodPut, "/assignments/update?id=a1", `{"mediaGeral":10}`, http.StatusBadRequest},
		{"invalid email", http.MethodPost, "/students/create", `{"name":"X","email":"nope"}`, http.StatusBadRequest},
		{"duplicate email", http.MethodPost, "/students/create", `{"name":"X","email":"ana@example.com"}`, http.StatusConflict},
		{"malformed json", http.MethodPost, "/classes/create", `{"name":`, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound},
		{"resume unknown run", http.MethodPost, "/classes/resume-cascade?runId=missing", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}

	rec := env.mustDo(t, http.MethodGet, "/assignments/get?id=a1", "", http.StatusOK)
	assert.Nil(t, decode[query.AssignmentDetailsDTO](t, rec).MediaGeral)
}

func TestClassUpdate_RosterCascade(t *testing.T) {
	env := newAPIEnv(t, nil)
	env.mustDo(t, http.MethodPost, "/evaluations/create",
		`{"id":"e1","assignmentId":"a1","evaluatorStudentId":"s2","evaluatedStudentId":"s1","payload":{"t":{"x":6}}}`,
		http.StatusCreated)
	env.mustDo(t, http.MethodPost, "/evaluations/create",
		`{"id":"e2","assignmentId":"a1","evaluatorStudentId":"s3","evaluatedStudentId":"s1","payload":{"t":{"x":2}}}`,
		http.StatusCreated)

	rec := env.mustDo(t, http.MethodPut, "/classes/update?id=c1",
		`{"name":"Turma A1","roster":["s1","s2"]}`, http.StatusOK)
	resp := decode[updateClassResponse](t, rec)
	assert.Equal(t, "Turma A1", resp.Class.Name)
	require.NotNil(t, resp.Cascade)
	assert.Equal(t, []string{"s3"}, resp.Cascade.Removed)

	rec = env.mustDo(t, http.MethodGet, "/evaluations/list?assignmentId=a1", "", http.StatusOK)
	evals := decode[[]query.EvaluationDTO](t, rec)
	require.Len(t, evals, 1)
	assert.Equal(t, "e1", evals[0].ID)

	rec = env.mustDo(t, http.MethodGet, "/students/get?id=s3", "", http.StatusOK)
	assert.Nil(t, decode[query.StudentDTO](t, rec).ClassID)

	rec = env.mustDo(t, http.MethodPost, "/classes/add-student", `{"classId":"c1","studentId":"s3"}`, http.StatusOK)
	student := decode[query.StudentDTO](t, rec)
	require.NotNil(t, student.ClassID)
	assert.Equal(t, "c1", *student.ClassID)
}

func TestRemoveStudent_PartialFailureThenResume(t *testing.T) {
	env := newAPIEnv(t, nil)
	env.mustDo(t, http.MethodPost, "/evaluations/create",
		`{"id":"e1","assignmentId":"a1","evaluatorStudentId":"s2","evaluatedStudentId":"s1","payload":{"t":{"x":6}}}`,
		http.StatusCreated)

	env.purger.set(true)
	rec := env.mustDo(t, http.MethodDelete, "/classes/remove-student?classId=c1&studentId=s2", "", http.StatusConflict)
	body := decode[cascadeErrorBody](t, rec)
	assert.NotEmpty(t, body.RunID)
	assert.Equal(t, "s2", body.StudentID)
	assert.Equal(t, string(saga.StepDeleteAuthored), body.Step)
	assert.Equal(t, []string{"s2"}, body.Remaining)
	assert.Empty(t, body.Completed)
	assert.True(t, body.Retryable)

	env.purger.set(false)
	rec = env.mustDo(t, http.MethodPost, "/classes/resume-cascade?runId="+body.RunID, "", http.StatusOK)
	result := decode[saga.CascadeResult](t, rec)
	assert.Equal(t, []string{"s2"}, result.Removed)

	rec = env.mustDo(t, http.MethodGet, "/assignments/get?id=a1", "", http.StatusOK)
	details := decode[query.AssignmentDetailsDTO](t, rec)
	assert.Empty(t, details.Evaluations)
	require.NotNil(t, details.MediaGeral)
	assert.Equal(t, 0.0, *details.MediaGeral)

	env.mustDo(t, http.MethodPost, "/classes/resume-cascade?runId="+body.RunID, "", http.StatusBadRequest)
}

func TestStudentDelete_CascadesEvaluations(t *testing.T) {
	env := newAPIEnv(t, nil)
	env.mustDo(t, http.MethodPost, "/evaluations/create",
		`{"assignmentId":"a1","evaluatorStudentId":"s3","evaluatedStudentId":"s1","payload":{"t":{"x":2}}}`,
		http.StatusCreated)

	rec := env.mustDo(t, http.MethodDelete, "/students/delete?id=s3", "", http.StatusOK)
	resp := decode[deleteStudentResponse](t, rec)
	assert.Equal(t, "s3", resp.Student.ID)
	assert.Contains(t, resp.Recomputed, "a1")

	env.mustDo(t, http.MethodGet, "/students/get?id=s3", "", http.StatusNotFound)

	rec = env.mustDo(t, http.MethodGet, "/students/list?classId=c1&limit=10", "", http.StatusOK)
	assert.Len(t, decode[[]query.StudentDTO](t, rec), 2)

	env.mustDo(t, http.MethodGet, "/students/list?limit=-1", "", http.StatusBadRequest)
}

func TestGradeReportAndExport(t *testing.T) {
	env := newAPIEnv(t, nil)
	env.mustDo(t, http.MethodPost, "/evaluations/create",
		`{"assignmentId":"a1","evaluatorInstructorId":"prof","evaluatedStudentId":"s1","payload":{"t":{"x":8}},"fileGrades":{"essay.pdf":1.5}}`,
		http.StatusCreated)

	rec := env.mustDo(t, http.MethodGet, "/assignments/report?id=a1", "", http.StatusOK)
	report := decode[query.GradeReportDTO](t, rec)
	require.Len(t, report.Rows, 3)
	assert.Equal(t, "Ana", report.Rows[0].Name)
	assert.Equal(t, 9.5, report.Rows[0].Instructor)

	rec = env.mustDo(t, http.MethodGet, "/assignments/export?id=a1", "", http.StatusOK)
	assert.Equal(t, export.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "grades_Essay_")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	name, err := f.GetCellValue("Grades", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Ana", name)

	env.mustDo(t, http.MethodGet, "/assignments/export?id=missing", "", http.StatusNotFound)
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t, map[string]HealthChecker{
		"store": HealthCheckFunc(func(context.Context) error { return nil }),
	})
	rec := env.mustDo(t, http.MethodGet, "/health", "", http.StatusOK)
	assert.Equal(t, "ok", decode[healthResponse](t, rec).Checks["store"])

	env = newAPIEnv(t, map[string]HealthChecker{
		"redis": HealthCheckFunc(func(context.Context) error { return errInjected }),
	})
	rec = env.mustDo(t, http.MethodGet, "/health", "", http.StatusServiceUnavailable)
	resp := decode[healthResponse](t, rec)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "down", resp.Checks["redis"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newAPIEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = env.do(http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
