package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avalia-hub/avalia-hub/pkg/circuitbreaker"
	"github.com/avalia-hub/avalia-hub/pkg/client/cache"
	"github.com/avalia-hub/avalia-hub/pkg/retry"
)

// fakeAPI serves canned answers and counts requests per path.
type fakeAPI struct {
	mu       sync.Mutex
	hits     map[string]int
	handlers map[string]http.HandlerFunc
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{hits: map[string]int{}, handlers: map[string]http.HandlerFunc{}}
}

func (f *fakeAPI) handle(method, path string, h http.HandlerFunc) {
	f.handlers[method+" "+path] = h
}

func (f *fakeAPI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	h, ok := f.handlers[r.Method+" "+r.URL.Path]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
		return
	}
	h(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func reply(status int, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) { writeJSON(w, status, v) }
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	opts = append([]Option{
		WithRetrier(retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(time.Millisecond),
			retry.WithJitter(0),
			retry.WithRetryIf(isTransient),
		)),
	}, opts...)
	c, err := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, opts...)
	require.NoError(t, err)
	return c
}

var classC1 = Class{ID: "c1", Name: "Turma A", InstructorID: "prof"}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "localhost"})
	assert.Error(t, err)

	c, err := New(Config{})
	require.NoError(t, err)
	assert.NotNil(t, c.Cache())
}

func TestGet_ServedFromCacheWhileFresh(t *testing.T) {
	api := newFakeAPI()
	api.handle(http.MethodGet, "/classes/get", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c1", r.URL.Query().Get("id"))
		writeJSON(w, http.StatusOK, classC1)
	})
	c := newTestClient(t, api)
	ctx := context.Background()

	first, err := c.Classes.Get(ctx, "c1")
	require.NoError(t, err)
	second, err := c.Classes.Get(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, "Turma A", first.Name)
	assert.Same(t, first, second)
	assert.Equal(t, 1, api.count("/classes/get"))
}

func TestGet_ConcurrentReadsShareOneRequest(t *testing.T) {
	api := newFakeAPI()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	api.handle(http.MethodGet, "/students/get", func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		writeJSON(w, http.StatusOK, Student{ID: "s1", Name: "Ana"})
	})
	c := newTestClient(t, api)
	ctx := context.Background()

	var wg sync.WaitGroup
	var failures atomic.Int32
	read := func() {
		defer wg.Done()
		s, err := c.Students.Get(ctx, "s1")
		if err != nil || s.Name != "Ana" {
			failures.Add(1)
		}
	}

	wg.Add(1)
	go read()
	<-entered
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go read()
	}
	require.Eventually(t, func() bool {
		return c.Cache().Waiters(cache.StudentKey("s1")) == 4
	}, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, 1, api.count("/students/get"))
}

func TestMutation_InvalidatesDependentReads(t *testing.T) {
	api := newFakeAPI()
	api.handle(http.MethodGet, "/classes/get", reply(http.StatusOK, classC1))
	api.handle(http.MethodGet, "/students/get", reply(http.StatusOK, Student{ID: "s9"}))
	api.handle(http.MethodGet, "/assignments/get", reply(http.StatusOK, AssignmentDetails{
		Assignment: Assignment{ID: "a1", ClassID: "c1"},
	}))
	api.handle(http.MethodPost, "/classes/add-student", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "c1", body["classId"])
		classID := body["classId"]
		writeJSON(w, http.StatusOK, Student{ID: body["studentId"], ClassID: &classID})
	})
	c := newTestClient(t, api)
	ctx := context.Background()

	_, err := c.Classes.Get(ctx, "c1")
	require.NoError(t, err)
	_, err = c.Students.Get(ctx, "s9")
	require.NoError(t, err)
	_, err = c.Assignments.Get(ctx, "a1")
	require.NoError(t, err)

	_, err = c.Classes.AddStudent(ctx, "c1", "s9")
	require.NoError(t, err)

	assert.False(t, c.Cache().IsFresh(cache.ClassKey("c1")))
	assert.False(t, c.Cache().IsFresh(cache.StudentKey("s9")))
	assert.True(t, c.Cache().IsFresh(cache.AssignmentKey("a1")), "adding a student changes no aggregate")

	_, err = c.Classes.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("/classes/get"))
}

func TestEvaluationCreate_InvalidatesAssignmentViews(t *testing.T) {
	api := newFakeAPI()
	api.handle(http.MethodGet, "/assignments/get", reply(http.StatusOK, AssignmentDetails{
		Assignment: Assignment{ID: "a1", ClassID: "c1"},
	}))
	api.handle(http.MethodGet, "/assignments/list-by-class", reply(http.StatusOK, []Assignment{{ID: "a1", ClassID: "c1"}}))
	api.handle(http.MethodGet, "/assignments/report", reply(http.StatusOK, GradeReport{MaxTotal: 10}))
	api.handle(http.MethodPost, "/evaluations/create", func(w http.ResponseWriter, r *http.Request) {
		var in CreateEvaluationInput
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.JSONEq(t, `{"t":{"x":7}}`, string(in.Payload))
		writeJSON(w, http.StatusCreated, EvaluationResult{
			Evaluation:   &Evaluation{ID: "e1", AssignmentID: "a1"},
			AssignmentID: "a1",
			MediaGeral:   7,
		})
	})
	api.handle(http.MethodGet, "/classes/get", reply(http.StatusOK, classC1))
	c := newTestClient(t, api)
	ctx := context.Background()

	_, err := c.Assignments.Get(ctx, "a1")
	require.NoError(t, err)
	_, err = c.Assignments.ListByClass(ctx, "c1", "s1")
	require.NoError(t, err)
	_, err = c.Assignments.Report(ctx, "a1")
	require.NoError(t, err)
	_, err = c.Classes.Get(ctx, "c1")
	require.NoError(t, err)

	instructor := "prof"
	res, err := c.Evaluations.Create(ctx, CreateEvaluationInput{
		AssignmentID:          "a1",
		EvaluatorInstructorID: &instructor,
		EvaluatedStudentID:    "s1",
		Payload:               json.RawMessage(`{"t":{"x":7}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, res.MediaGeral)

	cc := c.Cache()
	assert.False(t, cc.IsFresh(cache.AssignmentKey("a1")))
	assert.False(t, cc.IsFresh(cache.AssignmentsByClassKey("c1", "s1")))
	assert.False(t, cc.IsFresh(cache.GradeReportKey("a1")))
	assert.True(t, cc.IsFresh(cache.ClassKey("c1")))
}

func TestRemoveStudent_PartialCascadeStillInvalidates(t *testing.T) {
	api := newFakeAPI()
	api.handle(http.MethodGet, "/classes/get", reply(http.StatusOK, classC1))
	api.handle(http.MethodDelete, "/classes/remove-student", reply(http.StatusConflict, CascadeFailure{
		Error:     "roster cascade stopped",
		RunID:     "run-1",
		ClassID:   "c1",
		StudentID: "s1",
		Step:      "delete_authored",
		Remaining: []string{"s1"},
		Retryable: true,
	}))
	c := newTestClient(t, api)
	ctx := context.Background()

	_, err := c.Classes.Get(ctx, "c1")
	require.NoError(t, err)

	_, err = c.Classes.RemoveStudent(ctx, "c1", "s1")
	require.Error(t, err)

	failure, ok := PartialCascade(err)
	require.True(t, ok)
	assert.Equal(t, "run-1", failure.RunID)
	assert.True(t, failure.Retryable)
	assert.Equal(t, []string{"s1"}, failure.Remaining)
	assert.False(t, c.Cache().IsFresh(cache.ClassKey("c1")))
}

func TestClassUpdate_RosterReplaceRefreshesCachedStudents(t *testing.T) {
	api := newFakeAPI()
	var mu sync.Mutex
	classID := "c1"
	api.handle(http.MethodGet, "/students/get", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		s := Student{ID: "s1", Name: "Ana"}
		if classID != "" {
			id := classID
			s.ClassID = &id
		}
		writeJSON(w, http.StatusOK, s)
	})
	api.handle(http.MethodPut, "/classes/update", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		classID = ""
		mu.Unlock()
		writeJSON(w, http.StatusOK, UpdateClassResult{
			Class:   classC1,
			Cascade: &CascadeResult{RunID: "run-1", ClassID: "c1", Removed: []string{"s1"}},
		})
	})
	c := newTestClient(t, api)
	ctx := context.Background()

	before, err := c.Students.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, before.ClassID)

	_, err = c.Classes.Update(ctx, "c1", UpdateClassInput{Roster: &[]string{}})
	require.NoError(t, err)

	after, err := c.Students.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, after.ClassID)
	assert.Equal(t, 2, api.count("/students/get"))
}

func TestRemoveStudent_PlainErrorKeepsCache(t *testing.T) {
	api := newFakeAPI()
	api.handle(http.MethodGet, "/classes/get", reply(http.StatusOK, classC1))
	api.handle(http.MethodDelete, "/classes/remove-student", reply(http.StatusBadRequest,
		map[string]string{"error": "student s1 is not on the roster of c1"}))
	c := newTestClient(t, api)
	ctx := context.Background()

	_, err := c.Classes.Get(ctx, "c1")
	require.NoError(t, err)

	_, err = c.Classes.RemoveStudent(ctx, "c1", "s1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "not on the roster")
	assert.True(t, c.Cache().IsFresh(cache.ClassKey("c1")))
}

func TestRead_RetriesTransientFailures(t *testing.T) {
	api := newFakeAPI()
	var calls atomic.Int32
	api.handle(http.MethodGet, "/classes/list", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, []Class{classC1})
	})
	c := newTestClient(t, api)

	list, err := c.Classes.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBreaker_StopsHammeringAFailingServer(t *testing.T) {
	api := newFakeAPI()
	api.handle(http.MethodGet, "/classes/get", reply(http.StatusServiceUnavailable, map[string]string{"error": "down"}))
	api.handle(http.MethodGet, "/students/get", reply(http.StatusNotFound, map[string]string{"error": "student not found"}))

	breaker := circuitbreaker.New("test",
		circuitbreaker.WithFailureThreshold(2),
		circuitbreaker.WithCooldown(time.Hour),
		circuitbreaker.WithIsFailure(isTransient),
	)
	c := newTestClient(t, api, WithBreaker(breaker))

	// 404s are answers, not outages.
	for i := 0; i < 3; i++ {
		_, err := c.Students.Get(context.Background(), "ghost")
		require.True(t, IsNotFound(err))
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())

	_, err := c.Classes.Get(context.Background(), "c1")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 2, api.count("/classes/get"))
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	_, err = c.Classes.Get(context.Background(), "c1")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 2, api.count("/classes/get"))
}

func TestRead_NotFoundIsNotRetried(t *testing.T) {
	api := newFakeAPI()
	api.handle(http.MethodGet, "/students/get", reply(http.StatusNotFound, map[string]string{"error": "student not found"}))
	c := newTestClient(t, api)

	_, err := c.Students.Get(context.Background(), "ghost")
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 1, api.count("/students/get"))
	assert.False(t, c.Cache().IsFresh(cache.StudentKey("ghost")))
}

func TestValidationErrorFields(t *testing.T) {
	api := newFakeAPI()
	api.handle(http.MethodPost, "/students/create", reply(http.StatusBadRequest, map[string]string{
		"email": "must be a valid email",
	}))
	c := newTestClient(t, api)

	_, err := c.Students.Create(context.Background(), CreateStudentInput{Name: "Ana", Email: "nope"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "must be a valid email", apiErr.Fields["email"])
}

func TestStudentList_FilterKeys(t *testing.T) {
	api := newFakeAPI()
	api.handle(http.MethodGet, "/students/list", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("unassigned") == "true" {
			writeJSON(w, http.StatusOK, []Student{{ID: "s3"}})
			return
		}
		writeJSON(w, http.StatusOK, []Student{{ID: "s1"}, {ID: "s2"}, {ID: "s3"}})
	})
	c := newTestClient(t, api)
	ctx := context.Background()

	all, err := c.Students.List(ctx, StudentFilter{})
	require.NoError(t, err)
	free, err := c.Students.List(ctx, StudentFilter{Unassigned: true})
	require.NoError(t, err)

	assert.Len(t, all, 3)
	assert.Len(t, free, 1)
	assert.Equal(t, 2, api.count("/students/list"))
}

func TestEvaluationBoard(t *testing.T) {
	api := newFakeAPI()
	api.handle(http.MethodGet, "/assignments/get", reply(http.StatusOK, AssignmentDetails{
		Assignment: Assignment{ID: "a1", ClassID: "c1", Name: "Essay"},
	}))
	api.handle(http.MethodGet, "/classes/get", reply(http.StatusOK, classC1))
	api.handle(http.MethodGet, "/evaluations/list", reply(http.StatusOK, []Evaluation{{ID: "e1"}, {ID: "e2"}}))
	api.handle(http.MethodGet, "/assignments/report", reply(http.StatusOK, GradeReport{
		MaxTotal: 20,
		Rows:     []GradeRow{{StudentID: "s1", Instructor: 10, Self: 4, Peers: 6, PeerCount: 1, Total: 20}},
	}))
	c := newTestClient(t, api)

	board, err := c.EvaluationBoard(context.Background(), "c1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Essay", board.Assignment.Name)
	assert.Equal(t, "Turma A", board.Class.Name)
	assert.Len(t, board.Evaluations, 2)
	require.Len(t, board.Report.Rows, 1)
	assert.Equal(t, 10.0, board.Report.Rows[0].Instructor)

	_, err = c.EvaluationBoard(context.Background(), "other", "a1")
	assert.Error(t, err)
}

func TestEvaluationBoard_FailsWithFirstError(t *testing.T) {
	api := newFakeAPI()
	api.handle(http.MethodGet, "/assignments/get", reply(http.StatusOK, AssignmentDetails{
		Assignment: Assignment{ID: "a1", ClassID: "c1"},
	}))
	api.handle(http.MethodGet, "/classes/get", reply(http.StatusOK, classC1))
	api.handle(http.MethodGet, "/evaluations/list", reply(http.StatusOK, []Evaluation{}))
	api.handle(http.MethodGet, "/assignments/report", reply(http.StatusNotFound, map[string]string{"error": "assignment not found"}))
	c := newTestClient(t, api)

	_, err := c.EvaluationBoard(context.Background(), "c1", "a1")
	assert.True(t, IsNotFound(err))
}

func TestExport(t *testing.T) {
	api := newFakeAPI()
	api.handle(http.MethodGet, "/assignments/export", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="grades_Essay_20260301.xlsx"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("PK-sheet"))
	})
	c := newTestClient(t, api)

	var buf bytes.Buffer
	name, err := c.Assignments.Export(context.Background(), "a1", &buf)
	require.NoError(t, err)
	assert.Equal(t, "grades_Essay_20260301.xlsx", name)
	assert.Equal(t, "PK-sheet", buf.String())
}
