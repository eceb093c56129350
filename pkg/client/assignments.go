package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/avalia-hub/avalia-hub/pkg/client/cache"
)

// AssignmentService covers /assignments.
type AssignmentService struct {
	c *Client
}

// CreateAssignmentInput is the body of an assignment creation.
type CreateAssignmentInput struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	ClassID   string     `json:"classId"`
	Rubric    Rubric     `json:"rubric,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// UpdateAssignmentInput changes an assignment. The aggregate is derived by
// the server and cannot be set.
type UpdateAssignmentInput struct {
	Name      *string    `json:"name,omitempty"`
	Rubric    *Rubric    `json:"rubric,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// Get returns an assignment with its class, roster and evaluations.
func (s *AssignmentService) Get(ctx context.Context, id string) (*AssignmentDetails, error) {
	return load[*AssignmentDetails](ctx, s.c, cache.AssignmentKey(id), "/assignments/get", idQuery("id", id))
}

// ListByClass returns the assignments of a class. With a studentID each
// MediaGeral is that student's own average.
func (s *AssignmentService) ListByClass(ctx context.Context, classID, studentID string) ([]Assignment, error) {
	q := idQuery("classId", classID)
	if studentID != "" {
		q.Set("studentId", studentID)
	}
	return load[[]Assignment](ctx, s.c, cache.AssignmentsByClassKey(classID, studentID), "/assignments/list-by-class", q)
}

// Report returns the grade report of an assignment.
func (s *AssignmentService) Report(ctx context.Context, id string) (*GradeReport, error) {
	return load[*GradeReport](ctx, s.c, cache.GradeReportKey(id), "/assignments/report", idQuery("id", id))
}

// Export streams the spreadsheet of the grade report into w and returns the
// file name suggested by the server. It bypasses the cache.
func (s *AssignmentService) Export(ctx context.Context, id string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.c.endpoint("/assignments/export", idQuery("id", id)), nil)
	if err != nil {
		return "", fmt.Errorf("client: build export request: %w", err)
	}
	resp, err := s.c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("client: read export: %w", err)
	}
	return attachmentName(resp.Header.Get("Content-Disposition")), nil
}

// Create creates an assignment.
func (s *AssignmentService) Create(ctx context.Context, in CreateAssignmentInput) (*Assignment, error) {
	var out Assignment
	if err := s.c.send(ctx, http.MethodPost, "/assignments/create", nil, in, &out); err != nil {
		return nil, err
	}
	s.c.invalidate(cache.Mutation{Entity: cache.EntityAssignment, Op: cache.OpCreate, ID: out.ID, ClassID: out.ClassID})
	return &out, nil
}

// Update changes an assignment.
func (s *AssignmentService) Update(ctx context.Context, id string, in UpdateAssignmentInput) (*Assignment, error) {
	var out Assignment
	if err := s.c.send(ctx, http.MethodPut, "/assignments/update", idQuery("id", id), in, &out); err != nil {
		return nil, err
	}
	s.c.invalidate(cache.Mutation{Entity: cache.EntityAssignment, Op: cache.OpUpdate, ID: id, ClassID: out.ClassID})
	return &out, nil
}

// Delete deletes an assignment and its evaluations.
func (s *AssignmentService) Delete(ctx context.Context, id string) (*Assignment, error) {
	var out Assignment
	if err := s.c.send(ctx, http.MethodDelete, "/assignments/delete", idQuery("id", id), nil, &out); err != nil {
		return nil, err
	}
	s.c.invalidate(cache.Mutation{Entity: cache.EntityAssignment, Op: cache.OpDelete, ID: id, ClassID: out.ClassID})
	return &out, nil
}

func attachmentName(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
