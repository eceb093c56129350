package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/avalia-hub/avalia-hub/pkg/client/cache"
)

// StudentService covers /students.
type StudentService struct {
	c *Client
}

// StudentFilter narrows StudentService.List. ClassID and Unassigned are
// exclusive.
type StudentFilter struct {
	Search     string
	ClassID    string
	Unassigned bool
	Limit      int
	Offset     int
}

func (f StudentFilter) values() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.ClassID != "" {
		q.Set("classId", f.ClassID)
	}
	if f.Unassigned {
		q.Set("unassigned", "true")
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

// CreateStudentInput is the body of a student creation.
type CreateStudentInput struct {
	ID      string  `json:"id,omitempty"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	ClassID *string `json:"classId,omitempty"`
}

// UpdateStudentInput changes a student.
type UpdateStudentInput struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// List returns students matching f.
func (s *StudentService) List(ctx context.Context, f StudentFilter) ([]Student, error) {
	q := f.values()
	return load[[]Student](ctx, s.c, cache.StudentListKey(q), "/students/list", q)
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id string) (*Student, error) {
	return load[*Student](ctx, s.c, cache.StudentKey(id), "/students/get", idQuery("id", id))
}

// Create creates a student.
func (s *StudentService) Create(ctx context.Context, in CreateStudentInput) (*Student, error) {
	var out Student
	if err := s.c.send(ctx, http.MethodPost, "/students/create", nil, in, &out); err != nil {
		return nil, err
	}
	s.c.invalidate(cache.Mutation{Entity: cache.EntityStudent, Op: cache.OpCreate, ID: out.ID, ClassID: deref(out.ClassID)})
	return &out, nil
}

// Update changes a student.
func (s *StudentService) Update(ctx context.Context, id string, in UpdateStudentInput) (*Student, error) {
	var out Student
	if err := s.c.send(ctx, http.MethodPut, "/students/update", idQuery("id", id), in, &out); err != nil {
		return nil, err
	}
	s.c.invalidate(cache.Mutation{Entity: cache.EntityStudent, Op: cache.OpUpdate, ID: id, ClassID: deref(out.ClassID)})
	return &out, nil
}

// Delete deletes a student along with every evaluation they wrote or
// received.
func (s *StudentService) Delete(ctx context.Context, id string) (*DeleteStudentResult, error) {
	var out DeleteStudentResult
	err := s.c.send(ctx, http.MethodDelete, "/students/delete", idQuery("id", id), nil, &out)

	m := cache.Mutation{Entity: cache.EntityStudent, Op: cache.OpDelete, ID: id}
	if err != nil {
		if failure, partial := PartialCascade(err); partial {
			m.ClassID = failure.ClassID
			s.c.invalidate(m)
		}
		return nil, err
	}
	m.ClassID = deref(out.Student.ClassID)
	s.c.invalidate(m)
	return &out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
