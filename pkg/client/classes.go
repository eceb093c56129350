package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/avalia-hub/avalia-hub/pkg/client/cache"
)

// ClassService covers /classes.
type ClassService struct {
	c *Client
}

// CreateClassInput is the body of a class creation.
type CreateClassInput struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	InstructorID string `json:"instructorId"`
}

// UpdateClassInput changes a class. A non-nil Roster replaces the roster.
type UpdateClassInput struct {
	Name         *string   `json:"name,omitempty"`
	InstructorID *string   `json:"instructorId,omitempty"`
	Roster       *[]string `json:"roster,omitempty"`
}

// List returns a page of classes. A zero limit uses the server default.
func (s *ClassService) List(ctx context.Context, limit, offset int) ([]Class, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return load[[]Class](ctx, s.c, cache.ClassListKey(limit, offset), "/classes/list", q)
}

// Get returns a class with its roster.
func (s *ClassService) Get(ctx context.Context, id string) (*Class, error) {
	return load[*Class](ctx, s.c, cache.ClassKey(id), "/classes/get", idQuery("id", id))
}

// Create creates a class.
func (s *ClassService) Create(ctx context.Context, in CreateClassInput) (*Class, error) {
	var out Class
	if err := s.c.send(ctx, http.MethodPost, "/classes/create", nil, in, &out); err != nil {
		return nil, err
	}
	s.c.invalidate(cache.Mutation{Entity: cache.EntityClass, Op: cache.OpCreate, ID: out.ID})
	return &out, nil
}

// Update changes a class. Replacing the roster runs a cascade on the
// server; the cache is invalidated even when that cascade stops part way.
func (s *ClassService) Update(ctx context.Context, id string, in UpdateClassInput) (*UpdateClassResult, error) {
	var out UpdateClassResult
	err := s.c.send(ctx, http.MethodPut, "/classes/update", idQuery("id", id), in, &out)

	ms := []cache.Mutation{{Entity: cache.EntityClass, Op: cache.OpUpdate, ID: id}}
	if in.Roster != nil {
		ms = append(ms, cache.Mutation{Entity: cache.EntityRoster, Op: cache.OpRemove, ClassID: id})
	}
	if err != nil {
		if _, partial := PartialCascade(err); partial {
			s.c.invalidate(ms...)
		}
		return nil, err
	}
	s.c.invalidate(ms...)
	return &out, nil
}

// Delete deletes a class.
func (s *ClassService) Delete(ctx context.Context, id string) (*Class, error) {
	var out Class
	if err := s.c.send(ctx, http.MethodDelete, "/classes/delete", idQuery("id", id), nil, &out); err != nil {
		return nil, err
	}
	s.c.invalidate(cache.Mutation{Entity: cache.EntityClass, Op: cache.OpDelete, ID: id})
	return &out, nil
}

// AddStudent puts a student on the roster of a class.
func (s *ClassService) AddStudent(ctx context.Context, classID, studentID string) (*Student, error) {
	body := map[string]string{"classId": classID, "studentId": studentID}
	var out Student
	if err := s.c.send(ctx, http.MethodPost, "/classes/add-student", nil, body, &out); err != nil {
		return nil, err
	}
	s.c.invalidate(cache.Mutation{
		Entity: cache.EntityRoster, Op: cache.OpAdd, ClassID: classID, StudentID: studentID,
	})
	return &out, nil
}

// RemoveStudent takes a student off a roster. The server deletes the
// student's evaluations in the class and recomputes the affected aggregates.
func (s *ClassService) RemoveStudent(ctx context.Context, classID, studentID string) (*CascadeResult, error) {
	q := url.Values{"classId": {classID}, "studentId": {studentID}}
	var out CascadeResult
	err := s.c.send(ctx, http.MethodDelete, "/classes/remove-student", q, nil, &out)

	m := cache.Mutation{Entity: cache.EntityRoster, Op: cache.OpRemove, ClassID: classID, StudentID: studentID}
	if err != nil {
		if _, partial := PartialCascade(err); partial {
			s.c.invalidate(m)
		}
		return nil, err
	}
	s.c.invalidate(m)
	return &out, nil
}

// ResumeCascade continues a stopped cascade run.
func (s *ClassService) ResumeCascade(ctx context.Context, runID string) (*CascadeResult, error) {
	var out CascadeResult
	err := s.c.send(ctx, http.MethodPost, "/classes/resume-cascade", idQuery("runId", runID), nil, &out)

	classID := out.ClassID
	if failure, partial := PartialCascade(err); partial {
		classID = failure.ClassID
	}
	if classID != "" {
		s.c.invalidate(cache.Mutation{Entity: cache.EntityRoster, Op: cache.OpRemove, ClassID: classID})
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
