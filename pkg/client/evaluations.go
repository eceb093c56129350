package client

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/avalia-hub/avalia-hub/pkg/client/cache"
)

// EvaluationService covers /evaluations. Every mutation answers with the
// recomputed aggregate of the assignment.
type EvaluationService struct {
	c *Client
}

// CreateEvaluationInput is the body of an evaluation creation. Exactly one
// evaluator is set. Payload is the graded rubric, e.g.
// {"tag":{"criterion":7.5}}.
type CreateEvaluationInput struct {
	ID                    string             `json:"id,omitempty"`
	AssignmentID          string             `json:"assignmentId"`
	EvaluatorStudentID    *string            `json:"evaluatorStudentId,omitempty"`
	EvaluatorInstructorID *string            `json:"evaluatorInstructorId,omitempty"`
	EvaluatedStudentID    string             `json:"evaluatedStudentId"`
	Payload               json.RawMessage    `json:"payload"`
	FileGrades            map[string]float64 `json:"fileGrades,omitempty"`
}

// UpdateEvaluationInput replaces the grades of an evaluation.
type UpdateEvaluationInput struct {
	Payload    json.RawMessage    `json:"payload"`
	FileGrades map[string]float64 `json:"fileGrades,omitempty"`
}

// ListByAssignment returns the evaluations of an assignment.
func (s *EvaluationService) ListByAssignment(ctx context.Context, assignmentID string) ([]Evaluation, error) {
	return load[[]Evaluation](ctx, s.c, cache.EvaluationsByAssignmentKey(assignmentID),
		"/evaluations/list", idQuery("assignmentId", assignmentID))
}

// Create records an evaluation.
func (s *EvaluationService) Create(ctx context.Context, in CreateEvaluationInput) (*EvaluationResult, error) {
	var out EvaluationResult
	if err := s.c.send(ctx, http.MethodPost, "/evaluations/create", nil, in, &out); err != nil {
		return nil, err
	}
	s.changed(cache.OpCreate, out)
	return &out, nil
}

// Update replaces the grades of an evaluation.
func (s *EvaluationService) Update(ctx context.Context, id string, in UpdateEvaluationInput) (*EvaluationResult, error) {
	var out EvaluationResult
	if err := s.c.send(ctx, http.MethodPut, "/evaluations/update", idQuery("id", id), in, &out); err != nil {
		return nil, err
	}
	s.changed(cache.OpUpdate, out)
	return &out, nil
}

// Delete deletes an evaluation.
func (s *EvaluationService) Delete(ctx context.Context, id string) (*EvaluationResult, error) {
	var out EvaluationResult
	if err := s.c.send(ctx, http.MethodDelete, "/evaluations/delete", idQuery("id", id), nil, &out); err != nil {
		return nil, err
	}
	s.changed(cache.OpDelete, out)
	return &out, nil
}

// changed invalidates after a mutation. The class is taken from a cached
// assignment when there is one; otherwise every class list is dropped.
func (s *EvaluationService) changed(op cache.Op, out EvaluationResult) {
	m := cache.Mutation{Entity: cache.EntityEvaluation, Op: op, AssignmentID: out.AssignmentID}
	if out.Evaluation != nil {
		m.ID = out.Evaluation.ID
	}
	if details, ok := cache.NewTyped[*AssignmentDetails](s.c.cache).Get(cache.AssignmentKey(out.AssignmentID)); ok && details != nil {
		m.ClassID = details.ClassID
	}
	s.c.invalidate(m)
}
