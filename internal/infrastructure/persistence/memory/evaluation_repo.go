package memory

import (
	"context"
	"sort"
	"time"

	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// EvaluationRepository implements evaluation.Repository in memory.
type EvaluationRepository struct {
	db *DB
}

// NewEvaluationRepository creates a repository over db.
func NewEvaluationRepository(db *DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Create stores an evaluation.
func (r *EvaluationRepository) Create(_ context.Context, e *evaluation.Evaluation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.assignments[e.AssignmentID]; !ok {
		return shared.ErrAssignmentNotFound
	}
	if _, ok := r.db.evaluations[e.ID]; ok {
		return shared.NewDomainError("evaluation", "Create", shared.ErrAlreadyExists, "evaluation already exists")
	}
	r.db.evaluations[e.ID] = copyEvaluation(e)
	return nil
}

// GetByID returns an evaluation by ID.
func (r *EvaluationRepository) GetByID(_ context.Context, id string) (*evaluation.Evaluation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	e, ok := r.db.evaluations[id]
	if !ok {
		return nil, shared.ErrEvaluationNotFound
	}
	return copyEvaluation(e), nil
}

// Update replaces payload and file grades.
func (r *EvaluationRepository) Update(_ context.Context, e *evaluation.Evaluation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cur, ok := r.db.evaluations[e.ID]
	if !ok {
		return shared.ErrEvaluationNotFound
	}
	next := copyEvaluation(e)
	cur.Payload = next.Payload
	cur.FileGrades = next.FileGrades
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes an evaluation.
func (r *EvaluationRepository) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.evaluations[id]; !ok {
		return shared.ErrEvaluationNotFound
	}
	delete(r.db.evaluations, id)
	return nil
}

// ListByAssignment returns every evaluation of an assignment.
func (r *EvaluationRepository) ListByAssignment(_ context.Context, assignmentID string) ([]*evaluation.Evaluation, error) {
	return r.filter(func(e *evaluation.Evaluation) bool {
		return e.AssignmentID == assignmentID
	}), nil
}

// ListByAssignmentAndEvaluated returns the evaluations a student received
// under one assignment.
func (r *EvaluationRepository) ListByAssignmentAndEvaluated(_ context.Context, assignmentID, studentID string) ([]*evaluation.Evaluation, error) {
	return r.filter(func(e *evaluation.Evaluation) bool {
		return e.AssignmentID == assignmentID && e.EvaluatedStudentID == studentID
	}), nil
}

// DeleteByEvaluator deletes the student's authored evaluations under the given assignments.
func (r *EvaluationRepository) DeleteByEvaluator(_ context.Context, assignmentIDs []string, studentID string) ([]string, error) {
	scope := toSet(assignmentIDs)
	return r.deleteWhere(func(e *evaluation.Evaluation) bool {
		_, in := scope[e.AssignmentID]
		return in && e.EvaluatorStudentID != nil && *e.EvaluatorStudentID == studentID
	}), nil
}

// DeleteByEvaluated deletes the evaluations the student received under the given assignments.
func (r *EvaluationRepository) DeleteByEvaluated(_ context.Context, assignmentIDs []string, studentID string) ([]string, error) {
	scope := toSet(assignmentIDs)
	return r.deleteWhere(func(e *evaluation.Evaluation) bool {
		_, in := scope[e.AssignmentID]
		return in && e.EvaluatedStudentID == studentID
	}), nil
}

// DeleteByStudent deletes every evaluation the student authored or received.
func (r *EvaluationRepository) DeleteByStudent(_ context.Context, studentID string) ([]string, error) {
	return r.deleteWhere(func(e *evaluation.Evaluation) bool {
		return e.Involves(studentID)
	}), nil
}

func (r *EvaluationRepository) filter(keep func(*evaluation.Evaluation) bool) []*evaluation.Evaluation {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*evaluation.Evaluation
	for _, e := range r.db.evaluations {
		if keep(e) {
			out = append(out, copyEvaluation(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *EvaluationRepository) deleteWhere(match func(*evaluation.Evaluation) bool) []string {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	touched := make(map[string]struct{})
	for id, e := range r.db.evaluations {
		if match(e) {
			touched[e.AssignmentID] = struct{}{}
			delete(r.db.evaluations, id)
		}
	}
	if len(touched) == 0 {
		return nil
	}
	return sortedKeys(touched)
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
