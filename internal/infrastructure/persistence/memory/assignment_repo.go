package memory

import (
	"context"
	"sort"
	"time"

	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// AssignmentRepository implements assignment.Repository in memory.
type AssignmentRepository struct {
	db *DB
}

// NewAssignmentRepository creates a repository over db.
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create stores an assignment with a nil aggregate.
func (r *AssignmentRepository) Create(_ context.Context, a *assignment.Assignment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.classes[a.ClassID]; !ok {
		return shared.ErrClassNotFound
	}
	if _, ok := r.db.assignments[a.ID]; ok {
		return shared.NewDomainError("assignment", "Create", shared.ErrAlreadyExists, "assignment already exists")
	}
	row := copyAssignment(a)
	row.Aggregate = nil
	r.db.assignments[a.ID] = row
	return nil
}

// GetByID returns an assignment by ID.
func (r *AssignmentRepository) GetByID(_ context.Context, id string) (*assignment.Assignment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	a, ok := r.db.assignments[id]
	if !ok {
		return nil, shared.ErrAssignmentNotFound
	}
	return copyAssignment(a), nil
}

// Update replaces name, rubric and dates. The aggregate is left alone.
func (r *AssignmentRepository) Update(_ context.Context, a *assignment.Assignment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cur, ok := r.db.assignments[a.ID]
	if !ok {
		return shared.ErrAssignmentNotFound
	}
	next := copyAssignment(a)
	cur.Name = next.Name
	cur.Rubric = next.Rubric
	cur.Dates = next.Dates
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes an assignment and its evaluations.
func (r *AssignmentRepository) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.assignments[id]; !ok {
		return shared.ErrAssignmentNotFound
	}
	delete(r.db.assignments, id)
	for eid, e := range r.db.evaluations {
		if e.AssignmentID == id {
			delete(r.db.evaluations, eid)
		}
	}
	return nil
}

// ListByClass returns the assignments of a class, oldest first.
func (r *AssignmentRepository) ListByClass(_ context.Context, classID string) ([]*assignment.Assignment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*assignment.Assignment
	for _, a := range r.db.assignments {
		if a.ClassID == classID {
			out = append(out, copyAssignment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListIDs returns assignment IDs in ascending order.
func (r *AssignmentRepository) ListIDs(_ context.Context, page shared.Page) ([]string, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	ids := make([]string, 0, len(r.db.assignments))
	for id := range r.db.assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return paginate(ids, page), nil
}

// SetAggregate writes a recomputed aggregate.
func (r *AssignmentRepository) SetAggregate(_ context.Context, id string, value float64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.assignments[id]
	if !ok {
		return shared.ErrAssignmentNotFound
	}
	a.Aggregate = &value
	a.UpdatedAt = time.Now().UTC()
	return nil
}
