package memory

import (
	"context"
	"sort"
	"time"

	"github.com/avalia-hub/avalia-hub/internal/domain/classroom"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// ClassRepository implements classroom.Repository in memory.
type ClassRepository struct {
	db *DB
}

// NewClassRepository creates a repository over db.
func NewClassRepository(db *DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// Create stores a class.
func (r *ClassRepository) Create(_ context.Context, c *classroom.Class) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.classes[c.ID]; ok {
		return shared.NewDomainError("class", "Create", shared.ErrAlreadyExists, "class already exists")
	}
	r.db.classes[c.ID] = copyClass(c)
	return nil
}

// GetByID returns a class by ID.
func (r *ClassRepository) GetByID(_ context.Context, id string) (*classroom.Class, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	c, ok := r.db.classes[id]
	if !ok {
		return nil, shared.ErrClassNotFound
	}
	return copyClass(c), nil
}

// Update replaces name and instructor.
func (r *ClassRepository) Update(_ context.Context, c *classroom.Class) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cur, ok := r.db.classes[c.ID]
	if !ok {
		return shared.ErrClassNotFound
	}
	cur.Name = c.Name
	cur.InstructorID = c.InstructorID
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes a class with its assignments and their evaluations, and
// clears the class of its students.
func (r *ClassRepository) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.classes[id]; !ok {
		return shared.ErrClassNotFound
	}
	delete(r.db.classes, id)

	for aid, a := range r.db.assignments {
		if a.ClassID != id {
			continue
		}
		delete(r.db.assignments, aid)
		for eid, e := range r.db.evaluations {
			if e.AssignmentID == aid {
				delete(r.db.evaluations, eid)
			}
		}
	}
	for _, s := range r.db.students {
		if s.InClass(id) {
			s.ClassID = nil
		}
	}
	return nil
}

// List returns classes ordered by name.
func (r *ClassRepository) List(_ context.Context, page shared.Page) ([]*classroom.Class, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]*classroom.Class, 0, len(r.db.classes))
	for _, c := range r.db.classes {
		out = append(out, copyClass(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, page), nil
}
