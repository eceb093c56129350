package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
)

// StudentRepository implements student.Repository in memory.
type StudentRepository struct {
	db *DB
}

// NewStudentRepository creates a repository over db.
func NewStudentRepository(db *DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create stores a new student.
func (r *StudentRepository) Create(_ context.Context, s *student.Student) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.students[s.ID]; ok {
		return shared.NewDomainError("student", "Create", shared.ErrAlreadyExists, "student already exists")
	}
	if err := r.checkRow(s); err != nil {
		return err
	}
	r.db.students[s.ID] = copyStudent(s)
	return nil
}

// GetByID returns a student by ID.
func (r *StudentRepository) GetByID(_ context.Context, id string) (*student.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	s, ok := r.db.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return copyStudent(s), nil
}

// Update replaces name, email and class.
func (r *StudentRepository) Update(_ context.Context, s *student.Student) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cur, ok := r.db.students[s.ID]
	if !ok {
		return shared.ErrStudentNotFound
	}
	if err := r.checkRow(s); err != nil {
		return err
	}
	cur.Name = s.Name
	cur.Email = s.Email
	cur.ClassID = copyString(s.ClassID)
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes a student.
func (r *StudentRepository) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.students[id]; !ok {
		return shared.ErrStudentNotFound
	}
	delete(r.db.students, id)
	return nil
}

// List returns students matching the options ordered by name.
func (r *StudentRepository) List(_ context.Context, opts student.ListOptions) ([]*student.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	q := strings.TrimSpace(opts.Query)
	var out []*student.Student
	for _, s := range r.db.students {
		if q != "" && !containsFold(s.Name, q) && !containsFold(s.Email, q) {
			continue
		}
		if opts.ClassID != "" && !s.InClass(opts.ClassID) {
			continue
		}
		if opts.Unassigned && s.HasClass() {
			continue
		}
		out = append(out, copyStudent(s))
	}
	sortStudents(out)
	return paginate(out, opts.Page), nil
}

// ListByClass returns the roster of a class.
func (r *StudentRepository) ListByClass(_ context.Context, classID string) ([]*student.Student, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*student.Student
	for _, s := range r.db.students {
		if s.InClass(classID) {
			out = append(out, copyStudent(s))
		}
	}
	sortStudents(out)
	return out, nil
}

// SetClass assigns or clears the class of a student.
func (r *StudentRepository) SetClass(_ context.Context, studentID string, classID *string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.students[studentID]
	if !ok {
		return shared.ErrStudentNotFound
	}
	if classID != nil {
		if _, ok := r.db.classes[*classID]; !ok {
			return shared.ErrClassNotFound
		}
	}
	s.ClassID = copyString(classID)
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *StudentRepository) checkRow(s *student.Student) error {
	for id, other := range r.db.students {
		if id != s.ID && other.Email == s.Email {
			return shared.ErrStudentEmailTaken
		}
	}
	if s.ClassID != nil {
		if _, ok := r.db.classes[*s.ClassID]; !ok {
			return shared.ErrClassNotFound
		}
	}
	return nil
}

func sortStudents(list []*student.Student) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
}

func paginate[T any](list []T, page shared.Page) []T {
	page = page.Normalize()
	if page.Offset >= len(list) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(list) {
		end = len(list)
	}
	return list[page.Offset:end]
}
