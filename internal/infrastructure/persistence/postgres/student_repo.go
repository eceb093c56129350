package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const studentColumns = `id, name, email, class_id, created_at, updated_at`

// Create creates a new student.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	query := `
		INSERT INTO students (` + studentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.conn.Exec(ctx, query, s.ID, s.Name, s.Email, s.ClassID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrStudentEmailTaken
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrClassNotFound
		}
		return storeErr("student", "Create", err)
	}

	return nil
}

// GetByID returns a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`

	s, err := scanStudent(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.ErrStudentNotFound
	}
	if err != nil {
		return nil, storeErr("student", "GetByID", err)
	}
	return s, nil
}

// Update updates name, email and class of a student.
func (r *StudentRepository) Update(ctx context.Context, s *student.Student) error {
	query := `
		UPDATE students SET
			name = $1,
			email = $2,
			class_id = $3,
			updated_at = $4
		WHERE id = $5
	`

	result, err := r.conn.Exec(ctx, query, s.Name, s.Email, s.ClassID, time.Now().UTC(), s.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrStudentEmailTaken
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrClassNotFound
		}
		return storeErr("student", "Update", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}

	return nil
}

// Delete removes a student.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.conn.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return storeErr("student", "Delete", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}

	return nil
}

// List returns students matching the options ordered by name.
func (r *StudentRepository) List(ctx context.Context, opts student.ListOptions) ([]*student.Student, error) {
	page := opts.Page.Normalize()
	args := []any{page.Limit, page.Offset}
	conditions := []string{}

	if q := strings.TrimSpace(opts.Query); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR email LIKE $%d)", len(args), len(args)))
	}
	if opts.ClassID != "" {
		args = append(args, opts.ClassID)
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if opts.Unassigned {
		conditions = append(conditions, "class_id IS NULL")
	}

	query := `SELECT ` + studentColumns + ` FROM students`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name ASC, id ASC LIMIT $1 OFFSET $2"

	return r.queryStudents(ctx, "List", query, args...)
}

// ListByClass returns the roster of a class.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]*student.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE class_id = $1 ORDER BY name ASC, id ASC`
	return r.queryStudents(ctx, "ListByClass", query, classID)
}

// SetClass assigns the student to a class or clears the class when classID is nil.
func (r *StudentRepository) SetClass(ctx context.Context, studentID string, classID *string) error {
	query := `UPDATE students SET class_id = $1, updated_at = $2 WHERE id = $3`

	result, err := r.conn.Exec(ctx, query, classID, time.Now().UTC(), studentID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrClassNotFound
		}
		return storeErr("student", "SetClass", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

func (r *StudentRepository) queryStudents(ctx context.Context, op, query string, args ...any) ([]*student.Student, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("student", op, err)
	}
	defer rows.Close()

	var students []*student.Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, storeErr("student", op, err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("student", op, err)
	}

	return students, nil
}

// scanStudent scans a single student from a row.
func scanStudent(row pgx.Row) (*student.Student, error) {
	var s student.Student
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.ClassID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
