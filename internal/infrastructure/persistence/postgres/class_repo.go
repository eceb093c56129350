package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avalia-hub/avalia-hub/internal/domain/classroom"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// ClassRepository implements classroom.Repository for PostgreSQL.
type ClassRepository struct {
	conn *Connection
}

// NewClassRepository creates a new ClassRepository.
func NewClassRepository(conn *Connection) *ClassRepository {
	return &ClassRepository{conn: conn}
}

const classColumns = `id, name, instructor_id, created_at, updated_at`

// Create creates a class.
func (r *ClassRepository) Create(ctx context.Context, c *classroom.Class) error {
	query := `INSERT INTO classes (` + classColumns + `) VALUES ($1, $2, $3, $4, $5)`

	_, err := r.conn.Exec(ctx, query, c.ID, c.Name, c.InstructorID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("class", "Create", shared.ErrAlreadyExists, "class already exists")
		}
		return storeErr("class", "Create", err)
	}
	return nil
}

// GetByID returns a class by ID.
func (r *ClassRepository) GetByID(ctx context.Context, id string) (*classroom.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`

	c, err := scanClass(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.ErrClassNotFound
	}
	if err != nil {
		return nil, storeErr("class", "GetByID", err)
	}
	return c, nil
}

// Update updates name and instructor of a class.
func (r *ClassRepository) Update(ctx context.Context, c *classroom.Class) error {
	query := `UPDATE classes SET name = $1, instructor_id = $2, updated_at = $3 WHERE id = $4`

	result, err := r.conn.Exec(ctx, query, c.Name, c.InstructorID, time.Now().UTC(), c.ID)
	if err != nil {
		return storeErr("class", "Update", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrClassNotFound
	}
	return nil
}

// Delete removes a class. Assignments and their evaluations go with it
// through ON DELETE CASCADE; students keep existing with class_id NULL.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	result, err := r.conn.Exec(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if err != nil {
		return storeErr("class", "Delete", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrClassNotFound
	}
	return nil
}

// List returns classes ordered by name.
func (r *ClassRepository) List(ctx context.Context, page shared.Page) ([]*classroom.Class, error) {
	page = page.Normalize()
	query := `SELECT ` + classColumns + ` FROM classes ORDER BY name ASC, id ASC LIMIT $1 OFFSET $2`

	rows, err := r.conn.Query(ctx, query, page.Limit, page.Offset)
	if err != nil {
		return nil, storeErr("class", "List", err)
	}
	defer rows.Close()

	var classes []*classroom.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, storeErr("class", "List", err)
		}
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("class", "List", err)
	}
	return classes, nil
}

func scanClass(row pgx.Row) (*classroom.Class, error) {
	var c classroom.Class
	if err := row.Scan(&c.ID, &c.Name, &c.InstructorID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
