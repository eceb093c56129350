package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// AssignmentRepository implements assignment.Repository for PostgreSQL.
type AssignmentRepository struct {
	conn *Connection
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(conn *Connection) *AssignmentRepository {
	return &AssignmentRepository{conn: conn}
}

const assignmentColumns = `id, name, class_id, rubric, start_date, end_date, media_geral, created_at, updated_at`

// Create creates an assignment with a NULL aggregate.
func (r *AssignmentRepository) Create(ctx context.Context, a *assignment.Assignment) error {
	rubricJSON, err := json.Marshal(a.Rubric)
	if err != nil {
		return fmt.Errorf("failed to marshal rubric: %w", err)
	}

	query := `
		INSERT INTO assignments (id, name, class_id, rubric, start_date, end_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.conn.Exec(ctx, query,
		a.ID,
		a.Name,
		a.ClassID,
		rubricJSON,
		a.Dates.Start,
		a.Dates.End,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrClassNotFound
		}
		if IsUniqueViolation(err) {
			return shared.NewDomainError("assignment", "Create", shared.ErrAlreadyExists, "assignment already exists")
		}
		return storeErr("assignment", "Create", err)
	}
	return nil
}

// GetByID returns an assignment by ID.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*assignment.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`

	a, err := scanAssignment(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, storeErr("assignment", "GetByID", err)
	}
	return a, nil
}

// Update updates name, rubric and dates. media_geral is never written here.
func (r *AssignmentRepository) Update(ctx context.Context, a *assignment.Assignment) error {
	rubricJSON, err := json.Marshal(a.Rubric)
	if err != nil {
		return fmt.Errorf("failed to marshal rubric: %w", err)
	}

	query := `
		UPDATE assignments SET
			name = $1,
			rubric = $2,
			start_date = $3,
			end_date = $4,
			updated_at = $5
		WHERE id = $6
	`

	result, err := r.conn.Exec(ctx, query, a.Name, rubricJSON, a.Dates.Start, a.Dates.End, time.Now().UTC(), a.ID)
	if err != nil {
		return storeErr("assignment", "Update", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrAssignmentNotFound
	}
	return nil
}

// Delete removes an assignment and, through the foreign key, its evaluations.
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.conn.Exec(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return storeErr("assignment", "Delete", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrAssignmentNotFound
	}
	return nil
}

// ListByClass returns the assignments of a class, oldest first.
func (r *AssignmentRepository) ListByClass(ctx context.Context, classID string) ([]*assignment.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE class_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := r.conn.Query(ctx, query, classID)
	if err != nil {
		return nil, storeErr("assignment", "ListByClass", err)
	}
	defer rows.Close()

	var out []*assignment.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, storeErr("assignment", "ListByClass", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("assignment", "ListByClass", err)
	}
	return out, nil
}

// ListIDs returns assignment IDs page by page in a stable order.
func (r *AssignmentRepository) ListIDs(ctx context.Context, page shared.Page) ([]string, error) {
	page = page.Normalize()

	rows, err := r.conn.Query(ctx, `SELECT id FROM assignments ORDER BY id ASC LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
	if err != nil {
		return nil, storeErr("assignment", "ListIDs", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storeErr("assignment", "ListIDs", err)
	}
	return ids, nil
}

// SetAggregate writes a recomputed media_geral.
func (r *AssignmentRepository) SetAggregate(ctx context.Context, id string, value float64) error {
	query := `UPDATE assignments SET media_geral = $1, updated_at = $2 WHERE id = $3`

	result, err := r.conn.Exec(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return storeErr("assignment", "SetAggregate", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrAssignmentNotFound
	}
	return nil
}

func scanAssignment(row pgx.Row) (*assignment.Assignment, error) {
	var a assignment.Assignment
	var rubricJSON []byte

	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.ClassID,
		&rubricJSON,
		&a.Dates.Start,
		&a.Dates.End,
		&a.Aggregate,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Rubric = assignment.Rubric{}
	if len(rubricJSON) > 0 {
		if err := json.Unmarshal(rubricJSON, &a.Rubric); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rubric: %w", err)
		}
	}
	return &a, nil
}
