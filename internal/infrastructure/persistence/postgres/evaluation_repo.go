package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// EvaluationRepository implements evaluation.Repository for PostgreSQL.
type EvaluationRepository struct {
	conn *Connection
}

// NewEvaluationRepository creates a new EvaluationRepository.
func NewEvaluationRepository(conn *Connection) *EvaluationRepository {
	return &EvaluationRepository{conn: conn}
}

const evaluationColumns = `id, assignment_id, evaluator_student_id, evaluator_instructor_id,
	evaluated_student_id, payload, file_grades, created_at, updated_at`

// Create stores an evaluation.
func (r *EvaluationRepository) Create(ctx context.Context, e *evaluation.Evaluation) error {
	fileGrades, err := marshalFileGrades(e.FileGrades)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO evaluations (` + evaluationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.conn.Exec(ctx, query,
		e.ID,
		e.AssignmentID,
		e.EvaluatorStudentID,
		e.EvaluatorInstructorID,
		e.EvaluatedStudentID,
		e.Payload,
		fileGrades,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrAssignmentNotFound
		}
		if IsUniqueViolation(err) {
			return shared.NewDomainError("evaluation", "Create", shared.ErrAlreadyExists, "evaluation already exists")
		}
		return storeErr("evaluation", "Create", err)
	}
	return nil
}

// GetByID returns an evaluation by ID.
func (r *EvaluationRepository) GetByID(ctx context.Context, id string) (*evaluation.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE id = $1`

	e, err := scanEvaluation(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.ErrEvaluationNotFound
	}
	if err != nil {
		return nil, storeErr("evaluation", "GetByID", err)
	}
	return e, nil
}

// Update replaces payload and file grades.
func (r *EvaluationRepository) Update(ctx context.Context, e *evaluation.Evaluation) error {
	fileGrades, err := marshalFileGrades(e.FileGrades)
	if err != nil {
		return err
	}

	query := `UPDATE evaluations SET payload = $1, file_grades = $2, updated_at = $3 WHERE id = $4`

	result, err := r.conn.Exec(ctx, query, e.Payload, fileGrades, time.Now().UTC(), e.ID)
	if err != nil {
		return storeErr("evaluation", "Update", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrEvaluationNotFound
	}
	return nil
}

// Delete removes an evaluation.
func (r *EvaluationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.conn.Exec(ctx, `DELETE FROM evaluations WHERE id = $1`, id)
	if err != nil {
		return storeErr("evaluation", "Delete", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrEvaluationNotFound
	}
	return nil
}

// ListByAssignment returns every evaluation of an assignment.
func (r *EvaluationRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]*evaluation.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE assignment_id = $1 ORDER BY created_at ASC, id ASC`
	return r.queryEvaluations(ctx, "ListByAssignment", query, assignmentID)
}

// ListByAssignmentAndEvaluated returns the evaluations of one assignment
// where the student is the evaluated party.
func (r *EvaluationRepository) ListByAssignmentAndEvaluated(ctx context.Context, assignmentID, studentID string) ([]*evaluation.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations
		WHERE assignment_id = $1 AND evaluated_student_id = $2
		ORDER BY created_at ASC, id ASC`
	return r.queryEvaluations(ctx, "ListByAssignmentAndEvaluated", query, assignmentID, studentID)
}

// DeleteByEvaluator deletes the student's authored evaluations under the given
// assignments and returns the assignments that lost at least one row.
func (r *EvaluationRepository) DeleteByEvaluator(ctx context.Context, assignmentIDs []string, studentID string) ([]string, error) {
	if len(assignmentIDs) == 0 {
		return nil, nil
	}
	query := `
		WITH deleted AS (
			DELETE FROM evaluations
			WHERE assignment_id = ANY($1) AND evaluator_student_id = $2
			RETURNING assignment_id
		)
		SELECT DISTINCT assignment_id FROM deleted ORDER BY assignment_id
	`
	return r.collectIDs(ctx, "DeleteByEvaluator", query, assignmentIDs, studentID)
}

// DeleteByEvaluated deletes the evaluations the student received under the
// given assignments and returns the assignments that lost at least one row.
func (r *EvaluationRepository) DeleteByEvaluated(ctx context.Context, assignmentIDs []string, studentID string) ([]string, error) {
	if len(assignmentIDs) == 0 {
		return nil, nil
	}
	query := `
		WITH deleted AS (
			DELETE FROM evaluations
			WHERE assignment_id = ANY($1) AND evaluated_student_id = $2
			RETURNING assignment_id
		)
		SELECT DISTINCT assignment_id FROM deleted ORDER BY assignment_id
	`
	return r.collectIDs(ctx, "DeleteByEvaluated", query, assignmentIDs, studentID)
}

// DeleteByStudent deletes every evaluation the student authored or received.
func (r *EvaluationRepository) DeleteByStudent(ctx context.Context, studentID string) ([]string, error) {
	query := `
		WITH deleted AS (
			DELETE FROM evaluations
			WHERE evaluator_student_id = $1 OR evaluated_student_id = $1
			RETURNING assignment_id
		)
		SELECT DISTINCT assignment_id FROM deleted ORDER BY assignment_id
	`
	return r.collectIDs(ctx, "DeleteByStudent", query, studentID)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

func (r *EvaluationRepository) collectIDs(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("evaluation", op, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storeErr("evaluation", op, err)
	}
	return ids, nil
}

func (r *EvaluationRepository) queryEvaluations(ctx context.Context, op, query string, args ...any) ([]*evaluation.Evaluation, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("evaluation", op, err)
	}
	defer rows.Close()

	var out []*evaluation.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, storeErr("evaluation", op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("evaluation", op, err)
	}
	return out, nil
}

func scanEvaluation(row pgx.Row) (*evaluation.Evaluation, error) {
	var e evaluation.Evaluation
	var fileGrades []byte

	err := row.Scan(
		&e.ID,
		&e.AssignmentID,
		&e.EvaluatorStudentID,
		&e.EvaluatorInstructorID,
		&e.EvaluatedStudentID,
		&e.Payload,
		&fileGrades,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(fileGrades) > 0 {
		if err := json.Unmarshal(fileGrades, &e.FileGrades); err != nil {
			return nil, fmt.Errorf("failed to unmarshal file grades: %w", err)
		}
	}
	return &e, nil
}

func marshalFileGrades(grades map[string]float64) ([]byte, error) {
	if len(grades) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(grades)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal file grades: %w", err)
	}
	return data, nil
}
