package evaluation

import "context"

// Repository определяет операции хранилища для оценок.
type Repository interface {
	// Create сохраняет оценку.
	Create(ctx context.Context, e *Evaluation) error

	// GetByID возвращает оценку по ID.
	// Возвращает ErrEvaluationNotFound, если оценка не найдена.
	GetByID(ctx context.Context, id string) (*Evaluation, error)

	// Update заменяет payload и баллы за файлы.
	Update(ctx context.Context, e *Evaluation) error

	// Delete удаляет оценку.
	Delete(ctx context.Context, id string) error

	// ListByAssignment возвращает все оценки задания.
	ListByAssignment(ctx context.Context, assignmentID string) ([]*Evaluation, error)

	// ListByAssignmentAndEvaluated возвращает оценки задания, где студент -
	// оцениваемый.
	ListByAssignmentAndEvaluated(ctx context.Context, assignmentID, studentID string) ([]*Evaluation, error)

	// DeleteByEvaluator удаляет оценки по заданиям assignmentIDs, где студент -
	// оценивающий. Возвращает ID заданий, у которых что-то удалено.
	DeleteByEvaluator(ctx context.Context, assignmentIDs []string, studentID string) ([]string, error)

	// DeleteByEvaluated удаляет оценки по заданиям assignmentIDs, где студент -
	// оцениваемый. Возвращает ID заданий, у которых что-то удалено.
	DeleteByEvaluated(ctx context.Context, assignmentIDs []string, studentID string) ([]string, error)

	// DeleteByStudent удаляет все оценки с участием студента во всех заданиях.
	// Возвращает ID затронутых заданий.
	DeleteByStudent(ctx context.Context, studentID string) ([]string, error)
}
