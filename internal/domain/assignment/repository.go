package assignment

import (
	"context"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// Repository определяет операции хранилища для заданий.
type Repository interface {
	// Create создаёт задание. Агрегат сохраняется как NULL.
	Create(ctx context.Context, a *Assignment) error

	// GetByID возвращает задание по ID.
	// Возвращает ErrAssignmentNotFound, если задание не найдено.
	GetByID(ctx context.Context, id string) (*Assignment, error)

	// Update обновляет название, рубрику и даты. Агрегат не трогается.
	Update(ctx context.Context, a *Assignment) error

	// Delete удаляет задание вместе с его оценками.
	Delete(ctx context.Context, id string) error

	// ListByClass возвращает задания класса.
	ListByClass(ctx context.Context, classID string) ([]*Assignment, error)

	// ListIDs возвращает ID всех заданий постранично (для фонового пересчёта).
	ListIDs(ctx context.Context, page shared.Page) ([]string, error)

	// SetAggregate записывает пересчитанный агрегат.
	// Единственный путь записи mediaGeral.
	SetAggregate(ctx context.Context, id string, value float64) error
}
