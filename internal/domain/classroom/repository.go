package classroom

import (
	"context"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// Repository определяет операции хранилища для классов.
// Ростер читается и меняется через student.Repository.
type Repository interface {
	// Create создаёт класс.
	Create(ctx context.Context, c *Class) error

	// GetByID возвращает класс по ID.
	// Возвращает ErrClassNotFound, если класс не найден.
	GetByID(ctx context.Context, id string) (*Class, error)

	// Update обновляет название и преподавателя.
	Update(ctx context.Context, c *Class) error

	// Delete удаляет класс. Задания класса удаляются вместе с ним,
	// студенты остаются без класса.
	Delete(ctx context.Context, id string) error

	// List возвращает классы с пагинацией.
	List(ctx context.Context, page shared.Page) ([]*Class, error)
}
