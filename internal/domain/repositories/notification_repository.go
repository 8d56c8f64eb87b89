package repositories

import (
	"context"

	"github.com/zatekoja/hospitalops/internal/domain/entities"
)

// NotificationRepository persists durable notifications
type NotificationRepository interface {
	// Create inserts a notification and fills in its ID and timestamps
	Create(ctx context.Context, notification *entities.Notification) error

	// GetByID retrieves a notification by its ID
	GetByID(ctx context.Context, id int64) (*entities.Notification, error)

	// Update persists delivery status, attempts and read-state changes
	Update(ctx context.Context, notification *entities.Notification) error

	// ListForUser returns a user's notifications, newest first
	ListForUser(ctx context.Context, userID int64, limit int) ([]*entities.Notification, error)

	// ListRetryable returns failed notifications still under the attempt cap
	ListRetryable(ctx context.Context, limit int) ([]*entities.Notification, error)

	// MarkAllRead flags every unread notification of a user as read and
	// returns how many rows changed
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}
