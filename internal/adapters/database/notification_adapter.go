package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

// NotificationAdapter implements the NotificationRepository interface
type NotificationAdapter struct {
	db *sqlx.DB
}

// NewNotificationAdapter creates a new notification adapter
func NewNotificationAdapter(db *sqlx.DB) repositories.NotificationRepository {
	return &NotificationAdapter{db: db}
}

// Create inserts a notification and fills in its ID
func (a *NotificationAdapter) Create(ctx context.Context, notification *entities.Notification) error {
	now := time.Now().UTC()
	notification.CreatedAt = now
	notification.UpdatedAt = now
	if notification.DeliveryStatus == "" {
		notification.DeliveryStatus = entities.DeliveryPending
	}

	query := `
		INSERT INTO notifications
		(user_id, message, channel, delivery_status, sent_at, delivered_at, attempts, is_read, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := a.db.QueryRowContext(ctx, query,
		notification.UserID, notification.Message, notification.Channel,
		notification.DeliveryStatus, notification.SentAt, notification.DeliveredAt,
		notification.Attempts, notification.IsRead, notification.CreatedAt, notification.UpdatedAt,
	).Scan(&notification.ID)
	if err != nil {
		return apperrors.NewInternalError("failed to create notification", err)
	}
	return nil
}

// GetByID retrieves a notification by ID
func (a *NotificationAdapter) GetByID(ctx context.Context, id int64) (*entities.Notification, error) {
	var notification entities.Notification
	query := `SELECT * FROM notifications WHERE id = $1`

	err := a.db.GetContext(ctx, &notification, query, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("notification with id %d not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get notification", err)
	}
	return &notification, nil
}

// Update persists delivery status, attempts and read-state changes
func (a *NotificationAdapter) Update(ctx context.Context, notification *entities.Notification) error {
	notification.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE notifications
		SET delivery_status = $1, sent_at = $2, delivered_at = $3, attempts = $4,
		    is_read = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := a.db.ExecContext(ctx, query,
		notification.DeliveryStatus, notification.SentAt, notification.DeliveredAt,
		notification.Attempts, notification.IsRead, notification.UpdatedAt, notification.ID,
	)
	if err != nil {
		return apperrors.NewInternalError("failed to update notification", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("notification with id %d not found", notification.ID))
	}
	return nil
}

// ListForUser returns a user's notifications, newest first
func (a *NotificationAdapter) ListForUser(ctx context.Context, userID int64, limit int) ([]*entities.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	var notifications []*entities.Notification
	query := `SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	if err := a.db.SelectContext(ctx, &notifications, query, userID, limit); err != nil {
		return nil, apperrors.NewInternalError("failed to list notifications", err)
	}
	return notifications, nil
}

// ListRetryable returns failed notifications still under the attempt cap
func (a *NotificationAdapter) ListRetryable(ctx context.Context, limit int) ([]*entities.Notification, error) {
	if limit <= 0 {
		limit = 500
	}

	var notifications []*entities.Notification
	query := `
		SELECT * FROM notifications
		WHERE delivery_status = $1 AND attempts < $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	err := a.db.SelectContext(ctx, &notifications, query,
		entities.DeliveryFailed, entities.MaxDeliveryAttempts, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list retryable notifications", err)
	}
	return notifications, nil
}

// MarkAllRead flags every unread notification of a user as read
func (a *NotificationAdapter) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	query := `UPDATE notifications SET is_read = true, updated_at = $1 WHERE user_id = $2 AND is_read = false`

	result, err := a.db.ExecContext(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to mark notifications read", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to get rows affected", err)
	}
	return rowsAffected, nil
}
