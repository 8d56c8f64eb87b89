package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "postgres")
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestNotificationAdapterCreate(t *testing.T) {
	db, mock := setupMockDB(t)
	adapter := NewNotificationAdapter(db)

	mock.ExpectQuery(`INSERT INTO notifications`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	notification := &entities.Notification{
		UserID:  12,
		Message: "You joined the queue. Your number is #7. Position: 2",
		Channel: entities.ChannelWebsocket,
	}
	err := adapter.Create(context.Background(), notification)

	require.NoError(t, err)
	assert.Equal(t, int64(3), notification.ID)
	assert.Equal(t, entities.DeliveryPending, notification.DeliveryStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationAdapterListRetryable(t *testing.T) {
	db, mock := setupMockDB(t)
	adapter := NewNotificationAdapter(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "message", "channel", "delivery_status",
		"sent_at", "delivered_at", "attempts", "is_read", "created_at", "updated_at",
	}).
		AddRow(1, 12, "Your turn at OPD", "websocket", "failed", nil, nil, 1, false, now, now).
		AddRow(2, 15, "Queue closed", "websocket", "failed", nil, nil, 2, false, now, now)

	mock.ExpectQuery(`SELECT \* FROM notifications\s+WHERE delivery_status = \$1 AND attempts < \$2`).
		WithArgs(entities.DeliveryFailed, entities.MaxDeliveryAttempts, 500).
		WillReturnRows(rows)

	notifications, err := adapter.ListRetryable(context.Background(), 0)

	require.NoError(t, err)
	require.Len(t, notifications, 2)
	assert.True(t, notifications[0].Retryable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationAdapterUpdateNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	adapter := NewNotificationAdapter(db)

	mock.ExpectExec(`UPDATE notifications`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := adapter.Update(context.Background(), &entities.Notification{ID: 99})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationAdapterMarkAllRead(t *testing.T) {
	db, mock := setupMockDB(t)
	adapter := NewNotificationAdapter(db)

	mock.ExpectExec(`UPDATE notifications SET is_read = true`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	count, err := adapter.MarkAllRead(context.Background(), 12)

	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
