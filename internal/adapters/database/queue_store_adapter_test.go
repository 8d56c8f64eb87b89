package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
	"github.com/zatekoja/hospitalops/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

func setupStore(t *testing.T) (repositories.QueueStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewQueueStoreAdapter(postgres.NewClientFromDB(db)), mock
}

func statusRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "department", "is_open", "current_schedule_id", "current_serving",
		"total_waiting", "estimated_wait_seconds", "status_message",
		"last_updated_by", "last_updated_at",
	}).AddRow(1, "OPD", true, nil, nil, 2, 600, "Queue Open - 2 waiting Estimated wait: 10m0s", nil, time.Now())
}

func TestWithDepartmentLockLocksStatusRow(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "queue_status" WHERE .* FOR UPDATE`).
		WithArgs("OPD").
		WillReturnRows(statusRow())
	mock.ExpectCommit()

	err := store.WithDepartmentLock(context.Background(), entities.DepartmentOPD, func(ctx context.Context, tx repositories.QueueTx) error {
		status, err := tx.Status(ctx)
		require.NoError(t, err)
		assert.True(t, status.IsOpen)
		assert.Equal(t, 2, status.TotalWaiting)
		require.NotNil(t, status.EstimatedWait)
		assert.Equal(t, 10*time.Minute, *status.EstimatedWait)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithDepartmentLockCreatesStatusRowWhenMissing(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "queue_status" WHERE .* FOR UPDATE`).
		WithArgs("Pharmacy").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO "queue_status"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	err := store.WithDepartmentLock(context.Background(), entities.DepartmentPharmacy, func(ctx context.Context, tx repositories.QueueTx) error {
		status, err := tx.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(7), status.ID)
		assert.False(t, status.IsOpen)
		assert.Equal(t, "Queue Closed", status.StatusMessage)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithDepartmentLockRollsBackOnError(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "queue_status" WHERE .* FOR UPDATE`).
		WithArgs("OPD").
		WillReturnRows(statusRow())
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.WithDepartmentLock(context.Background(), entities.DepartmentOPD, func(ctx context.Context, tx repositories.QueueTx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithDepartmentLockRejectsUnknownDepartment(t *testing.T) {
	store, _ := setupStore(t)

	err := store.WithDepartmentLock(context.Background(), entities.Department("Cafeteria"), func(ctx context.Context, tx repositories.QueueTx) error {
		t.Fatal("fn should not run")
		return nil
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestNextTicketAdvancesSharedCounter(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "queue_status" WHERE .* FOR UPDATE`).
		WithArgs("OPD").
		WillReturnRows(statusRow())
	mock.ExpectQuery(`UPDATE "queue_counters" SET .*value \+ 1.* RETURNING "value"`).
		WithArgs("ticket").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(42))
	mock.ExpectCommit()

	err := store.WithDepartmentLock(context.Background(), entities.DepartmentOPD, func(ctx context.Context, tx repositories.QueueTx) error {
		ticket, err := tx.NextTicket(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(42), ticket)
		return nil
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenumberPositionsRanksByEnqueueTime(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "queue_status" WHERE .* FOR UPDATE`).
		WithArgs("OPD").
		WillReturnRows(statusRow())
	mock.ExpectExec(`UPDATE queue_entries qe\s+SET position = ranked\.rn`).
		WithArgs("OPD").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := store.WithDepartmentLock(context.Background(), entities.DepartmentOPD, func(ctx context.Context, tx repositories.QueueTx) error {
		return tx.RenumberPositions(ctx)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertNormalAssignsDensePosition(t *testing.T) {
	store, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "queue_status" WHERE .* FOR UPDATE`).
		WithArgs("OPD").
		WillReturnRows(statusRow())
	mock.ExpectQuery(`SELECT COALESCE\(MAX\("position"\)`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(4))
	mock.ExpectQuery(`INSERT INTO "queue_entries"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	entry := &entities.QueueEntry{PatientID: 9, QueueNumber: 42, EnqueueTime: time.Now()}
	err := store.WithDepartmentLock(context.Background(), entities.DepartmentOPD, func(ctx context.Context, tx repositories.QueueTx) error {
		return tx.InsertNormal(ctx, entry)
	})

	require.NoError(t, err)
	assert.Equal(t, int64(11), entry.ID)
	assert.Equal(t, 5, entry.Position)
	assert.Equal(t, entities.EntryStatusWaiting, entry.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
