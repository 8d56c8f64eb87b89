package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/lib/pq"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
	"github.com/zatekoja/hospitalops/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

var dialect = goqu.Dialect("postgres")

const pqUniqueViolation = "23505"

// ticketCounter is the shared counter row feeding queue numbers for both
// entry classes
const ticketCounter = "ticket"

var normalEntryColumns = []interface{}{
	"id", "patient_id", "department", "queue_number", "position", "status",
	"enqueue_time", "started_at", "finished_at", "dequeue_time", "actual_wait_seconds",
}

var priorityEntryColumns = []interface{}{
	"id", "patient_id", "department", "queue_number", "priority_level",
	"priority_position", "status", "enqueue_time", "started_at", "finished_at",
	"dequeue_time", "actual_wait_seconds",
}

var scheduleColumns = []interface{}{
	"id", "department", "nurse_id", "start_time", "end_time", "days_of_week",
	"is_active", "manual_override", "override_status", "created_at", "updated_at",
}

// QueueStoreAdapter implements the QueueStore interface on PostgreSQL.
// All mutations run inside WithDepartmentLock, which serializes writers
// per department through a row lock on queue_status.
type QueueStoreAdapter struct {
	client *postgres.Client
}

// NewQueueStoreAdapter creates a new queue store adapter
func NewQueueStoreAdapter(client *postgres.Client) repositories.QueueStore {
	return &QueueStoreAdapter{client: client}
}

// WithDepartmentLock opens a transaction, locks the department's status row
// and runs fn. The status row is created closed on first use.
func (a *QueueStoreAdapter) WithDepartmentLock(ctx context.Context, department entities.Department, fn func(ctx context.Context, tx repositories.QueueTx) error) error {
	if !department.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown department %q", department), nil)
	}

	tx, err := a.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}

	qtx := &queueTx{tx: tx, department: department}
	if err := qtx.lockStatusRow(ctx); err != nil {
		tx.Rollback()
		return err
	}

	if err := fn(ctx, qtx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit transaction", err)
	}
	return nil
}

// CreateSchedule inserts a schedule, enforcing one per (department, nurse)
func (a *QueueStoreAdapter) CreateSchedule(ctx context.Context, schedule *entities.QueueSchedule) error {
	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	if schedule.OverrideStatus == "" {
		schedule.OverrideStatus = entities.OverrideAuto
	}

	query, args, err := dialect.Insert("queue_schedules").Rows(goqu.Record{
		"department":      schedule.Department,
		"nurse_id":        schedule.NurseID,
		"start_time":      schedule.StartTime,
		"end_time":        schedule.EndTime,
		"days_of_week":    pq.Array(toInt64s(schedule.DaysOfWeek)),
		"is_active":       schedule.IsActive,
		"manual_override": schedule.ManualOverride,
		"override_status": schedule.OverrideStatus,
		"created_at":      schedule.CreatedAt,
		"updated_at":      schedule.UpdatedAt,
	}).Returning("id").ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(&schedule.ID)
	if isUniqueViolation(err) {
		return apperrors.NewConflictError(fmt.Sprintf("nurse %d already has a schedule for %s", schedule.NurseID, schedule.Department))
	}
	if err != nil {
		return apperrors.NewInternalError("failed to create schedule", err)
	}
	return nil
}

// UpdateSchedule updates an existing schedule
func (a *QueueStoreAdapter) UpdateSchedule(ctx context.Context, schedule *entities.QueueSchedule) error {
	schedule.UpdatedAt = time.Now().UTC()

	query, args, err := dialect.Update("queue_schedules").Set(goqu.Record{
		"department":      schedule.Department,
		"nurse_id":        schedule.NurseID,
		"start_time":      schedule.StartTime,
		"end_time":        schedule.EndTime,
		"days_of_week":    pq.Array(toInt64s(schedule.DaysOfWeek)),
		"is_active":       schedule.IsActive,
		"manual_override": schedule.ManualOverride,
		"override_status": schedule.OverrideStatus,
		"updated_at":      schedule.UpdatedAt,
	}).Where(goqu.Ex{"id": schedule.ID}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return apperrors.NewConflictError(fmt.Sprintf("nurse %d already has a schedule for %s", schedule.NurseID, schedule.Department))
	}
	if err != nil {
		return apperrors.NewInternalError("failed to update schedule", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("schedule with id %d not found", schedule.ID))
	}
	return nil
}

// DeleteSchedule removes a schedule and returns the deleted row
func (a *QueueStoreAdapter) DeleteSchedule(ctx context.Context, id int64) (*entities.QueueSchedule, error) {
	schedule, err := a.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	query, args, err := dialect.Delete("queue_schedules").Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build delete query", err)
	}
	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return nil, apperrors.NewInternalError("failed to delete schedule", err)
	}
	return schedule, nil
}

// GetSchedule retrieves a schedule by ID
func (a *QueueStoreAdapter) GetSchedule(ctx context.Context, id int64) (*entities.QueueSchedule, error) {
	query, args, err := dialect.From("queue_schedules").
		Select(scheduleColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	schedule, err := scanSchedule(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("schedule with id %d not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get schedule", err)
	}
	return schedule, nil
}

// ListSchedules lists schedules, optionally for one department
func (a *QueueStoreAdapter) ListSchedules(ctx context.Context, department *entities.Department) ([]*entities.QueueSchedule, error) {
	ds := dialect.From("queue_schedules").
		Select(scheduleColumns...).
		Order(goqu.I("department").Asc(), goqu.I("nurse_id").Asc())
	if department != nil {
		ds = ds.Where(goqu.Ex{"department": *department})
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list schedules", err)
	}
	defer rows.Close()

	var schedules []*entities.QueueSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan schedule", err)
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

// GetStatus retrieves a department's queue status without locking
func (a *QueueStoreAdapter) GetStatus(ctx context.Context, department entities.Department) (*entities.QueueStatus, error) {
	query, args, err := statusSelect().Where(goqu.Ex{"department": department}).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	status, err := scanStatus(a.client.DB().QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no queue status for department %s", department))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get queue status", err)
	}
	return status, nil
}

// ListStatuses retrieves every department's queue status
func (a *QueueStoreAdapter) ListStatuses(ctx context.Context) ([]*entities.QueueStatus, error) {
	query, args, err := statusSelect().Order(goqu.I("department").Asc()).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list queue statuses", err)
	}
	defer rows.Close()

	var statuses []*entities.QueueStatus
	for rows.Next() {
		status, err := scanStatus(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan queue status", err)
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

// ListStatusLogs lists status transitions, newest first
func (a *QueueStoreAdapter) ListStatusLogs(ctx context.Context, department *entities.Department, limit int) ([]*entities.QueueStatusLog, error) {
	ds := dialect.From("queue_status_logs").
		Select("id", "department", "previous_status", "new_status",
			"change_reason", "changed_by", "notes", "changed_at").
		Order(goqu.I("changed_at").Desc())
	if department != nil {
		ds = ds.Where(goqu.Ex{"department": *department})
	}
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list status logs", err)
	}
	defer rows.Close()

	var logs []*entities.QueueStatusLog
	for rows.Next() {
		log := &entities.QueueStatusLog{}
		var changedBy sql.NullInt64
		if err := rows.Scan(&log.ID, &log.Department, &log.PreviousStatus, &log.NewStatus,
			&log.ChangeReason, &changedBy, &log.Notes, &log.ChangedAt); err != nil {
			return nil, apperrors.NewInternalError("failed to scan status log", err)
		}
		if changedBy.Valid {
			log.ChangedBy = &changedBy.Int64
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// ListEntries returns both classes of a department's entries, line order first
func (a *QueueStoreAdapter) ListEntries(ctx context.Context, department entities.Department) ([]*entities.QueueEntry, []*entities.PriorityEntry, error) {
	normalQuery, normalArgs, err := dialect.From("queue_entries").
		Select(normalEntryColumns...).
		Where(goqu.Ex{
			"department": department,
			"status":     []string{string(entities.EntryStatusWaiting), string(entities.EntryStatusInProgress)},
		}).
		Order(goqu.I("position").Asc(), goqu.I("enqueue_time").Asc()).
		ToSQL()
	if err != nil {
		return nil, nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, normalQuery, normalArgs...)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("failed to list queue entries", err)
	}
	defer rows.Close()

	var normal []*entities.QueueEntry
	for rows.Next() {
		entry, err := scanNormalEntry(rows)
		if err != nil {
			return nil, nil, apperrors.NewInternalError("failed to scan queue entry", err)
		}
		normal = append(normal, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperrors.NewInternalError("failed to list queue entries", err)
	}

	priorityQuery, priorityArgs, err := dialect.From("priority_entries").
		Select(priorityEntryColumns...).
		Where(goqu.Ex{
			"department": department,
			"status":     []string{string(entities.EntryStatusWaiting), string(entities.EntryStatusInProgress)},
		}).
		Order(goqu.I("priority_position").Asc(), goqu.I("enqueue_time").Asc()).
		ToSQL()
	if err != nil {
		return nil, nil, apperrors.NewInternalError("failed to build query", err)
	}

	prows, err := a.client.DB().QueryContext(ctx, priorityQuery, priorityArgs...)
	if err != nil {
		return nil, nil, apperrors.NewInternalError("failed to list priority entries", err)
	}
	defer prows.Close()

	var priority []*entities.PriorityEntry
	for prows.Next() {
		entry, err := scanPriorityEntry(prows)
		if err != nil {
			return nil, nil, apperrors.NewInternalError("failed to scan priority entry", err)
		}
		priority = append(priority, entry)
	}
	return normal, priority, prows.Err()
}

// ActiveEntryForPatient checks both classes for a live entry in the department
func (a *QueueStoreAdapter) ActiveEntryForPatient(ctx context.Context, patientID int64, department entities.Department) (*repositories.ActiveEntry, error) {
	return activeEntryForPatient(ctx, a.client.DB(), patientID, &department)
}

// queueTx carries one department's locked transaction
type queueTx struct {
	tx         *sql.Tx
	department entities.Department
	status     *entities.QueueStatus
	created    bool
}

func (t *queueTx) Department() entities.Department {
	return t.department
}

// lockStatusRow takes the per-department write lock, creating the row
// closed when the department has never been touched
func (t *queueTx) lockStatusRow(ctx context.Context) error {
	query, args, err := statusSelect().
		Where(goqu.Ex{"department": t.department}).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build lock query", err)
	}

	status, err := scanStatus(t.tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return t.createStatusRow(ctx)
	}
	if err != nil {
		return apperrors.NewInternalError("failed to lock queue status", err)
	}
	t.status = status
	return nil
}

func (t *queueTx) createStatusRow(ctx context.Context) error {
	now := time.Now().UTC()
	status := &entities.QueueStatus{
		Department:    t.department,
		IsOpen:        false,
		StatusMessage: "Queue Closed",
		LastUpdatedAt: now,
	}

	query, args, err := dialect.Insert("queue_status").Rows(goqu.Record{
		"department":      status.Department,
		"is_open":         status.IsOpen,
		"total_waiting":   status.TotalWaiting,
		"status_message":  status.StatusMessage,
		"last_updated_at": status.LastUpdatedAt,
	}).Returning("id").ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&status.ID); err != nil {
		return apperrors.NewInternalError("failed to create queue status", err)
	}
	t.status = status
	t.created = true
	return nil
}

// Status returns the locked status row
func (t *queueTx) Status(ctx context.Context) (*entities.QueueStatus, error) {
	return t.status, nil
}

// StatusCreated reports whether the lock created the status row
func (t *queueTx) StatusCreated() bool {
	return t.created
}

// SaveStatus writes the status row back
func (t *queueTx) SaveStatus(ctx context.Context, status *entities.QueueStatus) error {
	record := goqu.Record{
		"is_open":         status.IsOpen,
		"total_waiting":   status.TotalWaiting,
		"status_message":  status.StatusMessage,
		"last_updated_at": status.LastUpdatedAt,
	}
	record["current_schedule_id"] = nullableInt64(status.CurrentScheduleID)
	record["current_serving"] = nullableInt64(status.CurrentServing)
	record["last_updated_by"] = nullableInt64(status.LastUpdatedBy)
	if status.EstimatedWait != nil {
		record["estimated_wait_seconds"] = int64(status.EstimatedWait.Seconds())
	} else {
		record["estimated_wait_seconds"] = nil
	}

	query, args, err := dialect.Update("queue_status").
		Set(record).
		Where(goqu.Ex{"id": status.ID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to save queue status", err)
	}
	t.status = status
	return nil
}

// AppendLog appends a status transition to the audit log
func (t *queueTx) AppendLog(ctx context.Context, log *entities.QueueStatusLog) error {
	query, args, err := dialect.Insert("queue_status_logs").Rows(goqu.Record{
		"department":      log.Department,
		"previous_status": log.PreviousStatus,
		"new_status":      log.NewStatus,
		"change_reason":   log.ChangeReason,
		"changed_by":      nullableInt64(log.ChangedBy),
		"notes":           log.Notes,
		"changed_at":      log.ChangedAt,
	}).Returning("id").ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&log.ID); err != nil {
		return apperrors.NewInternalError("failed to append status log", err)
	}
	return nil
}

// ActiveSchedule returns the department's active schedule, nil when none
func (t *queueTx) ActiveSchedule(ctx context.Context) (*entities.QueueSchedule, error) {
	query, args, err := dialect.From("queue_schedules").
		Select(scheduleColumns...).
		Where(goqu.Ex{"department": t.department, "is_active": true}).
		Order(goqu.I("updated_at").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	schedule, err := scanSchedule(t.tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get active schedule", err)
	}
	return schedule, nil
}

// NextTicket increments and returns the shared ticket counter
func (t *queueTx) NextTicket(ctx context.Context) (int64, error) {
	query, args, err := dialect.Update("queue_counters").
		Set(goqu.Record{"value": goqu.L("value + 1")}).
		Where(goqu.Ex{"name": ticketCounter}).
		Returning("value").
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build counter query", err)
	}

	var ticket int64
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&ticket); err != nil {
		return 0, apperrors.NewInternalError("failed to advance ticket counter", err)
	}
	return ticket, nil
}

// InsertNormal appends to the FIFO line, assigning the next dense position
func (t *queueTx) InsertNormal(ctx context.Context, entry *entities.QueueEntry) error {
	position, err := t.nextPosition(ctx, "queue_entries", "position")
	if err != nil {
		return err
	}
	entry.Position = position
	entry.Department = t.department
	entry.Status = entities.EntryStatusWaiting

	query, args, err := dialect.Insert("queue_entries").Rows(goqu.Record{
		"patient_id":   entry.PatientID,
		"department":   entry.Department,
		"queue_number": entry.QueueNumber,
		"position":     entry.Position,
		"status":       entry.Status,
		"enqueue_time": entry.EnqueueTime,
	}).Returning("id").ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&entry.ID); err != nil {
		return apperrors.NewInternalError("failed to insert queue entry", err)
	}
	return nil
}

// InsertPriority appends to the priority line
func (t *queueTx) InsertPriority(ctx context.Context, entry *entities.PriorityEntry) error {
	position, err := t.nextPosition(ctx, "priority_entries", "priority_position")
	if err != nil {
		return err
	}
	entry.PriorityPosition = position
	entry.Department = t.department
	entry.Status = entities.EntryStatusWaiting

	query, args, err := dialect.Insert("priority_entries").Rows(goqu.Record{
		"patient_id":        entry.PatientID,
		"department":        entry.Department,
		"queue_number":      entry.QueueNumber,
		"priority_level":    entry.PriorityLevel,
		"priority_position": entry.PriorityPosition,
		"status":            entry.Status,
		"enqueue_time":      entry.EnqueueTime,
	}).Returning("id").ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&entry.ID); err != nil {
		return apperrors.NewInternalError("failed to insert priority entry", err)
	}
	return nil
}

func (t *queueTx) nextPosition(ctx context.Context, table, column string) (int, error) {
	query, args, err := dialect.From(table).
		Select(goqu.COALESCE(goqu.MAX(column), 0)).
		Where(goqu.Ex{
			"department": t.department,
			"status":     []string{string(entities.EntryStatusWaiting), string(entities.EntryStatusInProgress)},
		}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build position query", err)
	}

	var max int
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		return 0, apperrors.NewInternalError("failed to compute next position", err)
	}
	return max + 1, nil
}

// ActiveEntryForPatient checks both classes inside the transaction
func (t *queueTx) ActiveEntryForPatient(ctx context.Context, patientID int64) (*repositories.ActiveEntry, error) {
	return activeEntryForPatient(ctx, t.tx, patientID, &t.department)
}

// CountWaiting counts waiting entries across both classes
func (t *queueTx) CountWaiting(ctx context.Context) (int, error) {
	total := 0
	for _, table := range []string{"queue_entries", "priority_entries"} {
		query, args, err := dialect.From(table).
			Select(goqu.COUNT("*")).
			Where(goqu.Ex{"department": t.department, "status": entities.EntryStatusWaiting}).
			ToSQL()
		if err != nil {
			return 0, apperrors.NewInternalError("failed to build count query", err)
		}
		var n int
		if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
			return 0, apperrors.NewInternalError("failed to count waiting entries", err)
		}
		total += n
	}
	return total, nil
}

const renumberPositionsQuery = `
UPDATE queue_entries qe
SET position = ranked.rn
FROM (
    SELECT id, ROW_NUMBER() OVER (ORDER BY enqueue_time, id) AS rn
    FROM queue_entries
    WHERE department = $1 AND status = 'waiting'
) ranked
WHERE qe.id = ranked.id`

// RenumberPositions closes gaps in the FIFO line after a removal
func (t *queueTx) RenumberPositions(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, renumberPositionsQuery, t.department); err != nil {
		return apperrors.NewInternalError("failed to renumber positions", err)
	}
	return nil
}

// NextPriority returns the head of the priority line, nil when empty
func (t *queueTx) NextPriority(ctx context.Context) (*entities.PriorityEntry, error) {
	query, args, err := dialect.From("priority_entries").
		Select(priorityEntryColumns...).
		Where(goqu.Ex{"department": t.department, "status": entities.EntryStatusWaiting}).
		Order(goqu.I("priority_position").Asc(), goqu.I("enqueue_time").Asc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	entry, err := scanPriorityEntry(t.tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get next priority entry", err)
	}
	return entry, nil
}

// NextNormal returns the head of the FIFO line, nil when empty
func (t *queueTx) NextNormal(ctx context.Context) (*entities.QueueEntry, error) {
	query, args, err := dialect.From("queue_entries").
		Select(normalEntryColumns...).
		Where(goqu.Ex{"department": t.department, "status": entities.EntryStatusWaiting}).
		Order(goqu.I("position").Asc(), goqu.I("enqueue_time").Asc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	entry, err := scanNormalEntry(t.tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get next queue entry", err)
	}
	return entry, nil
}

// CurrentInProgressNormal returns the FIFO entry being served, nil when none
func (t *queueTx) CurrentInProgressNormal(ctx context.Context) (*entities.QueueEntry, error) {
	query, args, err := dialect.From("queue_entries").
		Select(normalEntryColumns...).
		Where(goqu.Ex{"department": t.department, "status": entities.EntryStatusInProgress}).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	entry, err := scanNormalEntry(t.tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get in-progress entry", err)
	}
	return entry, nil
}

// CurrentInProgressPriority returns the priority entry being served, nil when none
func (t *queueTx) CurrentInProgressPriority(ctx context.Context) (*entities.PriorityEntry, error) {
	query, args, err := dialect.From("priority_entries").
		Select(priorityEntryColumns...).
		Where(goqu.Ex{"department": t.department, "status": entities.EntryStatusInProgress}).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	entry, err := scanPriorityEntry(t.tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get in-progress priority entry", err)
	}
	return entry, nil
}

// MarkNormalStarted moves a FIFO entry to in_progress
func (t *queueTx) MarkNormalStarted(ctx context.Context, id int64, at time.Time) error {
	return t.markStarted(ctx, "queue_entries", id, at)
}

// MarkPriorityStarted moves a priority entry to in_progress
func (t *queueTx) MarkPriorityStarted(ctx context.Context, id int64, at time.Time) error {
	return t.markStarted(ctx, "priority_entries", id, at)
}

func (t *queueTx) markStarted(ctx context.Context, table string, id int64, at time.Time) error {
	query, args, err := dialect.Update(table).Set(goqu.Record{
		"status":     entities.EntryStatusInProgress,
		"started_at": at,
	}).Where(goqu.Ex{"id": id, "department": t.department}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}
	return t.execExpectingRow(ctx, query, args, id)
}

// MarkNormalCompleted finishes a FIFO entry, recording its actual wait
func (t *queueTx) MarkNormalCompleted(ctx context.Context, id int64, at time.Time) error {
	return t.markCompleted(ctx, "queue_entries", id, at)
}

// MarkPriorityCompleted finishes a priority entry
func (t *queueTx) MarkPriorityCompleted(ctx context.Context, id int64, at time.Time) error {
	return t.markCompleted(ctx, "priority_entries", id, at)
}

func (t *queueTx) markCompleted(ctx context.Context, table string, id int64, at time.Time) error {
	query, args, err := dialect.Update(table).Set(goqu.Record{
		"status":              entities.EntryStatusCompleted,
		"finished_at":         at,
		"dequeue_time":        at,
		"actual_wait_seconds": goqu.L("EXTRACT(EPOCH FROM (? - enqueue_time))::bigint", at),
	}).Where(goqu.Ex{"id": id, "department": t.department}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}
	return t.execExpectingRow(ctx, query, args, id)
}

// DeleteNormal removes a FIFO entry outright
func (t *queueTx) DeleteNormal(ctx context.Context, id int64) error {
	return t.deleteEntry(ctx, "queue_entries", id)
}

// DeletePriority removes a priority entry outright
func (t *queueTx) DeletePriority(ctx context.Context, id int64) error {
	return t.deleteEntry(ctx, "priority_entries", id)
}

func (t *queueTx) deleteEntry(ctx context.Context, table string, id int64) error {
	query, args, err := dialect.Delete(table).
		Where(goqu.Ex{"id": id, "department": t.department}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}
	return t.execExpectingRow(ctx, query, args, id)
}

func (t *queueTx) execExpectingRow(ctx context.Context, query string, args []interface{}, id int64) error {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to execute statement", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.NewInternalError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("entry with id %d not found in %s", id, t.department))
	}
	return nil
}

// FindNormal resolves an active FIFO entry by primary key or queue number
func (t *queueTx) FindNormal(ctx context.Context, ref int64) (*entities.QueueEntry, error) {
	query, args, err := dialect.From("queue_entries").
		Select(normalEntryColumns...).
		Where(
			goqu.Ex{
				"department": t.department,
				"status":     []string{string(entities.EntryStatusWaiting), string(entities.EntryStatusInProgress)},
			},
			goqu.ExOr{"id": ref, "queue_number": ref},
		).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	entry, err := scanNormalEntry(t.tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to find queue entry", err)
	}
	return entry, nil
}

// FindPriority resolves an active priority entry by primary key or queue number
func (t *queueTx) FindPriority(ctx context.Context, ref int64) (*entities.PriorityEntry, error) {
	query, args, err := dialect.From("priority_entries").
		Select(priorityEntryColumns...).
		Where(
			goqu.Ex{
				"department": t.department,
				"status":     []string{string(entities.EntryStatusWaiting), string(entities.EntryStatusInProgress)},
			},
			goqu.ExOr{"id": ref, "queue_number": ref},
		).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	entry, err := scanPriorityEntry(t.tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to find priority entry", err)
	}
	return entry, nil
}

// ListWaitingNormal returns the waiting FIFO entries in position order
func (t *queueTx) ListWaitingNormal(ctx context.Context) ([]*entities.QueueEntry, error) {
	query, args, err := dialect.From("queue_entries").
		Select(normalEntryColumns...).
		Where(goqu.Ex{"department": t.department, "status": entities.EntryStatusWaiting}).
		Order(goqu.I("position").Asc(), goqu.I("enqueue_time").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list waiting entries", err)
	}
	defer rows.Close()

	var entries []*entities.QueueEntry
	for rows.Next() {
		entry, err := scanNormalEntry(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan queue entry", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// AverageServiceTime averages started-to-finished over completed normal
// entries; ok is false when no completed entry carries both timestamps.
// The priority line is not sampled.
func (t *queueTx) AverageServiceTime(ctx context.Context) (time.Duration, bool, error) {
	query, args, err := dialect.From("queue_entries").
		Select(
			goqu.COALESCE(goqu.L("SUM(EXTRACT(EPOCH FROM (finished_at - started_at)))"), 0),
			goqu.COUNT("*"),
		).
		Where(goqu.Ex{
			"department": t.department,
			"status":     entities.EntryStatusCompleted,
		}).
		Where(goqu.C("started_at").IsNotNull(), goqu.C("finished_at").IsNotNull()).
		ToSQL()
	if err != nil {
		return 0, false, apperrors.NewInternalError("failed to build query", err)
	}

	var seconds float64
	var count int64
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&seconds, &count); err != nil {
		return 0, false, apperrors.NewInternalError("failed to compute service time", err)
	}

	if count == 0 {
		return 0, false, nil
	}
	avg := time.Duration(seconds/float64(count)) * time.Second
	return avg, true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func activeEntryForPatient(ctx context.Context, q queryer, patientID int64, department *entities.Department) (*repositories.ActiveEntry, error) {
	lookups := []struct {
		class entities.QueueClass
		table string
		pos   string
	}{
		{entities.QueueClassPriority, "priority_entries", "priority_position"},
		{entities.QueueClassNormal, "queue_entries", "position"},
	}

	for _, l := range lookups {
		where := goqu.Ex{
			"patient_id": patientID,
			"status":     []string{string(entities.EntryStatusWaiting), string(entities.EntryStatusInProgress)},
		}
		if department != nil {
			where["department"] = *department
		}

		query, args, err := dialect.From(l.table).
			Select("id", "patient_id", "department", "queue_number", l.pos, "status").
			Where(where).
			Limit(1).
			ToSQL()
		if err != nil {
			return nil, apperrors.NewInternalError("failed to build query", err)
		}

		active := &repositories.ActiveEntry{Class: l.class}
		err = q.QueryRowContext(ctx, query, args...).Scan(
			&active.EntryID, &active.PatientID, &active.Department,
			&active.QueueNumber, &active.Position, &active.Status,
		)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, apperrors.NewInternalError("failed to check active entry", err)
		}
		return active, nil
	}
	return nil, nil
}

func statusSelect() *goqu.SelectDataset {
	return dialect.From("queue_status").Select(
		"id", "department", "is_open", "current_schedule_id", "current_serving",
		"total_waiting", "estimated_wait_seconds", "status_message",
		"last_updated_by", "last_updated_at",
	)
}

func scanStatus(row rowScanner) (*entities.QueueStatus, error) {
	status := &entities.QueueStatus{}
	var currentScheduleID, currentServing, lastUpdatedBy, estimatedWaitSeconds sql.NullInt64

	err := row.Scan(
		&status.ID, &status.Department, &status.IsOpen,
		&currentScheduleID, &currentServing, &status.TotalWaiting,
		&estimatedWaitSeconds, &status.StatusMessage,
		&lastUpdatedBy, &status.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if currentScheduleID.Valid {
		status.CurrentScheduleID = &currentScheduleID.Int64
	}
	if currentServing.Valid {
		status.CurrentServing = &currentServing.Int64
	}
	if lastUpdatedBy.Valid {
		status.LastUpdatedBy = &lastUpdatedBy.Int64
	}
	if estimatedWaitSeconds.Valid {
		wait := time.Duration(estimatedWaitSeconds.Int64) * time.Second
		status.EstimatedWait = &wait
	}
	return status, nil
}

func scanSchedule(row rowScanner) (*entities.QueueSchedule, error) {
	schedule := &entities.QueueSchedule{}
	var days []int64

	err := row.Scan(
		&schedule.ID, &schedule.Department, &schedule.NurseID,
		&schedule.StartTime, &schedule.EndTime, pq.Array(&days),
		&schedule.IsActive, &schedule.ManualOverride, &schedule.OverrideStatus,
		&schedule.CreatedAt, &schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	schedule.DaysOfWeek = toInts(days)
	return schedule, nil
}

func scanNormalEntry(row rowScanner) (*entities.QueueEntry, error) {
	entry := &entities.QueueEntry{}
	var startedAt, finishedAt, dequeueTime sql.NullTime
	var actualWaitSeconds sql.NullInt64

	err := row.Scan(
		&entry.ID, &entry.PatientID, &entry.Department, &entry.QueueNumber,
		&entry.Position, &entry.Status, &entry.EnqueueTime,
		&startedAt, &finishedAt, &dequeueTime, &actualWaitSeconds,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		entry.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		entry.FinishedAt = &finishedAt.Time
	}
	if dequeueTime.Valid {
		entry.DequeueTime = &dequeueTime.Time
	}
	if actualWaitSeconds.Valid {
		wait := time.Duration(actualWaitSeconds.Int64) * time.Second
		entry.ActualWait = &wait
	}
	return entry, nil
}

func scanPriorityEntry(row rowScanner) (*entities.PriorityEntry, error) {
	entry := &entities.PriorityEntry{}
	var startedAt, finishedAt, dequeueTime sql.NullTime
	var actualWaitSeconds sql.NullInt64

	err := row.Scan(
		&entry.ID, &entry.PatientID, &entry.Department, &entry.QueueNumber,
		&entry.PriorityLevel, &entry.PriorityPosition, &entry.Status,
		&entry.EnqueueTime, &startedAt, &finishedAt, &dequeueTime, &actualWaitSeconds,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		entry.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		entry.FinishedAt = &finishedAt.Time
	}
	if dequeueTime.Valid {
		entry.DequeueTime = &dequeueTime.Time
	}
	if actualWaitSeconds.Valid {
		wait := time.Duration(actualWaitSeconds.Int64) * time.Second
		entry.ActualWait = &wait
	}
	return entry, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func toInt64s(values []int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}

func toInts(values []int64) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}
