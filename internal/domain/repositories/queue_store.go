package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/hospitalops/internal/domain/entities"
)

// QueueStore is the persistence surface for queue state. Mutations go
// through WithDepartmentLock so that everything inside fn sees and writes
// a consistent snapshot of one department's queue.
type QueueStore interface {
	// WithDepartmentLock opens a transaction, locks the department's
	// status row, runs fn and commits. The status row is created closed
	// on first use. Any error from fn rolls the transaction back.
	WithDepartmentLock(ctx context.Context, department entities.Department, fn func(ctx context.Context, tx QueueTx) error) error

	// Schedule CRUD. Create and Update enforce one schedule per
	// (department, nurse) pair.
	CreateSchedule(ctx context.Context, schedule *entities.QueueSchedule) error
	UpdateSchedule(ctx context.Context, schedule *entities.QueueSchedule) error
	DeleteSchedule(ctx context.Context, id int64) (*entities.QueueSchedule, error)
	GetSchedule(ctx context.Context, id int64) (*entities.QueueSchedule, error)
	ListSchedules(ctx context.Context, department *entities.Department) ([]*entities.QueueSchedule, error)

	// Lock-free reads for status projections.
	GetStatus(ctx context.Context, department entities.Department) (*entities.QueueStatus, error)
	ListStatuses(ctx context.Context) ([]*entities.QueueStatus, error)
	ListStatusLogs(ctx context.Context, department *entities.Department, limit int) ([]*entities.QueueStatusLog, error)
	ListEntries(ctx context.Context, department entities.Department) ([]*entities.QueueEntry, []*entities.PriorityEntry, error)

	// ActiveEntryForPatient reports whether the patient currently holds a
	// waiting or in_progress entry in either class of the department.
	ActiveEntryForPatient(ctx context.Context, patientID int64, department entities.Department) (*ActiveEntry, error)
}

// ActiveEntry is a class-agnostic view of a live queue entry
type ActiveEntry struct {
	Class       entities.QueueClass
	EntryID     int64
	PatientID   int64
	Department  entities.Department
	QueueNumber int64
	Position    int
	Status      entities.EntryStatus
}

// QueueTx exposes the department-scoped operations available while the
// department lock is held. Peek-style lookups return (nil, nil) when no
// row matches.
type QueueTx interface {
	Department() entities.Department

	Status(ctx context.Context) (*entities.QueueStatus, error)
	SaveStatus(ctx context.Context, status *entities.QueueStatus) error
	AppendLog(ctx context.Context, log *entities.QueueStatusLog) error

	// StatusCreated reports whether acquiring the lock created the status
	// row, i.e. the department had never been configured before this
	// transaction.
	StatusCreated() bool

	// ActiveSchedule returns the department's active schedule, nil when
	// none is configured.
	ActiveSchedule(ctx context.Context) (*entities.QueueSchedule, error)

	// NextTicket increments and returns the shared ticket counter.
	NextTicket(ctx context.Context) (int64, error)

	InsertNormal(ctx context.Context, entry *entities.QueueEntry) error
	InsertPriority(ctx context.Context, entry *entities.PriorityEntry) error

	// ActiveEntryForPatient checks both classes within this department's
	// transaction.
	ActiveEntryForPatient(ctx context.Context, patientID int64) (*ActiveEntry, error)

	// CountWaiting counts waiting entries across both classes.
	CountWaiting(ctx context.Context) (int, error)

	// RenumberPositions reassigns dense positions to the waiting normal
	// entries ordered by enqueue time.
	RenumberPositions(ctx context.Context) error

	NextPriority(ctx context.Context) (*entities.PriorityEntry, error)
	NextNormal(ctx context.Context) (*entities.QueueEntry, error)

	CurrentInProgressNormal(ctx context.Context) (*entities.QueueEntry, error)
	CurrentInProgressPriority(ctx context.Context) (*entities.PriorityEntry, error)

	MarkNormalStarted(ctx context.Context, id int64, at time.Time) error
	MarkPriorityStarted(ctx context.Context, id int64, at time.Time) error
	MarkNormalCompleted(ctx context.Context, id int64, at time.Time) error
	MarkPriorityCompleted(ctx context.Context, id int64, at time.Time) error
	DeleteNormal(ctx context.Context, id int64) error
	DeletePriority(ctx context.Context, id int64) error

	// FindNormal and FindPriority accept a primary key or a queue number
	// and return the active entry it identifies.
	FindNormal(ctx context.Context, ref int64) (*entities.QueueEntry, error)
	FindPriority(ctx context.Context, ref int64) (*entities.PriorityEntry, error)

	// ListWaitingNormal returns the waiting FIFO entries in position order.
	ListWaitingNormal(ctx context.Context) ([]*entities.QueueEntry, error)

	// AverageServiceTime averages started-to-finished over completed
	// normal entries; ok is false when there is no sample.
	AverageServiceTime(ctx context.Context) (avg time.Duration, ok bool, err error)
}
