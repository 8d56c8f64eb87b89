package entities

import (
	"time"
)

// EntryStatus represents the lifecycle state of a queue entry
type EntryStatus string

const (
	EntryStatusWaiting    EntryStatus = "waiting"
	EntryStatusInProgress EntryStatus = "in_progress"
	EntryStatusCompleted  EntryStatus = "completed"
	EntryStatusCancelled  EntryStatus = "cancelled"
)

// QueueClass distinguishes the normal FIFO line from the priority line
type QueueClass string

const (
	QueueClassNormal   QueueClass = "normal"
	QueueClassPriority QueueClass = "priority"
)

// PriorityLevel marks why a patient bypasses the FIFO line
type PriorityLevel string

const (
	PriorityPWD       PriorityLevel = "pwd"
	PriorityPregnant  PriorityLevel = "pregnant"
	PrioritySenior    PriorityLevel = "senior"
	PriorityWithChild PriorityLevel = "with_child"
)

// Valid reports whether the level is a recognized priority category
func (p PriorityLevel) Valid() bool {
	switch p {
	case PriorityPWD, PriorityPregnant, PrioritySenior, PriorityWithChild:
		return true
	}
	return false
}

// QueueEntry is a patient's position in the normal FIFO line
type QueueEntry struct {
	ID          int64          `json:"id" db:"id"`
	PatientID   int64          `json:"patient_id" db:"patient_id"`
	Department  Department     `json:"department" db:"department"`
	QueueNumber int64          `json:"queue_number" db:"queue_number"`
	Position    int            `json:"position" db:"position"`
	Status      EntryStatus    `json:"status" db:"status"`
	EnqueueTime time.Time      `json:"enqueue_time" db:"enqueue_time"`
	StartedAt   *time.Time     `json:"started_at,omitempty" db:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty" db:"finished_at"`
	DequeueTime *time.Time     `json:"dequeue_time,omitempty" db:"dequeue_time"`
	ActualWait  *time.Duration `json:"actual_wait,omitempty" db:"actual_wait"`
}

// Active reports whether the entry still occupies the line
func (e *QueueEntry) Active() bool {
	return e.Status == EntryStatusWaiting || e.Status == EntryStatusInProgress
}

// PriorityEntry is a patient's position in the priority line
type PriorityEntry struct {
	ID               int64          `json:"id" db:"id"`
	PatientID        int64          `json:"patient_id" db:"patient_id"`
	Department       Department     `json:"department" db:"department"`
	QueueNumber      int64          `json:"queue_number" db:"queue_number"`
	PriorityLevel    PriorityLevel  `json:"priority_level" db:"priority_level"`
	PriorityPosition int            `json:"priority_position" db:"priority_position"`
	Status           EntryStatus    `json:"status" db:"status"`
	EnqueueTime      time.Time      `json:"enqueue_time" db:"enqueue_time"`
	StartedAt        *time.Time     `json:"started_at,omitempty" db:"started_at"`
	FinishedAt       *time.Time     `json:"finished_at,omitempty" db:"finished_at"`
	DequeueTime      *time.Time     `json:"dequeue_time,omitempty" db:"dequeue_time"`
	ActualWait       *time.Duration `json:"actual_wait,omitempty" db:"actual_wait"`
}

// Active reports whether the entry still occupies the line
func (e *PriorityEntry) Active() bool {
	return e.Status == EntryStatusWaiting || e.Status == EntryStatusInProgress
}
