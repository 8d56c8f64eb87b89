package entities

import (
	"time"
)

// ChangeReason records what caused a queue status transition
type ChangeReason string

const (
	ChangeReasonSchedule ChangeReason = "schedule"
	ChangeReasonManual   ChangeReason = "manual"
	ChangeReasonSystem   ChangeReason = "system"
)

// QueueStatusLog is an append-only audit record of open/close transitions
type QueueStatusLog struct {
	ID             int64        `json:"id" db:"id"`
	Department     Department   `json:"department" db:"department"`
	PreviousStatus bool         `json:"previous_status" db:"previous_status"`
	NewStatus      bool         `json:"new_status" db:"new_status"`
	ChangeReason   ChangeReason `json:"change_reason" db:"change_reason"`
	ChangedBy      *int64       `json:"changed_by,omitempty" db:"changed_by"`
	Notes          string       `json:"notes" db:"notes"`
	ChangedAt      time.Time    `json:"changed_at" db:"changed_at"`
}
