package entities

import (
	"fmt"
	"strings"
	"time"
)

// QueueStatus is the live state of one department queue, one row per department
type QueueStatus struct {
	ID                int64          `json:"id" db:"id"`
	Department        Department     `json:"department" db:"department"`
	IsOpen            bool           `json:"is_open" db:"is_open"`
	CurrentScheduleID *int64         `json:"current_schedule_id,omitempty" db:"current_schedule_id"`
	CurrentServing    *int64         `json:"current_serving,omitempty" db:"current_serving"`
	TotalWaiting      int            `json:"total_waiting" db:"total_waiting"`
	EstimatedWait     *time.Duration `json:"estimated_wait,omitempty" db:"estimated_wait"`
	StatusMessage     string         `json:"status_message" db:"status_message"`
	LastUpdatedBy     *int64         `json:"last_updated_by,omitempty" db:"last_updated_by"`
	LastUpdatedAt     time.Time      `json:"last_updated_at" db:"last_updated_at"`
}

// RefreshStatusMessage recomputes the patient-facing status line from the
// open flag, waiting count and estimated wait
func (q *QueueStatus) RefreshStatusMessage() {
	if !q.IsOpen {
		q.StatusMessage = "Queue Closed"
		return
	}
	if q.TotalWaiting == 0 {
		q.StatusMessage = "Queue Open - No Wait"
		return
	}
	waitMsg := ""
	if q.EstimatedWait != nil {
		waitMsg = fmt.Sprintf("Estimated wait: %s", *q.EstimatedWait)
	}
	q.StatusMessage = strings.TrimSpace(fmt.Sprintf("Queue Open - %d waiting %s", q.TotalWaiting, waitMsg))
}
