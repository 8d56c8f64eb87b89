package entities

// Event types carried over the realtime broker
const (
	EventQueueStatusUpdate   = "queue_status_update"
	EventQueueScheduleUpdate = "queue_schedule_update"
	EventQueueNotification   = "queue_notification"
	EventQueuePositionUpdate = "queue_position_update"
)

// Envelope is the wire shape of every broker message
type Envelope struct {
	ID      string      `json:"id,omitempty"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusUpdatePayload is broadcast to a department group when its
// queue state changes
type StatusUpdatePayload struct {
	Department     Department `json:"department"`
	IsOpen         bool       `json:"is_open"`
	CurrentServing *int64     `json:"current_serving,omitempty"`
	TotalWaiting   int        `json:"total_waiting"`
	EstimatedWait  string     `json:"estimated_wait,omitempty"`
	StatusMessage  string     `json:"status_message"`
}

// NotificationPayload is sent to a user group for queue lifecycle events
type NotificationPayload struct {
	Event          string     `json:"event"`
	Department     Department `json:"department,omitempty"`
	Message        string     `json:"message"`
	QueueNumber    int64      `json:"queue_number,omitempty"`
	NotificationID int64      `json:"notification_id,omitempty"`
}

// PositionUpdatePayload tells a patient where they stand in the line
type PositionUpdatePayload struct {
	Department    Department `json:"department"`
	QueueNumber   int64      `json:"queue_number"`
	Position      int        `json:"position"`
	EstimatedWait string     `json:"estimated_wait,omitempty"`
}

// ScheduleUpdatePayload is broadcast when a schedule is created,
// updated or removed
type ScheduleUpdatePayload struct {
	Action     string     `json:"action"`
	Department Department `json:"department"`
	ScheduleID int64      `json:"schedule_id"`
}
