package entities

import (
	"time"
)

// NotificationChannel represents how a notification is delivered
type NotificationChannel string

const (
	ChannelWebsocket NotificationChannel = "websocket"
	ChannelEmail     NotificationChannel = "email"
	ChannelSMS       NotificationChannel = "sms"
	ChannelPush      NotificationChannel = "push"
)

// Valid reports whether the channel is a supported delivery mechanism
func (c NotificationChannel) Valid() bool {
	switch c {
	case ChannelWebsocket, ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// DeliveryStatus represents the delivery state of a notification
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// MaxDeliveryAttempts is the number of attempts before a failed
// notification becomes terminal
const MaxDeliveryAttempts = 3

// Notification is a durable message addressed to one user
type Notification struct {
	ID             int64               `json:"id" db:"id"`
	UserID         int64               `json:"user_id" db:"user_id"`
	Message        string              `json:"message" db:"message"`
	Channel        NotificationChannel `json:"channel" db:"channel"`
	DeliveryStatus DeliveryStatus      `json:"delivery_status" db:"delivery_status"`
	SentAt         *time.Time          `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt    *time.Time          `json:"delivered_at,omitempty" db:"delivered_at"`
	Attempts       int                 `json:"attempts" db:"attempts"`
	IsRead         bool                `json:"is_read" db:"is_read"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"`
}

// Retryable reports whether a failed notification may be retried
func (n *Notification) Retryable() bool {
	return n.DeliveryStatus == DeliveryFailed && n.Attempts < MaxDeliveryAttempts
}
