package providers

import (
	"context"
	"fmt"

	"github.com/zatekoja/hospitalops/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to realtime events
type EventBus interface {
	// Publish publishes an envelope to all subscribers of a group
	Publish(ctx context.Context, group string, event *entities.Envelope) error

	// Subscribe subscribes to envelopes on a group
	Subscribe(ctx context.Context, group string) (<-chan *entities.Envelope, error)

	// Unsubscribe unsubscribes from a group
	Unsubscribe(ctx context.Context, group string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// Group name prefixes shared with the realtime gateway
const (
	// GroupQueuePrefix is the prefix for department broadcast groups
	GroupQueuePrefix = "queue_"

	// GroupQueueUserPrefix is the prefix for per-user queue groups
	GroupQueueUserPrefix = "queue_user_"

	// GroupMessagingPrefix is the prefix for per-user messaging groups
	GroupMessagingPrefix = "messaging_"
)

// QueueGroup returns the broadcast group for a department
func QueueGroup(department entities.Department) string {
	return GroupQueuePrefix + string(department)
}

// QueueUserGroup returns the per-user queue group
func QueueUserGroup(userID int64) string {
	return fmt.Sprintf("%s%d", GroupQueueUserPrefix, userID)
}

// MessagingGroup returns the per-user messaging group
func MessagingGroup(userID int64) string {
	return fmt.Sprintf("%s%d", GroupMessagingPrefix, userID)
}
