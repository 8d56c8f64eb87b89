package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/providers"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
)

// publishEvent pushes an envelope after the owning transaction has
// committed. Failures are logged and swallowed; realtime delivery is
// advisory and must never undo persisted queue state.
func publishEvent(bus providers.EventBus, group string, event *entities.Envelope) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := bus.Publish(ctx, group, event); err != nil {
		log.Warn().Err(err).Str("group", group).Str("type", event.Type).
			Msg("failed to publish event")
		return false
	}
	return true
}

func statusPayload(status *entities.QueueStatus) entities.StatusUpdatePayload {
	payload := entities.StatusUpdatePayload{
		Department:     status.Department,
		IsOpen:         status.IsOpen,
		CurrentServing: status.CurrentServing,
		TotalWaiting:   status.TotalWaiting,
		StatusMessage:  status.StatusMessage,
	}
	if status.EstimatedWait != nil {
		payload.EstimatedWait = status.EstimatedWait.String()
	}
	return payload
}

// markDeliveryAttempt records the outcome of one realtime push against
// the durable notification row
func markDeliveryAttempt(ctx context.Context, repo repositories.NotificationRepository, notification *entities.Notification, sent bool, at time.Time) {
	notification.Attempts++
	if sent {
		notification.DeliveryStatus = entities.DeliverySent
		notification.SentAt = &at
	} else {
		notification.DeliveryStatus = entities.DeliveryFailed
	}
	if err := repo.Update(ctx, notification); err != nil {
		log.Error().Err(err).Int64("notification_id", notification.ID).
			Msg("failed to record delivery attempt")
	}
}
