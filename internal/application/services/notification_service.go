package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/providers"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

// NotificationService persists notifications and pushes them over the broker
type NotificationService struct {
	repo      repositories.NotificationRepository
	users     repositories.UserDirectory
	bus       providers.EventBus
	clock     providers.Clock
	batchSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotificationService creates a new notification service. batchSize
// bounds how many patients one fan-out batch loads.
func NewNotificationService(repo repositories.NotificationRepository, users repositories.UserDirectory, bus providers.EventBus, clock providers.Clock, batchSize int) *NotificationService {
	if batchSize <= 0 {
		batchSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &NotificationService{
		repo:      repo,
		users:     users,
		bus:       bus,
		clock:     clock,
		batchSize: batchSize,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Stop cancels background fan-outs and waits for them to drain
func (s *NotificationService) Stop() {
	s.cancel()
	s.wg.Wait()
}

// NotifyUser persists a notification and attempts one realtime push
func (s *NotificationService) NotifyUser(ctx context.Context, userID int64, message string, channel entities.NotificationChannel) (*entities.Notification, error) {
	if channel == "" {
		channel = entities.ChannelWebsocket
	}
	if !channel.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown channel %q", channel), nil)
	}
	if message == "" {
		return nil, apperrors.NewValidationError("message is required", nil)
	}

	notification := &entities.Notification{
		UserID:  userID,
		Message: message,
		Channel: channel,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, err
	}

	sent := publishEvent(s.bus, providers.QueueUserGroup(userID), &entities.Envelope{
		Type: entities.EventQueueNotification,
		Payload: entities.NotificationPayload{
			Event:          "notification",
			Message:        message,
			NotificationID: notification.ID,
		},
	})
	markDeliveryAttempt(ctx, s.repo, notification, sent, s.clock.Now())
	return notification, nil
}

// ConfirmDelivery acknowledges receipt. Only the recipient or staff may confirm.
func (s *NotificationService) ConfirmDelivery(ctx context.Context, actor *entities.User, notificationID int64) (*entities.Notification, error) {
	notification, err := s.repo.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if actor.ID != notification.UserID && !actor.Staff() {
		return nil, apperrors.NewUnauthorizedError("cannot confirm another user's notification")
	}

	switch notification.DeliveryStatus {
	case entities.DeliveryDelivered:
		return notification, nil
	case entities.DeliveryPending, entities.DeliverySent:
		now := s.clock.Now()
		notification.DeliveryStatus = entities.DeliveryDelivered
		notification.DeliveredAt = &now
		if err := s.repo.Update(ctx, notification); err != nil {
			return nil, err
		}
		return notification, nil
	default:
		return nil, apperrors.NewConflictError(fmt.Sprintf("notification %d is %s and cannot be confirmed", notificationID, notification.DeliveryStatus))
	}
}

// FanOutReport summarizes one broadcast run. Created counts durably
// persisted rows; Failed counts persists and pushes that went wrong.
type FanOutReport struct {
	Created         int     `json:"created"`
	Failed          int     `json:"failed"`
	NotificationIDs []int64 `json:"notification_ids"`
}

// NotifyAllPatients broadcasts a message to every verified patient in the
// background. The caller returns immediately; a cancelled run leaves its
// persisted rows for the retry sweep.
func (s *NotificationService) NotifyAllPatients(ctx context.Context, department entities.Department, message string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		report := s.fanOut(s.ctx, department, message)
		log.Info().
			Str("department", string(department)).
			Int("created", report.Created).
			Int("failed", report.Failed).
			Msg("patient fan-out finished")
	}()
}

func (s *NotificationService) fanOut(ctx context.Context, department entities.Department, message string) *FanOutReport {
	report := &FanOutReport{}

	err := s.users.IteratePatients(ctx, s.batchSize, func(ids []int64) error {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}

			notification := &entities.Notification{
				UserID:  id,
				Message: message,
				Channel: entities.ChannelWebsocket,
			}
			if err := s.repo.Create(ctx, notification); err != nil {
				log.Error().Err(err).Int64("patient_id", id).Msg("failed to persist broadcast notification")
				report.Failed++
				continue
			}
			report.Created++
			report.NotificationIDs = append(report.NotificationIDs, notification.ID)

			sent := publishEvent(s.bus, providers.QueueUserGroup(id), &entities.Envelope{
				Type: entities.EventQueueNotification,
				Payload: entities.NotificationPayload{
					Event:          "queue_broadcast",
					Department:     department,
					Message:        message,
					NotificationID: notification.ID,
				},
			})
			markDeliveryAttempt(ctx, s.repo, notification, sent, s.clock.Now())
			if !sent {
				report.Failed++
			}
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("department", string(department)).Msg("patient fan-out interrupted")
	}
	return report
}

// RetryFailed re-pushes failed notifications still under the attempt cap.
// The third failed attempt is terminal.
func (s *NotificationService) RetryFailed(ctx context.Context) (retried, failed int, err error) {
	notifications, err := s.repo.ListRetryable(ctx, 0)
	if err != nil {
		return 0, 0, err
	}

	for _, notification := range notifications {
		notification.DeliveryStatus = entities.DeliveryPending
		sent := publishEvent(s.bus, providers.QueueUserGroup(notification.UserID), &entities.Envelope{
			Type: entities.EventQueueNotification,
			Payload: entities.NotificationPayload{
				Event:          "notification_retry",
				Message:        notification.Message,
				NotificationID: notification.ID,
			},
		})
		markDeliveryAttempt(ctx, s.repo, notification, sent, s.clock.Now())
		if sent {
			retried++
		} else {
			failed++
		}
	}
	return retried, failed, nil
}

// ListForUser returns a user's inbox, newest first
func (s *NotificationService) ListForUser(ctx context.Context, userID int64, limit int) ([]*entities.Notification, error) {
	return s.repo.ListForUser(ctx, userID, limit)
}

// MarkRead flags one notification as read. Only the recipient may do so.
func (s *NotificationService) MarkRead(ctx context.Context, actorID, notificationID int64) (*entities.Notification, error) {
	notification, err := s.repo.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if notification.UserID != actorID {
		return nil, apperrors.NewUnauthorizedError("cannot mark another user's notification")
	}
	if notification.IsRead {
		return notification, nil
	}
	notification.IsRead = true
	if err := s.repo.Update(ctx, notification); err != nil {
		return nil, err
	}
	return notification, nil
}

// MarkAllRead flags every unread notification of the actor as read
func (s *NotificationService) MarkAllRead(ctx context.Context, actorID int64) (int64, error) {
	return s.repo.MarkAllRead(ctx, actorID)
}
