package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/providers"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

// fallbackServiceTime is assumed when no completed entry has been timed yet
const fallbackServiceTime = 15 * time.Minute

// AdmissionService admits patients into department queues
type AdmissionService struct {
	store         repositories.QueueStore
	notifications repositories.NotificationRepository
	bus           providers.EventBus
	clock         providers.Clock
}

// NewAdmissionService creates a new admission service
func NewAdmissionService(store repositories.QueueStore, notifications repositories.NotificationRepository, bus providers.EventBus, clock providers.Clock) *AdmissionService {
	return &AdmissionService{
		store:         store,
		notifications: notifications,
		bus:           bus,
		clock:         clock,
	}
}

// JoinResult describes a successful admission
type JoinResult struct {
	Class         entities.QueueClass `json:"queue_type"`
	QueueNumber   int64               `json:"queue_number"`
	Position      int                 `json:"position"`
	EstimatedWait time.Duration       `json:"estimated_wait"`
	TotalWaiting  int                 `json:"total_waiting"`
}

// Join admits a patient into a department queue. A valid priority level
// routes the patient to the priority line; anything else joins FIFO.
func (s *AdmissionService) Join(ctx context.Context, patientID int64, department entities.Department, priorityLevel entities.PriorityLevel) (*JoinResult, error) {
	var result *JoinResult
	var status *entities.QueueStatus

	err := s.store.WithDepartmentLock(ctx, department, func(ctx context.Context, tx repositories.QueueTx) error {
		active, err := tx.ActiveEntryForPatient(ctx, patientID)
		if err != nil {
			return err
		}
		if active != nil {
			return apperrors.NewAlreadyInQueueError(
				fmt.Sprintf("patient already holds queue number %d at position %d", active.QueueNumber, active.Position),
			).WithDetails(map[string]interface{}{
				"queue_number": active.QueueNumber,
				"position":     active.Position,
			})
		}

		// A freshly created status row means the department was never
		// configured. An open queue admits regardless of the schedule
		// window; nurses control closing.
		if tx.StatusCreated() {
			return apperrors.NewNotConfiguredError(fmt.Sprintf("queue is not configured for %s", department))
		}

		st, err := tx.Status(ctx)
		if err != nil {
			return err
		}
		if !st.IsOpen {
			return apperrors.NewClosedError(fmt.Sprintf("%s queue is closed", department))
		}

		ticket, err := tx.NextTicket(ctx)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		var position int
		class := entities.QueueClassNormal
		if priorityLevel.Valid() {
			entry := &entities.PriorityEntry{
				PatientID:     patientID,
				QueueNumber:   ticket,
				PriorityLevel: priorityLevel,
				EnqueueTime:   now,
			}
			if err := tx.InsertPriority(ctx, entry); err != nil {
				return err
			}
			position = entry.PriorityPosition
			class = entities.QueueClassPriority
		} else {
			entry := &entities.QueueEntry{
				PatientID:   patientID,
				QueueNumber: ticket,
				EnqueueTime: now,
			}
			if err := tx.InsertNormal(ctx, entry); err != nil {
				return err
			}
			position = entry.Position
		}

		totalWaiting, err := tx.CountWaiting(ctx)
		if err != nil {
			return err
		}
		serviceTime := s.serviceTimeSample(ctx, tx)

		queueWait := serviceTime * time.Duration(totalWaiting)
		st.TotalWaiting = totalWaiting
		st.EstimatedWait = &queueWait
		st.LastUpdatedAt = now
		st.RefreshStatusMessage()
		if err := tx.SaveStatus(ctx, st); err != nil {
			return err
		}

		status = st
		result = &JoinResult{
			Class:         class,
			QueueNumber:   ticket,
			Position:      position,
			// only the patients ahead contribute to the wait
			EstimatedWait: serviceTime * time.Duration(position-1),
			TotalWaiting:  totalWaiting,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterJoin(ctx, patientID, department, status, result)
	return result, nil
}

// afterJoin persists the join notification and pushes realtime updates.
// Everything here is best effort; the admission is already committed.
func (s *AdmissionService) afterJoin(ctx context.Context, patientID int64, department entities.Department, status *entities.QueueStatus, result *JoinResult) {
	message := fmt.Sprintf("You joined the queue. Your number is #%d. Position: %d", result.QueueNumber, result.Position)

	notification := &entities.Notification{
		UserID:  patientID,
		Message: message,
		Channel: entities.ChannelWebsocket,
	}
	notificationID := int64(0)
	if err := s.notifications.Create(ctx, notification); err != nil {
		log.Error().Err(err).Int64("patient_id", patientID).Msg("failed to persist join notification")
	} else {
		notificationID = notification.ID
	}

	publishEvent(s.bus, providers.QueueGroup(department), &entities.Envelope{
		Type:    entities.EventQueueStatusUpdate,
		Payload: statusPayload(status),
	})

	sent := publishEvent(s.bus, providers.QueueUserGroup(patientID), &entities.Envelope{
		Type: entities.EventQueueNotification,
		Payload: entities.NotificationPayload{
			Event:          "queue_joined",
			Department:     department,
			Message:        message,
			QueueNumber:    result.QueueNumber,
			NotificationID: notificationID,
		},
	})
	publishEvent(s.bus, providers.QueueUserGroup(patientID), &entities.Envelope{
		Type: entities.EventQueuePositionUpdate,
		Payload: entities.PositionUpdatePayload{
			Department:    department,
			QueueNumber:   result.QueueNumber,
			Position:      result.Position,
			EstimatedWait: result.EstimatedWait.String(),
		},
	})

	if notificationID != 0 {
		markDeliveryAttempt(ctx, s.notifications, notification, sent, s.clock.Now())
	}
}

// Availability is the read-only projection patients poll before joining
type Availability struct {
	IsAvailable    bool                      `json:"is_available"`
	Reason         string                    `json:"reason,omitempty"`
	AlreadyInQueue bool                      `json:"already_in_queue"`
	WithinSchedule bool                      `json:"within_schedule"`
	QueueStatus    *entities.QueueStatus     `json:"queue_status,omitempty"`
	ActiveEntry    *repositories.ActiveEntry `json:"active_entry,omitempty"`
}

// CheckAvailability reports whether the actor could join the department queue
func (s *AdmissionService) CheckAvailability(ctx context.Context, actorID int64, department entities.Department) (*Availability, error) {
	if !department.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown department %q", department), nil)
	}

	availability := &Availability{}

	schedules, err := s.store.ListSchedules(ctx, &department)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for _, schedule := range schedules {
		if schedule.IsOpenNow(now) {
			availability.WithinSchedule = true
			break
		}
	}

	active, err := s.store.ActiveEntryForPatient(ctx, actorID, department)
	if err != nil {
		return nil, err
	}
	if active != nil {
		availability.AlreadyInQueue = true
		availability.ActiveEntry = active
		availability.Reason = "already in this queue"
	}

	status, err := s.store.GetStatus(ctx, department)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			availability.Reason = "queue not configured"
			return availability, nil
		}
		return nil, err
	}
	availability.QueueStatus = status

	if availability.AlreadyInQueue {
		return availability, nil
	}
	if !status.IsOpen {
		availability.Reason = "queue closed"
		return availability, nil
	}

	availability.IsAvailable = true
	return availability, nil
}

// serviceTimeSample averages past service durations, falling back to the
// default when the department has no history yet
func (s *AdmissionService) serviceTimeSample(ctx context.Context, tx repositories.QueueTx) time.Duration {
	avg, ok, err := tx.AverageServiceTime(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to compute average service time")
		return fallbackServiceTime
	}
	if !ok || avg <= 0 {
		return fallbackServiceTime
	}
	return avg
}
