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

// DispatchService moves patients through a department queue
type DispatchService struct {
	store         repositories.QueueStore
	notifications repositories.NotificationRepository
	bus           providers.EventBus
	clock         providers.Clock
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(store repositories.QueueStore, notifications repositories.NotificationRepository, bus providers.EventBus, clock providers.Clock) *DispatchService {
	return &DispatchService{
		store:         store,
		notifications: notifications,
		bus:           bus,
		clock:         clock,
	}
}

// ServedEntry is the class-agnostic view of a dispatched entry
type ServedEntry struct {
	Class       entities.QueueClass `json:"queue_type"`
	EntryID     int64               `json:"entry_id"`
	PatientID   int64               `json:"patient_id"`
	QueueNumber int64               `json:"queue_number"`
}

// StartNextResult describes one dispatch step
type StartNextResult struct {
	Started      *ServedEntry `json:"started,omitempty"`
	Completed    *ServedEntry `json:"completed,omitempty"`
	TotalWaiting int          `json:"total_waiting"`
	Message      string       `json:"message"`
}

// StartNext completes whatever is being served and calls the next patient,
// priority line first
func (s *DispatchService) StartNext(ctx context.Context, nurseID int64, department entities.Department) (*StartNextResult, error) {
	result := &StartNextResult{}
	var status *entities.QueueStatus

	err := s.store.WithDepartmentLock(ctx, department, func(ctx context.Context, tx repositories.QueueTx) error {
		now := s.clock.Now()

		completed, err := s.completeCurrent(ctx, tx, now)
		if err != nil {
			return err
		}
		result.Completed = completed

		st, err := tx.Status(ctx)
		if err != nil {
			return err
		}

		started, err := s.startNextEntry(ctx, tx, now)
		if err != nil {
			return err
		}

		if started == nil {
			st.CurrentServing = nil
			st.TotalWaiting = 0
			st.EstimatedWait = nil
			st.LastUpdatedBy = &nurseID
			st.LastUpdatedAt = now
			st.RefreshStatusMessage()
			if err := tx.SaveStatus(ctx, st); err != nil {
				return err
			}
			status = st
			result.Message = "no patients waiting"
			return nil
		}

		totalWaiting, err := tx.CountWaiting(ctx)
		if err != nil {
			return err
		}

		st.CurrentServing = &started.QueueNumber
		st.TotalWaiting = totalWaiting
		st.LastUpdatedBy = &nurseID
		st.LastUpdatedAt = now
		st.RefreshStatusMessage()
		if err := tx.SaveStatus(ctx, st); err != nil {
			return err
		}

		err = tx.AppendLog(ctx, &entities.QueueStatusLog{
			Department:     department,
			PreviousStatus: st.IsOpen,
			NewStatus:      st.IsOpen,
			ChangeReason:   entities.ChangeReasonSystem,
			ChangedBy:      &nurseID,
			Notes:          fmt.Sprintf("started serving queue #%d", started.QueueNumber),
			ChangedAt:      now,
		})
		if err != nil {
			return err
		}

		status = st
		result.Started = started
		result.TotalWaiting = totalWaiting
		result.Message = fmt.Sprintf("now serving queue #%d", started.QueueNumber)
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishEvent(s.bus, providers.QueueGroup(department), &entities.Envelope{
		Type:    entities.EventQueueStatusUpdate,
		Payload: statusPayload(status),
	})

	if result.Started != nil {
		message := fmt.Sprintf("Your turn at %s. Please proceed to the triage room for %s (Queue #%d).",
			department, department, result.Started.QueueNumber)
		s.notifyPatient(ctx, result.Started, department, "queue_started", message)

		// assignment notices also land in the cross-subsystem inbox
		publishEvent(s.bus, providers.MessagingGroup(result.Started.PatientID), &entities.Envelope{
			Type: entities.EventQueueNotification,
			Payload: entities.NotificationPayload{
				Event:       "queue_started",
				Department:  department,
				Message:     message,
				QueueNumber: result.Started.QueueNumber,
			},
		})
	}
	return result, nil
}

// MarkServed completes a specific entry, identified by primary key or
// queue number. Calling it twice finds no active entry the second time.
func (s *DispatchService) MarkServed(ctx context.Context, nurseID int64, department entities.Department, ref int64, class entities.QueueClass) (*ServedEntry, error) {
	return s.finishEntry(ctx, nurseID, department, ref, class, false)
}

// Remove drops an entry from the queue outright
func (s *DispatchService) Remove(ctx context.Context, nurseID int64, department entities.Department, ref int64, class entities.QueueClass) (*ServedEntry, error) {
	return s.finishEntry(ctx, nurseID, department, ref, class, true)
}

func (s *DispatchService) finishEntry(ctx context.Context, nurseID int64, department entities.Department, ref int64, class entities.QueueClass, remove bool) (*ServedEntry, error) {
	var served *ServedEntry
	var status *entities.QueueStatus

	err := s.store.WithDepartmentLock(ctx, department, func(ctx context.Context, tx repositories.QueueTx) error {
		now := s.clock.Now()

		switch class {
		case entities.QueueClassPriority:
			entry, err := tx.FindPriority(ctx, ref)
			if err != nil {
				return err
			}
			if entry == nil {
				return apperrors.NewNotFoundError(fmt.Sprintf("no active priority entry %d in %s", ref, department))
			}
			if remove {
				if err := tx.DeletePriority(ctx, entry.ID); err != nil {
					return err
				}
			} else if err := tx.MarkPriorityCompleted(ctx, entry.ID, now); err != nil {
				return err
			}
			served = &ServedEntry{
				Class:       entities.QueueClassPriority,
				EntryID:     entry.ID,
				PatientID:   entry.PatientID,
				QueueNumber: entry.QueueNumber,
			}
		case entities.QueueClassNormal:
			entry, err := tx.FindNormal(ctx, ref)
			if err != nil {
				return err
			}
			if entry == nil {
				return apperrors.NewNotFoundError(fmt.Sprintf("no active queue entry %d in %s", ref, department))
			}
			if remove {
				if err := tx.DeleteNormal(ctx, entry.ID); err != nil {
					return err
				}
			} else if err := tx.MarkNormalCompleted(ctx, entry.ID, now); err != nil {
				return err
			}
			if err := tx.RenumberPositions(ctx); err != nil {
				return err
			}
			served = &ServedEntry{
				Class:       entities.QueueClassNormal,
				EntryID:     entry.ID,
				PatientID:   entry.PatientID,
				QueueNumber: entry.QueueNumber,
			}
		default:
			return apperrors.NewValidationError(fmt.Sprintf("unknown queue type %q", class), nil)
		}

		st, err := tx.Status(ctx)
		if err != nil {
			return err
		}
		totalWaiting, err := tx.CountWaiting(ctx)
		if err != nil {
			return err
		}

		if st.CurrentServing != nil && *st.CurrentServing == served.QueueNumber {
			st.CurrentServing = nil
		}
		st.TotalWaiting = totalWaiting
		st.LastUpdatedBy = &nurseID
		st.LastUpdatedAt = now
		st.RefreshStatusMessage()
		if err := tx.SaveStatus(ctx, st); err != nil {
			return err
		}
		status = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishEvent(s.bus, providers.QueueGroup(department), &entities.Envelope{
		Type:    entities.EventQueueStatusUpdate,
		Payload: statusPayload(status),
	})

	if remove {
		message := fmt.Sprintf("You have been removed from the %s queue (#%d).", department, served.QueueNumber)
		s.notifyPatient(ctx, served, department, "queue_removed", message)
	} else {
		message := fmt.Sprintf("Your queue at %s has been completed (#%d).", department, served.QueueNumber)
		s.notifyPatient(ctx, served, department, "queue_completed", message)
	}
	return served, nil
}

// completeCurrent finishes the in-progress entry of either class, nil when idle
func (s *DispatchService) completeCurrent(ctx context.Context, tx repositories.QueueTx, now time.Time) (*ServedEntry, error) {
	priority, err := tx.CurrentInProgressPriority(ctx)
	if err != nil {
		return nil, err
	}
	if priority != nil {
		if err := tx.MarkPriorityCompleted(ctx, priority.ID, now); err != nil {
			return nil, err
		}
		return &ServedEntry{
			Class:       entities.QueueClassPriority,
			EntryID:     priority.ID,
			PatientID:   priority.PatientID,
			QueueNumber: priority.QueueNumber,
		}, nil
	}

	normal, err := tx.CurrentInProgressNormal(ctx)
	if err != nil {
		return nil, err
	}
	if normal != nil {
		if err := tx.MarkNormalCompleted(ctx, normal.ID, now); err != nil {
			return nil, err
		}
		if err := tx.RenumberPositions(ctx); err != nil {
			return nil, err
		}
		return &ServedEntry{
			Class:       entities.QueueClassNormal,
			EntryID:     normal.ID,
			PatientID:   normal.PatientID,
			QueueNumber: normal.QueueNumber,
		}, nil
	}
	return nil, nil
}

// startNextEntry promotes the head of the priority line, else FIFO, nil when empty
func (s *DispatchService) startNextEntry(ctx context.Context, tx repositories.QueueTx, now time.Time) (*ServedEntry, error) {
	priority, err := tx.NextPriority(ctx)
	if err != nil {
		return nil, err
	}
	if priority != nil {
		if err := tx.MarkPriorityStarted(ctx, priority.ID, now); err != nil {
			return nil, err
		}
		return &ServedEntry{
			Class:       entities.QueueClassPriority,
			EntryID:     priority.ID,
			PatientID:   priority.PatientID,
			QueueNumber: priority.QueueNumber,
		}, nil
	}

	normal, err := tx.NextNormal(ctx)
	if err != nil {
		return nil, err
	}
	if normal != nil {
		if err := tx.MarkNormalStarted(ctx, normal.ID, now); err != nil {
			return nil, err
		}
		return &ServedEntry{
			Class:       entities.QueueClassNormal,
			EntryID:     normal.ID,
			PatientID:   normal.PatientID,
			QueueNumber: normal.QueueNumber,
		}, nil
	}
	return nil, nil
}

func (s *DispatchService) notifyPatient(ctx context.Context, entry *ServedEntry, department entities.Department, event, message string) {
	notification := &entities.Notification{
		UserID:  entry.PatientID,
		Message: message,
		Channel: entities.ChannelWebsocket,
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		log.Error().Err(err).Int64("patient_id", entry.PatientID).Msg("failed to persist notification")
		notification = nil
	}

	var notificationID int64
	if notification != nil {
		notificationID = notification.ID
	}
	sent := publishEvent(s.bus, providers.QueueUserGroup(entry.PatientID), &entities.Envelope{
		Type: entities.EventQueueNotification,
		Payload: entities.NotificationPayload{
			Event:          event,
			Department:     department,
			Message:        message,
			QueueNumber:    entry.QueueNumber,
			NotificationID: notificationID,
		},
	})
	if notification != nil {
		markDeliveryAttempt(ctx, s.notifications, notification, sent, s.clock.Now())
	}
}
