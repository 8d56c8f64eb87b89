package services

import (
	"context"
	"fmt"
	"time"

	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/providers"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
	apperrors "github.com/zatekoja/hospitalops/pkg/errors"
)

// PatientBroadcaster fans a message out to every registered patient
type PatientBroadcaster interface {
	NotifyAllPatients(ctx context.Context, department entities.Department, message string)
}

// ScheduleService manages nurse schedules and manual queue state changes
type ScheduleService struct {
	store       repositories.QueueStore
	bus         providers.EventBus
	clock       providers.Clock
	broadcaster PatientBroadcaster
}

// NewScheduleService creates a new schedule service
func NewScheduleService(store repositories.QueueStore, bus providers.EventBus, clock providers.Clock, broadcaster PatientBroadcaster) *ScheduleService {
	return &ScheduleService{
		store:       store,
		bus:         bus,
		clock:       clock,
		broadcaster: broadcaster,
	}
}

// CreateSchedule registers a schedule and links it to the department status row
func (s *ScheduleService) CreateSchedule(ctx context.Context, actorID int64, schedule *entities.QueueSchedule) error {
	if err := validateSchedule(schedule); err != nil {
		return err
	}

	if err := s.store.CreateSchedule(ctx, schedule); err != nil {
		return err
	}

	err := s.store.WithDepartmentLock(ctx, schedule.Department, func(ctx context.Context, tx repositories.QueueTx) error {
		status, err := tx.Status(ctx)
		if err != nil {
			return err
		}
		status.CurrentScheduleID = &schedule.ID
		status.LastUpdatedBy = &actorID
		status.LastUpdatedAt = s.clock.Now()
		return tx.SaveStatus(ctx, status)
	})
	if err != nil {
		return err
	}

	publishEvent(s.bus, providers.QueueGroup(schedule.Department), &entities.Envelope{
		Type: entities.EventQueueScheduleUpdate,
		Payload: entities.ScheduleUpdatePayload{
			Action:     "created",
			Department: schedule.Department,
			ScheduleID: schedule.ID,
		},
	})
	return nil
}

// UpdateSchedule modifies an existing schedule
func (s *ScheduleService) UpdateSchedule(ctx context.Context, actorID int64, schedule *entities.QueueSchedule) error {
	if err := validateSchedule(schedule); err != nil {
		return err
	}

	if err := s.store.UpdateSchedule(ctx, schedule); err != nil {
		return err
	}

	publishEvent(s.bus, providers.QueueGroup(schedule.Department), &entities.Envelope{
		Type: entities.EventQueueScheduleUpdate,
		Payload: entities.ScheduleUpdatePayload{
			Action:     "updated",
			Department: schedule.Department,
			ScheduleID: schedule.ID,
		},
	})
	return nil
}

// DeleteSchedule removes a schedule. A department left without its linked
// schedule is force-closed with cause schedule.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, actorID int64, id int64) error {
	schedule, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}

	var status *entities.QueueStatus
	err = s.store.WithDepartmentLock(ctx, schedule.Department, func(ctx context.Context, tx repositories.QueueTx) error {
		st, err := tx.Status(ctx)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if st.CurrentScheduleID != nil && *st.CurrentScheduleID == id {
			st.CurrentScheduleID = nil
		}
		if st.IsOpen {
			err := tx.AppendLog(ctx, &entities.QueueStatusLog{
				Department:     schedule.Department,
				PreviousStatus: true,
				NewStatus:      false,
				ChangeReason:   entities.ChangeReasonSchedule,
				ChangedBy:      &actorID,
				Notes:          fmt.Sprintf("schedule %d deleted", id),
				ChangedAt:      now,
			})
			if err != nil {
				return err
			}
			st.IsOpen = false
		}
		st.LastUpdatedBy = &actorID
		st.LastUpdatedAt = now
		st.RefreshStatusMessage()
		if err := tx.SaveStatus(ctx, st); err != nil {
			return err
		}
		status = st
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := s.store.DeleteSchedule(ctx, id); err != nil {
		return err
	}

	publishEvent(s.bus, providers.QueueGroup(schedule.Department), &entities.Envelope{
		Type:    entities.EventQueueStatusUpdate,
		Payload: statusPayload(status),
	})
	publishEvent(s.bus, providers.QueueGroup(schedule.Department), &entities.Envelope{
		Type: entities.EventQueueScheduleUpdate,
		Payload: entities.ScheduleUpdatePayload{
			Action:     "deleted",
			Department: schedule.Department,
			ScheduleID: id,
		},
	})
	return nil
}

// ListSchedules lists schedules, optionally for one department
func (s *ScheduleService) ListSchedules(ctx context.Context, department *entities.Department) ([]*entities.QueueSchedule, error) {
	return s.store.ListSchedules(ctx, department)
}

// GetStatus returns one department's live status
func (s *ScheduleService) GetStatus(ctx context.Context, department entities.Department) (*entities.QueueStatus, error) {
	return s.store.GetStatus(ctx, department)
}

// ListStatuses returns every department's live status
func (s *ScheduleService) ListStatuses(ctx context.Context) ([]*entities.QueueStatus, error) {
	return s.store.ListStatuses(ctx)
}

// ListStatusLogs returns the open/close audit trail, newest first
func (s *ScheduleService) ListStatusLogs(ctx context.Context, department *entities.Department, limit int) ([]*entities.QueueStatusLog, error) {
	return s.store.ListStatusLogs(ctx, department, limit)
}

// ListEntries returns a department's live entries, both classes in line order
func (s *ScheduleService) ListEntries(ctx context.Context, department entities.Department) ([]*entities.QueueEntry, []*entities.PriorityEntry, error) {
	if !department.Valid() {
		return nil, nil, apperrors.NewValidationError(fmt.Sprintf("unknown department %q", department), nil)
	}
	return s.store.ListEntries(ctx, department)
}

// SetOpen opens or closes a department queue, recording the transition.
// Opening fans an announcement out to all registered patients.
func (s *ScheduleService) SetOpen(ctx context.Context, actorID int64, department entities.Department, isOpen bool, cause entities.ChangeReason, notes string) (*entities.QueueStatus, error) {
	var status *entities.QueueStatus
	var opened bool

	err := s.store.WithDepartmentLock(ctx, department, func(ctx context.Context, tx repositories.QueueTx) error {
		st, err := tx.Status(ctx)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		previous := st.IsOpen
		if previous != isOpen {
			err := tx.AppendLog(ctx, &entities.QueueStatusLog{
				Department:     department,
				PreviousStatus: previous,
				NewStatus:      isOpen,
				ChangeReason:   cause,
				ChangedBy:      &actorID,
				Notes:          notes,
				ChangedAt:      now,
			})
			if err != nil {
				return err
			}
		}

		st.IsOpen = isOpen
		if isOpen && st.CurrentScheduleID == nil {
			schedule, err := tx.ActiveSchedule(ctx)
			if err != nil {
				return err
			}
			if schedule != nil {
				st.CurrentScheduleID = &schedule.ID
			}
		}

		totalWaiting, err := tx.CountWaiting(ctx)
		if err != nil {
			return err
		}
		st.TotalWaiting = totalWaiting
		st.LastUpdatedBy = &actorID
		st.LastUpdatedAt = now
		st.RefreshStatusMessage()
		if err := tx.SaveStatus(ctx, st); err != nil {
			return err
		}

		status = st
		opened = isOpen && !previous
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishEvent(s.bus, providers.QueueGroup(department), &entities.Envelope{
		Type:    entities.EventQueueStatusUpdate,
		Payload: statusPayload(status),
	})

	if opened && s.broadcaster != nil {
		message := fmt.Sprintf("The %s queue is now OPEN! You can now join the queue.", department)
		s.broadcaster.NotifyAllPatients(ctx, department, message)
	}
	return status, nil
}

func validateSchedule(schedule *entities.QueueSchedule) error {
	if !schedule.Department.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown department %q", schedule.Department), nil)
	}
	if schedule.NurseID <= 0 {
		return apperrors.NewValidationError("nurse_id is required", nil)
	}

	start, err := time.Parse("15:04", schedule.StartTime)
	if err != nil {
		return apperrors.NewValidationError("start_time must be in HH:MM form", err)
	}
	end, err := time.Parse("15:04", schedule.EndTime)
	if err != nil {
		return apperrors.NewValidationError("end_time must be in HH:MM form", err)
	}
	if !start.Before(end) {
		return apperrors.NewValidationError("start_time must be before end_time", nil)
	}

	for _, day := range schedule.DaysOfWeek {
		if day < 0 || day > 6 {
			return apperrors.NewValidationError(fmt.Sprintf("invalid day of week %d", day), nil)
		}
	}

	switch schedule.OverrideStatus {
	case "", entities.OverrideAuto, entities.OverrideEnabled, entities.OverrideDisabled:
	default:
		return apperrors.NewValidationError(fmt.Sprintf("invalid override status %q", schedule.OverrideStatus), nil)
	}
	return nil
}
