package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/hospitalops/internal/domain/entities"
	"github.com/zatekoja/hospitalops/internal/domain/providers"
	"github.com/zatekoja/hospitalops/internal/domain/repositories"
	"github.com/zatekoja/hospitalops/pkg/config"
)

// baselineServiceTime is assumed per waiting patient when a department has
// no completed service sample yet
const baselineServiceTime = 5 * time.Minute

// SchedulerService runs the periodic queue maintenance ticks: schedule
// driven auto-close, statistics refresh and notification retry
type SchedulerService struct {
	store         repositories.QueueStore
	notifications *NotificationService
	bus           providers.EventBus
	clock         providers.Clock
	cfg           config.SchedulerConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(store repositories.QueueStore, notifications *NotificationService, bus providers.EventBus, clock providers.Clock, cfg config.SchedulerConfig) *SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerService{
		store:         store,
		notifications: notifications,
		bus:           bus,
		clock:         clock,
		cfg:           cfg,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start launches the three tickers. Each runs independently; a failing
// department is logged and retried on the next tick.
func (s *SchedulerService) Start() {
	s.runLoop("auto_close", s.cfg.AutoCloseInterval, s.AutoCloseTick)
	s.runLoop("statistics", s.cfg.StatisticsInterval, s.StatisticsTick)
	s.runLoop("notification_retry", s.cfg.RetryInterval, s.RetryTick)
	log.Info().
		Dur("auto_close_interval", s.cfg.AutoCloseInterval).
		Dur("statistics_interval", s.cfg.StatisticsInterval).
		Dur("retry_interval", s.cfg.RetryInterval).
		Msg("scheduler started")
}

// Stop cancels the tickers and waits for in-flight ticks to finish
func (s *SchedulerService) Stop() {
	s.cancel()
	s.wg.Wait()
	log.Info().Msg("scheduler stopped")
}

func (s *SchedulerService) runLoop(name string, interval time.Duration, tick func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if err := tick(s.ctx); err != nil {
					log.Error().Err(err).Str("tick", name).Msg("scheduler tick failed")
				}
			}
		}
	}()
}

// AutoCloseTick closes every open queue that is past its scheduled end time.
// A manual override wins: enabled keeps the queue open, disabled closes it.
func (s *SchedulerService) AutoCloseTick(ctx context.Context) error {
	var firstErr error
	for _, department := range entities.Departments() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.autoCloseDepartment(ctx, department); err != nil {
			log.Error().Err(err).Str("department", string(department)).Msg("auto-close failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *SchedulerService) autoCloseDepartment(ctx context.Context, department entities.Department) error {
	var status *entities.QueueStatus
	closed := false

	err := s.store.WithDepartmentLock(ctx, department, func(ctx context.Context, tx repositories.QueueTx) error {
		st, err := tx.Status(ctx)
		if err != nil {
			return err
		}
		if !st.IsOpen {
			return nil
		}

		schedule, err := tx.ActiveSchedule(ctx)
		if err != nil {
			return err
		}
		if schedule == nil {
			return nil
		}

		now := s.clock.Now()
		shouldClose := false
		switch {
		case schedule.ManualOverride && schedule.OverrideStatus == entities.OverrideEnabled:
			// nurse is holding the queue open past schedule
		case schedule.ManualOverride && schedule.OverrideStatus == entities.OverrideDisabled:
			shouldClose = true
		case schedule.PastEndTime(now):
			shouldClose = true
		}
		if !shouldClose {
			return nil
		}

		err = tx.AppendLog(ctx, &entities.QueueStatusLog{
			Department:     department,
			PreviousStatus: true,
			NewStatus:      false,
			ChangeReason:   entities.ChangeReasonSchedule,
			ChangedBy:      st.LastUpdatedBy,
			Notes:          "Queue automatically closed at scheduled time by system task",
			ChangedAt:      now,
		})
		if err != nil {
			return err
		}

		st.IsOpen = false
		st.LastUpdatedAt = now
		st.RefreshStatusMessage()
		if err := tx.SaveStatus(ctx, st); err != nil {
			return err
		}

		status = st
		closed = true
		return nil
	})
	if err != nil || !closed {
		return err
	}

	group := providers.QueueGroup(department)
	publishEvent(s.bus, group, &entities.Envelope{
		Type:    entities.EventQueueStatusUpdate,
		Payload: statusPayload(status),
	})
	publishEvent(s.bus, group, &entities.Envelope{
		Type: entities.EventQueueNotification,
		Payload: entities.NotificationPayload{
			Event:      "queue_closed",
			Department: department,
			Message:    fmt.Sprintf("The %s queue has been automatically closed at scheduled time.", department),
		},
	})

	log.Info().Str("department", string(department)).Msg("queue auto-closed")
	return nil
}

// StatisticsTick refreshes waiting counts and wait estimates for open queues
func (s *SchedulerService) StatisticsTick(ctx context.Context) error {
	var firstErr error
	for _, department := range entities.Departments() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.refreshStatistics(ctx, department); err != nil {
			log.Error().Err(err).Str("department", string(department)).Msg("statistics refresh failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *SchedulerService) refreshStatistics(ctx context.Context, department entities.Department) error {
	var status *entities.QueueStatus

	err := s.store.WithDepartmentLock(ctx, department, func(ctx context.Context, tx repositories.QueueTx) error {
		st, err := tx.Status(ctx)
		if err != nil {
			return err
		}
		if !st.IsOpen {
			return nil
		}

		totalWaiting, err := tx.CountWaiting(ctx)
		if err != nil {
			return err
		}

		st.TotalWaiting = totalWaiting
		if totalWaiting > 0 {
			perPatient := baselineServiceTime
			if avg, ok, err := tx.AverageServiceTime(ctx); err == nil && ok && avg > 0 {
				perPatient = avg
			}
			wait := perPatient * time.Duration(totalWaiting)
			st.EstimatedWait = &wait
		} else {
			st.EstimatedWait = nil
		}

		st.LastUpdatedAt = s.clock.Now()
		st.RefreshStatusMessage()
		if err := tx.SaveStatus(ctx, st); err != nil {
			return err
		}
		status = st
		return nil
	})
	if err != nil || status == nil {
		return err
	}

	publishEvent(s.bus, providers.QueueGroup(department), &entities.Envelope{
		Type:    entities.EventQueueStatusUpdate,
		Payload: statusPayload(status),
	})
	return nil
}

// RetryTick re-pushes failed notifications that are still retryable
func (s *SchedulerService) RetryTick(ctx context.Context) error {
	retried, failed, err := s.notifications.RetryFailed(ctx)
	if err != nil {
		return err
	}
	if retried > 0 || failed > 0 {
		log.Info().Int("retried", retried).Int("failed", failed).Msg("notification retry sweep finished")
	}
	return nil
}
