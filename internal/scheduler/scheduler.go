// Package scheduler delivers notifications at their scheduled time and
// retries transient failures with a fixed backoff interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/notifications"
	"github.com/google/uuid"
)

// Defaults for the poll loop.
const (
	DefaultPollInterval = 60 * time.Second
	DefaultBatchSize    = 100
)

// Config holds scheduler settings.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// NotificationService is what the scheduler needs from the
// notification manager.
type NotificationService interface {
	Create(ctx context.Context, input notifications.CreateInput) (*domain.Notification, error)
	Deliver(ctx context.Context, notificationID string) error
	Cancel(ctx context.Context, notificationID string) (*domain.Notification, error)
}

// Scheduler owns deferred delivery. One Run loop polls for due rows;
// each row is claimed with a conditional update before delivery so a
// second scheduler instance skips it.
type Scheduler struct {
	repo   Repository
	svc    NotificationService
	config Config

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a scheduler.
func New(repo Repository, svc NotificationService, config Config) *Scheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	return &Scheduler{
		repo:   repo,
		svc:    svc,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// ScheduleInput contains data for scheduling a notification.
type ScheduleInput struct {
	Notification  notifications.CreateInput
	ScheduledAt   time.Time
	MaxAttempts   int
	RetryInterval time.Duration
}

// Schedule creates a notification and a schedule row for it. The
// scheduled time must be in the future; immediate delivery goes
// through the notification manager directly.
func (s *Scheduler) Schedule(ctx context.Context, input ScheduleInput) (*domain.ScheduledNotification, error) {
	if !input.ScheduledAt.After(time.Now()) {
		return nil, fmt.Errorf("%w: scheduled_at must be in the future", ErrInvalidSchedule)
	}
	if input.MaxAttempts < 0 {
		return nil, fmt.Errorf("%w: max_attempts cannot be negative", ErrInvalidSchedule)
	}
	if input.MaxAttempts == 0 {
		input.MaxAttempts = domain.DefaultMaxAttempts
	}
	if input.RetryInterval <= 0 {
		input.RetryInterval = domain.DefaultRetryInterval
	}

	input.Notification.ScheduledAt = &input.ScheduledAt
	n, err := s.svc.Create(ctx, input.Notification)
	if err != nil {
		return nil, err
	}

	sched := &domain.ScheduledNotification{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		Status:         domain.ScheduleStatusScheduled,
		Attempts:       0,
		MaxAttempts:    input.MaxAttempts,
		RetryInterval:  input.RetryInterval,
		NextAttemptAt:  &input.ScheduledAt,
	}
	if err := s.repo.Create(ctx, sched); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	slog.Info("notification scheduled",
		"schedule_id", sched.ID, "notification_id", n.ID,
		"scheduled_at", input.ScheduledAt, "max_attempts", sched.MaxAttempts)
	return sched, nil
}

// Run polls for due schedules until ctx is cancelled or Stop is
// called. Cycles never overlap; RunCycle refuses to start while
// another is in flight, which also covers the operator endpoint
// forcing a cycle during a tick.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.doneCh)

	slog.Info("scheduler started",
		"poll_interval", s.config.PollInterval, "batch_size", s.config.BatchSize)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped", "reason", ctx.Err())
			return
		case <-s.stopCh:
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			result := s.RunCycle(ctx)
			if result.Processed > 0 {
				slog.Info("cycle finished",
					"processed", result.Processed,
					"successful", result.Successful,
					"failed", result.Failed)
			}
		}
	}
}

// Stop signals the Run loop to exit and waits for it.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// CycleResult summarizes one poll cycle.
type CycleResult struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// RunCycle processes one batch of due schedules sequentially and
// returns what happened. Exposed so an operator endpoint can force a
// cycle without waiting for the ticker. At most one cycle runs at a
// time; a call that finds another in flight returns an empty result.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("previous cycle still running, skipping")
		return CycleResult{}
	}
	defer s.running.Store(false)

	start := time.Now()
	defer func() {
		cycleDuration.Observe(time.Since(start).Seconds())
		cyclesTotal.Inc()
	}()

	var result CycleResult

	due, err := s.repo.ListDue(ctx, time.Now(), s.config.BatchSize)
	if err != nil {
		slog.Error("failed to list due schedules", "error", err)
		return result
	}

	for _, sched := range due {
		outcome := s.process(ctx, sched)
		switch outcome {
		case outcomeSkipped:
			continue
		case outcomeSent:
			result.Successful++
		default:
			result.Failed++
		}
		result.Processed++
		processedTotal.WithLabelValues(string(outcome)).Inc()
	}
	return result
}

type processOutcome string

const (
	outcomeSent    processOutcome = "sent"
	outcomeRetried processOutcome = "retried"
	outcomeFailed  processOutcome = "failed"
	outcomeSkipped processOutcome = "skipped"
)

func (s *Scheduler) process(ctx context.Context, sched domain.ScheduledNotification) processOutcome {
	claimed, err := s.repo.ClaimProcessing(ctx, sched.ID)
	if err != nil {
		if errors.Is(err, ErrNotClaimable) {
			return outcomeSkipped
		}
		slog.Error("failed to claim schedule", "schedule_id", sched.ID, "error", err)
		return outcomeSkipped
	}

	sendErr := s.svc.Deliver(ctx, claimed.NotificationID)
	if sendErr == nil {
		if err := s.repo.MarkSent(ctx, claimed.ID); err != nil {
			slog.Error("failed to mark schedule sent", "schedule_id", claimed.ID, "error", err)
		}
		return outcomeSent
	}

	// Only provider failures are retried; anything else (bad state,
	// missing row) will not heal with time.
	pe, isProvider := notifications.AsProviderError(sendErr)
	if isProvider && claimed.Attempts < claimed.MaxAttempts {
		next := time.Now().Add(claimed.RetryInterval)
		if err := s.repo.MarkRetry(ctx, claimed.ID, next, sendErr.Error()); err != nil {
			slog.Error("failed to mark schedule for retry", "schedule_id", claimed.ID, "error", err)
			return outcomeFailed
		}
		slog.Warn("delivery failed, retry scheduled",
			"schedule_id", claimed.ID, "notification_id", claimed.NotificationID,
			"attempt", claimed.Attempts, "max_attempts", claimed.MaxAttempts,
			"next_attempt_at", next, "retryable", pe.Retryable, "error", sendErr)
		return outcomeRetried
	}

	if err := s.repo.MarkFailed(ctx, claimed.ID, sendErr.Error()); err != nil {
		slog.Error("failed to mark schedule failed", "schedule_id", claimed.ID, "error", err)
	}
	slog.Error("delivery failed permanently",
		"schedule_id", claimed.ID, "notification_id", claimed.NotificationID,
		"attempts", claimed.Attempts, "error", sendErr)
	return outcomeFailed
}

// Reschedule moves a still-scheduled notification to a new future time
// and resets its attempt counter.
func (s *Scheduler) Reschedule(ctx context.Context, id string, at time.Time) (*domain.ScheduledNotification, error) {
	if !at.After(time.Now()) {
		return nil, fmt.Errorf("%w: new time must be in the future", ErrInvalidSchedule)
	}
	sched, err := s.repo.Reschedule(ctx, id, at)
	if err != nil {
		return nil, err
	}

	slog.Info("notification rescheduled", "schedule_id", id, "next_attempt_at", at)
	return sched, nil
}

// CancelScheduled terminates a schedule and cancels its notification.
func (s *Scheduler) CancelScheduled(ctx context.Context, id string) error {
	sched, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sched.Status != domain.ScheduleStatusScheduled {
		return fmt.Errorf("%w: cannot cancel schedule in status %q", ErrScheduleState, sched.Status)
	}

	if err := s.repo.MarkFailed(ctx, id, "Cancelled"); err != nil {
		return err
	}
	if _, err := s.svc.Cancel(ctx, sched.NotificationID); err != nil {
		return err
	}

	slog.Info("schedule cancelled", "schedule_id", id, "notification_id", sched.NotificationID)
	return nil
}

// Get returns a schedule by id.
func (s *Scheduler) Get(ctx context.Context, id string) (*domain.ScheduledNotification, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByNotification returns the schedule for a notification.
func (s *Scheduler) GetByNotification(ctx context.Context, notificationID string) (*domain.ScheduledNotification, error) {
	return s.repo.GetByNotificationID(ctx, notificationID)
}

// List returns schedules in the given status.
func (s *Scheduler) List(ctx context.Context, status domain.ScheduleStatus, limit int) ([]domain.ScheduledNotification, error) {
	return s.repo.ListByStatus(ctx, status, limit)
}

// QueueStats returns the current number of schedules per status.
func (s *Scheduler) QueueStats(ctx context.Context) (map[domain.ScheduleStatus]int64, error) {
	return s.repo.CountByStatus(ctx)
}
