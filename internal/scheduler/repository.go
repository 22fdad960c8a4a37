package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bissquit/notification-garden/internal/domain"
)

// Scheduler errors.
var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrInvalidSchedule  = errors.New("invalid schedule")
	ErrScheduleState    = errors.New("schedule is in the wrong state for this operation")
	// ErrNotClaimable means another worker claimed the row first.
	ErrNotClaimable = errors.New("schedule is not claimable")
)

// Repository defines the interface for scheduled notification data
// access. Status changes are conditional updates keyed on the current
// status, so two workers can never process the same row at once.
type Repository interface {
	Create(ctx context.Context, s *domain.ScheduledNotification) error
	GetByID(ctx context.Context, id string) (*domain.ScheduledNotification, error)
	GetByNotificationID(ctx context.Context, notificationID string) (*domain.ScheduledNotification, error)
	ListByStatus(ctx context.Context, status domain.ScheduleStatus, limit int) ([]domain.ScheduledNotification, error)
	// ListDue returns scheduled rows whose next attempt is at or before
	// now, ordered by next_attempt_at.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledNotification, error)
	// ClaimProcessing moves a row from scheduled to processing,
	// incrementing attempts and stamping last_attempt_at. Returns
	// ErrNotClaimable when the row is not in scheduled status.
	ClaimProcessing(ctx context.Context, id string) (*domain.ScheduledNotification, error)
	MarkSent(ctx context.Context, id string) error
	// MarkRetry moves a processing row back to scheduled with a new
	// next_attempt_at.
	MarkRetry(ctx context.Context, id string, nextAttemptAt time.Time, errorDetails string) error
	// MarkFailed terminates a scheduled or processing row, clearing
	// next_attempt_at so the poller never picks it up again.
	MarkFailed(ctx context.Context, id string, errorDetails string) error
	// Reschedule resets a scheduled row to a new time with zero attempts.
	Reschedule(ctx context.Context, id string, at time.Time) (*domain.ScheduledNotification, error)
	CountByStatus(ctx context.Context) (map[domain.ScheduleStatus]int64, error)
}
