package domain

import "time"

// ScheduleStatus is the lifecycle state of a scheduled notification.
type ScheduleStatus string

const (
	ScheduleStatusScheduled  ScheduleStatus = "scheduled"
	ScheduleStatusProcessing ScheduleStatus = "processing"
	ScheduleStatusSent       ScheduleStatus = "sent"
	ScheduleStatusFailed     ScheduleStatus = "failed"
)

// Default retry policy for scheduled notifications.
const (
	DefaultMaxAttempts   = 3
	DefaultRetryInterval = 300 * time.Second
)

// ScheduledNotification tracks deferred delivery of one notification,
// including its retry bookkeeping. Mutated only by the scheduler during
// poll cycles. Invariants: Attempts <= MaxAttempts; NextAttemptAt, when
// set, is strictly after LastAttemptAt.
type ScheduledNotification struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notification_id"`
	Status         ScheduleStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	MaxAttempts    int            `json:"max_attempts"`
	RetryInterval  time.Duration  `json:"retry_interval"`
	NextAttemptAt  *time.Time     `json:"next_attempt_at,omitempty"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	ErrorDetails   string         `json:"error_details,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
