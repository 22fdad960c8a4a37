// Package postgres provides the PostgreSQL implementation of the
// scheduler repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/scheduler"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements scheduler.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const scheduleColumns = `id, notification_id, status, attempts, max_attempts, retry_interval_seconds,
	next_attempt_at, last_attempt_at, error_details, created_at, updated_at`

// Create inserts a new schedule row.
func (r *Repository) Create(ctx context.Context, s *domain.ScheduledNotification) error {
	query := `
		INSERT INTO scheduled_notifications (id, notification_id, status, attempts, max_attempts, retry_interval_seconds, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		s.ID, s.NotificationID, s.Status, s.Attempts, s.MaxAttempts,
		int(s.RetryInterval.Seconds()), s.NextAttemptAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetByID retrieves a schedule by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.ScheduledNotification, error) {
	query := `SELECT ` + scheduleColumns + ` FROM scheduled_notifications WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// GetByNotificationID retrieves the schedule for a notification.
func (r *Repository) GetByNotificationID(ctx context.Context, notificationID string) (*domain.ScheduledNotification, error) {
	query := `SELECT ` + scheduleColumns + ` FROM scheduled_notifications WHERE notification_id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, notificationID))
}

// ListByStatus retrieves schedules in the given status, newest first.
func (r *Repository) ListByStatus(ctx context.Context, status domain.ScheduleStatus, limit int) ([]domain.ScheduledNotification, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM scheduled_notifications
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`
	return r.list(ctx, query, status, limit)
}

// ListDue retrieves scheduled rows due at or before now, oldest first.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledNotification, error) {
	query := `SELECT ` + scheduleColumns + `
		FROM scheduled_notifications
		WHERE status = 'scheduled' AND next_attempt_at <= $1
		ORDER BY next_attempt_at ASC
		LIMIT $2`
	return r.list(ctx, query, now, limit)
}

// ClaimProcessing atomically claims a scheduled row for delivery.
func (r *Repository) ClaimProcessing(ctx context.Context, id string) (*domain.ScheduledNotification, error) {
	query := `
		UPDATE scheduled_notifications
		SET status = 'processing', attempts = attempts + 1, last_attempt_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING ` + scheduleColumns

	s, err := r.scanOne(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, scheduler.ErrScheduleNotFound) {
			return nil, scheduler.ErrNotClaimable
		}
		return nil, err
	}
	return s, nil
}

// MarkSent finalizes a processing row after successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id string) error {
	query := `
		UPDATE scheduled_notifications
		SET status = 'sent', next_attempt_at = NULL, error_details = '', updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	return r.exec(ctx, query, id)
}

// MarkRetry returns a processing row to the queue for another attempt.
func (r *Repository) MarkRetry(ctx context.Context, id string, nextAttemptAt time.Time, errorDetails string) error {
	query := `
		UPDATE scheduled_notifications
		SET status = 'scheduled', next_attempt_at = $2, error_details = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	return r.exec(ctx, query, id, nextAttemptAt, errorDetails)
}

// MarkFailed terminates a scheduled or processing row.
func (r *Repository) MarkFailed(ctx context.Context, id string, errorDetails string) error {
	query := `
		UPDATE scheduled_notifications
		SET status = 'failed', next_attempt_at = NULL, error_details = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('scheduled', 'processing')
	`
	return r.exec(ctx, query, id, errorDetails)
}

// Reschedule moves a scheduled row to a new time and resets attempts.
func (r *Repository) Reschedule(ctx context.Context, id string, at time.Time) (*domain.ScheduledNotification, error) {
	query := `
		UPDATE scheduled_notifications
		SET next_attempt_at = $2, attempts = 0, error_details = '', updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING ` + scheduleColumns

	s, err := r.scanOne(r.db.QueryRow(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, scheduler.ErrScheduleNotFound) {
			// Distinguish a missing row from a row past its scheduled state.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, scheduler.ErrScheduleState
		}
		return nil, err
	}
	return s, nil
}

// CountByStatus returns the number of schedules per status.
func (r *Repository) CountByStatus(ctx context.Context) (map[domain.ScheduleStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM scheduled_notifications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count schedules: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ScheduleStatus]int64)
	for rows.Next() {
		var status domain.ScheduleStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scheduler.ErrScheduleState
	}
	return nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]domain.ScheduledNotification, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ScheduledNotification, 0)
	for rows.Next() {
		var s domain.ScheduledNotification
		if err := scanSchedule(rows, &s); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *Repository) scanOne(row pgx.Row) (*domain.ScheduledNotification, error) {
	var s domain.ScheduledNotification
	if err := scanSchedule(row, &s); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scheduler.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	return &s, nil
}

func scanSchedule(row pgx.Row, s *domain.ScheduledNotification) error {
	var retrySeconds int
	err := row.Scan(
		&s.ID,
		&s.NotificationID,
		&s.Status,
		&s.Attempts,
		&s.MaxAttempts,
		&retrySeconds,
		&s.NextAttemptAt,
		&s.LastAttemptAt,
		&s.ErrorDetails,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	s.RetryInterval = time.Duration(retrySeconds) * time.Second
	return nil
}
