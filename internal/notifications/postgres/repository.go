// Package postgres provides the PostgreSQL implementation of the
// notifications repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/notifications"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const notificationColumns = `id, user_id, type, channel, recipient, subject, content, template_id,
	metadata, status, priority, scheduled_at, sent_at, delivered_at, failure_reason, created_at, updated_at`

// Create inserts a new notification.
func (r *Repository) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, type, channel, recipient, subject, content, template_id, metadata, status, priority, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	err := r.db.QueryRow(ctx, query,
		n.ID, n.UserID, n.Type, n.Channel, n.Recipient, n.Subject, n.Content,
		n.TemplateID, metadata, n.Status, n.Priority, n.ScheduledAt,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetByID retrieves a notification by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	var n domain.Notification
	if err := scanNotification(r.db.QueryRow(ctx, query, id), &n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// List retrieves notifications matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter notifications.ListFilter) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE 1=1`
	args := make([]any, 0, 4)

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Channel != nil {
		args = append(args, *filter.Channel)
		query += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// UpdateStatus conditionally moves a notification from one status to
// another, stamping sent_at/delivered_at as appropriate. Returns
// ErrInvalidState when the row is no longer in the expected status.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to domain.NotificationStatus, failureReason string) (*domain.Notification, error) {
	query := `
		UPDATE notifications
		SET status = $3,
		    failure_reason = $4,
		    sent_at = CASE WHEN $3 = 'sent' THEN NOW() ELSE sent_at END,
		    delivered_at = CASE WHEN $3 = 'delivered' THEN NOW() ELSE delivered_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + notificationColumns

	var n domain.Notification
	if err := scanNotification(r.db.QueryRow(ctx, query, id, from, to, failureReason), &n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the notification is gone or another worker moved it.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, notifications.ErrInvalidState
		}
		return nil, fmt.Errorf("update notification status: %w", err)
	}
	return &n, nil
}

// CountByStatus returns the number of notifications per status.
func (r *Repository) CountByStatus(ctx context.Context) (notifications.StatusCounts, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM notifications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}
	defer rows.Close()

	counts := make(notifications.StatusCounts)
	for rows.Next() {
		var status domain.NotificationStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func scanNotification(row pgx.Row, n *domain.Notification) error {
	return row.Scan(
		&n.ID,
		&n.UserID,
		&n.Type,
		&n.Channel,
		&n.Recipient,
		&n.Subject,
		&n.Content,
		&n.TemplateID,
		&n.Metadata,
		&n.Status,
		&n.Priority,
		&n.ScheduledAt,
		&n.SentAt,
		&n.DeliveredAt,
		&n.FailureReason,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
}
