// Package postgres provides the PostgreSQL implementation of the
// history repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements history.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const historyColumns = `id, notification_id, user_id, event, previous_status, new_status, details, created_at`

// Append inserts a history entry. Entries are never updated or deleted.
func (r *Repository) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	query := `
		INSERT INTO notification_history (id, notification_id, user_id, event, previous_status, new_status, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		entry.ID, entry.NotificationID, entry.UserID, entry.Event,
		entry.PreviousStatus, entry.NewStatus, entry.Details,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// ListByNotification returns a notification's trail in chronological order.
func (r *Repository) ListByNotification(ctx context.Context, notificationID string) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + `
		FROM notification_history
		WHERE notification_id = $1
		ORDER BY created_at ASC`
	return r.list(ctx, query, notificationID)
}

// ListByUser returns a user's trail, most recent first.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + `
		FROM notification_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	return r.list(ctx, query, userID, limit)
}

// ListByDateRange returns entries created within [from, to), most recent first.
func (r *Repository) ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.HistoryEntry, error) {
	query := `SELECT ` + historyColumns + `
		FROM notification_history
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC`
	return r.list(ctx, query, from, to)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]domain.HistoryEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	result := make([]domain.HistoryEntry, 0)
	for rows.Next() {
		var e domain.HistoryEntry
		if err := scanEntry(rows, &e); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanEntry(row pgx.Row, e *domain.HistoryEntry) error {
	return row.Scan(
		&e.ID,
		&e.NotificationID,
		&e.UserID,
		&e.Event,
		&e.PreviousStatus,
		&e.NewStatus,
		&e.Details,
		&e.CreatedAt,
	)
}
