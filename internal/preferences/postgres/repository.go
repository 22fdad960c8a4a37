// Package postgres provides the PostgreSQL implementation of the
// preferences repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/preferences"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements preferences.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const preferenceColumns = `id, user_id, type, channel, enabled, frequency, created_at, updated_at`

// ListByUser retrieves all stored preference rows for a user.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Preference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM user_notification_preferences WHERE user_id = $1 ORDER BY type, channel`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Preference, 0)
	for rows.Next() {
		var p domain.Preference
		if err := scanPreference(rows, &p); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Get retrieves one preference row.
func (r *Repository) Get(ctx context.Context, userID string, t domain.NotificationType, c domain.Channel) (*domain.Preference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM user_notification_preferences WHERE user_id = $1 AND type = $2 AND channel = $3`
	var p domain.Preference
	if err := scanPreference(r.db.QueryRow(ctx, query, userID, t, c), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, preferences.ErrPreferenceNotFound
		}
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return &p, nil
}

// UpsertMany inserts or updates the given rows in one transaction.
func (r *Repository) UpsertMany(ctx context.Context, userID string, prefs []domain.Preference) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		INSERT INTO user_notification_preferences (id, user_id, type, channel, enabled, frequency)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, type, channel)
		DO UPDATE SET enabled = EXCLUDED.enabled, frequency = EXCLUDED.frequency, updated_at = NOW()
	`
	for _, p := range prefs {
		if _, err := tx.Exec(ctx, query, p.ID, userID, p.Type, p.Channel, p.Enabled, p.Frequency); err != nil {
			return fmt.Errorf("upsert preference %s/%s: %w", p.Type, p.Channel, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanPreference(row pgx.Row, p *domain.Preference) error {
	return row.Scan(
		&p.ID,
		&p.UserID,
		&p.Type,
		&p.Channel,
		&p.Enabled,
		&p.Frequency,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}
