// Package inapp delivers notifications into the user's in-app inbox.
package inapp

import (
	"context"
	"fmt"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/notifications"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Provider writes messages straight into the inbox table. Since the
// write is the delivery, the receipt reports delivered immediately.
type Provider struct {
	db *pgxpool.Pool
}

// New creates an in-app provider.
func New(db *pgxpool.Pool) *Provider {
	return &Provider{db: db}
}

// Channel returns the delivery channel.
func (p *Provider) Channel() domain.Channel {
	return domain.ChannelInApp
}

// Send inserts the message into the recipient's inbox.
func (p *Provider) Send(ctx context.Context, userID string, msg notifications.Message) (notifications.Receipt, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO inapp_inbox (id, user_id, notification_id, subject, content)
		VALUES ($1, $2, $3, $4, $5)
	`

	var notificationID *string
	if v, ok := msg.Metadata["notification_id"]; ok && v != "" {
		notificationID = &v
	}

	_, err := p.db.Exec(ctx, query, id, userID, notificationID, msg.Subject, msg.Content)
	if err != nil {
		return notifications.Receipt{}, notifications.NewProviderError(
			domain.ChannelInApp, fmt.Errorf("insert inbox message: %w", err), true)
	}

	return notifications.Receipt{ProviderID: id, Delivered: true}, nil
}
