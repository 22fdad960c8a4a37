// Package history keeps the append-only audit trail of notification
// state changes.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/google/uuid"
)

// Ledger errors.
var (
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrInvalidRange      = errors.New("invalid date range")
)

// Ledger validates and appends history entries and serves audit queries.
type Ledger struct {
	repo Repository
}

// NewLedger creates a new history ledger.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// Entry describes one audit record to append.
type Entry struct {
	NotificationID string
	UserID         string
	Event          domain.HistoryEvent
	PreviousStatus *domain.NotificationStatus
	NewStatus      *domain.NotificationStatus
	Details        string
}

// Append validates the status pair against the transition table and
// writes the entry. Entries are immutable once written.
func (l *Ledger) Append(ctx context.Context, e Entry) (*domain.HistoryEntry, error) {
	if !e.Event.Valid() {
		return nil, fmt.Errorf("%w: unknown event %q", ErrIllegalTransition, e.Event)
	}

	if e.PreviousStatus != nil && e.NewStatus != nil {
		if !domain.CanTransition(*e.PreviousStatus, *e.NewStatus) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, *e.PreviousStatus, *e.NewStatus)
		}
	}

	entry := &domain.HistoryEntry{
		ID:             uuid.NewString(),
		NotificationID: e.NotificationID,
		UserID:         e.UserID,
		Event:          e.Event,
		PreviousStatus: e.PreviousStatus,
		NewStatus:      e.NewStatus,
		Details:        e.Details,
	}

	if err := l.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append history entry: %w", err)
	}
	return entry, nil
}

// ByNotification returns a notification's trail in chronological order.
func (l *Ledger) ByNotification(ctx context.Context, notificationID string) ([]domain.HistoryEntry, error) {
	return l.repo.ListByNotification(ctx, notificationID)
}

// ByUser returns a user's trail, most recent first.
func (l *Ledger) ByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	return l.repo.ListByUser(ctx, userID, limit)
}

// ByDateRange returns all entries within [from, to), most recent first.
func (l *Ledger) ByDateRange(ctx context.Context, from, to time.Time) ([]domain.HistoryEntry, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: to must be after from", ErrInvalidRange)
	}
	return l.repo.ListByDateRange(ctx, from, to)
}
