package history

import (
	"context"
	"time"

	"github.com/bissquit/notification-garden/internal/domain"
)

// Repository defines the interface for history data access. The store
// is append-only: there are no update or delete operations.
type Repository interface {
	Append(ctx context.Context, entry *domain.HistoryEntry) error
	ListByNotification(ctx context.Context, notificationID string) ([]domain.HistoryEntry, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error)
	ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.HistoryEntry, error)
}
