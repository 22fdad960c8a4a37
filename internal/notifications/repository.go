package notifications

import (
	"context"

	"github.com/bissquit/notification-garden/internal/domain"
)

// ListFilter restricts List results. Nil fields match everything.
type ListFilter struct {
	UserID  string
	Status  *domain.NotificationStatus
	Channel *domain.Channel
	Limit   int
}

// StatusCounts maps notification status to the number of rows in it.
type StatusCounts map[domain.NotificationStatus]int64

// Repository defines the interface for notification data access.
type Repository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Notification, error)
	// UpdateStatus moves a notification between statuses. The update is
	// conditional on the current status matching from; it returns
	// ErrInvalidState when the row has moved on concurrently.
	UpdateStatus(ctx context.Context, id string, from, to domain.NotificationStatus, failureReason string) (*domain.Notification, error)
	CountByStatus(ctx context.Context) (StatusCounts, error)
}
