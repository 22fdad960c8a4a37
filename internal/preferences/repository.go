package preferences

import (
	"context"
	"errors"

	"github.com/bissquit/notification-garden/internal/domain"
)

// Repository errors.
var (
	ErrPreferenceNotFound = errors.New("preference not found")
)

// Repository defines the interface for preference data access.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Preference, error)
	Get(ctx context.Context, userID string, t domain.NotificationType, c domain.Channel) (*domain.Preference, error)

	// UpsertMany inserts or updates all given rows in one transaction.
	UpsertMany(ctx context.Context, userID string, prefs []domain.Preference) error
}
