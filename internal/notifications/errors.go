package notifications

import (
	"errors"
	"fmt"

	"github.com/bissquit/notification-garden/internal/domain"
)

// Notification errors.
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidState         = errors.New("notification is in the wrong state for this operation")
	ErrPreferenceDenied     = errors.New("blocked by user preferences")
	ErrValidation           = errors.New("validation error")
)

// ProviderError wraps a delivery failure reported by a channel
// provider. Retryable marks transient failures worth another attempt.
type ProviderError struct {
	Channel   domain.Channel
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Channel, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a provider error for the given channel.
func NewProviderError(channel domain.Channel, err error, retryable bool) *ProviderError {
	return &ProviderError{Channel: channel, Err: err, Retryable: retryable}
}

// AsProviderError extracts a ProviderError from err's chain if present.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
