package domain

import "time"

// HistoryEvent names what happened to a notification.
type HistoryEvent string

const (
	EventCreated   HistoryEvent = "created"
	EventSent      HistoryEvent = "sent"
	EventDelivered HistoryEvent = "delivered"
	EventFailed    HistoryEvent = "failed"
	EventRetried   HistoryEvent = "retried"
)

// Valid reports whether the event is one of the supported values.
func (e HistoryEvent) Valid() bool {
	switch e {
	case EventCreated, EventSent, EventDelivered, EventFailed, EventRetried:
		return true
	}
	return false
}

// HistoryEntry is one immutable record in a notification's audit trail.
// When both PreviousStatus and NewStatus are set, the pair must be a
// legal transition (see CanTransition).
type HistoryEntry struct {
	ID             string              `json:"id"`
	NotificationID string              `json:"notification_id"`
	UserID         string              `json:"user_id"`
	Event          HistoryEvent        `json:"event"`
	PreviousStatus *NotificationStatus `json:"previous_status,omitempty"`
	NewStatus      *NotificationStatus `json:"new_status,omitempty"`
	Details        string              `json:"details,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}
