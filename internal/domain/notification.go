// Package domain contains the core entities of the notification engine.
package domain

import "time"

// Channel is the delivery medium for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// Channels lists all supported delivery channels.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelInApp}

// Valid reports whether the channel is one of the supported values.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

// Priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Valid reports whether the priority is one of the supported values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// NotificationStatus is the lifecycle state of a notification.
type NotificationStatus string

const (
	StatusPending   NotificationStatus = "pending"
	StatusSent      NotificationStatus = "sent"
	StatusDelivered NotificationStatus = "delivered"
	StatusFailed    NotificationStatus = "failed"
)

// statusTransitions is the fixed transition table. Every status change,
// including entries written to the history ledger, must be present here.
var statusTransitions = map[NotificationStatus][]NotificationStatus{
	StatusPending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered, StatusFailed},
	StatusDelivered: {},
	StatusFailed:    {StatusPending},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to NotificationStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Notification is a single message addressed to one recipient over one
// channel. Owned by the notification manager for its entire life.
type Notification struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	Type          NotificationType   `json:"type"`
	Channel       Channel            `json:"channel"`
	Recipient     string             `json:"recipient"`
	Subject       string             `json:"subject,omitempty"`
	Content       string             `json:"content"`
	TemplateID    *string            `json:"template_id,omitempty"`
	Metadata      map[string]string  `json:"metadata,omitempty"`
	Status        NotificationStatus `json:"status"`
	Priority      Priority           `json:"priority"`
	ScheduledAt   *time.Time         `json:"scheduled_at,omitempty"`
	SentAt        *time.Time         `json:"sent_at,omitempty"`
	DeliveredAt   *time.Time         `json:"delivered_at,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
