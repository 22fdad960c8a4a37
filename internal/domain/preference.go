package domain

import "time"

// Frequency is how often a user wants notifications of a given
// type/channel combination.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyDisabled  Frequency = "disabled"
)

// Valid reports whether the frequency is one of the supported values.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly, FrequencyDisabled:
		return true
	}
	return false
}

// Preference is the per-user delivery gate for one (type, channel)
// combination. Invariant: Frequency is disabled iff Enabled is false.
type Preference struct {
	ID        string           `json:"id,omitempty"`
	UserID    string           `json:"user_id,omitempty"`
	Type      NotificationType `json:"type"`
	Channel   Channel          `json:"channel"`
	Enabled   bool             `json:"enabled"`
	Frequency Frequency        `json:"frequency"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
	UpdatedAt time.Time        `json:"updated_at,omitempty"`
}

// Allowed reports whether this preference admits delivery.
func (p Preference) Allowed() bool {
	return p.Enabled && p.Frequency != FrequencyDisabled
}
