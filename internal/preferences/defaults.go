// Package preferences computes the effective per-user delivery gates
// over a declarative default matrix.
package preferences

import "github.com/bissquit/notification-garden/internal/domain"

type defaultRule struct {
	Enabled   bool
	Frequency domain.Frequency
}

var (
	on  = defaultRule{Enabled: true, Frequency: domain.FrequencyImmediate}
	off = defaultRule{Enabled: false, Frequency: domain.FrequencyDisabled}
)

// defaultMatrix is the fixed default gate for every type×channel
// combination. Promotional notifications require explicit opt-in on
// every channel; everything else is on by default.
var defaultMatrix = map[domain.NotificationType]map[domain.Channel]defaultRule{
	domain.TypeWelcome: {
		domain.ChannelEmail: on,
		domain.ChannelSMS:   on,
		domain.ChannelInApp: on,
	},
	domain.TypeOrder: {
		domain.ChannelEmail: on,
		domain.ChannelSMS:   on,
		domain.ChannelInApp: on,
	},
	domain.TypePayment: {
		domain.ChannelEmail: on,
		domain.ChannelSMS:   on,
		domain.ChannelInApp: on,
	},
	domain.TypeSystem: {
		domain.ChannelEmail: on,
		domain.ChannelSMS:   on,
		domain.ChannelInApp: on, // cannot be disabled, enforced at save time
	},
	domain.TypePromotional: {
		domain.ChannelEmail: off,
		domain.ChannelSMS:   off,
		domain.ChannelInApp: off,
	},
}

// Default returns the default preference for a type×channel pair.
func Default(t domain.NotificationType, c domain.Channel) domain.Preference {
	rule := defaultMatrix[t][c]
	return domain.Preference{
		Type:      t,
		Channel:   c,
		Enabled:   rule.Enabled,
		Frequency: rule.Frequency,
	}
}

// immutableDefault reports whether the pair's preference may never be
// reduced to disabled. System in-app messages are the delivery path for
// operational notices and stay on.
func immutableDefault(t domain.NotificationType, c domain.Channel) bool {
	return t == domain.TypeSystem && c == domain.ChannelInApp
}
