package preferences

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/google/uuid"
)

// ErrValidation reports a malformed preference payload.
var ErrValidation = errors.New("preference validation failed")

// Service resolves and updates user notification preferences.
type Service struct {
	repo Repository
}

// NewService creates a new preference service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// EffectivePreferences merges the user's stored rows over the default
// matrix and returns one preference per type×channel combination, in
// the matrix's fixed order.
func (s *Service) EffectivePreferences(ctx context.Context, userID string) ([]domain.Preference, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}

	type key struct {
		t domain.NotificationType
		c domain.Channel
	}
	stored := make(map[key]domain.Preference, len(rows))
	for _, p := range rows {
		stored[key{p.Type, p.Channel}] = p
	}

	result := make([]domain.Preference, 0, len(domain.NotificationTypes)*len(domain.Channels))
	for _, t := range domain.NotificationTypes {
		for _, c := range domain.Channels {
			if p, ok := stored[key{t, c}]; ok {
				result = append(result, p)
				continue
			}
			p := Default(t, c)
			p.UserID = userID
			result = append(result, p)
		}
	}
	return result, nil
}

// IsAllowed reports whether delivery of the given type over the given
// channel is admitted for the user, falling back to the default matrix
// when no explicit row exists.
func (s *Service) IsAllowed(ctx context.Context, userID string, t domain.NotificationType, c domain.Channel) (bool, error) {
	pref, err := s.repo.Get(ctx, userID, t, c)
	if err != nil {
		if errors.Is(err, ErrPreferenceNotFound) {
			return Default(t, c).Allowed(), nil
		}
		return false, fmt.Errorf("get preference: %w", err)
	}
	return pref.Allowed(), nil
}

// Update describes one preference change.
type Update struct {
	Type      domain.NotificationType
	Channel   domain.Channel
	Enabled   bool
	Frequency domain.Frequency
}

// UpdatePreferences validates and upserts the given preference rows in
// one transaction. Frequency is auto-corrected to stay consistent with
// the enabled flag: a disabled row gets frequency "disabled", an
// enabled row with frequency "disabled" gets "immediate".
func (s *Service) UpdatePreferences(ctx context.Context, userID string, updates []Update) ([]domain.Preference, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: empty update list", ErrValidation)
	}

	type key struct {
		t domain.NotificationType
		c domain.Channel
	}
	seen := make(map[key]bool, len(updates))

	prefs := make([]domain.Preference, 0, len(updates))
	for _, u := range updates {
		if !u.Type.Valid() {
			return nil, fmt.Errorf("%w: unknown type %q", ErrValidation, u.Type)
		}
		if !u.Channel.Valid() {
			return nil, fmt.Errorf("%w: unknown channel %q", ErrValidation, u.Channel)
		}
		if u.Frequency != "" && !u.Frequency.Valid() {
			return nil, fmt.Errorf("%w: unknown frequency %q", ErrValidation, u.Frequency)
		}

		k := key{u.Type, u.Channel}
		if seen[k] {
			return nil, fmt.Errorf("%w: duplicate pair %s/%s", ErrValidation, u.Type, u.Channel)
		}
		seen[k] = true

		if !u.Enabled && immutableDefault(u.Type, u.Channel) {
			return nil, fmt.Errorf("%w: %s/%s cannot be disabled", ErrValidation, u.Type, u.Channel)
		}

		frequency := u.Frequency
		switch {
		case !u.Enabled:
			frequency = domain.FrequencyDisabled
		case frequency == "" || frequency == domain.FrequencyDisabled:
			frequency = domain.FrequencyImmediate
		}

		prefs = append(prefs, domain.Preference{
			ID:        uuid.NewString(),
			UserID:    userID,
			Type:      u.Type,
			Channel:   u.Channel,
			Enabled:   u.Enabled,
			Frequency: frequency,
		})
	}

	if err := s.repo.UpsertMany(ctx, userID, prefs); err != nil {
		return nil, fmt.Errorf("upsert preferences: %w", err)
	}

	slog.Info("preferences updated", "user_id", userID, "count", len(prefs))
	return prefs, nil
}
