// Package notifications implements notification lifecycle management
// and channel delivery.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/history"
	"github.com/bissquit/notification-garden/internal/templates"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PreferenceChecker gates delivery on user preferences.
type PreferenceChecker interface {
	IsAllowed(ctx context.Context, userID string, t domain.NotificationType, c domain.Channel) (bool, error)
}

// TemplateRenderer renders an active template with variables.
type TemplateRenderer interface {
	RenderActive(ctx context.Context, id string, vars map[string]any) (templates.Rendered, error)
}

// HistoryAppender records audit trail entries.
type HistoryAppender interface {
	Append(ctx context.Context, e history.Entry) (*domain.HistoryEntry, error)
}

// Manager owns the notification lifecycle: creation, delivery,
// retries and cancellation. Per-notification operations are
// serialized with a keyed mutex so a manual send cannot race a
// scheduler attempt on the same row.
type Manager struct {
	repo     Repository
	gateway  *Gateway
	prefs    PreferenceChecker
	renderer TemplateRenderer
	ledger   HistoryAppender

	sendLocks *keyedMutex
	titleCase cases.Caser
}

// NewManager creates a notification manager.
func NewManager(repo Repository, gateway *Gateway, prefs PreferenceChecker, renderer TemplateRenderer, ledger HistoryAppender) *Manager {
	return &Manager{
		repo:      repo,
		gateway:   gateway,
		prefs:     prefs,
		renderer:  renderer,
		ledger:    ledger,
		sendLocks: newKeyedMutex(),
		titleCase: cases.Title(language.English),
	}
}

// CreateInput contains data for creating a notification.
type CreateInput struct {
	UserID       string
	Type         domain.NotificationType
	Channel      domain.Channel
	Recipient    string
	Subject      string
	Content      string
	TemplateID   *string
	TemplateVars map[string]any
	Metadata     map[string]string
	Priority     domain.Priority
	ScheduledAt  *time.Time
}

// Create validates the input, resolves preferences and templates, and
// persists a pending notification. When no future schedule is set the
// notification is sent right away.
func (m *Manager) Create(ctx context.Context, input CreateInput) (*domain.Notification, error) {
	n, err := m.prepare(ctx, input)
	if err != nil {
		return nil, err
	}

	if err := m.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	if _, err := m.ledger.Append(ctx, history.Entry{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Event:          domain.EventCreated,
		NewStatus:      statusPtr(domain.StatusPending),
	}); err != nil {
		return nil, err
	}

	slog.Info("notification created",
		"notification_id", n.ID, "user_id", n.UserID,
		"type", n.Type, "channel", n.Channel)

	if n.ScheduledAt != nil && n.ScheduledAt.After(time.Now()) {
		return n, nil
	}
	return m.Send(ctx, n.ID)
}

func (m *Manager) prepare(ctx context.Context, input CreateInput) (*domain.Notification, error) {
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrValidation, input.Type)
	}
	if !input.Channel.Valid() {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrValidation, input.Channel)
	}
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if input.Recipient == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if input.Priority == "" {
		input.Priority = domain.PriorityNormal
	}
	if !input.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, input.Priority)
	}
	if !m.gateway.Supports(input.Channel) {
		return nil, fmt.Errorf("%w: no provider for channel %q", ErrValidation, input.Channel)
	}

	allowed, err := m.prefs.IsAllowed(ctx, input.UserID, input.Type, input.Channel)
	if err != nil {
		return nil, err
	}
	if !allowed {
		preferenceDeniedTotal.WithLabelValues(string(input.Type), string(input.Channel)).Inc()
		return nil, fmt.Errorf("%w: %s over %s for user %s", ErrPreferenceDenied, input.Type, input.Channel, input.UserID)
	}

	subject := input.Subject
	content := input.Content
	if input.TemplateID != nil {
		rendered, err := m.renderer.RenderActive(ctx, *input.TemplateID, input.TemplateVars)
		if err != nil {
			return nil, err
		}
		subject = rendered.Subject
		content = rendered.Content
	}
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if subject == "" && input.Channel == domain.ChannelEmail {
		subject = m.titleCase.String(string(input.Type)) + " Notification"
	}

	return &domain.Notification{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		Type:        input.Type,
		Channel:     input.Channel,
		Recipient:   input.Recipient,
		Subject:     subject,
		Content:     content,
		TemplateID:  input.TemplateID,
		Metadata:    input.Metadata,
		Status:      domain.StatusPending,
		Priority:    input.Priority,
		ScheduledAt: input.ScheduledAt,
	}, nil
}

// Send delivers a pending notification over its channel and records
// the outcome. A failed provider call moves the notification to
// failed and the provider error is returned to the caller.
func (m *Manager) Send(ctx context.Context, id string) (*domain.Notification, error) {
	m.sendLocks.Lock(id)
	defer m.sendLocks.Unlock(id)
	return m.send(ctx, id)
}

func (m *Manager) send(ctx context.Context, id string) (*domain.Notification, error) {
	n, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: cannot send notification in status %q", ErrInvalidState, n.Status)
	}

	// Providers get the notification id alongside caller metadata so
	// channel-side records can link back.
	meta := make(map[string]string, len(n.Metadata)+1)
	for k, v := range n.Metadata {
		meta[k] = v
	}
	meta["notification_id"] = n.ID

	start := time.Now()
	receipt, sendErr := m.gateway.Send(ctx, n.Channel, n.UserID, Message{
		Recipient: n.Recipient,
		Subject:   n.Subject,
		Content:   n.Content,
		Metadata:  meta,
	})
	sendDuration.WithLabelValues(string(n.Channel)).Observe(time.Since(start).Seconds())

	if sendErr != nil {
		sendTotal.WithLabelValues(string(n.Channel), "failed").Inc()
		return nil, m.markFailed(ctx, n, sendErr)
	}
	sendTotal.WithLabelValues(string(n.Channel), "sent").Inc()

	n, err = m.repo.UpdateStatus(ctx, n.ID, domain.StatusPending, domain.StatusSent, "")
	if err != nil {
		return nil, err
	}
	if _, err := m.ledger.Append(ctx, history.Entry{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Event:          domain.EventSent,
		PreviousStatus: statusPtr(domain.StatusPending),
		NewStatus:      statusPtr(domain.StatusSent),
		Details:        receipt.ProviderID,
	}); err != nil {
		return nil, err
	}

	slog.Info("notification sent",
		"notification_id", n.ID, "channel", n.Channel, "provider_id", receipt.ProviderID)

	if receipt.Delivered {
		return m.markDelivered(ctx, n)
	}
	return n, nil
}

// ConfirmDelivery moves a sent notification to delivered. Used by
// provider delivery callbacks.
func (m *Manager) ConfirmDelivery(ctx context.Context, id string) (*domain.Notification, error) {
	m.sendLocks.Lock(id)
	defer m.sendLocks.Unlock(id)

	n, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Status != domain.StatusSent {
		return nil, fmt.Errorf("%w: cannot confirm delivery in status %q", ErrInvalidState, n.Status)
	}
	return m.markDelivered(ctx, n)
}

func (m *Manager) markDelivered(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	n, err := m.repo.UpdateStatus(ctx, n.ID, domain.StatusSent, domain.StatusDelivered, "")
	if err != nil {
		return nil, err
	}
	if _, err := m.ledger.Append(ctx, history.Entry{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Event:          domain.EventDelivered,
		PreviousStatus: statusPtr(domain.StatusSent),
		NewStatus:      statusPtr(domain.StatusDelivered),
	}); err != nil {
		return nil, err
	}
	return n, nil
}

func (m *Manager) markFailed(ctx context.Context, n *domain.Notification, sendErr error) error {
	if _, err := m.repo.UpdateStatus(ctx, n.ID, domain.StatusPending, domain.StatusFailed, sendErr.Error()); err != nil {
		return err
	}
	if _, err := m.ledger.Append(ctx, history.Entry{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Event:          domain.EventFailed,
		PreviousStatus: statusPtr(domain.StatusPending),
		NewStatus:      statusPtr(domain.StatusFailed),
		Details:        sendErr.Error(),
	}); err != nil {
		return err
	}

	slog.Error("notification send failed",
		"notification_id", n.ID, "channel", n.Channel, "error", sendErr)
	return sendErr
}

// Retry resets a failed notification to pending and sends it again.
func (m *Manager) Retry(ctx context.Context, id string) (*domain.Notification, error) {
	m.sendLocks.Lock(id)
	defer m.sendLocks.Unlock(id)

	n, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Status != domain.StatusFailed {
		return nil, fmt.Errorf("%w: cannot retry notification in status %q", ErrInvalidState, n.Status)
	}

	n, err = m.repo.UpdateStatus(ctx, n.ID, domain.StatusFailed, domain.StatusPending, "")
	if err != nil {
		return nil, err
	}
	if _, err := m.ledger.Append(ctx, history.Entry{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Event:          domain.EventRetried,
		PreviousStatus: statusPtr(domain.StatusFailed),
		NewStatus:      statusPtr(domain.StatusPending),
	}); err != nil {
		return nil, err
	}

	return m.send(ctx, id)
}

// Deliver sends a notification for a scheduler attempt. A pending
// notification is sent directly; a failed one goes through the retry
// transition first so the attempt lands in the audit trail.
func (m *Manager) Deliver(ctx context.Context, id string) error {
	m.sendLocks.Lock(id)
	defer m.sendLocks.Unlock(id)

	n, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	switch n.Status {
	case domain.StatusPending:
		_, err = m.send(ctx, id)
		return err
	case domain.StatusFailed:
		if _, err := m.repo.UpdateStatus(ctx, n.ID, domain.StatusFailed, domain.StatusPending, ""); err != nil {
			return err
		}
		if _, err := m.ledger.Append(ctx, history.Entry{
			NotificationID: n.ID,
			UserID:         n.UserID,
			Event:          domain.EventRetried,
			PreviousStatus: statusPtr(domain.StatusFailed),
			NewStatus:      statusPtr(domain.StatusPending),
		}); err != nil {
			return err
		}
		_, err = m.send(ctx, id)
		return err
	default:
		return fmt.Errorf("%w: cannot deliver notification in status %q", ErrInvalidState, n.Status)
	}
}

// cancelReason is the failure reason recorded for user-initiated
// cancellations. Clients match on it, so the casing is part of the API.
const cancelReason = "Cancelled"

// Cancel aborts a pending notification before it is sent.
func (m *Manager) Cancel(ctx context.Context, id string) (*domain.Notification, error) {
	m.sendLocks.Lock(id)
	defer m.sendLocks.Unlock(id)

	n, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: cannot cancel notification in status %q", ErrInvalidState, n.Status)
	}

	n, err = m.repo.UpdateStatus(ctx, n.ID, domain.StatusPending, domain.StatusFailed, cancelReason)
	if err != nil {
		return nil, err
	}
	if _, err := m.ledger.Append(ctx, history.Entry{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Event:          domain.EventFailed,
		PreviousStatus: statusPtr(domain.StatusPending),
		NewStatus:      statusPtr(domain.StatusFailed),
		Details:        cancelReason,
	}); err != nil {
		return nil, err
	}

	slog.Info("notification cancelled", "notification_id", n.ID)
	return n, nil
}

// Get returns a notification by id.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Notification, error) {
	return m.repo.GetByID(ctx, id)
}

// List returns notifications matching the filter.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]domain.Notification, error) {
	return m.repo.List(ctx, filter)
}

// QueueStats returns the current number of notifications per status.
func (m *Manager) QueueStats(ctx context.Context) (StatusCounts, error) {
	return m.repo.CountByStatus(ctx)
}

func statusPtr(s domain.NotificationStatus) *domain.NotificationStatus {
	return &s
}
