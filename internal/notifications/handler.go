package notifications

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/pkg/httputil"
	"github.com/bissquit/notification-garden/internal/templates"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrNotificationNotFound, Status: http.StatusNotFound, Message: "notification not found"},
	{Error: ErrInvalidState, Status: http.StatusConflict},
	{Error: ErrPreferenceDenied, Status: http.StatusUnprocessableEntity},
	{Error: ErrValidation, Status: http.StatusBadRequest},
	{Error: templates.ErrTemplateNotFound, Status: http.StatusNotFound, Message: "template not found"},
	{Error: templates.ErrTemplateInactive, Status: http.StatusConflict, Message: "template is not active"},
	{Error: templates.ErrValidation, Status: http.StatusBadRequest},
	{Error: templates.ErrUnresolvedVariable, Status: http.StatusUnprocessableEntity},
}

// Handler handles HTTP requests for the notifications module.
type Handler struct {
	manager   *Manager
	validator *validator.Validate
}

// NewHandler creates a new notifications handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{
		manager:   manager,
		validator: validator.New(),
	}
}

// RegisterRoutes registers notification routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/stats", h.Stats)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/retry", h.Retry)
		r.Post("/{id}/cancel", h.Cancel)
		r.Post("/{id}/delivered", h.ConfirmDelivery)
	})
}

// CreateNotificationRequest represents request body for creating a notification.
type CreateNotificationRequest struct {
	UserID       string            `json:"user_id" validate:"required"`
	Type         string            `json:"type" validate:"required,oneof=welcome order payment system promotional"`
	Channel      string            `json:"channel" validate:"required,oneof=email sms in_app"`
	Recipient    string            `json:"recipient" validate:"required"`
	Subject      string            `json:"subject"`
	Content      string            `json:"content"`
	TemplateID   *string           `json:"template_id"`
	TemplateVars map[string]any    `json:"template_vars"`
	Metadata     map[string]string `json:"metadata"`
	Priority     string            `json:"priority" validate:"omitempty,oneof=low normal high"`
	ScheduledAt  *time.Time        `json:"scheduled_at"`
}

// Create handles POST /notifications.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	n, err := h.manager.Create(r.Context(), CreateInput{
		UserID:       req.UserID,
		Type:         domain.NotificationType(req.Type),
		Channel:      domain.Channel(req.Channel),
		Recipient:    req.Recipient,
		Subject:      req.Subject,
		Content:      req.Content,
		TemplateID:   req.TemplateID,
		TemplateVars: req.TemplateVars,
		Metadata:     req.Metadata,
		Priority:     domain.Priority(req.Priority),
		ScheduledAt:  req.ScheduledAt,
	})
	if err != nil {
		if pe, ok := AsProviderError(err); ok {
			httputil.Error(w, http.StatusBadGateway, pe.Error())
			return
		}
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, n)
}

// Get handles GET /notifications/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	n, err := h.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, n)
}

// List handles GET /notifications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter
	filter.UserID = r.URL.Query().Get("user_id")

	if v := r.URL.Query().Get("status"); v != "" {
		s := domain.NotificationStatus(v)
		switch s {
		case domain.StatusPending, domain.StatusSent, domain.StatusDelivered, domain.StatusFailed:
			filter.Status = &s
		default:
			httputil.Error(w, http.StatusBadRequest, "unknown status")
			return
		}
	}
	if v := r.URL.Query().Get("channel"); v != "" {
		c := domain.Channel(v)
		if !c.Valid() {
			httputil.Error(w, http.StatusBadRequest, "unknown channel")
			return
		}
		filter.Channel = &c
	}

	result, err := h.manager.List(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// Retry handles POST /notifications/{id}/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	n, err := h.manager.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if pe, ok := AsProviderError(err); ok {
			httputil.Error(w, http.StatusBadGateway, pe.Error())
			return
		}
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, n)
}

// Cancel handles POST /notifications/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	n, err := h.manager.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, n)
}

// ConfirmDelivery handles POST /notifications/{id}/delivered.
func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	n, err := h.manager.ConfirmDelivery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, n)
}

// Stats handles GET /notifications/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.manager.QueueStats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, counts)
}
