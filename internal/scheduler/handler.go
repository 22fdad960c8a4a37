package scheduler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/notifications"
	"github.com/bissquit/notification-garden/internal/pkg/httputil"
	"github.com/bissquit/notification-garden/internal/templates"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrScheduleNotFound, Status: http.StatusNotFound, Message: "schedule not found"},
	{Error: ErrInvalidSchedule, Status: http.StatusBadRequest},
	{Error: ErrScheduleState, Status: http.StatusConflict},
	{Error: notifications.ErrValidation, Status: http.StatusBadRequest},
	{Error: notifications.ErrPreferenceDenied, Status: http.StatusUnprocessableEntity},
	{Error: notifications.ErrNotificationNotFound, Status: http.StatusNotFound, Message: "notification not found"},
	{Error: templates.ErrTemplateNotFound, Status: http.StatusNotFound, Message: "template not found"},
	{Error: templates.ErrTemplateInactive, Status: http.StatusConflict, Message: "template is not active"},
	{Error: templates.ErrValidation, Status: http.StatusBadRequest},
	{Error: templates.ErrUnresolvedVariable, Status: http.StatusUnprocessableEntity},
}

// Handler handles HTTP requests for the scheduler module.
type Handler struct {
	scheduler *Scheduler
	validator *validator.Validate
}

// NewHandler creates a new scheduler handler.
func NewHandler(scheduler *Scheduler) *Handler {
	return &Handler{
		scheduler: scheduler,
		validator: validator.New(),
	}
}

// RegisterRoutes registers schedule routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/schedules", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Schedule)
		r.Get("/stats", h.Stats)
		r.Post("/run", h.RunCycle)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Reschedule)
		r.Post("/{id}/cancel", h.Cancel)
	})
}

// ScheduleRequest represents request body for scheduling a notification.
type ScheduleRequest struct {
	UserID        string            `json:"user_id" validate:"required"`
	Type          string            `json:"type" validate:"required,oneof=welcome order payment system promotional"`
	Channel       string            `json:"channel" validate:"required,oneof=email sms in_app"`
	Recipient     string            `json:"recipient" validate:"required"`
	Subject       string            `json:"subject"`
	Content       string            `json:"content"`
	TemplateID    *string           `json:"template_id"`
	TemplateVars  map[string]any    `json:"template_vars"`
	Metadata      map[string]string `json:"metadata"`
	Priority      string            `json:"priority" validate:"omitempty,oneof=low normal high"`
	ScheduledAt   time.Time         `json:"scheduled_at" validate:"required"`
	MaxAttempts   int               `json:"max_attempts" validate:"omitempty,min=1,max=10"`
	RetrySeconds  int               `json:"retry_interval_seconds" validate:"omitempty,min=1"`
}

// RescheduleRequest represents request body for moving a schedule.
type RescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// Schedule handles POST /schedules.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sched, err := h.scheduler.Schedule(r.Context(), ScheduleInput{
		Notification: notifications.CreateInput{
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
		},
		ScheduledAt:   req.ScheduledAt,
		MaxAttempts:   req.MaxAttempts,
		RetryInterval: time.Duration(req.RetrySeconds) * time.Second,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, sched)
}

// Get handles GET /schedules/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sched, err := h.scheduler.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sched)
}

// List handles GET /schedules?status=scheduled&limit=50.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.ScheduleStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.ScheduleStatusScheduled
	}
	switch status {
	case domain.ScheduleStatusScheduled, domain.ScheduleStatusProcessing,
		domain.ScheduleStatusSent, domain.ScheduleStatusFailed:
	default:
		httputil.Error(w, http.StatusBadRequest, "unknown status")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	result, err := h.scheduler.List(r.Context(), status, limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// Reschedule handles PATCH /schedules/{id}.
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sched, err := h.scheduler.Reschedule(r.Context(), chi.URLParam(r, "id"), req.ScheduledAt)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sched)
}

// Cancel handles POST /schedules/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.CancelScheduled(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusNoContent, nil)
}

// RunCycle handles POST /schedules/run, forcing one poll cycle.
func (h *Handler) RunCycle(w http.ResponseWriter, r *http.Request) {
	result := h.scheduler.RunCycle(r.Context())
	httputil.Success(w, http.StatusOK, result)
}

// Stats handles GET /schedules/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.scheduler.QueueStats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, counts)
}
