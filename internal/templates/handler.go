package templates

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrTemplateNotFound, Status: http.StatusNotFound, Message: "template not found"},
	{Error: ErrNameTaken, Status: http.StatusConflict, Message: "template name already in use"},
	{Error: ErrTemplateInactive, Status: http.StatusConflict, Message: "template is not active"},
	{Error: ErrValidation, Status: http.StatusBadRequest},
	{Error: ErrUnresolvedVariable, Status: http.StatusUnprocessableEntity},
}

// Handler handles HTTP requests for the templates module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new templates handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers template routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Post("/{id}/preview", h.Preview)
	})
}

// CreateTemplateRequest represents request body for creating a template.
type CreateTemplateRequest struct {
	Name      string                         `json:"name" validate:"required"`
	Type      string                         `json:"type" validate:"required,oneof=welcome order payment system promotional"`
	Channel   string                         `json:"channel" validate:"required,oneof=email sms in_app"`
	Subject   string                         `json:"subject"`
	Content   string                         `json:"content" validate:"required"`
	Variables map[string]domain.VariableSpec `json:"variables"`
}

// UpdateTemplateRequest represents request body for updating a template.
type UpdateTemplateRequest struct {
	Subject   *string                        `json:"subject"`
	Content   *string                        `json:"content"`
	Variables map[string]domain.VariableSpec `json:"variables"`
	IsActive  *bool                          `json:"is_active"`
}

// PreviewRequest represents request body for previewing a template.
type PreviewRequest struct {
	Variables map[string]any `json:"variables"`
}

// Create handles POST /templates.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	template, err := h.service.Create(r.Context(), CreateInput{
		Name:      req.Name,
		Type:      domain.NotificationType(req.Type),
		Channel:   domain.Channel(req.Channel),
		Subject:   req.Subject,
		Content:   req.Content,
		Variables: req.Variables,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, template)
}

// Get handles GET /templates/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	template, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, template)
}

// List handles GET /templates.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter

	if v := r.URL.Query().Get("type"); v != "" {
		t := domain.NotificationType(v)
		if !t.Valid() {
			httputil.Error(w, http.StatusBadRequest, "unknown type")
			return
		}
		filter.Type = &t
	}
	if v := r.URL.Query().Get("channel"); v != "" {
		c := domain.Channel(v)
		if !c.Valid() {
			httputil.Error(w, http.StatusBadRequest, "unknown channel")
			return
		}
		filter.Channel = &c
	}
	filter.ActiveOnly = r.URL.Query().Get("active") == "true"

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// Update handles PATCH /templates/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	template, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), UpdateInput{
		Subject:   req.Subject,
		Content:   req.Content,
		Variables: req.Variables,
		IsActive:  req.IsActive,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, template)
}

// Preview handles POST /templates/{id}/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	rendered, err := h.service.Preview(r.Context(), chi.URLParam(r, "id"), req.Variables)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, rendered)
}
