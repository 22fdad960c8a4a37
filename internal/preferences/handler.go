package preferences

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/notification-garden/internal/domain"
	"github.com/bissquit/notification-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrValidation, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the preferences module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new preferences handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers preference routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/users/{userID}/preferences", func(r chi.Router) {
		r.Get("/", h.GetEffective)
		r.Put("/", h.Update)
	})
}

// PreferenceUpdateRequest represents one preference row in an update.
type PreferenceUpdateRequest struct {
	Type      string `json:"type" validate:"required,oneof=welcome order payment system promotional"`
	Channel   string `json:"channel" validate:"required,oneof=email sms in_app"`
	Enabled   bool   `json:"enabled"`
	Frequency string `json:"frequency" validate:"omitempty,oneof=immediate daily weekly disabled"`
}

// UpdatePreferencesRequest represents request body for PUT preferences.
type UpdatePreferencesRequest struct {
	Preferences []PreferenceUpdateRequest `json:"preferences" validate:"required,min=1,dive"`
}

// GetEffective handles GET /users/{userID}/preferences.
func (h *Handler) GetEffective(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	prefs, err := h.service.EffectivePreferences(r.Context(), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, prefs)
}

// Update handles PUT /users/{userID}/preferences.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	updates := make([]Update, 0, len(req.Preferences))
	for _, p := range req.Preferences {
		updates = append(updates, Update{
			Type:      domain.NotificationType(p.Type),
			Channel:   domain.Channel(p.Channel),
			Enabled:   p.Enabled,
			Frequency: domain.Frequency(p.Frequency),
		})
	}

	prefs, err := h.service.UpdatePreferences(r.Context(), userID, updates)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, prefs)
}
