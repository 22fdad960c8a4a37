package history

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/notification-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

const defaultUserHistoryLimit = 100

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrInvalidRange, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for the history module.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates a new history handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes registers history routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/notifications/{id}/history", h.ByNotification)
	r.Get("/users/{userID}/history", h.ByUser)
	r.Get("/history", h.ByDateRange)
}

// ByNotification handles GET /notifications/{id}/history.
func (h *Handler) ByNotification(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.ByNotification(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, entries)
}

// ByUser handles GET /users/{userID}/history.
func (h *Handler) ByUser(w http.ResponseWriter, r *http.Request) {
	limit := defaultUserHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.ledger.ByUser(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, entries)
}

// ByDateRange handles GET /history?from=...&to=... with RFC 3339 bounds.
func (h *Handler) ByDateRange(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
		return
	}

	entries, err := h.ledger.ByDateRange(r.Context(), from, to)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, entries)
}
