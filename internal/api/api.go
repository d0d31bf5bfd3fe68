package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/goodtune/voicetime/internal/session"
	"github.com/goodtune/voicetime/internal/storage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// SessionLister reports the sessions currently held in memory.
type SessionLister interface {
	Snapshot() []session.ActiveSession
}

// CacheReader reads the transient total-time cache.
type CacheReader interface {
	LastSessionMinutes(userID string) (float64, bool)
}

// HistoryReader returns a user's toggle log.
type HistoryReader interface {
	History(ctx context.Context, userID, username string) ([]storage.ToggleEvent, error)
}

// Handler serves the read-only stats API.
type Handler struct {
	sessions SessionLister
	cache    CacheReader
	history  HistoryReader
	store    storage.Store
	location *time.Location
	logger   zerolog.Logger
}

// NewHandler creates a new stats handler. Dates in request paths are
// interpreted in loc.
func NewHandler(sessions SessionLister, cache CacheReader, history HistoryReader, store storage.Store, loc *time.Location, logger zerolog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		cache:    cache,
		history:  history,
		store:    store,
		location: loc,
		logger:   logger.With().Str("handler", "stats").Logger(),
	}
}

// Register mounts the API routes on router.
func (h *Handler) Register(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions/active", h.ListActiveSessions).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/totals/{date}", h.GetDailyTotal).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/last-join", h.GetLastJoin).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/last-session", h.GetLastSession).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/toggles", h.GetToggles).Methods(http.MethodGet).Queries("username", "{username}")
}

// ListActiveSessions returns all in-progress sessions.
func (h *Handler) ListActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.Snapshot()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetDailyTotal returns a user's total-time record for one day (YYYY-MM-DD).
func (h *Handler) GetDailyTotal(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	day, err := time.ParseInLocation("2006-01-02", vars["date"], h.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Date must be formatted as YYYY-MM-DD")
		return
	}

	total, err := h.store.Totals().Find(r.Context(), id, day)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No total time recorded for that day")
			return
		}
		h.logger.Error().Err(err).Str("user_id", id).Str("date", vars["date"]).Msg("Failed to get daily total")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve daily total")
		return
	}

	writeJSON(w, http.StatusOK, total)
}

// GetLastJoin returns a user's most recent join record.
func (h *Handler) GetLastJoin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	record, err := h.store.Joins().FindLatest(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No join recorded for that user")
			return
		}
		h.logger.Error().Err(err).Str("user_id", id).Msg("Failed to get last join")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve last join")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// GetLastSession returns the cached length of the user's last session today.
func (h *Handler) GetLastSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	minutes, ok := h.cache.LastSessionMinutes(id)
	if !ok {
		writeError(w, http.StatusNotFound, "No session ended today for that user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": id,
		"minutes": minutes,
		"total":   session.Breakdown(time.Duration(minutes * float64(time.Minute))),
	})
}

// GetToggles returns the toggle log for a user and username.
func (h *Handler) GetToggles(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, username := vars["id"], vars["username"]

	events, err := h.history.History(r.Context(), id, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No toggle events recorded for that user")
			return
		}
		h.logger.Error().Err(err).Str("user_id", id).Msg("Failed to get toggle history")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve toggle history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}
