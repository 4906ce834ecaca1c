// Package handlers provides HTTP handlers for the portfolio snapshot.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service *portfolio.Service
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetSummary returns total value, accounts and ticker count of the
// current snapshot, building it on first use.
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), false)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build snapshot")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, snap.Summarize())
}

// HandleRefresh forces a full snapshot rebuild: holdings and factor files
// are re-read and prices re-fetched.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), true)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to refresh snapshot")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, snap.Summarize())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
