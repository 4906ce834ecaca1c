// Package handlers provides HTTP handlers for dimensional metrics queries.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/metrics"
	"github.com/aristath/folio/internal/modules/portfolio"
)

// Handler handles metrics HTTP requests
type Handler struct {
	service *portfolio.Service
	engine  *metrics.Engine
	log     zerolog.Logger
}

// NewHandler creates a new metrics handler
func NewHandler(service *portfolio.Service, engine *metrics.Engine, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		engine:  engine,
		log:     log.With().Str("handler", "metrics").Logger(),
	}
}

// RegisterRoutes registers all metrics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/metrics/query", h.HandleQuery)
}

// HandleQuery runs one dimensional aggregation against the current snapshot.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var query metrics.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	snap, err := h.service.Snapshot(r.Context(), false)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build snapshot")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := h.engine.Query(snap.MetricsInput(), query)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
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
