// Package handlers provides HTTP handlers for rebalancing runs.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/modules/portfolio"
	"github.com/aristath/folio/internal/modules/rebalancing"
)

// Handler handles rebalancing HTTP requests
type Handler struct {
	service   *portfolio.Service
	portfolio *rebalancing.PortfolioRebalancer
	single    *rebalancing.SingleAccountRebalancer
	log       zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(service *portfolio.Service, p *rebalancing.PortfolioRebalancer, s *rebalancing.SingleAccountRebalancer, log zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		portfolio: p,
		single:    s,
		log:       log.With().Str("handler", "rebalancing").Logger(),
	}
}

// HandleRebalancePortfolio solves a multi-account rebalance.
func (h *Handler) HandleRebalancePortfolio(w http.ResponseWriter, r *http.Request) {
	var params rebalancing.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	snap, err := h.service.Snapshot(r.Context(), false)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build snapshot")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := h.portfolio.Rebalance(snap.RebalancingInput(), params)
	if err != nil {
		h.writeRebalanceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleRebalanceAccount solves a single-account rebalance.
func (h *Handler) HandleRebalanceAccount(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	var params rebalancing.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	snap, err := h.service.Snapshot(r.Context(), false)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build snapshot")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result, err := h.single.Rebalance(snap.RebalancingInput(), account, params)
	if err != nil {
		h.writeRebalanceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// writeRebalanceError maps a non-optimal solver outcome to 422 so callers
// can tell "relax your parameters" apart from a bad request.
func (h *Handler) writeRebalanceError(w http.ResponseWriter, err error) {
	var statusErr *rebalancing.SolverStatusError
	if errors.As(err, &statusErr) {
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  err.Error(),
			"status": string(statusErr.Status),
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
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
