// Package handlers provides HTTP handlers for risk limit configuration and checks.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/aristath/riskengine/internal/modules/limits"
	"github.com/aristath/riskengine/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Store persists limit configuration.
type Store interface {
	Upsert(ctx context.Context, limit limits.RiskLimit) error
	Delete(ctx context.Context, level limits.Level, entityID, metric string) error
}

// Handler handles risk limit HTTP requests. Limit writes go to the store first and
// then to the registry, one write at a time, so both hold the same configuration.
type Handler struct {
	manager *limits.Manager
	store   Store
	writeMu sync.Mutex
	log     zerolog.Logger
}

// NewHandler creates a new limits handler. store may be nil for a memory-only registry.
func NewHandler(manager *limits.Manager, store Store, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		store:   store,
		log:     log.With().Str("handler", "limits").Logger(),
	}
}

type checkRequest struct {
	Metrics map[string]decimal.Decimal `json:"metrics"`
}

// HandleSetLimit handles PUT /api/limits
func (h *Handler) HandleSetLimit(w http.ResponseWriter, r *http.Request) {
	var req limits.RiskLimit
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}

	level, err := limits.ParseLevel(string(req.Level))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	req.Level = level

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.store != nil {
		if err := h.store.Upsert(r.Context(), req); err != nil {
			h.writeErr(w, err)
			return
		}
	}

	if err := h.manager.SetLimit(req.Level, req.EntityID, req.Metric, req.Threshold); err != nil {
		h.writeErr(w, err)
		return
	}

	utils.WriteData(w, http.StatusOK, req, h.log)
}

// HandleRemoveLimit handles DELETE /api/limits/{level}/{entity}/{metric}
func (h *Handler) HandleRemoveLimit(w http.ResponseWriter, r *http.Request) {
	level, err := limits.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	entity := chi.URLParam(r, "entity")
	metric := chi.URLParam(r, "metric")

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.store != nil {
		if err := h.store.Delete(r.Context(), level, entity, metric); err != nil && !errors.Is(err, limits.ErrLimitNotFound) {
			h.writeErr(w, err)
			return
		}
	}

	if err := h.manager.RemoveLimit(level, entity, metric); err != nil {
		h.writeErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListLimits handles GET /api/limits
func (h *Handler) HandleListLimits(w http.ResponseWriter, r *http.Request) {
	utils.WriteData(w, http.StatusOK, h.manager.Limits(), h.log)
}

// HandleCheckLimits handles POST /api/limits/{level}/{entity}/check
func (h *Handler) HandleCheckLimits(w http.ResponseWriter, r *http.Request) {
	level, err := limits.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		h.writeErr(w, err)
		return
	}

	var req checkRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}

	result := h.manager.CheckLimits(level, chi.URLParam(r, "entity"), req.Metrics)
	utils.WriteData(w, http.StatusOK, result, h.log)
}

// HandlePreTrade handles POST /api/limits/strategies/{id}/pretrade
func (h *Handler) HandlePreTrade(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}

	result := h.manager.CheckPreTrade(chi.URLParam(r, "id"), req.Metrics)
	utils.WriteData(w, http.StatusOK, result, h.log)
}

// HandleHierarchy handles GET /api/limits/strategies/{id}/hierarchy
func (h *Handler) HandleHierarchy(w http.ResponseWriter, r *http.Request) {
	utils.WriteData(w, http.StatusOK, h.manager.GetHierarchicalLimits(chi.URLParam(r, "id")), h.log)
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, limits.ErrInvalidLevel), errors.Is(err, limits.ErrInvalidLimit):
		utils.WriteError(w, http.StatusBadRequest, err.Error(), h.log)
	case errors.Is(err, limits.ErrLimitNotFound):
		utils.WriteError(w, http.StatusNotFound, err.Error(), h.log)
	default:
		h.log.Error().Err(err).Msg("Limit request failed")
		utils.WriteError(w, http.StatusInternalServerError, "Internal error", h.log)
	}
}
