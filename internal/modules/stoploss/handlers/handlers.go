// Package handlers provides HTTP handlers for stop-loss tracking.
package handlers

import (
	"errors"
	"net/http"

	"github.com/aristath/riskengine/internal/modules/stoploss"
	"github.com/aristath/riskengine/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler handles stop-loss HTTP requests
type Handler struct {
	book *stoploss.Book
	log  zerolog.Logger
}

// NewHandler creates a new stop-loss handler
func NewHandler(book *stoploss.Book, log zerolog.Logger) *Handler {
	return &Handler{
		book: book,
		log:  log.With().Str("handler", "stoploss").Logger(),
	}
}

type priceRequest struct {
	Price float64 `json:"price"`
}

type atrRequest struct {
	ATR float64 `json:"atr"`
}

// HandleOpen handles POST /api/stops
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req stoploss.OpenRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}

	pos, err := h.book.Open(req)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteData(w, http.StatusCreated, pos, h.log)
}

// HandleList handles GET /api/stops
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	utils.WriteData(w, http.StatusOK, h.book.List(), h.log)
}

// HandleGet handles GET /api/stops/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	pos, err := h.book.Get(id)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteData(w, http.StatusOK, pos, h.log)
}

// HandleClose handles DELETE /api/stops/{id}
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.book.Close(id); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePrice handles POST /api/stops/{id}/price
func (h *Handler) HandlePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req priceRequest
	if err := utils.DecodeJSON(r, &req); err != nil || req.Price <= 0 {
		utils.WriteError(w, http.StatusBadRequest, "price must be a positive number", h.log)
		return
	}

	eval, err := h.book.OnPrice(id, req.Price)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteData(w, http.StatusOK, eval, h.log)
}

// HandleATR handles POST /api/stops/{id}/atr
func (h *Handler) HandleATR(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req atrRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", h.log)
		return
	}

	pos, err := h.book.OnATR(id, req.ATR)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteData(w, http.StatusOK, pos, h.log)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid position id", h.log)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stoploss.ErrInvalidStopParams):
		utils.WriteError(w, http.StatusBadRequest, err.Error(), h.log)
	case errors.Is(err, stoploss.ErrUnknownPosition):
		utils.WriteError(w, http.StatusNotFound, err.Error(), h.log)
	default:
		h.log.Error().Err(err).Msg("Stop-loss request failed")
		utils.WriteError(w, http.StatusInternalServerError, "Internal error", h.log)
	}
}
