package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all stop-loss routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/stops", func(r chi.Router) {
		r.Post("/", h.HandleOpen)
		r.Get("/", h.HandleList)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleClose)
			r.Post("/price", h.HandlePrice)
			r.Post("/atr", h.HandleATR)
		})
	})
}
