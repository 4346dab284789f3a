package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk limit routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/limits", func(r chi.Router) {
		r.Get("/", h.HandleListLimits)
		r.Put("/", h.HandleSetLimit)

		r.Route("/strategies/{id}", func(r chi.Router) {
			r.Get("/hierarchy", h.HandleHierarchy)
			r.Post("/pretrade", h.HandlePreTrade)
		})

		r.Post("/{level}/{entity}/check", h.HandleCheckLimits)
		r.Delete("/{level}/{entity}/{metric}", h.HandleRemoveLimit)
	})
}
