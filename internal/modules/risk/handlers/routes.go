package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk calculation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Post("/var/historical", h.HandleHistoricalVaR)
		r.Post("/var/parametric", h.HandleParametricVaR)
		r.Post("/cvar/historical", h.HandleHistoricalCVaR)

		r.Post("/correlation", h.HandleCorrelation)
		r.Post("/correlation/matrix", h.HandleCorrelationMatrix)

		r.Get("/scenarios", h.HandleListScenarios)
		r.Post("/stress", h.HandleRunAllScenarios)
		r.Post("/stress/{scenario}", h.HandleRunScenario)
		r.Post("/montecarlo", h.HandleMonteCarlo)

		// Attribution
		r.Route("/attribution", func(r chi.Router) {
			r.Post("/positions", h.HandlePositionAttribution)
			r.Post("/sectors", h.HandleSectorAttribution)
			r.Post("/marginal/{symbol}", h.HandleMarginalVaR)
		})

		// Predictive alerts
		r.Route("/alerts", func(r chi.Router) {
			r.Post("/var-breach", h.HandleVaRBreach)
			r.Post("/margin-call", h.HandleMarginCall)
			r.Post("/volatility-spike", h.HandleVolatilitySpike)
		})
	})
}
