// Package handlers exposes the risk calculators to the monitoring dashboard over HTTP.
// Handlers are stateless: every request carries the snapshot it is evaluated on.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/riskengine/internal/events"
	"github.com/aristath/riskengine/internal/metrics"
	"github.com/aristath/riskengine/internal/modules/risk"
	"github.com/aristath/riskengine/internal/utils"
	"github.com/aristath/riskengine/pkg/formulas"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Options holds request defaults and bounds.
type Options struct {
	DefaultIterations int
	DefaultDays       int
	MaxIterations     int
	// MonteCarloTimeout bounds a single simulation request. Zero means the request context only.
	MonteCarloTimeout time.Duration
}

// DefaultOptions returns the defaults used when no configuration is supplied.
func DefaultOptions() Options {
	return Options{
		DefaultIterations: 10000,
		DefaultDays:       1,
		MaxIterations:     1000000,
		MonteCarloTimeout: 30 * time.Second,
	}
}

// Handler handles risk calculation HTTP requests
type Handler struct {
	varCalc     *risk.VaRCalculator
	correlation *risk.CorrelationCalculator
	stress      *risk.StressTestService
	attribution *risk.RiskAttributionAnalyzer
	alerts      *risk.PredictiveRiskAlerts
	emitter     events.Emitter
	opts        Options
	log         zerolog.Logger
}

// NewHandler creates a new risk handler. emitter may be nil.
func NewHandler(
	varCalc *risk.VaRCalculator,
	correlation *risk.CorrelationCalculator,
	stress *risk.StressTestService,
	attribution *risk.RiskAttributionAnalyzer,
	alerts *risk.PredictiveRiskAlerts,
	emitter events.Emitter,
	opts Options,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		varCalc:     varCalc,
		correlation: correlation,
		stress:      stress,
		attribution: attribution,
		alerts:      alerts,
		emitter:     emitter,
		opts:        opts,
		log:         log.With().Str("handler", "risk").Logger(),
	}
}

type varRequest struct {
	Returns         []float64 `json:"returns"`
	Prices          []float64 `json:"prices,omitempty"`
	ConfidenceLevel float64   `json:"confidence_level" validate:"gt=0,lt=1"`
	PortfolioValue  float64   `json:"portfolio_value"`
}

type parametricRequest struct {
	Returns         []float64 `json:"returns,omitempty"`
	Prices          []float64 `json:"prices,omitempty"`
	Mean            *float64  `json:"mean,omitempty"`
	StdDev          *float64  `json:"std_dev,omitempty" validate:"omitempty,gte=0"`
	ConfidenceLevel float64   `json:"confidence_level" validate:"gt=0,lt=1"`
	PortfolioValue  float64   `json:"portfolio_value"`
}

type correlationRequest struct {
	SeriesA []float64 `json:"series_a"`
	SeriesB []float64 `json:"series_b"`
}

type matrixRequest struct {
	Series    map[string][]float64 `json:"series" validate:"required"`
	Threshold float64              `json:"threshold" validate:"gte=0,lte=1"`
}

type positionsRequest struct {
	Positions []risk.Position `json:"positions"`
}

// Volatility is annualised. When omitted it is estimated from Returns.
type monteCarloRequest struct {
	Positions  []risk.Position `json:"positions"`
	Volatility *float64        `json:"volatility,omitempty" validate:"omitempty,gte=0"`
	Returns    []float64       `json:"returns,omitempty"`
	Iterations int             `json:"iterations" validate:"gte=0"`
	Days       int             `json:"days" validate:"gte=0"`
}

type spikeRequest struct {
	Series []float64 `json:"series"`
}

// VaRResponse is returned by the VaR and CVaR endpoints.
type VaRResponse struct {
	Method          string  `json:"method"`
	ConfidenceLevel float64 `json:"confidence_level"`
	PortfolioValue  float64 `json:"portfolio_value"`
	Value           float64 `json:"value"`
	Observations    int     `json:"observations"`
}

// MatrixResponse is returned by the correlation matrix endpoint.
type MatrixResponse struct {
	Matrix           *risk.CorrelationMatrix `json:"matrix"`
	HighlyCorrelated []risk.CorrelationPair  `json:"highly_correlated"`
}

// MarginalVaRResponse is returned by the marginal VaR endpoint.
type MarginalVaRResponse struct {
	Symbol      string  `json:"symbol"`
	MarginalVaR float64 `json:"marginal_var"`
}

// HandleHistoricalVaR handles POST /api/risk/var/historical
func (h *Handler) HandleHistoricalVaR(w http.ResponseWriter, r *http.Request) {
	var req varRequest
	if !h.decode(w, r, &req) {
		return
	}
	returns := returnsFrom(req.Returns, req.Prices)

	utils.WriteData(w, http.StatusOK, VaRResponse{
		Method:          "historical",
		ConfidenceLevel: req.ConfidenceLevel,
		PortfolioValue:  req.PortfolioValue,
		Value:           h.varCalc.CalculateHistoricalVaR(returns, req.ConfidenceLevel, req.PortfolioValue),
		Observations:    len(returns),
	}, h.log)
}

// HandleHistoricalCVaR handles POST /api/risk/cvar/historical
func (h *Handler) HandleHistoricalCVaR(w http.ResponseWriter, r *http.Request) {
	var req varRequest
	if !h.decode(w, r, &req) {
		return
	}
	returns := returnsFrom(req.Returns, req.Prices)

	utils.WriteData(w, http.StatusOK, VaRResponse{
		Method:          "historical_cvar",
		ConfidenceLevel: req.ConfidenceLevel,
		PortfolioValue:  req.PortfolioValue,
		Value:           h.varCalc.CalculateHistoricalCVaR(returns, req.ConfidenceLevel, req.PortfolioValue),
		Observations:    len(returns),
	}, h.log)
}

// HandleParametricVaR handles POST /api/risk/var/parametric.
// Explicit mean and std_dev take precedence over a returns series.
func (h *Handler) HandleParametricVaR(w http.ResponseWriter, r *http.Request) {
	var req parametricRequest
	if !h.decode(w, r, &req) {
		return
	}
	returns := returnsFrom(req.Returns, req.Prices)

	resp := VaRResponse{
		Method:          "parametric",
		ConfidenceLevel: req.ConfidenceLevel,
		PortfolioValue:  req.PortfolioValue,
		Observations:    len(returns),
	}

	switch {
	case req.Mean != nil && req.StdDev != nil:
		resp.Value = h.varCalc.CalculateParametricVaR(*req.Mean, *req.StdDev, req.ConfidenceLevel, req.PortfolioValue)
	case req.Mean != nil || req.StdDev != nil:
		utils.WriteError(w, http.StatusBadRequest, "mean and std_dev must be supplied together", h.log)
		return
	default:
		resp.Value = h.varCalc.CalculateParametricVaRFromReturns(returns, req.ConfidenceLevel, req.PortfolioValue)
	}

	utils.WriteData(w, http.StatusOK, resp, h.log)
}

// HandleCorrelation handles POST /api/risk/correlation
func (h *Handler) HandleCorrelation(w http.ResponseWriter, r *http.Request) {
	var req correlationRequest
	if !h.decode(w, r, &req) {
		return
	}

	corr, err := h.correlation.CalculateCorrelation(req.SeriesA, req.SeriesB)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteData(w, http.StatusOK, map[string]float64{"correlation": corr}, h.log)
}

// HandleCorrelationMatrix handles POST /api/risk/correlation/matrix
func (h *Handler) HandleCorrelationMatrix(w http.ResponseWriter, r *http.Request) {
	var req matrixRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Threshold == 0 {
		req.Threshold = 0.7
	}

	matrix, err := h.correlation.CalculateCorrelationMatrix(req.Series)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	utils.WriteData(w, http.StatusOK, MatrixResponse{
		Matrix:           matrix,
		HighlyCorrelated: matrix.HighlyCorrelated(req.Threshold),
	}, h.log)
}

// HandleListScenarios handles GET /api/risk/scenarios
func (h *Handler) HandleListScenarios(w http.ResponseWriter, r *http.Request) {
	utils.WriteData(w, http.StatusOK, h.stress.Scenarios(), h.log)
}

// HandleRunScenario handles POST /api/risk/stress/{scenario}
func (h *Handler) HandleRunScenario(w http.ResponseWriter, r *http.Request) {
	positions, ok := h.decodePositions(w, r)
	if !ok {
		return
	}

	result, err := h.stress.RunScenario(chi.URLParam(r, "scenario"), positions)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	utils.WriteData(w, http.StatusOK, result, h.log)
}

// HandleRunAllScenarios handles POST /api/risk/stress
func (h *Handler) HandleRunAllScenarios(w http.ResponseWriter, r *http.Request) {
	positions, ok := h.decodePositions(w, r)
	if !ok {
		return
	}
	utils.WriteData(w, http.StatusOK, h.stress.RunAllScenarios(positions), h.log)
}

// HandleMonteCarlo handles POST /api/risk/montecarlo
func (h *Handler) HandleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	var req monteCarloRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := risk.ValidatePositions(req.Positions); err != nil {
		h.writeErr(w, err)
		return
	}

	if req.Iterations == 0 {
		req.Iterations = h.opts.DefaultIterations
	}
	if req.Days == 0 {
		req.Days = h.opts.DefaultDays
	}
	var volatility float64
	switch {
	case req.Volatility != nil:
		volatility = *req.Volatility
	case len(req.Returns) >= 2:
		volatility = formulas.AnnualizedVolatility(req.Returns)
	default:
		utils.WriteError(w, http.StatusBadRequest, "volatility or at least 2 returns required", h.log)
		return
	}
	if h.opts.MaxIterations > 0 && req.Iterations > h.opts.MaxIterations {
		utils.WriteError(w, http.StatusBadRequest, "iterations exceeds the configured maximum", h.log)
		return
	}

	ctx := r.Context()
	if h.opts.MonteCarloTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.MonteCarloTimeout)
		defer cancel()
	}

	result, err := h.stress.RunMonteCarloSimulationContext(ctx, req.Positions, volatility, req.Iterations, req.Days)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	metrics.MonteCarloDuration.Observe(result.Elapsed.Seconds())

	utils.WriteData(w, http.StatusOK, result, h.log)
}

// HandlePositionAttribution handles POST /api/risk/attribution/positions
func (h *Handler) HandlePositionAttribution(w http.ResponseWriter, r *http.Request) {
	positions, ok := h.decodePositions(w, r)
	if !ok {
		return
	}
	utils.WriteData(w, http.StatusOK, h.attribution.AnalyzePositionRisk(positions), h.log)
}

// HandleSectorAttribution handles POST /api/risk/attribution/sectors
func (h *Handler) HandleSectorAttribution(w http.ResponseWriter, r *http.Request) {
	positions, ok := h.decodePositions(w, r)
	if !ok {
		return
	}
	utils.WriteData(w, http.StatusOK, h.attribution.AnalyzeSectorRisk(positions), h.log)
}

// HandleMarginalVaR handles POST /api/risk/attribution/marginal/{symbol}
func (h *Handler) HandleMarginalVaR(w http.ResponseWriter, r *http.Request) {
	positions, ok := h.decodePositions(w, r)
	if !ok {
		return
	}

	symbol := chi.URLParam(r, "symbol")
	utils.WriteData(w, http.StatusOK, MarginalVaRResponse{
		Symbol:      symbol,
		MarginalVaR: h.attribution.CalculateMarginalVaR(positions, symbol),
	}, h.log)
}

// HandleVaRBreach handles POST /api/risk/alerts/var-breach
func (h *Handler) HandleVaRBreach(w http.ResponseWriter, r *http.Request) {
	var req risk.VaRBreachInput
	if !h.decode(w, r, &req) {
		return
	}

	pred := h.alerts.PredictVaRBreach(req)
	if pred.BreachLikely && pred.DaysUntilBreach != nil {
		h.emit(&events.VaRBreachData{
			CurrentVaR:      req.CurrentVaR,
			VaRLimit:        req.VaRLimit,
			DaysUntilBreach: *pred.DaysUntilBreach,
			Confidence:      pred.Confidence,
			Recommendation:  pred.Recommendation,
		})
	}

	utils.WriteData(w, http.StatusOK, pred, h.log)
}

// HandleMarginCall handles POST /api/risk/alerts/margin-call
func (h *Handler) HandleMarginCall(w http.ResponseWriter, r *http.Request) {
	var req risk.MarginCallInput
	if !h.decode(w, r, &req) {
		return
	}

	pred := h.alerts.PredictMarginCall(req)
	if pred.RiskLevel == risk.MarginRiskHigh || pred.RiskLevel == risk.MarginRiskCritical {
		h.emit(&events.MarginCallRiskData{
			RiskLevel:          string(pred.RiskLevel),
			CurrentUtilization: req.CurrentUtilization,
			HoursUntilCall:     pred.HoursUntilCall,
			Recommendation:     pred.Recommendation,
		})
	}

	utils.WriteData(w, http.StatusOK, pred, h.log)
}

// HandleVolatilitySpike handles POST /api/risk/alerts/volatility-spike
func (h *Handler) HandleVolatilitySpike(w http.ResponseWriter, r *http.Request) {
	var req spikeRequest
	if !h.decode(w, r, &req) {
		return
	}

	spike := h.alerts.DetectVolatilitySpike(req.Series)
	if spike.SpikeDetected {
		h.emit(&events.VolatilitySpikeData{
			Current:        spike.Current,
			Threshold:      spike.Threshold,
			SpikeMagnitude: spike.SpikeMagnitude,
		})
	}

	utils.WriteData(w, http.StatusOK, spike, h.log)
}

// returnsFrom prefers explicit returns and otherwise derives simple returns from prices.
func returnsFrom(returns, prices []float64) []float64 {
	if len(returns) == 0 && len(prices) > 1 {
		return formulas.CalculateReturns(prices)
	}
	return returns
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := utils.DecodeJSON(r, v); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", h.log)
		return false
	}
	if err := risk.Validate(v); err != nil {
		h.writeErr(w, err)
		return false
	}
	return true
}

func (h *Handler) decodePositions(w http.ResponseWriter, r *http.Request) ([]risk.Position, bool) {
	var req positionsRequest
	if !h.decode(w, r, &req) {
		return nil, false
	}
	if err := risk.ValidatePositions(req.Positions); err != nil {
		h.writeErr(w, err)
		return nil, false
	}
	return req.Positions, true
}

func (h *Handler) emit(data events.EventData) {
	if h.emitter != nil {
		h.emitter.EmitTyped("risk", data)
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, risk.ErrValidation):
		utils.WriteError(w, http.StatusBadRequest, err.Error(), h.log)
	case errors.Is(err, risk.ErrUnknownScenario):
		utils.WriteError(w, http.StatusNotFound, err.Error(), h.log)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.log.Warn().Err(err).Msg("Risk calculation abandoned")
		utils.WriteError(w, http.StatusServiceUnavailable, "Calculation timed out", h.log)
	default:
		h.log.Error().Err(err).Msg("Risk calculation failed")
		utils.WriteError(w, http.StatusInternalServerError, "Internal error", h.log)
	}
}
