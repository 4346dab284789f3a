package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aristath/riskengine/internal/events"
	"github.com/aristath/riskengine/internal/modules/risk"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const positionsBody = `{"positions":[
	{"symbol":"AAPL","value":"60000","volatility":0.25,"sector":"Technology"},
	{"symbol":"MSFT","value":"40000","volatility":0.20,"sector":"Technology"},
	{"symbol":"XOM","value":"20000","volatility":0.30}
]}`

type recorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recorder) record(e *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type testEnv struct {
	router *chi.Mux
	bus    *events.Bus
}

func setup(t *testing.T, stressOpts risk.StressTestOptions, opts Options) testEnv {
	t.Helper()
	log := zerolog.Nop()
	bus := events.NewBus(log)

	handler := NewHandler(
		risk.NewVaRCalculator(risk.DefaultZScoreTable()),
		risk.NewCorrelationCalculator(),
		risk.NewStressTestService(risk.DefaultScenarioTable(), stressOpts, log),
		risk.NewRiskAttributionAnalyzer(log),
		risk.NewPredictiveRiskAlerts(risk.DefaultPredictiveOptions(), log),
		bus,
		opts,
		log,
	)

	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)
	return testEnv{router: router, bus: bus}
}

func defaultSetup(t *testing.T) testEnv {
	return setup(t, risk.StressTestOptions{Seed: 42}, DefaultOptions())
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var envelope struct {
		Data     json.RawMessage        `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Contains(t, envelope.Metadata, "timestamp")
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func TestHistoricalVaRAndCVaR(t *testing.T) {
	env := defaultSetup(t)
	body := `{"returns":[-0.05,-0.03,-0.01,0.01,0.02,0.03,0.04,0.05,0.06,0.07],"confidence_level":0.90,"portfolio_value":100000}`

	w := post(env.router, "/api/risk/var/historical", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp VaRResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "historical", resp.Method)
	assert.InDelta(t, 3000.0, resp.Value, 1e-6)
	assert.Equal(t, 10, resp.Observations)

	w = post(env.router, "/api/risk/cvar/historical", body)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &resp)
	assert.InDelta(t, 4000.0, resp.Value, 1e-6)
}

func TestHistoricalVaRFromPrices(t *testing.T) {
	env := defaultSetup(t)

	w := post(env.router, "/api/risk/var/historical",
		`{"prices":[100,90,99,99],"confidence_level":0.95,"portfolio_value":1000}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp VaRResponse
	decodeData(t, w, &resp)
	assert.Equal(t, 3, resp.Observations)
	assert.InDelta(t, 100.0, resp.Value, 1e-6)
}

func TestParametricVaR(t *testing.T) {
	env := defaultSetup(t)

	w := post(env.router, "/api/risk/var/parametric",
		`{"mean":0.001,"std_dev":0.02,"confidence_level":0.95,"portfolio_value":1000000}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp VaRResponse
	decodeData(t, w, &resp)
	assert.InDelta(t, 31900.0, resp.Value, 1e-6)

	w = post(env.router, "/api/risk/var/parametric", `{"mean":0.001,"confidence_level":0.95,"portfolio_value":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVaRRejectsConfidenceOutOfRange(t *testing.T) {
	env := defaultSetup(t)
	w := post(env.router, "/api/risk/var/historical", `{"returns":[0.01],"confidence_level":1.5,"portfolio_value":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(env.router, "/api/risk/var/historical", `{"returns":[0.01],"confidence":0.95}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown fields are rejected")
}

func TestCorrelationEndpoints(t *testing.T) {
	env := defaultSetup(t)

	w := post(env.router, "/api/risk/correlation", `{"series_a":[1,2,3,4],"series_b":[2,4,6,8]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var corr map[string]float64
	decodeData(t, w, &corr)
	assert.InDelta(t, 1.0, corr["correlation"], 1e-9)

	w = post(env.router, "/api/risk/correlation", `{"series_a":[1,2,3],"series_b":[1,2]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(env.router, "/api/risk/correlation/matrix",
		`{"series":{"A":[1,2,3,4],"B":[2,4,6,8],"C":[4,3,2,1]},"threshold":0.9}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var matrix struct {
		Matrix           map[string]map[string]float64 `json:"matrix"`
		HighlyCorrelated []risk.CorrelationPair         `json:"highly_correlated"`
	}
	decodeData(t, w, &matrix)
	assert.InDelta(t, -1.0, matrix.Matrix["A"]["C"], 1e-9)
	assert.InDelta(t, 1.0, matrix.Matrix["B"]["B"], 1e-9)
	assert.Len(t, matrix.HighlyCorrelated, 3)
}

func TestStressEndpoints(t *testing.T) {
	env := defaultSetup(t)

	w := post(env.router, "/api/risk/stress/market_crash_20", positionsBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result risk.ScenarioResult
	decodeData(t, w, &result)
	assert.True(t, result.Known)
	assert.True(t, result.EstimatedLoss.Equal(decimal.NewFromInt(24000)), result.EstimatedLoss.String())
	assert.Len(t, result.Positions, 3)

	w = post(env.router, "/api/risk/stress/alien_invasion", positionsBody)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &result)
	assert.False(t, result.Known)
	assert.True(t, result.EstimatedLoss.IsZero())

	w = post(env.router, "/api/risk/stress", positionsBody)
	require.Equal(t, http.StatusOK, w.Code)
	var all []risk.ScenarioResult
	decodeData(t, w, &all)
	require.Len(t, all, len(risk.DefaultScenarioShocks))
	assert.Equal(t, "financial_crisis_2008", all[0].Scenario)

	req := httptest.NewRequest(http.MethodGet, "/api/risk/scenarios", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	var names []string
	decodeData(t, rec, &names)
	assert.Contains(t, names, "covid_crash")
}

func TestStrictScenarioNotFound(t *testing.T) {
	env := setup(t, risk.StressTestOptions{StrictScenarios: true}, DefaultOptions())
	w := post(env.router, "/api/risk/stress/alien_invasion", positionsBody)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStressRejectsInvalidPositions(t *testing.T) {
	env := defaultSetup(t)
	w := post(env.router, "/api/risk/stress", `{"positions":[{"value":"100","volatility":0.2}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "positions[0].Symbol")
}

func TestMonteCarlo(t *testing.T) {
	env := setup(t, risk.StressTestOptions{Seed: 7}, Options{DefaultIterations: 500, DefaultDays: 1, MaxIterations: 5000})

	w := post(env.router, "/api/risk/montecarlo",
		`{"positions":[{"symbol":"AAPL","value":"100000","volatility":0.25}],"volatility":0.25}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result risk.MonteCarloResult
	decodeData(t, w, &result)
	assert.Equal(t, 500, result.Iterations)
	assert.Equal(t, 1, result.Days)
	assert.GreaterOrEqual(t, result.VaR95, 0.0)
	assert.LessOrEqual(t, result.VaR95, result.WorstCase)
	assert.LessOrEqual(t, result.VaR95, result.VaR99)

	w = post(env.router, "/api/risk/montecarlo", `{"positions":[],"volatility":0.2,"iterations":10000}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(env.router, "/api/risk/montecarlo", `{"positions":[],"volatility":-0.2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(env.router, "/api/risk/montecarlo", `{"positions":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "volatility or returns required")
}

func TestMonteCarloEstimatesVolatilityFromReturns(t *testing.T) {
	env := setup(t, risk.StressTestOptions{Seed: 11}, Options{DefaultIterations: 200, DefaultDays: 1, MaxIterations: 1000})

	w := post(env.router, "/api/risk/montecarlo",
		`{"positions":[{"symbol":"SPY","value":"50000","volatility":0.2}],"returns":[0.01,-0.01,0.01,-0.01]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result risk.MonteCarloResult
	decodeData(t, w, &result)
	assert.Greater(t, result.Volatility, 0.0)
	assert.Equal(t, 200, result.Iterations)
}

func TestAttributionEndpoints(t *testing.T) {
	env := defaultSetup(t)

	w := post(env.router, "/api/risk/attribution/positions", positionsBody)
	require.Equal(t, http.StatusOK, w.Code)
	var report risk.PositionRiskReport
	decodeData(t, w, &report)
	assert.InDelta(t, 29000.0, report.TotalPortfolioRisk, 1e-6)
	assert.Equal(t, "AAPL", report.TopRiskContributor)

	w = post(env.router, "/api/risk/attribution/sectors", positionsBody)
	require.Equal(t, http.StatusOK, w.Code)
	var sectors []risk.SectorContribution
	decodeData(t, w, &sectors)
	require.Len(t, sectors, 2)
	assert.Equal(t, "Technology", sectors[0].Sector)
	assert.Equal(t, risk.UnknownSector, sectors[1].Sector)

	w = post(env.router, "/api/risk/attribution/marginal/TSLA", positionsBody)
	require.Equal(t, http.StatusOK, w.Code)
	var marginal MarginalVaRResponse
	decodeData(t, w, &marginal)
	assert.Equal(t, "TSLA", marginal.Symbol)
	assert.Zero(t, marginal.MarginalVaR)
}

func TestAlertsEmitEvents(t *testing.T) {
	env := defaultSetup(t)
	breaches, margin, spikes := &recorder{}, &recorder{}, &recorder{}
	env.bus.Subscribe(events.VaRBreach, breaches.record)
	env.bus.Subscribe(events.MarginCallRisk, margin.record)
	env.bus.Subscribe(events.VolatilitySpike, spikes.record)

	w := post(env.router, "/api/risk/alerts/var-breach",
		`{"current_var":90,"var_limit":100,"var_trend":[80,85,90],"volatility_trend":"STABLE"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var breach risk.VaRBreachPrediction
	decodeData(t, w, &breach)
	assert.True(t, breach.BreachLikely)
	require.NotNil(t, breach.DaysUntilBreach)
	assert.Equal(t, 2, *breach.DaysUntilBreach)
	assert.Equal(t, 1, breaches.count())

	w = post(env.router, "/api/risk/alerts/margin-call", `{"current_utilization":96,"utilization_trend":[90,93,96]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var call risk.MarginCallPrediction
	decodeData(t, w, &call)
	assert.Equal(t, risk.MarginRiskCritical, call.RiskLevel)
	assert.Equal(t, 1, margin.count())

	w = post(env.router, "/api/risk/alerts/volatility-spike", `{"series":[0.10,0.11,0.10,0.11,0.30]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var spike risk.VolatilitySpike
	decodeData(t, w, &spike)
	assert.True(t, spike.SpikeDetected)
	assert.Equal(t, 1, spikes.count())
}

func TestAlertsQuietWhenNothingToReport(t *testing.T) {
	env := defaultSetup(t)
	all := &recorder{}
	for _, et := range []events.EventType{events.VaRBreach, events.MarginCallRisk, events.VolatilitySpike} {
		env.bus.Subscribe(et, all.record)
	}

	post(env.router, "/api/risk/alerts/var-breach", `{"current_var":50,"var_limit":100,"var_trend":[60,55,50]}`)
	post(env.router, "/api/risk/alerts/margin-call", `{"current_utilization":40,"utilization_trend":[40,40,40]}`)
	post(env.router, "/api/risk/alerts/volatility-spike", `{"series":[0.1,0.1]}`)

	assert.Zero(t, all.count())
}

func TestAlertsExtremeTrendsStayQuiet(t *testing.T) {
	env := defaultSetup(t)
	all := &recorder{}
	for _, et := range []events.EventType{events.VaRBreach, events.MarginCallRisk} {
		env.bus.Subscribe(et, all.record)
	}

	w := post(env.router, "/api/risk/alerts/margin-call", `{"current_utilization":50,"utilization_trend":[50,51],"interval_hours":1e308}`)
	require.Equal(t, http.StatusOK, w.Code)
	var call risk.MarginCallPrediction
	decodeData(t, w, &call)
	assert.Equal(t, risk.MarginRiskLow, call.RiskLevel)
	assert.Nil(t, call.HoursUntilCall)

	w = post(env.router, "/api/risk/alerts/var-breach", `{"current_var":10000,"var_limit":50000,"var_trend":[0,1e-16]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var breach risk.VaRBreachPrediction
	decodeData(t, w, &breach)
	assert.False(t, breach.BreachLikely)
	assert.Nil(t, breach.DaysUntilBreach)

	assert.Zero(t, all.count())
}

func TestVaRBreachRequiresPositiveLimit(t *testing.T) {
	env := defaultSetup(t)
	w := post(env.router, "/api/risk/alerts/var-breach", `{"current_var":50,"var_limit":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
