package risk

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StressTestOptions tunes a StressTestService.
type StressTestOptions struct {
	// StrictScenarios makes RunScenario fail with ErrUnknownScenario for unregistered names
	// instead of applying a zero shock.
	StrictScenarios bool
	// Seed fixes the Monte Carlo random stream. Zero seeds every run from the clock.
	Seed uint64
	// NewSource overrides the normal generator; it is called once per simulation run.
	NewSource func() NormalSource
}

// PositionImpact is one position's share of a stress scenario.
type PositionImpact struct {
	Symbol        string          `json:"symbol"`
	InitialValue  decimal.Decimal `json:"initial_value"`
	StressedValue decimal.Decimal `json:"stressed_value"`
	PnL           decimal.Decimal `json:"pnl"`
}

// ScenarioResult is the outcome of applying one scenario shock.
type ScenarioResult struct {
	Scenario       string           `json:"scenario"`
	ShockFactor    float64          `json:"shock_factor"`
	Known          bool             `json:"known"`
	InitialValue   decimal.Decimal  `json:"initial_value"`
	StressedValue  decimal.Decimal  `json:"stressed_value"`
	EstimatedLoss  decimal.Decimal  `json:"estimated_loss"`
	LossPercentage float64          `json:"loss_percentage"`
	Positions      []PositionImpact `json:"positions"`
}

// StressTestService applies named price shocks and runs Monte Carlo simulations.
//
// Shocks hit every position uniformly (beta = 1). That is a known limitation of the
// scenario model, not something to correct per instrument.
type StressTestService struct {
	scenarios ScenarioTable
	opts      StressTestOptions
	log       zerolog.Logger
}

// NewStressTestService creates a stress-test service over the given scenario table.
func NewStressTestService(scenarios ScenarioTable, opts StressTestOptions, log zerolog.Logger) *StressTestService {
	return &StressTestService{
		scenarios: scenarios,
		opts:      opts,
		log:       log.With().Str("component", "stress_test").Logger(),
	}
}

// Scenarios lists the registered scenario names.
func (s *StressTestService) Scenarios() []string {
	return s.scenarios.Names()
}

// RunScenario applies the named shock to every position.
// An unknown name is a no-op shock unless the service is strict.
func (s *StressTestService) RunScenario(name string, positions []Position) (ScenarioResult, error) {
	shock, known := s.scenarios.Shock(name)
	if !known {
		if s.opts.StrictScenarios {
			return ScenarioResult{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
		}
		s.log.Warn().Str("scenario", name).Msg("Unknown stress scenario, applying zero shock")
	}

	factor := decimal.NewFromFloat(1 + shock)
	result := ScenarioResult{
		Scenario:      name,
		ShockFactor:   shock,
		Known:         known,
		InitialValue:  decimal.Zero,
		StressedValue: decimal.Zero,
		Positions:     make([]PositionImpact, 0, len(positions)),
	}

	for _, p := range positions {
		stressed := p.Value.Mul(factor)
		result.InitialValue = result.InitialValue.Add(p.Value)
		result.StressedValue = result.StressedValue.Add(stressed)
		result.Positions = append(result.Positions, PositionImpact{
			Symbol:        p.Symbol,
			InitialValue:  p.Value,
			StressedValue: stressed,
			PnL:           stressed.Sub(p.Value),
		})
	}

	result.EstimatedLoss = result.InitialValue.Sub(result.StressedValue)
	if !result.InitialValue.IsZero() {
		result.LossPercentage = result.EstimatedLoss.Div(result.InitialValue).InexactFloat64() * 100
	}

	s.log.Debug().
		Str("scenario", name).
		Float64("shock", shock).
		Str("loss", result.EstimatedLoss.StringFixed(2)).
		Msg("Stress scenario evaluated")

	return result, nil
}

// RunAllScenarios evaluates every registered scenario, worst loss first.
func (s *StressTestService) RunAllScenarios(positions []Position) []ScenarioResult {
	names := s.scenarios.Names()
	results := make([]ScenarioResult, 0, len(names))
	for _, name := range names {
		// registered names never fail, even in strict mode
		result, _ := s.RunScenario(name, positions)
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		cmp := results[i].EstimatedLoss.Cmp(results[j].EstimatedLoss)
		if cmp != 0 {
			return cmp > 0
		}
		return results[i].Scenario < results[j].Scenario
	})
	return results
}

func (s *StressTestService) newSource() NormalSource {
	if s.opts.NewSource != nil {
		return s.opts.NewSource()
	}
	if s.opts.Seed != 0 {
		return NewBoxMuller(s.opts.Seed)
	}
	return NewBoxMuller(timeSeed())
}
