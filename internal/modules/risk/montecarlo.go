package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/riskengine/pkg/formulas"
)

// ctxCheckInterval is how many iterations run between cancellation checks.
const ctxCheckInterval = 1024

// MonteCarloResult summarises a GBM simulation. Money figures are non-negative loss amounts
// in portfolio currency; MeanReturn is the average simulated return.
//
// CVaR95 averages the tail beyond the 95% cutoff. For a finite sample it is not
// guaranteed to be at least VaR95, but VaR95 never exceeds WorstCase.
type MonteCarloResult struct {
	PortfolioValue float64       `json:"portfolio_value"`
	Volatility     float64       `json:"volatility"`
	Iterations     int           `json:"iterations"`
	Days           int           `json:"days"`
	VaR95          float64       `json:"var_95"`
	CVaR95         float64       `json:"cvar_95"`
	VaR99          float64       `json:"var_99"`
	WorstCase      float64       `json:"worst_case"`
	BestCase       float64       `json:"best_case"`
	MeanReturn     float64       `json:"mean_return"`
	MedianReturn   float64       `json:"median_return"`
	Elapsed        time.Duration `json:"-"`
}

// RunMonteCarloSimulation simulates the portfolio return over days with Geometric Brownian Motion.
// volatility is annualised.
func (s *StressTestService) RunMonteCarloSimulation(positions []Position, volatility float64, iterations, days int) (MonteCarloResult, error) {
	return s.RunMonteCarloSimulationContext(context.Background(), positions, volatility, iterations, days)
}

// RunMonteCarloSimulationContext is RunMonteCarloSimulation with cancellation checked between iteration batches.
func (s *StressTestService) RunMonteCarloSimulationContext(ctx context.Context, positions []Position, volatility float64, iterations, days int) (MonteCarloResult, error) {
	if iterations < 1 {
		return MonteCarloResult{}, newValidationError("iterations", "must be at least 1, got %d", iterations)
	}
	if days < 1 {
		return MonteCarloResult{}, newValidationError("days", "must be at least 1, got %d", days)
	}
	if volatility < 0 || math.IsNaN(volatility) || math.IsInf(volatility, 0) {
		return MonteCarloResult{}, newValidationError("volatility", "must be a non-negative number, got %v", volatility)
	}

	start := time.Now()
	portfolioValue := math.Abs(TotalValue(positions).InexactFloat64())

	dailyVol := volatility / math.Sqrt(formulas.TradingDaysPerYear)
	drift := -0.5 * dailyVol * dailyVol * float64(days)
	diffusion := dailyVol * math.Sqrt(float64(days))

	source := s.newSource()
	returns := make([]float64, iterations)
	for i := range returns {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return MonteCarloResult{}, fmt.Errorf("monte carlo cancelled after %d iterations: %w", i, err)
			}
		}
		returns[i] = math.Exp(drift+diffusion*source.NormFloat64()) - 1
	}
	sort.Float64s(returns)

	idx95 := formulas.PercentileIndex(iterations, 0.05)
	idx99 := formulas.PercentileIndex(iterations, 0.01)

	result := MonteCarloResult{
		PortfolioValue: portfolioValue,
		Volatility:     volatility,
		Iterations:     iterations,
		Days:           days,
		VaR95:          loss(returns[idx95]) * portfolioValue,
		VaR99:          loss(returns[idx99]) * portfolioValue,
		WorstCase:      loss(returns[0]) * portfolioValue,
		BestCase:       returns[iterations-1] * portfolioValue,
		MeanReturn:     formulas.Mean(returns),
		MedianReturn:   formulas.Percentile(returns, 50),
	}

	if idx95 == 0 {
		result.CVaR95 = result.VaR95
	} else {
		tailLoss := 0.0
		for _, r := range returns[:idx95] {
			tailLoss += loss(r)
		}
		result.CVaR95 = tailLoss / float64(idx95) * portfolioValue
	}

	result.Elapsed = time.Since(start)

	s.log.Debug().
		Int("iterations", iterations).
		Int("days", days).
		Float64("var_95", result.VaR95).
		Dur("elapsed", result.Elapsed).
		Msg("Monte Carlo simulation complete")

	return result, nil
}

// loss maps a simulated return to the loss it represents; gains are zero loss.
func loss(r float64) float64 {
	return math.Max(0, -r)
}
