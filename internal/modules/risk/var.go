package risk

import (
	"math"

	"github.com/aristath/riskengine/pkg/formulas"
)

// VaRCalculator computes historical-simulation and parametric (variance-covariance) Value-at-Risk.
// VaR is always reported as a non-negative loss amount in portfolio currency.
type VaRCalculator struct {
	zScores ZScoreTable
}

// NewVaRCalculator creates a calculator backed by the given z-score table.
func NewVaRCalculator(zScores ZScoreTable) *VaRCalculator {
	return &VaRCalculator{zScores: zScores}
}

// ZScore exposes the table lookup used by the parametric method.
func (c *VaRCalculator) ZScore(confidenceLevel float64) float64 {
	return c.zScores.ZScore(confidenceLevel)
}

// CalculateHistoricalVaR sorts a copy of returns ascending and reads the loss at
// floor((1-confidence)*n), clamped into the series. An empty series yields 0.
func (c *VaRCalculator) CalculateHistoricalVaR(returns []float64, confidenceLevel, portfolioValue float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	sorted := formulas.SortedCopy(returns)
	idx := formulas.PercentileIndex(len(sorted), 1-confidenceLevel)

	return math.Abs(portfolioValue) * math.Abs(sorted[idx])
}

// CalculateHistoricalCVaR returns the Expected Shortfall: the average of the sorted returns
// up to and including the historical VaR cutoff, as a non-negative loss amount.
func (c *VaRCalculator) CalculateHistoricalCVaR(returns []float64, confidenceLevel, portfolioValue float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}

	sorted := formulas.SortedCopy(returns)
	idx := formulas.PercentileIndex(len(sorted), 1-confidenceLevel)
	tailMean := formulas.Mean(sorted[:idx+1])

	return math.Abs(portfolioValue) * math.Max(0, -tailMean)
}

// CalculateParametricVaR assumes normally distributed returns:
// VaR = value * max(0, z(confidence)*stdDev - mean).
func (c *VaRCalculator) CalculateParametricVaR(mean, stdDev, confidenceLevel, portfolioValue float64) float64 {
	z := c.zScores.ZScore(confidenceLevel)
	loss := z*math.Abs(stdDev) - mean
	if loss <= 0 || math.IsNaN(loss) {
		return 0.0
	}
	return math.Abs(portfolioValue) * loss
}

// CalculateParametricVaRFromReturns estimates mean and sample standard deviation from
// the series and delegates to CalculateParametricVaR.
func (c *VaRCalculator) CalculateParametricVaRFromReturns(returns []float64, confidenceLevel, portfolioValue float64) float64 {
	if len(returns) < 2 {
		return 0.0
	}
	return c.CalculateParametricVaR(formulas.Mean(returns), formulas.StdDev(returns), confidenceLevel, portfolioValue)
}
