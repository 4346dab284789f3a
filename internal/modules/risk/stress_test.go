package risk

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPositions() []Position {
	return []Position{
		{Symbol: "AAPL", Value: decimal.NewFromInt(60000), Volatility: 0.25, Sector: "Technology"},
		{Symbol: "MSFT", Value: decimal.NewFromInt(40000), Volatility: 0.20, Sector: "Technology"},
	}
}

func newTestStressService(opts StressTestOptions) *StressTestService {
	return NewStressTestService(DefaultScenarioTable(), opts, zerolog.Nop())
}

func TestRunScenario(t *testing.T) {
	svc := newTestStressService(StressTestOptions{})

	result, err := svc.RunScenario("market_crash_20", testPositions())
	require.NoError(t, err)

	assert.True(t, result.Known)
	assert.Equal(t, -0.20, result.ShockFactor)
	assert.True(t, result.InitialValue.Equal(decimal.NewFromInt(100000)))
	assert.InDelta(t, 80000.0, result.StressedValue.InexactFloat64(), 1e-6)
	assert.InDelta(t, 20000.0, result.EstimatedLoss.InexactFloat64(), 1e-6)
	assert.InDelta(t, 20.0, result.LossPercentage, 1e-9)
	require.Len(t, result.Positions, 2)
	assert.InDelta(t, -12000.0, result.Positions[0].PnL.InexactFloat64(), 1e-6)
}

func TestRunScenarioBullRunIsNegativeLoss(t *testing.T) {
	svc := newTestStressService(StressTestOptions{})

	result, err := svc.RunScenario("bull_run_10", testPositions())
	require.NoError(t, err)
	assert.InDelta(t, -10000.0, result.EstimatedLoss.InexactFloat64(), 1e-6)
	assert.InDelta(t, -10.0, result.LossPercentage, 1e-9)
}

func TestRunScenarioUnknown(t *testing.T) {
	t.Run("lenient is a no-op shock", func(t *testing.T) {
		svc := newTestStressService(StressTestOptions{})
		result, err := svc.RunScenario("alien_invasion", testPositions())
		require.NoError(t, err)
		assert.False(t, result.Known)
		assert.Equal(t, 0.0, result.ShockFactor)
		assert.True(t, result.EstimatedLoss.IsZero())
		assert.True(t, result.StressedValue.Equal(result.InitialValue))
	})

	t.Run("strict fails", func(t *testing.T) {
		svc := newTestStressService(StressTestOptions{StrictScenarios: true})
		_, err := svc.RunScenario("alien_invasion", testPositions())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownScenario))
	})
}

func TestRunScenarioEmptyPortfolio(t *testing.T) {
	result, err := newTestStressService(StressTestOptions{}).RunScenario("covid_crash", nil)
	require.NoError(t, err)
	assert.True(t, result.InitialValue.IsZero())
	assert.Equal(t, 0.0, result.LossPercentage)
}

func TestRunAllScenarios(t *testing.T) {
	svc := NewStressTestService(
		DefaultScenarioTable().Merge(map[string]float64{"custom_crash": -0.60}),
		StressTestOptions{StrictScenarios: true},
		zerolog.Nop(),
	)

	results := svc.RunAllScenarios(testPositions())
	require.Len(t, results, len(DefaultScenarioShocks)+1)
	assert.Equal(t, "custom_crash", results[0].Scenario)
	assert.Equal(t, "financial_crisis_2008", results[1].Scenario)
	assert.Equal(t, "bull_run_20", results[len(results)-1].Scenario)

	for i := 1; i < len(results); i++ {
		assert.True(t, results[i-1].EstimatedLoss.GreaterThanOrEqual(results[i].EstimatedLoss))
	}
	assert.Contains(t, svc.Scenarios(), "custom_crash")
}

type constantSource float64

func (c constantSource) NormFloat64() float64 { return float64(c) }

func TestRunMonteCarloSimulation(t *testing.T) {
	svc := newTestStressService(StressTestOptions{Seed: 42})

	result, err := svc.RunMonteCarloSimulation(testPositions(), 0.20, 20000, 1)
	require.NoError(t, err)

	assert.Equal(t, 100000.0, result.PortfolioValue)
	assert.Equal(t, 20000, result.Iterations)
	assert.LessOrEqual(t, result.VaR95, result.WorstCase)
	assert.LessOrEqual(t, result.VaR95, result.VaR99)
	assert.GreaterOrEqual(t, result.VaR95, 0.0)
	assert.GreaterOrEqual(t, result.CVaR95, 0.0)

	dailyVol := 0.20 / math.Sqrt(252)
	assert.InEpsilon(t, 1.645*dailyVol*100000, result.VaR95, 0.1)
	assert.InDelta(t, 0.0, result.MeanReturn, 0.001)
	assert.Greater(t, result.BestCase, 0.0)
}

func TestRunMonteCarloSimulationSeeded(t *testing.T) {
	a, err := newTestStressService(StressTestOptions{Seed: 7}).RunMonteCarloSimulation(testPositions(), 0.3, 1000, 5)
	require.NoError(t, err)
	b, err := newTestStressService(StressTestOptions{Seed: 7}).RunMonteCarloSimulation(testPositions(), 0.3, 1000, 5)
	require.NoError(t, err)

	assert.Equal(t, a.VaR95, b.VaR95)
	assert.Equal(t, a.WorstCase, b.WorstCase)
}

func TestRunMonteCarloOrderingAcrossSeeds(t *testing.T) {
	for seed := uint64(1); seed <= 25; seed++ {
		svc := newTestStressService(StressTestOptions{Seed: seed})
		result, err := svc.RunMonteCarloSimulation(testPositions(), 0.4, 1+int(seed)*13, int(seed%5)+1)
		require.NoError(t, err)
		assert.LessOrEqual(t, result.VaR95, result.WorstCase, "seed %d", seed)
	}
}

func TestRunMonteCarloConstantSource(t *testing.T) {
	svc := newTestStressService(StressTestOptions{
		NewSource: func() NormalSource { return constantSource(-1) },
	})

	result, err := svc.RunMonteCarloSimulation(testPositions(), 0.20, 100, 1)
	require.NoError(t, err)

	dailyVol := 0.20 / math.Sqrt(252)
	expected := -(math.Exp(-0.5*dailyVol*dailyVol-dailyVol) - 1) * 100000
	assert.InDelta(t, expected, result.VaR95, 1e-6)
	assert.InDelta(t, expected, result.WorstCase, 1e-6)
	assert.InDelta(t, expected, result.CVaR95, 1e-6)
	assert.InDelta(t, math.Exp(-0.5*dailyVol*dailyVol-dailyVol)-1, result.MedianReturn, 1e-12)
}

func TestRunMonteCarloGainsOnlyTail(t *testing.T) {
	svc := newTestStressService(StressTestOptions{
		NewSource: func() NormalSource { return constantSource(3) },
	})

	result, err := svc.RunMonteCarloSimulation(testPositions(), 0.20, 50, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.VaR95)
	assert.Equal(t, 0.0, result.WorstCase)
	assert.Greater(t, result.BestCase, 0.0)
}

func TestRunMonteCarloZeroVolatility(t *testing.T) {
	result, err := newTestStressService(StressTestOptions{Seed: 1}).RunMonteCarloSimulation(testPositions(), 0, 500, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.VaR95)
	assert.Equal(t, 0.0, result.CVaR95)
	assert.Equal(t, 0.0, result.WorstCase)
}

func TestRunMonteCarloValidation(t *testing.T) {
	svc := newTestStressService(StressTestOptions{Seed: 1})

	tests := []struct {
		name       string
		volatility float64
		iterations int
		days       int
		field      string
	}{
		{"zero iterations", 0.2, 0, 1, "iterations"},
		{"zero days", 0.2, 10, 0, "days"},
		{"negative volatility", -0.1, 10, 1, "volatility"},
		{"nan volatility", math.NaN(), 10, 1, "volatility"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RunMonteCarloSimulation(testPositions(), tt.volatility, tt.iterations, tt.days)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRunMonteCarloContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestStressService(StressTestOptions{Seed: 1}).
		RunMonteCarloSimulationContext(ctx, testPositions(), 0.2, 10000, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBoxMuller(t *testing.T) {
	src := NewBoxMuller(99)
	n := 50000
	draws := make([]float64, n)
	sum := 0.0
	for i := range draws {
		draws[i] = src.NormFloat64()
		require.False(t, math.IsInf(draws[i], 0))
		sum += draws[i]
	}
	mean := sum / float64(n)

	sq := 0.0
	for _, d := range draws {
		sq += (d - mean) * (d - mean)
	}
	std := math.Sqrt(sq / float64(n-1))

	assert.InDelta(t, 0.0, mean, 0.02)
	assert.InDelta(t, 1.0, std, 0.02)
}
