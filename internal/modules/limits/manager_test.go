package limits

import (
	"errors"
	"sync"
	"testing"

	"github.com/aristath/riskengine/internal/events"
	"github.com/aristath/riskengine/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu    sync.Mutex
	types []events.EventType
}

func (r *recordingEmitter) EmitTyped(module string, data events.EventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, data.EventType())
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCheckLimitsViolation(t *testing.T) {
	emitter := &recordingEmitter{}
	m := NewManager(emitter, zerolog.Nop())

	require.NoError(t, m.SetLimit(LevelPortfolio, GlobalEntity, "var_95", d(50000)))

	result := m.CheckLimits(LevelPortfolio, GlobalEntity, map[string]decimal.Decimal{"var_95": d(60000)})
	assert.False(t, result.Approved)
	require.Len(t, result.Violations, 1)
	v := result.Violations[0]
	assert.Equal(t, "var_95", v.Metric)
	assert.True(t, v.Limit.Equal(d(50000)))
	assert.True(t, v.Current.Equal(d(60000)))
	assert.Equal(t, LevelPortfolio, v.Level)
	assert.Equal(t, GlobalEntity, v.EntityID)

	assert.Contains(t, emitter.types, events.LimitUpdated)
	assert.Contains(t, emitter.types, events.LimitViolated)
}

func TestCheckLimitsApproved(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	require.NoError(t, m.SetLimit(LevelStrategy, "momentum", "var_95", d(10000)))
	require.NoError(t, m.SetLimit(LevelStrategy, "momentum", "gross_exposure", d(500000)))

	tests := []struct {
		name    string
		metrics map[string]decimal.Decimal
	}{
		{"at the limit", map[string]decimal.Decimal{"var_95": d(10000)}},
		{"below", map[string]decimal.Decimal{"var_95": d(9000), "gross_exposure": d(1)}},
		{"unlimited metric", map[string]decimal.Decimal{"leverage": d(99)}},
		{"empty snapshot", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := m.CheckLimits(LevelStrategy, "momentum", tt.metrics)
			assert.True(t, result.Approved)
			assert.Empty(t, result.Violations)
		})
	}

	other := m.CheckLimits(LevelStrategy, "meanrev", map[string]decimal.Decimal{"var_95": d(1e9)})
	assert.True(t, other.Approved, "limits are scoped to their entity")
}

func TestCheckLimitsDoesNotMutateRegistry(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	require.NoError(t, m.SetLimit(LevelInstrument, "AAPL", "position_value", d(100)))
	before := m.Limits()

	m.CheckLimits(LevelInstrument, "AAPL", map[string]decimal.Decimal{"position_value": d(200)})
	assert.Equal(t, before, m.Limits())
}

func TestSetLimitOverwrites(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	require.NoError(t, m.SetLimit(LevelPortfolio, GlobalEntity, "var_95", d(50000)))
	require.NoError(t, m.SetLimit(LevelPortfolio, GlobalEntity, "var_95", d(70000)))

	limits := m.Limits()
	require.Len(t, limits, 1)
	assert.True(t, limits[0].Threshold.Equal(d(70000)))

	result := m.CheckLimits(LevelPortfolio, GlobalEntity, map[string]decimal.Decimal{"var_95": d(60000)})
	assert.True(t, result.Approved)
}

func TestSetLimitValidation(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())

	assert.True(t, errors.Is(m.SetLimit("DESK", "x", "var_95", d(1)), ErrInvalidLevel))
	assert.True(t, errors.Is(m.SetLimit(LevelStrategy, "", "var_95", d(1)), ErrInvalidLimit))
	assert.True(t, errors.Is(m.SetLimit(LevelStrategy, "s", "", d(1)), ErrInvalidLimit))
	assert.Empty(t, m.Limits())
}

func TestLevelsAreCaseInsensitive(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	require.NoError(t, m.SetLimit("portfolio", GlobalEntity, "var_95", d(50000)))
	require.NoError(t, m.SetLimit("Strategy", "momentum", "var_95", d(10000)))

	limits := m.Limits()
	require.Len(t, limits, 2)
	assert.Equal(t, LevelPortfolio, limits[0].Level)
	assert.Equal(t, LevelStrategy, limits[1].Level)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RegisteredLimits))

	result := m.CheckLimits("strategy", "momentum", map[string]decimal.Decimal{"var_95": d(12000)})
	assert.False(t, result.Approved)
	assert.Len(t, m.LimitsFor("portfolio", GlobalEntity), 1)

	require.NoError(t, m.RemoveLimit("portfolio", GlobalEntity, "var_95"))
	assert.Len(t, m.Limits(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RegisteredLimits))
}

func TestRemoveLimit(t *testing.T) {
	emitter := &recordingEmitter{}
	m := NewManager(emitter, zerolog.Nop())
	require.NoError(t, m.SetLimit(LevelPortfolio, GlobalEntity, "var_95", d(1)))

	require.NoError(t, m.RemoveLimit(LevelPortfolio, GlobalEntity, "var_95"))
	assert.Empty(t, m.Limits())
	assert.Contains(t, emitter.types, events.LimitRemoved)

	err := m.RemoveLimit(LevelPortfolio, GlobalEntity, "var_95")
	assert.True(t, errors.Is(err, ErrLimitNotFound))
}

func TestGetHierarchicalLimits(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	require.NoError(t, m.SetLimit(LevelStrategy, "momentum", "var_95", d(10000)))
	require.NoError(t, m.SetLimit(LevelStrategy, "other", "var_95", d(1)))
	require.NoError(t, m.SetLimit(LevelPortfolio, GlobalEntity, "var_95", d(50000)))
	require.NoError(t, m.SetLimit(LevelPortfolio, "desk-a", "var_95", d(2)))

	h := m.GetHierarchicalLimits("momentum")
	require.Len(t, h.Strategy, 1)
	require.Len(t, h.Portfolio, 1)
	assert.True(t, h.Strategy["var_95"].Equal(d(10000)))
	assert.True(t, h.Portfolio["var_95"].Equal(d(50000)))

	empty := m.GetHierarchicalLimits("unknown")
	assert.Empty(t, empty.Strategy)
	assert.Len(t, empty.Portfolio, 1)
}

func TestCheckPreTrade(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	require.NoError(t, m.SetLimit(LevelStrategy, "momentum", "var_95", d(10000)))
	require.NoError(t, m.SetLimit(LevelPortfolio, GlobalEntity, "var_95", d(50000)))
	require.NoError(t, m.SetLimit(LevelPortfolio, GlobalEntity, "leverage", d(2)))

	result := m.CheckPreTrade("momentum", map[string]decimal.Decimal{
		"var_95":   d(60000),
		"leverage": d(1),
	})
	assert.False(t, result.Approved)
	require.Len(t, result.Violations, 2)
	assert.Equal(t, LevelStrategy, result.Violations[0].Level)
	assert.Equal(t, LevelPortfolio, result.Violations[1].Level)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("portfolio")
	require.NoError(t, err)
	assert.Equal(t, LevelPortfolio, level)

	level, err = ParseLevel(" Instrument ")
	require.NoError(t, err)
	assert.Equal(t, LevelInstrument, level)

	_, err = ParseLevel("desk")
	assert.True(t, errors.Is(err, ErrInvalidLevel))
}

func TestManagerConcurrentAccess(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	require.NoError(t, m.SetLimit(LevelPortfolio, GlobalEntity, "var_95", d(50000)))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		threshold := d(int64(40000 + i))
		go func() {
			defer wg.Done()
			_ = m.SetLimit(LevelPortfolio, GlobalEntity, "var_95", threshold)
		}()
		go func() {
			defer wg.Done()
			result := m.CheckLimits(LevelPortfolio, GlobalEntity, map[string]decimal.Decimal{"var_95": d(100000)})
			assert.False(t, result.Approved)
			assert.Len(t, result.Violations, 1)
		}()
		go func() {
			defer wg.Done()
			h := m.GetHierarchicalLimits("any")
			assert.Len(t, h.Portfolio, 1)
		}()
	}
	wg.Wait()

	assert.Len(t, m.Limits(), 1)
}
