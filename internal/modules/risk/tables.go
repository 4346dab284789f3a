package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

const tableEpsilon = 1e-9

// DefaultZScores maps one-sided confidence levels to standard-normal z-scores.
var DefaultZScores = map[float64]float64{
	0.90: 1.282,
	0.95: 1.645,
	0.99: 2.326,
}

// DefaultScenarioShocks maps stress scenario names to the uniform price shock they apply.
var DefaultScenarioShocks = map[string]float64{
	"market_crash_10":       -0.10,
	"market_crash_20":       -0.20,
	"market_crash_30":       -0.30,
	"covid_crash":           -0.30,
	"financial_crisis_2008": -0.50,
	"dot_com_crash":         -0.45,
	"flash_crash":           -0.10,
	"bull_run_10":           0.10,
	"bull_run_20":           0.20,
}

// ZScoreTable is an immutable confidence → z-score lookup.
//
// A confidence level resolves to the largest configured level that does not exceed it,
// so 0.97 uses the 0.95 score and anything below the smallest level resolves to 0.
// With inverse-normal refinement enabled, levels not configured exactly are computed
// from the standard normal quantile function instead.
type ZScoreTable struct {
	levels        []float64
	scores        map[float64]float64
	inverseNormal bool
}

// NewZScoreTable copies scores into a new table.
func NewZScoreTable(scores map[float64]float64) ZScoreTable {
	t := ZScoreTable{
		levels: make([]float64, 0, len(scores)),
		scores: make(map[float64]float64, len(scores)),
	}
	for level, z := range scores {
		t.levels = append(t.levels, level)
		t.scores[level] = z
	}
	sort.Float64s(t.levels)
	return t
}

// DefaultZScoreTable returns the 0.90/0.95/0.99 table.
func DefaultZScoreTable() ZScoreTable {
	return NewZScoreTable(DefaultZScores)
}

// WithInverseNormal returns a copy of the table that falls back to the exact normal quantile.
func (t ZScoreTable) WithInverseNormal() ZScoreTable {
	t.inverseNormal = true
	return t
}

// Merge returns a new table with overrides applied on top of t.
func (t ZScoreTable) Merge(overrides map[float64]float64) ZScoreTable {
	merged := make(map[float64]float64, len(t.scores)+len(overrides))
	for level, z := range t.scores {
		merged[level] = z
	}
	for level, z := range overrides {
		merged[level] = z
	}
	out := NewZScoreTable(merged)
	out.inverseNormal = t.inverseNormal
	return out
}

// ZScore resolves the z-score for a confidence level.
func (t ZScoreTable) ZScore(confidence float64) float64 {
	for _, level := range t.levels {
		if math.Abs(level-confidence) < tableEpsilon {
			return t.scores[level]
		}
	}

	if t.inverseNormal && confidence > 0 && confidence < 1 {
		return distuv.UnitNormal.Quantile(confidence)
	}

	z := 0.0
	for _, level := range t.levels {
		if level > confidence+tableEpsilon {
			break
		}
		z = t.scores[level]
	}
	return z
}

// ScenarioTable is an immutable scenario name → shock factor lookup.
type ScenarioTable struct {
	shocks map[string]float64
}

// NewScenarioTable copies shocks into a new table.
func NewScenarioTable(shocks map[string]float64) ScenarioTable {
	t := ScenarioTable{shocks: make(map[string]float64, len(shocks))}
	for name, shock := range shocks {
		t.shocks[name] = shock
	}
	return t
}

// DefaultScenarioTable returns the built-in historical and hypothetical scenarios.
func DefaultScenarioTable() ScenarioTable {
	return NewScenarioTable(DefaultScenarioShocks)
}

// Merge returns a new table with overrides applied on top of t.
func (t ScenarioTable) Merge(overrides map[string]float64) ScenarioTable {
	merged := make(map[string]float64, len(t.shocks)+len(overrides))
	for name, shock := range t.shocks {
		merged[name] = shock
	}
	for name, shock := range overrides {
		merged[name] = shock
	}
	return ScenarioTable{shocks: merged}
}

// Shock returns the shock factor for name and whether it is registered.
func (t ScenarioTable) Shock(name string) (float64, bool) {
	shock, ok := t.shocks[name]
	return shock, ok
}

// Names returns the registered scenario names in lexical order.
func (t ScenarioTable) Names() []string {
	names := make([]string, 0, len(t.shocks))
	for name := range t.shocks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
