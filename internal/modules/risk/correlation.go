package risk

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/aristath/riskengine/pkg/formulas"
)

// CorrelationPair is an off-diagonal matrix entry.
type CorrelationPair struct {
	Symbol1     string  `json:"symbol1"`
	Symbol2     string  `json:"symbol2"`
	Correlation float64 `json:"correlation"`
}

// CorrelationMatrix is a symmetric Pearson correlation matrix with a unit diagonal.
// It is derived data; recompute it from the return series whenever they change.
type CorrelationMatrix struct {
	Symbols []string
	Values  [][]float64
	index   map[string]int
}

// Get returns the correlation between two symbols.
func (m *CorrelationMatrix) Get(a, b string) (float64, bool) {
	i, okA := m.index[a]
	j, okB := m.index[b]
	if !okA || !okB {
		return 0, false
	}
	return m.Values[i][j], true
}

// HighlyCorrelated lists each unordered pair whose absolute correlation is at least threshold.
func (m *CorrelationMatrix) HighlyCorrelated(threshold float64) []CorrelationPair {
	pairs := make([]CorrelationPair, 0)
	for i := 0; i < len(m.Symbols); i++ {
		for j := i + 1; j < len(m.Symbols); j++ {
			if math.Abs(m.Values[i][j]) >= threshold {
				pairs = append(pairs, CorrelationPair{
					Symbol1:     m.Symbols[i],
					Symbol2:     m.Symbols[j],
					Correlation: m.Values[i][j],
				})
			}
		}
	}
	return pairs
}

// MarshalJSON renders the matrix as {"A": {"A": 1, "B": 0.3}, ...}.
func (m *CorrelationMatrix) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]float64, len(m.Symbols))
	for i, a := range m.Symbols {
		row := make(map[string]float64, len(m.Symbols))
		for j, b := range m.Symbols {
			row[b] = m.Values[i][j]
		}
		out[a] = row
	}
	return json.Marshal(out)
}

// CorrelationCalculator computes Pearson correlations between return series.
type CorrelationCalculator struct{}

// NewCorrelationCalculator creates a correlation calculator.
func NewCorrelationCalculator() *CorrelationCalculator {
	return &CorrelationCalculator{}
}

// CalculateCorrelation returns the Pearson correlation of a and b in [-1, 1].
// The series must have equal length and at least two points. A series with zero
// variance has no defined correlation; 0 is returned instead of NaN.
func (c *CorrelationCalculator) CalculateCorrelation(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, newValidationError("series", "length mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) < 2 {
		return 0, newValidationError("series", "need at least 2 data points, got %d", len(a))
	}

	meanA := formulas.Mean(a)
	meanB := formulas.Mean(b)

	var sumAB, sumAA, sumBB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		sumAB += da * db
		sumAA += da * da
		sumBB += db * db
	}

	if sumAA == 0 || sumBB == 0 {
		return 0.0, nil
	}

	r := sumAB / math.Sqrt(sumAA*sumBB)
	return math.Max(-1.0, math.Min(1.0, r)), nil
}

// CalculateCorrelationMatrix computes every unordered pair once and mirrors it.
// Symbols are ordered lexically; the diagonal is 1 by definition.
func (c *CorrelationCalculator) CalculateCorrelationMatrix(series map[string][]float64) (*CorrelationMatrix, error) {
	symbols := make([]string, 0, len(series))
	for symbol := range series {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	n := len(symbols)
	m := &CorrelationMatrix{
		Symbols: symbols,
		Values:  make([][]float64, n),
		index:   make(map[string]int, n),
	}
	for i, symbol := range symbols {
		m.Values[i] = make([]float64, n)
		m.Values[i][i] = 1.0
		m.index[symbol] = i
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r, err := c.CalculateCorrelation(series[symbols[i]], series[symbols[j]])
			if err != nil {
				return nil, &ValidationError{
					Field:  symbols[i] + "/" + symbols[j],
					Reason: err.(*ValidationError).Reason,
				}
			}
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}

	return m, nil
}
