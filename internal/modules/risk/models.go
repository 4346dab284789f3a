// Package risk implements the quantitative risk calculators: Value-at-Risk, correlation,
// stress testing and Monte Carlo simulation, risk attribution and predictive alerts.
//
// Every calculator is a pure function of its inputs. Callers pass snapshots; nothing here
// retains or mutates positions or return series.
package risk

import (
	"github.com/shopspring/decimal"
)

// ReturnSeries is an ordered sequence of decimal returns (-0.02 for a 2% loss).
// Calculators only read it.
type ReturnSeries []float64

// Position is a read-only snapshot of a portfolio holding supplied by the portfolio collaborator.
type Position struct {
	Symbol     string          `json:"symbol" validate:"required"`
	Value      decimal.Decimal `json:"value"`
	Volatility float64         `json:"volatility" validate:"gte=0"`
	Sector     string          `json:"sector,omitempty"`
}

// UnknownSector is used for positions that carry no sector.
const UnknownSector = "Unknown"

// ValueFloat returns the position value as float64 for statistical use.
func (p Position) ValueFloat() float64 {
	return p.Value.InexactFloat64()
}

// SectorOrUnknown returns the sector, defaulting to UnknownSector.
func (p Position) SectorOrUnknown() string {
	if p.Sector == "" {
		return UnknownSector
	}
	return p.Sector
}

// TotalValue sums the market value of the positions.
func TotalValue(positions []Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.Value)
	}
	return total
}
