package stoploss

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
)

// ATRStopLoss keeps the stop ATR*multiplier away from the price.
//
// A static stop is fixed at construction. A trailing stop follows the best price
// and the live ATR with the same ratchet rule as TrailingStopLoss.
type ATRStopLoss struct {
	side          Side
	entryPrice    float64
	extremumPrice float64
	stopPrice     float64
	atr           float64
	multiplier    float64
	trailing      bool
}

// NewATRStopLoss creates an ATR stop. A zero ATR puts the initial stop at the entry price.
func NewATRStopLoss(side Side, entryPrice, atr, multiplier float64, trailing bool) (*ATRStopLoss, error) {
	if err := validateATRParams(side, entryPrice, atr, multiplier); err != nil {
		return nil, err
	}

	s := &ATRStopLoss{
		side:          side,
		entryPrice:    entryPrice,
		extremumPrice: entryPrice,
		atr:           atr,
		multiplier:    multiplier,
		trailing:      trailing,
	}
	s.stopPrice = s.stopFrom(entryPrice)
	return s, nil
}

func validateATRParams(side Side, entryPrice, atr, multiplier float64) error {
	if err := validateSide(side); err != nil {
		return err
	}
	if err := validatePrice("entry price", entryPrice); err != nil {
		return err
	}
	if atr < 0 || math.IsNaN(atr) || math.IsInf(atr, 0) {
		return fmt.Errorf("%w: ATR must be non-negative, got %v", ErrInvalidStopParams, atr)
	}
	if !(multiplier > 0) || math.IsInf(multiplier, 0) {
		return fmt.Errorf("%w: multiplier must be positive, got %v", ErrInvalidStopParams, multiplier)
	}
	return nil
}

func (s *ATRStopLoss) stopFrom(extremum float64) float64 {
	distance := s.atr * s.multiplier
	if s.side == Long {
		return extremum - distance
	}
	return extremum + distance
}

// UpdateATR applies a new ATR reading. Static stops and non-positive readings are ignored.
func (s *ATRStopLoss) UpdateATR(atr float64) {
	if !s.trailing || atr <= 0 || math.IsNaN(atr) {
		return
	}
	s.atr = atr
	s.stopPrice = ratchet(s.side, s.stopPrice, s.stopFrom(s.extremumPrice))
}

// UpdatePrice feeds a market price. Static stops ignore it.
func (s *ATRStopLoss) UpdatePrice(price float64) {
	if !s.trailing || !favourable(s.side, s.extremumPrice, price) {
		return
	}
	s.extremumPrice = price
	s.stopPrice = ratchet(s.side, s.stopPrice, s.stopFrom(price))
}

// Update is UpdatePrice.
func (s *ATRStopLoss) Update(price float64) { s.UpdatePrice(price) }

// ShouldTrigger reports whether price has crossed the stop.
func (s *ATRStopLoss) ShouldTrigger(price float64) bool {
	return triggered(s.side, s.stopPrice, price)
}

func (s *ATRStopLoss) StopPrice() float64 { return s.stopPrice }

func (s *ATRStopLoss) Side() Side { return s.side }

// ATR returns the ATR the stop distance is currently based on.
func (s *ATRStopLoss) ATR() float64 { return s.atr }

func (s *ATRStopLoss) State() State {
	return State{
		Kind:          KindATR,
		Side:          s.side,
		EntryPrice:    s.entryPrice,
		ExtremumPrice: s.extremumPrice,
		StopPrice:     s.stopPrice,
		ATR:           s.atr,
		Multiplier:    s.multiplier,
		Trailing:      s.trailing,
	}
}

// ATRFromBars computes the latest Average True Range over period bars.
// It returns 0 when there are not enough bars, so callers fall back to an entry-based stop.
func ATRFromBars(high, low, close []float64, period int) float64 {
	if period <= 0 || len(close) <= period || len(high) != len(close) || len(low) != len(close) {
		return 0
	}

	atr := talib.Atr(high, low, close, period)
	if len(atr) == 0 {
		return 0
	}
	last := atr[len(atr)-1]
	if math.IsNaN(last) || last < 0 {
		return 0
	}
	return last
}
