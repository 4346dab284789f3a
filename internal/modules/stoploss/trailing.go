package stoploss

import "fmt"

// TrailingStopLoss follows the best price seen at a fixed percentage distance.
type TrailingStopLoss struct {
	side            Side
	entryPrice      float64
	extremumPrice   float64
	stopPrice       float64
	trailingPercent float64
}

// NewTrailingStopLoss creates a trailing stop. trailingPercent is a fraction, 0.05 for 5%.
func NewTrailingStopLoss(side Side, entryPrice, trailingPercent float64) (*TrailingStopLoss, error) {
	if err := validateTrailingParams(side, entryPrice, trailingPercent); err != nil {
		return nil, err
	}

	s := &TrailingStopLoss{
		side:            side,
		entryPrice:      entryPrice,
		extremumPrice:   entryPrice,
		trailingPercent: trailingPercent,
	}
	s.stopPrice = s.stopFrom(entryPrice)
	return s, nil
}

func validateTrailingParams(side Side, entryPrice, trailingPercent float64) error {
	if err := validateSide(side); err != nil {
		return err
	}
	if err := validatePrice("entry price", entryPrice); err != nil {
		return err
	}
	if !(trailingPercent > 0 && trailingPercent < 1) {
		return fmt.Errorf("%w: trailing percent must be in (0, 1), got %v", ErrInvalidStopParams, trailingPercent)
	}
	return nil
}

func (s *TrailingStopLoss) stopFrom(extremum float64) float64 {
	if s.side == Long {
		return extremum * (1 - s.trailingPercent)
	}
	return extremum * (1 + s.trailingPercent)
}

// Update advances the extremum on a favourable price and ratchets the stop.
func (s *TrailingStopLoss) Update(price float64) {
	if !favourable(s.side, s.extremumPrice, price) {
		return
	}
	s.extremumPrice = price
	s.stopPrice = ratchet(s.side, s.stopPrice, s.stopFrom(price))
}

// ShouldTrigger reports whether price has crossed the stop.
func (s *TrailingStopLoss) ShouldTrigger(price float64) bool {
	return triggered(s.side, s.stopPrice, price)
}

func (s *TrailingStopLoss) StopPrice() float64 { return s.stopPrice }

func (s *TrailingStopLoss) Side() Side { return s.side }

func (s *TrailingStopLoss) State() State {
	return State{
		Kind:            KindTrailing,
		Side:            s.side,
		EntryPrice:      s.entryPrice,
		ExtremumPrice:   s.extremumPrice,
		StopPrice:       s.stopPrice,
		TrailingPercent: s.trailingPercent,
		Trailing:        true,
	}
}
