// Package stoploss implements per-position stop-loss state machines.
//
// A stop is ACTIVE while it tracks prices. Once ShouldTrigger reports true the
// owner closes the position and discards the stop; stops never transition themselves.
package stoploss

import (
	"errors"
	"fmt"
	"math"
)

// Side is the direction of the protected position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Kind identifies the stop implementation.
type Kind string

const (
	KindTrailing Kind = "TRAILING"
	KindATR      Kind = "ATR"
)

var (
	ErrUnknownPosition   = errors.New("unknown stop-loss position")
	ErrPositionExists    = errors.New("stop-loss position already exists")
	ErrInvalidStopParams = errors.New("invalid stop-loss parameters")
)

// StopLoss is the capability shared by every stop implementation.
type StopLoss interface {
	// Update feeds a market price. The stop only ever moves in the position's favour.
	Update(price float64)
	ShouldTrigger(price float64) bool
	StopPrice() float64
	Side() Side
	State() State
}

// State is the serialisable form of a stop.
type State struct {
	Kind            Kind    `msgpack:"kind" json:"kind"`
	Side            Side    `msgpack:"side" json:"side"`
	EntryPrice      float64 `msgpack:"entry_price" json:"entry_price"`
	ExtremumPrice   float64 `msgpack:"extremum_price" json:"extremum_price"`
	StopPrice       float64 `msgpack:"stop_price" json:"stop_price"`
	TrailingPercent float64 `msgpack:"trailing_percent,omitempty" json:"trailing_percent,omitempty"`
	ATR             float64 `msgpack:"atr,omitempty" json:"atr,omitempty"`
	Multiplier      float64 `msgpack:"multiplier,omitempty" json:"multiplier,omitempty"`
	Trailing        bool    `msgpack:"trailing" json:"trailing"`
}

// FromState rebuilds a stop from its serialised state. The state must satisfy
// the same parameter rules as the constructors.
func FromState(s State) (StopLoss, error) {
	if err := validatePrice("extremum price", s.ExtremumPrice); err != nil {
		return nil, err
	}
	if s.StopPrice < 0 || math.IsNaN(s.StopPrice) || math.IsInf(s.StopPrice, 0) {
		return nil, fmt.Errorf("%w: stop price must be finite and non-negative, got %v", ErrInvalidStopParams, s.StopPrice)
	}

	switch s.Kind {
	case KindTrailing:
		if err := validateTrailingParams(s.Side, s.EntryPrice, s.TrailingPercent); err != nil {
			return nil, err
		}
		return &TrailingStopLoss{
			side:            s.Side,
			entryPrice:      s.EntryPrice,
			extremumPrice:   s.ExtremumPrice,
			stopPrice:       s.StopPrice,
			trailingPercent: s.TrailingPercent,
		}, nil
	case KindATR:
		if err := validateATRParams(s.Side, s.EntryPrice, s.ATR, s.Multiplier); err != nil {
			return nil, err
		}
		return &ATRStopLoss{
			side:          s.Side,
			entryPrice:    s.EntryPrice,
			extremumPrice: s.ExtremumPrice,
			stopPrice:     s.StopPrice,
			atr:           s.ATR,
			multiplier:    s.Multiplier,
			trailing:      s.Trailing,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidStopParams, s.Kind)
	}
}

func validateSide(side Side) error {
	if side != Long && side != Short {
		return fmt.Errorf("%w: side must be LONG or SHORT, got %q", ErrInvalidStopParams, side)
	}
	return nil
}

func validatePrice(name string, price float64) error {
	if !(price > 0) || math.IsInf(price, 0) {
		return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidStopParams, name, price)
	}
	return nil
}

// ratchet moves current towards candidate only in the position's favour.
func ratchet(side Side, current, candidate float64) float64 {
	if side == Long {
		if candidate > current {
			return candidate
		}
		return current
	}
	if candidate < current {
		return candidate
	}
	return current
}

func triggered(side Side, stop, price float64) bool {
	if side == Long {
		return price <= stop
	}
	return price >= stop
}

// favourable reports whether price is a new extremum in the position's favour.
func favourable(side Side, extremum, price float64) bool {
	if side == Long {
		return price > extremum
	}
	return price < extremum
}
