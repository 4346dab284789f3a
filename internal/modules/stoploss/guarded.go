package stoploss

import (
	"fmt"
	"sync"
)

// Guarded serialises every access to one stop, so a tick handler and a periodic
// re-evaluation cannot interleave an update with a trigger check.
type Guarded struct {
	mu        sync.Mutex
	stop      StopLoss
	lastPrice float64
}

// NewGuarded wraps stop.
func NewGuarded(stop StopLoss) *Guarded {
	return &Guarded{stop: stop}
}

// Evaluate applies price and checks the trigger as one critical section.
func (g *Guarded) Evaluate(price float64) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastPrice = price
	g.stop.Update(price)
	return g.stop.ShouldTrigger(price), g.stop.StopPrice()
}

// Recheck re-tests the last evaluated price without moving the stop.
// It reports false when no price has been seen yet.
func (g *Guarded) Recheck() (bool, float64, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastPrice == 0 {
		return false, 0, g.stop.StopPrice()
	}
	return g.stop.ShouldTrigger(g.lastPrice), g.lastPrice, g.stop.StopPrice()
}

// UpdateATR forwards a new ATR to an ATR stop.
func (g *Guarded) UpdateATR(atr float64) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	atrStop, ok := g.stop.(*ATRStopLoss)
	if !ok {
		return 0, fmt.Errorf("%w: ATR updates need an ATR stop, got %s", ErrInvalidStopParams, g.stop.State().Kind)
	}
	atrStop.UpdateATR(atr)
	return atrStop.StopPrice(), nil
}

// StopPrice returns the current stop price.
func (g *Guarded) StopPrice() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stop.StopPrice()
}

// Snapshot returns the stop state and the last evaluated price.
func (g *Guarded) Snapshot() (State, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stop.State(), g.lastPrice
}
