package stoploss

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/riskengine/internal/events"
	"github.com/aristath/riskengine/internal/metrics"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	sourceTick       = "tick"
	sourceReevaluate = "reevaluate"
)

var validate = validator.New()

// Bars seeds an ATR stop from recent OHLC history when no ATR is supplied.
type Bars struct {
	High   []float64 `json:"high"`
	Low    []float64 `json:"low"`
	Close  []float64 `json:"close"`
	Period int       `json:"period" validate:"gte=1"`
}

// OpenRequest describes a stop to attach to a newly opened position.
type OpenRequest struct {
	Symbol          string  `json:"symbol" validate:"required"`
	Side            Side    `json:"side" validate:"required,oneof=LONG SHORT"`
	Kind            Kind    `json:"kind" validate:"required,oneof=TRAILING ATR"`
	EntryPrice      float64 `json:"entry_price" validate:"gt=0"`
	TrailingPercent float64 `json:"trailing_percent" validate:"gte=0,lt=1"`
	ATR             float64 `json:"atr" validate:"gte=0"`
	Multiplier      float64 `json:"multiplier" validate:"gte=0"`
	Trailing        bool    `json:"trailing"`
	Bars            *Bars   `json:"bars,omitempty"`
}

// Position is a read-only view of a tracked stop.
type Position struct {
	ID        uuid.UUID `json:"id"`
	Symbol    string    `json:"symbol"`
	OpenedAt  time.Time `json:"opened_at"`
	LastPrice float64   `json:"last_price"`
	State     State     `json:"state"`
}

// Evaluation is the outcome of feeding one price to a stop.
type Evaluation struct {
	PositionID uuid.UUID `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	StopPrice  float64   `json:"stop_price"`
	Triggered  bool      `json:"triggered"`
}

type entry struct {
	id       uuid.UUID
	symbol   string
	openedAt time.Time
	guard    *Guarded
}

// record is the msgpack snapshot form of an entry.
type record struct {
	ID        string    `msgpack:"id"`
	Symbol    string    `msgpack:"symbol"`
	OpenedAt  time.Time `msgpack:"opened_at"`
	LastPrice float64   `msgpack:"last_price"`
	State     State     `msgpack:"state"`
}

// Book tracks the stops of all open positions. Each stop has its own lock;
// the book lock only guards membership.
type Book struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	emitter events.Emitter
	log     zerolog.Logger
}

// NewBook creates an empty book. emitter may be nil.
func NewBook(emitter events.Emitter, log zerolog.Logger) *Book {
	return &Book{
		entries: make(map[uuid.UUID]*entry),
		emitter: emitter,
		log:     log.With().Str("component", "stop_book").Logger(),
	}
}

// NewStop builds the stop described by req.
func NewStop(req OpenRequest) (StopLoss, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStopParams, err)
	}

	switch req.Kind {
	case KindTrailing:
		return NewTrailingStopLoss(req.Side, req.EntryPrice, req.TrailingPercent)
	case KindATR:
		atr := req.ATR
		if atr == 0 && req.Bars != nil {
			atr = ATRFromBars(req.Bars.High, req.Bars.Low, req.Bars.Close, req.Bars.Period)
		}
		return NewATRStopLoss(req.Side, req.EntryPrice, atr, req.Multiplier, req.Trailing)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidStopParams, req.Kind)
	}
}

// Open starts tracking a stop for a new position.
func (b *Book) Open(req OpenRequest) (Position, error) {
	stop, err := NewStop(req)
	if err != nil {
		return Position{}, err
	}

	e := &entry{
		id:       uuid.New(),
		symbol:   req.Symbol,
		openedAt: time.Now().UTC(),
		guard:    NewGuarded(stop),
	}

	b.mu.Lock()
	b.entries[e.id] = e
	metrics.ActiveStops.Set(float64(len(b.entries)))
	b.mu.Unlock()

	b.log.Info().
		Str("position_id", e.id.String()).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("kind", string(req.Kind)).
		Float64("stop_price", stop.StopPrice()).
		Msg("Stop-loss opened")

	b.emit(&events.StopOpenedData{
		PositionID: e.id.String(),
		Symbol:     req.Symbol,
		Side:       string(req.Side),
		Kind:       string(req.Kind),
		EntryPrice: req.EntryPrice,
		StopPrice:  stop.StopPrice(),
	})

	return e.view(), nil
}

// Close stops tracking a position.
func (b *Book) Close(id uuid.UUID) error {
	e, ok := b.remove(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}

	b.log.Info().Str("position_id", id.String()).Str("symbol", e.symbol).Msg("Stop-loss closed")
	b.emit(&events.StopClosedData{PositionID: id.String(), Symbol: e.symbol})
	return nil
}

// OnPrice feeds a price tick to one position's stop. A triggered stop leaves the book.
func (b *Book) OnPrice(id uuid.UUID, price float64) (Evaluation, error) {
	e, err := b.lookup(id)
	if err != nil {
		return Evaluation{}, err
	}

	hit, stopPrice := e.guard.Evaluate(price)
	eval := Evaluation{
		PositionID: id,
		Symbol:     e.symbol,
		Price:      price,
		StopPrice:  stopPrice,
		Triggered:  hit,
	}

	if hit {
		b.trigger(e, eval, sourceTick)
	}
	return eval, nil
}

// OnATR feeds a new ATR reading to an ATR stop.
func (b *Book) OnATR(id uuid.UUID, atr float64) (Position, error) {
	e, err := b.lookup(id)
	if err != nil {
		return Position{}, err
	}

	if _, err := e.guard.UpdateATR(atr); err != nil {
		return Position{}, err
	}
	return e.view(), nil
}

// Reevaluate re-checks every stop against the last price it saw.
// It returns the positions that triggered.
func (b *Book) Reevaluate() []Evaluation {
	b.mu.RLock()
	entries := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.RUnlock()

	hits := make([]Evaluation, 0)
	for _, e := range entries {
		hit, price, stopPrice := e.guard.Recheck()
		if !hit {
			continue
		}
		eval := Evaluation{
			PositionID: e.id,
			Symbol:     e.symbol,
			Price:      price,
			StopPrice:  stopPrice,
			Triggered:  true,
		}
		if b.trigger(e, eval, sourceReevaluate) {
			hits = append(hits, eval)
		}
	}

	b.log.Debug().Int("checked", len(entries)).Int("triggered", len(hits)).Msg("Stops re-evaluated")
	return hits
}

// Get returns a view of one position's stop.
func (b *Book) Get(id uuid.UUID) (Position, error) {
	e, err := b.lookup(id)
	if err != nil {
		return Position{}, err
	}
	return e.view(), nil
}

// List returns every tracked position, oldest first.
func (b *Book) List() []Position {
	b.mu.RLock()
	out := make([]Position, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e.view())
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Len returns the number of tracked positions.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Snapshot encodes every tracked stop with msgpack.
func (b *Book) Snapshot() ([]byte, error) {
	data, _, err := b.snapshot()
	return data, err
}

func (b *Book) snapshot() ([]byte, int, error) {
	positions := b.List()
	records := make([]record, 0, len(positions))
	for _, p := range positions {
		records = append(records, record{
			ID:        p.ID.String(),
			Symbol:    p.Symbol,
			OpenedAt:  p.OpenedAt,
			LastPrice: p.LastPrice,
			State:     p.State,
		})
	}

	data, err := msgpack.Marshal(records)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode stop snapshot: %w", err)
	}
	return data, len(records), nil
}

// Restore replaces the book contents with a snapshot and returns the number of stops loaded.
func (b *Book) Restore(data []byte) (int, error) {
	var records []record
	if err := msgpack.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("failed to decode stop snapshot: %w", err)
	}

	entries := make(map[uuid.UUID]*entry, len(records))
	for _, rec := range records {
		id, err := uuid.Parse(rec.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to parse position id %q: %w", rec.ID, err)
		}
		stop, err := FromState(rec.State)
		if err != nil {
			return 0, fmt.Errorf("failed to restore stop %s: %w", rec.ID, err)
		}
		g := NewGuarded(stop)
		g.lastPrice = rec.LastPrice
		entries[id] = &entry{id: id, symbol: rec.Symbol, openedAt: rec.OpenedAt, guard: g}
	}

	b.mu.Lock()
	b.entries = entries
	metrics.ActiveStops.Set(float64(len(entries)))
	b.mu.Unlock()

	b.log.Info().Int("stops", len(entries)).Msg("Stop book restored")
	return len(entries), nil
}

func (b *Book) lookup(id uuid.UUID) (*entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	return e, nil
}

func (b *Book) remove(id uuid.UUID) (*entry, bool) {
	b.mu.Lock()
	e, ok := b.entries[id]
	if ok {
		delete(b.entries, id)
		metrics.ActiveStops.Set(float64(len(b.entries)))
	}
	b.mu.Unlock()

	return e, ok
}

// trigger removes a triggered position and reports it once, whichever path saw it first.
func (b *Book) trigger(e *entry, eval Evaluation, source string) bool {
	if _, ok := b.remove(e.id); !ok {
		return false
	}

	state, _ := e.guard.Snapshot()
	metrics.StopTriggersTotal.WithLabelValues(string(state.Side), source).Inc()

	b.log.Warn().
		Str("position_id", e.id.String()).
		Str("symbol", e.symbol).
		Float64("price", eval.Price).
		Float64("stop_price", eval.StopPrice).
		Str("source", source).
		Msg("Stop-loss triggered")

	b.emit(&events.StopTriggeredData{
		PositionID: e.id.String(),
		Symbol:     e.symbol,
		Side:       string(state.Side),
		Price:      eval.Price,
		StopPrice:  eval.StopPrice,
		Source:     source,
	})
	return true
}

func (b *Book) emit(data events.EventData) {
	if b.emitter != nil {
		b.emitter.EmitTyped("stoploss", data)
	}
}

func (e *entry) view() Position {
	state, last := e.guard.Snapshot()
	return Position{
		ID:        e.id,
		Symbol:    e.symbol,
		OpenedAt:  e.openedAt,
		LastPrice: last,
		State:     state,
	}
}
