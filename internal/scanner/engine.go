// Package scanner implements the price-move scan engine: it resolves feed
// instrument IDs to symbols, computes mid-prices from top-of-book quotes,
// and fires at most one alert per symbol per session when the relative move
// against the prior close exceeds the configured threshold.
package scanner

import (
	"math"

	"github.com/google/uuid"
	"github.com/movescan/movescan/internal/models"
	"github.com/movescan/movescan/internal/refprice"
)

// DefaultThreshold is the minimum relative move that fires an alert when no
// threshold is configured.
const DefaultThreshold = 0.03

// Config holds scan behavior settings.
type Config struct {
	// Threshold is the relative move, as a fraction, that must be strictly
	// exceeded to fire an alert.
	Threshold float64
}

// Stats is a snapshot of engine counters. Per-event problems are skipped
// silently by design, so these counters are the only local visibility into
// them.
type Stats struct {
	MappingsSeen      uint64
	QuotesSeen        uint64
	AlertsFired       uint64
	DropUnresolved    uint64
	DropEmptyBook     uint64
	DropOutOfUniverse uint64
	DropDegenerateRef uint64
}

// Engine is a single-goroutine stream processor. It owns its resolution and
// quote-state maps exclusively; Handle must not be called concurrently.
type Engine struct {
	cfg     Config
	refs    *refprice.Table
	metrics *Metrics

	resolution map[models.InstrumentID]string
	quoteState map[string]models.QuoteState
	stats      Stats
}

// New creates an engine over the given reference price table. Every symbol
// in the table starts armed; symbols outside the table are never tracked.
func New(refs *refprice.Table, cfg Config, metrics *Metrics) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}

	quoteState := make(map[string]models.QuoteState, refs.Len())
	for _, symbol := range refs.Symbols() {
		quoteState[symbol] = models.StateArmed
	}

	return &Engine{
		cfg:        cfg,
		refs:       refs,
		metrics:    metrics,
		resolution: make(map[models.InstrumentID]string),
		quoteState: quoteState,
	}
}

// Handle processes one feed event and returns the alert it produced, or nil.
// Event ordering matters: a quote update is only scannable once its symbol
// mapping has arrived. Quotes that cannot be evaluated are dropped, counted,
// and never surfaced as errors.
func (e *Engine) Handle(event models.MarketEvent) *models.Alert {
	switch ev := event.(type) {
	case models.SymbolMapping:
		e.resolution[ev.InstrumentID] = ev.Symbol
		e.stats.MappingsSeen++
		e.metrics.events.WithLabelValues("symbol_mapping").Inc()
		return nil

	case models.QuoteUpdate:
		e.stats.QuotesSeen++
		e.metrics.events.WithLabelValues("quote").Inc()
		return e.handleQuote(ev)

	default:
		e.metrics.events.WithLabelValues("other").Inc()
		return nil
	}
}

func (e *Engine) handleQuote(quote models.QuoteUpdate) *models.Alert {
	symbol, ok := e.resolution[quote.InstrumentID]
	if !ok {
		// Quote arrived before its mapping; the feed promises mapping-first
		// ordering but a violation is dropped, not crashed on.
		e.drop(&e.stats.DropUnresolved, DropUnresolvedInstrument)
		return nil
	}

	if quote.BidPx == models.PxNull || quote.AskPx == models.PxNull {
		e.drop(&e.stats.DropEmptyBook, DropEmptyBookSide)
		return nil
	}

	reference, ok := e.refs.Lookup(symbol)
	if !ok {
		e.drop(&e.stats.DropOutOfUniverse, DropOutOfUniverse)
		return nil
	}
	if reference <= 0 {
		// A zero or negative close is upstream data noise; evaluating it
		// would divide by zero.
		e.drop(&e.stats.DropDegenerateRef, DropDegenerateReference)
		return nil
	}

	mid := quote.Mid()
	move := math.Abs(mid-reference) / reference

	if move <= e.cfg.Threshold || e.quoteState[symbol] != models.StateArmed {
		return nil
	}

	e.quoteState[symbol] = models.StateFired
	e.stats.AlertsFired++
	e.metrics.alerts.Inc()

	return &models.Alert{
		ID:             uuid.New().String(),
		Symbol:         symbol,
		Timestamp:      quote.Time(),
		CurrentPrice:   mid,
		ReferencePrice: reference,
		PercentMove:    move,
	}
}

func (e *Engine) drop(counter *uint64, reason string) {
	*counter++
	e.metrics.drops.WithLabelValues(reason).Inc()
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Universe returns the number of symbols being scanned.
func (e *Engine) Universe() int {
	return e.refs.Len()
}
