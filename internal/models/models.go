// Package models defines the core domain entities: feed events, alerts, and
// per-symbol alert state.
package models

import (
	"errors"
	"time"
)

const (
	// PxDenom is the fixed-point denominator of feed prices: raw prices are
	// integers in units of 1e-9 currency.
	PxDenom float64 = 1e9

	// PxNull is the reserved raw price meaning "no quote on this side of the
	// book".
	PxNull int64 = 1<<63 - 1
)

// InstrumentID is the numeric instrument identifier used by the live feed.
// IDs are not stable across sessions and must be resolved to a symbol via a
// SymbolMapping event before any alerting decision.
type InstrumentID uint32

// MarketEvent is the closed set of feed messages the scan engine dispatches
// on. Frames the feed layer does not recognize never become events.
type MarketEvent interface {
	isMarketEvent()
}

// SymbolMapping binds an instrument ID to its ticker symbol for the current
// session. The feed may deliver the same mapping more than once.
type SymbolMapping struct {
	InstrumentID InstrumentID
	Symbol       string
}

// QuoteUpdate is a top-of-book snapshot. Either side may be PxNull when that
// side of the book is empty.
type QuoteUpdate struct {
	InstrumentID InstrumentID
	TsEvent      int64 // exchange event time, Unix nanoseconds
	BidPx        int64 // raw fixed-point best bid
	AskPx        int64 // raw fixed-point best ask
}

func (SymbolMapping) isMarketEvent() {}
func (QuoteUpdate) isMarketEvent()   {}

// Time returns the exchange event time in UTC.
func (q QuoteUpdate) Time() time.Time {
	return time.Unix(0, q.TsEvent).UTC()
}

// Mid returns the scaled mid-price. Callers must reject PxNull sides first.
func (q QuoteUpdate) Mid() float64 {
	return (float64(q.BidPx) + float64(q.AskPx)) / (2 * PxDenom)
}

// QuoteState tracks whether a symbol has already alerted this session.
type QuoteState uint8

const (
	// StateArmed means no alert has fired for the symbol yet.
	StateArmed QuoteState = iota
	// StateFired is terminal for the session; further crossings are suppressed.
	StateFired
)

// String returns a human-readable state name.
func (s QuoteState) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateFired:
		return "fired"
	default:
		return "unknown"
	}
}

// Alert records a single threshold crossing for a symbol. At most one alert
// is produced per symbol per session.
type Alert struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Timestamp      time.Time `json:"timestamp"`
	CurrentPrice   float64   `json:"current_price"`
	ReferencePrice float64   `json:"reference_price"`
	PercentMove    float64   `json:"percent_move"` // fraction, e.g. 0.044 for 4.4%
}

// Validate checks alert field constraints.
func (a *Alert) Validate() error {
	if a.Symbol == "" {
		return errors.New("alert symbol must not be empty")
	}
	if a.Timestamp.IsZero() {
		return errors.New("alert timestamp must be set")
	}
	if a.CurrentPrice <= 0 {
		return errors.New("current price must be positive")
	}
	if a.ReferencePrice <= 0 {
		return errors.New("reference price must be positive")
	}
	if a.PercentMove <= 0 {
		return errors.New("percent move must be positive")
	}
	return nil
}
