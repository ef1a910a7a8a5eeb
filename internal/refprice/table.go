// Package refprice builds the per-session reference price table: one prior
// close per symbol for the full instrument universe, loaded once before live
// scanning starts.
package refprice

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDataUnavailable is returned when the historical source cannot supply a
// full-universe response. It is fatal to engine construction; there is no
// partial or degraded start.
var ErrDataUnavailable = errors.New("reference price data unavailable")

// Source is the bulk historical-data collaborator. DailyCloses returns the
// prior trading session's closing price for every symbol in the universe,
// given the target session date.
type Source interface {
	DailyCloses(ctx context.Context, date time.Time) (map[string]float64, error)
}

// Table is an immutable symbol-to-reference-price mapping. Symbols missing
// from the universe are simply absent, never zero.
type Table struct {
	prices map[string]float64
}

// Build obtains the reference price universe from src for the given session
// date. Any source failure, or an empty universe, yields ErrDataUnavailable.
func Build(ctx context.Context, src Source, date time.Time) (*Table, error) {
	closes, err := src.DailyCloses(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("%w: empty universe for %s", ErrDataUnavailable, date.Format("2006-01-02"))
	}

	prices := make(map[string]float64, len(closes))
	for symbol, close := range closes {
		prices[symbol] = close
	}
	return &Table{prices: prices}, nil
}

// Lookup returns the reference price for symbol and whether it is in the
// scanned universe.
func (t *Table) Lookup(symbol string) (float64, bool) {
	price, ok := t.prices[symbol]
	return price, ok
}

// Len returns the number of symbols in the universe.
func (t *Table) Len() int {
	return len(t.prices)
}

// Symbols returns a copy of the universe's symbols in unspecified order.
func (t *Table) Symbols() []string {
	symbols := make([]string, 0, len(t.prices))
	for symbol := range t.prices {
		symbols = append(symbols, symbol)
	}
	return symbols
}
