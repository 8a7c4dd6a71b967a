// Package oracle defines the price-feed contract consumed by the
// settlement engine and the order-entry desk, plus feed-agnostic
// wrappers (in-memory table, TTL cache).
package oracle

import (
	"context"
	"errors"

	"github.com/quantifylabs/quantify/market"
)

// ErrUnavailable reports that the feed could not produce a usable quote:
// empty history, unknown symbol, or a malformed last value. Callers must
// treat it as "no price right now", never as a price of zero.
var ErrUnavailable = errors.New("quote unavailable")

// Oracle returns the latest traded price for a symbol.
//
// Implementations never retry; the caller bounds each call with a
// context deadline and owns any retry policy. A timed-out call is
// equivalent to ErrUnavailable.
type Oracle interface {
	GetQuote(ctx context.Context, symbol string) (market.Quote, error)
}
