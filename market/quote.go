// Package market holds the small shared vocabulary of the simulator:
// quotes as reported by a price feed and the money arithmetic derived
// from them.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the most recent traded price for a symbol.
//
// Price carries exactly two fractional digits; Time is the exchange
// observation time converted to the feed's canonical location.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
}

// Notional returns price × qty, the gross trade value before fees.
func Notional(price decimal.Decimal, qty int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(qty))
}

// RoundPrice normalizes a raw feed value to the two fractional digits
// quotes are quoted in.
func RoundPrice(raw float64) decimal.Decimal {
	return decimal.NewFromFloat(raw).Round(2)
}
