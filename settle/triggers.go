package settle

import (
	"github.com/shopspring/decimal"

	"github.com/quantifylabs/quantify/ledger"
)

// triggered reports whether a conditional order fires at price. Both
// comparisons are inclusive.
//
// STOP_LOSS uses price <= trigger for BUY and SELL alike. That is
// long-standing simulator behavior, not an oversight; do not "fix" the
// BUY side without reconciling existing order history.
func triggered(kind ledger.Kind, price, trigger decimal.Decimal) bool {
	switch kind {
	case ledger.KindLimitBuy:
		return price.LessThanOrEqual(trigger)
	case ledger.KindLimitSell:
		return price.GreaterThanOrEqual(trigger)
	case ledger.KindStopLoss:
		return price.LessThanOrEqual(trigger)
	default:
		return false
	}
}
