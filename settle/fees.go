package settle

import "github.com/shopspring/decimal"

// FeeSchedule is the brokerage policy applied to every settlement:
// max(Flat, notional × Rate), credited to the house account.
type FeeSchedule struct {
	Flat decimal.Decimal
	Rate decimal.Decimal
}

// DefaultFees is the historical schedule: 20.00 flat or 0.05% of
// notional, whichever is greater.
func DefaultFees() FeeSchedule {
	return FeeSchedule{
		Flat: decimal.NewFromInt(20),
		Rate: decimal.NewFromFloat(0.0005),
	}
}

// Brokerage returns the fee for a trade of the given notional, rounded
// to two fractional digits.
func (f FeeSchedule) Brokerage(notional decimal.Decimal) decimal.Decimal {
	pct := notional.Mul(f.Rate).Round(2)
	if pct.GreaterThan(f.Flat) {
		return pct
	}
	return f.Flat
}
