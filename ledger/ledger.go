// Package ledger holds the durable state of the simulator: accounts and
// orders. Stores implement the claim/apply discipline the settlement
// engine relies on so that completing one order is a single atomic unit.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Kind distinguishes immediately-settled market orders from the
// conditional kinds the settlement engine evaluates.
type Kind string

const (
	KindMarket    Kind = "MARKET"
	KindLimitBuy  Kind = "LIMIT_BUY"
	KindLimitSell Kind = "LIMIT_SELL"
	KindStopLoss  Kind = "STOP_LOSS"
)

// Status is the order state machine: PENDING -> COMPLETE, with CLAIMED
// as the transient settle-in-progress state stores use internally.
// COMPLETE is terminal; a COMPLETE order never mutates balances again.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusClaimed  Status = "CLAIMED"
	StatusComplete Status = "COMPLETE"
)

// Account is a cash balance keyed by holder ID. The house account that
// accumulates brokerage is an ordinary Account.
type Account struct {
	ID        string
	Name      string
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// Order is an intent to trade Quantity units of Symbol.
//
// TriggerPrice is set for every conditional kind and zero for MARKET.
// RefPrice is the quote at entry time, kept for display only. SettlePrice
// and SettledAt are filled in once, when the order goes COMPLETE.
type Order struct {
	ID           string
	HolderID     string
	Symbol       string
	Quantity     int64
	Side         Side
	Kind         Kind
	TriggerPrice decimal.Decimal
	RefPrice     decimal.Decimal
	Status       Status
	SettlePrice  decimal.Decimal
	CreatedAt    time.Time
	SettledAt    time.Time
}

// Conditional reports whether the order waits on a trigger price.
func (o Order) Conditional() bool {
	return o.Kind != KindMarket
}

// Settlement is the atomic unit that completes one order: the order
// flips to COMPLETE at Price and both balance deltas apply together, or
// nothing applies at all.
type Settlement struct {
	OrderID     string
	Price       decimal.Decimal
	SettledAt   time.Time
	HolderID    string
	HolderDelta decimal.Decimal
	HouseID     string
	HouseDelta  decimal.Decimal
}

// Position is a derived view over completed orders: net quantity held
// per symbol and the net cash that went into it (buys minus sells at
// settlement price, fees excluded).
type Position struct {
	Symbol   string
	Quantity int64
	Invested decimal.Decimal
}

var (
	ErrNotFound          = errors.New("not found")
	ErrExists            = errors.New("already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotClaimed        = errors.New("order not claimed")
	ErrNotPending        = errors.New("order not pending")
)

// Store is the ledger contract.
//
// TryClaim, ApplySettlement, and ReleaseClaim implement the per-order
// settlement discipline: a claim is an exclusive conditional transition
// out of PENDING, ApplySettlement finalizes a claimed order together
// with its balance deltas in one transaction, and ReleaseClaim returns
// a claimed order to PENDING after a failed apply. TryClaim returns
// false (not an error) when the order is already claimed, already
// COMPLETE, or no longer exists.
type Store interface {
	CreateAccount(ctx context.Context, acct Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	GetBalance(ctx context.Context, id string) (decimal.Decimal, error)
	Deposit(ctx context.Context, id string, amount decimal.Decimal) error
	Withdraw(ctx context.Context, id string, amount decimal.Decimal) error
	Leaderboard(ctx context.Context, limit int) ([]Account, error)

	CreateOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	ListPendingOrders(ctx context.Context) ([]Order, error)
	ListOrdersByHolder(ctx context.Context, holderID string) ([]Order, error)
	// DeleteOrder cancels a PENDING order owned by holderID. Orders in
	// any other state (or mid-claim) return ErrNotPending.
	DeleteOrder(ctx context.Context, holderID, orderID string) error

	TryClaim(ctx context.Context, orderID string) (bool, error)
	ApplySettlement(ctx context.Context, s Settlement) error
	ReleaseClaim(ctx context.Context, orderID string) error

	Holdings(ctx context.Context, holderID string) ([]Position, error)

	Close() error
}
