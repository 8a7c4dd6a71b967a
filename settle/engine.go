// Package settle evaluates outstanding conditional orders against live
// prices and converts the ones whose triggers hold into completed
// trades, with brokerage routed to the house account.
//
// The engine is stateless between invocations; all durable state lives
// in the ledger. Concurrent invocations are safe: the per-order claim
// in the store guarantees each order settles at most once.
package settle

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantifylabs/quantify/ledger"
	"github.com/quantifylabs/quantify/market"
	"github.com/quantifylabs/quantify/oracle"
)

// releaseTimeout bounds the claim rollback after a failed apply; it must
// not inherit the invocation context, which may already be dead.
const releaseTimeout = 5 * time.Second

// Ledger is the slice of the store the engine needs.
type Ledger interface {
	ListPendingOrders(ctx context.Context) ([]ledger.Order, error)
	GetBalance(ctx context.Context, id string) (decimal.Decimal, error)
	TryClaim(ctx context.Context, orderID string) (bool, error)
	ApplySettlement(ctx context.Context, s ledger.Settlement) error
	ReleaseClaim(ctx context.Context, orderID string) error
}

// Fill identifies one order settled during an invocation.
type Fill struct {
	OrderID string          `json:"order_id"`
	Symbol  string          `json:"symbol"`
	Price   decimal.Decimal `json:"price"`
}

// Engine scans pending orders and settles the ones whose trigger holds.
type Engine struct {
	store        Ledger
	oracle       oracle.Oracle
	fees         FeeSchedule
	houseID      string
	fetchTimeout time.Duration
	log          *zap.Logger
	now          func() time.Time // injectable for tests
}

func NewEngine(store Ledger, o oracle.Oracle, fees FeeSchedule, houseID string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:        store,
		oracle:       o,
		fees:         fees,
		houseID:      houseID,
		fetchTimeout: 5 * time.Second,
		log:          log,
		now:          time.Now,
	}
}

// SetFetchTimeout bounds each price-feed call. A timed-out fetch defers
// the affected orders to the next invocation.
func (e *Engine) SetFetchTimeout(d time.Duration) {
	e.fetchTimeout = d
}

// SettlePendingOrders runs one evaluation cycle and returns the orders
// it settled.
//
// Each order is handled independently: an unavailable price, a failed
// trigger, or insufficient funds defers that order and moves on. The
// price for a symbol is fetched once per cycle, so every order on the
// same symbol sees the same snapshot. The returned error reflects only
// a failure to enumerate pending orders.
func (e *Engine) SettlePendingOrders(ctx context.Context) ([]Fill, error) {
	orders, err := e.store.ListPendingOrders(ctx)
	if err != nil {
		return nil, err
	}

	// Per-cycle price snapshot; nil marks a symbol already found
	// unavailable this cycle.
	quotes := make(map[string]*market.Quote)
	fills := []Fill{}

	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			return fills, err
		}

		if !o.Conditional() {
			// Market orders settle synchronously at entry; one sitting
			// in the pending scan is a data-integrity fault.
			e.log.Warn("market order in pending scan, skipping",
				zap.String("order_id", o.ID),
				zap.String("holder", o.HolderID))
			continue
		}

		quote, ok := quotes[o.Symbol]
		if !ok {
			quote = e.fetchQuote(ctx, o.Symbol)
			quotes[o.Symbol] = quote
		}
		if quote == nil {
			continue // deferred, not an error
		}

		if !triggered(o.Kind, quote.Price, o.TriggerPrice) {
			continue
		}

		if e.settleOne(ctx, o, *quote) {
			fills = append(fills, Fill{OrderID: o.ID, Symbol: o.Symbol, Price: quote.Price})
		}
	}

	if len(fills) > 0 {
		e.log.Info("settled orders", zap.Int("count", len(fills)))
	}
	return fills, nil
}

// fetchQuote asks the oracle under the engine's timeout. Any failure
// maps to "no price this cycle".
func (e *Engine) fetchQuote(ctx context.Context, symbol string) *market.Quote {
	fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	q, err := e.oracle.GetQuote(fctx, symbol)
	if err != nil {
		if !errors.Is(err, oracle.ErrUnavailable) {
			e.log.Warn("price fetch failed",
				zap.String("symbol", symbol), zap.Error(err))
		}
		return nil
	}
	return &q
}

// settleOne claims the order and applies the money movement as one
// atomic unit. It reports whether the order settled.
func (e *Engine) settleOne(ctx context.Context, o ledger.Order, q market.Quote) bool {
	notional := market.Notional(q.Price, o.Quantity)
	fee := e.fees.Brokerage(notional)

	var holderDelta decimal.Decimal
	switch o.Side {
	case ledger.SideBuy:
		required := notional.Add(fee)
		balance, err := e.store.GetBalance(ctx, o.HolderID)
		if err != nil {
			e.log.Warn("balance read failed",
				zap.String("order_id", o.ID), zap.Error(err))
			return false
		}
		if balance.LessThan(required) {
			// Soft condition: price may move or the account may be
			// topped up before the next cycle.
			return false
		}
		holderDelta = required.Neg()
	case ledger.SideSell:
		// Quantity availability was validated at order entry.
		holderDelta = notional.Sub(fee)
	default:
		e.log.Warn("order with unknown side, skipping",
			zap.String("order_id", o.ID), zap.String("side", string(o.Side)))
		return false
	}

	claimed, err := e.store.TryClaim(ctx, o.ID)
	if err != nil {
		e.log.Warn("claim failed", zap.String("order_id", o.ID), zap.Error(err))
		return false
	}
	if !claimed {
		// Settled by a concurrent invocation or cancelled mid-flight;
		// either way it is no longer ours.
		return false
	}

	err = e.store.ApplySettlement(ctx, ledger.Settlement{
		OrderID:     o.ID,
		Price:       q.Price,
		SettledAt:   e.now(),
		HolderID:    o.HolderID,
		HolderDelta: holderDelta,
		HouseID:     e.houseID,
		HouseDelta:  fee,
	})
	if err != nil {
		// Put the order back so a later cycle can retry it. The apply may
		// have failed because ctx died, so the release runs on its own
		// context; reusing ctx would strand the order in the claimed state.
		relCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if relErr := e.store.ReleaseClaim(relCtx, o.ID); relErr != nil {
			e.log.Error("release after failed settlement",
				zap.String("order_id", o.ID), zap.Error(relErr))
		}
		e.log.Warn("settlement rolled back",
			zap.String("order_id", o.ID), zap.Error(err))
		return false
	}

	e.log.Info("order settled",
		zap.String("order_id", o.ID),
		zap.String("symbol", o.Symbol),
		zap.String("kind", string(o.Kind)),
		zap.String("side", string(o.Side)),
		zap.String("price", q.Price.String()),
		zap.String("brokerage", fee.String()))
	return true
}
