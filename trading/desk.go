// Package trading is the order-entry desk: it validates new orders,
// records conditional ones for the settlement engine, and settles
// market orders synchronously at the live quote.
package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantifylabs/quantify/ledger"
	"github.com/quantifylabs/quantify/market"
	"github.com/quantifylabs/quantify/oracle"
	"github.com/quantifylabs/quantify/pkg/id"
	"github.com/quantifylabs/quantify/settle"
)

// cleanupTimeout bounds the rollback of a failed market fill; it must
// not inherit the request context, which may already be dead.
const cleanupTimeout = 5 * time.Second

// Desk accepts orders on behalf of account holders.
type Desk struct {
	store   ledger.Store
	oracle  oracle.Oracle
	fees    settle.FeeSchedule
	houseID string
	log     *zap.Logger
	now     func() time.Time // injectable for tests
}

func NewDesk(store ledger.Store, o oracle.Oracle, fees settle.FeeSchedule, houseID string, log *zap.Logger) *Desk {
	if log == nil {
		log = zap.NewNop()
	}
	return &Desk{
		store:   store,
		oracle:  o,
		fees:    fees,
		houseID: houseID,
		log:     log,
		now:     time.Now,
	}
}

// OrderRequest is a new order as submitted by a holder. TriggerPrice is
// required for conditional kinds and must be absent for MARKET.
type OrderRequest struct {
	HolderID     string
	Symbol       string
	Quantity     int64
	Side         ledger.Side
	Kind         ledger.Kind
	TriggerPrice decimal.Decimal
}

func (r OrderRequest) validate() error {
	if r.HolderID == "" {
		return fmt.Errorf("holder is required")
	}
	if r.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	switch r.Side {
	case ledger.SideBuy, ledger.SideSell:
	default:
		return fmt.Errorf("unknown side %q", r.Side)
	}
	switch r.Kind {
	case ledger.KindMarket:
		if r.TriggerPrice.Sign() != 0 {
			return fmt.Errorf("market orders take no trigger price")
		}
	case ledger.KindLimitBuy:
		if r.Side != ledger.SideBuy {
			return fmt.Errorf("%s must be a BUY", r.Kind)
		}
	case ledger.KindLimitSell:
		if r.Side != ledger.SideSell {
			return fmt.Errorf("%s must be a SELL", r.Kind)
		}
	case ledger.KindStopLoss:
	default:
		return fmt.Errorf("unknown order kind %q", r.Kind)
	}
	if r.Kind != ledger.KindMarket && r.TriggerPrice.Sign() <= 0 {
		return fmt.Errorf("trigger price must be positive")
	}
	return nil
}

// PlaceOrder records the order. Conditional orders are stored PENDING
// with the live quote as reference price; MARKET orders settle
// immediately through the same claim/apply path the engine uses.
//
// An unavailable quote rejects the order: entry needs a price, both as
// reference and, for market orders, as the fill price.
func (d *Desk) PlaceOrder(ctx context.Context, req OrderRequest) (ledger.Order, error) {
	if err := req.validate(); err != nil {
		return ledger.Order{}, err
	}
	if _, err := d.store.GetAccount(ctx, req.HolderID); err != nil {
		return ledger.Order{}, err
	}

	quote, err := d.oracle.GetQuote(ctx, req.Symbol)
	if err != nil {
		return ledger.Order{}, fmt.Errorf("quote %s: %w", req.Symbol, err)
	}

	if req.Side == ledger.SideSell {
		if err := d.checkHeldQuantity(ctx, req); err != nil {
			return ledger.Order{}, err
		}
	}

	order := ledger.Order{
		ID:           id.New(),
		HolderID:     req.HolderID,
		Symbol:       req.Symbol,
		Quantity:     req.Quantity,
		Side:         req.Side,
		Kind:         req.Kind,
		TriggerPrice: req.TriggerPrice,
		RefPrice:     quote.Price,
		Status:       ledger.StatusPending,
		CreatedAt:    d.now(),
	}

	if req.Kind == ledger.KindMarket {
		return d.fillMarket(ctx, order, quote)
	}

	if err := d.store.CreateOrder(ctx, order); err != nil {
		return ledger.Order{}, err
	}
	d.log.Info("conditional order placed",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("kind", string(order.Kind)),
		zap.String("trigger", order.TriggerPrice.String()))
	return order, nil
}

// fillMarket settles a market order at the current quote. Funds are
// checked up front so an unaffordable BUY never hits the books.
//
// The order is written already claimed: a PENDING market order must
// never be visible, even transiently, or a concurrent settle cycle
// would flag it as an integrity fault.
func (d *Desk) fillMarket(ctx context.Context, order ledger.Order, quote market.Quote) (ledger.Order, error) {
	notional := market.Notional(quote.Price, order.Quantity)
	fee := d.fees.Brokerage(notional)

	var holderDelta decimal.Decimal
	if order.Side == ledger.SideBuy {
		required := notional.Add(fee)
		balance, err := d.store.GetBalance(ctx, order.HolderID)
		if err != nil {
			return ledger.Order{}, err
		}
		if balance.LessThan(required) {
			return ledger.Order{}, fmt.Errorf("market buy needs %s: %w",
				required, ledger.ErrInsufficientFunds)
		}
		holderDelta = required.Neg()
	} else {
		holderDelta = notional.Sub(fee)
	}

	order.Status = ledger.StatusClaimed
	if err := d.store.CreateOrder(ctx, order); err != nil {
		return ledger.Order{}, err
	}

	settledAt := d.now()
	err := d.store.ApplySettlement(ctx, ledger.Settlement{
		OrderID:     order.ID,
		Price:       quote.Price,
		SettledAt:   settledAt,
		HolderID:    order.HolderID,
		HolderDelta: holderDelta,
		HouseID:     d.houseID,
		HouseDelta:  fee,
	})
	if err != nil {
		// Nobody else knows this order; take it back off the books. The
		// cleanup runs on its own context since ctx may be what killed
		// the apply, and leaving the row claimed would strand it.
		cleanCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if relErr := d.store.ReleaseClaim(cleanCtx, order.ID); relErr == nil {
			_ = d.store.DeleteOrder(cleanCtx, order.HolderID, order.ID)
		}
		return ledger.Order{}, fmt.Errorf("fill market order: %w", err)
	}

	order.Status = ledger.StatusComplete
	order.SettlePrice = quote.Price
	order.SettledAt = settledAt

	d.log.Info("market order filled",
		zap.String("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("price", quote.Price.String()),
		zap.String("brokerage", fee.String()))
	return order, nil
}

// checkHeldQuantity enforces the sell-side entry rule: a holder may not
// sell more than the completed net position in the symbol.
func (d *Desk) checkHeldQuantity(ctx context.Context, req OrderRequest) error {
	positions, err := d.store.Holdings(ctx, req.HolderID)
	if err != nil {
		return err
	}
	var held int64
	for _, p := range positions {
		if p.Symbol == req.Symbol {
			held = p.Quantity
			break
		}
	}
	if held < req.Quantity {
		return fmt.Errorf("sell %d %s but holding %d: %w",
			req.Quantity, req.Symbol, held, ledger.ErrInsufficientFunds)
	}
	return nil
}

// CancelOrder deletes a PENDING order owned by holderID. Racing a
// settlement is safe: once the engine claims the order the delete
// reports ErrNotPending.
func (d *Desk) CancelOrder(ctx context.Context, holderID, orderID string) error {
	if err := d.store.DeleteOrder(ctx, holderID, orderID); err != nil {
		return err
	}
	d.log.Info("order cancelled",
		zap.String("order_id", orderID), zap.String("holder", holderID))
	return nil
}
