package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is the reference Store implementation: a mutex around two
// maps. It backs tests and the demo mode and defines the semantics the
// SQLite store must match.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	orders   map[string]*Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		orders:   make(map[string]*Order),
	}
}

func (m *MemoryStore) CreateAccount(_ context.Context, acct Account) error {
	if acct.ID == "" {
		return fmt.Errorf("account ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[acct.ID]; ok {
		return fmt.Errorf("account %q: %w", acct.ID, ErrExists)
	}
	a := acct
	m.accounts[acct.ID] = &a
	return nil
}

func (m *MemoryStore) GetAccount(_ context.Context, id string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %q: %w", id, ErrNotFound)
	}
	return *a, nil
}

func (m *MemoryStore) GetBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	a, err := m.GetAccount(ctx, id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return a.Balance, nil
}

func (m *MemoryStore) Deposit(_ context.Context, id string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("deposit amount must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("account %q: %w", id, ErrNotFound)
	}
	a.Balance = a.Balance.Add(amount)
	return nil
}

func (m *MemoryStore) Withdraw(_ context.Context, id string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("withdraw amount must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("account %q: %w", id, ErrNotFound)
	}
	if a.Balance.LessThan(amount) {
		return fmt.Errorf("withdraw %s from %q: %w", amount, id, ErrInsufficientFunds)
	}
	a.Balance = a.Balance.Sub(amount)
	return nil
}

func (m *MemoryStore) Leaderboard(_ context.Context, limit int) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ranked := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		ranked = append(ranked, *a)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].Balance.Equal(ranked[j].Balance) {
			return ranked[i].Balance.GreaterThan(ranked[j].Balance)
		}
		return ranked[i].ID < ranked[j].ID
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, o Order) error {
	if o.ID == "" {
		return fmt.Errorf("order ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("order %q: %w", o.ID, ErrExists)
	}
	ord := o
	m.orders[o.ID] = &ord
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %q: %w", id, ErrNotFound)
	}
	return *o, nil
}

func (m *MemoryStore) ListPendingOrders(_ context.Context) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []Order
	for _, o := range m.orders {
		if o.Status == StatusPending {
			pending = append(pending, *o)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending, nil
}

func (m *MemoryStore) ListOrdersByHolder(_ context.Context, holderID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Order
	for _, o := range m.orders {
		if o.HolderID == holderID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteOrder(_ context.Context, holderID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %q: %w", orderID, ErrNotFound)
	}
	if o.HolderID != holderID {
		return fmt.Errorf("order %q: %w", orderID, ErrNotFound)
	}
	if o.Status != StatusPending {
		return fmt.Errorf("order %q: %w", orderID, ErrNotPending)
	}
	delete(m.orders, orderID)
	return nil
}

func (m *MemoryStore) TryClaim(_ context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.Status != StatusPending {
		return false, nil
	}
	o.Status = StatusClaimed
	return true, nil
}

func (m *MemoryStore) ApplySettlement(_ context.Context, s Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[s.OrderID]
	if !ok {
		return fmt.Errorf("order %q: %w", s.OrderID, ErrNotFound)
	}
	if o.Status != StatusClaimed {
		return fmt.Errorf("order %q: %w", s.OrderID, ErrNotClaimed)
	}

	holder, ok := m.accounts[s.HolderID]
	if !ok {
		return fmt.Errorf("account %q: %w", s.HolderID, ErrNotFound)
	}
	house, ok := m.accounts[s.HouseID]
	if !ok {
		return fmt.Errorf("account %q: %w", s.HouseID, ErrNotFound)
	}

	// Re-check under the lock: the engine's funds check ran before the
	// claim and a withdrawal may have raced it.
	newHolder := holder.Balance.Add(s.HolderDelta)
	newHouse := house.Balance.Add(s.HouseDelta)
	if newHolder.Sign() < 0 || newHouse.Sign() < 0 {
		return fmt.Errorf("settle order %q: %w", s.OrderID, ErrInsufficientFunds)
	}

	holder.Balance = newHolder
	house.Balance = newHouse
	o.Status = StatusComplete
	o.SettlePrice = s.Price
	o.SettledAt = s.SettledAt
	return nil
}

func (m *MemoryStore) ReleaseClaim(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %q: %w", orderID, ErrNotFound)
	}
	if o.Status != StatusClaimed {
		return fmt.Errorf("order %q: %w", orderID, ErrNotClaimed)
	}
	o.Status = StatusPending
	return nil
}

func (m *MemoryStore) Holdings(_ context.Context, holderID string) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bySymbol := make(map[string]*Position)
	for _, o := range m.orders {
		if o.HolderID != holderID || o.Status != StatusComplete {
			continue
		}
		p, ok := bySymbol[o.Symbol]
		if !ok {
			p = &Position{Symbol: o.Symbol}
			bySymbol[o.Symbol] = p
		}
		value := o.SettlePrice.Mul(decimal.NewFromInt(o.Quantity))
		if o.Side == SideBuy {
			p.Quantity += o.Quantity
			p.Invested = p.Invested.Add(value)
		} else {
			p.Quantity -= o.Quantity
			p.Invested = p.Invested.Sub(value)
		}
	}

	var out []Position
	for _, p := range bySymbol {
		if p.Quantity != 0 {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
