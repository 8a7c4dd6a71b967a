package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the durable Store. The claim is a conditional UPDATE on
// the order row's status, and ApplySettlement runs the order flip plus
// both balance mutations in a single transaction.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the ledger database at path and applies
// the schema.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	// A single connection serializes writers; sqlite has no row locks.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	// Claims are transient. A row still CLAIMED at open was stranded by a
	// crash between claim and apply; put it back in the pending pool.
	if _, err := db.Exec(`UPDATE orders SET status = ? WHERE status = ?`,
		string(StatusPending), string(StatusClaimed)); err != nil {
		db.Close()
		return nil, fmt.Errorf("recover claimed orders: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, acct Account) error {
	if acct.ID == "" {
		return fmt.Errorf("account ID is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, balance, created_at)
		VALUES (?, ?, ?, ?)`,
		acct.ID, acct.Name, acct.Balance.String(), acct.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %q: %w", acct.ID, ErrExists)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, balance, created_at FROM accounts WHERE id = ?`, id)
	return scanAccount(row, id)
}

func (s *SQLiteStore) GetBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	a, err := s.GetAccount(ctx, id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return a.Balance, nil
}

func (s *SQLiteStore) Deposit(ctx context.Context, id string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("deposit amount must be positive")
	}
	return s.adjustBalance(ctx, id, amount)
}

func (s *SQLiteStore) Withdraw(ctx context.Context, id string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("withdraw amount must be positive")
	}
	return s.adjustBalance(ctx, id, amount.Neg())
}

// adjustBalance applies a signed delta inside a transaction, refusing to
// take any balance below zero.
func (s *SQLiteStore) adjustBalance(ctx context.Context, id string, delta decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := adjustBalanceTx(ctx, tx, id, delta); err != nil {
		return err
	}
	return tx.Commit()
}

func adjustBalanceTx(ctx context.Context, tx *sql.Tx, id string, delta decimal.Decimal) error {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("parse balance %q: %w", raw, err)
	}

	next := balance.Add(delta)
	if next.Sign() < 0 {
		return fmt.Errorf("account %q: %w", id, ErrInsufficientFunds)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE id = ?`, next.String(), id); err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Leaderboard(ctx context.Context, limit int) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, balance, created_at FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var ranked []Account
	for rows.Next() {
		a, err := scanAccountRows(rows)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Balances are decimal strings, so ranking happens here rather than
	// in ORDER BY.
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

func (s *SQLiteStore) CreateOrder(ctx context.Context, o Order) error {
	if o.ID == "" {
		return fmt.Errorf("order ID is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
		(id, holder_id, symbol, quantity, side, kind, trigger_price, ref_price, status, settle_price, created_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.HolderID, o.Symbol, o.Quantity, string(o.Side), string(o.Kind),
		o.TriggerPrice.String(), o.RefPrice.String(), string(o.Status),
		o.SettlePrice.String(), o.CreatedAt, nullTime(o.SettledAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %q: %w", o.ID, ErrExists)
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

const orderColumns = `id, holder_id, symbol, quantity, side, kind, trigger_price, ref_price, status, settle_price, created_at, settled_at`

func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Order{}, err
		}
		return Order{}, fmt.Errorf("order %q: %w", id, ErrNotFound)
	}
	return scanOrder(rows)
}

func (s *SQLiteStore) ListPendingOrders(ctx context.Context) ([]Order, error) {
	return s.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status = ? ORDER BY id`,
		string(StatusPending))
}

func (s *SQLiteStore) ListOrdersByHolder(ctx context.Context, holderID string) ([]Order, error) {
	return s.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE holder_id = ? ORDER BY id`,
		holderID)
}

func (s *SQLiteStore) listOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteOrder(ctx context.Context, holderID, orderID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM orders WHERE id = ? AND holder_id = ? AND status = ?`,
		orderID, holderID, string(StatusPending))
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish "gone" from "not cancellable" for the caller. An
		// order held by someone else looks like it does not exist.
		o, err := s.GetOrder(ctx, orderID)
		if errors.Is(err, ErrNotFound) || (err == nil && o.HolderID != holderID) {
			return fmt.Errorf("order %q: %w", orderID, ErrNotFound)
		}
		return fmt.Errorf("order %q: %w", orderID, ErrNotPending)
	}
	return nil
}

// TryClaim is the exclusive PENDING -> CLAIMED transition. The
// conditional UPDATE makes it race-safe: exactly one concurrent caller
// observes an affected row, and a deleted order affects none.
func (s *SQLiteStore) TryClaim(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		string(StatusClaimed), orderID, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("claim order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) ApplySettlement(ctx context.Context, set Settlement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, settle_price = ?, settled_at = ?
		WHERE id = ? AND status = ?`,
		string(StatusComplete), set.Price.String(), set.SettledAt,
		set.OrderID, string(StatusClaimed))
	if err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %q: %w", set.OrderID, ErrNotClaimed)
	}

	if err := adjustBalanceTx(ctx, tx, set.HolderID, set.HolderDelta); err != nil {
		return err
	}
	if err := adjustBalanceTx(ctx, tx, set.HouseID, set.HouseDelta); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) ReleaseClaim(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		string(StatusPending), orderID, string(StatusClaimed))
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %q: %w", orderID, ErrNotClaimed)
	}
	return nil
}

func (s *SQLiteStore) Holdings(ctx context.Context, holderID string) ([]Position, error) {
	orders, err := s.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE holder_id = ? AND status = ? ORDER BY id`,
		holderID, string(StatusComplete))
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]*Position)
	for _, o := range orders {
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

// --- row scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row *sql.Row, id string) (Account, error) {
	var a Account
	var raw string
	err := row.Scan(&a.ID, &a.Name, &raw, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("account %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("scan account: %w", err)
	}
	a.Balance, err = decimal.NewFromString(raw)
	if err != nil {
		return Account{}, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return a, nil
}

func scanAccountRows(rows *sql.Rows) (Account, error) {
	var a Account
	var raw string
	if err := rows.Scan(&a.ID, &a.Name, &raw, &a.CreatedAt); err != nil {
		return Account{}, fmt.Errorf("scan account: %w", err)
	}
	var err error
	a.Balance, err = decimal.NewFromString(raw)
	if err != nil {
		return Account{}, fmt.Errorf("parse balance %q: %w", raw, err)
	}
	return a, nil
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	var side, kind, status string
	var trigger, ref, settle string
	var settledAt sql.NullTime

	err := row.Scan(&o.ID, &o.HolderID, &o.Symbol, &o.Quantity, &side, &kind,
		&trigger, &ref, &status, &settle, &o.CreatedAt, &settledAt)
	if err != nil {
		return Order{}, fmt.Errorf("scan order: %w", err)
	}

	o.Side = Side(side)
	o.Kind = Kind(kind)
	o.Status = Status(status)
	if settledAt.Valid {
		o.SettledAt = settledAt.Time
	}

	if o.TriggerPrice, err = decimal.NewFromString(trigger); err != nil {
		return Order{}, fmt.Errorf("parse trigger price %q: %w", trigger, err)
	}
	if o.RefPrice, err = decimal.NewFromString(ref); err != nil {
		return Order{}, fmt.Errorf("parse ref price %q: %w", ref, err)
	}
	if o.SettlePrice, err = decimal.NewFromString(settle); err != nil {
		return Order{}, fmt.Errorf("parse settle price %q: %w", settle, err)
	}
	return o, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	// Matching on the message keeps the driver import surface to the
	// blank registration.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
