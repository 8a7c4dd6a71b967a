package ledger

// Money columns are TEXT holding decimal strings; all arithmetic happens
// in Go through shopspring/decimal so balances never pick up float drift.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	balance TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	holder_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	side TEXT NOT NULL,
	kind TEXT NOT NULL,
	trigger_price TEXT NOT NULL,
	ref_price TEXT NOT NULL,
	status TEXT NOT NULL,
	settle_price TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	settled_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_holder ON orders(holder_id);
`
