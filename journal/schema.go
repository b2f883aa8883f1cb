package journal

const Schema = `
CREATE TABLE IF NOT EXISTS ledger (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL CHECK (action IN ('OPEN', 'CLOSE')),
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	fill_price REAL NOT NULL,
	fill_value REAL NOT NULL,
	commission REAL NOT NULL,
	slippage REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	balance REAL NOT NULL,
	equity REAL NOT NULL,
	open_positions INTEGER NOT NULL,
	order_id TEXT NOT NULL,
	trade_id TEXT NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_time ON ledger(time);
CREATE INDEX IF NOT EXISTS idx_ledger_symbol ON ledger(symbol);
`
