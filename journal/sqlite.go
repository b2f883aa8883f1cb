package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}

	return &SQLiteJournal{db: db}, nil
}

// Record appends r. The row's Seq is assigned by the database.
func (j *SQLiteJournal) Record(r LedgerRow) error {
	_, err := j.db.Exec(`
		INSERT INTO ledger
		(time, symbol, action, side, quantity, fill_price, fill_value, commission, slippage,
		 realized_pnl, balance, equity, open_positions, order_id, trade_id, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Time.UTC(), r.Symbol, string(r.Action), r.Side, r.Quantity, r.FillPrice, r.FillValue,
		r.Commission, r.Slippage, r.RealizedPnL, r.Balance, r.Equity, r.OpenPositions,
		r.OrderID, r.TradeID, r.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert ledger row: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
