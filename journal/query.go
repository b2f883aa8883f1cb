package journal

import (
	"database/sql"
	"time"
)

const selectRows = `
	SELECT seq, time, symbol, action, side, quantity, fill_price, fill_value, commission, slippage,
	       realized_pnl, balance, equity, open_positions, order_id, trade_id, reason
	FROM ledger`

// Rows returns the whole ledger in insertion order.
func (j *SQLiteJournal) Rows() ([]LedgerRow, error) {
	rows, err := j.db.Query(selectRows + ` ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// RowsBetween returns rows whose time is within [start, end).
func (j *SQLiteJournal) RowsBetween(start, end time.Time) ([]LedgerRow, error) {
	rows, err := j.db.Query(selectRows+`
		WHERE time >= ? AND time < ?
		ORDER BY seq ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// RowsForSymbol returns every transition for one symbol.
func (j *SQLiteJournal) RowsForSymbol(symbol string) ([]LedgerRow, error) {
	rows, err := j.db.Query(selectRows+`
		WHERE symbol = ?
		ORDER BY seq ASC`, symbol)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]LedgerRow, error) {
	defer rows.Close()

	var out []LedgerRow
	for rows.Next() {
		var (
			r      LedgerRow
			action string
		)
		if err := rows.Scan(
			&r.Seq,
			&r.Time,
			&r.Symbol,
			&action,
			&r.Side,
			&r.Quantity,
			&r.FillPrice,
			&r.FillValue,
			&r.Commission,
			&r.Slippage,
			&r.RealizedPnL,
			&r.Balance,
			&r.Equity,
			&r.OpenPositions,
			&r.OrderID,
			&r.TradeID,
			&r.Reason,
		); err != nil {
			return nil, err
		}
		r.Action = Action(action)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
