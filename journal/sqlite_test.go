package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLiteJournal, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func sampleRows() []LedgerRow {
	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return []LedgerRow{
		{
			Time: t0, Symbol: "BTCUSDT", Action: ActionOpen, Side: "LONG",
			Quantity: 0.1, FillPrice: 100.05, FillValue: 10.005, Commission: 0.010005, Slippage: 0.005,
			Balance: 10000, Equity: 9999.995, OpenPositions: 1, OrderID: "ord_1",
		},
		{
			Time: t0.Add(time.Hour), Symbol: "BTCUSDT", Action: ActionClose, Side: "SHORT",
			Quantity: 0.1, FillPrice: 109.945, FillValue: 10.9945, Commission: 0.0209995, Slippage: 0.0055,
			RealizedPnL: 0.995, Balance: 10000.97, Equity: 10000.97, OpenPositions: 0,
			OrderID: "ord_2", TradeID: "trd_1", Reason: "TakeProfit",
		},
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='ledger'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "ledger", name)
}

func TestSQLiteRecordAndRows(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	for _, r := range sampleRows() {
		require.NoError(t, j.Record(r))
	}

	got, err := j.Rows()
	require.NoError(t, err)
	require.Len(t, got, 2)

	want := sampleRows()
	for i := range got {
		assert.Equal(t, int64(i+1), got[i].Seq)
		assert.True(t, got[i].Time.Equal(want[i].Time))
		assert.Equal(t, want[i].Symbol, got[i].Symbol)
		assert.Equal(t, want[i].Action, got[i].Action)
		assert.InDelta(t, want[i].FillPrice, got[i].FillPrice, 1e-12)
		assert.InDelta(t, want[i].Balance, got[i].Balance, 1e-9)
		assert.Equal(t, want[i].OpenPositions, got[i].OpenPositions)
		assert.Equal(t, want[i].Reason, got[i].Reason)
	}

	_, err = Replay(10000, got)
	assert.NoError(t, err)
}

func TestSQLiteQueries(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	for _, r := range sampleRows() {
		require.NoError(t, j.Record(r))
	}
	require.NoError(t, j.Record(LedgerRow{
		Time: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Symbol: "ETHUSDT", Action: ActionOpen,
		Side: "LONG", Quantity: 1, FillPrice: 2000, Balance: 10000.97, Equity: 10000.97, OpenPositions: 1,
	}))

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows, err := j.RowsBetween(day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = j.RowsForSymbol("ETHUSDT")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].Seq)
}
