package journal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayReproducesBalances(t *testing.T) {
	t.Parallel()

	rep, err := Replay(10000, sampleRows())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Rows)
	assert.Equal(t, 1, rep.Opens)
	assert.Equal(t, 1, rep.Closes)
	assert.Equal(t, []float64{10000, 10000.97}, rep.Balances)
	assert.Empty(t, rep.StillOpen)
	assert.InDelta(t, 0.9685005, rep.RealizedPnL, 1e-9)
}

func TestReplayDetectsDivergence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func([]LedgerRow) []LedgerRow
		field  string
	}{
		{"open moved balance", func(r []LedgerRow) []LedgerRow { r[0].Balance = 9989.99; return r }, "balance"},
		{"close balance wrong", func(r []LedgerRow) []LedgerRow { r[1].Balance = 10001; return r }, "balance"},
		{"flat equity wrong", func(r []LedgerRow) []LedgerRow { r[1].Equity = 10005; return r }, "equity"},
		{"close without open", func(r []LedgerRow) []LedgerRow { return r[1:] }, ""},
		{"double open", func(r []LedgerRow) []LedgerRow { return []LedgerRow{r[0], r[0]} }, ""},
		{"count wrong", func(r []LedgerRow) []LedgerRow { r[0].OpenPositions = 2; return r }, ""},
		{"bad action", func(r []LedgerRow) []LedgerRow { r[0].Action = "HOLD"; return r }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Replay(10000, tt.mutate(sampleRows()))
			var de *DivergenceError
			require.True(t, errors.As(err, &de), "got %v", err)
			assert.Equal(t, tt.field, de.Field)
			assert.NotEmpty(t, de.Error())
		})
	}
}

func TestReplayReportsStillOpen(t *testing.T) {
	t.Parallel()

	rep, err := Replay(10000, sampleRows()[:1])
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, rep.StillOpen)
}

func TestMemoryJournal(t *testing.T) {
	t.Parallel()

	j := NewMemory()
	for _, r := range sampleRows() {
		require.NoError(t, j.Record(r))
	}
	rows, err := j.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[1].Seq)
	assert.NoError(t, j.Close())

	var d Journal = Discard{}
	assert.NoError(t, d.Record(rows[0]))
}
