package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVJournalHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.csv")
	j, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()

	header, err := csv.NewReader(fh).Read()
	require.NoError(t, err)
	assert.Equal(t, csvHeader, header)
}

func TestCSVRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.csv")
	j, err := NewCSV(path)
	require.NoError(t, err)

	want := sampleRows()
	for _, r := range want {
		require.NoError(t, j.Record(r))
	}
	require.NoError(t, j.Close())

	got, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, got, len(want))

	for i := range want {
		want[i].Seq = int64(i + 1)
		assert.True(t, want[i].Time.Equal(got[i].Time))
		got[i].Time = want[i].Time
		assert.Equal(t, want[i], got[i])
	}

	rep, err := Replay(10000, got)
	require.NoError(t, err)
	assert.Equal(t, 10000.97, rep.FinalBalance)
}

func TestReadCSVRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.csv")
	j, err := NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = fh.WriteString("1,2024-01-02T03:04:05Z,BTC,HOLD,LONG,1,1,1,0,0,0,1,1,0,o,t,r\n")
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	_, err = ReadCSV(path)
	assert.Error(t, err)

	_, err = ReadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
