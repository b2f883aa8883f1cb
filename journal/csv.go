package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

var csvHeader = []string{
	"seq", "time", "symbol", "action", "side", "quantity", "fill_price", "fill_value",
	"commission", "slippage", "realized_pnl", "balance", "equity", "open_positions",
	"order_id", "trade_id", "reason",
}

type CSVJournal struct {
	w   *csv.Writer
	f   *os.File
	seq int64
}

func NewCSV(path string) (*CSVJournal, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		_ = f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &CSVJournal{w: w, f: f}, nil
}

// Record appends r and flushes so the file is a usable audit trail even if
// the process dies.
func (j *CSVJournal) Record(r LedgerRow) error {
	j.seq++
	err := j.w.Write([]string{
		strconv.FormatInt(j.seq, 10),
		r.Time.UTC().Format(time.RFC3339Nano),
		r.Symbol,
		string(r.Action),
		r.Side,
		f(r.Quantity),
		f(r.FillPrice),
		f(r.FillValue),
		f(r.Commission),
		f(r.Slippage),
		f(r.RealizedPnL),
		f(r.Balance),
		f(r.Equity),
		strconv.Itoa(r.OpenPositions),
		r.OrderID,
		r.TradeID,
		r.Reason,
	})
	if err != nil {
		return err
	}

	j.w.Flush()
	return j.w.Error()
}

func (j *CSVJournal) Close() error {
	j.w.Flush()
	if err := j.w.Error(); err != nil {
		return err
	}
	return j.f.Close()
}

// ReadCSV loads a ledger written by CSVJournal.
func ReadCSV(path string) ([]LedgerRow, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = len(csvHeader)

	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var out []LedgerRow
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, row)
	}
	return out, nil
}

func parseRecord(rec []string) (LedgerRow, error) {
	var (
		row LedgerRow
		err error
	)
	p := &fieldParser{}

	row.Seq = p.int64(rec[0])
	row.Time, err = time.Parse(time.RFC3339Nano, rec[1])
	if err != nil {
		return row, err
	}
	row.Symbol = rec[2]
	row.Action = Action(rec[3])
	row.Side = rec[4]
	row.Quantity = p.float(rec[5])
	row.FillPrice = p.float(rec[6])
	row.FillValue = p.float(rec[7])
	row.Commission = p.float(rec[8])
	row.Slippage = p.float(rec[9])
	row.RealizedPnL = p.float(rec[10])
	row.Balance = p.float(rec[11])
	row.Equity = p.float(rec[12])
	row.OpenPositions = int(p.int64(rec[13]))
	row.OrderID = rec[14]
	row.TradeID = rec[15]
	row.Reason = rec[16]

	if row.Action != ActionOpen && row.Action != ActionClose {
		return row, fmt.Errorf("unknown action %q", row.Action)
	}
	return row, p.err
}

// fieldParser keeps the first conversion error.
type fieldParser struct{ err error }

func (p *fieldParser) float(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *fieldParser) int64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

// f formats with the shortest representation that round-trips, so a ledger
// read back from disk replays to the same cents.
func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
