package journal

import (
	"fmt"
	"math"
	"sort"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
)

// cashTolerance absorbs float formatting noise in stored balances; replayed
// balances are rounded to cents, so anything below half a cent is equal.
const cashTolerance = 0.004

// DivergenceError reports the first row whose stored values disagree with the
// replayed ones.
type DivergenceError struct {
	Seq   int64
	Field string
	Want  float64
	Got   float64
	Msg   string
}

func (e *DivergenceError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("ledger row %d: %s", e.Seq, e.Msg)
	}
	return fmt.Sprintf("ledger row %d: %s replayed to %.2f, ledger has %.2f", e.Seq, e.Field, e.Want, e.Got)
}

// ReplayReport summarises a successful replay.
type ReplayReport struct {
	Rows         int
	Opens        int
	Closes       int
	FinalBalance float64
	RealizedPnL  float64
	Balances     []float64
	StillOpen    []string
}

// Replay re-derives the balance after every row from startBalance and checks
// it against the ledger. OPEN rows must leave balance untouched, CLOSE rows
// must match an earlier OPEN on the same symbol, and a flat book must have
// equity equal to balance.
func Replay(startBalance float64, rows []LedgerRow) (ReplayReport, error) {
	rep := ReplayReport{Rows: len(rows), Balances: make([]float64, 0, len(rows))}
	balance := broker.RoundCash(startBalance)
	open := map[string]struct{}{}

	for i, r := range rows {
		seq := r.Seq
		if seq == 0 {
			seq = int64(i + 1)
		}

		switch r.Action {
		case ActionOpen:
			if _, dup := open[r.Symbol]; dup {
				return rep, &DivergenceError{Seq: seq, Msg: "second OPEN for " + r.Symbol + " without CLOSE"}
			}
			open[r.Symbol] = struct{}{}
			rep.Opens++

		case ActionClose:
			if _, ok := open[r.Symbol]; !ok {
				return rep, &DivergenceError{Seq: seq, Msg: "CLOSE for " + r.Symbol + " without OPEN"}
			}
			delete(open, r.Symbol)
			balance = broker.SettleClose(balance, r.RealizedPnL, r.Commission, r.Slippage)
			rep.RealizedPnL += r.RealizedPnL - r.Commission - r.Slippage
			rep.Closes++

		default:
			return rep, &DivergenceError{Seq: seq, Msg: fmt.Sprintf("unknown action %q", r.Action)}
		}

		if math.Abs(balance-r.Balance) > cashTolerance {
			return rep, &DivergenceError{Seq: seq, Field: "balance", Want: balance, Got: r.Balance}
		}
		if r.OpenPositions != len(open) {
			return rep, &DivergenceError{
				Seq: seq,
				Msg: fmt.Sprintf("open positions replayed to %d, ledger has %d", len(open), r.OpenPositions),
			}
		}
		if len(open) == 0 && math.Abs(r.Equity-r.Balance) > cashTolerance {
			return rep, &DivergenceError{Seq: seq, Field: "equity", Want: r.Balance, Got: r.Equity}
		}
		rep.Balances = append(rep.Balances, balance)
	}

	rep.FinalBalance = balance
	for s := range open {
		rep.StillOpen = append(rep.StillOpen, s)
	}
	sort.Strings(rep.StillOpen)
	return rep, nil
}
