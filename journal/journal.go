// Package journal is the append-only ledger of position state transitions.
// Every OPEN and CLOSE the venue performs becomes one LedgerRow; replaying the
// rows in order reproduces the balance sequence exactly.
package journal

import (
	"time"
)

type Action string

const (
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
)

// LedgerRow is one state transition. Commission and Slippage on a CLOSE row
// are the amounts charged to balance by that close; on an OPEN row they are
// informational and charged later by the matching close.
type LedgerRow struct {
	Seq           int64
	Time          time.Time
	Symbol        string
	Action        Action
	Side          string
	Quantity      float64
	FillPrice     float64
	FillValue     float64
	Commission    float64
	Slippage      float64
	RealizedPnL   float64
	Balance       float64
	Equity        float64
	OpenPositions int
	OrderID       string
	TradeID       string
	Reason        string
}

type Journal interface {
	Record(LedgerRow) error
	Close() error
}

// Reader is implemented by journals that can return their rows in order.
type Reader interface {
	Rows() ([]LedgerRow, error)
}
