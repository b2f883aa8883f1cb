package sim

import (
	"sort"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
)

// Stats summarises the venue's trading so far.
type Stats struct {
	Balance       float64
	Equity        float64
	PeakEquity    float64
	MaxDrawdown   float64
	RealizedPnL   float64
	TotalTrades   int
	Wins          int
	Losses        int
	OpenPositions int
}

// WinRate is wins over closed trades, or 0 before the first close.
func (s Stats) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TotalTrades)
}

func (v *Venue) Balance() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance
}

// Equity is balance plus the unrealized PnL of every open position.
func (v *Venue) Equity() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.equityLocked()
}

func (v *Venue) PeakEquity() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.peakEquity
}

// Position returns a copy of the open position on symbol.
func (v *Venue) Position(symbol string) (broker.Position, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, ok := v.positions[symbol]
	if !ok {
		return broker.Position{}, false
	}
	return p.Clone(), true
}

// Positions returns copies of the open positions ordered by symbol.
func (v *Venue) Positions() []broker.Position {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]broker.Position, 0, len(v.positions))
	for _, p := range v.positions {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Trades returns the closed-trade history, oldest first.
func (v *Venue) Trades() []broker.ClosedTrade {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]broker.ClosedTrade, len(v.trades))
	copy(out, v.trades)
	return out
}

func (v *Venue) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()

	return Stats{
		Balance:       v.balance,
		Equity:        v.equityLocked(),
		PeakEquity:    v.peakEquity,
		MaxDrawdown:   v.maxDD,
		RealizedPnL:   v.realizedPnL,
		TotalTrades:   len(v.trades),
		Wins:          v.wins,
		Losses:        v.losses,
		OpenPositions: len(v.positions),
	}
}

func (v *Venue) Account() broker.Account {
	v.mu.Lock()
	defer v.mu.Unlock()

	return broker.Account{
		ID:            v.accountID,
		Balance:       v.balance,
		Equity:        v.equityLocked(),
		PeakEquity:    v.peakEquity,
		RealizedPnL:   v.realizedPnL,
		OpenPositions: len(v.positions),
	}
}
