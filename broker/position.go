package broker

import "time"

// Position is an open holding. A symbol has at most one at a time.
type Position struct {
	Symbol       string
	Side         Side
	Quantity     float64
	EntryPrice   float64
	StopLoss     *float64
	TakeProfit   *float64
	CurrentPrice float64
	HighestPrice float64
	Strategy     string
	OrderID      string
	OpenedAt     time.Time

	// costs booked at open and charged to balance when the position closes
	EntryCommission float64
	EntrySlippage   float64
}

func (p Position) UnrealizedPnL() float64 {
	return p.Side.Direction() * (p.CurrentPrice - p.EntryPrice) * p.Quantity
}

// Value is the marked notional of the position.
func (p Position) Value() float64 { return p.CurrentPrice * p.Quantity }

// HitStopLoss reports whether price has crossed the stop for p's direction.
func (p Position) HitStopLoss(price float64) bool {
	if p.StopLoss == nil {
		return false
	}
	if p.Side.IsLong() {
		return price <= *p.StopLoss
	}
	return price >= *p.StopLoss
}

// HitTakeProfit reports whether price has crossed the target for p's direction.
func (p Position) HitTakeProfit(price float64) bool {
	if p.TakeProfit == nil {
		return false
	}
	if p.Side.IsLong() {
		return price >= *p.TakeProfit
	}
	return price <= *p.TakeProfit
}

// Clone returns a copy that shares no pointers with p.
func (p Position) Clone() Position {
	if p.StopLoss != nil {
		p.StopLoss = Float(*p.StopLoss)
	}
	if p.TakeProfit != nil {
		p.TakeProfit = Float(*p.TakeProfit)
	}
	return p
}

// ClosedTrade is the immutable record appended when a position closes.
type ClosedTrade struct {
	TradeID      string
	Symbol       string
	Side         Side
	Quantity     float64
	EntryPrice   float64
	ExitPrice    float64
	GrossPnL     float64
	Commission   float64
	Slippage     float64
	NetPnL       float64
	OpenedAt     time.Time
	ClosedAt     time.Time
	Strategy     string
	ExitReason   string
	BalanceAfter float64
}
