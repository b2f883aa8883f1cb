package broker

import "github.com/shopspring/decimal"

// SettleClose applies a closing fill to a cash balance and rounds to cents.
// It is the only balance arithmetic in the system; the simulated venue and
// the ledger replay both go through it so a replay reproduces the venue
// exactly.
func SettleClose(balance, realizedPnL, commission, slippage float64) float64 {
	return decimal.NewFromFloat(balance).
		Add(decimal.NewFromFloat(realizedPnL)).
		Sub(decimal.NewFromFloat(commission)).
		Sub(decimal.NewFromFloat(slippage)).
		Round(2).
		InexactFloat64()
}

// RoundCash rounds v to cents.
func RoundCash(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
