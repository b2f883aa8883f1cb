package sim

import "github.com/ttdog1020/Cryptobot-sub000/broker"

// exitReason checks the stop before the target, so a bar that crosses both
// is booked as a stop.
func exitReason(p *broker.Position, price float64) string {
	switch {
	case p.HitStopLoss(price):
		return ReasonStopLoss
	case p.HitTakeProfit(price):
		return ReasonTakeProfit
	}
	return ""
}
