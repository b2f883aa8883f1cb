package risk

import "math"

// PlannedRiskUSD is the account-currency loss if the stop is hit.
func PlannedRiskUSD(units, entry, stop float64) float64 {
	return math.Abs(units) * math.Abs(entry-stop)
}

// RR is the reward-to-risk ratio of a trade, 0 when there is no risk distance
// or no target.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 || takeProfit == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}

// RiskPct expresses a dollar risk as a fraction of equity.
func RiskPct(plannedRiskUSD, equity float64) float64 {
	if equity <= 0 {
		return math.Inf(1)
	}
	return plannedRiskUSD / equity
}
