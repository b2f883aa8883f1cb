package risk

import "github.com/ttdog1020/Cryptobot-sub000/broker"

// Config holds the sizing parameters of the risk engine.
type Config struct {
	RiskFraction     float64 // 0.01 of equity per trade
	SLMultiplier     float64 // stop distance in ATRs
	TPMultiplier     float64 // target distance in ATRs
	MinPositionValue float64 // smallest notional worth opening
	MaxExposure      float64 // cap on a single position's notional as a fraction of equity
}

func DefaultConfig() Config {
	return Config{
		RiskFraction:     0.01,
		SLMultiplier:     1.5,
		TPMultiplier:     3.0,
		MinPositionValue: 10,
		MaxExposure:      0.5,
	}
}

// Signal is what the strategy layer hands to the risk engine. An empty or
// unknown Side means flat.
type Signal struct {
	Symbol   string
	Side     broker.Side
	Entry    float64
	ATR      float64
	Stop     *float64
	Target   *float64
	Strategy string

	// RiskFraction overrides Config.RiskFraction when positive.
	RiskFraction float64
}

// Plan is a sized trade ready to become an order.
type Plan struct {
	Symbol        string
	Side          broker.Side
	Size          float64
	Entry         float64
	Stop          float64
	Target        *float64
	PositionValue float64
	RiskUSD       float64
	RR            float64
	Strategy      string
	Capped        bool
}
