package risk

import (
	"log/slog"

	"github.com/ttdog1020/Cryptobot-sub000/internal/logging"
)

// Engine turns signals into sized plans. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	cfg Config
	log *slog.Logger
}

func NewEngine(cfg Config, log *slog.Logger) *Engine {
	return &Engine{cfg: cfg, log: logging.OrDiscard(log).With("component", "risk")}
}

func (e *Engine) Config() Config { return e.cfg }

// ApplyRiskToSignal sizes sig against equity. Flat signals, missing
// volatility and positions below the minimum notional come back as a
// declined Decision, not an error.
func (e *Engine) ApplyRiskToSignal(sig Signal, equity float64) Decision {
	d := Decision{Allowed: true}

	if !sig.Side.Valid() {
		d.add("FLAT_SIGNAL", "no actionable direction")
		return d
	}
	side := sig.Side.Normalize()

	frac := e.cfg.RiskFraction
	if sig.RiskFraction > 0 {
		frac = sig.RiskFraction
	}

	var (
		stop   float64
		target *float64
	)
	if sig.Stop != nil {
		stop = *sig.Stop
		target = sig.Target
	} else {
		s, tp, err := StopTakeFromATR(sig.Entry, sig.ATR, side, e.cfg.SLMultiplier, e.cfg.TPMultiplier)
		if err != nil {
			d.add("NO_VOLATILITY", err.Error())
			e.decline(sig, d)
			return d
		}
		stop = s
		target = &tp
		if sig.Target != nil {
			target = sig.Target
		}
	}

	tp := 0.0
	if target != nil {
		tp = *target
	}
	if !ValidateTrade(side, sig.Entry, stop, tp) {
		d.addf("BAD_LEVELS", "stop %.8g / target %.8g inconsistent with %s entry %.8g", stop, tp, side, sig.Entry)
		e.decline(sig, d)
		return d
	}

	size, err := PositionSize(equity, sig.Entry, stop, frac)
	if err != nil {
		d.add("SIZING", err.Error())
		e.decline(sig, d)
		return d
	}

	value := size * sig.Entry
	if value < e.cfg.MinPositionValue {
		d.addf("BELOW_MIN_SIZE", "position value %.2f below minimum %.2f", value, e.cfg.MinPositionValue)
		e.decline(sig, d)
		return d
	}

	capped := false
	if e.cfg.MaxExposure > 0 {
		limit := equity * e.cfg.MaxExposure
		if value > limit {
			size = limit / sig.Entry
			value = size * sig.Entry
			capped = true
		}
	}

	d.Plan = &Plan{
		Symbol:        sig.Symbol,
		Side:          side,
		Size:          size,
		Entry:         sig.Entry,
		Stop:          stop,
		Target:        target,
		PositionValue: value,
		RiskUSD:       PlannedRiskUSD(size, sig.Entry, stop),
		RR:            RR(sig.Entry, stop, tp),
		Strategy:      sig.Strategy,
		Capped:        capped,
	}
	return d
}

func (e *Engine) decline(sig Signal, d Decision) {
	e.log.Debug("signal declined",
		"symbol", sig.Symbol,
		"side", sig.Side,
		"entry", sig.Entry,
		"reason", d.Reason(),
	)
}
