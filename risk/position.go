package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
)

// Epsilon is the smallest entry/stop distance the sizer accepts.
const Epsilon = 1e-9

var (
	ErrInvalidEquity       = errors.New("equity must be positive")
	ErrInvalidEntry        = errors.New("entry price must be positive")
	ErrInvalidStop         = errors.New("stop price must be positive")
	ErrStopTooClose        = errors.New("entry and stop are too close")
	ErrInvalidRiskFraction = errors.New("risk fraction must be in (0, 1]")
	ErrInvalidATR          = errors.New("atr must be positive")
	ErrInvalidSide         = errors.New("side must be long or short")
)

// PositionSize returns the units that lose riskFraction of equity when price
// moves from entry to stop.
func PositionSize(equity, entry, stop, riskFraction float64) (float64, error) {
	switch {
	case !(equity > 0):
		return 0, fmt.Errorf("position size: %w (%.8g)", ErrInvalidEquity, equity)
	case !(entry > 0):
		return 0, fmt.Errorf("position size: %w (%.8g)", ErrInvalidEntry, entry)
	case !(stop > 0):
		return 0, fmt.Errorf("position size: %w (%.8g)", ErrInvalidStop, stop)
	case !(riskFraction > 0) || riskFraction > 1:
		return 0, fmt.Errorf("position size: %w (%.8g)", ErrInvalidRiskFraction, riskFraction)
	}

	dist := math.Abs(entry - stop)
	if dist < Epsilon {
		return 0, fmt.Errorf("position size: %w (%.8g)", ErrStopTooClose, dist)
	}
	return equity * riskFraction / dist, nil
}

// StopTakeFromATR places the stop slMult ATRs against the trade and the
// target tpMult ATRs in its favour.
func StopTakeFromATR(entry, atr float64, side broker.Side, slMult, tpMult float64) (stop, target float64, err error) {
	if !(atr > 0) {
		return 0, 0, fmt.Errorf("stop/take: %w (%.8g)", ErrInvalidATR, atr)
	}
	if !(entry > 0) {
		return 0, 0, fmt.Errorf("stop/take: %w (%.8g)", ErrInvalidEntry, entry)
	}

	switch {
	case side.IsLong():
		stop = entry - atr*slMult
		target = entry + atr*tpMult
	case side.IsShort():
		stop = entry + atr*slMult
		target = entry - atr*tpMult
	default:
		return 0, 0, fmt.Errorf("stop/take: %w (%q)", ErrInvalidSide, side)
	}

	if !(stop > 0) {
		return 0, 0, fmt.Errorf("stop/take: %w (%.8g)", ErrInvalidStop, stop)
	}
	return stop, target, nil
}
