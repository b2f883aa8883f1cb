package safety

import (
	"fmt"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
)

// ErrKillSwitch is the halt every order meets once trading is stopped.
var ErrKillSwitch = broker.ErrKillSwitch

const (
	CodeKillSwitch    = "KILL_SWITCH"
	CodeRiskPerTrade  = "RISK_PER_TRADE"
	CodeMaxOpenTrades = "MAX_OPEN_TRADES"
	CodeMaxExposure   = "MAX_EXPOSURE"
	CodeDailyLoss     = "MAX_DAILY_LOSS"
)

// Violation rejects one order because a limit would be breached.
type Violation struct {
	Code string
	Msg  string
	Err  error
}

func (v *Violation) Error() string {
	return fmt.Sprintf("safety violation %s: %s", v.Code, v.Msg)
}

func (v *Violation) Unwrap() error { return v.Err }

func violationf(code, format string, args ...any) *Violation {
	return &Violation{Code: code, Msg: fmt.Sprintf(format, args...)}
}
