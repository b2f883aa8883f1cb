package risk

import (
	"fmt"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
)

type Violation struct {
	Code string
	Msg  string
}

// Decision is the outcome of applying risk to a signal. A declined signal is
// an ordinary outcome: Allowed is false and Plan is nil.
type Decision struct {
	Allowed    bool
	Violations []Violation
	Plan       *Plan
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
	d.Plan = nil
}

func (d *Decision) addf(code, format string, args ...any) {
	d.add(code, fmt.Sprintf(format, args...))
}

// Reason joins the violation codes for logging.
func (d Decision) Reason() string {
	out := ""
	for i, v := range d.Violations {
		if i > 0 {
			out += "; "
		}
		out += v.Code + ": " + v.Msg
	}
	return out
}

// ValidateTrade checks that stop and target sit on the correct sides of entry
// for the direction. target <= 0 means no target.
func ValidateTrade(side broker.Side, entry, stop, target float64) bool {
	if !(entry > 0) || !(stop > 0) {
		return false
	}
	switch {
	case side.IsLong():
		return stop < entry && (target <= 0 || target > entry)
	case side.IsShort():
		return stop > entry && (target <= 0 || target < entry)
	}
	return false
}
