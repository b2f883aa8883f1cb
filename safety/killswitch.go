package safety

import (
	"os"
	"strconv"
	"strings"
)

// SignalFunc reports whether the external kill-switch signal called name is
// raised.
type SignalFunc func(name string) bool

// EnvSignal reads the signal from the process environment. "1", "true",
// "yes" and "on" in any case count as raised.
func EnvSignal(name string) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false
	}
	return truthy(v)
}

func truthy(s string) bool {
	s = strings.TrimSpace(s)
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	switch strings.ToLower(s) {
	case "yes", "y", "on":
		return true
	}
	return false
}

// KillSwitchEngaged reports whether trading is halted. It takes no lock and
// may be polled from any goroutine. The first observation of the external
// signal latches the halt, which then survives the signal being lowered.
func (m *Monitor) KillSwitchEngaged() bool {
	if m.halted.Load() {
		return true
	}
	if m.limits.KillSwitchSignal == "" || m.signal == nil {
		return false
	}
	if !m.signal(m.limits.KillSwitchSignal) {
		return false
	}
	if m.halted.CompareAndSwap(false, true) {
		reason := "external kill switch signal " + m.limits.KillSwitchSignal + " raised"
		m.reason.Store(&reason)
		m.log.Warn("kill switch latched", "signal", m.limits.KillSwitchSignal)
	}
	return true
}

// EngageKillSwitch halts trading until ResetDailyLimits.
func (m *Monitor) EngageKillSwitch(reason string) {
	m.haltWith(reason)
}

// HaltReason is the cause of the current halt, or "".
func (m *Monitor) HaltReason() string {
	if !m.halted.Load() {
		return ""
	}
	if r := m.reason.Load(); r != nil {
		return *r
	}
	return ""
}

func (m *Monitor) haltWith(reason string) bool {
	if !m.halted.CompareAndSwap(false, true) {
		return false
	}
	m.reason.Store(&reason)
	m.log.Error("trading halted", "reason", reason)
	return true
}
