// Package safety enforces the account-wide limits: per-trade risk, open
// position count, total exposure and the drawdown halt. The halt is sticky
// and only an explicit ResetDailyLimits clears it.
package safety

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
	"github.com/ttdog1020/Cryptobot-sub000/internal/logging"
)

// drawdownTolerance keeps a drawdown that equals the limit on paper from
// slipping under it in floating point.
const drawdownTolerance = 1e-12

type Limits struct {
	MaxDailyLossPct    float64
	MaxRiskPerTradePct float64
	MaxExposurePct     float64
	MaxOpenTrades      int
	KillSwitchSignal   string
}

// DefaultLimits mirrors the config defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxDailyLossPct:    0.05,
		MaxRiskPerTradePct: 0.02,
		MaxExposurePct:     0.5,
		MaxOpenTrades:      5,
		KillSwitchSignal:   "TRADING_KILL_SWITCH",
	}
}

type shadowPosition struct {
	side  broker.Side
	value float64
}

// Monitor guards one account. Its open-position map is its own bookkeeping
// and is not reconciled against any venue.
type Monitor struct {
	limits Limits
	signal SignalFunc
	log    *slog.Logger

	halted atomic.Bool
	reason atomic.Pointer[string]

	mu        sync.Mutex
	starting  float64
	peak      float64
	current   float64
	positions map[string]shadowPosition
}

type Option func(*Monitor)

// WithSignal replaces the environment lookup used for the external signal.
func WithSignal(fn SignalFunc) Option {
	return func(m *Monitor) { m.signal = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

func NewMonitor(limits Limits, startingEquity float64, opts ...Option) *Monitor {
	m := &Monitor{
		limits:    limits,
		signal:    EnvSignal,
		starting:  startingEquity,
		peak:      startingEquity,
		current:   startingEquity,
		positions: make(map[string]shadowPosition),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = logging.OrDiscard(m.log).With("component", "safety")
	return m
}

func (m *Monitor) Limits() Limits { return m.limits }

// CheckPreTrade returns a *Violation when order must not be placed. An order
// that closes a tracked position is exempt from the count and exposure caps.
func (m *Monitor) CheckPreTrade(order broker.OrderRequest, riskAmount, positionValue float64) error {
	if m.KillSwitchEngaged() {
		return &Violation{Code: CodeKillSwitch, Msg: m.HaltReason(), Err: ErrKillSwitch}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if maxRisk := m.current * m.limits.MaxRiskPerTradePct; riskAmount > maxRisk {
		return violationf(CodeRiskPerTrade, "risk %.2f exceeds %.2f (%.2f%% of equity %.2f)",
			riskAmount, maxRisk, m.limits.MaxRiskPerTradePct*100, m.current)
	}

	if m.closesLocked(order) {
		return nil
	}

	if len(m.positions) >= m.limits.MaxOpenTrades {
		return violationf(CodeMaxOpenTrades, "%d positions open, limit %d", len(m.positions), m.limits.MaxOpenTrades)
	}

	exposure := m.exposureLocked()
	if maxExp := m.current * m.limits.MaxExposurePct; exposure+positionValue > maxExp {
		return violationf(CodeMaxExposure, "exposure %.2f + %.2f exceeds %.2f", exposure, positionValue, maxExp)
	}
	return nil
}

// CheckPostTrade records newEquity and halts trading once the drawdown from
// peak equity reaches MaxDailyLossPct. It returns the Violation that caused
// a new halt, and nil otherwise.
func (m *Monitor) CheckPostTrade(newEquity float64) error {
	m.mu.Lock()
	m.current = newEquity
	if newEquity > m.peak {
		m.peak = newEquity
	}
	dd := m.drawdownLocked()
	peak := m.peak
	m.mu.Unlock()

	if dd+drawdownTolerance < m.limits.MaxDailyLossPct {
		return nil
	}
	v := violationf(CodeDailyLoss, "drawdown %.2f%% from peak %.2f reached limit %.2f%%",
		dd*100, peak, m.limits.MaxDailyLossPct*100)
	v.Err = ErrKillSwitch
	if !m.haltWith(v.Msg) {
		return nil
	}
	return v
}

// IsClosing reports whether order runs against a tracked position on its
// symbol and so closes it.
func (m *Monitor) IsClosing(order broker.OrderRequest) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closesLocked(order)
}

func (m *Monitor) closesLocked(order broker.OrderRequest) bool {
	pos, ok := m.positions[order.Symbol]
	return ok && pos.side.Direction() != order.Side.Direction()
}

// RecordPositionOpen adds symbol to the exposure bookkeeping.
func (m *Monitor) RecordPositionOpen(symbol string, side broker.Side, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[symbol] = shadowPosition{side: side.Normalize(), value: value}
}

func (m *Monitor) RecordPositionClose(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, symbol)
}

// ResetDailyLimits clears the halt and rebases the drawdown baseline on
// newStartingEquity.
func (m *Monitor) ResetDailyLimits(newStartingEquity float64) {
	m.mu.Lock()
	m.starting = newStartingEquity
	m.peak = newStartingEquity
	m.current = newStartingEquity
	m.mu.Unlock()

	prev := m.HaltReason()
	m.reason.Store(nil)
	m.halted.Store(false)
	m.log.Warn("daily limits reset", "starting_equity", newStartingEquity, "cleared_halt", prev)
}

func (m *Monitor) exposureLocked() float64 {
	var total float64
	for _, p := range m.positions {
		total += p.value
	}
	return total
}

func (m *Monitor) drawdownLocked() float64 {
	if m.peak <= 0 {
		return 0
	}
	return (m.peak - m.current) / m.peak
}

// Status is a monitoring snapshot.
type Status struct {
	KillSwitch     bool
	HaltReason     string
	StartingEquity float64
	PeakEquity     float64
	CurrentEquity  float64
	Drawdown       float64
	DailyPnL       float64
	DailyPnLPct    float64
	Exposure       float64
	ExposurePct    float64
	OpenPositions  int
	Limits         Limits
}

func (s Status) String() string {
	state := "active"
	if s.KillSwitch {
		state = "HALTED (" + s.HaltReason + ")"
	}
	return fmt.Sprintf("trading %s, equity %.2f, daily pnl %.2f (%.2f%%), exposure %.2f, open %d",
		state, s.CurrentEquity, s.DailyPnL, s.DailyPnLPct*100, s.Exposure, s.OpenPositions)
}

func (m *Monitor) Status() Status {
	engaged := m.KillSwitchEngaged()
	reason := m.HaltReason()

	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		KillSwitch:     engaged,
		HaltReason:     reason,
		StartingEquity: m.starting,
		PeakEquity:     m.peak,
		CurrentEquity:  m.current,
		Drawdown:       m.drawdownLocked(),
		DailyPnL:       m.current - m.starting,
		Exposure:       m.exposureLocked(),
		OpenPositions:  len(m.positions),
		Limits:         m.limits,
	}
	if m.starting > 0 {
		st.DailyPnLPct = st.DailyPnL / m.starting
	}
	if m.current > 0 {
		st.ExposurePct = st.Exposure / m.current
	}
	return st
}
