package safety

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
)

func noSignal(string) bool { return false }

func newMonitor(t *testing.T, equity float64, mutate func(*Limits)) *Monitor {
	t.Helper()
	l := DefaultLimits()
	if mutate != nil {
		mutate(&l)
	}
	return NewMonitor(l, equity, WithSignal(noSignal))
}

func buy(t *testing.T, symbol string) broker.OrderRequest {
	t.Helper()
	o, err := broker.MarketOrder(symbol, broker.Buy, 1)
	require.NoError(t, err)
	return o
}

func violationCode(t *testing.T, err error) string {
	t.Helper()
	var v *Violation
	require.True(t, errors.As(err, &v), "got %v", err)
	return v.Code
}

func TestDrawdownHaltIsStickyAndInclusive(t *testing.T) {
	t.Parallel()

	m := newMonitor(t, 1000, func(l *Limits) { l.MaxDailyLossPct = 0.02 })

	require.NoError(t, m.CheckPostTrade(1050))
	assert.False(t, m.KillSwitchEngaged())

	// 21 / 1050 is exactly the limit
	err := m.CheckPostTrade(1029)
	require.Error(t, err)
	assert.Equal(t, CodeDailyLoss, violationCode(t, err))
	assert.True(t, errors.Is(err, ErrKillSwitch))
	assert.True(t, m.KillSwitchEngaged())
	assert.Contains(t, m.HaltReason(), "drawdown")

	require.NoError(t, m.CheckPostTrade(1200))
	assert.True(t, m.KillSwitchEngaged())

	err = m.CheckPreTrade(buy(t, "BTCUSDT"), 0, 0)
	assert.Equal(t, CodeKillSwitch, violationCode(t, err))
	assert.True(t, errors.Is(err, broker.ErrKillSwitch))
}

func TestDrawdownBelowLimitDoesNotHalt(t *testing.T) {
	t.Parallel()

	m := newMonitor(t, 1000, func(l *Limits) { l.MaxDailyLossPct = 0.02 })
	require.NoError(t, m.CheckPostTrade(1050))
	require.NoError(t, m.CheckPostTrade(1029.5))
	assert.False(t, m.KillSwitchEngaged())
}

func TestResetDailyLimitsClearsHalt(t *testing.T) {
	t.Parallel()

	m := newMonitor(t, 1000, nil)
	m.EngageKillSwitch("operator")
	assert.True(t, m.KillSwitchEngaged())
	assert.Equal(t, "operator", m.HaltReason())
	assert.Error(t, m.CheckPreTrade(buy(t, "BTCUSDT"), 0, 0))

	m.ResetDailyLimits(900)
	assert.False(t, m.KillSwitchEngaged())
	assert.Empty(t, m.HaltReason())
	assert.NoError(t, m.CheckPreTrade(buy(t, "BTCUSDT"), 1, 1))

	st := m.Status()
	assert.Equal(t, 900.0, st.StartingEquity)
	assert.Equal(t, 900.0, st.PeakEquity)
}

func TestExternalSignalLatches(t *testing.T) {
	t.Parallel()

	var raised atomic.Bool
	m := NewMonitor(DefaultLimits(), 1000, WithSignal(func(name string) bool {
		return name == "TRADING_KILL_SWITCH" && raised.Load()
	}))

	assert.False(t, m.KillSwitchEngaged())
	raised.Store(true)
	assert.True(t, m.KillSwitchEngaged())
	assert.Contains(t, m.HaltReason(), "TRADING_KILL_SWITCH")

	raised.Store(false)
	assert.True(t, m.KillSwitchEngaged())

	m.ResetDailyLimits(1000)
	assert.False(t, m.KillSwitchEngaged())
}

func TestEnvSignal(t *testing.T) {
	t.Setenv("TEST_KILL_SWITCH", "yes")
	assert.True(t, EnvSignal("TEST_KILL_SWITCH"))

	t.Setenv("TEST_KILL_SWITCH", "0")
	assert.False(t, EnvSignal("TEST_KILL_SWITCH"))

	assert.False(t, EnvSignal("TEST_KILL_SWITCH_UNSET"))

	for _, s := range []string{"1", "true", "TRUE", " on ", "y"} {
		assert.True(t, truthy(s), s)
	}
	for _, s := range []string{"", "false", "off", "no", "maybe"} {
		assert.False(t, truthy(s), s)
	}
}

func TestEnvSignalDrivesMonitor(t *testing.T) {
	t.Setenv("TEST_MONITOR_HALT", "true")

	l := DefaultLimits()
	l.KillSwitchSignal = "TEST_MONITOR_HALT"
	m := NewMonitor(l, 1000)
	assert.True(t, m.KillSwitchEngaged())
}

func TestCheckPreTradeRiskPerTrade(t *testing.T) {
	t.Parallel()

	m := newMonitor(t, 1000, nil)

	assert.NoError(t, m.CheckPreTrade(buy(t, "BTCUSDT"), 20, 100))
	err := m.CheckPreTrade(buy(t, "BTCUSDT"), 20.01, 100)
	assert.Equal(t, CodeRiskPerTrade, violationCode(t, err))
	assert.False(t, m.KillSwitchEngaged())
}

func TestCheckPreTradeOpenTrades(t *testing.T) {
	t.Parallel()

	m := newMonitor(t, 1000, func(l *Limits) { l.MaxOpenTrades = 2 })
	m.RecordPositionOpen("BTCUSDT", broker.Buy, 10)
	m.RecordPositionOpen("ETHUSDT", broker.Sell, 10)

	err := m.CheckPreTrade(buy(t, "SOLUSDT"), 1, 10)
	assert.Equal(t, CodeMaxOpenTrades, violationCode(t, err))

	// closing ETHUSDT (short) is allowed at the cap
	assert.NoError(t, m.CheckPreTrade(buy(t, "ETHUSDT"), 0, 10))

	m.RecordPositionClose("ETHUSDT")
	assert.NoError(t, m.CheckPreTrade(buy(t, "SOLUSDT"), 1, 10))
}

func TestIsClosingFollowsShadowSide(t *testing.T) {
	t.Parallel()

	m := newMonitor(t, 1000, nil)
	sell, err := broker.MarketOrder("BTCUSDT", broker.Sell, 1)
	require.NoError(t, err)

	assert.False(t, m.IsClosing(sell))
	assert.False(t, m.IsClosing(buy(t, "BTCUSDT")))

	m.RecordPositionOpen("BTCUSDT", broker.Long, 100)
	assert.True(t, m.IsClosing(sell))
	assert.False(t, m.IsClosing(buy(t, "BTCUSDT")))
	assert.False(t, m.IsClosing(buy(t, "ETHUSDT")))

	m.RecordPositionClose("BTCUSDT")
	assert.False(t, m.IsClosing(sell))
}

func TestCheckPreTradeExposure(t *testing.T) {
	t.Parallel()

	m := newMonitor(t, 1000, nil)
	m.RecordPositionOpen("BTCUSDT", broker.Long, 300)

	assert.NoError(t, m.CheckPreTrade(buy(t, "ETHUSDT"), 1, 200))
	err := m.CheckPreTrade(buy(t, "ETHUSDT"), 1, 200.01)
	assert.Equal(t, CodeMaxExposure, violationCode(t, err))

	st := m.Status()
	assert.Equal(t, 300.0, st.Exposure)
	assert.InDelta(t, 0.3, st.ExposurePct, 1e-12)
	assert.Equal(t, 1, st.OpenPositions)
}

func TestCheckPreTradeNeverAcceptsExcessRisk(t *testing.T) {
	t.Parallel()

	m := newMonitor(t, 1000, func(l *Limits) { l.MaxExposurePct = 100 })
	for _, eq := range []float64{1000, 1200, 800, 950} {
		m.CheckPostTrade(eq)
		if m.KillSwitchEngaged() {
			m.ResetDailyLimits(eq)
		}
		limit := eq * m.Limits().MaxRiskPerTradePct
		for _, risk := range []float64{0, limit * 0.5, limit, limit * 1.0001, limit * 2} {
			err := m.CheckPreTrade(buy(t, "BTCUSDT"), risk, 1)
			if risk > limit {
				assert.Error(t, err, "equity %v risk %v", eq, risk)
			} else {
				assert.NoError(t, err, "equity %v risk %v", eq, risk)
			}
		}
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	m := newMonitor(t, 1000, nil)
	require.NoError(t, m.CheckPostTrade(1010))

	st := m.Status()
	assert.False(t, st.KillSwitch)
	assert.Equal(t, 10.0, st.DailyPnL)
	assert.InDelta(t, 0.01, st.DailyPnLPct, 1e-12)
	assert.Equal(t, 1010.0, st.PeakEquity)
	assert.Contains(t, st.String(), "trading active")

	m.EngageKillSwitch("manual")
	assert.Contains(t, m.Status().String(), "HALTED (manual)")
}

func TestKillSwitchConcurrentPolling(t *testing.T) {
	t.Parallel()

	m := newMonitor(t, 1000, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if i == 0 && j == 500 {
					m.EngageKillSwitch("race")
				}
				m.KillSwitchEngaged()
			}
		}(i)
	}
	wg.Wait()

	assert.True(t, m.KillSwitchEngaged())
	assert.Equal(t, "race", m.HaltReason())
}
