package execution

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

// Metrics exports per-account execution metrics. Every method is safe on a
// nil receiver, which disables collection.
type Metrics struct {
	registry *prometheus.Registry

	OrdersTotal    *prometheus.CounterVec   // account, result
	RejectedTotal  *prometheus.CounterVec   // account, reason
	SubmitDuration *prometheus.HistogramVec // account, mode
	Balance        *prometheus.GaugeVec     // account
	Equity         *prometheus.GaugeVec     // account
	OpenPositions  *prometheus.GaugeVec     // account
	KillSwitch     *prometheus.GaugeVec     // account
	BreakerState   *prometheus.GaugeVec     // venue
}

// NewMetrics registers the execution metrics on a fresh registry that also
// carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.OrdersTotal = m.counterVec(prometheus.CounterOpts{
		Name: "trader_orders_total",
		Help: "Orders routed to a venue, by result",
	}, "account", "result")

	m.RejectedTotal = m.counterVec(prometheus.CounterOpts{
		Name: "trader_orders_rejected_total",
		Help: "Rejected orders, by reason",
	}, "account", "reason")

	m.SubmitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trader_submit_duration_seconds",
		Help:    "Time spent routing an order to its venue",
		Buckets: prometheus.DefBuckets,
	}, []string{"account", "mode"})
	reg.MustRegister(m.SubmitDuration)

	m.Balance = m.gaugeVec("trader_balance", "Cash balance", "account")
	m.Equity = m.gaugeVec("trader_equity", "Balance plus unrealized PnL", "account")
	m.OpenPositions = m.gaugeVec("trader_open_positions", "Open positions", "account")
	m.KillSwitch = m.gaugeVec("trader_kill_switch", "1 while trading is halted", "account")
	m.BreakerState = m.gaugeVec("trader_venue_breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)", "venue")

	return m
}

func (m *Metrics) counterVec(opts prometheus.CounterOpts, labels ...string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labels)
	m.registry.MustRegister(cv)
	return cv
}

func (m *Metrics) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	m.registry.MustRegister(gv)
	return gv
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) filled(account string) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(account, "filled").Inc()
}

func (m *Metrics) rejected(account, reason string) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(account, "rejected").Inc()
	m.RejectedTotal.WithLabelValues(account, reason).Inc()
}

func (m *Metrics) observe(account string, mode Mode, d time.Duration) {
	if m == nil {
		return
	}
	m.SubmitDuration.WithLabelValues(account, string(mode)).Observe(d.Seconds())
}

func (m *Metrics) setAccount(account string, balance, equity float64, open int) {
	if m == nil {
		return
	}
	m.Balance.WithLabelValues(account).Set(balance)
	m.Equity.WithLabelValues(account).Set(equity)
	m.OpenPositions.WithLabelValues(account).Set(float64(open))
}

func (m *Metrics) setKillSwitch(account string, on bool) {
	if m == nil {
		return
	}
	v := 0.0
	if on {
		v = 1
	}
	m.KillSwitch.WithLabelValues(account).Set(v)
}

func (m *Metrics) setBreakerState(venue string, st gobreaker.State) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(venue).Set(float64(st))
}
