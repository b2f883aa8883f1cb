// Package execution is the single entry point for every state-changing
// trading operation on an account. It checks the kill switch and the safety
// limits, routes orders to the paper venue or to an exchange client, and
// turns any fault raised on the way into a rejected result.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
	"github.com/ttdog1020/Cryptobot-sub000/internal/logging"
	"github.com/ttdog1020/Cryptobot-sub000/journal"
	"github.com/ttdog1020/Cryptobot-sub000/safety"
	"github.com/ttdog1020/Cryptobot-sub000/sim"
)

type Mode string

const (
	ModeSimulated Mode = "simulated"
	ModeDryRun    Mode = "dry_run"
	ModeLive      Mode = "live"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSimulated, ModeDryRun, ModeLive:
		return m, nil
	case "":
		return ModeSimulated, nil
	}
	return "", fmt.Errorf("unknown execution mode %q", s)
}

// Rejection reasons used in logs and metrics.
const (
	reasonValidation = "validation"
	reasonKillSwitch = "kill_switch"
	reasonSafety     = "safety"
	reasonVenue      = "venue"
)

type Options struct {
	AccountID string
	Mode      Mode
	Venue     *sim.Venue
	Remote    *RemoteVenue
	Monitor   *safety.Monitor
	Metrics   *Metrics
	Logger    *slog.Logger

	// MaxConsecutiveFailures engages the kill switch after that many venue
	// failures in a row. Zero disables it.
	MaxConsecutiveFailures int
}

// Counters tally submissions since the engine was built.
type Counters struct {
	Submitted           int
	Filled              int
	Rejected            int
	SafetyRejections    int
	ConsecutiveFailures int
	Cancelled           int
}

type Engine struct {
	mu sync.Mutex

	accountID string
	mode      Mode
	venue     *sim.Venue
	remote    *RemoteVenue
	monitor   *safety.Monitor
	metrics   *Metrics
	log       *slog.Logger
	maxFails  int
	counters  Counters
}

func New(opts Options) (*Engine, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeSimulated:
		if opts.Venue == nil {
			return nil, fmt.Errorf("%w: %s", broker.ErrVenueNotConfigured, mode)
		}
	default:
		if opts.Remote == nil {
			return nil, fmt.Errorf("%w: %s", broker.ErrVenueNotConfigured, mode)
		}
	}

	return &Engine{
		accountID: opts.AccountID,
		mode:      mode,
		venue:     opts.Venue,
		remote:    opts.Remote,
		monitor:   opts.Monitor,
		metrics:   opts.Metrics,
		log:       logging.OrDiscard(opts.Logger).With("account", opts.AccountID, "mode", string(mode)),
		maxFails:  opts.MaxConsecutiveFailures,
	}, nil
}

func (e *Engine) Mode() Mode { return e.mode }

// SubmitOrder places order. price is the current market price; zero falls
// back to the order's limit price in simulated mode and is left to the
// exchange client otherwise.
//
// The result is always returned, never a panic: a malformed order, an
// engaged kill switch, a safety violation and a venue fault all come back as
// a Rejected result carrying the cause.
func (e *Engine) SubmitOrder(ctx context.Context, order broker.OrderRequest, price float64) broker.ExecutionResult {
	if broker.IsPlaceholderSymbol(order.Symbol) {
		return e.reject(order, reasonValidation, &broker.ValidationError{
			Field: "symbol",
			Msg:   fmt.Sprintf("%s: %q", broker.ErrMissingSymbol, order.Symbol),
			Err:   broker.ErrMissingSymbol,
		})
	}
	if e.monitor != nil && e.monitor.KillSwitchEngaged() {
		return e.reject(order, reasonKillSwitch, fmt.Errorf("%w: %s", safety.ErrKillSwitch, e.monitor.HaltReason()))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitLocked(ctx, order, price, true)
}

// reject refuses order without touching any account state.
func (e *Engine) reject(order broker.OrderRequest, reason string, err error) broker.ExecutionResult {
	e.log.Warn("order rejected", "order_id", order.ID, "symbol", order.Symbol, "reason", reason, "err", err)
	e.metrics.rejected(e.accountID, reason)
	return broker.Rejected(err)
}

func (e *Engine) submitLocked(ctx context.Context, order broker.OrderRequest, price float64, guarded bool) broker.ExecutionResult {
	if price <= 0 && order.Price != nil {
		price = *order.Price
	}

	closing := e.monitor != nil && e.monitor.IsClosing(order)

	if guarded && e.monitor != nil {
		if err := e.monitor.CheckPreTrade(order, orderRisk(order, price, closing), order.Quantity*price); err != nil {
			e.counters.Rejected++
			e.counters.SafetyRejections++
			e.counters.ConsecutiveFailures++
			return e.reject(order, reasonSafety, err)
		}
	}

	if err := order.Validate(); err != nil {
		e.counters.Rejected++
		return e.reject(order, reasonValidation, err)
	}

	e.counters.Submitted++
	start := time.Now()
	res := e.route(ctx, order, price)
	e.metrics.observe(e.accountID, e.mode, time.Since(start))

	if !res.Success {
		e.counters.Rejected++
		e.counters.ConsecutiveFailures++
		e.log.Warn("order rejected", "order_id", order.ID, "symbol", order.Symbol, "reason", reasonVenue, "err", res.Err)
		e.metrics.rejected(e.accountID, reasonVenue)
		e.tripOnFailuresLocked()
		return res
	}

	e.counters.Filled++
	e.counters.ConsecutiveFailures = 0
	e.metrics.filled(e.accountID)
	e.afterFillLocked(ctx, order, closing, &res)
	return res
}

// orderRisk is the cash lost if order fills at price and then exits at its
// stop. A closing order risks nothing. An opening order without a stop risks
// its whole notional. A plan's risk_usd is honoured unless the stop implies
// more.
func orderRisk(order broker.OrderRequest, price float64, closing bool) float64 {
	if closing {
		return 0
	}
	risk := price * order.Quantity
	if order.StopLoss != nil {
		risk = math.Abs(price-*order.StopLoss) * order.Quantity
	}
	if planned, ok := order.Metadata[MetaRiskUSD].(float64); ok {
		if order.StopLoss == nil || planned > risk {
			risk = planned
		}
	}
	return risk
}

// route hands order to the venue. A panic below this point becomes an
// ExecutionFailure.
func (e *Engine) route(ctx context.Context, order broker.OrderRequest, price float64) (res broker.ExecutionResult) {
	defer func() {
		if p := recover(); p != nil {
			e.log.Error("order routing panicked", "order_id", order.ID, "panic", p, "stack", string(debug.Stack()))
			res = broker.Rejected(&broker.ExecutionFailure{Op: "route", Err: fmt.Errorf("panic: %v", p)})
		}
	}()

	if e.mode == ModeSimulated {
		return e.venue.SubmitOrder(order, price)
	}

	if price > 0 {
		meta := make(map[string]any, len(order.Metadata)+1)
		for k, v := range order.Metadata {
			meta[k] = v
		}
		meta[MetaMarkPrice] = price
		order.Metadata = meta
	}
	return e.remote.Submit(ctx, order)
}

// afterFillLocked mirrors the fill into the monitor. closing comes from the
// monitor's own book; a venue that reports action=CLOSE also counts, which
// covers positions the monitor never saw open.
func (e *Engine) afterFillLocked(ctx context.Context, order broker.OrderRequest, closing bool, res *broker.ExecutionResult) {
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	if action, _ := res.Metadata["action"].(string); action == string(journal.ActionClose) {
		closing = true
	}

	if e.monitor != nil {
		if closing {
			e.monitor.RecordPositionClose(order.Symbol)
		} else {
			e.monitor.RecordPositionOpen(order.Symbol, order.Side, res.Fill.FillValue())
		}
	}

	equity, err := e.equityLocked(ctx)
	if err != nil {
		e.log.Warn("equity unavailable after fill", "order_id", order.ID, "err", err)
		return
	}
	if e.monitor != nil {
		if err := e.monitor.CheckPostTrade(equity); err != nil {
			res.Metadata["safety_halt"] = err.Error()
		}
	}
	e.publishLocked(ctx)
}

func (e *Engine) tripOnFailuresLocked() {
	if e.maxFails <= 0 || e.monitor == nil || e.counters.ConsecutiveFailures < e.maxFails {
		return
	}
	e.monitor.EngageKillSwitch(fmt.Sprintf("%d consecutive execution failures", e.counters.ConsecutiveFailures))
	e.metrics.setKillSwitch(e.accountID, true)
}

func (e *Engine) equityLocked(ctx context.Context) (float64, error) {
	if e.mode == ModeSimulated {
		return e.venue.Equity(), nil
	}
	return e.remote.Balance(ctx)
}

// publishLocked pushes the account gauges. Remote modes only report what the
// exchange client returns.
func (e *Engine) publishLocked(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	if e.mode == ModeSimulated {
		acct := e.venue.Account()
		e.metrics.setAccount(e.accountID, acct.Balance, acct.Equity, acct.OpenPositions)
	} else if bal, err := e.remote.Balance(ctx); err == nil {
		e.metrics.setAccount(e.accountID, bal, bal, e.openCountLocked(ctx))
	}
	e.metrics.setKillSwitch(e.accountID, e.monitor != nil && e.monitor.KillSwitchEngaged())
}

func (e *Engine) openCountLocked(ctx context.Context) int {
	if e.mode == ModeSimulated {
		return len(e.venue.Positions())
	}
	ps, err := e.remote.Positions(ctx)
	if err != nil {
		return 0
	}
	return len(ps)
}

// UpdatePositions marks open positions and advances trailing stops.
// Exchange-held positions are marked by the exchange, so remote modes
// ignore it.
func (e *Engine) UpdatePositions(ctx context.Context, prices map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != ModeSimulated {
		return
	}
	e.venue.UpdatePositions(prices)
	e.publishLocked(ctx)
}

// CheckExitConditions lists the symbols whose stop or target prices has
// crossed. Nothing is closed.
func (e *Engine) CheckExitConditions(prices map[string]float64) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != ModeSimulated {
		return nil
	}
	return e.venue.CheckExitConditions(prices)
}

// ProcessExits submits a closing order for every symbol CheckExitConditions
// would report. Exits reduce risk, so they are not held back by the kill
// switch or the pre-trade limits.
func (e *Engine) ProcessExits(ctx context.Context, prices map[string]float64) []broker.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode != ModeSimulated {
		return nil
	}

	var out []broker.ExecutionResult
	for _, sym := range e.venue.CheckExitConditions(prices) {
		price := prices[sym]
		order, err := e.venue.ClosingOrder(sym, e.venue.ExitReason(sym, price))
		if err != nil {
			out = append(out, broker.Rejected(err))
			continue
		}
		out = append(out, e.submitLocked(ctx, order, price, false))
	}
	return out
}

// CloseAllPositions flattens the account. It runs even while the kill switch
// is engaged. Prices that prices cannot supply fall back to the last mark.
func (e *Engine) CloseAllPositions(ctx context.Context, prices broker.PriceProvider) []broker.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ModeSimulated {
		results := e.venue.CloseAllPositions(ctx, prices)
		for i := range results {
			res := &results[i]
			e.counters.Submitted++
			if !res.Success {
				e.counters.Rejected++
				continue
			}
			e.counters.Filled++
			e.metrics.filled(e.accountID)
			if e.monitor != nil {
				e.monitor.RecordPositionClose(res.Fill.Symbol)
			}
		}
		if e.monitor != nil && len(results) > 0 {
			e.monitor.CheckPostTrade(e.venue.Equity())
		}
		e.publishLocked(ctx)
		return results
	}

	positions, err := e.remote.Positions(ctx)
	if err != nil {
		e.log.Error("close all: cannot list positions", "err", err)
		return []broker.ExecutionResult{broker.Rejected(err)}
	}
	out := make([]broker.ExecutionResult, 0, len(positions))
	for _, pos := range positions {
		price := pos.CurrentPrice
		if prices != nil {
			if p, err := prices.Price(ctx, pos.Symbol); err == nil && p > 0 {
				price = p
			} else {
				e.log.Warn("close all: price unavailable, using last price", "symbol", pos.Symbol, "last", price, "err", err)
			}
		}
		order, err := broker.NewOrderRequest(broker.OrderRequest{
			Symbol:   pos.Symbol,
			Side:     pos.Side.Opposite(),
			Quantity: pos.Quantity,
			Strategy: pos.Strategy,
			Metadata: map[string]any{sim.MetaExitReason: sim.ReasonCloseAll},
		})
		if err != nil {
			out = append(out, broker.Rejected(err))
			continue
		}
		res := e.submitLocked(ctx, order, price, false)
		if res.Success && e.monitor != nil {
			// the exchange listed it, so it closes whether or not the monitor tracked it
			e.monitor.RecordPositionClose(pos.Symbol)
		}
		out = append(out, res)
	}
	return out
}

// CancelOrder cancels a resting order. Paper fills are immediate, so in
// simulated mode there is never anything to cancel.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) broker.ExecutionResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mode == ModeSimulated {
		return broker.Rejected(fmt.Errorf("cancel %s: %w", orderID, broker.ErrOrderNotFound))
	}
	res := e.remote.Cancel(ctx, orderID)
	if res.Success {
		e.counters.Cancelled++
	}
	return res
}

// Equity is the account equity as the routed venue reports it.
func (e *Engine) Equity(ctx context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.equityLocked(ctx)
}

func (e *Engine) Counters() Counters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counters
}

// Status is the monitoring snapshot of one account.
type Status struct {
	AccountID     string
	Mode          Mode
	Balance       float64
	Equity        float64
	OpenPositions int
	KillSwitch    bool
	HaltReason    string
	Exposure      float64
	DailyPnL      float64
	Counters      Counters
	Safety        *safety.Status
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{AccountID: e.accountID, Mode: e.mode, Counters: e.counters}

	var positions []broker.Position
	if e.mode == ModeSimulated {
		acct := e.venue.Account()
		st.Balance = acct.Balance
		st.Equity = acct.Equity
		st.DailyPnL = acct.RealizedPnL
		positions = e.venue.Positions()
	} else {
		bal, err := e.remote.Balance(ctx)
		if err != nil {
			return st, fmt.Errorf("status: balance: %w", err)
		}
		st.Balance, st.Equity = bal, bal
		if positions, err = e.remote.Positions(ctx); err != nil {
			return st, fmt.Errorf("status: positions: %w", err)
		}
	}
	st.OpenPositions = len(positions)
	for _, p := range positions {
		st.Exposure += p.Value()
	}

	if e.monitor != nil {
		ss := e.monitor.Status()
		st.Safety = &ss
		st.KillSwitch = ss.KillSwitch
		st.HaltReason = ss.HaltReason
		st.DailyPnL = ss.DailyPnL
	}
	return st, nil
}

// IsKillSwitch reports whether err is the trading halt.
func IsKillSwitch(err error) bool { return errors.Is(err, safety.ErrKillSwitch) }
