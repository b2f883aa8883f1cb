// Package sim is the paper venue: it fills orders against a supplied price,
// keeps the cash balance and the open positions of one account, and writes a
// ledger row for every OPEN and CLOSE.
//
// Cash model: opening a position never changes the balance. The balance moves
// only in settleLocked, which is reached from the close path alone.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
	"github.com/ttdog1020/Cryptobot-sub000/internal/id"
	"github.com/ttdog1020/Cryptobot-sub000/internal/logging"
	"github.com/ttdog1020/Cryptobot-sub000/journal"
)

// VenueTag is stamped on every fill the paper venue produces.
const VenueTag = "paper"

// Exit reasons written to closed trades and ledger rows.
const (
	ReasonSignal     = "signal"
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonCloseAll   = "close_all"
)

// MetaExitReason is the order metadata key a caller uses to label a close.
const MetaExitReason = "exit_reason"

type Config struct {
	AccountID     string
	Balance       float64
	Slippage      float64
	Commission    float64
	AllowShorting bool
	TrailingStop  bool
	Trail         float64
}

type Venue struct {
	mu sync.Mutex

	accountID     string
	balance       float64
	slippage      float64
	commission    float64
	allowShorting bool
	trailing      bool
	trail         float64

	positions   map[string]*broker.Position
	trades      []broker.ClosedTrade
	peakEquity  float64
	maxDD       float64
	realizedPnL float64
	wins        int
	losses      int

	journal journal.Journal
	log     *slog.Logger
	now     func() time.Time
}

// NewVenue returns a venue holding cfg.Balance in cash. A nil journal
// discards ledger rows and a nil logger discards log output.
func NewVenue(cfg Config, j journal.Journal, log *slog.Logger) *Venue {
	if j == nil {
		j = journal.Discard{}
	}
	balance := broker.RoundCash(cfg.Balance)
	return &Venue{
		accountID:     cfg.AccountID,
		balance:       balance,
		slippage:      cfg.Slippage,
		commission:    cfg.Commission,
		allowShorting: cfg.AllowShorting,
		trailing:      cfg.TrailingStop,
		trail:         cfg.Trail,
		positions:     make(map[string]*broker.Position),
		peakEquity:    balance,
		journal:       j,
		log:           logging.OrDiscard(log).With("venue", VenueTag, "account", cfg.AccountID),
		now:           time.Now,
	}
}

// SubmitOrder fills order at price. An order on a flat symbol opens a
// position; an opposite-direction order on a held symbol closes the whole
// position. Adding to a position is rejected.
func (v *Venue) SubmitOrder(order broker.OrderRequest, price float64) broker.ExecutionResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.submitLocked(order, price)
}

func (v *Venue) submitLocked(order broker.OrderRequest, price float64) broker.ExecutionResult {
	if err := order.Validate(); err != nil {
		return broker.Rejected(err)
	}
	if !(price > 0) {
		return broker.Rejected(&broker.ValidationError{Field: "price", Msg: "no price available", Err: broker.ErrNoPrice})
	}

	if pos, ok := v.positions[order.Symbol]; ok {
		if pos.Side.Direction() == order.Side.Direction() {
			return broker.Rejected(&broker.ValidationError{
				Field: "side",
				Msg:   fmt.Sprintf("%s: %s already held, only a closing order is accepted", broker.ErrPositionExists, order.Symbol),
				Err:   broker.ErrPositionExists,
			})
		}
		return v.closeLocked(pos, order, price)
	}

	if order.Side.IsShort() && !v.allowShorting {
		return broker.Rejected(&broker.ValidationError{Field: "side", Msg: broker.ErrShortingDisabled.Error(), Err: broker.ErrShortingDisabled})
	}
	if order.Side.IsLong() {
		need := price * order.Quantity * (1 + v.commission + v.slippage)
		if need > v.balance {
			return broker.Rejected(&broker.ValidationError{
				Field: "quantity",
				Msg:   fmt.Sprintf("%s: need %.2f, have %.2f", broker.ErrInsufficientFunds, need, v.balance),
				Err:   broker.ErrInsufficientFunds,
			})
		}
	}
	return v.openLocked(order, price)
}

// fillPrice applies slippage against the taker: buys pay up, sells receive less.
func (v *Venue) fillPrice(side broker.Side, price float64) float64 {
	if side.IsLong() {
		return price * (1 + v.slippage)
	}
	return price * (1 - v.slippage)
}

func (v *Venue) openLocked(order broker.OrderRequest, price float64) broker.ExecutionResult {
	now := v.now().UTC()
	fill := v.fillPrice(order.Side, price)
	value := fill * order.Quantity
	commission := value * v.commission
	slip := price * v.slippage * order.Quantity

	pos := &broker.Position{
		Symbol:          order.Symbol,
		Side:            order.Side.Normalize(),
		Quantity:        order.Quantity,
		EntryPrice:      fill,
		CurrentPrice:    price,
		HighestPrice:    fill,
		Strategy:        order.Strategy,
		OrderID:         order.ID,
		OpenedAt:        now,
		EntryCommission: commission,
		EntrySlippage:   slip,
	}
	if order.StopLoss != nil {
		pos.StopLoss = broker.Float(*order.StopLoss)
	}
	if order.TakeProfit != nil {
		pos.TakeProfit = broker.Float(*order.TakeProfit)
	}
	v.positions[order.Symbol] = pos

	equity := v.equityLocked()
	v.markLocked(equity)

	res := broker.Filled(broker.OrderFill{
		OrderID:      order.ID,
		Symbol:       order.Symbol,
		Side:         order.Side,
		Quantity:     order.Quantity,
		Price:        fill,
		Commission:   commission,
		SlippageCost: slip,
		Venue:        VenueTag,
		Time:         now,
	})
	res.Metadata["action"] = string(journal.ActionOpen)
	res.Metadata["balance"] = v.balance
	res.Metadata["equity"] = equity

	v.recordLocked(&res, journal.LedgerRow{
		Time:          now,
		Symbol:        order.Symbol,
		Action:        journal.ActionOpen,
		Side:          string(pos.Side),
		Quantity:      order.Quantity,
		FillPrice:     fill,
		FillValue:     value,
		Commission:    commission,
		Slippage:      slip,
		Balance:       v.balance,
		Equity:        equity,
		OpenPositions: len(v.positions),
		OrderID:       order.ID,
	})

	v.log.Info("position opened",
		"symbol", order.Symbol, "side", pos.Side, "qty", order.Quantity,
		"fill", fill, "balance", v.balance, "equity", equity)
	return res
}

func (v *Venue) closeLocked(pos *broker.Position, order broker.OrderRequest, price float64) broker.ExecutionResult {
	now := v.now().UTC()
	qty := pos.Quantity
	fill := v.fillPrice(order.Side, price)
	value := fill * qty
	closeCommission := value * v.commission
	slip := price * v.slippage * qty

	gross := pos.Side.Direction() * (price - pos.EntryPrice) * qty
	commission := pos.EntryCommission + closeCommission
	net := gross - commission - slip

	v.settleLocked(gross, commission, slip)

	v.realizedPnL += net
	// a break-even trade is neither a win nor a loss
	switch {
	case net > 0:
		v.wins++
	case net < 0:
		v.losses++
	}

	reason := ReasonSignal
	if r, ok := order.Metadata[MetaExitReason].(string); ok && r != "" {
		reason = r
	}

	trade := broker.ClosedTrade{
		TradeID:      id.Trade(),
		Symbol:       pos.Symbol,
		Side:         pos.Side,
		Quantity:     qty,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    fill,
		GrossPnL:     gross,
		Commission:   commission,
		Slippage:     slip,
		NetPnL:       net,
		OpenedAt:     pos.OpenedAt,
		ClosedAt:     now,
		Strategy:     pos.Strategy,
		ExitReason:   reason,
		BalanceAfter: v.balance,
	}
	v.trades = append(v.trades, trade)
	delete(v.positions, pos.Symbol)

	equity := v.equityLocked()
	v.markLocked(equity)

	res := broker.Filled(broker.OrderFill{
		OrderID:      order.ID,
		Symbol:       order.Symbol,
		Side:         order.Side,
		Quantity:     qty,
		Price:        fill,
		Commission:   closeCommission,
		SlippageCost: slip,
		Venue:        VenueTag,
		Time:         now,
	})
	res.Metadata["action"] = string(journal.ActionClose)
	res.Metadata["trade_id"] = trade.TradeID
	res.Metadata["realized_pnl"] = net
	res.Metadata[MetaExitReason] = reason
	res.Metadata["balance"] = v.balance
	res.Metadata["equity"] = equity

	v.recordLocked(&res, journal.LedgerRow{
		Time:          now,
		Symbol:        pos.Symbol,
		Action:        journal.ActionClose,
		Side:          string(order.Side.Normalize()),
		Quantity:      qty,
		FillPrice:     fill,
		FillValue:     value,
		Commission:    commission,
		Slippage:      slip,
		RealizedPnL:   gross,
		Balance:       v.balance,
		Equity:        equity,
		OpenPositions: len(v.positions),
		OrderID:       order.ID,
		TradeID:       trade.TradeID,
		Reason:        reason,
	})

	v.log.Info("position closed",
		"symbol", pos.Symbol, "side", pos.Side, "qty", qty, "exit", fill,
		"net_pnl", net, "reason", reason, "balance", v.balance)
	return res
}

// settleLocked is the only code that writes v.balance after construction.
func (v *Venue) settleLocked(realizedPnL, commission, slippage float64) {
	v.balance = broker.SettleClose(v.balance, realizedPnL, commission, slippage)
}

// recordLocked runs after the transition is applied, so a journal failure
// never undoes a fill; it is reported on the result instead.
func (v *Venue) recordLocked(res *broker.ExecutionResult, row journal.LedgerRow) {
	if err := v.writeRow(row); err != nil {
		v.log.Error("ledger write failed", "symbol", row.Symbol, "action", row.Action, "err", err)
		res.Metadata["journal_error"] = err.Error()
	}
}

func (v *Venue) writeRow(row journal.LedgerRow) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("journal panic: %v", p)
		}
	}()
	return v.journal.Record(row)
}

func (v *Venue) equityLocked() float64 {
	equity := v.balance
	for _, p := range v.positions {
		equity += p.UnrealizedPnL()
	}
	return equity
}

// markLocked advances the high-water mark and the deepest drawdown from it.
func (v *Venue) markLocked(equity float64) {
	if equity > v.peakEquity {
		v.peakEquity = equity
	}
	if v.peakEquity > 0 {
		if dd := (v.peakEquity - equity) / v.peakEquity; dd > v.maxDD {
			v.maxDD = dd
		}
	}
}

// UpdatePositions marks every held symbol present in prices and, for longs
// with trailing stops enabled, ratchets the stop up behind the high-water
// mark. A stop is never loosened.
func (v *Venue) UpdatePositions(prices map[string]float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for sym, pos := range v.positions {
		price, ok := prices[sym]
		if !ok || !(price > 0) {
			continue
		}
		pos.CurrentPrice = price

		if !v.trailing || !pos.Side.IsLong() {
			continue
		}
		if price > pos.HighestPrice {
			pos.HighestPrice = price
		}
		level := pos.HighestPrice * (1 - v.trail)
		if pos.StopLoss == nil || level > *pos.StopLoss {
			if pos.StopLoss != nil {
				v.log.Debug("trailing stop raised", "symbol", sym, "from", *pos.StopLoss, "to", level)
			}
			pos.StopLoss = broker.Float(level)
		}
	}

	v.markLocked(v.equityLocked())
}

// CheckExitConditions returns, sorted, the held symbols whose price in prices
// has crossed the stop or the target. It closes nothing.
func (v *Venue) CheckExitConditions(prices map[string]float64) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []string
	for sym, pos := range v.positions {
		price, ok := prices[sym]
		if !ok || !(price > 0) {
			continue
		}
		if exitReason(pos, price) != "" {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// ExitReason reports why symbol would exit at price, or "" when it would not
// or is not held.
func (v *Venue) ExitReason(symbol string, price float64) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	pos, ok := v.positions[symbol]
	if !ok {
		return ""
	}
	return exitReason(pos, price)
}

// CloseAllPositions submits a closing market order for every open position.
// When prices cannot quote a symbol the last marked price is used, so every
// OPEN in the ledger gets its CLOSE.
func (v *Venue) CloseAllPositions(ctx context.Context, prices broker.PriceProvider) []broker.ExecutionResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	symbols := make([]string, 0, len(v.positions))
	for sym := range v.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	results := make([]broker.ExecutionResult, 0, len(symbols))
	for _, sym := range symbols {
		pos := v.positions[sym]

		price := pos.CurrentPrice
		if prices != nil {
			p, err := prices.Price(ctx, sym)
			switch {
			case err != nil:
				v.log.Warn("close all: price unavailable, using last price", "symbol", sym, "last", price, "err", err)
			case !(p > 0):
				v.log.Warn("close all: bad price, using last price", "symbol", sym, "price", p, "last", price)
			default:
				price = p
			}
		}

		order, err := broker.NewOrderRequest(broker.OrderRequest{
			Symbol:   sym,
			Side:     pos.Side.Opposite(),
			Type:     broker.Market,
			Quantity: pos.Quantity,
			Strategy: pos.Strategy,
			Metadata: map[string]any{MetaExitReason: ReasonCloseAll},
		})
		if err != nil {
			results = append(results, broker.Rejected(err))
			continue
		}
		results = append(results, v.submitLocked(order, price))
	}
	return results
}

// ClosingOrder builds the market order that flattens symbol, labelled with
// reason. It fails when symbol is not held.
func (v *Venue) ClosingOrder(symbol, reason string) (broker.OrderRequest, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pos, ok := v.positions[symbol]
	if !ok {
		return broker.OrderRequest{}, fmt.Errorf("closing order for %s: %w", symbol, broker.ErrOrderNotFound)
	}
	return broker.NewOrderRequest(broker.OrderRequest{
		Symbol:   symbol,
		Side:     pos.Side.Opposite(),
		Type:     broker.Market,
		Quantity: pos.Quantity,
		Strategy: pos.Strategy,
		Metadata: map[string]any{MetaExitReason: reason},
	})
}
