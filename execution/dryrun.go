package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
	"github.com/ttdog1020/Cryptobot-sub000/internal/logging"
	"github.com/ttdog1020/Cryptobot-sub000/journal"
)

// DryRunTag is stamped on dry-run fills.
const DryRunTag = "dry_run"

// DryRunClient is an ExchangeClient that accepts orders, tracks the
// positions they would create and never moves money. Its balance is fixed.
type DryRunClient struct {
	mu        sync.Mutex
	balance   float64
	positions map[string]broker.Position
	prices    broker.PriceProvider
	log       *slog.Logger
	now       func() time.Time
}

// NewDryRunClient reports balance forever. prices, when set, quotes market
// orders that carry neither a limit price nor a mark.
func NewDryRunClient(balance float64, prices broker.PriceProvider, log *slog.Logger) *DryRunClient {
	return &DryRunClient{
		balance:   balance,
		positions: make(map[string]broker.Position),
		prices:    prices,
		log:       logging.OrDiscard(log).With("venue", DryRunTag),
		now:       time.Now,
	}
}

func (c *DryRunClient) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.ExecutionResult, error) {
	if err := req.Validate(); err != nil {
		return broker.Rejected(err), nil
	}

	price, err := c.quote(ctx, req)
	if err != nil {
		return broker.Rejected(err), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	action := journal.ActionOpen
	if pos, ok := c.positions[req.Symbol]; ok {
		if pos.Side.Direction() == req.Side.Direction() {
			return broker.Rejected(&broker.ValidationError{Field: "side", Msg: broker.ErrPositionExists.Error(), Err: broker.ErrPositionExists}), nil
		}
		delete(c.positions, req.Symbol)
		action = journal.ActionClose
	} else {
		c.positions[req.Symbol] = broker.Position{
			Symbol:       req.Symbol,
			Side:         req.Side.Normalize(),
			Quantity:     req.Quantity,
			EntryPrice:   price,
			StopLoss:     req.StopLoss,
			TakeProfit:   req.TakeProfit,
			CurrentPrice: price,
			HighestPrice: price,
			Strategy:     req.Strategy,
			OrderID:      req.ID,
			OpenedAt:     c.now().UTC(),
		}.Clone()
	}

	c.log.Info("dry run fill", "order_id", req.ID, "symbol", req.Symbol, "side", req.Side, "qty", req.Quantity, "price", price, "action", action)

	res := broker.Filled(broker.OrderFill{
		OrderID:  req.ID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    price,
		Venue:    DryRunTag,
		Time:     c.now().UTC(),
	})
	res.Metadata["action"] = string(action)
	res.Metadata[DryRunTag] = true
	return res, nil
}

func (c *DryRunClient) quote(ctx context.Context, req broker.OrderRequest) (float64, error) {
	if req.Price != nil && *req.Price > 0 {
		return *req.Price, nil
	}
	if p, ok := req.Metadata[MetaMarkPrice].(float64); ok && p > 0 {
		return p, nil
	}
	if c.prices != nil {
		p, err := c.prices.Price(ctx, req.Symbol)
		if err == nil && p > 0 {
			return p, nil
		}
	}
	return 0, &broker.ValidationError{Field: "price", Msg: fmt.Sprintf("no price for %s", req.Symbol), Err: broker.ErrNoPrice}
}

// CancelOrder always fails: dry-run fills are immediate.
func (c *DryRunClient) CancelOrder(_ context.Context, orderID string) (broker.ExecutionResult, error) {
	return broker.Rejected(fmt.Errorf("cancel %s: %w", orderID, broker.ErrOrderNotFound)), nil
}

func (c *DryRunClient) GetBalance(context.Context) (float64, error) {
	return c.balance, nil
}

func (c *DryRunClient) GetPositions(context.Context) ([]broker.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]broker.Position, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}
