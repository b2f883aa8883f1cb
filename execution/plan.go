package execution

import (
	"context"
	"fmt"

	"github.com/ttdog1020/Cryptobot-sub000/broker"
	"github.com/ttdog1020/Cryptobot-sub000/risk"
)

// Order metadata keys the engine reads or writes.
const (
	MetaRiskUSD       = "risk_usd"
	MetaPositionValue = "position_value"
	MetaRR            = "rr"
	MetaEntry         = "entry"
	MetaMarkPrice     = "mark_price"
)

// CreateOrderFromPlan maps a sized plan onto a market order. The plan must
// already name a real symbol.
func CreateOrderFromPlan(p risk.Plan) (broker.OrderRequest, error) {
	if broker.IsPlaceholderSymbol(p.Symbol) {
		return broker.OrderRequest{}, &broker.ValidationError{
			Field: "symbol",
			Msg:   fmt.Sprintf("risk plan has unresolved symbol %q", p.Symbol),
			Err:   broker.ErrMissingSymbol,
		}
	}

	req := broker.OrderRequest{
		Symbol:   p.Symbol,
		Side:     p.Side,
		Type:     broker.Market,
		Quantity: p.Size,
		Strategy: p.Strategy,
		Metadata: map[string]any{
			MetaRiskUSD:       p.RiskUSD,
			MetaPositionValue: p.PositionValue,
			MetaRR:            p.RR,
			MetaEntry:         p.Entry,
		},
	}
	if p.Stop > 0 {
		req.StopLoss = broker.Float(p.Stop)
	}
	if p.Target != nil {
		req.TakeProfit = broker.Float(*p.Target)
	}
	return broker.NewOrderRequest(req)
}

// SubmitPlan places the order a risk plan describes at the plan's entry.
func (e *Engine) SubmitPlan(ctx context.Context, p risk.Plan) broker.ExecutionResult {
	order, err := CreateOrderFromPlan(p)
	if err != nil {
		return e.reject(broker.OrderRequest{Symbol: p.Symbol, Side: p.Side, Quantity: p.Size}, reasonValidation, err)
	}
	return e.SubmitOrder(ctx, order, p.Entry)
}
