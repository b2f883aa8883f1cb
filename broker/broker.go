// Package broker holds the order, fill and position value types shared by the
// risk engine, the safety monitor, the simulated venue and the execution engine.
package broker

import (
	"context"
)

// ExchangeClient is the contract a live or dry-run venue satisfies. The
// execution engine calls it with a deadline and treats a timeout as a
// rejection.
type ExchangeClient interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (ExecutionResult, error)
	CancelOrder(ctx context.Context, orderID string) (ExecutionResult, error)
	GetBalance(ctx context.Context) (float64, error)
	GetPositions(ctx context.Context) ([]Position, error)
}

// Account is a point-in-time view of an account's cash model.
type Account struct {
	ID            string
	Balance       float64
	Equity        float64
	PeakEquity    float64
	RealizedPnL   float64
	OpenPositions int
}

// PriceProvider yields the latest price for a symbol.
type PriceProvider interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// PriceFunc adapts a function to PriceProvider.
type PriceFunc func(ctx context.Context, symbol string) (float64, error)

func (f PriceFunc) Price(ctx context.Context, symbol string) (float64, error) {
	return f(ctx, symbol)
}

// PriceMap is a static PriceProvider.
type PriceMap map[string]float64

func (m PriceMap) Price(_ context.Context, symbol string) (float64, error) {
	p, ok := m[symbol]
	if !ok || p <= 0 {
		return 0, &ValidationError{Field: "price", Msg: "no price for " + symbol}
	}
	return p, nil
}
