package broker

import (
	"strings"
	"time"

	"github.com/ttdog1020/Cryptobot-sub000/internal/id"
)

// OrderRequest asks a venue to trade Quantity units of Symbol.
type OrderRequest struct {
	ID         string
	Symbol     string
	Side       Side
	Type       OrderType
	Quantity   float64
	Price      *float64
	StopLoss   *float64
	TakeProfit *float64
	Strategy   string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// NewOrderRequest fills in the identifier, type and timestamp of r and
// rejects a non-positive quantity.
func NewOrderRequest(r OrderRequest) (OrderRequest, error) {
	if r.Quantity <= 0 {
		return OrderRequest{}, invalid("quantity", ErrInvalidQuantity)
	}
	if r.ID == "" {
		r.ID = id.Order()
	}
	if r.Type == "" {
		r.Type = Market
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	return r, nil
}

// MarketOrder is shorthand for a market order with no protective levels.
func MarketOrder(symbol string, side Side, qty float64) (OrderRequest, error) {
	return NewOrderRequest(OrderRequest{Symbol: symbol, Side: side, Type: Market, Quantity: qty})
}

// Validate performs the structural checks every venue relies on.
func (r OrderRequest) Validate() error {
	if IsPlaceholderSymbol(r.Symbol) {
		return invalid("symbol", ErrMissingSymbol)
	}
	if !(r.Quantity > 0) {
		return invalid("quantity", ErrInvalidQuantity)
	}
	if !r.Side.Valid() {
		return &ValidationError{Field: "side", Msg: "unknown side " + string(r.Side)}
	}
	if r.Type != "" && !r.Type.Valid() {
		return &ValidationError{Field: "type", Msg: "unknown order type " + string(r.Type)}
	}
	if r.Type == Limit && (r.Price == nil || *r.Price <= 0) {
		return &ValidationError{Field: "price", Msg: "limit order requires a positive price"}
	}
	return nil
}

var placeholderSymbols = map[string]struct{}{
	"":            {},
	"-":           {},
	"?":           {},
	"N/A":         {},
	"NA":          {},
	"NONE":        {},
	"NULL":        {},
	"NIL":         {},
	"UNKNOWN":     {},
	"SYMBOL":      {},
	"PLACEHOLDER": {},
	"TBD":         {},
	"UNDEFINED":   {},
}

// IsPlaceholderSymbol reports whether s is empty or a stand-in value that a
// strategy emits before the instrument is resolved.
func IsPlaceholderSymbol(s string) bool {
	_, ok := placeholderSymbols[strings.ToUpper(strings.TrimSpace(s))]
	return ok
}

// Float returns a pointer to v, for the optional price fields.
func Float(v float64) *float64 { return &v }
