package broker

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderRequest(t *testing.T) {
	t.Parallel()

	r, err := NewOrderRequest(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Quantity: 0.5})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(r.ID, "ord_"))
	assert.Equal(t, Market, r.Type)
	assert.False(t, r.CreatedAt.IsZero())
	assert.NotNil(t, r.Metadata)
	assert.NoError(t, r.Validate())
}

func TestNewOrderRequestRejectsQuantity(t *testing.T) {
	t.Parallel()

	for _, q := range []float64{0, -1} {
		_, err := NewOrderRequest(OrderRequest{Symbol: "BTCUSDT", Side: Buy, Quantity: q})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidQuantity))

		var ve *ValidationError
		assert.True(t, errors.As(err, &ve))
		assert.Equal(t, "quantity", ve.Field)
	}
}

func TestOrderRequestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		req   OrderRequest
		field string
	}{
		{"empty symbol", OrderRequest{Side: Long, Quantity: 1}, "symbol"},
		{"placeholder symbol", OrderRequest{Symbol: "unknown", Side: Long, Quantity: 1}, "symbol"},
		{"zero qty", OrderRequest{Symbol: "ETHUSDT", Side: Long}, "quantity"},
		{"bad side", OrderRequest{Symbol: "ETHUSDT", Side: "UP", Quantity: 1}, "side"},
		{"bad type", OrderRequest{Symbol: "ETHUSDT", Side: Long, Type: "ICEBERG", Quantity: 1}, "type"},
		{"limit no price", OrderRequest{Symbol: "ETHUSDT", Side: Long, Type: Limit, Quantity: 1}, "price"},
		{"limit zero price", OrderRequest{Symbol: "ETHUSDT", Side: Long, Type: Limit, Quantity: 1, Price: Float(0)}, "price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	ok := OrderRequest{Symbol: "ETHUSDT", Side: Sell, Type: Limit, Quantity: 1, Price: Float(2000)}
	assert.NoError(t, ok.Validate())
}

func TestIsPlaceholderSymbol(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "  ", "N/A", "none", "Unknown", "SYMBOL", "placeholder", "?"} {
		assert.True(t, IsPlaceholderSymbol(s), s)
	}
	for _, s := range []string{"BTCUSDT", "ETH-USD", "EUR_USD"} {
		assert.False(t, IsPlaceholderSymbol(s), s)
	}
}

func TestSide(t *testing.T) {
	t.Parallel()

	assert.True(t, Buy.IsLong())
	assert.True(t, Sell.IsShort())
	assert.Equal(t, Long, Buy.Normalize())
	assert.Equal(t, Short, Sell.Normalize())
	assert.Equal(t, Short, Buy.Opposite())
	assert.Equal(t, Long, Short.Opposite())
	assert.Equal(t, 1.0, Long.Direction())
	assert.Equal(t, -1.0, Sell.Direction())
	assert.Equal(t, 0.0, Side("X").Direction())

	s, err := ParseSide(" buy ")
	require.NoError(t, err)
	assert.Equal(t, Buy, s)
	_, err = ParseSide("hold")
	assert.Error(t, err)
}
