package broker

import "strings"

type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
	Buy   Side = "BUY"
	Sell  Side = "SELL"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	switch s {
	case Long, Short, Buy, Sell:
		return true
	}
	return false
}

// IsLong reports whether s points up. Buy is treated as Long.
func (s Side) IsLong() bool { return s == Long || s == Buy }

// IsShort reports whether s points down. Sell is treated as Short.
func (s Side) IsShort() bool { return s == Short || s == Sell }

// Direction is +1 for long sides, -1 for short sides and 0 otherwise.
func (s Side) Direction() float64 {
	switch {
	case s.IsLong():
		return 1
	case s.IsShort():
		return -1
	}
	return 0
}

// Normalize maps Buy/Sell onto Long/Short.
func (s Side) Normalize() Side {
	switch {
	case s.IsLong():
		return Long
	case s.IsShort():
		return Short
	}
	return s
}

// Opposite returns the closing direction for s.
func (s Side) Opposite() Side {
	switch {
	case s.IsLong():
		return Short
	case s.IsShort():
		return Long
	}
	return s
}

// ParseSide accepts any case of LONG, SHORT, BUY or SELL.
func ParseSide(s string) (Side, error) {
	side := Side(strings.ToUpper(strings.TrimSpace(s)))
	if !side.Valid() {
		return "", &ValidationError{Field: "side", Msg: "unknown side " + s}
	}
	return side, nil
}

type OrderType string

const (
	Market     OrderType = "MARKET"
	Limit      OrderType = "LIMIT"
	StopLoss   OrderType = "STOP_LOSS"
	TakeProfit OrderType = "TAKE_PROFIT"
)

func (t OrderType) Valid() bool {
	switch t {
	case Market, Limit, StopLoss, TakeProfit:
		return true
	}
	return false
}

type Status string

const (
	StatusNew       Status = "NEW"
	StatusPending   Status = "PENDING"
	StatusFilled    Status = "FILLED"
	StatusPartial   Status = "PARTIAL"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
)
