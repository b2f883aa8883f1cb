package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrKillSwitch is returned for every order submitted while trading is halted.
	ErrKillSwitch = errors.New("kill switch engaged: trading halted")

	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrMissingSymbol      = errors.New("symbol is missing or a placeholder")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrShortingDisabled   = errors.New("shorting is disabled")
	ErrPositionExists     = errors.New("position already open for symbol")
	ErrNoPrice            = errors.New("no price available")
	ErrOrderNotFound      = errors.New("order not found")
	ErrExecutionTimeout   = errors.New("execution timed out")
	ErrVenueNotConfigured = errors.New("no venue configured for mode")
)

// ValidationError is a structural problem with an order. It rejects the
// order and leaves trading unaffected.
type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Msg: err.Error(), Err: err}
}

// ExecutionFailure wraps an unexpected fault raised while routing or booking
// an order. The engine converts it into a Rejected result.
type ExecutionFailure struct {
	Op  string
	Err error
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("execution failure during %s: %v", e.Op, e.Err)
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }
