package broker

import "time"

// OrderFill is the single execution an accepted order produces.
type OrderFill struct {
	OrderID      string
	Symbol       string
	Side         Side
	Quantity     float64
	Price        float64
	Commission   float64
	SlippageCost float64
	Venue        string
	Time         time.Time
}

func (f OrderFill) FillValue() float64 { return f.Price * f.Quantity }

func (f OrderFill) TotalCost() float64 { return f.FillValue() + f.Commission }

// ExecutionResult is what every submission returns, accepted or not.
type ExecutionResult struct {
	Success  bool
	Status   Status
	Fill     *OrderFill
	Err      error
	Metadata map[string]any
}

// Filled builds a successful result around f.
func Filled(f OrderFill) ExecutionResult {
	return ExecutionResult{
		Success:  true,
		Status:   StatusFilled,
		Fill:     &f,
		Metadata: map[string]any{},
	}
}

// Rejected builds a failed result carrying err.
func Rejected(err error) ExecutionResult {
	return ExecutionResult{
		Status:   StatusRejected,
		Err:      err,
		Metadata: map[string]any{},
	}
}

// Reason renders the rejection cause, or "" for a success.
func (r ExecutionResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
