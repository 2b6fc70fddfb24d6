package domain

import "time"

// Execution is the receipt of one filled market order. It exists for the
// cycle that created it: it updates the position state, produces the
// human-readable receipt log, and is appended to the execution journal.
// It is never read back into trading state.
type Execution struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	RequestedQty  float64
	RoundedQty    float64
	AvgPrice      float64
	ExecutedQty   float64
	CumQuote      float64
	Status        string
	Timestamp     time.Time
}
