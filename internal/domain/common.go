package domain

// OrderSide represents the side of an order (BUY or SELL).
// It doubles as the trade side of the engine: the action it is armed to
// perform next.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// StrategyMode selects which leg of the flip carries the risk.
// LONG profits from price rises (the buy leg is the open position),
// SHORT profits from price falls relative to the last sell reference.
type StrategyMode string

const (
	ModeLong  StrategyMode = "LONG"
	ModeShort StrategyMode = "SHORT"
)

// IsValid reports whether the mode is one of the two supported values.
func (m StrategyMode) IsValid() bool {
	return m == ModeLong || m == ModeShort
}
