package domain

// MarketSnapshot is the per-cycle view of the market. It is rebuilt every
// cycle and discarded; fields other than Price may be nil when the
// corresponding fetch failed that cycle. A nil Price aborts the cycle before
// any order is considered.
type MarketSnapshot struct {
	Price           *float64
	DailyLow        *float64
	DailyHigh       *float64
	PrevCandleClose *float64
	// RSI is rounded to the nearest integer before gating; nil when the
	// indicator was unavailable this cycle.
	RSI *float64
}

// SymbolRules carries the exchange's order constraints for the traded pair.
// Fetched once at startup and cached for the process lifetime; refresh is an
// explicit operation, never automatic.
type SymbolRules struct {
	MinQty      float64
	MinNotional float64
	StepSize    float64
}

// Balances holds the free (unlocked) amounts of both sides of the pair.
type Balances struct {
	Base  float64
	Quote float64
}
