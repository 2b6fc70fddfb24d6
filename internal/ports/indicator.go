package ports

import "context"

// IndicatorProvider computes the momentum oscillator for the configured pair.
// Constructed once at startup and injected into the engine.
type IndicatorProvider interface {
	// LatestRSI returns the most recent RSI value for the symbol/interval.
	// Failure wraps ErrIndicatorUnavailable; the caller treats it as a
	// neutral no-signal cycle.
	LatestRSI(ctx context.Context, symbol, interval string, period int) (float64, error)
}
