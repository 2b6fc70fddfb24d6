package indicator

import (
	"context"
	"fmt"

	"spotFlipBot/internal/ports"
)

// extraCloses is fetched beyond the period so Wilder's smoothing has settled
// by the time the latest value is read.
const extraCloses = 100

// KlineSource is the slice of the exchange the provider needs.
type KlineSource interface {
	GetRecentCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error)
}

// RSIProvider implements ports.IndicatorProvider by fetching recent closes
// and computing the RSI with Wilder's smoothing.
type RSIProvider struct {
	source KlineSource
	logger ports.Logger
}

// NewRSIProvider creates the provider. It is constructed once at startup and
// injected into the engine.
func NewRSIProvider(source KlineSource, logger ports.Logger) (*RSIProvider, error) {
	if source == nil || logger == nil {
		return nil, fmt.Errorf("kline source and logger are required for RSI provider")
	}
	return &RSIProvider{source: source, logger: logger}, nil
}

// LatestRSI returns the most recent RSI value. Any failure wraps
// ErrIndicatorUnavailable so the engine can treat the cycle as no-signal.
func (p *RSIProvider) LatestRSI(ctx context.Context, symbol, interval string, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period %d must be positive: %w", period, ports.ErrIndicatorUnavailable)
	}
	closes, err := p.source.GetRecentCloses(ctx, symbol, interval, period+extraCloses)
	if err != nil {
		return 0, fmt.Errorf("fetching closes: %w: %w", ports.ErrIndicatorUnavailable, err)
	}
	value, err := Compute(closes, period)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ports.ErrIndicatorUnavailable, err)
	}
	return value, nil
}

// Compute calculates the RSI over the full close sequence using Wilder's
// smoothing method and returns the latest value.
func Compute(closes []float64, period int) (float64, error) {
	if len(closes) <= period {
		return 0, fmt.Errorf("not enough data (%d) to calculate RSI for period %d", len(closes), period)
	}

	changes := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		changes = append(changes, closes[i]-closes[i-1])
	}

	// Seed the averages over the first period.
	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		if changes[i] > 0 {
			avgGain += changes[i]
		} else {
			avgLoss -= changes[i]
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Smooth the rest of the sequence.
	for i := period; i < len(changes); i++ {
		if changes[i] > 0 {
			avgGain = (avgGain*float64(period-1) + changes[i]) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) - changes[i]) / float64(period)
		}
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil // flat sequence
		}
		return 100, nil
	}

	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))
	if rsi > 100 {
		rsi = 100
	} else if rsi < 0 {
		rsi = 0
	}
	return rsi, nil
}
