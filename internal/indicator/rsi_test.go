package indicator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotFlipBot/internal/ports"
)

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type stubSource struct {
	closes    []float64
	err       error
	lastLimit int
}

func (s *stubSource) GetRecentCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	s.lastLimit = limit
	return s.closes, s.err
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name        string
		closes      []float64
		period      int
		expected    float64
		expectError bool
	}{
		{
			name:     "alternating gains and losses",
			closes:   []float64{100, 102, 101, 103, 102, 104},
			period:   3,
			expected: 77.272727,
		},
		{
			name:     "all gains pins at 100",
			closes:   []float64{100, 102, 104, 106},
			period:   3,
			expected: 100,
		},
		{
			name:     "all losses pins at 0",
			closes:   []float64{106, 104, 102, 100},
			period:   3,
			expected: 0,
		},
		{
			name:     "flat sequence is neutral",
			closes:   []float64{100, 100, 100, 100},
			period:   3,
			expected: 50,
		},
		{
			name:        "insufficient data",
			closes:      []float64{100, 101},
			period:      14,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.closes, tt.period)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-4)
		})
	}
}

func TestLatestRSI(t *testing.T) {
	src := &stubSource{closes: []float64{100, 102, 101, 103, 102, 104}}
	p, err := NewRSIProvider(src, noopLogger{})
	require.NoError(t, err)

	got, err := p.LatestRSI(context.Background(), "NXPCUSDT", "5m", 3)
	require.NoError(t, err)
	assert.InDelta(t, 77.272727, got, 1e-4)
	assert.Equal(t, 3+extraCloses, src.lastLimit)
}

func TestLatestRSI_WrapsUnavailable(t *testing.T) {
	src := &stubSource{err: errors.New("network down")}
	p, err := NewRSIProvider(src, noopLogger{})
	require.NoError(t, err)

	_, err = p.LatestRSI(context.Background(), "NXPCUSDT", "5m", 14)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrIndicatorUnavailable))

	// Too few closes from the source is also an indicator failure.
	src = &stubSource{closes: []float64{100}}
	p, _ = NewRSIProvider(src, noopLogger{})
	_, err = p.LatestRSI(context.Background(), "NXPCUSDT", "5m", 14)
	assert.True(t, errors.Is(err, ports.ErrIndicatorUnavailable))

	_, err = p.LatestRSI(context.Background(), "NXPCUSDT", "5m", 0)
	assert.True(t, errors.Is(err, ports.ErrIndicatorUnavailable))
}
