package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPositionState(t *testing.T) {
	p := NewPositionState(Sell)
	assert.Equal(t, Sell, p.TradeSide)
	assert.Nil(t, p.BuyPrice)
	assert.Nil(t, p.SellPrice)
	assert.False(t, p.StopLossActive)
	assert.NoError(t, p.CheckInvariant())
}

func TestRecordFill(t *testing.T) {
	t.Run("sell fill in short mode opens the short leg", func(t *testing.T) {
		p := NewPositionState(Sell)
		p.RecordFill(ModeShort, Sell, 100.6, 3.0, 301.8)

		require.NotNil(t, p.SellPrice)
		assert.InDelta(t, 100.6, *p.SellPrice, 1e-9)
		require.NotNil(t, p.SellAmount)
		assert.InDelta(t, 3.0, *p.SellAmount, 1e-9) // base quantity, not quote
		assert.Nil(t, p.BuyPrice)
	})

	t.Run("buy fill in long mode opens the long leg", func(t *testing.T) {
		p := NewPositionState(Buy)
		p.RecordFill(ModeLong, Buy, 100.0, 5.0, 500.0)

		require.NotNil(t, p.BuyPrice)
		assert.InDelta(t, 100.0, *p.BuyPrice, 1e-9)
		require.NotNil(t, p.BuyAmount)
		assert.InDelta(t, 500.0, *p.BuyAmount, 1e-9) // quote spent, not quantity
		assert.Nil(t, p.SellPrice)
	})

	t.Run("buy fill in short mode opens nothing", func(t *testing.T) {
		p := NewPositionState(Buy)
		p.RecordFill(ModeShort, Buy, 99.0, 3.0, 297.0)
		assert.Nil(t, p.BuyPrice)
		assert.Nil(t, p.SellPrice)
	})

	t.Run("sell fill in long mode opens nothing", func(t *testing.T) {
		p := NewPositionState(Sell)
		p.RecordFill(ModeLong, Sell, 101.0, 5.0, 505.0)
		assert.Nil(t, p.BuyPrice)
		assert.Nil(t, p.SellPrice)
	})

	t.Run("no leg recorded while a stop loss is in flight", func(t *testing.T) {
		p := NewPositionState(Sell)
		p.StopLossActive = true
		p.RecordFill(ModeShort, Sell, 100.6, 3.0, 301.8)
		assert.Nil(t, p.SellPrice)
		assert.Nil(t, p.SellAmount)
	})
}

func TestFlipTransitions(t *testing.T) {
	t.Run("flip after sell arms buy and clears the long leg", func(t *testing.T) {
		p := NewPositionState(Sell)
		p.BuyPrice = Float(100.0)
		p.BuyAmount = Float(500.0)

		p.FlipAfterSell()

		assert.Equal(t, Buy, p.TradeSide)
		assert.Nil(t, p.BuyPrice)
		assert.Nil(t, p.BuyAmount)
	})

	t.Run("flip after buy arms sell and clears the short leg", func(t *testing.T) {
		p := NewPositionState(Buy)
		p.SellPrice = Float(100.0)
		p.SellAmount = Float(3.0)

		p.FlipAfterBuy()

		assert.Equal(t, Sell, p.TradeSide)
		assert.Nil(t, p.SellPrice)
		assert.Nil(t, p.SellAmount)
	})

	t.Run("stop loss sell keeps the spent amount", func(t *testing.T) {
		p := NewPositionState(Sell)
		p.BuyPrice = Float(100.0)
		p.BuyAmount = Float(500.0)

		p.FlipAfterStopLossSell()

		assert.Equal(t, Buy, p.TradeSide)
		assert.Nil(t, p.BuyPrice)
		require.NotNil(t, p.BuyAmount)
		assert.InDelta(t, 500.0, *p.BuyAmount, 1e-9)
	})

	t.Run("stop loss buy keeps the sold quantity", func(t *testing.T) {
		p := NewPositionState(Buy)
		p.SellPrice = Float(100.0)
		p.SellAmount = Float(3.0)

		p.FlipAfterStopLossBuy()

		assert.Equal(t, Sell, p.TradeSide)
		assert.Nil(t, p.SellPrice)
		require.NotNil(t, p.SellAmount)
		assert.InDelta(t, 3.0, *p.SellAmount, 1e-9)
	})
}

// A full flip sequence never leaves both reference prices set.
func TestInvariantAcrossFlipSequence(t *testing.T) {
	p := NewPositionState(Sell)

	p.RecordFill(ModeShort, Sell, 100.6, 3.0, 301.8)
	p.FlipAfterSell()
	assert.NoError(t, p.CheckInvariant())
	assert.Equal(t, Buy, p.TradeSide)

	p.RecordFill(ModeShort, Buy, 99.0, 3.03, 299.97)
	p.FlipAfterBuy()
	assert.NoError(t, p.CheckInvariant())
	assert.Equal(t, Sell, p.TradeSide)
	assert.Nil(t, p.SellPrice)
}

func TestCheckInvariantViolation(t *testing.T) {
	p := NewPositionState(Sell)
	p.BuyPrice = Float(100.0)
	p.SellPrice = Float(101.0)
	assert.Error(t, p.CheckInvariant())
}

func TestClone(t *testing.T) {
	p := NewPositionState(Buy)
	p.SellPrice = Float(100.0)
	p.SellAmount = Float(3.0)
	p.StopLossActive = true

	c := p.Clone()
	require.NotSame(t, p, c)
	assert.Equal(t, p, c)

	// Mutating the clone leaves the original alone.
	*c.SellPrice = 200.0
	c.TradeSide = Sell
	assert.InDelta(t, 100.0, *p.SellPrice, 1e-9)
	assert.Equal(t, Buy, p.TradeSide)
}

func TestOrderSideOpposite(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
}

func TestStrategyModeIsValid(t *testing.T) {
	assert.True(t, ModeLong.IsValid())
	assert.True(t, ModeShort.IsValid())
	assert.False(t, StrategyMode("SIDEWAYS").IsValid())
	assert.False(t, StrategyMode("").IsValid())
}
