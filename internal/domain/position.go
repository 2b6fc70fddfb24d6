package domain

import "fmt"

// PositionState owns the authoritative trading-side state of the engine.
// Exactly one side is armed at a time; the reference prices of the open leg
// determine stop-loss and exit math. All mutation goes through the methods
// below and happens only as the side effect of a successfully filled order.
// The single scheduler goroutine is the only writer, so no locking is needed.
type PositionState struct {
	TradeSide OrderSide

	// Open long leg (LONG mode only): average entry price and the
	// quote-denominated amount spent to open it.
	BuyPrice  *float64
	BuyAmount *float64

	// Open short leg (SHORT mode only): average sell price and the
	// base-denominated quantity sold.
	SellPrice  *float64
	SellAmount *float64

	// StopLossActive is set while a stop-loss exit is in flight so the fill
	// is not recorded as a fresh leg and no normal exit can race it.
	StopLossActive bool
}

// NewPositionState creates the initial state with the configured armed side.
func NewPositionState(initial OrderSide) *PositionState {
	return &PositionState{TradeSide: initial}
}

// RecordFill stores the reference prices of a freshly opened leg.
// A SELL fill in SHORT mode opens the short leg; a BUY fill in LONG mode
// opens the long leg. Stop-loss exits open nothing.
func (p *PositionState) RecordFill(mode StrategyMode, side OrderSide, avgPrice, executedQty, cumQuote float64) {
	if p.StopLossActive {
		return
	}
	switch {
	case side == Sell && mode == ModeShort:
		p.SellPrice = Float(avgPrice)
		p.SellAmount = Float(executedQty)
	case side == Buy && mode == ModeLong:
		p.BuyPrice = Float(avgPrice)
		p.BuyAmount = Float(cumQuote)
	}
}

// FlipAfterSell arms the buy side after a successful normal sell and clears
// the long leg entirely.
func (p *PositionState) FlipAfterSell() {
	p.TradeSide = Buy
	p.BuyPrice = nil
	p.BuyAmount = nil
}

// FlipAfterBuy arms the sell side after a successful normal buy and clears
// the short leg entirely.
func (p *PositionState) FlipAfterBuy() {
	p.TradeSide = Sell
	p.SellPrice = nil
	p.SellAmount = nil
}

// FlipAfterStopLossSell closes the long leg after a stop-loss exit.
// The spent amount is kept as a sizing reference for the next entry.
func (p *PositionState) FlipAfterStopLossSell() {
	p.TradeSide = Buy
	p.BuyPrice = nil
}

// FlipAfterStopLossBuy closes the short leg after a stop-loss exit.
func (p *PositionState) FlipAfterStopLossBuy() {
	p.TradeSide = Sell
	p.SellPrice = nil
}

// CheckInvariant reports a violation of the one-open-leg rule.
func (p *PositionState) CheckInvariant() error {
	if p.BuyPrice != nil && p.SellPrice != nil {
		return fmt.Errorf("position state invalid: buy price %.8f and sell price %.8f both set", *p.BuyPrice, *p.SellPrice)
	}
	return nil
}

// Clone returns a deep copy.
func (p *PositionState) Clone() *PositionState {
	c := &PositionState{TradeSide: p.TradeSide, StopLossActive: p.StopLossActive}
	if p.BuyPrice != nil {
		c.BuyPrice = Float(*p.BuyPrice)
	}
	if p.BuyAmount != nil {
		c.BuyAmount = Float(*p.BuyAmount)
	}
	if p.SellPrice != nil {
		c.SellPrice = Float(*p.SellPrice)
	}
	if p.SellAmount != nil {
		c.SellAmount = Float(*p.SellAmount)
	}
	return c
}

// Float converts a value to a pointer, for the nullable reference fields.
func Float(v float64) *float64 {
	return &v
}
