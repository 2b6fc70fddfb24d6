package strategy

import (
	"context"
	"fmt"
	"math"

	"spotFlipBot/internal/domain"
	"spotFlipBot/internal/ports"
)

// Config holds the thresholds and ratios for signal evaluation.
// RSI bounds of 0 are a deliberate bypass: the corresponding gate always
// passes regardless of the oscillator value.
type Config struct {
	Mode            domain.StrategyMode
	RSIBuyCeiling   float64 // buy only at or below this RSI; 0 bypasses
	RSISellFloor    float64 // sell only at or above this RSI; 0 bypasses
	TargetSellMove  float64 // percent move that arms a sell
	TargetBuyMove   float64 // percent drop that arms a buy
	TrendGuard      float64 // percent, loose anti-spike filter
	SecureLowRatio  float64 // sell only above dailyLow * ratio
	SecureHighRatio float64 // buy only below dailyHigh / ratio
}

// Evaluator decides whether a normal entry or exit is warranted this cycle.
// It is purely a decision component: balances, sizing against the exchange
// rules and order submission stay with the engine.
type Evaluator struct {
	cfg    Config
	logger ports.Logger
}

// New creates an Evaluator.
func New(cfg Config, logger ports.Logger) (*Evaluator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for evaluator")
	}
	if !cfg.Mode.IsValid() {
		return nil, fmt.Errorf("unknown strategy mode %q", cfg.Mode)
	}
	if cfg.SecureLowRatio <= 0 || cfg.SecureHighRatio <= 0 {
		return nil, fmt.Errorf("secure band ratios must be positive")
	}
	if cfg.RSIBuyCeiling < 0 || cfg.RSISellFloor < 0 {
		return nil, fmt.Errorf("RSI bounds cannot be negative")
	}
	return &Evaluator{cfg: cfg, logger: logger}, nil
}

// Decision is the verdict for one cycle, with every gate status exposed for
// the per-cycle status log.
type Decision struct {
	Action         domain.OrderSide // set when Fire is true
	Fire           bool
	ChangePercent  *float64 // nil when the basis price is unknown this cycle
	RSIGateOK      bool
	TrendOK        bool
	AboveDailyLow  bool
	BelowDailyHigh bool
}

// basisKey selects the reference price for the percentage change.
type basisKey struct {
	Mode domain.StrategyMode
	Side domain.OrderSide
}

// changeBasis maps every (strategy, side) combination to its basis price.
// While the at-risk leg is open the change is measured against its fill
// price; while waiting to open one it is measured against the last closed
// candle.
var changeBasis = map[basisKey]func(*domain.PositionState, *domain.MarketSnapshot) *float64{
	{domain.ModeShort, domain.Sell}: func(_ *domain.PositionState, s *domain.MarketSnapshot) *float64 { return s.PrevCandleClose },
	{domain.ModeShort, domain.Buy}:  func(p *domain.PositionState, _ *domain.MarketSnapshot) *float64 { return p.SellPrice },
	{domain.ModeLong, domain.Buy}:   func(_ *domain.PositionState, s *domain.MarketSnapshot) *float64 { return s.PrevCandleClose },
	{domain.ModeLong, domain.Sell}:  func(p *domain.PositionState, _ *domain.MarketSnapshot) *float64 { return p.BuyPrice },
}

// ChangePercent computes the percentage change of the current price against
// the basis for the active (strategy, side) combination. Nil when the basis
// or the price is unknown this cycle.
func (e *Evaluator) ChangePercent(state *domain.PositionState, snap *domain.MarketSnapshot) *float64 {
	if snap.Price == nil {
		return nil
	}
	pick, ok := changeBasis[basisKey{e.cfg.Mode, state.TradeSide}]
	if !ok {
		return nil
	}
	basis := pick(state, snap)
	if basis == nil || *basis == 0 {
		return nil
	}
	return domain.Float((*snap.Price - *basis) / *basis * 100)
}

// Evaluate runs the full gate set for the currently armed side. The trend
// gate is evaluated against the current cycle's change.
func (e *Evaluator) Evaluate(ctx context.Context, state *domain.PositionState, snap *domain.MarketSnapshot) Decision {
	d := Decision{Action: state.TradeSide}
	if snap.Price == nil {
		return d
	}
	price := *snap.Price
	d.ChangePercent = e.ChangePercent(state, snap)
	d.AboveDailyLow = snap.DailyLow != nil && price > *snap.DailyLow*e.cfg.SecureLowRatio
	d.BelowDailyHigh = snap.DailyHigh != nil && price < *snap.DailyHigh/e.cfg.SecureHighRatio

	if state.TradeSide == domain.Sell {
		d.RSIGateOK = e.cfg.RSISellFloor == 0 || (snap.RSI != nil && *snap.RSI >= e.cfg.RSISellFloor)
		d.TrendOK = d.ChangePercent != nil && *d.ChangePercent <= e.cfg.TrendGuard
		d.Fire = d.RSIGateOK && d.TrendOK && d.AboveDailyLow &&
			d.ChangePercent != nil && *d.ChangePercent >= e.cfg.TargetSellMove
	} else {
		d.RSIGateOK = e.cfg.RSIBuyCeiling == 0 || (snap.RSI != nil && *snap.RSI <= e.cfg.RSIBuyCeiling)
		d.TrendOK = d.ChangePercent != nil && *d.ChangePercent >= -e.cfg.TrendGuard
		d.Fire = d.RSIGateOK && d.TrendOK && d.BelowDailyHigh &&
			d.ChangePercent != nil && *d.ChangePercent <= -e.cfg.TargetBuyMove
	}

	if d.Fire {
		e.logger.Debug(ctx, "signal fired", map[string]interface{}{
			"side":   d.Action,
			"change": *d.ChangePercent,
		})
	}
	return d
}

// SellQuantity sizes a normal exit from the refreshed balances: the full
// base holding in SHORT mode, the quote balance converted at the current
// price in LONG mode, floored at the exchange minimum quantity.
func (e *Evaluator) SellQuantity(bal *domain.Balances, currentPrice float64, rules *domain.SymbolRules) (float64, error) {
	if rules == nil {
		return 0, ports.ErrRulesUnavailable
	}
	if e.cfg.Mode == domain.ModeShort {
		return math.Max(bal.Base, rules.MinQty), nil
	}
	if currentPrice <= 0 {
		return 0, fmt.Errorf("invalid current price %v for sell sizing", currentPrice)
	}
	return math.Max(bal.Quote/currentPrice, rules.MinQty), nil
}

// BuyQuantity sizes a normal entry: in SHORT mode it buys back the notional
// of the open short leg, in LONG mode it deploys the quote balance; both are
// floored at the minimum notional converted to quantity.
func (e *Evaluator) BuyQuantity(state *domain.PositionState, bal *domain.Balances, currentPrice float64, rules *domain.SymbolRules) (float64, error) {
	if rules == nil {
		return 0, ports.ErrRulesUnavailable
	}
	if currentPrice <= 0 {
		return 0, fmt.Errorf("invalid current price %v for buy sizing", currentPrice)
	}
	minNotionalQty := rules.MinNotional / currentPrice
	if e.cfg.Mode == domain.ModeShort && state.SellPrice != nil {
		notional := bal.Base * *state.SellPrice
		return math.Max(notional/currentPrice, minNotionalQty), nil
	}
	return math.Max(bal.Quote/currentPrice, minNotionalQty), nil
}
