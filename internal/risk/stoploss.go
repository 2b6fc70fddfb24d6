package risk

import (
	"fmt"
	"math"

	"spotFlipBot/internal/domain"
	"spotFlipBot/internal/ports"
)

// Config holds the maximum-loss thresholds, in percent of the leg's
// reference price (e.g. 0.5 means 0.5%).
type Config struct {
	LongPercent  float64 // loss tolerated below the buy price before a forced SELL
	ShortPercent float64 // rise tolerated above the sell price before a forced BUY
}

// Monitor checks every cycle whether the open leg has breached its
// maximum-loss threshold. It only decides; order submission and the state
// flip stay with the engine so a rejected exit leaves the leg open.
type Monitor struct {
	cfg    Config
	logger ports.Logger
}

// NewMonitor creates a stop-loss monitor.
func NewMonitor(cfg Config, logger ports.Logger) (*Monitor, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for stop-loss monitor")
	}
	if cfg.LongPercent < 0 || cfg.ShortPercent < 0 {
		return nil, fmt.Errorf("stop-loss percentages cannot be negative")
	}
	return &Monitor{cfg: cfg, logger: logger}, nil
}

// LongStopPrice is the price at or below which an open long leg must exit.
func (m *Monitor) LongStopPrice(buyPrice float64) float64 {
	return buyPrice * (1 - m.cfg.LongPercent/100)
}

// ShortStopPrice is the price at or above which an open short leg must exit.
func (m *Monitor) ShortStopPrice(sellPrice float64) float64 {
	return sellPrice * (1 + m.cfg.ShortPercent/100)
}

// CheckLong reports whether the open long leg breached its threshold.
// The check is active only while the sell side is armed with a recorded buy
// price, i.e. while a long leg is actually open.
func (m *Monitor) CheckLong(state *domain.PositionState, currentPrice float64) (stopPrice float64, triggered bool) {
	if state.TradeSide != domain.Sell || state.BuyPrice == nil {
		return 0, false
	}
	stopPrice = m.LongStopPrice(*state.BuyPrice)
	return stopPrice, currentPrice <= stopPrice
}

// CheckShort reports whether the open short leg breached its threshold.
func (m *Monitor) CheckShort(state *domain.PositionState, currentPrice float64) (stopPrice float64, triggered bool) {
	if state.TradeSide != domain.Buy || state.SellPrice == nil {
		return 0, false
	}
	stopPrice = m.ShortStopPrice(*state.SellPrice)
	return stopPrice, currentPrice >= stopPrice
}

// LongExitQuantity sizes the forced SELL that closes a breached long leg:
// everything the leg bought, floored at the exchange minimum notional.
func (m *Monitor) LongExitQuantity(state *domain.PositionState, rules *domain.SymbolRules) (float64, error) {
	if rules == nil {
		return 0, ports.ErrRulesUnavailable
	}
	if state.BuyPrice == nil || *state.BuyPrice <= 0 {
		return 0, fmt.Errorf("no buy price recorded for long exit")
	}
	var spent float64
	if state.BuyAmount != nil {
		spent = *state.BuyAmount
	}
	return math.Max(spent / *state.BuyPrice, rules.MinNotional / *state.BuyPrice), nil
}

// ShortExitQuantity sizes the forced BUY that closes a breached short leg
// from the freshly refreshed quote balance.
func (m *Monitor) ShortExitQuantity(freeQuote, currentPrice float64, rules *domain.SymbolRules) (float64, error) {
	if rules == nil {
		return 0, ports.ErrRulesUnavailable
	}
	if currentPrice <= 0 {
		return 0, fmt.Errorf("invalid current price %v for short exit", currentPrice)
	}
	return math.Max(freeQuote/currentPrice, rules.MinQty), nil
}
