package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"spotFlipBot/config"
	"spotFlipBot/internal/domain"
	"spotFlipBot/internal/ports"
	"spotFlipBot/internal/risk"
	"spotFlipBot/internal/sizing"
	"spotFlipBot/internal/strategy"
)

// TradingService orchestrates the decision engine: it collects the market
// snapshot, runs the stop-loss monitor and the signal evaluator, sizes and
// submits orders, and owns the position state machine updates. One cycle
// runs to completion before the interval timer is re-armed, so no cycle can
// overlap a previous one.
type TradingService struct {
	cfg       *config.Config
	logger    ports.Logger
	exchange  ports.ExchangeClient
	indicator ports.IndicatorProvider
	journal   ports.ExecutionRecorder
	evaluator *strategy.Evaluator
	stopLoss  *risk.Monitor

	// State touched only by the scheduler goroutine.
	state           *domain.PositionState
	rules           *domain.SymbolRules
	lastSnapshot    *domain.MarketSnapshot
	prevCandleClose *float64 // carried across cycles when the candle fetch fails
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	indicator ports.IndicatorProvider,
	journal ports.ExecutionRecorder,
	evaluator *strategy.Evaluator,
	stopLoss *risk.Monitor,
) (*TradingService, error) {

	if cfg == nil || logger == nil || exchange == nil || indicator == nil || journal == nil || evaluator == nil || stopLoss == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if cfg.MonitoringInterval <= 0 {
		return nil, fmt.Errorf("configuration MonitoringInterval must be positive")
	}
	if !cfg.Strategy.IsValid() {
		return nil, fmt.Errorf("configuration Strategy must be LONG or SHORT")
	}

	return &TradingService{
		cfg:       cfg,
		logger:    logger,
		exchange:  exchange,
		indicator: indicator,
		journal:   journal,
		evaluator: evaluator,
		stopLoss:  stopLoss,
		state:     domain.NewPositionState(cfg.InitialSide),
	}, nil
}

// Start runs the engine until the context is canceled: one full cycle
// immediately, then one per monitoring interval. The timer is armed only
// after the previous cycle has fully completed.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting trading service", map[string]interface{}{
		"symbol":   s.cfg.Symbol(),
		"strategy": s.cfg.Strategy,
		"side":     s.state.TradeSide,
		"interval": s.cfg.MonitoringInterval.String(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.exchange.Ping(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to reach exchange")
		return fmt.Errorf("exchange unreachable at startup: %w", err)
	}

	// Instrument rules are fetched once and cached; without them every
	// sizing path fails closed, so a startup failure here is fatal.
	if err := s.RefreshRules(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to fetch instrument rules")
		return fmt.Errorf("failed to fetch instrument rules: %w", err)
	}

	for {
		s.runCycle(ctx)

		timer := time.NewTimer(s.cfg.MonitoringInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info(ctx, "Trading service stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RefreshRules re-fetches the cached instrument rules. This is an explicit
// operation; the cache is never refreshed automatically.
func (s *TradingService) RefreshRules(ctx context.Context) error {
	rules, err := s.exchange.GetSymbolRules(ctx, s.cfg.Symbol())
	if err != nil {
		return err
	}
	s.rules = rules
	return nil
}

// runCycle executes one full decision cycle: snapshot, stop-loss check,
// signal evaluation, at most one order, state update. Every failure is
// converted to a log line and a skipped cycle; nothing propagates out.
func (s *TradingService) runCycle(ctx context.Context) {
	snap, err := s.collectSnapshot(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Cycle aborted, market snapshot unavailable")
		return
	}
	s.lastSnapshot = snap

	if s.checkStopLoss(ctx, snap) {
		// A stop-loss exit and a normal signal are mutually exclusive
		// within one cycle; the stop-loss takes precedence.
		return
	}

	decision := s.evaluator.Evaluate(ctx, s.state, snap)
	s.logCycleStatus(ctx, snap, decision)

	if !decision.Fire {
		return
	}
	switch decision.Action {
	case domain.Sell:
		s.executeSell(ctx, snap)
	case domain.Buy:
		s.executeBuy(ctx, snap)
	}

	if err := s.state.CheckInvariant(); err != nil {
		s.logger.Error(ctx, err, "Position state invariant violated")
	}
}

// collectSnapshot gathers the per-cycle market view. The price is required;
// everything else degrades to nil with a warning and the cycle continues.
func (s *TradingService) collectSnapshot(ctx context.Context) (*domain.MarketSnapshot, error) {
	symbol := s.cfg.Symbol()

	price, err := s.exchange.GetPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrSnapshotUnavailable, err)
	}
	if math.IsNaN(price) || price <= 0 {
		return nil, fmt.Errorf("%w: invalid current price %v", ports.ErrSnapshotUnavailable, price)
	}

	snap := &domain.MarketSnapshot{Price: domain.Float(price)}

	low, high, err := s.exchange.Get24hStats(ctx, symbol)
	if err != nil {
		s.logger.Warn(ctx, "24h stats unavailable this cycle", map[string]interface{}{"error": err.Error()})
	} else {
		snap.DailyLow = domain.Float(low)
		snap.DailyHigh = domain.Float(high)
	}

	if closePrice, err := s.exchange.GetLastClosedCandle(ctx, symbol, s.cfg.CandleInterval); err != nil {
		s.logger.Warn(ctx, "Candle close unavailable this cycle, keeping previous", map[string]interface{}{"error": err.Error()})
	} else {
		s.prevCandleClose = domain.Float(closePrice)
	}
	snap.PrevCandleClose = s.prevCandleClose

	if rsi, err := s.indicator.LatestRSI(ctx, symbol, s.cfg.CandleInterval, s.cfg.RSIPeriod); err != nil {
		// Neutral no-signal cycle: gates that need the oscillator won't fire.
		s.logger.Warn(ctx, "Indicator unavailable this cycle", map[string]interface{}{"error": err.Error()})
	} else {
		snap.RSI = domain.Float(math.Round(rsi))
	}

	return snap, nil
}

// checkStopLoss runs the stop-loss monitor for the open leg and forces an
// exit on a breach. It reports true only when an exit order actually
// filled; a rejected exit leaves the leg open and the cycle falls through
// to normal evaluation.
func (s *TradingService) checkStopLoss(ctx context.Context, snap *domain.MarketSnapshot) bool {
	price := *snap.Price

	switch s.cfg.Strategy {
	case domain.ModeLong:
		stopPrice, triggered := s.stopLoss.CheckLong(s.state, price)
		if !triggered {
			return false
		}
		s.logger.Warn(ctx, "STOP LOSS LONG triggered", map[string]interface{}{
			"currentPrice": price,
			"stopPrice":    stopPrice,
			"buyPrice":     *s.state.BuyPrice,
		})

		qty, err := s.stopLoss.LongExitQuantity(s.state, s.rules)
		if err != nil {
			s.logger.Error(ctx, err, "Cannot size stop-loss exit, no order attempted")
			return false
		}

		s.state.StopLossActive = true
		defer func() { s.state.StopLossActive = false }()

		exec := s.submitOrder(ctx, domain.Sell, qty)
		if exec == nil {
			return false
		}
		s.state.FlipAfterStopLossSell()
		s.logger.Info(ctx, "Stop loss LONG executed, position closed", map[string]interface{}{"side": s.state.TradeSide})
		return true

	case domain.ModeShort:
		stopPrice, triggered := s.stopLoss.CheckShort(s.state, price)
		if !triggered {
			return false
		}
		s.logger.Warn(ctx, "STOP LOSS SHORT triggered", map[string]interface{}{
			"currentPrice": price,
			"stopPrice":    stopPrice,
			"sellPrice":    *s.state.SellPrice,
		})

		bal, err := s.exchange.GetFreeBalances(ctx, s.cfg.BaseAsset, s.cfg.QuoteAsset)
		if err != nil {
			s.logger.Error(ctx, err, "Cannot refresh balances for stop-loss exit, no order attempted")
			return false
		}
		qty, err := s.stopLoss.ShortExitQuantity(bal.Quote, price, s.rules)
		if err != nil {
			s.logger.Error(ctx, err, "Cannot size stop-loss exit, no order attempted")
			return false
		}

		s.state.StopLossActive = true
		defer func() { s.state.StopLossActive = false }()

		exec := s.submitOrder(ctx, domain.Buy, qty)
		if exec == nil {
			return false
		}
		s.state.FlipAfterStopLossBuy()
		s.logger.Info(ctx, "Stop loss SHORT executed, position closed", map[string]interface{}{"side": s.state.TradeSide})
		return true
	}
	return false
}

// executeSell handles a fired sell signal: refresh balances, size, submit,
// flip the state machine on success.
func (s *TradingService) executeSell(ctx context.Context, snap *domain.MarketSnapshot) {
	op := "executeSell"
	bal, err := s.exchange.GetFreeBalances(ctx, s.cfg.BaseAsset, s.cfg.QuoteAsset)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to refresh balances, no order attempted")
		return
	}

	qty, err := s.evaluator.SellQuantity(bal, *snap.Price, s.rules)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to size order")
		return
	}

	exec := s.submitOrder(ctx, domain.Sell, qty)
	if exec == nil {
		return
	}
	s.state.FlipAfterSell()
	s.logger.Info(ctx, op+": sell executed, buy side armed", map[string]interface{}{
		"quantity": exec.ExecutedQty,
		"avgPrice": exec.AvgPrice,
	})
}

// executeBuy handles a fired buy signal.
func (s *TradingService) executeBuy(ctx context.Context, snap *domain.MarketSnapshot) {
	op := "executeBuy"
	bal, err := s.exchange.GetFreeBalances(ctx, s.cfg.BaseAsset, s.cfg.QuoteAsset)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to refresh balances, no order attempted")
		return
	}

	qty, err := s.evaluator.BuyQuantity(s.state, bal, *snap.Price, s.rules)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to size order")
		return
	}

	exec := s.submitOrder(ctx, domain.Buy, qty)
	if exec == nil {
		return
	}
	s.state.FlipAfterBuy()
	s.logger.Info(ctx, op+": buy executed, sell side armed", map[string]interface{}{
		"quantity": exec.ExecutedQty,
		"avgPrice": exec.AvgPrice,
	})
}

// submitOrder rounds the quantity to the exchange step, submits a market
// order and records the fill on the state machine. A nil return means no
// fill happened and the caller must leave the trading side untouched.
func (s *TradingService) submitOrder(ctx context.Context, side domain.OrderSide, desiredQty float64) *domain.Execution {
	rounded, formatted, err := sizing.RoundForOrder(desiredQty, s.rules)
	if err != nil {
		s.logger.Error(ctx, err, "Order sizing failed, no order attempted", map[string]interface{}{"side": side, "desiredQty": desiredQty})
		return nil
	}
	if rounded <= 0 {
		s.logger.Warn(ctx, "Quantity rounds to zero, no order attempted", map[string]interface{}{"side": side, "desiredQty": desiredQty})
		return nil
	}

	clientOrderID := uuid.NewString()
	resp, err := s.exchange.PlaceMarketOrder(ctx, s.cfg.Symbol(), side, formatted, clientOrderID)
	if err != nil {
		if errors.Is(err, ports.ErrOrderRejected) {
			s.logger.Error(ctx, err, "Order rejected by exchange", map[string]interface{}{"side": side, "quantity": formatted})
		} else {
			s.logger.Error(ctx, err, "Order submission failed", map[string]interface{}{"side": side, "quantity": formatted})
		}
		return nil
	}

	s.state.RecordFill(s.cfg.Strategy, side, resp.AvgPrice, resp.ExecutedQty, resp.CumQuoteQty)

	exec := &domain.Execution{
		OrderID:       resp.OrderID,
		ClientOrderID: clientOrderID,
		Symbol:        resp.Symbol,
		Side:          side,
		RequestedQty:  desiredQty,
		RoundedQty:    rounded,
		AvgPrice:      resp.AvgPrice,
		ExecutedQty:   resp.ExecutedQty,
		CumQuote:      resp.CumQuoteQty,
		Status:        resp.Status,
		Timestamp:     resp.Timestamp,
	}
	s.logExecutionReceipt(ctx, exec)

	if _, err := s.journal.RecordExecution(ctx, exec); err != nil {
		// The journal is audit-only; a write failure never blocks trading.
		s.logger.Warn(ctx, "Failed to journal execution", map[string]interface{}{"orderID": exec.OrderID, "error": err.Error()})
	}
	return exec
}

// logExecutionReceipt emits the human-readable receipt, formatted
// distinctly for BUY and SELL fills.
func (s *TradingService) logExecutionReceipt(ctx context.Context, exec *domain.Execution) {
	fields := map[string]interface{}{
		"orderID":   exec.OrderID,
		"symbol":    exec.Symbol,
		"avgPrice":  fmt.Sprintf("%.6f", exec.AvgPrice),
		"quantity":  exec.ExecutedQty,
		"timestamp": exec.Timestamp.Format(time.RFC3339),
		"status":    exec.Status,
	}
	if exec.Side == domain.Sell {
		s.logger.Info(ctx, "SELL EXECUTED", fields)
	} else {
		s.logger.Info(ctx, "BUY EXECUTED", fields)
	}
}

// logCycleStatus emits the per-cycle status line: price, reference fill,
// change, armed side, gate statuses and oscillator value.
func (s *TradingService) logCycleStatus(ctx context.Context, snap *domain.MarketSnapshot, d strategy.Decision) {
	fields := map[string]interface{}{
		"price":    *snap.Price,
		"side":     s.state.TradeSide,
		"interval": s.cfg.CandleInterval,
		"change":   "N/A",
		"rsi":      "N/A",
		"trend":    d.TrendOK,
	}
	if d.ChangePercent != nil {
		fields["change"] = fmt.Sprintf("%.2f%%", *d.ChangePercent)
	}
	if snap.RSI != nil {
		fields["rsi"] = int(*snap.RSI)
	}
	if s.state.TradeSide == domain.Sell {
		fields["secureLow"] = d.AboveDailyLow
		if s.state.SellPrice != nil {
			fields["lastSell"] = fmt.Sprintf("%.6f", *s.state.SellPrice)
		}
		if s.state.BuyPrice != nil {
			fields["lastBuy"] = fmt.Sprintf("%.6f", *s.state.BuyPrice)
		}
	} else {
		fields["secureHigh"] = d.BelowDailyHigh
		if s.state.SellPrice != nil {
			fields["lastSell"] = fmt.Sprintf("%.6f", *s.state.SellPrice)
		}
	}
	s.logger.Info(ctx, "Cycle status", fields)
}
