package app

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotFlipBot/config"
	"spotFlipBot/internal/domain"
	"spotFlipBot/internal/ports"
	"spotFlipBot/internal/risk"
	"spotFlipBot/internal/strategy"
)

// Mock implementations
type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type placedOrder struct {
	symbol   string
	side     domain.OrderSide
	quantity string
}

type mockExchange struct {
	price       float64
	priceErr    error
	low, high   float64
	statsErr    error
	candleClose float64
	candleErr   error
	closes      []float64
	closesErr   error
	rules       *domain.SymbolRules
	rulesErr    error
	balances    *domain.Balances
	balancesErr error

	fillPrice float64 // avg price reported on each fill
	orderErr  error
	placed    []placedOrder
	nextID    int64
}

func (m *mockExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return m.price, m.priceErr
}

func (m *mockExchange) Get24hStats(ctx context.Context, symbol string) (float64, float64, error) {
	return m.low, m.high, m.statsErr
}

func (m *mockExchange) GetLastClosedCandle(ctx context.Context, symbol, interval string) (float64, error) {
	return m.candleClose, m.candleErr
}

func (m *mockExchange) GetRecentCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	return m.closes, m.closesErr
}

func (m *mockExchange) GetSymbolRules(ctx context.Context, symbol string) (*domain.SymbolRules, error) {
	return m.rules, m.rulesErr
}

func (m *mockExchange) GetFreeBalances(ctx context.Context, baseAsset, quoteAsset string) (*domain.Balances, error) {
	return m.balances, m.balancesErr
}

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, clientOrderID string) (*ports.OrderResponse, error) {
	m.placed = append(m.placed, placedOrder{symbol: symbol, side: side, quantity: quantity})
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	qty, err := strconv.ParseFloat(quantity, 64)
	if err != nil {
		return nil, err
	}
	m.nextID++
	return &ports.OrderResponse{
		OrderID:       m.nextID,
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		ExecutedQty:   qty,
		CumQuoteQty:   qty * m.fillPrice,
		AvgPrice:      m.fillPrice,
		Status:        "FILLED",
		Timestamp:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (m *mockExchange) Ping(ctx context.Context) error {
	return nil
}

type stubIndicator struct {
	rsi float64
	err error
}

func (s *stubIndicator) LatestRSI(ctx context.Context, symbol, interval string, period int) (float64, error) {
	return s.rsi, s.err
}

type stubJournal struct {
	records []*domain.Execution
	err     error
}

func (s *stubJournal) RecordExecution(ctx context.Context, exec *domain.Execution) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.records = append(s.records, exec)
	return int64(len(s.records)), nil
}

func (s *stubJournal) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Execution, error) {
	return s.records, s.err
}

func testConfig(mode domain.StrategyMode, initial domain.OrderSide) *config.Config {
	return &config.Config{
		APIKey:             "key",
		SecretKey:          "secret",
		BaseAsset:          "NXPC",
		QuoteAsset:         "USDT",
		Strategy:           mode,
		InitialSide:        initial,
		CandleInterval:     "5m",
		RSIPeriod:          14,
		RSIBuyCeiling:      55,
		RSISellFloor:       60,
		TargetSellMove:     0.5,
		TargetBuyMove:      0.5,
		TrendGuard:         1.0,
		SecureLowRatio:     1.01,
		SecureHighRatio:    1.00,
		StopLossLong:       0.5,
		StopLossShort:      0.5,
		MonitoringInterval: 60 * time.Second,
	}
}

func newTestService(t *testing.T, cfg *config.Config, exch *mockExchange, ind *stubIndicator, journal *stubJournal) (*TradingService, *mockLogger) {
	t.Helper()
	log := &mockLogger{}

	eval, err := strategy.New(strategy.Config{
		Mode:            cfg.Strategy,
		RSIBuyCeiling:   cfg.RSIBuyCeiling,
		RSISellFloor:    cfg.RSISellFloor,
		TargetSellMove:  cfg.TargetSellMove,
		TargetBuyMove:   cfg.TargetBuyMove,
		TrendGuard:      cfg.TrendGuard,
		SecureLowRatio:  cfg.SecureLowRatio,
		SecureHighRatio: cfg.SecureHighRatio,
	}, log)
	require.NoError(t, err)

	monitor, err := risk.NewMonitor(risk.Config{
		LongPercent:  cfg.StopLossLong,
		ShortPercent: cfg.StopLossShort,
	}, log)
	require.NoError(t, err)

	svc, err := NewTradingService(cfg, log, exch, ind, journal, eval, monitor)
	require.NoError(t, err)

	require.NoError(t, svc.RefreshRules(context.Background()))
	return svc, log
}

func defaultRules() *domain.SymbolRules {
	return &domain.SymbolRules{MinQty: 0.001, MinNotional: 5.0, StepSize: 0.001}
}

func TestNewTradingService_Validation(t *testing.T) {
	log := &mockLogger{}
	exch := &mockExchange{}
	ind := &stubIndicator{}
	journal := &stubJournal{}
	cfg := testConfig(domain.ModeShort, domain.Sell)

	eval, err := strategy.New(strategy.Config{
		Mode: cfg.Strategy, SecureLowRatio: 1.01, SecureHighRatio: 1.0,
	}, log)
	require.NoError(t, err)
	monitor, err := risk.NewMonitor(risk.Config{}, log)
	require.NoError(t, err)

	t.Run("missing dependency", func(t *testing.T) {
		_, err := NewTradingService(cfg, log, nil, ind, journal, eval, monitor)
		assert.Error(t, err)
	})

	t.Run("invalid interval", func(t *testing.T) {
		bad := *cfg
		bad.MonitoringInterval = 0
		_, err := NewTradingService(&bad, log, exch, ind, journal, eval, monitor)
		assert.Error(t, err)
	})

	t.Run("invalid strategy", func(t *testing.T) {
		bad := *cfg
		bad.Strategy = domain.StrategyMode("SIDEWAYS")
		_, err := NewTradingService(&bad, log, exch, ind, journal, eval, monitor)
		assert.Error(t, err)
	})

	t.Run("valid", func(t *testing.T) {
		svc, err := NewTradingService(cfg, log, exch, ind, journal, eval, monitor)
		require.NoError(t, err)
		assert.Equal(t, domain.Sell, svc.state.TradeSide)
	})
}

func TestRunCycle_ShortSellFiresAndFlips(t *testing.T) {
	exch := &mockExchange{
		price:       100.6,
		low:         95.0,
		high:        120.0,
		candleClose: 100.0,
		rules:       defaultRules(),
		balances:    &domain.Balances{Base: 3.0007, Quote: 10.0},
		fillPrice:   100.6,
	}
	ind := &stubIndicator{rsi: 65}
	journal := &stubJournal{}
	svc, _ := newTestService(t, testConfig(domain.ModeShort, domain.Sell), exch, ind, journal)

	svc.runCycle(context.Background())

	require.Len(t, exch.placed, 1)
	assert.Equal(t, domain.Sell, exch.placed[0].side)
	assert.Equal(t, "NXPCUSDT", exch.placed[0].symbol)
	assert.Equal(t, "3.000", exch.placed[0].quantity) // 3.0007 floored to step 0.001

	// Fill recorded on the short leg, then the buy side armed.
	assert.Equal(t, domain.Buy, svc.state.TradeSide)
	require.NotNil(t, svc.state.SellPrice)
	assert.InDelta(t, 100.6, *svc.state.SellPrice, 1e-9)
	require.NotNil(t, svc.state.SellAmount)
	assert.InDelta(t, 3.0, *svc.state.SellAmount, 1e-9)
	assert.Nil(t, svc.state.BuyPrice)
	assert.NoError(t, svc.state.CheckInvariant())

	// Execution journaled.
	require.Len(t, journal.records, 1)
	assert.Equal(t, domain.Sell, journal.records[0].Side)
	assert.InDelta(t, 100.6, journal.records[0].AvgPrice, 1e-9)
	assert.NotEmpty(t, journal.records[0].ClientOrderID)
}

func TestRunCycle_SnapshotUnavailableLeavesStateUntouched(t *testing.T) {
	exch := &mockExchange{
		priceErr: errors.New("ticker endpoint down"),
		rules:    defaultRules(),
	}
	svc, log := newTestService(t, testConfig(domain.ModeShort, domain.Sell), exch, &stubIndicator{rsi: 65}, &stubJournal{})
	svc.state.SellPrice = domain.Float(100.0)
	before := svc.state.Clone()

	svc.runCycle(context.Background())

	assert.Empty(t, exch.placed)
	assert.Equal(t, before, svc.state)
	assert.NotEmpty(t, log.errorMsgs)
}

func TestRunCycle_DegradedSnapshotStillEvaluates(t *testing.T) {
	// Stats, candle and indicator all fail; only the price survives. No gate
	// can pass without a basis so nothing fires, but the cycle completes.
	exch := &mockExchange{
		price:     100.6,
		statsErr:  errors.New("stats down"),
		candleErr: errors.New("klines down"),
		rules:     defaultRules(),
		balances:  &domain.Balances{Base: 3.0, Quote: 10.0},
	}
	ind := &stubIndicator{err: ports.ErrIndicatorUnavailable}
	svc, log := newTestService(t, testConfig(domain.ModeShort, domain.Sell), exch, ind, &stubJournal{})

	svc.runCycle(context.Background())

	assert.Empty(t, exch.placed)
	assert.Equal(t, domain.Sell, svc.state.TradeSide)
	assert.Len(t, log.warnMsgs, 3)
}

func TestRunCycle_CandleCloseCarriedAcrossCycles(t *testing.T) {
	exch := &mockExchange{
		price:       100.6,
		low:         95.0,
		high:        120.0,
		candleClose: 100.0,
		rules:       defaultRules(),
		balances:    &domain.Balances{Base: 3.0, Quote: 10.0},
		fillPrice:   100.6,
		orderErr:    errors.New("down for maintenance"), // keep the state parked on SELL
	}
	ind := &stubIndicator{rsi: 65}
	svc, _ := newTestService(t, testConfig(domain.ModeShort, domain.Sell), exch, ind, &stubJournal{})

	svc.runCycle(context.Background())
	require.Len(t, exch.placed, 1)

	// Next cycle loses the candle feed; the previous close keeps the signal alive.
	exch.candleErr = errors.New("klines down")
	exch.orderErr = nil
	svc.runCycle(context.Background())

	require.Len(t, exch.placed, 2)
	assert.Equal(t, domain.Buy, svc.state.TradeSide)
}

func TestRunCycle_StopLossShortRejectedLeavesLegOpen(t *testing.T) {
	exch := &mockExchange{
		price:       101.0, // above stop 100.5
		low:         95.0,
		high:        120.0,
		candleClose: 100.0,
		rules:       defaultRules(),
		balances:    &domain.Balances{Base: 0.0, Quote: 300.0},
		orderErr:    ports.ErrOrderRejected,
	}
	ind := &stubIndicator{rsi: 40}
	svc, log := newTestService(t, testConfig(domain.ModeShort, domain.Buy), exch, ind, &stubJournal{})
	svc.state.SellPrice = domain.Float(100.0)
	svc.state.SellAmount = domain.Float(3.0)

	svc.runCycle(context.Background())

	// Forced BUY was attempted and rejected.
	require.Len(t, exch.placed, 1)
	assert.Equal(t, domain.Buy, exch.placed[0].side)

	// Leg stays open, side unchanged, flag cleared.
	assert.Equal(t, domain.Buy, svc.state.TradeSide)
	require.NotNil(t, svc.state.SellPrice)
	assert.InDelta(t, 100.0, *svc.state.SellPrice, 1e-9)
	assert.False(t, svc.state.StopLossActive)
	assert.Contains(t, log.errorMsgs, "Order rejected by exchange")
}

func TestRunCycle_StopLossShortExecutesAndSuppressesEvaluator(t *testing.T) {
	exch := &mockExchange{
		price:       101.0,
		low:         95.0,
		high:        120.0,
		candleClose: 100.0,
		rules:       defaultRules(),
		balances:    &domain.Balances{Base: 0.0, Quote: 300.0},
		fillPrice:   101.0,
	}
	ind := &stubIndicator{rsi: 40}
	journal := &stubJournal{}
	svc, _ := newTestService(t, testConfig(domain.ModeShort, domain.Buy), exch, ind, journal)
	svc.state.SellPrice = domain.Float(100.0)
	svc.state.SellAmount = domain.Float(3.0)

	svc.runCycle(context.Background())

	// Exactly one order this cycle: the forced exit. 300 USDT / 101.
	require.Len(t, exch.placed, 1)
	assert.Equal(t, domain.Buy, exch.placed[0].side)
	assert.Equal(t, "2.970", exch.placed[0].quantity)

	// Position closed: sell side re-armed, reference price cleared, the
	// stop-loss fill never recorded as a fresh leg.
	assert.Equal(t, domain.Sell, svc.state.TradeSide)
	assert.Nil(t, svc.state.SellPrice)
	assert.Nil(t, svc.state.BuyPrice)
	assert.False(t, svc.state.StopLossActive)

	require.Len(t, journal.records, 1)
	assert.Equal(t, domain.Buy, journal.records[0].Side)
}

func TestRunCycle_StopLossLongBoundary(t *testing.T) {
	exch := &mockExchange{
		low:         95.0,
		high:        120.0,
		candleClose: 100.0,
		rules:       defaultRules(),
		balances:    &domain.Balances{Base: 5.0, Quote: 0.0},
		fillPrice:   99.5,
	}
	ind := &stubIndicator{rsi: 40}

	t.Run("one tick above stop does not trigger", func(t *testing.T) {
		exch.price = 99.51
		exch.placed = nil
		svc, _ := newTestService(t, testConfig(domain.ModeLong, domain.Sell), exch, ind, &stubJournal{})
		svc.state.BuyPrice = domain.Float(100.0)
		svc.state.BuyAmount = domain.Float(500.0)

		svc.runCycle(context.Background())

		assert.Empty(t, exch.placed)
		assert.Equal(t, domain.Sell, svc.state.TradeSide)
	})

	t.Run("at the stop price the exit fires", func(t *testing.T) {
		exch.price = 99.5 // 100 * (1 - 0.5/100)
		exch.placed = nil
		svc, _ := newTestService(t, testConfig(domain.ModeLong, domain.Sell), exch, ind, &stubJournal{})
		svc.state.BuyPrice = domain.Float(100.0)
		svc.state.BuyAmount = domain.Float(500.0)

		svc.runCycle(context.Background())

		require.Len(t, exch.placed, 1)
		assert.Equal(t, domain.Sell, exch.placed[0].side)
		assert.Equal(t, "5.000", exch.placed[0].quantity) // 500 spent / 100 entry

		assert.Equal(t, domain.Buy, svc.state.TradeSide)
		assert.Nil(t, svc.state.BuyPrice)
		require.NotNil(t, svc.state.BuyAmount) // kept to size the re-entry
		assert.InDelta(t, 500.0, *svc.state.BuyAmount, 1e-9)
	})
}

func TestRunCycle_BuySignalFiresInShortMode(t *testing.T) {
	// Short leg open at 100, price dropped 1% to 99: buy back fires.
	exch := &mockExchange{
		price:       99.0,
		low:         95.0,
		high:        120.0,
		candleClose: 100.0,
		rules:       defaultRules(),
		balances:    &domain.Balances{Base: 3.0, Quote: 300.0},
		fillPrice:   99.0,
	}
	ind := &stubIndicator{rsi: 40}
	svc, _ := newTestService(t, testConfig(domain.ModeShort, domain.Buy), exch, ind, &stubJournal{})
	svc.state.SellPrice = domain.Float(100.0)
	svc.state.SellAmount = domain.Float(3.0)

	svc.runCycle(context.Background())

	require.Len(t, exch.placed, 1)
	assert.Equal(t, domain.Buy, exch.placed[0].side)
	// 3.0 base * 100 sell price / 99 current = 3.0303..., floored to step.
	assert.Equal(t, "3.030", exch.placed[0].quantity)

	assert.Equal(t, domain.Sell, svc.state.TradeSide)
	assert.Nil(t, svc.state.SellPrice)
	assert.Nil(t, svc.state.SellAmount)
}

func TestRunCycle_BalanceRefreshFailureSkipsOrder(t *testing.T) {
	exch := &mockExchange{
		price:       100.6,
		low:         95.0,
		high:        120.0,
		candleClose: 100.0,
		rules:       defaultRules(),
		balancesErr: errors.New("account endpoint down"),
	}
	ind := &stubIndicator{rsi: 65}
	svc, log := newTestService(t, testConfig(domain.ModeShort, domain.Sell), exch, ind, &stubJournal{})
	before := svc.state.Clone()

	svc.runCycle(context.Background())

	assert.Empty(t, exch.placed)
	assert.Equal(t, before, svc.state)
	assert.NotEmpty(t, log.errorMsgs)
}

func TestRunCycle_JournalFailureDoesNotBlockTrading(t *testing.T) {
	exch := &mockExchange{
		price:       100.6,
		low:         95.0,
		high:        120.0,
		candleClose: 100.0,
		rules:       defaultRules(),
		balances:    &domain.Balances{Base: 3.0, Quote: 10.0},
		fillPrice:   100.6,
	}
	ind := &stubIndicator{rsi: 65}
	journal := &stubJournal{err: errors.New("disk full")}
	svc, log := newTestService(t, testConfig(domain.ModeShort, domain.Sell), exch, ind, journal)

	svc.runCycle(context.Background())

	require.Len(t, exch.placed, 1)
	assert.Equal(t, domain.Buy, svc.state.TradeSide)
	assert.Contains(t, log.warnMsgs, "Failed to journal execution")
}

func TestRefreshRules(t *testing.T) {
	exch := &mockExchange{rules: defaultRules()}
	svc, _ := newTestService(t, testConfig(domain.ModeShort, domain.Sell), exch, &stubIndicator{}, &stubJournal{})

	exch.rules = &domain.SymbolRules{MinQty: 0.01, MinNotional: 10.0, StepSize: 0.01}
	require.NoError(t, svc.RefreshRules(context.Background()))
	assert.InDelta(t, 0.01, svc.rules.StepSize, 1e-12)

	exch.rulesErr = ports.ErrRulesUnavailable
	err := svc.RefreshRules(context.Background())
	require.Error(t, err)
	// The failed refresh keeps the previously cached rules.
	assert.InDelta(t, 0.01, svc.rules.StepSize, 1e-12)
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	exch := &mockExchange{
		price:       100.0,
		low:         95.0,
		high:        120.0,
		candleClose: 100.0,
		rules:       defaultRules(),
		balances:    &domain.Balances{Base: 3.0, Quote: 10.0},
	}
	cfg := testConfig(domain.ModeShort, domain.Sell)
	cfg.MonitoringInterval = 10 * time.Millisecond
	svc, _ := newTestService(t, cfg, exch, &stubIndicator{rsi: 50}, &stubJournal{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop after context cancellation")
	}
}
