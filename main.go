package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"spotFlipBot/config"
	"spotFlipBot/internal/adapters/binanceclient"
	"spotFlipBot/internal/adapters/logger"
	"spotFlipBot/internal/adapters/sqlite"
	"spotFlipBot/internal/app"
	"spotFlipBot/internal/indicator"
	"spotFlipBot/internal/risk"
	"spotFlipBot/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Execution Journal
	journal, err := sqlite.NewJournal(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize execution journal")
		log.Fatalf("FATAL: Failed to initialize execution journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing execution journal")
		}
	}()

	// 4. Initialize Exchange Client (Binance Spot Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 5. Initialize Indicator Provider
	rsiProvider, err := indicator.NewRSIProvider(binanceClient, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize RSI provider")
		log.Fatalf("FATAL: Failed to initialize RSI provider: %v", err)
	}

	// 6. Initialize Signal Evaluator
	evaluator, err := strategy.New(strategy.Config{
		Mode:            cfg.Strategy,
		RSIBuyCeiling:   cfg.RSIBuyCeiling,
		RSISellFloor:    cfg.RSISellFloor,
		TargetSellMove:  cfg.TargetSellMove,
		TargetBuyMove:   cfg.TargetBuyMove,
		TrendGuard:      cfg.TrendGuard,
		SecureLowRatio:  cfg.SecureLowRatio,
		SecureHighRatio: cfg.SecureHighRatio,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize signal evaluator")
		log.Fatalf("FATAL: Failed to initialize signal evaluator: %v", err)
	}

	// 7. Initialize Stop-Loss Monitor
	stopLoss, err := risk.NewMonitor(risk.Config{
		LongPercent:  cfg.StopLossLong,
		ShortPercent: cfg.StopLossShort,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize stop-loss monitor")
		log.Fatalf("FATAL: Failed to initialize stop-loss monitor: %v", err)
	}

	// 8. Initialize Application Service
	tradingService, err := app.NewTradingService(cfg, appLogger, binanceClient, rsiProvider, journal, evaluator, stopLoss)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(context.Background(), "Trading service initialized")

	// 9. Start the Service
	if err := tradingService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
