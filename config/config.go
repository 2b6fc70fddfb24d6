package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"spotFlipBot/internal/adapters/logger" // for LogLevel parsing
	"spotFlipBot/internal/domain"
)

// Config holds all application configuration. It is loaded once at startup
// and read-only afterwards.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Instrument
	BaseAsset  string // traded coin, e.g. "NXPC"
	QuoteAsset string // pricing asset, e.g. "USDT"

	// Strategy
	Strategy       domain.StrategyMode // LONG or SHORT
	InitialSide    domain.OrderSide    // side armed at startup
	CandleInterval string              // e.g. "5m"
	RSIPeriod      int

	// Thresholds and ratios
	RSIBuyCeiling   float64 // buy at or below this RSI; 0 bypasses the gate
	RSISellFloor    float64 // sell at or above this RSI; 0 bypasses the gate
	TargetSellMove  float64 // percent move that arms a sell
	TargetBuyMove   float64 // percent drop that arms a buy
	TrendGuard      float64 // percent, anti-spike filter
	SecureLowRatio  float64 // sell only above dailyLow * ratio
	SecureHighRatio float64 // buy only below dailyHigh / ratio
	StopLossLong    float64 // percent below buy price
	StopLossShort   float64 // percent above sell price

	// Cadence
	MonitoringInterval time.Duration

	// Journal
	DBPath string

	// Logging
	LogLevel logger.LogLevel
}

// Symbol returns the exchange pair symbol, e.g. "NXPCUSDT".
func (c *Config) Symbol() string {
	return c.BaseAsset + c.QuoteAsset
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Instrument
	cfg.BaseAsset = strings.ToUpper(getEnv("BASE_ASSET", "NXPC"))
	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", "USDT"))
	if cfg.BaseAsset == "" || cfg.QuoteAsset == "" {
		errs = append(errs, "BASE_ASSET and QUOTE_ASSET must be set")
	}
	if cfg.BaseAsset == cfg.QuoteAsset {
		errs = append(errs, "BASE_ASSET and QUOTE_ASSET must differ")
	}

	// Strategy
	cfg.Strategy = domain.StrategyMode(strings.ToUpper(getEnv("STRATEGY", "SHORT")))
	if !cfg.Strategy.IsValid() {
		errs = append(errs, fmt.Sprintf("STRATEGY must be LONG or SHORT, got %q", cfg.Strategy))
	}

	switch side := strings.ToUpper(getEnv("INITIAL_SIDE", "SELL")); side {
	case "BUY":
		cfg.InitialSide = domain.Buy
	case "SELL":
		cfg.InitialSide = domain.Sell
	default:
		errs = append(errs, fmt.Sprintf("INITIAL_SIDE must be BUY or SELL, got %q", side))
	}

	cfg.CandleInterval = getEnv("CANDLE_INTERVAL", "5m")

	cfg.RSIPeriod = getEnvAsInt("RSI_PERIOD", 14)
	if cfg.RSIPeriod <= 0 {
		errs = append(errs, "RSI_PERIOD must be positive")
	}

	// Thresholds. Zero RSI bounds are a deliberate gate bypass, so only
	// out-of-range values are rejected.
	cfg.RSIBuyCeiling, err = getEnvAsFloatRequired("RSI_BUY", 55)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RSI_BUY: %v", err))
	} else if cfg.RSIBuyCeiling < 0 || cfg.RSIBuyCeiling > 100 {
		errs = append(errs, "RSI_BUY must be between 0 and 100")
	}

	cfg.RSISellFloor, err = getEnvAsFloatRequired("RSI_SELL", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RSI_SELL: %v", err))
	} else if cfg.RSISellFloor < 0 || cfg.RSISellFloor > 100 {
		errs = append(errs, "RSI_SELL must be between 0 and 100")
	}

	cfg.TargetSellMove, err = getEnvAsFloatRequired("TARGET_SELL_MOVE", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TARGET_SELL_MOVE: %v", err))
	} else if cfg.TargetSellMove <= 0 {
		errs = append(errs, "TARGET_SELL_MOVE must be positive")
	}

	cfg.TargetBuyMove, err = getEnvAsFloatRequired("TARGET_BUY_MOVE", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TARGET_BUY_MOVE: %v", err))
	} else if cfg.TargetBuyMove <= 0 {
		errs = append(errs, "TARGET_BUY_MOVE must be positive")
	}

	cfg.TrendGuard, err = getEnvAsFloatRequired("TREND_GUARD", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TREND_GUARD: %v", err))
	} else if cfg.TrendGuard < 0 {
		errs = append(errs, "TREND_GUARD cannot be negative")
	}

	cfg.SecureLowRatio, err = getEnvAsFloatRequired("SECURE_LOW_RATIO", 1.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SECURE_LOW_RATIO: %v", err))
	} else if cfg.SecureLowRatio <= 0 {
		errs = append(errs, "SECURE_LOW_RATIO must be positive")
	}

	cfg.SecureHighRatio, err = getEnvAsFloatRequired("SECURE_HIGH_RATIO", 1.00)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SECURE_HIGH_RATIO: %v", err))
	} else if cfg.SecureHighRatio <= 0 {
		errs = append(errs, "SECURE_HIGH_RATIO must be positive")
	}

	cfg.StopLossLong, err = getEnvAsFloatRequired("STOP_LOSS_LONG", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_LONG: %v", err))
	} else if cfg.StopLossLong <= 0 || cfg.StopLossLong >= 100 {
		errs = append(errs, "STOP_LOSS_LONG must be between 0 and 100 (exclusive)")
	}

	cfg.StopLossShort, err = getEnvAsFloatRequired("STOP_LOSS_SHORT", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_SHORT: %v", err))
	} else if cfg.StopLossShort <= 0 || cfg.StopLossShort >= 100 {
		errs = append(errs, "STOP_LOSS_SHORT must be between 0 and 100 (exclusive)")
	}

	// Cadence
	intervalSeconds := getEnvAsInt("MONITORING_INTERVAL_SECONDS", 60)
	if intervalSeconds <= 0 {
		errs = append(errs, "MONITORING_INTERVAL_SECONDS must be positive")
	}
	cfg.MonitoringInterval = time.Duration(intervalSeconds) * time.Second

	// Journal
	cfg.DBPath = getEnv("DB_PATH", "./data/executions.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
