package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"spotFlipBot/internal/domain"
	"spotFlipBot/internal/ports"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	// Binance ships MIN_NOTIONAL on older symbols and NOTIONAL on newer
	// ones; when neither is present this default matches the exchange-wide
	// floor for USDT pairs.
	defaultMinNotional = 5.0
)

// Client implements the ports.ExchangeClient interface for Binance spot
// using the go-binance library.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance spot client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using the global binance.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{spotClient: client, logger: cfg.Logger}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1013: // Filter failure (LOT_SIZE, MIN_NOTIONAL, ...)
			mappedErr = ports.ErrOrderRejected
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected (includes insufficient balance)
			mappedErr = ports.ErrOrderRejected
		case -2014: // API-key format invalid
			mappedErr = ports.ErrInvalidAPIKeys
		case -2015: // Invalid API-key, IP, or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		case -3005: // Insufficient balance
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetPrice retrieves the current ticker price for a symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetPrice"
	prices, err := c.spotClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return 0, c.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", symbol), op)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// Get24hStats retrieves the 24 hour low and high for a symbol.
func (c *Client) Get24hStats(ctx context.Context, symbol string) (float64, float64, error) {
	op := "Get24hStats"
	stats, err := c.spotClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, 0, c.handleError(ctx, err, op)
	}
	if len(stats) == 0 {
		return 0, 0, c.handleError(ctx, fmt.Errorf("no 24h stats returned for symbol %s", symbol), op)
	}

	low, err := strconv.ParseFloat(stats[0].LowPrice, 64)
	if err != nil {
		return 0, 0, c.handleError(ctx, fmt.Errorf("could not parse low price '%s': %w", stats[0].LowPrice, err), op)
	}
	high, err := strconv.ParseFloat(stats[0].HighPrice, 64)
	if err != nil {
		return 0, 0, c.handleError(ctx, fmt.Errorf("could not parse high price '%s': %w", stats[0].HighPrice, err), op)
	}
	return low, high, nil
}

// GetLastClosedCandle retrieves the close of the most recently completed
// candle: the first of the last two, since the final one is still forming.
func (c *Client) GetLastClosedCandle(ctx context.Context, symbol, interval string) (float64, error) {
	op := "GetLastClosedCandle"
	klines, err := c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(2).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(klines) < 2 {
		return 0, c.handleError(ctx, fmt.Errorf("expected 2 klines for symbol %s, got %d", symbol, len(klines)), op)
	}

	closePrice, err := strconv.ParseFloat(klines[0].Close, 64)
	if err != nil {
		return 0, c.handleError(ctx, fmt.Errorf("could not parse close '%s': %w", klines[0].Close, err), op)
	}
	return closePrice, nil
}

// GetRecentCloses retrieves up to limit closing prices, oldest first.
func (c *Client) GetRecentCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	op := "GetRecentCloses"
	klines, err := c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	closes := make([]float64, 0, len(klines))
	for _, k := range klines {
		closePrice, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("could not parse close '%s': %w", k.Close, err), op)
		}
		closes = append(closes, closePrice)
	}
	return closes, nil
}

// GetSymbolRules retrieves the LOT_SIZE and notional filters for a symbol.
func (c *Client) GetSymbolRules(ctx context.Context, symbol string) (*domain.SymbolRules, error) {
	op := "GetSymbolRules"
	info, err := c.spotClient.NewExchangeInfoService().Symbols(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		rules := &domain.SymbolRules{MinNotional: defaultMinNotional}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "LOT_SIZE":
				rules.MinQty = parseFilterFloat(f, "minQty")
				rules.StepSize = parseFilterFloat(f, "stepSize")
			case "MIN_NOTIONAL":
				if v := parseFilterFloat(f, "minNotional"); v > 0 {
					rules.MinNotional = v
				}
			case "NOTIONAL":
				if v := parseFilterFloat(f, "minNotional"); v > 0 {
					rules.MinNotional = v
				}
			}
		}
		if rules.StepSize <= 0 {
			return nil, c.handleError(ctx, fmt.Errorf("symbol %s has no LOT_SIZE filter: %w", symbol, ports.ErrRulesUnavailable), op)
		}
		c.logger.Info(ctx, op+" successful", map[string]interface{}{
			"symbol":      symbol,
			"minQty":      rules.MinQty,
			"minNotional": rules.MinNotional,
			"stepSize":    rules.StepSize,
		})
		return rules, nil
	}

	return nil, c.handleError(ctx, fmt.Errorf("symbol %s not found in exchange info: %w", symbol, ports.ErrRulesUnavailable), op)
}

// GetFreeBalances retrieves the free amounts of the base and quote assets.
func (c *Client) GetFreeBalances(ctx context.Context, baseAsset, quoteAsset string) (*domain.Balances, error) {
	op := "GetFreeBalances"
	account, err := c.spotClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	bal := &domain.Balances{}
	for _, b := range account.Balances {
		switch b.Asset {
		case baseAsset:
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("could not parse free balance '%s' for %s: %w", b.Free, baseAsset, err), op)
			}
			bal.Base = free
		case quoteAsset:
			free, err := strconv.ParseFloat(b.Free, 64)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("could not parse free balance '%s' for %s: %w", b.Free, quoteAsset, err), op)
			}
			bal.Quote = free
		}
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{baseAsset: bal.Base, quoteAsset: bal.Quote})
	return bal, nil
}

// PlaceMarketOrder submits a market order for the already-rounded quantity.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, clientOrderID string) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	svc := c.spotClient.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideType(side)).
		Type(binance.OrderTypeMarket).
		Quantity(quantity)
	if clientOrderID != "" {
		svc = svc.NewClientOrderID(clientOrderID)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp, err := translateOrderResponse(order)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
		"orderID":  resp.OrderID,
		"avgPrice": resp.AvgPrice,
	})
	return resp, nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// translateOrderResponse converts the library's response into the port type.
// The average price is derived from the cumulative quote over the executed
// quantity, the way market fills report it.
func translateOrderResponse(order *binance.CreateOrderResponse) (*ports.OrderResponse, error) {
	executedQty, err := strconv.ParseFloat(order.ExecutedQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("could not parse executed quantity '%s': %w", order.ExecutedQuantity, err)
	}
	cumQuote, err := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
	if err != nil {
		return nil, fmt.Errorf("could not parse cumulative quote quantity '%s': %w", order.CummulativeQuoteQuantity, err)
	}
	avgPrice := 0.0
	if executedQty > 0 {
		avgPrice = cumQuote / executedQty
	}
	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          domain.OrderSide(order.Side),
		ExecutedQty:   executedQty,
		CumQuoteQty:   cumQuote,
		AvgPrice:      avgPrice,
		Status:        string(order.Status),
		Timestamp:     timeFromMillis(order.TransactTime),
	}, nil
}

// parseFilterFloat reads a numeric filter field that Binance serializes as a
// string; 0 when the field is absent or malformed.
func parseFilterFloat(filter map[string]interface{}, key string) float64 {
	raw, ok := filter[key].(string)
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

