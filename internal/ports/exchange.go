package ports

import (
	"context"
	"time"

	"spotFlipBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID
	ClientOrderID string    // User-defined order ID
	Symbol        string    // Symbol for the order
	Side          domain.OrderSide
	ExecutedQty   float64   // Quantity filled
	CumQuoteQty   float64   // Quote asset spent/received across all fills
	AvgPrice      float64   // CumQuoteQty / ExecutedQty
	Status        string    // Order status (e.g. FILLED)
	Timestamp     time.Time // Transaction time reported by the exchange
}

// ExchangeClient defines the interface for the spot exchange the engine
// trades against. It decouples the decision engine from any concrete
// exchange implementation.
type ExchangeClient interface {
	// GetPrice retrieves the current ticker price for a symbol.
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// Get24hStats retrieves the 24 hour low and high for a symbol.
	Get24hStats(ctx context.Context, symbol string) (low, high float64, err error)

	// GetLastClosedCandle retrieves the close price of the most recently
	// completed candle for the given interval.
	GetLastClosedCandle(ctx context.Context, symbol, interval string) (float64, error)

	// GetRecentCloses retrieves up to limit closing prices for the given
	// interval, ordered oldest first.
	GetRecentCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error)

	// GetSymbolRules retrieves the order constraints (min quantity, min
	// notional, quantity step) for a symbol.
	GetSymbolRules(ctx context.Context, symbol string) (*domain.SymbolRules, error)

	// GetFreeBalances retrieves the free amounts of the base and quote assets.
	GetFreeBalances(ctx context.Context, baseAsset, quoteAsset string) (*domain.Balances, error)

	// PlaceMarketOrder submits a market order for the already-rounded
	// quantity. A rejected order is reported as an error wrapping
	// ErrOrderRejected.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, clientOrderID string) (*OrderResponse, error)

	// Ping checks connectivity to the exchange API.
	Ping(ctx context.Context) error
}
