package platform

import "context"

// Client is the trading platform abstraction. Implementations must make
// Execute idempotent on OrderRequest.DecisionID.
type Client interface {
	// GetPortfolioSnapshot returns the current account valuation and
	// open positions.
	GetPortfolioSnapshot(ctx context.Context) (*PortfolioSnapshot, error)

	// GetOpenPositions returns the open positions as the platform sees
	// them, independent of any local bookkeeping.
	GetOpenPositions(ctx context.Context) ([]Position, error)

	// GetMarketData returns the current price and recent klines for a
	// symbol.
	GetMarketData(ctx context.Context, symbol string) (*MarketData, error)

	// Execute places an order. Submitting the same DecisionID twice
	// returns the original result with Replayed set instead of placing
	// a second order.
	Execute(ctx context.Context, req *OrderRequest) (*ExecutionResult, error)

	// CloseAll liquidates every open position.
	CloseAll(ctx context.Context) error
}

// Compile-time interface checks
var (
	_ Client = (*PaperClient)(nil)
	_ Client = (*HTTPClient)(nil)
)
