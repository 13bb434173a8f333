package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"ai-trading-agent/internal/logging"
)

// HTTPClient talks to a real trading platform over its REST API.
type HTTPClient struct {
	rest *resty.Client
}

// NewHTTPClient creates a platform client for the given base URL. The
// API key and secret are sent as headers on every request.
func NewHTTPClient(baseURL, apiKey, secretKey string, timeout time.Duration) *HTTPClient {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-API-Key", apiKey).
		SetHeader("X-API-Secret", secretKey).
		SetRetryCount(0) // retries are handled by the caller's circuit layer

	return &HTTPClient{rest: rest}
}

func (c *HTTPClient) GetPortfolioSnapshot(ctx context.Context) (*PortfolioSnapshot, error) {
	var snapshot PortfolioSnapshot
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&snapshot).
		Get("/api/v1/portfolio")
	if err != nil {
		return nil, fmt.Errorf("portfolio request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("portfolio request failed: status %d: %s", resp.StatusCode(), resp.String())
	}
	snapshot.Timestamp = time.Now()
	return &snapshot, nil
}

func (c *HTTPClient) GetOpenPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&positions).
		Get("/api/v1/positions")
	if err != nil {
		return nil, fmt.Errorf("positions request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("positions request failed: status %d: %s", resp.StatusCode(), resp.String())
	}
	return positions, nil
}

func (c *HTTPClient) GetMarketData(ctx context.Context, symbol string) (*MarketData, error) {
	var data MarketData
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetResult(&data).
		Get("/api/v1/market/{symbol}")
	if err != nil {
		return nil, fmt.Errorf("market data request for %s failed: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("market data request for %s failed: status %d: %s", symbol, resp.StatusCode(), resp.String())
	}
	data.FetchedAt = time.Now()
	return &data, nil
}

func (c *HTTPClient) Execute(ctx context.Context, req *OrderRequest) (*ExecutionResult, error) {
	if req.DecisionID == "" {
		return nil, fmt.Errorf("order rejected: missing decision ID")
	}
	logging.ExecutionContext(req.DecisionID, req.Symbol, req.Side, req.Quantity).Debug("Submitting order")

	var result ExecutionResult
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.DecisionID).
		SetBody(req).
		SetResult(&result).
		Post("/api/v1/orders")
	if err != nil {
		return nil, fmt.Errorf("order submission for %s failed: %w", req.Symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("order submission for %s failed: status %d: %s", req.Symbol, resp.StatusCode(), resp.String())
	}
	// 200 on a POST that was already processed means the platform
	// replayed the original fill for this idempotency key.
	if resp.StatusCode() == 200 {
		result.Replayed = true
	}
	return &result, nil
}

func (c *HTTPClient) CloseAll(ctx context.Context) error {
	logging.PlatformContext("/api/v1/positions/close-all").Warn("Liquidating all positions")
	resp, err := c.rest.R().
		SetContext(ctx).
		Post("/api/v1/positions/close-all")
	if err != nil {
		return fmt.Errorf("close-all request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("close-all request failed: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
