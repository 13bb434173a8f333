package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"ai-trading-agent/config"
	"ai-trading-agent/internal/logging"
	"ai-trading-agent/internal/platform"
)

// MarketContext is the payload sent to the decision engine for one
// asset: current market state plus the portfolio view it should reason
// about.
type MarketContext struct {
	Asset       string           `json:"asset"`
	Price       float64          `json:"price"`
	Klines      []platform.Kline `json:"klines"`
	Portfolio   portfolioView    `json:"portfolio"`
	RequestedAt time.Time        `json:"requested_at"`
}

type portfolioView struct {
	TotalValue    float64             `json:"total_value"`
	CashBalance   float64             `json:"cash_balance"`
	UnrealizedPnL float64             `json:"unrealized_pnl"`
	Positions     []platform.Position `json:"positions"`
}

// decisionResponse is the engine's wire format. The ID is assigned
// locally, not taken from the engine.
type decisionResponse struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

// Client requests trading decisions from the AI decision engine over
// its REST API.
type Client struct {
	rest  *resty.Client
	model string
}

// NewClient creates a decision engine client.
func NewClient(cfg config.EngineConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rest := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		rest.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}

	return &Client{rest: rest, model: cfg.Model}
}

// RequestDecision asks the engine for a decision about one asset. The
// returned decision carries a freshly assigned ID and a confidence
// normalized to 0..100.
func (c *Client) RequestDecision(ctx context.Context, mc *MarketContext) (*Decision, error) {
	logging.EngineContext(mc.Asset, c.model).Debug("Requesting decision", "klines", len(mc.Klines))

	var wire decisionResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("model", c.model).
		SetBody(mc).
		SetResult(&wire).
		Post("/api/v1/decide")
	if err != nil {
		return nil, fmt.Errorf("decision request for %s failed: %w", mc.Asset, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("decision request for %s failed: status %d: %s", mc.Asset, resp.StatusCode(), resp.String())
	}

	action, err := ParseAction(wire.Action)
	if err != nil {
		return nil, fmt.Errorf("decision for %s is malformed: %w", mc.Asset, err)
	}

	decision := NewDecision(mc.Asset, action, wire.Confidence, wire.Rationale)
	decision.StopLoss = wire.StopLoss
	decision.TakeProfit = wire.TakeProfit
	return decision, nil
}

// BuildMarketContext assembles the engine payload from perception data.
func BuildMarketContext(asset string, market *platform.MarketData, snapshot *platform.PortfolioSnapshot) *MarketContext {
	mc := &MarketContext{
		Asset:       asset,
		Price:       market.Price,
		Klines:      market.Klines,
		RequestedAt: time.Now(),
	}
	if snapshot != nil {
		mc.Portfolio = portfolioView{
			TotalValue:    snapshot.TotalValue,
			CashBalance:   snapshot.CashBalance,
			UnrealizedPnL: snapshot.UnrealizedPnL,
			Positions:     snapshot.Positions,
		}
	}
	return mc
}
