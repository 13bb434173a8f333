package platform

import "time"

// Kline represents a single candlestick of market history.
type Kline struct {
	OpenTime  int64   `json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// MarketData is the per-asset market view collected during perception.
type MarketData struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Klines    []Kline   `json:"klines"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Returns computes the simple close-to-close return series of the klines.
func (m *MarketData) Returns() []float64 {
	if len(m.Klines) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(m.Klines)-1)
	for i := 1; i < len(m.Klines); i++ {
		prev := m.Klines[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (m.Klines[i].Close-prev)/prev)
	}
	return returns
}

// Position is an open position held on the trading platform.
type Position struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"` // LONG or SHORT
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	Size          float64   `json:"size"`
	StopLoss      float64   `json:"stop_loss,omitempty"`
	TakeProfit    float64   `json:"take_profit,omitempty"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Value returns the current notional value of the position.
func (p *Position) Value() float64 {
	return p.CurrentPrice * p.Size
}

// PortfolioSnapshot is a point-in-time view of the account used by the
// risk gate and the kill-switch. InitialValue and PeakValue are filled
// in by the caller from its own bookkeeping, not by the platform.
type PortfolioSnapshot struct {
	TotalValue    float64    `json:"total_value"`
	CashBalance   float64    `json:"cash_balance"`
	Positions     []Position `json:"positions"`
	InitialValue  float64    `json:"initial_value,omitempty"`
	PeakValue     float64    `json:"peak_value,omitempty"`
	UnrealizedPnL float64    `json:"unrealized_pnl"`
	Timestamp     time.Time  `json:"timestamp"`
}

// ExposurePct returns the share of total value held in symbol, 0..100.
func (s *PortfolioSnapshot) ExposurePct(symbol string) float64 {
	if s.TotalValue <= 0 {
		return 0
	}
	var value float64
	for i := range s.Positions {
		if s.Positions[i].Symbol == symbol {
			value += s.Positions[i].Value()
		}
	}
	return value / s.TotalValue * 100
}

// Order sides understood by Execute.
const (
	SideBuy   = "BUY"
	SideSell  = "SELL"
	SideShort = "SHORT"
	SideClose = "CLOSE"
)

// OrderRequest is a fully sized order handed to the platform. DecisionID
// doubles as the idempotency key: re-submitting the same DecisionID must
// not place a second order.
type OrderRequest struct {
	DecisionID string  `json:"decision_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
}

// ExecutionResult is what the platform reports back for an order.
// Replayed is set when the result was served from the idempotency
// record of an earlier submission instead of a new fill.
type ExecutionResult struct {
	DecisionID string    `json:"decision_id"`
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	FillPrice  float64   `json:"fill_price"`
	Quantity   float64   `json:"quantity"`
	Status     string    `json:"status"`
	Replayed   bool      `json:"replayed,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}
