package platform

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperClient simulates a trading platform in memory. Prices follow a
// random walk around seeded base values, fills are instant at the
// current price, and executions are recorded by decision ID so that
// replays return the original fill.
type PaperClient struct {
	mu sync.Mutex

	cash      float64
	positions map[string]*Position
	executed  map[string]*ExecutionResult

	prices  map[string]float64
	history map[string][]Kline
	rng     *rand.Rand
}

// NewPaperClient creates a paper client with the given starting cash.
func NewPaperClient(startingCash float64) *PaperClient {
	c := &PaperClient{
		cash:      startingCash,
		positions: make(map[string]*Position),
		executed:  make(map[string]*ExecutionResult),
		prices: map[string]float64{
			"BTCUSDT": 45000.0,
			"ETHUSDT": 2500.0,
			"BNBUSDT": 300.0,
			"SOLUSDT": 100.0,
			"ADAUSDT": 0.45,
		},
		history: make(map[string][]Kline),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	return c
}

// price returns the current simulated price for symbol, advancing the
// random walk by one step. Unknown symbols are seeded on first use.
// Caller must hold c.mu.
func (c *PaperClient) price(symbol string) float64 {
	base, ok := c.prices[symbol]
	if !ok {
		base = 10.0 + c.rng.Float64()*990.0
	}
	// +/-0.5% walk per observation
	next := base * (1 + (c.rng.Float64()-0.5)*0.01)
	c.prices[symbol] = next

	now := time.Now()
	c.history[symbol] = append(c.history[symbol], Kline{
		OpenTime:  now.Add(-time.Minute).UnixMilli(),
		Open:      base,
		High:      maxf(base, next),
		Low:       minf(base, next),
		Close:     next,
		Volume:    100 + c.rng.Float64()*900,
		CloseTime: now.UnixMilli(),
	})
	if len(c.history[symbol]) > 500 {
		c.history[symbol] = c.history[symbol][len(c.history[symbol])-500:]
	}
	return next
}

func (c *PaperClient) GetMarketData(ctx context.Context, symbol string) (*MarketData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Backfill a kline history on first request so return series are
	// usable immediately.
	for len(c.history[symbol]) < 30 {
		c.price(symbol)
	}
	current := c.price(symbol)

	klines := make([]Kline, len(c.history[symbol]))
	copy(klines, c.history[symbol])

	return &MarketData{
		Symbol:    symbol,
		Price:     current,
		Klines:    klines,
		FetchedAt: time.Now(),
	}, nil
}

func (c *PaperClient) GetPortfolioSnapshot(ctx context.Context) (*PortfolioSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := &PortfolioSnapshot{
		CashBalance: c.cash,
		Timestamp:   time.Now(),
	}
	total := c.cash
	var unrealized float64
	for _, pos := range c.positions {
		current := c.price(pos.Symbol)
		pos.CurrentPrice = current
		pos.UnrealizedPnL = positionPnL(pos)
		p := *pos
		snapshot.Positions = append(snapshot.Positions, p)
		total += p.Value()
		unrealized += p.UnrealizedPnL
	}
	snapshot.TotalValue = total
	snapshot.UnrealizedPnL = unrealized
	return snapshot, nil
}

func (c *PaperClient) GetOpenPositions(ctx context.Context) ([]Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	positions := make([]Position, 0, len(c.positions))
	for _, pos := range c.positions {
		pos.CurrentPrice = c.price(pos.Symbol)
		pos.UnrealizedPnL = positionPnL(pos)
		positions = append(positions, *pos)
	}
	return positions, nil
}

func (c *PaperClient) Execute(ctx context.Context, req *OrderRequest) (*ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.DecisionID == "" {
		return nil, fmt.Errorf("order rejected: missing decision ID")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prior, ok := c.executed[req.DecisionID]; ok {
		replay := *prior
		replay.Replayed = true
		return &replay, nil
	}

	fill := c.price(req.Symbol)
	result := &ExecutionResult{
		DecisionID: req.DecisionID,
		OrderID:    uuid.New().String(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		FillPrice:  fill,
		Quantity:   req.Quantity,
		Status:     "FILLED",
		ExecutedAt: time.Now(),
	}

	switch strings.ToUpper(req.Side) {
	case SideBuy:
		cost := fill * req.Quantity
		if cost > c.cash {
			return nil, fmt.Errorf("order rejected: insufficient cash (%.2f < %.2f)", c.cash, cost)
		}
		c.cash -= cost
		c.openOrAdd(req, fill, "LONG")
	case SideShort:
		c.cash += fill * req.Quantity
		c.openOrAdd(req, fill, "SHORT")
	case SideSell, SideClose:
		pos, ok := c.positions[req.Symbol]
		if !ok {
			return nil, fmt.Errorf("order rejected: no open position for %s", req.Symbol)
		}
		qty := req.Quantity
		if qty <= 0 || qty > pos.Size {
			qty = pos.Size
		}
		if pos.Side == "LONG" {
			c.cash += fill * qty
		} else {
			c.cash -= fill * qty
		}
		pos.Size -= qty
		if pos.Size <= 1e-9 {
			delete(c.positions, req.Symbol)
		}
		result.Quantity = qty
	default:
		return nil, fmt.Errorf("order rejected: unknown side %q", req.Side)
	}

	c.executed[req.DecisionID] = result
	out := *result
	return &out, nil
}

// openOrAdd opens a position or averages into an existing one on the
// same side. Caller must hold c.mu.
func (c *PaperClient) openOrAdd(req *OrderRequest, fill float64, side string) {
	if pos, ok := c.positions[req.Symbol]; ok && pos.Side == side {
		totalCost := pos.EntryPrice*pos.Size + fill*req.Quantity
		pos.Size += req.Quantity
		pos.EntryPrice = totalCost / pos.Size
		pos.CurrentPrice = fill
		if req.StopLoss > 0 {
			pos.StopLoss = req.StopLoss
		}
		if req.TakeProfit > 0 {
			pos.TakeProfit = req.TakeProfit
		}
		return
	}
	c.positions[req.Symbol] = &Position{
		Symbol:       req.Symbol,
		Side:         side,
		EntryPrice:   fill,
		CurrentPrice: fill,
		Size:         req.Quantity,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		OpenedAt:     time.Now(),
	}
}

func (c *PaperClient) CloseAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for symbol, pos := range c.positions {
		fill := c.price(symbol)
		if pos.Side == "LONG" {
			c.cash += fill * pos.Size
		} else {
			c.cash -= fill * pos.Size
		}
		delete(c.positions, symbol)
	}
	return nil
}

func positionPnL(p *Position) float64 {
	if p.Side == "SHORT" {
		return (p.EntryPrice - p.CurrentPrice) * p.Size
	}
	return (p.CurrentPrice - p.EntryPrice) * p.Size
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
