package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperExecuteIsIdempotent(t *testing.T) {
	c := NewPaperClient(100000)
	ctx := context.Background()

	req := &OrderRequest{
		DecisionID: "decision-1",
		Symbol:     "BTCUSDT",
		Side:       SideBuy,
		Quantity:   0.1,
	}

	first, err := c.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	// Same decision ID must not double-fill
	second, err := c.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.FillPrice, second.FillPrice)

	positions, err := c.GetOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 0.1, positions[0].Size, 1e-9)
}

func TestPaperExecuteRequiresDecisionID(t *testing.T) {
	c := NewPaperClient(100000)

	_, err := c.Execute(context.Background(), &OrderRequest{
		Symbol: "BTCUSDT", Side: SideBuy, Quantity: 0.1,
	})
	assert.Error(t, err)
}

func TestPaperBuyThenClose(t *testing.T) {
	c := NewPaperClient(100000)
	ctx := context.Background()

	_, err := c.Execute(ctx, &OrderRequest{
		DecisionID: "open", Symbol: "ETHUSDT", Side: SideBuy, Quantity: 2,
	})
	require.NoError(t, err)

	result, err := c.Execute(ctx, &OrderRequest{
		DecisionID: "close", Symbol: "ETHUSDT", Side: SideClose,
	})
	require.NoError(t, err)
	assert.InDelta(t, 2, result.Quantity, 1e-9)

	positions, err := c.GetOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPaperCloseWithoutPositionFails(t *testing.T) {
	c := NewPaperClient(100000)

	_, err := c.Execute(context.Background(), &OrderRequest{
		DecisionID: "x", Symbol: "ETHUSDT", Side: SideClose,
	})
	assert.Error(t, err)
}

func TestPaperInsufficientCash(t *testing.T) {
	c := NewPaperClient(10)

	_, err := c.Execute(context.Background(), &OrderRequest{
		DecisionID: "x", Symbol: "BTCUSDT", Side: SideBuy, Quantity: 1,
	})
	assert.Error(t, err)
}

func TestPaperCloseAll(t *testing.T) {
	c := NewPaperClient(100000)
	ctx := context.Background()

	for _, symbol := range []string{"BTCUSDT", "ETHUSDT"} {
		_, err := c.Execute(ctx, &OrderRequest{
			DecisionID: "open-" + symbol, Symbol: symbol, Side: SideBuy, Quantity: 0.01,
		})
		require.NoError(t, err)
	}

	require.NoError(t, c.CloseAll(ctx))
	positions, err := c.GetOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPaperSnapshotIncludesPositions(t *testing.T) {
	c := NewPaperClient(100000)
	ctx := context.Background()

	_, err := c.Execute(ctx, &OrderRequest{
		DecisionID: "open", Symbol: "BTCUSDT", Side: SideBuy, Quantity: 0.1,
	})
	require.NoError(t, err)

	snapshot, err := c.GetPortfolioSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Positions, 1)
	assert.Greater(t, snapshot.TotalValue, 0.0)
	assert.Less(t, snapshot.CashBalance, 100000.0)
}

func TestMarketDataHasHistory(t *testing.T) {
	c := NewPaperClient(100000)

	data, err := c.GetMarketData(context.Background(), "SOLUSDT")
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", data.Symbol)
	assert.Greater(t, data.Price, 0.0)
	assert.GreaterOrEqual(t, len(data.Klines), 30)
	assert.GreaterOrEqual(t, len(data.Returns()), 29)
}

func TestSnapshotExposurePct(t *testing.T) {
	s := &PortfolioSnapshot{
		TotalValue: 10000,
		Positions: []Position{
			{Symbol: "BTCUSDT", CurrentPrice: 100, Size: 10},
		},
	}
	assert.InDelta(t, 10, s.ExposurePct("BTCUSDT"), 1e-9)
	assert.Zero(t, s.ExposurePct("ETHUSDT"))
}
