package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-trading-agent/config"
	"ai-trading-agent/internal/engine"
	"ai-trading-agent/internal/events"
	"ai-trading-agent/internal/learning"
	"ai-trading-agent/internal/platform"
	"ai-trading-agent/internal/riskgate"
)

// fakePlatform is a scriptable in-memory platform.
type fakePlatform struct {
	mu sync.Mutex

	totalValue   float64
	positions    []platform.Position
	failMarket   map[string]bool
	positionsErr error
	executed     map[string]*platform.ExecutionResult
	executeCalls int
	closeAllErr  error
	closeCalls   int
}

func newFakePlatform(totalValue float64) *fakePlatform {
	return &fakePlatform{
		totalValue: totalValue,
		failMarket: make(map[string]bool),
		executed:   make(map[string]*platform.ExecutionResult),
	}
}

func (f *fakePlatform) GetPortfolioSnapshot(ctx context.Context) (*platform.PortfolioSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	positions := make([]platform.Position, len(f.positions))
	copy(positions, f.positions)
	return &platform.PortfolioSnapshot{
		TotalValue:  f.totalValue,
		CashBalance: f.totalValue,
		Positions:   positions,
		Timestamp:   time.Now(),
	}, nil
}

func (f *fakePlatform) GetOpenPositions(ctx context.Context) ([]platform.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionsErr != nil {
		return nil, f.positionsErr
	}
	positions := make([]platform.Position, len(f.positions))
	copy(positions, f.positions)
	return positions, nil
}

func (f *fakePlatform) GetMarketData(ctx context.Context, symbol string) (*platform.MarketData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMarket[symbol] {
		return nil, fmt.Errorf("market data unavailable for %s", symbol)
	}
	klines := make([]platform.Kline, 30)
	price := 100.0
	for i := range klines {
		open := price
		if i%2 == 0 {
			price = open * 1.001
		} else {
			price = open * 0.999
		}
		klines[i] = platform.Kline{Open: open, Close: price, High: price, Low: open}
	}
	return &platform.MarketData{
		Symbol:    symbol,
		Price:     price,
		Klines:    klines,
		FetchedAt: time.Now(),
	}, nil
}

func (f *fakePlatform) Execute(ctx context.Context, req *platform.OrderRequest) (*platform.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executeCalls++
	if prior, ok := f.executed[req.DecisionID]; ok {
		replay := *prior
		replay.Replayed = true
		return &replay, nil
	}
	result := &platform.ExecutionResult{
		DecisionID: req.DecisionID,
		OrderID:    fmt.Sprintf("order-%d", f.executeCalls),
		Symbol:     req.Symbol,
		Side:       req.Side,
		FillPrice:  100,
		Quantity:   req.Quantity,
		Status:     "FILLED",
		ExecutedAt: time.Now(),
	}
	f.executed[req.DecisionID] = result
	return result, nil
}

func (f *fakePlatform) CloseAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if f.closeAllErr != nil {
		return f.closeAllErr
	}
	f.positions = nil
	return nil
}

// fakeEngine returns scripted decisions per asset.
type fakeEngine struct {
	mu        sync.Mutex
	actions   map[string]engine.Action
	failWith  map[string]error
	callCount map[string]int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		actions:   make(map[string]engine.Action),
		failWith:  make(map[string]error),
		callCount: make(map[string]int),
	}
}

func (f *fakeEngine) RequestDecision(ctx context.Context, mc *engine.MarketContext) (*engine.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount[mc.Asset]++
	if err := f.failWith[mc.Asset]; err != nil {
		return nil, err
	}
	action, ok := f.actions[mc.Asset]
	if !ok {
		action = engine.ActionHold
	}
	return engine.NewDecision(mc.Asset, action, 90, "scripted"), nil
}

func (f *fakeEngine) calls(asset string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount[asset]
}

// fakeRecorder collects outcomes.
type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []*learning.Outcome
}

func (f *fakeRecorder) RecordOutcome(ctx context.Context, outcome *learning.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.outcomes)
}

func testConfig(universe ...string) *config.Config {
	return &config.Config{
		AgentConfig: config.AgentConfig{
			AssetUniverse:          universe,
			AnalysisIntervalSecs:   1,
			MinConfidence:          0.5,
			MaxDailyTrades:         10,
			WorkerCount:            2,
			MaxConsecutiveFailures: 3,
			ErrorBackoffSecs:       1,
			RecoveryMaxAttempts:    1,
		},
		RiskConfig: config.RiskConfig{
			RiskPerTradePct:      1,
			StopLossPct:          5,
			MaxConcentrationPct:  50,
			CorrelationThreshold: 0.9,
			CorrelationPenalty:   0.5,
			VaRLimitPct:          10,
			VaRConfidence:        0.95,
			MinReturnHistory:     5,
			MaxDrawdownPct:       50,
		},
		KillSwitchConfig: config.KillSwitchConfig{
			MaxGainPct:     100,
			MaxLossPct:     2,
			MaxDrawdownPct: 50,
			CheckOrder:     []string{"loss", "drawdown", "gain"},
		},
		CooldownConfig: config.CooldownConfig{DecayWindowSecs: 300},
		CircuitConfig: config.CircuitConfig{
			FailureThreshold: 5,
			CooldownSecs:     60,
			MaxRetries:       2,
			BackoffBaseMs:    1,
		},
	}
}

func newTestAgent(cfg *config.Config, p *fakePlatform, e *fakeEngine, r *fakeRecorder) *Agent {
	return New(cfg, Deps{
		Platform: p,
		Engine:   e,
		Recorder: r,
		Bus:      events.NewEventBus(),
	})
}

func TestCycleIsolation(t *testing.T) {
	p := newFakePlatform(10000)
	p.failMarket["AAAUSDT"] = true
	e := newFakeEngine()
	e.actions["BBBUSDT"] = engine.ActionBuy
	r := &fakeRecorder{}

	a := newTestAgent(testConfig("AAAUSDT", "BBBUSDT"), p, e, r)
	require.NoError(t, a.RunCycle(context.Background()))

	// AAA's fetch failure must not block BBB's decision and execution
	assert.Zero(t, e.calls("AAAUSDT"))
	assert.Equal(t, 1, e.calls("BBBUSDT"))
	assert.Equal(t, 1, a.TradesToday())
	assert.Equal(t, 1, r.count())
}

func TestExecutionIdempotence(t *testing.T) {
	p := newFakePlatform(10000)
	e := newFakeEngine()
	r := &fakeRecorder{}
	a := newTestAgent(testConfig("BTCUSDT"), p, e, r)

	d := engine.NewDecision("BTCUSDT", engine.ActionBuy, 90, "test")
	ccA := newExecContext(d)
	ccA, err := a.handleExecution(context.Background(), ccA)
	require.NoError(t, err)
	require.Equal(t, 1, ccA.Executed)
	first := ccA.Results[d.ID]
	require.NotNil(t, first)

	// Re-executing the same decision replays the original fill
	ccB := newExecContext(d)
	ccB, err = a.handleExecution(context.Background(), ccB)
	require.NoError(t, err)
	assert.Zero(t, ccB.Executed)
	second := ccB.Results[d.ID]
	require.NotNil(t, second)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, 1, a.TradesToday())
}

func TestDailyTradeCeiling(t *testing.T) {
	cfg := testConfig("BTCUSDT")
	cfg.AgentConfig.MaxDailyTrades = 1
	p := newFakePlatform(10000)
	a := newTestAgent(cfg, p, newFakeEngine(), &fakeRecorder{})
	a.resetDailyCounter(context.Background())

	d1 := engine.NewDecision("BTCUSDT", engine.ActionBuy, 90, "one")
	d2 := engine.NewDecision("ETHUSDT", engine.ActionBuy, 90, "two")
	cc := newExecContext(d1, d2)

	cc, err := a.handleExecution(context.Background(), cc)
	require.NoError(t, err)
	assert.Equal(t, 1, cc.Executed)
	assert.Equal(t, 1, a.TradesToday())
	assert.Len(t, cc.Results, 1)
}

func TestKillSwitchEndToEnd(t *testing.T) {
	p := newFakePlatform(10000)
	e := newFakeEngine() // every decision is Hold
	a := newTestAgent(testConfig("BTCUSDT"), p, e, &fakeRecorder{})
	ctx := context.Background()

	// First cycle seeds the initial portfolio value
	require.NoError(t, a.RunCycle(ctx))
	require.False(t, a.Status().KillSwitchTriggered)

	// Value drops 2.5% against a 2% loss limit
	p.mu.Lock()
	p.totalValue = 9750
	p.mu.Unlock()

	err := a.RunCycle(ctx)
	require.ErrorIs(t, err, ErrKillSwitch)

	err = a.haltOnKillSwitch(ctx)
	require.ErrorIs(t, err, ErrKillSwitch)
	assert.Equal(t, 1, p.closeCalls)

	// The trip is irreversible even when the portfolio recovers
	p.mu.Lock()
	p.totalValue = 10500
	p.mu.Unlock()
	status := a.Status()
	assert.True(t, status.KillSwitchTriggered)
	assert.Equal(t, "loss", status.KillSwitchCause)

	err = a.RunCycle(ctx)
	assert.ErrorIs(t, err, ErrKillSwitch)
}

func TestRejectionCooldownSkipsAsset(t *testing.T) {
	p := newFakePlatform(10000)
	e := newFakeEngine()
	e.failWith["AAAUSDT"] = errors.New("engine down")
	a := newTestAgent(testConfig("AAAUSDT"), p, e, &fakeRecorder{})
	ctx := context.Background()

	require.NoError(t, a.RunCycle(ctx))
	callsAfterFirst := e.calls("AAAUSDT")
	assert.Equal(t, 2, callsAfterFirst) // bounded retries, then cooled down

	// Second cycle skips the asset entirely while it cools down
	require.NoError(t, a.RunCycle(ctx))
	assert.Equal(t, callsAfterFirst, e.calls("AAAUSDT"))
	assert.Equal(t, 1, a.Status().CoolingDownAssets)
}

func TestLowConfidenceDecisionDropped(t *testing.T) {
	cfg := testConfig("BTCUSDT")
	cfg.AgentConfig.MinConfidence = 0.95
	p := newFakePlatform(10000)
	e := newFakeEngine()
	e.actions["BTCUSDT"] = engine.ActionBuy // confidence 90 < 95 floor
	a := newTestAgent(cfg, p, e, &fakeRecorder{})

	require.NoError(t, a.RunCycle(context.Background()))
	assert.Zero(t, a.TradesToday())
}

func TestPauseAbortsCycle(t *testing.T) {
	p := newFakePlatform(10000)
	a := newTestAgent(testConfig("BTCUSDT"), p, newFakeEngine(), &fakeRecorder{})

	a.Pause("maintenance")
	err := a.RunCycle(context.Background())
	require.ErrorIs(t, err, errPaused)

	status := a.Status()
	assert.True(t, status.Paused)
	assert.Equal(t, "maintenance", status.PauseReason)

	a.Resume()
	assert.False(t, a.Status().Paused)
	require.NoError(t, a.RunCycle(context.Background()))
}

func TestStopAbortsCycle(t *testing.T) {
	p := newFakePlatform(10000)
	a := newTestAgent(testConfig("BTCUSDT"), p, newFakeEngine(), &fakeRecorder{})

	a.Stop()
	err := a.RunCycle(context.Background())
	assert.ErrorIs(t, err, errStopped)
}

func TestRecoverySynthesizesProvenance(t *testing.T) {
	p := newFakePlatform(10000)
	p.positions = []platform.Position{
		{Symbol: "BTCUSDT", Side: "LONG", EntryPrice: 100, CurrentPrice: 100, Size: 1},
		{Symbol: "ETHUSDT", Side: "SHORT", EntryPrice: 50, CurrentPrice: 50, Size: 2},
	}
	r := &fakeRecorder{}
	a := newTestAgent(testConfig("BTCUSDT"), p, newFakeEngine(), r)

	a.recoverPositions(context.Background())

	require.Equal(t, 2, r.count())
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, outcome := range r.outcomes {
		assert.True(t, outcome.Synthesized)
		require.NotNil(t, outcome.Decision)
		assert.Equal(t, float64(100), outcome.Decision.Confidence)
	}
	assert.False(t, a.Status().RecoveryDegraded)
	assert.Equal(t, 2, a.Status().OpenPositions)
}

func TestRecoveryDegradesVisibly(t *testing.T) {
	p := newFakePlatform(10000)
	p.positionsErr = errors.New("platform unreachable")
	a := newTestAgent(testConfig("BTCUSDT"), p, newFakeEngine(), &fakeRecorder{})

	a.recoverPositions(context.Background())

	// Startup proceeds, but the degraded mode is visible in Status
	assert.True(t, a.Status().RecoveryDegraded)
}

func TestUpdateUniverse(t *testing.T) {
	a := newTestAgent(testConfig("BTCUSDT"), newFakePlatform(10000), newFakeEngine(), &fakeRecorder{})

	require.Error(t, a.UpdateUniverse(nil))
	require.NoError(t, a.UpdateUniverse([]string{"SOLUSDT", "ADAUSDT"}))
	assert.Equal(t, []string{"SOLUSDT", "ADAUSDT"}, a.Universe())
}

func TestLearningDetectsClosedPositions(t *testing.T) {
	p := newFakePlatform(10000)
	p.positions = []platform.Position{
		{Symbol: "BTCUSDT", Side: "LONG", EntryPrice: 100, CurrentPrice: 110, Size: 1, OpenedAt: time.Now()},
	}
	r := &fakeRecorder{}
	a := newTestAgent(testConfig("BTCUSDT"), p, newFakeEngine(), r)

	// Seed the mirror, then close the position on the platform
	a.recoverPositions(context.Background())
	provenance := r.count()

	p.mu.Lock()
	p.positions = nil
	p.mu.Unlock()

	cc := &CycleContext{Cycle: 1}
	_, err := a.handleLearning(context.Background(), cc)
	require.NoError(t, err)

	require.Equal(t, provenance+1, r.count())
	r.mu.Lock()
	closed := r.outcomes[len(r.outcomes)-1].ClosedTrade
	r.mu.Unlock()
	require.NotNil(t, closed)
	assert.Equal(t, "BTCUSDT", closed.Symbol)
	assert.InDelta(t, 10, closed.PnL, 1e-9)
	assert.Zero(t, a.Status().OpenPositions)
}

// newExecContext builds a minimal post-risk-check context with every
// decision approved at size 1.
func newExecContext(decisions ...*engine.Decision) *CycleContext {
	cc := &CycleContext{
		Cycle:    1,
		Verdicts: make(map[string]*riskgate.Verdict, len(decisions)),
	}
	for _, d := range decisions {
		cc.Approved = append(cc.Approved, d)
		cc.Verdicts[d.ID] = &riskgate.Verdict{
			Approved:     true,
			Rule:         riskgate.RuleNone,
			AdjustedSize: 1,
		}
	}
	return cc
}

func TestLiquidationFailureSurfacesWithoutFinalBackoff(t *testing.T) {
	p := newFakePlatform(10000)
	p.closeAllErr = errors.New("platform unreachable")

	a := newTestAgent(testConfig("BTCUSDT"), p, newFakeEngine(), &fakeRecorder{})
	a.liquidationBackoff = 20 * time.Millisecond

	started := time.Now()
	err := a.haltOnKillSwitch(context.Background())
	elapsed := time.Since(started)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKillSwitch)
	assert.Equal(t, 5, p.closeCalls)
	// Backoffs run between attempts only (20+40+80+160ms); a trailing
	// sleep after the final failure would add another 320ms.
	assert.Less(t, elapsed, 500*time.Millisecond)
}
