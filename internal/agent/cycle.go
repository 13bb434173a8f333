package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai-trading-agent/internal/circuit"
	"ai-trading-agent/internal/engine"
	"ai-trading-agent/internal/events"
	"ai-trading-agent/internal/learning"
	"ai-trading-agent/internal/platform"
	"ai-trading-agent/internal/riskgate"
)

// CycleContext carries one cycle's working data linearly from state to
// state. Each handler receives the context produced by its predecessor
// and returns the context for its successor; no cycle data is shared
// between handlers through agent fields.
type CycleContext struct {
	Cycle     int64
	StartedAt time.Time

	// Perception output
	Snapshot     *platform.PortfolioSnapshot
	Market       map[string]*platform.MarketData
	Returns      map[string][]float64
	FailedAssets map[string]string // asset -> failure reason

	// Reasoning output
	Decisions []*engine.Decision

	// RiskCheck output
	Verdicts map[string]*riskgate.Verdict // by decision ID
	Approved []*engine.Decision

	// Execution output
	Results  map[string]*platform.ExecutionResult // by decision ID
	Executed int
}

// handlePerception fetches the portfolio snapshot and per-asset market
// data. Per-asset fetch failures exclude the asset from this cycle;
// failure to get the snapshot at all aborts the cycle.
func (a *Agent) handlePerception(ctx context.Context, cc *CycleContext) (*CycleContext, error) {
	if err := a.checkInterrupt(); err != nil {
		return cc, err
	}
	a.transition(StatePerception)

	timeout := time.Duration(a.cfg.AgentConfig.PerceptionTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	breaker := a.breakers.Get("platform")
	err := circuit.Do(ctx, breaker, a.retryCfg, func(ctx context.Context) error {
		snapshot, err := a.platform.GetPortfolioSnapshot(ctx)
		if err != nil {
			return err
		}
		cc.Snapshot = snapshot
		return nil
	})
	if err != nil {
		return cc, fmt.Errorf("portfolio snapshot unavailable: %w", err)
	}

	a.observeValue(cc.Snapshot)

	universe := a.Universe()
	cc.Market = make(map[string]*platform.MarketData, len(universe))
	cc.Returns = make(map[string][]float64, len(universe))
	cc.FailedAssets = make(map[string]string)

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, a.workerCount())

	for _, asset := range universe {
		wg.Add(1)
		sem <- struct{}{}
		go func(asset string) {
			defer wg.Done()
			defer func() { <-sem }()

			data, err := a.platform.GetMarketData(ctx, asset)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				cc.FailedAssets[asset] = err.Error()
				a.logger.Warn("Market data fetch failed", "asset", asset, "error", err)
				return
			}
			cc.Market[asset] = data
			cc.Returns[asset] = data.Returns()
		}(asset)
	}
	wg.Wait()

	// Held assets may not be in the universe; their return history is
	// still needed for correlation and VaR checks.
	for i := range cc.Snapshot.Positions {
		held := cc.Snapshot.Positions[i].Symbol
		if _, ok := cc.Returns[held]; ok {
			continue
		}
		if data, err := a.platform.GetMarketData(ctx, held); err == nil {
			cc.Returns[held] = data.Returns()
		}
	}

	a.logger.Debug("Perception complete",
		"assets", len(cc.Market), "failed", len(cc.FailedAssets))
	return cc, nil
}

// handleReasoning requests a decision per eligible asset through the
// retry and circuit-breaker layer. An asset whose retries exhaust is
// written to the rejection cache and skipped next cycles until the
// cooldown decays; its failure never blocks the other assets.
func (a *Agent) handleReasoning(ctx context.Context, cc *CycleContext) (*CycleContext, error) {
	if err := a.checkInterrupt(); err != nil {
		return cc, err
	}
	a.transition(StateReasoning)

	timeout := time.Duration(a.cfg.AgentConfig.ReasoningTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	breaker := a.breakers.Get("engine")

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, a.workerCount())

	for asset, market := range cc.Market {
		if a.cooldown.IsCoolingDown(asset) {
			a.logger.Debug("Asset cooling down, skipped", "asset", asset)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(asset string, market *platform.MarketData) {
			defer wg.Done()
			defer func() { <-sem }()

			var decision *engine.Decision
			err := circuit.Do(ctx, breaker, a.retryCfg, func(ctx context.Context) error {
				mc := engine.BuildMarketContext(asset, market, cc.Snapshot)
				d, err := a.engine.RequestDecision(ctx, mc)
				if err != nil {
					return err
				}
				decision = d
				return nil
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.cooldown.MarkRejected(asset, err.Error())
				a.logger.Warn("Decision request failed, asset cooled down", "asset", asset, "error", err)
				return
			}
			cc.Decisions = append(cc.Decisions, decision)
			a.bus.PublishDecision(events.EventDecisionProduced,
				decision.ID, decision.Asset, string(decision.Action), decision.Confidence, "")
		}(asset, market)
	}
	wg.Wait()

	a.logger.Info("Reasoning complete", "decisions", len(cc.Decisions))
	return cc, nil
}

// handleRiskCheck evaluates the kill-switch first, then filters every
// decision through the confidence threshold and the risk gatekeeper.
func (a *Agent) handleRiskCheck(ctx context.Context, cc *CycleContext) (*CycleContext, error) {
	if err := a.checkInterrupt(); err != nil {
		return cc, err
	}
	a.transition(StateRiskCheck)

	if triggered, cause := a.killswitch.Check(cc.Snapshot); triggered {
		_, detail := a.killswitch.TripCause()
		a.bus.PublishKillSwitch(string(cause), detail, cc.Snapshot.TotalValue)
		a.logger.Error("Kill-switch tripped", "cause", string(cause), "detail", detail)
		return cc, ErrKillSwitch
	}

	cc.Verdicts = make(map[string]*riskgate.Verdict, len(cc.Decisions))
	minConfidence := a.cfg.AgentConfig.MinConfidence

	for _, d := range cc.Decisions {
		if d.Action == engine.ActionHold {
			continue
		}

		// Confidence is stored 0..100, the configured floor is 0..1
		if d.Confidence/100 < minConfidence {
			reason := fmt.Sprintf("confidence %.1f below threshold %.1f", d.Confidence, minConfidence*100)
			a.rejectDecision(ctx, cc, d, nil, reason)
			continue
		}

		market, ok := cc.Market[d.Asset]
		if !ok {
			a.rejectDecision(ctx, cc, d, nil, "no market data this cycle")
			continue
		}

		size := a.gatekeeper.SuggestSize(cc.Snapshot, market.Price, d.StopLoss)
		verdict := a.gatekeeper.Validate(&riskgate.Input{
			Decision: d,
			Snapshot: cc.Snapshot,
			Price:    market.Price,
			Size:     size,
			Returns:  cc.Returns,
		})
		cc.Verdicts[d.ID] = verdict

		if !verdict.Approved {
			a.rejectDecision(ctx, cc, d, verdict, verdict.Reason)
			continue
		}

		cc.Approved = append(cc.Approved, d)
		a.journal.RecordDecision(ctx, d, verdict, cc.Cycle)
		a.bus.PublishDecision(events.EventDecisionApproved,
			d.ID, d.Asset, string(d.Action), d.Confidence, verdict.Reason)
	}

	a.logger.Info("Risk check complete",
		"candidates", len(cc.Decisions), "approved", len(cc.Approved))
	return cc, nil
}

// rejectDecision journals and publishes a dropped decision and writes
// the asset to the rejection cache.
func (a *Agent) rejectDecision(ctx context.Context, cc *CycleContext, d *engine.Decision, verdict *riskgate.Verdict, reason string) {
	if verdict == nil {
		verdict = &riskgate.Verdict{Approved: false, Rule: riskgate.RuleNone, Reason: reason}
		cc.Verdicts[d.ID] = verdict
	}
	a.cooldown.MarkRejected(d.Asset, reason)
	a.journal.RecordDecision(ctx, d, verdict, cc.Cycle)
	a.bus.PublishDecision(events.EventDecisionRejected,
		d.ID, d.Asset, string(d.Action), d.Confidence, reason)
	a.logger.Info("Decision rejected", "asset", d.Asset, "action", string(d.Action), "reason", reason)
}

// handleExecution executes approved decisions against the platform,
// subject to the daily trade ceiling. Fills are cached by decision ID
// so retries and restarts never double-fill.
func (a *Agent) handleExecution(ctx context.Context, cc *CycleContext) (*CycleContext, error) {
	if err := a.checkInterrupt(); err != nil {
		return cc, err
	}
	a.transition(StateExecution)

	cc.Results = make(map[string]*platform.ExecutionResult, len(cc.Approved))
	breaker := a.breakers.Get("platform")
	maxTrades := a.cfg.AgentConfig.MaxDailyTrades

	for _, d := range cc.Approved {
		if err := a.checkInterrupt(); err != nil {
			return cc, err
		}

		if maxTrades > 0 && a.TradesToday() >= maxTrades {
			a.logger.Warn("Daily trade ceiling reached, decision dropped",
				"asset", d.Asset, "decision_id", d.ID, "ceiling", maxTrades)
			continue
		}

		// A fill may already exist from a previous run of this decision
		if cached, err := a.execCache.Get(ctx, d.ID); err == nil && cached != nil {
			cached.Replayed = true
			cc.Results[d.ID] = cached
			a.logger.Info("Execution replayed from cache", "decision_id", d.ID)
			continue
		}

		verdict := cc.Verdicts[d.ID]
		req := &platform.OrderRequest{
			DecisionID: d.ID,
			Symbol:     d.Asset,
			Side:       orderSide(d.Action),
			Quantity:   verdict.AdjustedSize,
			StopLoss:   d.StopLoss,
			TakeProfit: d.TakeProfit,
		}

		var result *platform.ExecutionResult
		err := circuit.Do(ctx, breaker, a.retryCfg, func(ctx context.Context) error {
			r, err := a.platform.Execute(ctx, req)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err != nil {
			a.cooldown.MarkRejected(d.Asset, err.Error())
			a.bus.PublishError("execution", "order failed", err)
			a.logger.Error("Execution failed", "asset", d.Asset, "decision_id", d.ID, "error", err)
			continue
		}

		cc.Results[d.ID] = result
		if !result.Replayed {
			cc.Executed++
			a.incrTradesToday(ctx)
		}
		a.execCache.Put(ctx, result)
		a.journal.RecordExecution(ctx, result)
		a.bus.PublishOrderExecuted(result.DecisionID, result.OrderID, result.Symbol,
			result.Side, result.FillPrice, result.Quantity, result.Replayed)
		a.logger.Info("Order executed",
			"asset", result.Symbol, "side", result.Side,
			"fill_price", result.FillPrice, "quantity", result.Quantity,
			"replayed", result.Replayed)
	}

	return cc, nil
}

// handleLearning forwards this cycle's fills and any positions closed
// since the previous cycle to the learning collaborator. Recording is
// fire-and-forget: failures are logged, never fatal.
func (a *Agent) handleLearning(ctx context.Context, cc *CycleContext) (*CycleContext, error) {
	if err := a.checkInterrupt(); err != nil {
		return cc, err
	}
	a.transition(StateLearning)

	timeout := time.Duration(a.cfg.AgentConfig.LearningTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Fills from this cycle
	for _, d := range cc.Approved {
		result, ok := cc.Results[d.ID]
		if !ok || result.Replayed {
			continue
		}
		outcome := &learning.Outcome{
			Decision:   d,
			Execution:  result,
			RecordedAt: time.Now(),
		}
		if err := a.recorder.RecordOutcome(ctx, outcome); err != nil {
			a.logger.Warn("Outcome recording failed", "decision_id", d.ID, "error", err)
		}
	}

	// Positions closed since the previous mirror
	current, err := a.platform.GetOpenPositions(ctx)
	if err != nil {
		a.logger.Warn("Position refresh failed, closed-trade detection skipped", "error", err)
		return cc, nil
	}
	closed := a.diffClosedPositions(current)
	for _, trade := range closed {
		outcome := &learning.Outcome{
			ClosedTrade: trade,
			RecordedAt:  time.Now(),
		}
		if err := a.recorder.RecordOutcome(ctx, outcome); err != nil {
			a.logger.Warn("Closed-trade recording failed", "symbol", trade.Symbol, "error", err)
		} else {
			a.bus.Publish(events.Event{
				Type: events.EventOutcomeRecorded,
				Data: map[string]interface{}{
					"symbol":      trade.Symbol,
					"pnl":         trade.PnL,
					"pnl_percent": trade.PnLPercent,
				},
			})
		}
	}

	return cc, nil
}

// diffClosedPositions compares the platform's current positions with
// the mirror from the previous cycle and returns the trades that were
// closed in between, updating the mirror. The mirror is read-through
// state only, never treated as authoritative.
func (a *Agent) diffClosedPositions(current []platform.Position) []*learning.ClosedTrade {
	currentBySymbol := make(map[string]platform.Position, len(current))
	for _, p := range current {
		currentBySymbol[p.Symbol] = p
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var closed []*learning.ClosedTrade
	for symbol, prev := range a.positionMirror {
		if _, stillOpen := currentBySymbol[symbol]; stillOpen {
			continue
		}
		pnl := (prev.CurrentPrice - prev.EntryPrice) * prev.Size
		if prev.Side == "SHORT" {
			pnl = -pnl
		}
		pnlPct := 0.0
		if prev.EntryPrice > 0 {
			pnlPct = pnl / (prev.EntryPrice * prev.Size) * 100
		}
		closed = append(closed, &learning.ClosedTrade{
			Symbol:     symbol,
			Side:       prev.Side,
			EntryPrice: prev.EntryPrice,
			ExitPrice:  prev.CurrentPrice, // last observed price before close
			Size:       prev.Size,
			PnL:        pnl,
			PnLPercent: pnlPct,
			OpenedAt:   prev.OpenedAt,
			ClosedAt:   time.Now(),
		})
	}

	a.positionMirror = currentBySymbol
	return closed
}

// orderSide maps a decision action to the platform order side.
func orderSide(action engine.Action) string {
	switch action {
	case engine.ActionBuy:
		return platform.SideBuy
	case engine.ActionSell:
		return platform.SideSell
	case engine.ActionShort:
		return platform.SideShort
	case engine.ActionClose:
		return platform.SideClose
	default:
		return ""
	}
}
