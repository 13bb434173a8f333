package agent

import (
	"context"
	"time"

	"ai-trading-agent/internal/engine"
	"ai-trading-agent/internal/learning"
	"ai-trading-agent/internal/platform"
)

// recoverPositions reconciles the agent's position mirror with the
// platform's authoritative state on startup. It retries with
// exponential backoff; if every attempt fails the agent still starts,
// but in a degraded mode that is visible in Status rather than only in
// the logs.
func (a *Agent) recoverPositions(ctx context.Context) {
	a.transition(StateRecovering)

	maxAttempts := a.cfg.AgentConfig.RecoveryMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	backoff := time.Duration(a.cfg.AgentConfig.RecoveryBackoffSecs) * time.Second
	if backoff <= 0 {
		backoff = time.Second
	}

	var positions []platform.Position
	var recovered bool
	var attempt int
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		var err error
		positions, err = a.platform.GetOpenPositions(ctx)
		if err == nil {
			recovered = true
			break
		}
		a.logger.Warn("Position recovery attempt failed",
			"attempt", attempt, "max_attempts", maxAttempts, "error", err)
		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	if !recovered {
		a.mu.Lock()
		a.recoveryDegraded = true
		a.mu.Unlock()
		a.bus.PublishRecoveryCompleted(0, true, maxAttempts)
		a.logger.Error("Position recovery exhausted, starting with unknown provenance",
			"attempts", maxAttempts)
		return
	}

	// Synthesize provenance for positions that predate this process so
	// the learning collaborator can attribute their eventual outcomes.
	for i := range positions {
		p := &positions[i]
		action := engine.ActionBuy
		if p.Side == "SHORT" {
			action = engine.ActionShort
		}
		decision := engine.NewDecision(p.Symbol, action, 100,
			"synthesized for position recovered at startup")
		decision.StopLoss = p.StopLoss
		decision.TakeProfit = p.TakeProfit

		outcome := &learning.Outcome{
			Decision:    decision,
			Synthesized: true,
			RecordedAt:  time.Now(),
		}
		if err := a.recorder.RecordOutcome(ctx, outcome); err != nil {
			a.logger.Warn("Recovered-position provenance recording failed",
				"symbol", p.Symbol, "error", err)
		}
	}

	a.mu.Lock()
	a.positionMirror = make(map[string]platform.Position, len(positions))
	for _, p := range positions {
		a.positionMirror[p.Symbol] = p
	}
	a.mu.Unlock()

	a.bus.PublishRecoveryCompleted(len(positions), false, attempt)
	a.logger.Info("Position recovery complete",
		"positions", len(positions), "attempts", attempt)
}
