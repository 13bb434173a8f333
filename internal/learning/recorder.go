package learning

import (
	"context"
	"time"

	"ai-trading-agent/internal/engine"
	"ai-trading-agent/internal/platform"
)

// Outcome is what the loop forwards to the learning collaborator: the
// decision that caused a trade and either its immediate fill or the
// final closed-trade result. Recovered legacy positions are forwarded
// with Synthesized set so their provenance is explicit.
type Outcome struct {
	Decision    *engine.Decision          `json:"decision"`
	Execution   *platform.ExecutionResult `json:"execution,omitempty"`
	ClosedTrade *ClosedTrade              `json:"closed_trade,omitempty"`
	Synthesized bool                      `json:"synthesized,omitempty"`
	RecordedAt  time.Time                 `json:"recorded_at"`
}

// ClosedTrade describes a position that was closed since the last
// cycle, detected by diffing position snapshots.
type ClosedTrade struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Size       float64   `json:"size"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnl_percent"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// Recorder is the learning collaborator boundary. RecordOutcome is
// fire-and-forget from the loop's perspective: failures are logged by
// the caller, never fatal to a cycle.
type Recorder interface {
	RecordOutcome(ctx context.Context, outcome *Outcome) error
}

// NoopRecorder discards outcomes. Used when learning is disabled.
type NoopRecorder struct{}

func (NoopRecorder) RecordOutcome(ctx context.Context, outcome *Outcome) error { return nil }

// MultiRecorder fans an outcome out to several recorders. The first
// error is returned after every recorder has been attempted.
type MultiRecorder []Recorder

func (m MultiRecorder) RecordOutcome(ctx context.Context, outcome *Outcome) error {
	var firstErr error
	for _, r := range m {
		if err := r.RecordOutcome(ctx, outcome); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = MultiRecorder(nil)
	_ Recorder = (*HTTPRecorder)(nil)
)
