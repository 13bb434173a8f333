package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"ai-trading-agent/internal/engine"
	"ai-trading-agent/internal/learning"
	"ai-trading-agent/internal/platform"
	"ai-trading-agent/internal/riskgate"
)

// DecisionRecord is one journaled decision with its verdict.
type DecisionRecord struct {
	ID            string    `json:"id"`
	Asset         string    `json:"asset"`
	Action        string    `json:"action"`
	Confidence    float64   `json:"confidence"`
	Rationale     string    `json:"rationale"`
	Approved      *bool     `json:"approved,omitempty"`
	VerdictRule   string    `json:"verdict_rule,omitempty"`
	VerdictReason string    `json:"verdict_reason,omitempty"`
	Cycle         int64     `json:"cycle"`
	CreatedAt     time.Time `json:"created_at"`
}

// Journal persists the decision trail to Postgres. All methods are
// nil-receiver safe so the agent can run without a database; a nil
// journal silently accepts every write.
type Journal struct {
	db     *DB
	logger zerolog.Logger
}

// NewJournal creates a journal on an open connection pool.
func NewJournal(db *DB, logger zerolog.Logger) *Journal {
	return &Journal{db: db, logger: logger.With().Str("component", "journal").Logger()}
}

// RecordDecision inserts a decision together with its risk verdict.
func (j *Journal) RecordDecision(ctx context.Context, d *engine.Decision, verdict *riskgate.Verdict, cycle int64) error {
	if j == nil || j.db == nil {
		return nil
	}
	var approved *bool
	var rule, reason string
	if verdict != nil {
		approved = &verdict.Approved
		rule = string(verdict.Rule)
		reason = verdict.Reason
	}
	_, err := j.db.Pool.Exec(ctx,
		`INSERT INTO decisions (id, asset, action, confidence, rationale, approved, verdict_rule, verdict_reason, cycle, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET approved = EXCLUDED.approved,
		   verdict_rule = EXCLUDED.verdict_rule, verdict_reason = EXCLUDED.verdict_reason`,
		d.ID, d.Asset, string(d.Action), d.Confidence, d.Rationale,
		approved, rule, reason, cycle, d.CreatedAt,
	)
	if err != nil {
		j.logger.Error().Err(err).Str("decision_id", d.ID).Msg("failed to journal decision")
	}
	return err
}

// RecordExecution inserts a fill.
func (j *Journal) RecordExecution(ctx context.Context, result *platform.ExecutionResult) error {
	if j == nil || j.db == nil {
		return nil
	}
	_, err := j.db.Pool.Exec(ctx,
		`INSERT INTO executions (order_id, decision_id, symbol, side, fill_price, quantity, status, replayed, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (order_id) DO NOTHING`,
		result.OrderID, result.DecisionID, result.Symbol, result.Side,
		result.FillPrice, result.Quantity, result.Status, result.Replayed, result.ExecutedAt,
	)
	if err != nil {
		j.logger.Error().Err(err).Str("order_id", result.OrderID).Msg("failed to journal execution")
	}
	return err
}

// RecordOutcome stores a learning outcome, satisfying
// learning.Recorder so the journal can sit behind the same interface
// as the external learning service.
func (j *Journal) RecordOutcome(ctx context.Context, outcome *learning.Outcome) error {
	if j == nil || j.db == nil {
		return nil
	}
	var decisionID *string
	if outcome.Decision != nil {
		decisionID = &outcome.Decision.ID
	}

	var symbol, side string
	var entry, exit, size, pnl, pnlPct float64
	var closedAt *time.Time
	if ct := outcome.ClosedTrade; ct != nil {
		symbol, side = ct.Symbol, ct.Side
		entry, exit, size = ct.EntryPrice, ct.ExitPrice, ct.Size
		pnl, pnlPct = ct.PnL, ct.PnLPercent
		closedAt = &ct.ClosedAt
	} else if ex := outcome.Execution; ex != nil {
		symbol, side = ex.Symbol, ex.Side
		entry, size = ex.FillPrice, ex.Quantity
	} else if outcome.Decision != nil {
		symbol = outcome.Decision.Asset
		side = string(outcome.Decision.Action)
	}

	_, err := j.db.Pool.Exec(ctx,
		`INSERT INTO outcomes (decision_id, symbol, side, entry_price, exit_price, size, pnl, pnl_percent, synthesized, closed_at, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		decisionID, symbol, side, entry, exit, size, pnl, pnlPct,
		outcome.Synthesized, closedAt, outcome.RecordedAt,
	)
	if err != nil {
		j.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to journal outcome")
	}
	return err
}

// RecentDecisions returns the newest journaled decisions for the
// control surface.
func (j *Journal) RecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := j.db.Pool.Query(ctx,
		`SELECT id, asset, action, confidence, COALESCE(rationale, ''), approved,
		        COALESCE(verdict_rule, ''), COALESCE(verdict_reason, ''), cycle, created_at
		 FROM decisions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		if err := rows.Scan(&r.ID, &r.Asset, &r.Action, &r.Confidence, &r.Rationale,
			&r.Approved, &r.VerdictRule, &r.VerdictReason, &r.Cycle, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

var _ learning.Recorder = (*Journal)(nil)
