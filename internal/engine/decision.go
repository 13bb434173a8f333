package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is what a decision tells the agent to do with an asset.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionShort Action = "SHORT"
	ActionClose Action = "CLOSE"
	ActionHold  Action = "HOLD"
)

// ParseAction normalizes a raw action string from the decision engine.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(raw))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	case ActionShort:
		return ActionShort, nil
	case ActionClose:
		return ActionClose, nil
	case ActionHold:
		return ActionHold, nil
	default:
		return "", fmt.Errorf("unknown action %q", raw)
	}
}

// IsTrade reports whether the action places an order when executed.
func (a Action) IsTrade() bool {
	return a == ActionBuy || a == ActionSell || a == ActionShort || a == ActionClose
}

// Decision is a single trading decision produced by the engine. ID is
// assigned locally when the decision is received and is the idempotency
// key for its execution.
type Decision struct {
	ID         string    `json:"id"`
	Asset      string    `json:"asset"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"` // 0..100
	Rationale  string    `json:"rationale"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewDecision builds a decision with a fresh ID and clamped confidence.
func NewDecision(asset string, action Action, confidence float64, rationale string) *Decision {
	return &Decision{
		ID:         uuid.New().String(),
		Asset:      asset,
		Action:     action,
		Confidence: clampConfidence(confidence),
		Rationale:  rationale,
		CreatedAt:  time.Now(),
	}
}

func clampConfidence(c float64) float64 {
	// Engines sometimes report 0..1 instead of 0..100
	if c > 0 && c <= 1 {
		c *= 100
	}
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
