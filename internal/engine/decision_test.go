package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	cases := map[string]Action{
		"buy":    ActionBuy,
		"BUY":    ActionBuy,
		" Sell ": ActionSell,
		"short":  ActionShort,
		"close":  ActionClose,
		"HOLD":   ActionHold,
	}
	for raw, want := range cases {
		got, err := ParseAction(raw)
		require.NoError(t, err, "input %q", raw)
		assert.Equal(t, want, got)
	}

	_, err := ParseAction("yolo")
	assert.Error(t, err)
}

func TestNewDecisionAssignsID(t *testing.T) {
	a := NewDecision("BTCUSDT", ActionBuy, 75, "momentum")
	b := NewDecision("BTCUSDT", ActionBuy, 75, "momentum")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestConfidenceNormalization(t *testing.T) {
	// fractional confidences are treated as 0..1 and scaled
	assert.InDelta(t, 85, NewDecision("X", ActionBuy, 0.85, "").Confidence, 1e-9)
	// out-of-range values are clamped
	assert.InDelta(t, 100, NewDecision("X", ActionBuy, 250, "").Confidence, 1e-9)
	assert.InDelta(t, 0, NewDecision("X", ActionBuy, -5, "").Confidence, 1e-9)
	// in-range values pass through
	assert.InDelta(t, 42, NewDecision("X", ActionBuy, 42, "").Confidence, 1e-9)
}

func TestActionIsTrade(t *testing.T) {
	assert.True(t, ActionBuy.IsTrade())
	assert.True(t, ActionSell.IsTrade())
	assert.True(t, ActionShort.IsTrade())
	assert.True(t, ActionClose.IsTrade())
	assert.False(t, ActionHold.IsTrade())
}
