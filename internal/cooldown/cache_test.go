package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkRejectedStartsCooldown(t *testing.T) {
	c := NewCache(time.Minute)

	assert.False(t, c.IsCoolingDown("BTCUSDT"))
	c.MarkRejected("BTCUSDT", "engine timeout")
	assert.True(t, c.IsCoolingDown("BTCUSDT"))
	assert.False(t, c.IsCoolingDown("ETHUSDT"))
}

func TestReMarkingKeepsSingleEntry(t *testing.T) {
	c := NewCache(time.Minute)

	c.MarkRejected("BTCUSDT", "first")
	c.MarkRejected("BTCUSDT", "second")

	assert.Equal(t, 1, c.Len())
	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Reason)
}

func TestCooldownDecays(t *testing.T) {
	c := NewCache(20 * time.Millisecond)

	c.MarkRejected("BTCUSDT", "rejected")
	require.True(t, c.IsCoolingDown("BTCUSDT"))

	time.Sleep(30 * time.Millisecond)
	assert.False(t, c.IsCoolingDown("BTCUSDT"))
}

func TestExpirePrunesStaleEntries(t *testing.T) {
	c := NewCache(20 * time.Millisecond)

	c.MarkRejected("BTCUSDT", "rejected")
	c.MarkRejected("ETHUSDT", "rejected")
	require.Equal(t, 2, c.Len())

	// Not yet expired
	c.Expire(time.Now())
	assert.Equal(t, 2, c.Len())

	c.Expire(time.Now().Add(time.Second))
	assert.Equal(t, 0, c.Len())
}

func TestReMarkRestartsDecay(t *testing.T) {
	c := NewCache(40 * time.Millisecond)

	c.MarkRejected("BTCUSDT", "first")
	time.Sleep(25 * time.Millisecond)
	c.MarkRejected("BTCUSDT", "again")
	time.Sleep(25 * time.Millisecond)

	// 50ms after the first mark but only 25ms after the second
	assert.True(t, c.IsCoolingDown("BTCUSDT"))
}
