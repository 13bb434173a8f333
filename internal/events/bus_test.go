package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector gathers events delivered on subscriber goroutines.
type collector struct {
	mu     sync.Mutex
	events []Event
	ch     chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 16)}
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.ch:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus()
	c := newCollector()
	bus.Subscribe(EventKillSwitchTripped, c.handle)

	bus.PublishKillSwitch("loss", "run loss 2.50% breached limit", 9750)

	got := c.wait(t, 1)
	require.Len(t, got, 1)
	assert.Equal(t, EventKillSwitchTripped, got[0].Type)
	assert.Equal(t, "loss", got[0].Data["cause"])
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	bus := NewEventBus()
	c := newCollector()
	bus.Subscribe(EventOrderExecuted, c.handle)

	bus.PublishStateChanged("IDLE", "PERCEPTION", 1)

	select {
	case <-c.ch:
		t.Fatal("subscriber received an event of a different type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := NewEventBus()
	c := newCollector()
	bus.SubscribeAll(c.handle)

	bus.PublishStateChanged("IDLE", "PERCEPTION", 7)
	bus.PublishDecision(EventDecisionApproved, "d-1", "BTCUSDT", "BUY", 88, "all risk checks passed")
	bus.PublishError("execution", "order failed", assert.AnError)

	got := c.wait(t, 3)
	require.Len(t, got, 3)

	seen := make(map[EventType]bool, 3)
	for _, e := range got {
		seen[e.Type] = true
	}
	assert.True(t, seen[EventStateChanged])
	assert.True(t, seen[EventDecisionApproved])
	assert.True(t, seen[EventError])
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewEventBus()
	release := make(chan struct{})
	bus.SubscribeAll(func(Event) { <-release })

	done := make(chan struct{})
	go func() {
		bus.PublishCycleCompleted(1, 3, 2, 1, 250)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(release)
}
