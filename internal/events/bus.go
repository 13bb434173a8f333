package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventStateChanged      EventType = "STATE_CHANGED"
	EventCycleCompleted    EventType = "CYCLE_COMPLETED"
	EventDecisionProduced  EventType = "DECISION_PRODUCED"
	EventDecisionApproved  EventType = "DECISION_APPROVED"
	EventDecisionRejected  EventType = "DECISION_REJECTED"
	EventOrderExecuted     EventType = "ORDER_EXECUTED"
	EventOutcomeRecorded   EventType = "OUTCOME_RECORDED"
	EventKillSwitchTripped EventType = "KILL_SWITCH_TRIPPED"
	EventRecoveryCompleted EventType = "RECOVERY_COMPLETED"
	EventAgentStarted      EventType = "AGENT_STARTED"
	EventAgentStopped      EventType = "AGENT_STOPPED"
	EventAgentPaused       EventType = "AGENT_PAUSED"
	EventAgentResumed      EventType = "AGENT_RESUMED"
	EventBreakerTripped    EventType = "BREAKER_TRIPPED"
	EventBreakerReset      EventType = "BREAKER_RESET"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishStateChanged publishes a state machine transition
func (eb *EventBus) PublishStateChanged(from, to string, cycle int64) {
	eb.Publish(Event{
		Type: EventStateChanged,
		Data: map[string]interface{}{
			"from":  from,
			"to":    to,
			"cycle": cycle,
		},
	})
}

// PublishCycleCompleted publishes a cycle summary
func (eb *EventBus) PublishCycleCompleted(cycle int64, decisions, approved, executed int, durationMs int64) {
	eb.Publish(Event{
		Type: EventCycleCompleted,
		Data: map[string]interface{}{
			"cycle":       cycle,
			"decisions":   decisions,
			"approved":    approved,
			"executed":    executed,
			"duration_ms": durationMs,
		},
	})
}

// PublishDecision publishes a decision lifecycle event
func (eb *EventBus) PublishDecision(eventType EventType, decisionID, asset, action string, confidence float64, reason string) {
	data := map[string]interface{}{
		"decision_id": decisionID,
		"asset":       asset,
		"action":      action,
		"confidence":  confidence,
	}
	if reason != "" {
		data["reason"] = reason
	}
	eb.Publish(Event{Type: eventType, Data: data})
}

// PublishOrderExecuted publishes a fill
func (eb *EventBus) PublishOrderExecuted(decisionID, orderID, symbol, side string, fillPrice, quantity float64, replayed bool) {
	eb.Publish(Event{
		Type: EventOrderExecuted,
		Data: map[string]interface{}{
			"decision_id": decisionID,
			"order_id":    orderID,
			"symbol":      symbol,
			"side":        side,
			"fill_price":  fillPrice,
			"quantity":    quantity,
			"replayed":    replayed,
		},
	})
}

// PublishKillSwitch publishes a kill-switch trip
func (eb *EventBus) PublishKillSwitch(cause, detail string, portfolioValue float64) {
	eb.Publish(Event{
		Type: EventKillSwitchTripped,
		Data: map[string]interface{}{
			"cause":           cause,
			"detail":          detail,
			"portfolio_value": portfolioValue,
		},
	})
}

// PublishRecoveryCompleted publishes the startup recovery result
func (eb *EventBus) PublishRecoveryCompleted(recovered int, degraded bool, attempts int) {
	eb.Publish(Event{
		Type: EventRecoveryCompleted,
		Data: map[string]interface{}{
			"recovered_positions": recovered,
			"degraded":            degraded,
			"attempts":            attempts,
		},
	})
}

// PublishBreaker publishes a circuit-breaker state change
func (eb *EventBus) PublishBreaker(eventType EventType, name string, failures int) {
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"breaker":  name,
			"failures": failures,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
