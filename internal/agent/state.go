package agent

// AgentState is the orchestrator's current position in the cycle.
type AgentState string

const (
	StateIdle       AgentState = "IDLE"
	StatePerception AgentState = "PERCEPTION"
	StateReasoning  AgentState = "REASONING"
	StateRiskCheck  AgentState = "RISK_CHECK"
	StateExecution  AgentState = "EXECUTION"
	StateLearning   AgentState = "LEARNING"
	StateRecovering AgentState = "RECOVERING"
)

// transition moves the agent to the next state and publishes the
// change as one atomic step: the state field update and the event
// emission happen under the same lock, so an observer can never see a
// transition without its event or vice versa.
func (a *Agent) transition(to AgentState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	from := a.state
	a.state = to
	if from != to {
		// Publish is non-blocking (subscribers run in goroutines), so
		// holding the lock here is safe and keeps update+publish atomic.
		a.bus.PublishStateChanged(string(from), string(to), a.cycle)
	}
}

// State returns the current state.
func (a *Agent) State() AgentState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}
