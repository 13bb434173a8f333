package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-trading-agent/config"
	"ai-trading-agent/internal/circuit"
	"ai-trading-agent/internal/cooldown"
	"ai-trading-agent/internal/database"
	"ai-trading-agent/internal/engine"
	"ai-trading-agent/internal/events"
	"ai-trading-agent/internal/killswitch"
	"ai-trading-agent/internal/learning"
	"ai-trading-agent/internal/logging"
	"ai-trading-agent/internal/platform"
	"ai-trading-agent/internal/riskgate"
)

// ErrKillSwitch is returned by Run when the kill-switch halted the
// loop. It is the caller's signal to exit non-zero.
var ErrKillSwitch = errors.New("halted: kill-switch")

var (
	errStopped = errors.New("agent stopped")
	errPaused  = errors.New("agent paused")
)

// DecisionEngine is the reasoning collaborator boundary.
type DecisionEngine interface {
	RequestDecision(ctx context.Context, mc *engine.MarketContext) (*engine.Decision, error)
}

// Deps bundles the agent's collaborators.
type Deps struct {
	Platform platform.Client
	Engine   DecisionEngine
	Recorder learning.Recorder
	Journal  *database.Journal
	Cache    *database.ExecutionCache
	Bus      *events.EventBus
	Logger   *logging.Logger
}

// Agent drives the perception-reasoning-risk-execution-learning cycle.
// One RunCycle executes at a time; the control surface (Stop, Pause,
// Resume, Status, UpdateUniverse) is safe to call concurrently from
// any goroutine while a cycle is in flight.
type Agent struct {
	cfg    *config.Config
	logger *logging.Logger
	bus    *events.EventBus

	platform  platform.Client
	engine    DecisionEngine
	recorder  learning.Recorder
	journal   *database.Journal
	execCache *database.ExecutionCache

	gatekeeper *riskgate.Gatekeeper
	killswitch *killswitch.Monitor
	cooldown   *cooldown.Cache
	breakers   *circuit.Registry
	retryCfg   *circuit.RetryConfig

	liquidationAttempts int
	liquidationBackoff  time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}

	universeMu sync.RWMutex
	universe   []string

	mu                  sync.RWMutex
	state               AgentState
	cycle               int64
	startedAt           time.Time
	lastCycleAt         time.Time
	tradesToday         int
	tradeDay            string // UTC day the counter belongs to
	consecutiveFailures int
	initialValue        float64
	peakValue           float64
	currentValue        float64
	recoveryDegraded    bool
	paused              bool
	pauseReason         string
	positionMirror      map[string]platform.Position
}

// New creates an agent from validated configuration and collaborators.
func New(cfg *config.Config, deps Deps) *Agent {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = learning.NoopRecorder{}
	}
	bus := deps.Bus
	if bus == nil {
		bus = events.NewEventBus()
	}

	breakerCfg := &circuit.BreakerConfig{
		FailureThreshold: cfg.CircuitConfig.FailureThreshold,
		Cooldown:         time.Duration(cfg.CircuitConfig.CooldownSecs) * time.Second,
	}
	if breakerCfg.FailureThreshold <= 0 {
		breakerCfg = circuit.DefaultBreakerConfig()
	}
	retryCfg := &circuit.RetryConfig{
		MaxAttempts: cfg.CircuitConfig.MaxRetries,
		BackoffBase: time.Duration(cfg.CircuitConfig.BackoffBaseMs) * time.Millisecond,
	}
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = circuit.DefaultRetryConfig()
	}

	decayWindow := time.Duration(cfg.CooldownConfig.DecayWindowSecs) * time.Second
	if decayWindow <= 0 {
		decayWindow = 5 * time.Minute
	}

	universe := make([]string, len(cfg.AgentConfig.AssetUniverse))
	copy(universe, cfg.AgentConfig.AssetUniverse)

	a := &Agent{
		cfg:                 cfg,
		logger:              logger.WithComponent("agent"),
		bus:                 bus,
		platform:            deps.Platform,
		engine:              deps.Engine,
		recorder:            recorder,
		journal:             deps.Journal,
		execCache:           deps.Cache,
		gatekeeper:          riskgate.New(cfg.RiskConfig),
		killswitch:          killswitch.NewMonitor(cfg.KillSwitchConfig),
		cooldown:            cooldown.NewCache(decayWindow),
		breakers:            circuit.NewRegistry(breakerCfg),
		retryCfg:            retryCfg,
		stopCh:              make(chan struct{}),
		universe:            universe,
		liquidationAttempts: 5,
		liquidationBackoff:  time.Second,
		state:               StateIdle,
		positionMirror:      make(map[string]platform.Position),
	}

	for _, name := range []string{"platform", "engine"} {
		b := a.breakers.Get(name)
		b.OnTrip(func(name, reason string) {
			a.bus.PublishBreaker(events.EventBreakerTripped, name, cfg.CircuitConfig.FailureThreshold)
		})
		b.OnReset(func(name string) {
			a.bus.PublishBreaker(events.EventBreakerReset, name, 0)
		})
	}
	return a
}

// Run executes the control loop until Stop is called or the
// kill-switch fires. It returns ErrKillSwitch on a safety halt and nil
// on a clean stop.
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	a.startedAt = time.Now()
	a.mu.Unlock()

	a.bus.Publish(events.Event{Type: events.EventAgentStarted, Data: map[string]interface{}{
		"universe": a.Universe(),
	}})
	a.logger.Info("Agent starting", "universe", a.Universe())

	// Startup reconciliation runs exactly once, before the first Idle
	a.recoverPositions(ctx)

	for {
		if a.stopped() || ctx.Err() != nil {
			break
		}
		if a.killswitch.Triggered() {
			return a.haltOnKillSwitch(ctx)
		}
		if a.isPaused() {
			a.transition(StateIdle)
			if !a.sleep(ctx, time.Second) {
				break
			}
			continue
		}

		if err := a.waitIdle(ctx); err != nil {
			break
		}

		err := a.RunCycle(ctx)
		switch {
		case err == nil:
			a.mu.Lock()
			a.consecutiveFailures = 0
			a.mu.Unlock()
		case errors.Is(err, errStopped), errors.Is(err, context.Canceled):
			// fall through to the stop check at the top
		case errors.Is(err, errPaused):
			continue
		case errors.Is(err, ErrKillSwitch):
			return a.haltOnKillSwitch(ctx)
		default:
			a.onCycleFailure(ctx, err)
		}
	}

	a.bus.Publish(events.Event{Type: events.EventAgentStopped, Data: map[string]interface{}{}})
	a.logger.Info("Agent stopped")
	return nil
}

// RunCycle executes exactly one pass through the state sequence. The
// daily trade counter's day-boundary reset happens here, before any
// state that reads it.
func (a *Agent) RunCycle(ctx context.Context) error {
	if err := a.checkInterrupt(); err != nil {
		return err
	}

	a.mu.Lock()
	a.cycle++
	a.lastCycleAt = time.Now()
	cycleNum := a.cycle
	a.mu.Unlock()

	a.resetDailyCounter(ctx)
	a.cooldown.Expire(time.Now())

	started := time.Now()
	cc := &CycleContext{Cycle: cycleNum, StartedAt: started}

	var err error
	if cc, err = a.handlePerception(ctx, cc); err != nil {
		return err
	}
	if cc, err = a.handleReasoning(ctx, cc); err != nil {
		return err
	}
	if cc, err = a.handleRiskCheck(ctx, cc); err != nil {
		return err
	}
	if cc, err = a.handleExecution(ctx, cc); err != nil {
		return err
	}
	if cc, err = a.handleLearning(ctx, cc); err != nil {
		return err
	}

	a.transition(StateIdle)
	a.bus.PublishCycleCompleted(cycleNum, len(cc.Decisions), len(cc.Approved),
		cc.Executed, time.Since(started).Milliseconds())
	return nil
}

// onCycleFailure applies the loop-level backoff and pauses trading
// when failures accumulate past the configured ceiling.
func (a *Agent) onCycleFailure(ctx context.Context, err error) {
	a.mu.Lock()
	a.consecutiveFailures++
	failures := a.consecutiveFailures
	a.mu.Unlock()

	a.bus.PublishError("cycle", "cycle failed", err)
	a.logger.Error("Cycle failed", "consecutive_failures", failures, "error", err)

	ceiling := a.cfg.AgentConfig.MaxConsecutiveFailures
	if ceiling > 0 && failures >= ceiling {
		a.Pause(fmt.Sprintf("%d consecutive cycle failures", failures))
		return
	}

	a.transition(StateIdle)
	a.sleep(ctx, a.cfg.AgentConfig.ErrorBackoff())
}

// haltOnKillSwitch liquidates all open positions with bounded retries
// and surfaces the halt. A liquidation failure is itself safety
// critical and is never swallowed.
func (a *Agent) haltOnKillSwitch(ctx context.Context) error {
	cause, detail := a.killswitch.TripCause()
	a.logger.Error("Kill-switch halt, liquidating all positions",
		"cause", string(cause), "detail", detail)

	backoff := a.liquidationBackoff
	var lastErr error
	for attempt := 1; attempt <= a.liquidationAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(backoff)
			backoff *= 2
		}
		// Liquidation must proceed even when the surrounding context is
		// already cancelled.
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		lastErr = a.platform.CloseAll(closeCtx)
		cancel()
		if lastErr == nil {
			a.logger.Info("Liquidation complete", "attempt", attempt)
			a.bus.Publish(events.Event{Type: events.EventAgentStopped, Data: map[string]interface{}{
				"reason": "kill-switch",
				"cause":  string(cause),
			}})
			return ErrKillSwitch
		}
		a.logger.Error("Liquidation attempt failed", "attempt", attempt, "error", lastErr)
	}

	a.bus.PublishError("killswitch", "liquidation failed, positions may remain open", lastErr)
	return fmt.Errorf("%w: liquidation failed: %v", ErrKillSwitch, lastErr)
}

// waitIdle blocks until the analysis cadence elapses, a stop arrives,
// or the context is cancelled.
func (a *Agent) waitIdle(ctx context.Context) error {
	a.transition(StateIdle)

	a.mu.RLock()
	last := a.lastCycleAt
	a.mu.RUnlock()

	wait := a.cfg.AgentConfig.AnalysisInterval() - time.Since(last)
	if last.IsZero() || wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-a.stopCh:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sleep waits d unless a stop arrives first. Returns false on stop.
func (a *Agent) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-a.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// checkInterrupt is called at the top of every state handler so stop
// and kill-switch take effect within one state's latency, not a full
// cycle's. The kill-switch takes precedence over a mere pause.
func (a *Agent) checkInterrupt() error {
	if a.killswitch.Triggered() {
		return ErrKillSwitch
	}
	if a.stopped() {
		return errStopped
	}
	if a.isPaused() {
		return errPaused
	}
	return nil
}

// Stop signals the loop to exit. Safe to call more than once.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
		a.logger.Info("Stop requested")
	})
}

func (a *Agent) stopped() bool {
	select {
	case <-a.stopCh:
		return true
	default:
		return false
	}
}

// Pause suspends trading without stopping the process.
func (a *Agent) Pause(reason string) {
	a.mu.Lock()
	a.paused = true
	a.pauseReason = reason
	a.mu.Unlock()

	a.bus.Publish(events.Event{Type: events.EventAgentPaused, Data: map[string]interface{}{
		"reason": reason,
	}})
	a.logger.Warn("Agent paused", "reason", reason)
}

// Resume clears a pause and the consecutive-failure counter.
func (a *Agent) Resume() {
	a.mu.Lock()
	a.paused = false
	a.pauseReason = ""
	a.consecutiveFailures = 0
	a.mu.Unlock()

	a.bus.Publish(events.Event{Type: events.EventAgentResumed, Data: map[string]interface{}{}})
	a.logger.Info("Agent resumed")
}

func (a *Agent) isPaused() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.paused
}

// Universe returns a copy of the current asset universe.
func (a *Agent) Universe() []string {
	a.universeMu.RLock()
	defer a.universeMu.RUnlock()
	out := make([]string, len(a.universe))
	copy(out, a.universe)
	return out
}

// UpdateUniverse replaces the asset universe. The update takes effect
// at the next Perception; the cycle in flight keeps the list it read.
func (a *Agent) UpdateUniverse(assets []string) error {
	if len(assets) == 0 {
		return fmt.Errorf("asset universe cannot be empty")
	}
	next := make([]string, len(assets))
	copy(next, assets)

	a.universeMu.Lock()
	a.universe = next
	a.universeMu.Unlock()

	a.logger.Info("Asset universe updated", "universe", next)
	return nil
}

// observeValue records portfolio value, seeds the initial value on
// first observation, and advances the monotone peak. The snapshot is
// annotated so downstream checks see the same initial/peak the agent
// tracks.
func (a *Agent) observeValue(snapshot *platform.PortfolioSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialValue == 0 {
		a.initialValue = snapshot.TotalValue
	}
	if snapshot.TotalValue > a.peakValue {
		a.peakValue = snapshot.TotalValue
	}
	a.currentValue = snapshot.TotalValue

	snapshot.InitialValue = a.initialValue
	snapshot.PeakValue = a.peakValue
}

// resetDailyCounter is the single authoritative day-boundary check: it
// runs at cycle start, before any Execution reads the counter.
func (a *Agent) resetDailyCounter(ctx context.Context) {
	today := time.Now().UTC().Format("2006-01-02")

	a.mu.Lock()
	if a.tradeDay == today {
		a.mu.Unlock()
		return
	}
	a.tradeDay = today
	a.tradesToday = 0
	a.mu.Unlock()

	// Restore the count from Redis so a restart mid-day does not reset
	// the ceiling.
	if count, err := a.execCache.DailyTrades(ctx, time.Now().UTC()); err == nil && count > 0 {
		a.mu.Lock()
		a.tradesToday = count
		a.mu.Unlock()
	}
	a.logger.Info("Daily trade counter reset", "day", today)
}

// TradesToday returns the number of executions so far this UTC day.
func (a *Agent) TradesToday() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tradesToday
}

func (a *Agent) incrTradesToday(ctx context.Context) {
	a.mu.Lock()
	a.tradesToday++
	a.mu.Unlock()
	a.execCache.IncrDailyTrades(ctx, time.Now().UTC())
}

// Status is the read-only snapshot exposed to external supervisors.
type Status struct {
	State               AgentState `json:"state"`
	Cycle               int64      `json:"cycle"`
	Paused              bool       `json:"paused"`
	PauseReason         string     `json:"pause_reason,omitempty"`
	KillSwitchTriggered bool       `json:"kill_switch_triggered"`
	KillSwitchCause     string     `json:"kill_switch_cause,omitempty"`
	TradesToday         int        `json:"trades_today"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	InitialValue        float64    `json:"initial_value"`
	PeakValue           float64    `json:"peak_value"`
	CurrentValue        float64    `json:"current_value"`
	RecoveryDegraded    bool       `json:"recovery_degraded"`
	OpenPositions       int        `json:"open_positions"`
	CoolingDownAssets   int        `json:"cooling_down_assets"`
	Universe            []string   `json:"universe"`
	StartedAt           time.Time  `json:"started_at"`
	LastCycleAt         time.Time  `json:"last_cycle_at,omitempty"`
}

// Status returns the current control-surface snapshot. Safe to call
// concurrently with a running cycle.
func (a *Agent) Status() Status {
	cause, _ := a.killswitch.TripCause()

	a.mu.RLock()
	defer a.mu.RUnlock()
	return Status{
		State:               a.state,
		Cycle:               a.cycle,
		Paused:              a.paused,
		PauseReason:         a.pauseReason,
		KillSwitchTriggered: a.killswitch.Triggered(),
		KillSwitchCause:     string(cause),
		TradesToday:         a.tradesToday,
		ConsecutiveFailures: a.consecutiveFailures,
		InitialValue:        a.initialValue,
		PeakValue:           a.peakValue,
		CurrentValue:        a.currentValue,
		RecoveryDegraded:    a.recoveryDegraded,
		OpenPositions:       len(a.positionMirror),
		CoolingDownAssets:   a.cooldown.Len(),
		Universe:            a.Universe(),
		StartedAt:           a.startedAt,
		LastCycleAt:         a.lastCycleAt,
	}
}

// KillSwitchStats exposes the monitor's stats for the control surface.
func (a *Agent) KillSwitchStats() map[string]interface{} {
	return a.killswitch.Stats()
}

// BreakerStats exposes the circuit breakers' stats for the control
// surface.
func (a *Agent) BreakerStats() []map[string]interface{} {
	return a.breakers.Stats()
}

func (a *Agent) workerCount() int {
	if a.cfg.AgentConfig.WorkerCount > 0 {
		return a.cfg.AgentConfig.WorkerCount
	}
	return 4
}
