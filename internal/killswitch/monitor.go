package killswitch

import (
	"fmt"
	"sync"
	"time"

	"ai-trading-agent/config"
	"ai-trading-agent/internal/platform"
)

// Cause names the threshold that tripped the kill-switch.
type Cause string

const (
	CauseNone             Cause = ""
	CauseLoss             Cause = "loss"
	CauseDrawdown         Cause = "drawdown"
	CauseGain             Cause = "gain"
	CauseAlreadyTriggered Cause = "already-triggered"
)

// Monitor watches aggregate P&L against the gain, loss and drawdown
// thresholds. The triggered flag is write-once: after the first trip
// the monitor stays tripped for the rest of the run and stops
// re-evaluating thresholds.
type Monitor struct {
	cfg config.KillSwitchConfig

	mu          sync.RWMutex
	triggered   bool
	cause       Cause
	detail      string
	triggeredAt time.Time
}

func NewMonitor(cfg config.KillSwitchConfig) *Monitor {
	return &Monitor{cfg: cfg}
}

// Check evaluates the thresholds against the snapshot in the
// configured order (loss and drawdown before gain by default, so a
// rally cannot mask an already breached loss limit). The first breach
// in that order is the reported cause even when several thresholds are
// breached at once.
func (m *Monitor) Check(snapshot *platform.PortfolioSnapshot) (bool, Cause) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.triggered {
		return true, CauseAlreadyTriggered
	}
	if snapshot == nil || snapshot.InitialValue <= 0 {
		return false, CauseNone
	}

	gainPct := (snapshot.TotalValue - snapshot.InitialValue) / snapshot.InitialValue * 100
	lossPct := -gainPct
	drawdownPct := 0.0
	if snapshot.PeakValue > 0 {
		drawdownPct = (snapshot.PeakValue - snapshot.TotalValue) / snapshot.PeakValue * 100
	}

	for _, name := range m.cfg.CheckOrder {
		switch name {
		case "loss":
			if m.cfg.MaxLossPct > 0 && lossPct >= m.cfg.MaxLossPct {
				m.trip(CauseLoss, fmt.Sprintf("loss %.2f%% breached limit %.2f%%", lossPct, m.cfg.MaxLossPct))
				return true, CauseLoss
			}
		case "drawdown":
			if m.cfg.MaxDrawdownPct > 0 && drawdownPct >= m.cfg.MaxDrawdownPct {
				m.trip(CauseDrawdown, fmt.Sprintf("drawdown %.2f%% from peak breached limit %.2f%%", drawdownPct, m.cfg.MaxDrawdownPct))
				return true, CauseDrawdown
			}
		case "gain":
			if m.cfg.MaxGainPct > 0 && gainPct >= m.cfg.MaxGainPct {
				m.trip(CauseGain, fmt.Sprintf("gain %.2f%% breached limit %.2f%%", gainPct, m.cfg.MaxGainPct))
				return true, CauseGain
			}
		}
	}
	return false, CauseNone
}

// trip records the breach. Caller must hold m.mu.
func (m *Monitor) trip(cause Cause, detail string) {
	m.triggered = true
	m.cause = cause
	m.detail = detail
	m.triggeredAt = time.Now()
}

// Triggered reports whether the kill-switch has fired this run.
func (m *Monitor) Triggered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.triggered
}

// TripCause returns the cause and detail of the trip, empty if the
// monitor has not fired.
func (m *Monitor) TripCause() (Cause, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cause, m.detail
}

// Stats returns a status snapshot for the control surface.
func (m *Monitor) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]interface{}{
		"triggered":        m.triggered,
		"max_gain_pct":     m.cfg.MaxGainPct,
		"max_loss_pct":     m.cfg.MaxLossPct,
		"max_drawdown_pct": m.cfg.MaxDrawdownPct,
		"check_order":      m.cfg.CheckOrder,
	}
	if m.triggered {
		stats["cause"] = string(m.cause)
		stats["detail"] = m.detail
		stats["triggered_at"] = m.triggeredAt
	}
	return stats
}
