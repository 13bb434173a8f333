package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// CycleContext creates a logger for one pass of the control loop
func CycleContext(cycle int64, state string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"cycle": cycle,
		"state": state,
	}).WithComponent("agent")
}

// DecisionContext creates a logger for decision handling
func DecisionContext(decisionID, asset, action string, confidence float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"decision_id": decisionID,
		"asset":       asset,
		"action":      action,
		"confidence":  confidence,
	}).WithComponent("decision")
}

// ExecutionContext creates a logger for order execution
func ExecutionContext(decisionID, asset, side string, size float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"decision_id": decisionID,
		"asset":       asset,
		"side":        side,
		"size":        size,
	}).WithComponent("execution")
}

// RiskContext creates a logger for risk gate evaluations
func RiskContext(asset, rule string, approved bool) *Logger {
	return Default().WithFields(map[string]interface{}{
		"asset":    asset,
		"rule":     rule,
		"approved": approved,
	}).WithComponent("riskgate")
}

// RecoveryContext creates a logger for startup position recovery
func RecoveryContext(attempt int, positions int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"attempt":   attempt,
		"positions": positions,
	}).WithComponent("recovery")
}

// PlatformContext creates a logger for trading platform calls
func PlatformContext(endpoint string) *Logger {
	return Default().WithField("endpoint", endpoint).WithComponent("platform")
}

// EngineContext creates a logger for decision engine calls
func EngineContext(asset, model string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"asset": asset,
		"model": model,
	}).WithComponent("engine")
}
