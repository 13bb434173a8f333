package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"ai-trading-agent/config"
)

// HTTPRecorder forwards outcomes to the external learning service.
type HTTPRecorder struct {
	rest *resty.Client
}

// NewHTTPRecorder creates a recorder for the configured learning
// service endpoint.
func NewHTTPRecorder(cfg config.LearningConfig) *HTTPRecorder {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPRecorder{
		rest: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (r *HTTPRecorder) RecordOutcome(ctx context.Context, outcome *Outcome) error {
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now()
	}
	resp, err := r.rest.R().
		SetContext(ctx).
		SetBody(outcome).
		Post("/api/v1/outcomes")
	if err != nil {
		return fmt.Errorf("outcome submission failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("outcome submission failed: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
