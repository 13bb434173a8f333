package platform

import (
	"context"
	"time"

	"ai-trading-agent/config"
	"ai-trading-agent/internal/logging"
	"ai-trading-agent/internal/vault"
)

// NewClient builds the platform client selected by the configuration.
// In paper mode a simulated in-memory platform is returned; otherwise a
// REST client is created, pulling credentials from Vault when it is
// enabled and falling back to the config values when it is not.
func NewClient(ctx context.Context, cfg config.PlatformConfig, vaultClient *vault.Client, startingCash float64) (Client, error) {
	logger := logging.Default().WithComponent("platform")

	if cfg.PaperMode {
		logger.Info("Using paper trading platform", "starting_cash", startingCash)
		return NewPaperClient(startingCash), nil
	}

	apiKey, secretKey := cfg.APIKey, cfg.SecretKey
	if vaultClient != nil && vaultClient.IsEnabled() {
		creds, err := vaultClient.GetCredentials(ctx, "platform")
		if err != nil {
			logger.Warn("Vault credential lookup failed, falling back to config", "error", err)
		} else {
			apiKey, secretKey = creds.APIKey, creds.SecretKey
		}
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	logger.Info("Using live trading platform", "base_url", cfg.BaseURL)
	return NewHTTPClient(cfg.BaseURL, apiKey, secretKey, timeout), nil
}
