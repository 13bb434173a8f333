package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.AgentConfig.AssetUniverse = []string{"BTCUSDT", "ETHUSDT"}
	applyEnvOverrides(cfg)
	return cfg
}

func TestDefaultsAreValidGivenUniverse(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"loss", "drawdown", "gain"}, cfg.KillSwitchConfig.CheckOrder)
	assert.True(t, cfg.PlatformConfig.PaperMode)
}

func TestLoadFailsWithoutUniverse(t *testing.T) {
	// No config.json in this directory and no env override: Load must
	// fail rather than invent a trading universe.
	t.Setenv("AGENT_ASSET_UNIVERSE", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asset universe is empty")
}

func TestEnvOverridesNeverDefaultUniverse(t *testing.T) {
	t.Setenv("AGENT_ASSET_UNIVERSE", "")

	cfg := &Config{}
	applyEnvOverrides(cfg)
	assert.Empty(t, cfg.AgentConfig.AssetUniverse)
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyUniverse(t *testing.T) {
	cfg := validConfig()
	cfg.AgentConfig.AssetUniverse = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.AgentConfig.AnalysisIntervalSecs = 0 },
		func(c *Config) { c.AgentConfig.MinConfidence = 1.5 },
		func(c *Config) { c.AgentConfig.MaxDailyTrades = 0 },
		func(c *Config) { c.AgentConfig.WorkerCount = 0 },
		func(c *Config) { c.KillSwitchConfig.MaxLossPct = 0 },
		func(c *Config) { c.KillSwitchConfig.MaxDrawdownPct = -4 },
		func(c *Config) { c.RiskConfig.RiskPerTradePct = 0 },
		func(c *Config) { c.RiskConfig.MaxConcentrationPct = 120 },
		func(c *Config) { c.CooldownConfig.DecayWindowSecs = 0 },
		func(c *Config) { c.CircuitConfig.FailureThreshold = 0 },
	}
	for i, mutate := range cases {
		cfg := validConfig()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestValidateRejectsUnknownCheckOrder(t *testing.T) {
	cfg := validConfig()
	cfg.KillSwitchConfig.CheckOrder = []string{"loss", "volatility"}
	assert.Error(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGENT_ASSET_UNIVERSE", "solusdt, adausdt")
	t.Setenv("AGENT_MAX_DAILY_TRADES", "3")
	t.Setenv("KILLSWITCH_MAX_LOSS_PCT", "2.5")
	t.Setenv("PLATFORM_PAPER_MODE", "false")

	cfg := &Config{}
	applyEnvOverrides(cfg)

	assert.Equal(t, []string{"SOLUSDT", "ADAUSDT"}, cfg.AgentConfig.AssetUniverse)
	assert.Equal(t, 3, cfg.AgentConfig.MaxDailyTrades)
	assert.InDelta(t, 2.5, cfg.KillSwitchConfig.MaxLossPct, 1e-9)
	assert.False(t, cfg.PlatformConfig.PaperMode)
}

func TestDurationAccessors(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, cfg.AgentConfig.AnalysisInterval().Seconds(), float64(cfg.AgentConfig.AnalysisIntervalSecs))
	assert.Equal(t, cfg.AgentConfig.ErrorBackoff().Seconds(), float64(cfg.AgentConfig.ErrorBackoffSecs))
}
