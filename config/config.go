package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AgentConfig      AgentConfig      `json:"agent"`
	RiskConfig       RiskConfig       `json:"risk"`
	KillSwitchConfig KillSwitchConfig `json:"kill_switch"`
	CooldownConfig   CooldownConfig   `json:"cooldown"`
	CircuitConfig    CircuitConfig    `json:"circuit"`
	PlatformConfig   PlatformConfig   `json:"platform"`
	EngineConfig     EngineConfig     `json:"engine"`
	LearningConfig   LearningConfig   `json:"learning"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	VaultConfig      VaultConfig      `json:"vault"`
	ServerConfig     ServerConfig     `json:"server"`
	LoggingConfig    LoggingConfig    `json:"logging"`
}

// AgentConfig holds the control-loop configuration. It is loaded once at
// startup and never mutated while the loop is running.
type AgentConfig struct {
	AssetUniverse          []string `json:"asset_universe"`           // Symbols the agent analyzes
	AnalysisIntervalSecs   int      `json:"analysis_interval_secs"`   // Seconds between cycles
	MinConfidence          float64  `json:"min_confidence"`           // Minimum decision confidence (0-1)
	MaxDailyTrades         int      `json:"max_daily_trades"`         // Executions allowed per UTC day
	PerceptionTimeoutSecs  int      `json:"perception_timeout_secs"`  // Overall timeout for market data fan-out
	ReasoningTimeoutSecs   int      `json:"reasoning_timeout_secs"`   // Overall timeout for decision fan-out
	LearningTimeoutSecs    int      `json:"learning_timeout_secs"`    // Timeout for outcome recording
	WorkerCount            int      `json:"worker_count"`             // Concurrent per-asset workers
	MaxConsecutiveFailures int      `json:"max_consecutive_failures"` // Cycle failures before trading pauses
	ErrorBackoffSecs       int      `json:"error_backoff_secs"`       // Base backoff after a failed cycle
	RecoveryMaxAttempts    int      `json:"recovery_max_attempts"`    // Startup position recovery attempts
	RecoveryBackoffSecs    int      `json:"recovery_backoff_secs"`    // Base backoff between recovery attempts
}

// RiskConfig holds the risk gatekeeper parameters.
type RiskConfig struct {
	RiskPerTradePct      float64 `json:"risk_per_trade_pct"`    // % of portfolio risked per trade
	StopLossPct          float64 `json:"stop_loss_pct"`         // Assumed stop distance %
	MaxConcentrationPct  float64 `json:"max_concentration_pct"` // Max % of portfolio in one asset
	CorrelationThreshold float64 `json:"correlation_threshold"` // Trailing correlation above this is penalized
	CorrelationPenalty   float64 `json:"correlation_penalty"`   // Size reduction per unit of excess correlation
	VaRLimitPct          float64 `json:"var_limit_pct"`         // Max post-trade portfolio VaR %
	VaRConfidence        float64 `json:"var_confidence"`        // VaR confidence level (e.g. 0.95)
	MinReturnHistory     int     `json:"min_return_history"`    // Return samples required per held asset
	MaxDrawdownPct       float64 `json:"max_drawdown_pct"`      // Max drawdown from peak before rejecting
}

// KillSwitchConfig holds the irreversible shutdown thresholds.
type KillSwitchConfig struct {
	MaxGainPct     float64  `json:"max_gain_pct"`     // Halt if run gain exceeds this %
	MaxLossPct     float64  `json:"max_loss_pct"`     // Halt if run loss exceeds this %
	MaxDrawdownPct float64  `json:"max_drawdown_pct"` // Halt if drawdown from peak exceeds this %
	CheckOrder     []string `json:"check_order"`      // Evaluation order, default ["loss","drawdown","gain"]
}

// CooldownConfig holds the decision rejection cache settings.
type CooldownConfig struct {
	DecayWindowSecs int `json:"decay_window_secs"` // Seconds a rejected asset is skipped
}

// CircuitConfig holds the shared circuit breaker settings.
type CircuitConfig struct {
	FailureThreshold int `json:"failure_threshold"` // Consecutive failures before opening
	CooldownSecs     int `json:"cooldown_secs"`     // Seconds before half-open probing
	MaxRetries       int `json:"max_retries"`       // Bounded retries per external call
	BackoffBaseMs    int `json:"backoff_base_ms"`   // Base retry backoff in milliseconds
}

// PlatformConfig holds the trading platform adapter configuration.
type PlatformConfig struct {
	BaseURL     string `json:"base_url"`
	APIKey      string `json:"api_key"`
	SecretKey   string `json:"secret_key"`
	PaperMode   bool   `json:"paper_mode"`   // Use the simulated platform
	TimeoutSecs int    `json:"timeout_secs"` // Per-request timeout
}

// EngineConfig holds the AI decision-engine client configuration.
type EngineConfig struct {
	BaseURL     string `json:"base_url"`
	APIKey      string `json:"api_key"`
	Model       string `json:"model"`
	TimeoutSecs int    `json:"timeout_secs"`
}

// LearningConfig holds the learning collaborator configuration.
type LearningConfig struct {
	Enabled     bool   `json:"enabled"`
	BaseURL     string `json:"base_url"`
	TimeoutSecs int    `json:"timeout_secs"`
}

// DatabaseConfig holds the Postgres journal configuration.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds the execution-cache Redis configuration.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration for API credentials.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for credentials
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// ServerConfig holds the control-surface HTTP server configuration.
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// Load reads config.json if present, applies environment overrides, and
// validates the result. Invalid configuration fails here, before the loop
// starts; defaults are never substituted at runtime.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded configuration for values that would make the
// control loop unsafe to start.
func (c *Config) Validate() error {
	a := c.AgentConfig
	if len(a.AssetUniverse) == 0 {
		return fmt.Errorf("config: asset universe is empty")
	}
	if a.AnalysisIntervalSecs <= 0 {
		return fmt.Errorf("config: analysis_interval_secs must be positive, got %d", a.AnalysisIntervalSecs)
	}
	if a.MinConfidence < 0 || a.MinConfidence > 1 {
		return fmt.Errorf("config: min_confidence must be in [0,1], got %.2f", a.MinConfidence)
	}
	if a.MaxDailyTrades <= 0 {
		return fmt.Errorf("config: max_daily_trades must be positive, got %d", a.MaxDailyTrades)
	}
	if a.WorkerCount <= 0 {
		return fmt.Errorf("config: worker_count must be positive, got %d", a.WorkerCount)
	}

	ks := c.KillSwitchConfig
	if ks.MaxGainPct <= 0 || ks.MaxLossPct <= 0 || ks.MaxDrawdownPct <= 0 {
		return fmt.Errorf("config: kill switch thresholds must be positive (gain=%.2f loss=%.2f drawdown=%.2f)",
			ks.MaxGainPct, ks.MaxLossPct, ks.MaxDrawdownPct)
	}
	for _, check := range ks.CheckOrder {
		switch check {
		case "loss", "drawdown", "gain":
		default:
			return fmt.Errorf("config: unknown kill switch check %q", check)
		}
	}

	r := c.RiskConfig
	if r.RiskPerTradePct <= 0 || r.StopLossPct <= 0 {
		return fmt.Errorf("config: risk_per_trade_pct and stop_loss_pct must be positive")
	}
	if r.MaxConcentrationPct <= 0 || r.MaxConcentrationPct > 100 {
		return fmt.Errorf("config: max_concentration_pct must be in (0,100], got %.2f", r.MaxConcentrationPct)
	}
	if r.MaxDrawdownPct <= 0 || r.MaxDrawdownPct > 100 {
		return fmt.Errorf("config: max_drawdown_pct must be in (0,100], got %.2f", r.MaxDrawdownPct)
	}

	if c.CooldownConfig.DecayWindowSecs <= 0 {
		return fmt.Errorf("config: cooldown decay_window_secs must be positive, got %d", c.CooldownConfig.DecayWindowSecs)
	}
	if c.CircuitConfig.FailureThreshold <= 0 {
		return fmt.Errorf("config: circuit failure_threshold must be positive, got %d", c.CircuitConfig.FailureThreshold)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over config.json.
func applyEnvOverrides(cfg *Config) {
	// Agent config
	if universe := os.Getenv("AGENT_ASSET_UNIVERSE"); universe != "" {
		parts := strings.Split(universe, ",")
		symbols := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				symbols = append(symbols, strings.ToUpper(s))
			}
		}
		cfg.AgentConfig.AssetUniverse = symbols
	}
	// No default universe: an empty one is a configuration error caught
	// by Validate, never substituted for a live-money agent.
	cfg.AgentConfig.AnalysisIntervalSecs = getEnvIntOrDefault("AGENT_ANALYSIS_INTERVAL_SECS", defaultInt(cfg.AgentConfig.AnalysisIntervalSecs, 60))
	cfg.AgentConfig.MinConfidence = getEnvFloatOrDefault("AGENT_MIN_CONFIDENCE", defaultFloat(cfg.AgentConfig.MinConfidence, 0.65))
	cfg.AgentConfig.MaxDailyTrades = getEnvIntOrDefault("AGENT_MAX_DAILY_TRADES", defaultInt(cfg.AgentConfig.MaxDailyTrades, 10))
	cfg.AgentConfig.PerceptionTimeoutSecs = getEnvIntOrDefault("AGENT_PERCEPTION_TIMEOUT_SECS", defaultInt(cfg.AgentConfig.PerceptionTimeoutSecs, 20))
	cfg.AgentConfig.ReasoningTimeoutSecs = getEnvIntOrDefault("AGENT_REASONING_TIMEOUT_SECS", defaultInt(cfg.AgentConfig.ReasoningTimeoutSecs, 90))
	cfg.AgentConfig.LearningTimeoutSecs = getEnvIntOrDefault("AGENT_LEARNING_TIMEOUT_SECS", defaultInt(cfg.AgentConfig.LearningTimeoutSecs, 10))
	cfg.AgentConfig.WorkerCount = getEnvIntOrDefault("AGENT_WORKER_COUNT", defaultInt(cfg.AgentConfig.WorkerCount, 4))
	cfg.AgentConfig.MaxConsecutiveFailures = getEnvIntOrDefault("AGENT_MAX_CONSECUTIVE_FAILURES", defaultInt(cfg.AgentConfig.MaxConsecutiveFailures, 5))
	cfg.AgentConfig.ErrorBackoffSecs = getEnvIntOrDefault("AGENT_ERROR_BACKOFF_SECS", defaultInt(cfg.AgentConfig.ErrorBackoffSecs, 15))
	cfg.AgentConfig.RecoveryMaxAttempts = getEnvIntOrDefault("AGENT_RECOVERY_MAX_ATTEMPTS", defaultInt(cfg.AgentConfig.RecoveryMaxAttempts, 5))
	cfg.AgentConfig.RecoveryBackoffSecs = getEnvIntOrDefault("AGENT_RECOVERY_BACKOFF_SECS", defaultInt(cfg.AgentConfig.RecoveryBackoffSecs, 1))

	// Risk config
	cfg.RiskConfig.RiskPerTradePct = getEnvFloatOrDefault("RISK_PER_TRADE_PCT", defaultFloat(cfg.RiskConfig.RiskPerTradePct, 1.0))
	cfg.RiskConfig.StopLossPct = getEnvFloatOrDefault("RISK_STOP_LOSS_PCT", defaultFloat(cfg.RiskConfig.StopLossPct, 2.0))
	cfg.RiskConfig.MaxConcentrationPct = getEnvFloatOrDefault("RISK_MAX_CONCENTRATION_PCT", defaultFloat(cfg.RiskConfig.MaxConcentrationPct, 25.0))
	cfg.RiskConfig.CorrelationThreshold = getEnvFloatOrDefault("RISK_CORRELATION_THRESHOLD", defaultFloat(cfg.RiskConfig.CorrelationThreshold, 0.7))
	cfg.RiskConfig.CorrelationPenalty = getEnvFloatOrDefault("RISK_CORRELATION_PENALTY", defaultFloat(cfg.RiskConfig.CorrelationPenalty, 2.0))
	cfg.RiskConfig.VaRLimitPct = getEnvFloatOrDefault("RISK_VAR_LIMIT_PCT", defaultFloat(cfg.RiskConfig.VaRLimitPct, 5.0))
	cfg.RiskConfig.VaRConfidence = getEnvFloatOrDefault("RISK_VAR_CONFIDENCE", defaultFloat(cfg.RiskConfig.VaRConfidence, 0.95))
	cfg.RiskConfig.MinReturnHistory = getEnvIntOrDefault("RISK_MIN_RETURN_HISTORY", defaultInt(cfg.RiskConfig.MinReturnHistory, 20))
	cfg.RiskConfig.MaxDrawdownPct = getEnvFloatOrDefault("RISK_MAX_DRAWDOWN_PCT", defaultFloat(cfg.RiskConfig.MaxDrawdownPct, 10.0))

	// Kill switch config
	cfg.KillSwitchConfig.MaxGainPct = getEnvFloatOrDefault("KILLSWITCH_MAX_GAIN_PCT", defaultFloat(cfg.KillSwitchConfig.MaxGainPct, 25.0))
	cfg.KillSwitchConfig.MaxLossPct = getEnvFloatOrDefault("KILLSWITCH_MAX_LOSS_PCT", defaultFloat(cfg.KillSwitchConfig.MaxLossPct, 10.0))
	cfg.KillSwitchConfig.MaxDrawdownPct = getEnvFloatOrDefault("KILLSWITCH_MAX_DRAWDOWN_PCT", defaultFloat(cfg.KillSwitchConfig.MaxDrawdownPct, 15.0))
	if len(cfg.KillSwitchConfig.CheckOrder) == 0 {
		cfg.KillSwitchConfig.CheckOrder = []string{"loss", "drawdown", "gain"}
	}

	// Cooldown config
	cfg.CooldownConfig.DecayWindowSecs = getEnvIntOrDefault("COOLDOWN_DECAY_WINDOW_SECS", defaultInt(cfg.CooldownConfig.DecayWindowSecs, 300))

	// Circuit breaker config
	cfg.CircuitConfig.FailureThreshold = getEnvIntOrDefault("CIRCUIT_FAILURE_THRESHOLD", defaultInt(cfg.CircuitConfig.FailureThreshold, 5))
	cfg.CircuitConfig.CooldownSecs = getEnvIntOrDefault("CIRCUIT_COOLDOWN_SECS", defaultInt(cfg.CircuitConfig.CooldownSecs, 60))
	cfg.CircuitConfig.MaxRetries = getEnvIntOrDefault("CIRCUIT_MAX_RETRIES", defaultInt(cfg.CircuitConfig.MaxRetries, 3))
	cfg.CircuitConfig.BackoffBaseMs = getEnvIntOrDefault("CIRCUIT_BACKOFF_BASE_MS", defaultInt(cfg.CircuitConfig.BackoffBaseMs, 500))

	// Platform config
	cfg.PlatformConfig.BaseURL = getEnvOrDefault("PLATFORM_BASE_URL", cfg.PlatformConfig.BaseURL)
	cfg.PlatformConfig.APIKey = getEnvOrDefault("PLATFORM_API_KEY", cfg.PlatformConfig.APIKey)
	cfg.PlatformConfig.SecretKey = getEnvOrDefault("PLATFORM_SECRET_KEY", cfg.PlatformConfig.SecretKey)
	cfg.PlatformConfig.PaperMode = getEnvOrDefault("PLATFORM_PAPER_MODE", "true") == "true"
	cfg.PlatformConfig.TimeoutSecs = getEnvIntOrDefault("PLATFORM_TIMEOUT_SECS", defaultInt(cfg.PlatformConfig.TimeoutSecs, 10))

	// Engine config
	cfg.EngineConfig.BaseURL = getEnvOrDefault("ENGINE_BASE_URL", cfg.EngineConfig.BaseURL)
	cfg.EngineConfig.APIKey = getEnvOrDefault("ENGINE_API_KEY", cfg.EngineConfig.APIKey)
	cfg.EngineConfig.Model = getEnvOrDefault("ENGINE_MODEL", defaultStr(cfg.EngineConfig.Model, "ensemble-v2"))
	cfg.EngineConfig.TimeoutSecs = getEnvIntOrDefault("ENGINE_TIMEOUT_SECS", defaultInt(cfg.EngineConfig.TimeoutSecs, 30))

	// Learning config
	cfg.LearningConfig.Enabled = getEnvOrDefault("LEARNING_ENABLED", "true") == "true"
	cfg.LearningConfig.BaseURL = getEnvOrDefault("LEARNING_BASE_URL", cfg.LearningConfig.BaseURL)
	cfg.LearningConfig.TimeoutSecs = getEnvIntOrDefault("LEARNING_TIMEOUT_SECS", defaultInt(cfg.LearningConfig.TimeoutSecs, 5))

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", "false") == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultStr(cfg.DatabaseConfig.User, "trading_agent"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultStr(cfg.DatabaseConfig.Database, "trading_agent"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultStr(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultStr(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultStr(cfg.VaultConfig.SecretPath, "trading-agent/credentials"))
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Server config
	cfg.ServerConfig.Enabled = getEnvOrDefault("SERVER_ENABLED", "true") == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", defaultStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", defaultStr(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", defaultInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", defaultInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultStr(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultStr(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"
}

// AnalysisInterval returns the cycle cadence as a duration.
func (a AgentConfig) AnalysisInterval() time.Duration {
	return time.Duration(a.AnalysisIntervalSecs) * time.Second
}

// ErrorBackoff returns the loop-level error backoff as a duration.
func (a AgentConfig) ErrorBackoff() time.Duration {
	return time.Duration(a.ErrorBackoffSecs) * time.Second
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func defaultFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// GenerateSampleConfig creates a sample configuration file.
func GenerateSampleConfig(filename string) error {
	config := Config{
		AgentConfig: AgentConfig{
			AssetUniverse:          []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
			AnalysisIntervalSecs:   60,
			MinConfidence:          0.65,
			MaxDailyTrades:         10,
			PerceptionTimeoutSecs:  20,
			ReasoningTimeoutSecs:   90,
			LearningTimeoutSecs:    10,
			WorkerCount:            4,
			MaxConsecutiveFailures: 5,
			ErrorBackoffSecs:       15,
			RecoveryMaxAttempts:    5,
			RecoveryBackoffSecs:    1,
		},
		RiskConfig: RiskConfig{
			RiskPerTradePct:      1.0,
			StopLossPct:          2.0,
			MaxConcentrationPct:  25.0,
			CorrelationThreshold: 0.7,
			CorrelationPenalty:   2.0,
			VaRLimitPct:          5.0,
			VaRConfidence:        0.95,
			MinReturnHistory:     20,
			MaxDrawdownPct:       10.0,
		},
		KillSwitchConfig: KillSwitchConfig{
			MaxGainPct:     25.0,
			MaxLossPct:     10.0,
			MaxDrawdownPct: 15.0,
			CheckOrder:     []string{"loss", "drawdown", "gain"},
		},
		CooldownConfig: CooldownConfig{DecayWindowSecs: 300},
		CircuitConfig: CircuitConfig{
			FailureThreshold: 5,
			CooldownSecs:     60,
			MaxRetries:       3,
			BackoffBaseMs:    500,
		},
		PlatformConfig: PlatformConfig{
			BaseURL:     "https://api.exchange.example",
			PaperMode:   true,
			TimeoutSecs: 10,
		},
		EngineConfig: EngineConfig{
			BaseURL:     "https://ensemble.example/v1",
			Model:       "ensemble-v2",
			TimeoutSecs: 30,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
