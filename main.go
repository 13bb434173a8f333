package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"ai-trading-agent/config"
	"ai-trading-agent/internal/agent"
	"ai-trading-agent/internal/api"
	"ai-trading-agent/internal/database"
	"ai-trading-agent/internal/engine"
	"ai-trading-agent/internal/events"
	"ai-trading-agent/internal/learning"
	"ai-trading-agent/internal/logging"
	"ai-trading-agent/internal/platform"
	"ai-trading-agent/internal/vault"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "gen-config" {
		if err := config.GenerateSampleConfig("config.json"); err != nil {
			log.Fatalf("Failed to generate config: %v", err)
		}
		log.Println("Wrote config.json")
		return
	}

	// Configuration fails fast: invalid thresholds or an empty asset
	// universe never reach the loop.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize event bus
	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Every log line of this run carries the same trace ID
	ctx, runLogger := logging.WithTraceContext(ctx)
	runLogger.Info("Run trace started")

	// Vault for API credentials (optional)
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal("Failed to initialize vault client", "error", err)
	}
	if vaultClient.IsEnabled() {
		if err := vaultClient.Health(ctx); err != nil {
			logger.Warn("Vault health check failed", "error", err)
		}
	}

	// Trading platform adapter
	platformClient, err := platform.NewClient(ctx, cfg.PlatformConfig, vaultClient, 10000)
	if err != nil {
		logger.Fatal("Failed to initialize platform client", "error", err)
	}

	// Decision engine client
	engineClient := engine.NewClient(cfg.EngineConfig)

	// Postgres journal (optional)
	var journal *database.Journal
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(cfg.DatabaseConfig)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to run migrations", "error", err)
		}
		journal = database.NewJournal(db, zlog)
		logger.Info("Decision journal enabled")
	}

	// Redis execution cache (optional)
	var execCache *database.ExecutionCache
	if cfg.RedisConfig.Enabled {
		execCache, err = database.NewExecutionCache(cfg.RedisConfig, zlog)
		if err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		defer execCache.Close()
		logger.Info("Execution cache enabled", "address", cfg.RedisConfig.Address)
	}

	// Learning collaborator: external service, journal, or both
	var recorders learning.MultiRecorder
	if cfg.LearningConfig.Enabled {
		recorders = append(recorders, learning.NewHTTPRecorder(cfg.LearningConfig))
	}
	if journal != nil {
		recorders = append(recorders, journal)
	}
	var recorder learning.Recorder = recorders
	if len(recorders) == 0 {
		recorder = learning.NoopRecorder{}
	}

	// The agent itself
	tradingAgent := agent.New(cfg, agent.Deps{
		Platform: platformClient,
		Engine:   engineClient,
		Recorder: recorder,
		Journal:  journal,
		Cache:    execCache,
		Bus:      eventBus,
		Logger:   logger,
	})

	// Control API
	if cfg.ServerConfig.Enabled {
		server := api.NewServer(cfg.ServerConfig, tradingAgent, journal, eventBus)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("API server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("API server shutdown failed", "error", err)
			}
		}()
	}

	// OS signals stop the agent cleanly
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Signal received, stopping", "signal", sig.String())
		tradingAgent.Stop()
		cancel()
	}()

	err = tradingAgent.Run(ctx)
	if errors.Is(err, agent.ErrKillSwitch) {
		// A safety halt must be visible to supervisors, not exit 0
		logger.Error("Run halted by kill-switch")
		os.Exit(1)
	}
	if err != nil {
		logger.Fatal("Run failed", "error", err)
	}
}
