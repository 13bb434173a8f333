package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"ai-trading-agent/config"
	"ai-trading-agent/internal/agent"
	"ai-trading-agent/internal/database"
	"ai-trading-agent/internal/events"
	"ai-trading-agent/internal/logging"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// AgentAPI is what the control surface needs from the running agent.
type AgentAPI interface {
	Status() agent.Status
	Stop()
	Pause(reason string)
	Resume()
	UpdateUniverse(assets []string) error
	KillSwitchStats() map[string]interface{}
	BreakerStats() []map[string]interface{}
}

// Server exposes the agent's control surface over HTTP.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	agent       AgentAPI
	journal     *database.Journal
	eventBus    *events.EventBus
	hub         *WSHub
	config      config.ServerConfig
	rateLimiter *RateLimiter
	logger      *logging.Logger
}

// NewServer creates the API server and wires the event bus into the
// WebSocket hub. journal may be nil when the database is disabled.
func NewServer(cfg config.ServerConfig, agentAPI AgentAPI, journal *database.Journal, eventBus *events.EventBus) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		agent:       agentAPI,
		journal:     journal,
		eventBus:    eventBus,
		hub:         NewWSHub(),
		config:      cfg,
		rateLimiter: NewRateLimiter(120, time.Minute),
		logger:      logging.Default().WithComponent("api"),
	}

	server.setupRoutes()

	// Forward every bus event to connected WebSocket clients
	go server.hub.Run()
	eventBus.SubscribeAll(server.hub.BroadcastEvent)

	return server
}

// rateLimitMiddleware limits mutating requests by endpoint
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !s.rateLimiter.Allow(path) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	{
		api.GET("/status", s.handleStatus)
		api.POST("/pause", s.handlePause)
		api.POST("/resume", s.handleResume)
		api.POST("/stop", s.handleStop)
		api.GET("/decisions", s.handleDecisions)
		api.GET("/killswitch", s.handleKillSwitch)
		api.GET("/breakers", s.handleBreakers)
		api.PUT("/universe", s.handleUpdateUniverse)
	}
}

// Start begins serving. Blocks until the server exits.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	s.logger.Info("Control API listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
