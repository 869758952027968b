// Package api exposes the REST and WebSocket surface of the trading
// platform: decision history, training status, adapter registry lookups
// and a live decision stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tradecrew/tradecrew/internal/models"
	"github.com/tradecrew/tradecrew/internal/training"
)

// DecisionReader is the read side of the decision log used by the API
type DecisionReader interface {
	ListEligible(ctx context.Context) ([]models.DecisionLogRecord, error)
	CountOutcomeReady(ctx context.Context) (int, error)
}

// Server represents the REST API server
type Server struct {
	router   *gin.Engine
	store    DecisionReader
	trainer  *training.TrainerAgent
	registry *training.AdapterRegistry
	hub      *Hub
	mode     string
	version  string
	addr     string
	server   *http.Server
}

// Config contains server configuration
type Config struct {
	Host     string
	Port     int
	Mode     string
	Version  string
	Store    DecisionReader
	Trainer  *training.TrainerAgent
	Registry *training.AdapterRegistry
}

// NewServer creates a new API server
func NewServer(config Config) *Server {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	server := &Server{
		router:   router,
		store:    config.Store,
		trainer:  config.Trainer,
		registry: config.Registry,
		hub:      NewHub(),
		mode:     config.Mode,
		version:  config.Version,
		addr:     addr,
	}

	server.setupRoutes()
	go server.hub.Run()

	return server
}

// Hub returns the WebSocket hub for broadcasting decision events
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}
