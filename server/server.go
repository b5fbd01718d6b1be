package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"salesrep/config"
	"salesrep/logging"
	"salesrep/metrics"
)

// Config represents server configuration
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// LogoDir is searched for the branding logo.
	LogoDir string
	// UploadDir holds customer uploads, one subdirectory per session.
	UploadDir string
	// MaxSessions bounds the in-memory sessions; the least recently used is closed first.
	MaxSessions int
	// SessionTTL closes sessions idle for longer than this.
	SessionTTL time.Duration
}

// DefaultConfig returns default server configuration. Answers wait on the
// model and may upload documents on a cold cache, so writes get a long timeout.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:         addr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
		LogoDir:      ".",
		UploadDir:    "uploads",
		MaxSessions:  1000,
		SessionTTL:   30 * time.Minute,
	}
}

// NewRouter creates the gin router with common middleware and all routes.
func NewRouter(h *Handler, logger logging.Logger, m *metrics.Metrics) *gin.Engine {
	if config.GetEnv("GIN_MODE", "debug") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))
	if m != nil {
		router.Use(m.Middleware())
		router.GET("/metrics", m.Handler())
	}

	router.GET("/health", h.Health)
	router.GET("/logo", h.Logo)

	api := router.Group("/api")
	api.POST("/chat", h.Chat)
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:id/turns", h.Turns)
	api.POST("/sessions/:id/documents", h.UploadDocument)
	api.DELETE("/sessions/:id", h.CloseSession)
	api.GET("/assets", h.Asset)

	return router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, cfg Config, router http.Handler, logger logging.Logger) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Addr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
