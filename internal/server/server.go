// Package server exposes the channel webhooks, health and metrics over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"medibot/internal/channel"
	"medibot/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// Config wires the HTTP surface. Nil channels leave their routes unmounted.
type Config struct {
	Port     int
	Twilio   *channel.Twilio
	WhatsApp *channel.WhatsApp
	Webhook  *channel.Webhook
	Checks   map[string]Check
	Logger   *slog.Logger
}

// NewEngine builds the gin engine with every configured route.
func NewEngine(cfg Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	if cfg.Twilio != nil {
		router.POST("/webhook/twilio", gin.WrapF(cfg.Twilio.HandleIncoming))
	}
	if cfg.WhatsApp != nil {
		router.GET("/webhook/whatsapp", gin.WrapF(cfg.WhatsApp.HandleVerification))
		router.POST("/webhook/whatsapp", gin.WrapF(cfg.WhatsApp.HandleIncoming))
	}
	if cfg.Webhook != nil {
		router.POST("/api/messages", gin.WrapF(cfg.Webhook.HandleMessage))
	}

	router.GET("/healthz", handleHealth(cfg.Checks))
	router.GET("/metrics", gin.WrapF(metrics.Collector.Handler()))
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Port <= 0 {
		cfg.Port = 8080
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewEngine(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		cfg.Logger.Info("http server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		cfg.Logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

func handleHealth(checks map[string]Check) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{
			"status": state,
			"uptime": metrics.Collector.Uptime().Round(time.Second).String(),
			"checks": results,
		})
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
