package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"order-agent/config"
	"order-agent/internal/api"
	"order-agent/internal/app"
	"order-agent/internal/observability"
)

const serviceName = "order-agent"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Server.Env)
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("config loaded", zap.String("env", cfg.Server.Env), zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Backend), zap.String("llm", cfg.LLM.Provider))

	ctx := context.Background()
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: serviceName,
		Environment: cfg.Server.Env,
		Endpoint:    cfg.Tracing.Endpoint,
		Stdout:      cfg.Tracing.Stdout,
	}, logger)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build service", zap.Error(err))
	}

	checks := map[string]api.ReadinessCheck{}
	for name, check := range a.Checks {
		checks[name] = check
	}
	server, err := api.NewServer(a.Service, a.Metrics, logger, checks)
	if err != nil {
		logger.Fatal("failed to create api server", zap.Error(err))
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           server.Router(serviceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := a.Close(); err != nil {
		logger.Error("closing dependencies", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("flushing traces", zap.Error(err))
	}
	logger.Info("server exited")
}
