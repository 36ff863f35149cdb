package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"order-agent/config"
	"order-agent/handler"
	"order-agent/internal/app"
	"order-agent/internal/observability"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zap.NewExample()
		bootLogger.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Server.Env)
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: "order-agent-lambda",
		Environment: cfg.Server.Env,
		Endpoint:    cfg.Tracing.Endpoint,
		Stdout:      cfg.Tracing.Stdout,
	}, logger)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// ---- Clients ----
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build service", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	// ---- Handler ----
	h, err := handler.NewHandler(a.Service, handler.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to create handler", zap.Error(err))
	}

	lambda.Start(h.Handle)
}
