// Package app assembles the confirmation service and its infrastructure from config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"order-agent/config"
	"order-agent/internal/broker"
	"order-agent/internal/integrations/gemini"
	"order-agent/internal/integrations/openai"
	"order-agent/internal/integrations/paramstore"
	"order-agent/internal/lock"
	"order-agent/internal/observability"
	"order-agent/internal/repository"
	"order-agent/internal/repository/memory"
	"order-agent/internal/repository/postgres"
	"order-agent/internal/usecase"
)

const lockPrefix = "order-agent:turn:"

// App holds the wired service plus everything that must be closed or probed.
type App struct {
	Service *usecase.ConfirmationService
	Metrics *observability.Metrics
	// Checks are readiness probes keyed by dependency name.
	Checks map[string]func(context.Context) error

	closers []func() error
	logger  *zap.Logger
}

// Build wires the service described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Metrics: observability.NewMetrics(),
		Checks:  map[string]func(context.Context) error{},
		logger:  logger,
	}

	aws := &awsLoader{}

	store, err := a.buildStore(ctx, cfg.Store, aws)
	if err != nil {
		return nil, a.fail(err)
	}
	if cfg.Store.SeedFile != "" {
		n, err := seedOrders(ctx, store, cfg.Store.SeedFile)
		if err != nil {
			return nil, a.fail(err)
		}
		logger.Info("seeded orders", zap.Int("count", n), zap.String("file", cfg.Store.SeedFile))
	}

	getter, err := a.buildParamGetter(ctx, cfg.LLM, aws)
	if err != nil {
		return nil, a.fail(err)
	}
	gen, err := buildGenerator(ctx, cfg.LLM, getter)
	if err != nil {
		return nil, a.fail(err)
	}

	opts := []usecase.Option{
		usecase.WithLogger(logger),
		usecase.WithMetrics(a.Metrics),
		usecase.WithIdleThreshold(cfg.Conversation.IdleThreshold),
		usecase.WithMaxTokens(cfg.LLM.MaxTokens),
		usecase.WithMaxMessageLength(cfg.Conversation.MaxMessageLength),
		usecase.WithDefaultLanguage(cfg.Conversation.DefaultLanguage),
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		a.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		locker, err := lock.NewRedis(rdb, lockPrefix, lock.WithTTL(cfg.Redis.LockTTL))
		if err != nil {
			return nil, a.fail(err)
		}
		opts = append(opts, usecase.WithLocker(locker))
		logger.Info("using redis turn lock", zap.String("addr", cfg.Redis.Addr))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, logger)
		if err != nil {
			return nil, a.fail(err)
		}
		a.closers = append(a.closers, producer.Close)
		opts = append(opts, usecase.WithPublisher(producer))
		logger.Info("publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.TopicOrder))
	}

	svc, err := usecase.NewConfirmationService(store, gen, opts...)
	if err != nil {
		return nil, a.fail(err)
	}
	a.Service = svc
	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) fail(err error) error {
	if cerr := a.Close(); cerr != nil {
		a.logger.Warn("cleanup after failed build", zap.Error(cerr))
	}
	return err
}

func (a *App) buildStore(ctx context.Context, cfg config.StoreConfig, aws *awsLoader) (usecase.Store, error) {
	switch cfg.Backend {
	case config.StoreDynamoDB:
		awsCfg, err := aws.load(ctx)
		if err != nil {
			return nil, err
		}
		return repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Table)
	case config.StorePostgres:
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		a.Checks["postgres"] = pg.Ping
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	case config.StoreMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("app: unknown store %q", cfg.Backend)
}

func (a *App) buildParamGetter(ctx context.Context, cfg config.LLMConfig, aws *awsLoader) (paramstore.Getter, error) {
	if cfg.APIKey != "" {
		token, err := json.Marshal(map[string]string{"token": cfg.APIKey})
		if err != nil {
			return nil, err
		}
		return paramstore.Static{tokenParameter(cfg): string(token)}, nil
	}
	awsCfg, err := aws.load(ctx)
	if err != nil {
		return nil, err
	}
	return paramstore.New(awsssm.NewFromConfig(awsCfg))
}

func tokenParameter(cfg config.LLMConfig) string {
	if cfg.Provider == config.ProviderOpenAI {
		return cfg.ParamPrefix + "/open-ai-token"
	}
	return cfg.ParamPrefix + "/gemini-token"
}

func buildGenerator(ctx context.Context, cfg config.LLMConfig, getter paramstore.Getter) (usecase.Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.Temperature != nil {
			opts = append(opts, openai.WithTemperature(*cfg.Temperature))
		}
		return openai.NewClient(getter, cfg.ParamPrefix, opts...)
	case config.ProviderGemini:
		opts := []gemini.Option{gemini.WithModel(cfg.Model)}
		if cfg.Temperature != nil {
			opts = append(opts, gemini.WithTemperature(float32(*cfg.Temperature)))
		}
		return gemini.New(ctx, getter, cfg.ParamPrefix, opts...)
	}
	return nil, fmt.Errorf("app: unknown llm provider %q", cfg.Provider)
}
