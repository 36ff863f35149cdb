// Package config reads process configuration from the environment, optionally
// seeded from a local .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Server       ServerConfig
	Store        StoreConfig
	LLM          LLMConfig
	Conversation ConversationConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Tracing      TracingConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type StoreConfig struct {
	Backend     string
	Table       string
	DatabaseURL string
	// SeedFile is a JSON array of orders loaded into the store at startup.
	SeedFile string
}

type LLMConfig struct {
	Provider    string
	Model       string
	MaxTokens   int
	ParamPrefix string
	// Temperature is left to the provider default when nil.
	Temperature *float64
	// APIKey bypasses the parameter store when set.
	APIKey string
}

type ConversationConfig struct {
	IdleThreshold    time.Duration
	DefaultLanguage  string
	MaxMessageLength int
}

// RedisConfig enables the distributed turn lock when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// LockTTL is the expiry of a turn lock whose holder stopped renewing it.
	LockTTL time.Duration
}

// KafkaConfig enables order event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string
	TopicOrder string
}

type TracingConfig struct {
	Endpoint string
	Stdout   bool
}

// Load reads .env when present, then the environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(getEnv("STORE", StoreDynamoDB)),
			Table:       getEnv("STATE_TABLE", ""),
			DatabaseURL: getEnv("DATABASE_URL", ""),
			SeedFile:    getEnv("SEED_ORDERS_FILE", ""),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini)),
			Model:       getEnv("LLM_MODEL", ""),
			MaxTokens:   envInt("LLM_MAX_TOKENS", 256),
			ParamPrefix: getEnv("PARAM_PREFIX", ""),
			Temperature: envFloat("LLM_TEMPERATURE"),
			APIKey:      getEnv("LLM_API_KEY", ""),
		},
		Conversation: ConversationConfig{
			IdleThreshold:    time.Duration(envInt("IDLE_THRESHOLD_MINUTES", 30)) * time.Minute,
			DefaultLanguage:  strings.ToLower(getEnv("DEFAULT_LANGUAGE", "fr")),
			MaxMessageLength: envInt("MAX_MESSAGE_LENGTH", 1000),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
			LockTTL:  time.Duration(envInt("REDIS_LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(getEnv("KAFKA_BROKERS", "")),
			TopicOrder: getEnv("KAFKA_TOPIC_ORDER_EVENTS", "order-events"),
		},
		Tracing: TracingConfig{
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Stdout:   envBool("OTEL_STDOUT"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case StoreDynamoDB:
		if c.Store.Table == "" {
			errs = append(errs, errors.New("STATE_TABLE is required for the dynamodb store"))
		}
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE %q", c.Store.Backend))
	}
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider))
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("LLM_TEMPERATURE %v out of range [0,2]", *t))
	}
	if c.LLM.ParamPrefix == "" {
		errs = append(errs, errors.New("PARAM_PREFIX is required"))
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL < time.Second {
		errs = append(errs, fmt.Errorf("REDIS_LOCK_TTL_SECONDS must be at least 1, got %v", c.Redis.LockTTL))
	}
	switch c.Conversation.DefaultLanguage {
	case "en", "fr":
	default:
		errs = append(errs, fmt.Errorf("unsupported DEFAULT_LANGUAGE %q", c.Conversation.DefaultLanguage))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envFloat(key string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return nil
	}
	return &f
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
