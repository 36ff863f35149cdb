package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"order-agent/config"
	"order-agent/internal/integrations/paramstore"
)

func localConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Backend: config.StoreMemory},
		LLM: config.LLMConfig{
			Provider:    config.ProviderOpenAI,
			ParamPrefix: "/order-agent",
			MaxTokens:   256,
			APIKey:      "sk-local",
		},
		Conversation: config.ConversationConfig{
			IdleThreshold:    30 * time.Minute,
			DefaultLanguage:  "fr",
			MaxMessageLength: 1000,
		},
	}
}

func TestBuild_MemoryStore(t *testing.T) {
	a, err := Build(context.Background(), localConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, a.Service)
	require.NotNil(t, a.Metrics)
	require.Empty(t, a.Checks)
	require.NoError(t, a.Close())
}

func TestBuild_OptionalInfrastructure(t *testing.T) {
	cfg := localConfig()
	cfg.Redis.Addr = "localhost:6379"
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.TopicOrder = "order-events"

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Contains(t, a.Checks, "redis")
	require.Len(t, a.closers, 2)
	require.NoError(t, a.Close())
	require.Empty(t, a.closers)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(context.Background(), nil, nil)
	require.Error(t, err)

	cfg := localConfig()
	cfg.LLM.Provider = "llama"
	_, err = Build(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "unknown llm provider")

	cfg = localConfig()
	cfg.Store.Backend = "mongo"
	_, err = Build(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "unknown store")
}

func TestStaticTokenParameter(t *testing.T) {
	cfg := localConfig()
	a := &App{}
	getter, err := a.buildParamGetter(context.Background(), cfg.LLM, &awsLoader{})
	require.NoError(t, err)

	token, err := paramstore.Token(context.Background(), getter, "/order-agent/open-ai-token")
	require.NoError(t, err)
	require.Equal(t, "sk-local", token)

	cfg.LLM.Provider = config.ProviderGemini
	require.Equal(t, "/order-agent/gemini-token", tokenParameter(cfg.LLM))
}

func TestBuild_SeedsOrders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"o-1","customerName":"Alice","items":[{"name":"Table","quantity":2,"price":2000}]}
	]`), 0o600))

	cfg := localConfig()
	cfg.Store.SeedFile = path
	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)

	msg, err := a.Service.StartConversation(context.Background(), "o-1", "en")
	require.NoError(t, err)
	require.Contains(t, msg, "Alice")
	require.Contains(t, msg, "40.00")

	cfg.Store.SeedFile = filepath.Join(t.TempDir(), "missing.json")
	_, err = Build(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "read seed file")
}

func TestBuild_SeedRejectsOverflowingTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"o-1","customerName":"Alice","items":[{"name":"Yacht","quantity":4,"price":4611686018427387904}]}
	]`), 0o600))

	cfg := localConfig()
	cfg.Store.SeedFile = path
	_, err := Build(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "seed order o-1")
}
