package bootstrap

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/ai"
	"docqa/internal/config"
	"docqa/internal/logger"
	"docqa/internal/vectordb"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("ENV_FILE", t.TempDir()+"/missing.env")
	t.Setenv("CONFIG_FILE", t.TempDir()+"/missing.toml")
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.VectorDB.Provider = vectordb.ProviderMemory
	return cfg
}

func TestNew(t *testing.T) {
	ctx := logger.ContextWithLogger(t.Context(), logger.NewLogger(logger.TestConfig()))

	t.Run("Should build both pipelines on the memory store", func(t *testing.T) {
		a, err := New(ctx, testConfig(t), Options{Ingest: true, Query: true})
		require.NoError(t, err)
		defer a.Close()

		assert.NotNil(t, a.Ingest)
		assert.NotNil(t, a.Query)
		assert.NotNil(t, a.Generator)
		assert.Equal(t, 384, a.Embedder.Dimension())
		assert.IsType(t, &vectordb.MemoryStore{}, a.Store)
		assert.Nil(t, a.MySQL)
		assert.Nil(t, a.QueryRecordWorker)
	})

	t.Run("Should build only ingestion when asked", func(t *testing.T) {
		a, err := New(ctx, testConfig(t), Options{Ingest: true})
		require.NoError(t, err)
		defer a.Close()

		assert.NotNil(t, a.Ingest)
		assert.Nil(t, a.Query)
		assert.Nil(t, a.Generator)
	})

	t.Run("Should connect redis when enabled", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = mr.Addr()

		a, err := New(ctx, cfg, Options{Query: true})
		require.NoError(t, err)
		require.NotNil(t, a.Redis)
		require.NoError(t, a.Close())
	})

	t.Run("Should fail on an unknown model provider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LLM.Provider = "bogus"
		_, err := New(ctx, cfg, Options{Query: true})
		require.ErrorIs(t, err, ai.ErrUnknownProvider)
	})

	t.Run("Should build nothing but metrics without pipelines", func(t *testing.T) {
		a, err := New(ctx, testConfig(t), Options{})
		require.NoError(t, err)
		assert.Nil(t, a.Store)
		assert.NotNil(t, a.Metrics)
		require.NoError(t, a.Close())
	})
}

func TestVectorStoreConfig(t *testing.T) {
	t.Run("Should map pinecone settings", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.VectorDB.Provider = vectordb.ProviderPinecone
		cfg.VectorDB.IndexName = "books"
		cfg.VectorDB.PineconeAPIKey = "pk"
		cfg.VectorDB.PineconeHost = "books-abc.svc.pinecone.io"

		out := VectorStoreConfig(cfg)
		assert.Equal(t, "books", out.Index)
		assert.Equal(t, "pk", out.APIKey)
		assert.Equal(t, "books-abc.svc.pinecone.io", out.Host)
		assert.Equal(t, cfg.Embedding.Dimension, out.Dimension)
		assert.Equal(t, "30s", out.Timeout.String())
	})

	t.Run("Should map connection strings per provider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.VectorDB.PostgresDSN = "postgres://localhost/docqa"
		cfg.VectorDB.RedisURL = "redis://localhost:6379/0"
		cfg.VectorDB.SQLitePath = "data/x.db"

		for provider, want := range map[string]string{
			vectordb.ProviderPGVector: "postgres://localhost/docqa",
			vectordb.ProviderRedis:    "redis://localhost:6379/0",
			vectordb.ProviderSQLite:   "data/x.db",
		} {
			cfg.VectorDB.Provider = provider
			assert.Equal(t, want, VectorStoreConfig(cfg).DSN, provider)
		}

		cfg.VectorDB.Provider = vectordb.ProviderQdrant
		assert.Equal(t, cfg.VectorDB.QdrantURL, VectorStoreConfig(cfg).URL)
	})
}
