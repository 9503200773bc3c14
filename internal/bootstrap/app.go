package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docqa/internal/ai"
	"docqa/internal/app"
	"docqa/internal/cache"
	"docqa/internal/chunk"
	"docqa/internal/config"
	"docqa/internal/document"
	"docqa/internal/logger"
	"docqa/internal/metrics"
	mysqlClient "docqa/internal/platform/mysql"
	rabbitmqClient "docqa/internal/platform/rabbitmq"
	redisClient "docqa/internal/platform/redis"
	"docqa/internal/repository"
	"docqa/internal/vectordb"
	"docqa/internal/worker"
)

// Options selects which parts of the application to build.
type Options struct {
	Ingest bool
	Query  bool
	// Worker starts the query history consumer when mysql and rabbitmq are enabled.
	Worker bool
}

type App struct {
	Config  *config.Config
	Logger  logger.Logger
	Metrics *metrics.Metrics

	Store     vectordb.Store
	Embedder  *ai.Embedder
	Generator *ai.Generator
	Ingest    *app.IngestService
	Query     *app.QueryService

	MySQL             *gorm.DB
	Redis             *redis.Client
	MQConn            *amqp.Connection
	QueryRecordWorker *worker.QueryRecordWorker
	QueryRecords      *repository.QueryRecordRepository
	IngestRuns        *repository.IngestRunRepository

	StartedAt time.Time
}

// New builds the components opts asks for. On error everything already
// opened is closed again.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	log := logger.FromContext(ctx)
	a := &App{
		Config:    cfg,
		Logger:    log,
		Metrics:   metrics.New(),
		StartedAt: time.Now(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := a.connectPlatform(ctx, opts); err != nil {
		return nil, err
	}
	if !opts.Ingest && !opts.Query {
		return a, nil
	}

	a.Embedder, err = newEmbedder(cfg, a.Redis)
	if err != nil {
		return nil, err
	}
	a.Store, err = vectordb.New(ctx, VectorStoreConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open vector store failed: %w", err)
	}
	log.Debug("vector store ready", "provider", cfg.VectorDB.Provider, "index", cfg.VectorDB.IndexName)

	if opts.Ingest {
		if err := a.buildIngest(); err != nil {
			return nil, err
		}
	}
	if opts.Query {
		if err := a.buildQuery(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) connectPlatform(ctx context.Context, opts Options) error {
	cfg := a.Config
	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = client
	}
	if cfg.MySQL.Enabled {
		db, err := mysqlClient.New(ctx, cfg.MySQLDSN())
		if err != nil {
			return err
		}
		a.MySQL = db
		if err := mysqlClient.Migrate(ctx, db); err != nil {
			return err
		}
		a.IngestRuns = repository.NewIngestRunRepository(db)
		a.QueryRecords = repository.NewQueryRecordRepository(db)
	}
	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = conn
	}
	if opts.Worker && a.MQConn != nil && a.QueryRecords != nil {
		a.QueryRecordWorker = worker.NewQueryRecordWorker(a.MQConn, a.QueryRecords, cfg.RabbitMQ.QueryRecordQueue, a.Logger)
		if err := a.QueryRecordWorker.Start(ctx); err != nil {
			return fmt.Errorf("start query record worker failed: %w", err)
		}
	}
	return nil
}

func newEmbedder(cfg *config.Config, redisCli *redis.Client) (*ai.Embedder, error) {
	client, err := ai.NewEmbeddingClient(ai.ProviderConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	}, nil)
	if err != nil {
		return nil, err
	}
	opts := ai.EmbedderOptions{
		Model:         cfg.Embedding.Model,
		Dimension:     cfg.Embedding.Dimension,
		StripNewLines: cfg.Embedding.StripNewLines,
		CacheSize:     cfg.Embedding.CacheSize,
		CacheTTL:      time.Duration(cfg.Embedding.CacheTTLSeconds) * time.Second,
	}
	if redisCli != nil {
		opts.Shared = cache.NewEmbeddingCache(redisCli, opts.CacheTTL)
	}
	return ai.NewEmbedder(client, opts)
}

// VectorStoreConfig maps the vectordb section onto the store settings of the
// selected provider.
func VectorStoreConfig(cfg *config.Config) *vectordb.Config {
	v := cfg.VectorDB
	out := &vectordb.Config{
		Provider:  v.Provider,
		Index:     v.IndexName,
		Namespace: v.Namespace,
		Metric:    v.Metric,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   time.Duration(v.TimeoutSeconds) * time.Second,
	}
	switch v.Provider {
	case vectordb.ProviderPinecone:
		out.APIKey = v.PineconeAPIKey
		out.Host = v.PineconeHost
		out.ControlURL = v.PineconeControlURL
		out.APIVersion = v.PineconeAPIVersion
	case vectordb.ProviderQdrant:
		out.URL = v.QdrantURL
		out.APIKey = v.QdrantAPIKey
	case vectordb.ProviderPGVector:
		out.DSN = v.PostgresDSN
	case vectordb.ProviderRedis:
		out.DSN = v.RedisURL
	case vectordb.ProviderSQLite:
		out.DSN = v.SQLitePath
	}
	return out
}

func (a *App) buildIngest() error {
	cfg := a.Config
	splitter, err := chunk.NewSplitter(chunk.Settings{
		Size:          cfg.Ingest.ChunkSize,
		Overlap:       cfg.Ingest.ChunkOverlap,
		LengthUnit:    cfg.Ingest.LengthUnit,
		TokenEncoding: cfg.Ingest.TokenEncoding,
	})
	if err != nil {
		return err
	}
	var runs app.IngestRunRecorder
	if a.IngestRuns != nil {
		runs = a.IngestRuns
	}
	a.Ingest = app.NewIngestService(
		document.NewLoader(cfg.Ingest.MaxBytes),
		splitter,
		a.Embedder,
		a.Store,
		app.IngestOptions{
			Index:           cfg.VectorDB.IndexName,
			Namespace:       cfg.VectorDB.Namespace,
			ReplaceExisting: cfg.Ingest.ReplaceExisting,
		},
		runs,
		a.Metrics,
	)
	return nil
}

func (a *App) buildQuery() error {
	cfg := a.Config
	model, err := ai.NewModel(ai.ProviderConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
	}, nil)
	if err != nil {
		return err
	}
	a.Generator, err = ai.NewGenerator(model, ai.Decoding{
		MaxNewTokens: cfg.LLM.MaxNewTokens,
		Temperature:  cfg.LLM.Temperature,
		DoSample:     cfg.LLM.DoSample,
		Seed:         cfg.LLM.Seed,
	})
	if err != nil {
		return err
	}
	prompt, err := app.NewPromptTemplate(cfg.Query.PromptTemplate)
	if err != nil {
		return err
	}
	var publisher app.QueryRecordPublisher
	if a.MQConn != nil {
		publisher = rabbitmqClient.NewQueryRecordPublisher(a.MQConn, cfg.RabbitMQ.QueryRecordQueue)
	}
	a.Query = app.NewQueryService(
		a.Embedder,
		a.Store,
		a.Generator,
		prompt,
		app.QueryOptions{Index: cfg.VectorDB.IndexName, TopK: cfg.Query.TopK, DefaultQuestion: cfg.Query.Question},
		publisher,
		a.Metrics,
	)
	return nil
}

// Close releases everything New opened, consumers before connections.
func (a *App) Close() error {
	var errs []error
	if a.QueryRecordWorker != nil {
		a.QueryRecordWorker.Close()
	}
	if a.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.Store.Close(ctx))
		cancel()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		errs = append(errs, a.MQConn.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
