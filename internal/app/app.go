// Package app provides application initialization and dependency wiring.
//
// Setup builds the full service graph: configuration, tracing, database,
// Genkit, the answer pipeline, content ingestion and the HTTP API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/secondbrain/api"
	"github.com/koopa0/secondbrain/db"
	"github.com/koopa0/secondbrain/internal/answer"
	"github.com/koopa0/secondbrain/internal/auth"
	"github.com/koopa0/secondbrain/internal/config"
	"github.com/koopa0/secondbrain/internal/database"
	"github.com/koopa0/secondbrain/internal/embedding"
	"github.com/koopa0/secondbrain/internal/fetch"
	"github.com/koopa0/secondbrain/internal/ingest"
	"github.com/koopa0/secondbrain/internal/llm"
	"github.com/koopa0/secondbrain/internal/observability"
	"github.com/koopa0/secondbrain/internal/querycache"
	"github.com/koopa0/secondbrain/internal/store"
	"github.com/koopa0/secondbrain/internal/token"
	"github.com/koopa0/secondbrain/internal/vecstore"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit    *genkit.Genkit
	DBPool    *pgxpool.Pool
	Store     *store.Store
	VecStore  *vecstore.Store
	Embedding *embedding.Service
	Ingestor  *ingest.Ingestor
	Answer    *answer.Service
	Auth      *auth.Manager
	API       *api.Server

	cache       *answer.ResponseCache
	redisClient *redis.Client
	dbCleanup   func()
	otelCleanup func(context.Context) error
}

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if cfg.Tracing.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			Environment: cfg.Tracing.Environment,
			ServiceName: cfg.Tracing.ServiceName,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.otelCleanup = shutdown
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, dbCleanup, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, err
	}
	a.DBPool = pool
	a.dbCleanup = dbCleanup

	// Genkit reads GEMINI_API_KEY from the environment.
	g := genkit.Init(ctx,
		genkit.WithPlugins(&googlegenai.GoogleAI{}),
		genkit.WithDefaultModel("googleai/"+cfg.ModelName),
	)
	a.Genkit = g

	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	a.Embedding = embedding.New(embedder, logger)

	codec, err := token.NewTiktoken()
	if err != nil {
		return nil, fmt.Errorf("loading token encoding: %w", err)
	}

	a.Store = store.New(pool, logger)
	a.VecStore = vecstore.New(vecstore.NewQueries(pool), logger)

	a.cache = answer.NewResponseCache(answer.CacheDuration, logger)
	a.cache.StartSweeper()

	answerSvc, err := answer.New(answer.Config{
		Embedder:  a.Embedding,
		Searcher:  a.VecStore,
		Generator: llm.New(g, "googleai/"+cfg.ModelName, logger),
		Cache:     a.cache,
		Quota:     answer.NewQuotaManager(cfg.DailyTokenLimit),
		Pacer:     answer.NewPacer(time.Duration(cfg.RequestIntervalMS) * time.Millisecond),
		Codec:     codec,
		TopK:      int32(cfg.SearchTopK),
		Logger:    logger,

		MaxTokens:        cfg.MaxTokens,
		Temperature:      cfg.Temperature,
		MaxContextTokens: cfg.MaxContextTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("building answer pipeline: %w", err)
	}
	a.Answer = answerSvc

	fetcher := fetch.New(fetch.Config{TwitterBearerToken: cfg.TwitterBearerToken}, logger)
	a.Ingestor = ingest.New(a.Store, fetcher, a.Embedding, a.VecStore, logger)

	// Serve mode validates the HMAC secret up front; offline commands
	// (reindex) run without the API layer.
	if cfg.HMACSecret == "" {
		return a, nil
	}

	a.Auth, err = auth.NewManager(cfg.HMACSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("creating auth manager: %w", err)
	}

	var qc *querycache.Cache
	if cfg.RedisAddr != "" {
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		qc = querycache.New(a.redisClient, querycache.DefaultTTL, logger)
	}

	serverCfg := api.ServerConfig{
		Logger:     logger,
		Auth:       a.Auth,
		Users:      a.Store,
		Shares:     a.Store,
		Contents:   a.Ingestor,
		Answers:    a.Answer,
		TrustProxy: cfg.TrustProxy,
		RateBurst:  cfg.RateBurst,
	}
	if qc != nil {
		serverCfg.QueryCache = qc
	}
	a.API, err = api.NewServer(serverCfg)
	if err != nil {
		return nil, fmt.Errorf("building API server: %w", err)
	}

	return a, nil
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	if a.cache != nil {
		a.cache.Stop()
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Logger.Warn("closing redis client", "error", err)
		}
	}

	if a.dbCleanup != nil {
		a.dbCleanup()
	}

	if a.otelCleanup != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelCleanup(ctx); err != nil {
			a.Logger.Warn("flushing traces", "error", err)
		}
	}

	return nil
}
