package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/content-agent/backend/internal/api/handlers"
	"github.com/content-agent/backend/internal/cache/redis"
	"github.com/content-agent/backend/internal/ingestion"
	"github.com/content-agent/backend/internal/kg/neo4j"
	"github.com/content-agent/backend/internal/lineage"
	"github.com/content-agent/backend/internal/llm"
	"github.com/content-agent/backend/internal/metrics"
	"github.com/content-agent/backend/internal/middleware/ratelimit"
	"github.com/content-agent/backend/internal/middleware/security"
	"github.com/content-agent/backend/internal/pipeline"
	"github.com/content-agent/backend/internal/search/web"
	"github.com/content-agent/backend/internal/session"
	"github.com/content-agent/backend/internal/stages"
	"github.com/content-agent/backend/internal/storage/docstore"
	"github.com/content-agent/backend/internal/storage/mongo"
	"github.com/content-agent/backend/internal/storage/sqlite"
	"github.com/content-agent/backend/internal/vector/zilliz"
	"github.com/content-agent/backend/pkg/config"
	appLogger "github.com/content-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting content agent API server",
		zap.String("environment", cfg.Server.Environment),
		zap.String("store", cfg.Store.Driver),
	)

	metrics.Init()

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to open document store", zap.Error(err))
	}
	defer store.Close(context.Background())

	readiness := map[string]handlers.Pinger{"store": store}

	var sessionCache session.Cache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, session cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			sessionCache = redisClient
			readiness["redis"] = redisClient
		}
	}

	var repoOpts []lineage.Option
	var graph handlers.GraphSource
	if cfg.Neo4j.Enabled {
		neo4jClient, err := neo4j.NewClient(
			cfg.Neo4j.URI,
			cfg.Neo4j.Username,
			cfg.Neo4j.Password,
			cfg.Neo4j.Database,
		)
		if err != nil {
			appLogger.Warn("Neo4j unavailable, lineage graph disabled", zap.Error(err))
		} else {
			defer neo4jClient.Close(context.Background())
			repoOpts = append(repoOpts, lineage.WithProjector(neo4jClient))
			graph = neo4jClient
		}
	}

	llmClient := llm.NewClient(llm.Config{
		APIKey:           cfg.LLM.APIKey,
		BaseURL:          cfg.LLM.BaseURL,
		Model:            cfg.LLM.Model,
		EmbeddingModel:   cfg.LLM.EmbeddingModel,
		Temperature:      cfg.LLM.Temperature,
		MaxTokens:        cfg.LLM.MaxTokens,
		EmbeddingTimeout: time.Duration(cfg.LLM.EmbeddingTimeoutSec) * time.Second,
	})

	var searcher stages.Searcher
	if cfg.Search.Enabled {
		searcher = web.NewClient(web.Config{
			SerpAPIKey: cfg.Search.SerpAPIKey,
			Timeout:    time.Duration(cfg.Search.TimeoutSec) * time.Second,
		})
	}

	var upserter pipeline.VectorUpserter
	if cfg.Zilliz.Enabled {
		zillizClient, err := zilliz.NewClient(ctx,
			cfg.Zilliz.Endpoint,
			cfg.Zilliz.APIKey,
			cfg.Zilliz.CollectionName,
			cfg.Zilliz.VectorDim,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Zilliz client", zap.Error(err))
		}
		defer zillizClient.Close()

		if err := zillizClient.CreateCollection(ctx); err != nil {
			appLogger.Fatal("Failed to create collection", zap.Error(err))
		}

		notion := ingestion.NewNotionSource(ingestion.NotionConfig{
			APIKey:  cfg.Notion.APIKey,
			BaseURL: cfg.Notion.BaseURL,
			Version: cfg.Notion.Version,
			Timeout: time.Duration(cfg.Notion.TimeoutSec) * time.Second,
		})
		chunker := ingestion.NewChunker(cfg.Ingestion.ChunkSize, cfg.Ingestion.OverlapSentences)
		upserter = ingestion.NewProcessor(notion, llmClient, zillizClient, chunker, cfg.LLM.EmbeddingCostPer1K)
	}

	repo := lineage.NewRepository(store, repoOpts...)
	sessions := session.NewTracker(store, sessionCache)

	orchestrator := pipeline.NewOrchestrator(
		stages.NewExecutor(cfg.StageTimeout(), cfg.Stages.Verbose),
		pipeline.Stages{
			Ideation:  stages.NewIdeationStage(llmClient),
			Research:  stages.NewResearchStage(llmClient, searcher, cfg.Search.MaxResults),
			Scripting: stages.NewScriptingStage(llmClient),
			Revision:  stages.NewRevisionStage(llmClient),
		},
		repo,
		upserter,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.IsDevelopment(),
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequests: cfg.RateLimit.GenerationPerMinute,
		Window:      time.Minute,
	})
	defer limiter.Stop()

	handlers.Routes{
		Pipeline:  handlers.NewPipelineHandler(orchestrator),
		Lineage:   handlers.NewLineageHandler(repo, graph),
		Sessions:  handlers.NewSessionHandler(sessions),
		WebSocket: handlers.NewWebSocketHandler(orchestrator),
		Health:    handlers.NewHealthHandler(readiness),
		Throttle:  limiter.Middleware(),
		Metrics:   metrics.MetricsHandler(),
	}.Register(app)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	switch cfg.Store.Driver {
	case "mongo":
		client, err := mongo.NewClient(ctx, mongo.Config{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			MaxPoolSize:    cfg.Mongo.MaxPoolSize,
			ConnectTimeout: time.Duration(cfg.Mongo.ConnectTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "sqlite":
		client, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "memory":
		appLogger.Warn("Using in-memory document store, data is lost on restart")
		return docstore.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unsupported store driver: %q", cfg.Store.Driver)
}
