package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/wormwood/internal/api"
	"github.com/nidhogg/wormwood/internal/config"
	"github.com/nidhogg/wormwood/internal/embedding"
	"github.com/nidhogg/wormwood/internal/memory"
	"github.com/nidhogg/wormwood/internal/similarity"
	"github.com/nidhogg/wormwood/internal/storage"
	"github.com/nidhogg/wormwood/internal/tracker"
	"github.com/nidhogg/wormwood/internal/vectorstore"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Wormwood memory service...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/wormwood.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	ctx := context.Background()

	// Embedding provider and vector scorer. Either can be absent; retrieval
	// then falls back to recency ordering.
	var scorer similarity.Scorer
	embedder, err := embedding.New(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		logger.Fatal("invalid embedding config", zap.Error(err))
	}
	var qdrantClient *vectorstore.Client
	if embedder != nil {
		qc, qErr := vectorstore.NewClient(vectorstore.QdrantConfig{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if qErr != nil {
			logger.Warn("Qdrant unavailable, falling back to recency retrieval", zap.Error(qErr))
		} else {
			qdrantClient = qc
			vs := similarity.NewVectorScorer(embedder, qc, logger)
			if iErr := vs.InitCollections(ctx, storage.CollectionNames()); iErr != nil {
				logger.Warn("vector collection init failed, falling back to recency retrieval", zap.Error(iErr))
			} else {
				scorer = vs
				logger.Info("Semantic scoring enabled", zap.String("provider", cfg.Embedding.Provider))
			}
		}
	}

	// PostgreSQL is the system of record; refuse to start without it.
	engine, err := storage.Open(ctx, cfg.Database.Postgres.DSN, scorer, logger)
	if err != nil {
		logger.Fatal("PostgreSQL unavailable", zap.Error(err))
	}
	if err := engine.Migrate(ctx, "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	if !engine.EnsureIndexes(ctx) {
		logger.Fatal("critical index creation failed")
	}

	// Optional Neo4j mirror for provenance traversals.
	var graph *storage.GraphStore
	if cfg.Database.Neo4j.URI != "" {
		g, gErr := storage.NewGraphStore(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if gErr == nil {
			gErr = g.Ping(ctx)
		}
		if gErr != nil {
			logger.Warn("Neo4j unavailable, support links stay relational only", zap.Error(gErr))
		} else {
			graph = g
			engine.AttachGraph(g)
			logger.Info("Neo4j graph mirror attached")
		}
	}

	// Consolidation tracker: shared via Redis when configured, in-process
	// otherwise.
	var consolidationTracker memory.ConsolidationTracker
	var redisTracker *tracker.Redis
	if cfg.Database.Redis.URL != "" {
		rt, rErr := tracker.NewRedis(cfg.Database.Redis.URL, logger)
		if rErr != nil {
			logger.Warn("Redis unavailable, using in-process consolidation tracker", zap.Error(rErr))
			consolidationTracker = tracker.NewMemory()
		} else {
			redisTracker = rt
			consolidationTracker = rt
			logger.Info("Redis consolidation tracker connected")
		}
	} else {
		consolidationTracker = tracker.NewMemory()
	}

	interval := time.Duration(cfg.Consolidation.IntervalHours) * time.Hour
	manager := memory.NewManager(engine, consolidationTracker, memory.Options{
		ConsolidationEnabled:  cfg.Consolidation.Enabled,
		ConsolidationInterval: interval,
	}, logger)

	// Build HTTP handler
	handler := api.NewHandler(manager, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Wormwood listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Wormwood...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	if graph != nil {
		graph.Close(shutdownCtx)
	}
	if redisTracker != nil {
		redisTracker.Close()
	}
	if qdrantClient != nil {
		qdrantClient.Close()
	}
	engine.Close()
}
