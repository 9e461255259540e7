package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omnidex-search/omnidex/internal/analytics"
	"github.com/omnidex-search/omnidex/internal/cache"
	"github.com/omnidex-search/omnidex/internal/embed"
	"github.com/omnidex-search/omnidex/internal/feature"
	"github.com/omnidex-search/omnidex/internal/fusion"
	"github.com/omnidex-search/omnidex/internal/index"
	"github.com/omnidex-search/omnidex/internal/pipeline"
	"github.com/omnidex-search/omnidex/internal/server"
	"github.com/omnidex-search/omnidex/pkg/config"
	"github.com/omnidex-search/omnidex/pkg/health"
	"github.com/omnidex-search/omnidex/pkg/kafka"
	"github.com/omnidex-search/omnidex/pkg/logger"
	"github.com/omnidex-search/omnidex/pkg/metrics"
	"github.com/omnidex-search/omnidex/pkg/middleware"
	"github.com/omnidex-search/omnidex/pkg/postgres"
	pkgredis "github.com/omnidex-search/omnidex/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "index_root", cfg.Index.Root)

	m := metrics.New()
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	epochs, err := index.NewManager(cfg.Index.Root, m)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	slog.Info("index opened", "epoch", epochs.CurrentEpoch())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Epoch reloads arrive over Kafka when brokers are configured; the
	// pointer-file poll below covers single-node setups without a broker.
	if len(cfg.Kafka.Brokers) > 0 {
		epochConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.EpochPublished,
			func(ctx context.Context, key, value []byte) error {
				event, err := kafka.DecodeJSON[analytics.EpochEvent](value)
				if err != nil {
					slog.Error("bad epoch event", "error", err)
					return nil
				}
				slog.Info("epoch published", "epoch", event.Epoch, "doc_count", event.DocCount)
				if err := epochs.Reload(); err != nil {
					slog.Error("epoch reload failed", "error", err)
				}
				return nil
			})
		go func() {
			if err := epochConsumer.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("epoch consumer error", "error", err)
			}
		}()
	}
	go epochs.WatchCurrent(ctx, cfg.Index.ReloadInterval)

	var features *feature.Store
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.FeatureStore)
	if err != nil {
		slog.Warn("feature store unavailable, serving partial rankings", "error", err)
	} else {
		defer redisClient.Close()
		features = feature.NewStore(redisClient, m)
		slog.Info("feature store connected", "addr", cfg.FeatureStore.Addr)
	}

	var embedder *embed.Client
	if cfg.Embedding.URL != "" {
		embedder = embed.NewClient(cfg.Embedding, m)
		slog.Info("embedding service configured", "url", cfg.Embedding.URL, "timeout", cfg.Embedding.Timeout)
	} else {
		slog.Warn("embedding service not configured, lexical ranking only")
	}

	caches, err := cache.NewManager(cfg.Cache, m)
	if err != nil {
		slog.Error("failed to create caches", "error", err)
		os.Exit(1)
	}
	defer caches.Close()

	weights, err := fusion.LoadWeights(cfg.Index.WeightsPath)
	if err != nil {
		slog.Error("failed to load ranking weights", "path", cfg.Index.WeightsPath, "error", err)
		os.Exit(1)
	}
	slog.Info("ranking weights loaded", "version", weights.Version())

	pipe := pipeline.New(cfg, pipeline.Deps{
		Epochs:   epochs,
		Features: features,
		Embedder: embedder,
		Fuser:    fusion.NewFuser(weights),
		Caches:   caches,
		Metrics:  m,
	})

	var collector *analytics.Collector
	var analyticsH *analytics.Handler
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 100, 5*time.Second)
		collector.Start(ctx)
		defer collector.Close()

		aggregator := analytics.NewAggregator()
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()

		var store *analytics.Store
		if cfg.Postgres.Enabled {
			db, err := postgres.New(cfg.Postgres)
			if err != nil {
				slog.Warn("postgres unavailable, snapshots disabled", "error", err)
			} else {
				defer db.Close()
				store = analytics.NewStore(db)
				store.StartPeriodicSave(ctx, aggregator, time.Hour)
			}
		}
		analyticsH = analytics.NewHandler(aggregator, store)
		slog.Info("analytics enabled", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if epoch := epochs.CurrentEpoch(); epoch > 0 {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("epoch %d", epoch)}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "no published epoch"}
	})
	checker.Register("feature_store", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("embedding", func(ctx context.Context) health.ComponentHealth {
		if embedder == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: embedder.BreakerState().String()}
	})

	h := server.New(pipe, caches, collector, cfg.Server.MaxInflight, m)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	if analyticsH != nil {
		mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
		mux.HandleFunc("GET /api/v1/analytics/history", analyticsH.History)
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Pipeline.TailBudget)(chain)
	chain = middleware.RequestID(chain)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics shutdown error", "error", err)
			}
		}
	}()

	slog.Info("search service listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
