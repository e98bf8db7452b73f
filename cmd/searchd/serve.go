package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/generation"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/coordinator"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/trigger"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/searcher/executor"
	searchhandler "github.com/Adithya-Monish-Kumar-K/message-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/middleware"
)

const (
	analyticsBatchSize     = 100
	analyticsFlushInterval = 5 * time.Second
	readinessTimeout       = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Ingest the source and serve search over HTTP",
	Long: `Start the HTTP server. The first ingestion cycle runs before the listener
opens unless ingestion.blockStartup is false; if it fails the service still
starts and answers every query with zero results until a later cycle succeeds.

Examples:
  # Defaults plus MS_* environment
  searchd serve

  # Explicit config file
  searchd serve --config configs/development.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"source", cfg.Source.BaseURL,
		"page_size", cfg.Ingestion.PageSize,
		"fan_out", cfg.Ingestion.FanOut,
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	holder := generation.NewHolder()
	runs, db := openRunLog(ctx, cfg)
	if db != nil {
		defer db.Close()
	}

	opts := []coordinator.Option{coordinator.WithRunLog(runs)}
	var analyticsPublisher kafka.Publisher
	if cfg.Kafka.Enabled {
		generationProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.GenerationPublished)
		defer generationProducer.Close()
		opts = append(opts, coordinator.WithEvents(generationProducer))

		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		analyticsPublisher = analyticsProducer
		slog.Info("kafka enabled", "brokers", cfg.Kafka.Brokers)
	}

	client, err := newSourceClient(cfg, m)
	if err != nil {
		return err
	}
	coord, err := newCoordinator(cfg, m, holder, client, opts...)
	if err != nil {
		return err
	}
	coord.Start(ctx, cfg.Ingestion.RefreshInterval)

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ReindexRequests, trigger.HandleMessage(coord))
		listener := trigger.NewListener(consumer)
		go func() {
			if err := listener.Start(ctx); err != nil {
				slog.Error("reindex listener error", "error", err)
			}
		}()
	}

	if cfg.Ingestion.BlockStartup {
		if _, err := coord.Run(ctx, "startup"); err != nil {
			slog.Error("startup ingestion failed, serving an empty index", "error", err)
		}
		if ctx.Err() != nil {
			coord.Wait()
			return nil
		}
	} else if err := coord.Trigger("startup"); err != nil {
		slog.Warn("startup ingestion not started", "error", err)
	}

	collector := analytics.NewCollector(analyticsPublisher, nil, analyticsBatchSize, analyticsFlushInterval)
	collector.Start(ctx)

	queryCache, redisClient := openQueryCache(cfg, m)
	if redisClient != nil {
		defer redisClient.Close()
	}

	exec := executor.New(holder, m)
	searchH := searchhandler.New(exec, queryCache, collector, cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	ingestH := ingesthandler.New(coord, runs)
	analyticsH := analytics.NewHandler(collector.Aggregator())

	checker := health.NewChecker(readinessTimeout)
	checker.Register("generation", generationCheck(holder))
	checker.Register("source", sourceCheck(client))
	if redisClient != nil {
		checker.Register("redis", dependencyCheck(redisClient))
	}
	if db != nil {
		checker.Register("postgres", dependencyCheck(db))
	}

	mux := http.NewServeMux()
	searchH.Register(mux)
	ingestH.Register(mux)
	analyticsH.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit)
	}

	var chain http.Handler = mux
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.CORS(cfg.Server.CORSAllowOrigins)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
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
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	serveErr := server.ListenAndServe()
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}
	stop()

	coord.Wait()
	collector.Close()
	if queryCache != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		queryCache.Close(closeCtx)
		cancel()
	}

	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	slog.Info("search service stopped")
	return nil
}
