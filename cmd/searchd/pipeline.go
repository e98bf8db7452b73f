package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/generation"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/coordinator"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/fetcher"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/orchestrator"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/runlog"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/source"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/message-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/resilience"
)

const recentRunsKept = 200

func newSourceClient(cfg *config.Config, m *metrics.Metrics) (*source.Client, error) {
	client, err := source.NewClient(cfg.Source, m)
	if err != nil {
		return nil, fmt.Errorf("creating source client: %w", err)
	}
	return client, nil
}

// newCoordinator wires transport → fetcher → orchestrator → coordinator.
func newCoordinator(cfg *config.Config, m *metrics.Metrics, holder *generation.Holder, client source.Transport, opts ...coordinator.Option) (*coordinator.Coordinator, error) {
	f := fetcher.New(client, fetcher.Config{
		MaxAttempts:    cfg.Ingestion.MaxAttempts,
		NetworkBackoff: cfg.Ingestion.NetworkBackoff,
		ServerBackoff:  cfg.Ingestion.ServerBackoff,
	}, m)
	orch, err := orchestrator.New(f, orchestrator.Config{
		PageSize: cfg.Ingestion.PageSize,
		FanOut:   cfg.Ingestion.FanOut,
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	opts = append([]coordinator.Option{coordinator.WithCycleTimeout(cfg.Ingestion.CycleTimeout)}, opts...)
	return coordinator.New(orch, holder, m, opts...), nil
}

// openRunLog returns the Postgres run ledger when it is enabled and
// reachable, and an in-memory ledger otherwise. db is nil in the latter case.
func openRunLog(ctx context.Context, cfg *config.Config) (runs runlog.Recorder, db *postgres.Client) {
	if !cfg.Postgres.Enabled {
		return runlog.NewMemory(recentRunsKept), nil
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, keeping run history in memory", "error", err)
		return runlog.NewMemory(recentRunsKept), nil
	}
	pg := runlog.NewPostgres(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		slog.Warn("run ledger schema setup failed, keeping run history in memory", "error", err)
		_ = db.Close()
		return runlog.NewMemory(recentRunsKept), nil
	}
	slog.Info("run ledger enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	return pg, db
}

// openQueryCache prefers the shared Redis cache and falls back to a
// process-local LRU. It returns a nil cache when both are disabled.
func openQueryCache(cfg *config.Config, m *metrics.Metrics) (*cache.QueryCache, *pkgredis.Client) {
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err == nil {
			slog.Info("search cache enabled", "backend", "redis", "addr", cfg.Redis.Addr, "ttl", cfg.Search.CacheTTL)
			return cache.New(cache.NewRedis(client, cfg.Search.CacheTTL), m), client
		}
		slog.Warn("redis unavailable, falling back to local cache", "error", err)
	}
	if cfg.Search.CacheSize <= 0 {
		slog.Info("search cache disabled")
		return nil, nil
	}
	slog.Info("search cache enabled", "backend", "lru", "size", cfg.Search.CacheSize, "ttl", cfg.Search.CacheTTL)
	return cache.New(cache.NewLRU(cfg.Search.CacheSize, cfg.Search.CacheTTL), m), nil
}

// generationCheck is down until the first generation has been published.
func generationCheck(holder *generation.Holder) health.Check {
	return func(context.Context) health.ComponentHealth {
		if !holder.Ready() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no generation published yet"}
		}
		g := holder.Current()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("generation %d, %d records", g.ID, g.Records()),
		}
	}
}

// sourceCheck reports the source as degraded while its circuit breaker is
// not closed. Queries keep working off the published generation.
func sourceCheck(client *source.Client) health.Check {
	return func(context.Context) health.ComponentHealth {
		state, ok := client.BreakerState()
		if !ok || state == resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusUp}
		}
		return health.ComponentHealth{
			Status:  health.StatusDegraded,
			Message: "circuit breaker " + state.String(),
		}
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// dependencyCheck reports an optional dependency as degraded, never down.
func dependencyCheck(p pinger) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if err := p.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	}
}
