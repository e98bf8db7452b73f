// Package coordinator runs ingestion cycles: fetch everything, build a new
// generation and publish it. A failed or cancelled cycle publishes nothing,
// so the previous generation keeps serving.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/generation"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/orchestrator"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/runlog"
	apperrors "github.com/Adithya-Monish-Kumar-K/message-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/tracing"
)

// Source yields a complete ordered fetch; *orchestrator.Orchestrator
// implements it.
type Source interface {
	FetchAll(ctx context.Context) (orchestrator.Result, error)
}

// Outcome summarizes a successful cycle.
type Outcome struct {
	GenerationID uint64
	TraceID      string
	Records      int
	Tokens       int
	Lost         int
	Pages        int
	Rounds       int
	BuiltAt      time.Time
	Duration     time.Duration
}

type Option func(*Coordinator)

// WithEvents publishes a GenerationEvent after every successful cycle.
func WithEvents(p kafka.Publisher) Option {
	return func(c *Coordinator) { c.events = p }
}

// WithRunLog records every cycle outcome.
func WithRunLog(r runlog.Recorder) Option {
	return func(c *Coordinator) { c.runs = r }
}

// WithCycleTimeout bounds a single cycle.
func WithCycleTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.cycleTimeout = d }
}

type Coordinator struct {
	source       Source
	holder       *generation.Holder
	metrics      *metrics.Metrics
	events       kafka.Publisher
	runs         runlog.Recorder
	cycleTimeout time.Duration
	logger       *slog.Logger

	group   singleflight.Group
	running atomic.Bool
	cycles  atomic.Uint64

	mu   sync.Mutex
	base context.Context
	wg   sync.WaitGroup
}

func New(src Source, holder *generation.Holder, m *metrics.Metrics, opts ...Option) *Coordinator {
	if m == nil {
		m = metrics.NewNop()
	}
	c := &Coordinator{
		source:  src,
		holder:  holder,
		metrics: m,
		logger:  slog.Default().With("component", "ingestion-coordinator"),
		base:    context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Running reports whether a cycle is in progress.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Run performs one cycle. Callers that arrive while a cycle is running wait
// for it and share its outcome instead of starting another.
func (c *Coordinator) Run(ctx context.Context, reason string) (Outcome, error) {
	v, err, shared := c.group.Do("cycle", func() (any, error) {
		c.running.Store(true)
		defer c.running.Store(false)
		return c.cycle(ctx, reason)
	})
	if shared {
		c.logger.Debug("joined in-flight ingestion cycle", "reason", reason)
	}
	if err != nil {
		return Outcome{}, err
	}
	return v.(Outcome), nil
}

// Start binds background cycles to ctx and, if interval is positive,
// re-ingests on that period until ctx ends.
func (c *Coordinator) Start(ctx context.Context, interval time.Duration) {
	c.mu.Lock()
	c.base = ctx
	c.mu.Unlock()
	if interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.Info("periodic re-ingestion enabled", "interval", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = c.Run(ctx, "refresh")
			}
		}
	}()
}

// Trigger starts a cycle in the background and returns immediately. It
// returns ErrCycleInProgress when a cycle is already running.
func (c *Coordinator) Trigger(reason string) error {
	if !c.running.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.ErrCycleInProgress, http.StatusConflict, "an ingestion cycle is already running")
	}
	c.mu.Lock()
	ctx := c.base
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.running.Store(false)
		_, _ = c.Run(ctx, reason)
	}()
	return nil
}

// Wait blocks until background cycles and the refresh loop have returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) cycle(ctx context.Context, reason string) (Outcome, error) {
	if c.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cycleTimeout)
		defer cancel()
	}
	ctx, span := tracing.Start(ctx, "ingestion.cycle")
	span.SetAttr("reason", reason)
	attempt := c.cycles.Add(1)
	started := time.Now()
	logger := c.logger.With("trace_id", span.TraceID, "cycle", attempt)
	logger.Info("ingestion cycle started", "reason", reason)

	out, err := c.execute(ctx, span)
	out.TraceID = span.TraceID
	out.Duration = time.Since(started)
	span.End(err)
	span.Log(logger)

	run := runlog.Run{
		TraceID:      span.TraceID,
		GenerationID: out.GenerationID,
		Records:      out.Records,
		Lost:         out.Lost,
		Pages:        out.Pages,
		Rounds:       out.Rounds,
		StartedAt:    started,
		Duration:     out.Duration,
	}
	c.metrics.IngestionDuration.Observe(out.Duration.Seconds())

	if err != nil {
		run.Status = runlog.StatusFailed
		run.Error = err.Error()
		c.metrics.IngestionCyclesTotal.WithLabelValues(string(runlog.StatusFailed)).Inc()
		c.record(run)
		logger.Error("ingestion cycle failed; keeping previous generation",
			"error", err,
			"serving_generation", c.holder.Current().ID,
			"duration", out.Duration,
		)
		return Outcome{}, err
	}

	run.Status = runlog.StatusSucceeded
	c.metrics.IngestionCyclesTotal.WithLabelValues(string(runlog.StatusSucceeded)).Inc()
	c.record(run)
	c.announce(out)
	logger.Info("ingestion cycle complete",
		"generation_id", out.GenerationID,
		"records", out.Records,
		"tokens", out.Tokens,
		"lost", out.Lost,
		"pages", out.Pages,
		"rounds", out.Rounds,
		"duration", out.Duration,
	)
	return out, nil
}

func (c *Coordinator) execute(ctx context.Context, root *tracing.Span) (Outcome, error) {
	fetchCtx, fetchSpan := tracing.Start(ctx, "fetch")
	res, err := c.source.FetchAll(fetchCtx)
	fetchSpan.SetAttr("records", len(res.Records))
	fetchSpan.SetAttr("lost", res.Lost)
	fetchSpan.End(err)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetching records: %w", err)
	}
	out := Outcome{
		Records: len(res.Records),
		Lost:    res.Lost,
		Pages:   res.Pages,
		Rounds:  res.Rounds,
	}
	if out.Records == 0 && out.Lost > 0 {
		return out, apperrors.Newf(apperrors.ErrSourceUnavailable, http.StatusBadGateway,
			"all %d fetched records were rejected by the source", out.Lost)
	}

	_, buildSpan := tracing.Start(ctx, "build")
	gen := generation.Build(store.New(res.Records))
	out.Tokens = gen.Index.TokenCount()
	out.BuiltAt = gen.BuiltAt
	buildSpan.SetAttr("tokens", out.Tokens)
	buildSpan.End(nil)

	_, publishSpan := tracing.Start(ctx, "publish")
	if err := ctx.Err(); err != nil {
		publishSpan.End(err)
		return out, fmt.Errorf("cycle cancelled before publish: %w", err)
	}
	out.GenerationID = c.holder.Publish(gen)
	publishSpan.SetAttr("generation_id", out.GenerationID)
	publishSpan.End(nil)
	root.SetAttr("generation_id", out.GenerationID)

	c.metrics.GenerationID.Set(float64(out.GenerationID))
	c.metrics.GenerationRecords.Set(float64(out.Records))
	c.metrics.GenerationTokens.Set(float64(out.Tokens))
	return out, nil
}

func (c *Coordinator) record(run runlog.Run) {
	if c.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.runs.Record(ctx, run); err != nil {
		c.logger.Warn("failed to record ingestion run", "trace_id", run.TraceID, "error", err)
	}
}

func (c *Coordinator) announce(out Outcome) {
	if c.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	event := analytics.GenerationEvent{
		Type:         analytics.EventGenerationPublished,
		GenerationID: out.GenerationID,
		TraceID:      out.TraceID,
		Records:      out.Records,
		Tokens:       out.Tokens,
		Lost:         out.Lost,
		Pages:        out.Pages,
		Rounds:       out.Rounds,
		DurationMs:   out.Duration.Milliseconds(),
		BuiltAt:      out.BuiltAt,
	}
	err := c.events.Publish(ctx, kafka.Event{
		Key:   strconv.FormatUint(out.GenerationID, 10),
		Value: event,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("failed to announce generation", "generation_id", out.GenerationID, "error", err)
	}
}
