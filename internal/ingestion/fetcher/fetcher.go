// Package fetcher retrieves one range of records from the source. Transient
// failures are retried with a fixed backoff; non-retriable failures split the
// range in two until the bad records are isolated and skipped.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/source"
	apperrors "github.com/Adithya-Monish-Kumar-K/message-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/resilience"
)

type Config struct {
	MaxAttempts    int
	NetworkBackoff time.Duration
	ServerBackoff  time.Duration
}

// Page is the outcome of fetching one range. Records are in ascending offset
// order; Lost counts offsets that failed permanently and were skipped.
type Page struct {
	Records []store.Record
	Lost    int
}

// Covered is the number of offsets the page accounts for.
func (p Page) Covered() int {
	return len(p.Records) + p.Lost
}

type Fetcher struct {
	transport source.Transport
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(transport source.Transport, cfg Config, m *metrics.Metrics) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Fetcher{
		transport: transport,
		cfg:       cfg,
		metrics:   m,
		logger:    slog.Default().With("component", "fetcher"),
	}
}

// Fetch returns the records in [skip, skip+limit). A non-nil error is fatal
// for the whole ingestion cycle: retries were exhausted or ctx ended.
func (f *Fetcher) Fetch(ctx context.Context, skip, limit int) (Page, error) {
	if limit <= 0 {
		return Page{Records: []store.Record{}}, nil
	}
	records, err := f.fetchWithRetry(ctx, skip, limit)
	if err == nil {
		f.metrics.PagesFetchedTotal.Inc()
		return Page{Records: records}, nil
	}
	if source.Classify(err) != source.ClassPermanent {
		return Page{}, err
	}

	if limit == 1 {
		f.metrics.RecordsLostTotal.Inc()
		f.logger.Warn("record lost", "offset", skip, "error", err)
		return Page{Records: []store.Record{}, Lost: 1}, nil
	}

	mid := limit / 2
	f.metrics.RangeSplitsTotal.Inc()
	f.logger.Debug("splitting range after non-retriable failure",
		"skip", skip,
		"limit", limit,
		"mid", mid,
		"error", err,
	)
	left, err := f.Fetch(ctx, skip, mid)
	if err != nil {
		return Page{}, err
	}
	if left.Covered() < mid {
		return left, nil
	}
	right, err := f.Fetch(ctx, skip+mid, limit-mid)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Records: append(left.Records, right.Records...),
		Lost:    left.Lost + right.Lost,
	}, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, skip, limit int) ([]store.Record, error) {
	var records []store.Record
	err := resilience.Retry(ctx, fmt.Sprintf("fetch [%d, %d)", skip, skip+limit), resilience.RetryConfig{
		MaxAttempts: f.cfg.MaxAttempts,
		Backoff:     f.backoff,
		OnRetry: func(_ int, err error, _ time.Duration) {
			f.metrics.FetchRetriesTotal.WithLabelValues(source.Classify(err).String()).Inc()
		},
	}, func() error {
		var err error
		records, err = f.transport.FetchPage(ctx, skip, limit)
		return err
	})
	if err == nil {
		return records, nil
	}
	if errors.Is(err, resilience.ErrRetriesExhausted) {
		return nil, fmt.Errorf("%w: range [%d, %d): %w", apperrors.ErrRetriesExhausted, skip, skip+limit, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("fetching range [%d, %d): %w", skip, skip+limit, ctxErr)
	}
	return nil, err
}

func (f *Fetcher) backoff(_ int, err error) (time.Duration, bool) {
	switch source.Classify(err) {
	case source.ClassNetwork:
		return f.cfg.NetworkBackoff, true
	case source.ClassServer:
		return f.cfg.ServerBackoff, true
	default:
		return 0, false
	}
}
