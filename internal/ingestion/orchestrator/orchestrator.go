// Package orchestrator drives a full fetch of the source collection in
// rounds of concurrent page requests, stopping at the first short page.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/fetcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/message-search/pkg/errors"
)

// PageFetcher is satisfied by *fetcher.Fetcher.
type PageFetcher interface {
	Fetch(ctx context.Context, skip, limit int) (fetcher.Page, error)
}

type Config struct {
	PageSize int
	FanOut   int
}

// Result is a complete, ordered fetch of the source.
type Result struct {
	Records []store.Record
	Lost    int
	Pages   int
	Rounds  int
}

type Orchestrator struct {
	fetcher PageFetcher
	cfg     Config
	logger  *slog.Logger
}

func New(f PageFetcher, cfg Config) (*Orchestrator, error) {
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", cfg.PageSize)
	}
	if cfg.FanOut <= 0 {
		return nil, fmt.Errorf("fan-out must be positive, got %d", cfg.FanOut)
	}
	return &Orchestrator{
		fetcher: f,
		cfg:     cfg,
		logger:  slog.Default().With("component", "orchestrator"),
	}, nil
}

// FetchAll fetches pages until one comes back short. Any fatal fetch error
// cancels the in-flight siblings and fails the call without a partial
// result, as does a round in which every record was rejected.
func (o *Orchestrator) FetchAll(ctx context.Context) (Result, error) {
	res := Result{Records: []store.Record{}}
	skip := 0
	for {
		pages, err := o.round(ctx, skip)
		if err != nil {
			return Result{}, fmt.Errorf("round %d at offset %d: %w", res.Rounds+1, skip, err)
		}
		res.Rounds++

		// Records past the terminal page are dropped, but every lost offset
		// in the round is counted since each one was already reported.
		done := false
		roundRecords := 0
		for _, page := range pages {
			res.Lost += page.Lost
			if done {
				continue
			}
			res.Records = append(res.Records, page.Records...)
			roundRecords += len(page.Records)
			res.Pages++
			done = o.terminal(page)
		}
		if !done && roundRecords == 0 {
			return Result{}, apperrors.Newf(apperrors.ErrSourceUnavailable, http.StatusBadGateway,
				"round %d at offset %d: source rejected all %d records", res.Rounds, skip, o.cfg.PageSize*o.cfg.FanOut)
		}
		o.logger.Debug("round complete",
			"round", res.Rounds,
			"skip", skip,
			"records", len(res.Records),
			"lost", res.Lost,
		)
		if done {
			return res, nil
		}
		skip += o.cfg.PageSize * o.cfg.FanOut
	}
}

// round fetches FanOut consecutive pages starting at skip. Pages are
// returned in range order regardless of completion order.
func (o *Orchestrator) round(ctx context.Context, skip int) ([]fetcher.Page, error) {
	pages := make([]fetcher.Page, o.cfg.FanOut)
	g, gctx := errgroup.WithContext(ctx)
	for k := range pages {
		start := skip + k*o.cfg.PageSize
		g.Go(func() error {
			page, err := o.fetcher.Fetch(gctx, start, o.cfg.PageSize)
			if err != nil {
				return err
			}
			pages[k] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// terminal reports whether p is the end of the data. Lost offsets count as
// covered, so a page of rejected records does not end ingestion.
func (o *Orchestrator) terminal(p fetcher.Page) bool {
	return p.Covered() < o.cfg.PageSize
}
