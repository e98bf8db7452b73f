// Package executor answers AND keyword queries against a published
// generation.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/generation"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/message-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/metrics"
)

// Result is one page of matches. Results are in ascending store order.
type Result struct {
	Count   int            `json:"count"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	Results []store.Record `json:"results"`

	GenerationID uint64   `json:"-"`
	Terms        []string `json:"-"`
}

// Search returns the records of gen whose message contains every token of
// query. A query with no tokens, or with any token absent from the index,
// matches nothing.
func Search(gen *generation.Generation, query string, limit, offset int) (*Result, error) {
	if limit <= 0 {
		return nil, apperrors.Invalid("limit must be positive, got %d", limit)
	}
	if offset < 0 {
		return nil, apperrors.Invalid("offset must not be negative, got %d", offset)
	}
	terms := tokenizer.Tokenize(query)
	res := &Result{
		Limit:        limit,
		Offset:       offset,
		Results:      []store.Record{},
		GenerationID: gen.ID,
		Terms:        terms,
	}
	if len(terms) == 0 {
		return res, nil
	}

	lists := make([]index.PostingList, 0, len(terms))
	for _, term := range terms {
		postings, ok := gen.Index.Lookup(term)
		if !ok {
			return res, nil
		}
		lists = append(lists, postings)
	}
	candidates := index.Intersect(lists...)
	res.Count = len(candidates)
	if offset >= len(candidates) {
		return res, nil
	}
	end := min(offset+limit, len(candidates))
	res.Results = gen.Store.Pick(candidates[offset:end])
	return res, nil
}

// Executor runs queries against whatever generation is current when the
// query starts.
type Executor struct {
	holder  *generation.Holder
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(holder *generation.Holder, m *metrics.Metrics) *Executor {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Executor{
		holder:  holder,
		metrics: m,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// Current returns the generation a new query would read.
func (e *Executor) Current() *generation.Generation {
	return e.holder.Current()
}

// Execute searches gen, which callers obtain once from Current so that a
// whole request sees one generation.
func (e *Executor) Execute(_ context.Context, gen *generation.Generation, query string, limit, offset int) (*Result, error) {
	start := time.Now()
	res, err := Search(gen, query, limit, offset)
	e.metrics.SearchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if res.Count == 0 {
		e.metrics.SearchQueriesTotal.WithLabelValues("zero_result").Inc()
	} else {
		e.metrics.SearchQueriesTotal.WithLabelValues("hit").Inc()
	}
	e.logger.Debug("query executed",
		"generation_id", gen.ID,
		"terms", len(res.Terms),
		"count", res.Count,
	)
	return res, nil
}
