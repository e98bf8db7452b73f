// Package source talks to the remote paginated record API.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/resilience"
)

const maxErrorBody = 512

// Transport fetches one page of records: up to limit items starting at
// offset skip. Errors are classified with Classify.
type Transport interface {
	FetchPage(ctx context.Context, skip, limit int) ([]store.Record, error)
}

type pageResponse struct {
	Items []json.RawMessage `json:"items"`
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	logger     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(cfg config.SourceConfig, m *metrics.Metrics, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing source base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("source base URL %q must be absolute", cfg.BaseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		timeout:    cfg.RequestTimeout,
		logger:     slog.Default().With("component", "source-client"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.CircuitBreaker.Enabled {
		c.breaker = resilience.NewCircuitBreaker("source", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			ResetTimeout:     cfg.CircuitBreaker.ResetTimeout,
			IsFailure: func(err error) bool {
				return Classify(err).Retriable()
			},
			OnStateChange: func(name string, to resilience.State) {
				if m != nil {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		})
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BreakerState reports the circuit breaker state. ok is false when the
// breaker is disabled.
func (c *Client) BreakerState() (state resilience.State, ok bool) {
	if c.breaker == nil {
		return resilience.StateClosed, false
	}
	return c.breaker.GetState(), true
}

func (c *Client) FetchPage(ctx context.Context, skip, limit int) ([]store.Record, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: waiting for rate limiter: %w", errCanceled, err)
		}
	}
	if c.breaker == nil {
		return c.fetch(ctx, skip, limit)
	}
	var records []store.Record
	err := c.breaker.Execute(func() error {
		var err error
		records, err = c.fetch(ctx, skip, limit)
		return err
	})
	return records, err
}

func (c *Client) fetch(ctx context.Context, skip, limit int) ([]store.Record, error) {
	return resilience.WithTimeout(ctx, c.timeout, "source page request", func(ctx context.Context) ([]store.Record, error) {
		return c.do(ctx, skip, limit)
	})
}

func (c *Client) do(ctx context.Context, skip, limit int) ([]store.Record, error) {
	u := *c.baseURL
	q := u.Query()
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building source request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %w", errCanceled, err)
		}
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	// A body cut short by the connection is a transport failure, not a bad
	// payload, so it is read in full before decoding.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %w", errCanceled, err)
		}
		return nil, &NetworkError{Err: fmt.Errorf("reading response body: %w", err)}
	}
	var page pageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &DecodeError{Err: err}
	}
	records := make([]store.Record, 0, len(page.Items))
	for i, item := range page.Items {
		r, err := store.DecodeRecord(item)
		if err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("item %d: %w", skip+i, err)}
		}
		records = append(records, r)
	}
	c.logger.Debug("page fetched", "skip", skip, "limit", limit, "items", len(records))
	return records, nil
}
