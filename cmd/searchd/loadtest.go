package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var loadtestOpts struct {
	target      string
	concurrency int
	duration    time.Duration
	rps         float64
	limit       int
	queries     []string
}

var defaultLoadQueries = []string{
	"book table",
	"flight",
	"paris",
	"reservation tonight",
	"car",
	"hotel",
	"dinner for two",
	"please",
	"private jet",
	"concert tickets",
	"table nobu",
	"gala",
}

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Drive /search on a running searchd and report latency",
	Long: `Issue search requests from several workers for a fixed duration and print
throughput, latency percentiles and the status code breakdown.

Examples:
  searchd loadtest --target http://localhost:8080 --concurrency 20 --duration 30s
  searchd loadtest --rps 200 --query "book table" --query paris`,
	Args:              cobra.NoArgs,
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runLoadtest,
}

func init() {
	f := loadtestCmd.Flags()
	f.StringVar(&loadtestOpts.target, "target", "http://localhost:8080", "base URL of the search service")
	f.IntVar(&loadtestOpts.concurrency, "concurrency", 10, "number of concurrent workers")
	f.DurationVar(&loadtestOpts.duration, "duration", 30*time.Second, "test duration")
	f.Float64Var(&loadtestOpts.rps, "rps", 0, "overall request rate cap (0 = unlimited)")
	f.IntVar(&loadtestOpts.limit, "limit", 10, "limit parameter sent with every query")
	f.StringArrayVar(&loadtestOpts.queries, "query", nil, "query to send (repeatable); a built-in set is used when empty")
	rootCmd.AddCommand(loadtestCmd)
}

// loadStats collects per-request outcomes from concurrent workers.
type loadStats struct {
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int
	failures  int
}

func newLoadStats() *loadStats {
	return &loadStats{codes: make(map[int]int)}
}

// record stores one request. status 0 means the request never completed.
func (s *loadStats) record(d time.Duration, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		s.failures++
		return
	}
	s.codes[status]++
	s.latencies = append(s.latencies, d)
}

type loadSummary struct {
	Total     int
	OK        int
	Failures  int
	Codes     map[int]int
	Min       time.Duration
	Mean      time.Duration
	P50       time.Duration
	P90       time.Duration
	P99       time.Duration
	Max       time.Duration
	StdDev    time.Duration
	PerSecond float64
}

func (s *loadStats) summarize(elapsed time.Duration) loadSummary {
	s.mu.Lock()
	lat := slices.Clone(s.latencies)
	codes := make(map[int]int, len(s.codes))
	for c, n := range s.codes {
		codes[c] = n
	}
	failures := s.failures
	s.mu.Unlock()

	sum := loadSummary{Total: len(lat) + failures, Failures: failures, Codes: codes}
	for c, n := range codes {
		if c >= 200 && c < 300 {
			sum.OK += n
		}
	}
	if elapsed > 0 {
		sum.PerSecond = float64(sum.Total) / elapsed.Seconds()
	}
	if len(lat) == 0 {
		return sum
	}
	slices.Sort(lat)
	var total time.Duration
	for _, d := range lat {
		total += d
	}
	sum.Mean = total / time.Duration(len(lat))
	var sq float64
	for _, d := range lat {
		diff := float64(d - sum.Mean)
		sq += diff * diff
	}
	sum.StdDev = time.Duration(math.Sqrt(sq / float64(len(lat))))
	sum.Min, sum.Max = lat[0], lat[len(lat)-1]
	sum.P50 = durationPercentile(lat, 50)
	sum.P90 = durationPercentile(lat, 90)
	sum.P99 = durationPercentile(lat, 99)
	return sum
}

// durationPercentile uses the nearest-rank method on sorted input.
func durationPercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}

func searchURL(base, query string, limit int) string {
	return fmt.Sprintf("%s/search?q=%s&limit=%d", base, url.QueryEscape(query), limit)
}

func runLoadtest(cmd *cobra.Command, _ []string) error {
	opts := loadtestOpts
	if opts.concurrency <= 0 {
		return fmt.Errorf("--concurrency must be positive")
	}
	queries := opts.queries
	if len(queries) == 0 {
		queries = defaultLoadQueries
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "target=%s concurrency=%d duration=%s queries=%d\n",
		opts.target, opts.concurrency, opts.duration, len(queries))

	var limiter *rate.Limiter
	if opts.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.rps), opts.concurrency)
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.duration)
	defer cancel()

	stats := newLoadStats()
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := range opts.concurrency {
		g.Go(func() error {
			for i := w; gctx.Err() == nil; i++ {
				if limiter != nil && limiter.Wait(gctx) != nil {
					return nil
				}
				req, err := http.NewRequestWithContext(gctx, http.MethodGet, searchURL(opts.target, queries[i%len(queries)], opts.limit), nil)
				if err != nil {
					return err
				}
				t0 := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if gctx.Err() == nil {
						stats.record(0, 0)
					}
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(time.Since(t0), resp.StatusCode)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sum := stats.summarize(time.Since(start))
	fmt.Fprintf(out, "requests=%d ok=%d failures=%d rps=%.1f\n", sum.Total, sum.OK, sum.Failures, sum.PerSecond)
	fmt.Fprintf(out, "latency min=%s mean=%s p50=%s p90=%s p99=%s max=%s stddev=%s\n",
		sum.Min, sum.Mean, sum.P50, sum.P90, sum.P99, sum.Max, sum.StdDev)
	codes := make([]int, 0, len(sum.Codes))
	for c := range sum.Codes {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	for _, c := range codes {
		fmt.Fprintf(out, "  %d: %d\n", c, sum.Codes[c])
	}
	if sum.Total == 0 {
		return fmt.Errorf("no requests completed; is searchd running at %s?", opts.target)
	}
	return nil
}
