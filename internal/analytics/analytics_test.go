package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, e kafka.Event) error {
	return f.PublishBatch(ctx, []kafka.Event{e})
}

func (f *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakePublisher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestAggregatorStats(t *testing.T) {
	a := NewAggregator()
	a.Record(SearchEvent{Query: "book table", TotalHits: 3, LatencyMs: 2})
	a.Record(SearchEvent{Query: "book table", TotalHits: 3, LatencyMs: 4, CacheHit: true})
	a.Record(SearchEvent{Query: "zebra", TotalHits: 0, LatencyMs: 6})

	s := a.Stats()
	assert.Equal(t, int64(3), s.TotalSearches)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(2), s.CacheMisses)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.InDelta(t, 4.0, s.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(4), s.P50LatencyMs)
	require.NotEmpty(t, s.TopQueries)
	assert.Equal(t, QueryCount{Query: "book table", Count: 2}, s.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "zebra", Count: 1}}, s.ZeroResultQueries)
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < latencyWindow+50; i++ {
		a.Record(SearchEvent{Query: "q", TotalHits: 1, LatencyMs: 1})
	}
	assert.Len(t, a.latencies, latencyWindow)
	assert.Equal(t, int64(latencyWindow+50), a.Stats().TotalSearches)
}

func TestCollectorWithoutKafkaOnlyAggregates(t *testing.T) {
	c := NewCollector(nil, nil, 10, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track(SearchEvent{Query: "hello", TotalHits: 1})
	assert.Equal(t, int64(1), c.Aggregator().Stats().TotalSearches)
	assert.Zero(t, c.BufferLen())
	cancel()
	c.Close()
}

func TestCollectorFlushesFullBatch(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, nil, 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	for i := 0; i < 3; i++ {
		c.Track(SearchEvent{Query: "q", TotalHits: 1})
	}
	assert.Eventually(t, func() bool { return pub.total() == 3 }, time.Second, 5*time.Millisecond)
}

func TestCollectorFlushesOnShutdown(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, nil, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track(SearchEvent{Query: "late", TotalHits: 1})
	cancel()
	c.Close()
	assert.Equal(t, 1, pub.total())
}

func TestCollectorRequeuesOnFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, nil, 2, time.Hour)
	c.buffer = append(c.buffer, kafka.Event{Key: "a"}, kafka.Event{Key: "b"})
	c.flush(context.Background())
	assert.Equal(t, 2, c.BufferLen())

	for i := 0; i < 10; i++ {
		c.buffer = append(c.buffer, kafka.Event{Key: "x"})
	}
	c.flush(context.Background())
	assert.Equal(t, 6, c.BufferLen())
}

func TestStatsHandler(t *testing.T) {
	a := NewAggregator()
	a.Record(SearchEvent{Query: "hi", TotalHits: 1})
	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var s AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, int64(1), s.TotalSearches)
}

func TestStatsHandlerTopParam(t *testing.T) {
	a := NewAggregator()
	for _, q := range []string{"paris", "paris", "car", "hotel"} {
		a.Record(SearchEvent{Query: q, TotalHits: 1})
	}
	mux := http.NewServeMux()
	NewHandler(a).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats?top=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var s AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	require.Len(t, s.TopQueries, 2)
	assert.Equal(t, QueryCount{Query: "paris", Count: 2}, s.TopQueries[0])

	for _, bad := range []string{"0", "101", "x"} {
		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats?top="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}
