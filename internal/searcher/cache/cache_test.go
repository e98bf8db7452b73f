package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/metrics"
)

func TestBuildKeyNormalizesTerms(t *testing.T) {
	a := BuildKey("ns", 1, "Book table", 10, 0)
	assert.Equal(t, a, BuildKey("ns", 1, "table, BOOK book", 10, 0))
	assert.NotEqual(t, a, BuildKey("ns", 2, "Book table", 10, 0))
	assert.NotEqual(t, a, BuildKey("ns", 1, "Book table", 20, 0))
	assert.NotEqual(t, a, BuildKey("ns", 1, "Book table", 10, 10))
	assert.NotEqual(t, a, BuildKey("other", 1, "Book table", 10, 0))
	assert.Contains(t, a, "search:ns:g1:")
}

func TestGetOrComputeCachesPerGeneration(t *testing.T) {
	m := metrics.NewNop()
	c := New(NewLRU(16, time.Minute), m)
	var computed atomic.Int32
	compute := func() (*executor.Result, error) {
		computed.Add(1)
		return &executor.Result{Count: 3, Limit: 10}, nil
	}
	ctx := context.Background()

	res, hit, err := c.GetOrCompute(ctx, 1, "book", 10, 0, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 3, res.Count)

	_, hit, err = c.GetOrCompute(ctx, 1, "BOOK", 10, 0, compute)
	require.NoError(t, err)
	assert.True(t, hit)

	_, hit, err = c.GetOrCompute(ctx, 2, "book", 10, 0, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	assert.Equal(t, int32(2), computed.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal))
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	backend := NewLRU(16, time.Minute)
	c := New(backend, nil)
	boom := errors.New("invalid")
	_, _, err := c.GetOrCompute(context.Background(), 1, "q", 0, 0, func() (*executor.Result, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, backend.Len())
}

func TestGetOrComputeCollapsesConcurrentMisses(t *testing.T) {
	c := New(NewLRU(16, time.Minute), nil)
	var computed atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	compute := func() (*executor.Result, error) {
		if computed.Add(1) == 1 {
			close(entered)
		}
		<-release
		return &executor.Result{Count: 1}, nil
	}
	run := func(wg *sync.WaitGroup) {
		defer wg.Done()
		_, _, err := c.GetOrCompute(context.Background(), 1, "same query", 10, 0, compute)
		assert.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go run(&wg)
	<-entered
	for i := 0; i < 7; i++ {
		wg.Add(1)
		go run(&wg)
	}
	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), computed.Load())
}

func TestLRUExpires(t *testing.T) {
	l := NewLRU(4, 20*time.Millisecond)
	l.Set(context.Background(), "k", &executor.Result{Count: 1})
	_, ok := l.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Eventually(t, func() bool {
		_, ok := l.Get(context.Background(), "k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestLRUEvictsOldest(t *testing.T) {
	l := NewLRU(2, time.Minute)
	ctx := context.Background()
	l.Set(ctx, "a", &executor.Result{})
	l.Set(ctx, "b", &executor.Result{})
	l.Set(ctx, "c", &executor.Result{})
	_, ok := l.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 2, l.Len())
}

func TestCloseIgnoresBackendsWithoutPurge(t *testing.T) {
	c := New(NewLRU(2, time.Minute), nil)
	assert.NotPanics(t, func() { c.Close(context.Background()) })
}

func TestRedisEntryKeepsTermsAndGeneration(t *testing.T) {
	res := &executor.Result{
		Count:        1,
		Limit:        10,
		Results:      []store.Record{store.MustRecord(map[string]any{"id": "a", "message": "Book a table"})},
		GenerationID: 7,
		Terms:        []string{"book", "table"},
	}
	data, err := encodeEntry(res)
	require.NoError(t, err)

	got, err := decodeEntry(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.GenerationID)
	assert.Equal(t, []string{"book", "table"}, got.Terms)
	assert.Equal(t, 1, got.Count)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "Book a table", got.Results[0].Text())
}

func TestRedisEntryRejectsBareResult(t *testing.T) {
	_, err := decodeEntry([]byte(`{"count":0,"limit":10,"offset":0,"results":[]}`))
	assert.Error(t, err)
}
