package fetcher

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/source"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/source/sourcetest"
	apperrors "github.com/Adithya-Monish-Kumar-K/message-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/resilience"
)

func fastConfig() Config {
	return Config{MaxAttempts: 5, NetworkBackoff: time.Millisecond, ServerBackoff: time.Millisecond}
}

func TestFetchReturnsPageInOrder(t *testing.T) {
	fake := sourcetest.New(50)
	page, err := New(fake, fastConfig(), nil).Fetch(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"message 10", "message 11", "message 12", "message 13", "message 14"}, sourcetest.Texts(page.Records))
	assert.Zero(t, page.Lost)
}

func TestFetchShortPageAtEnd(t *testing.T) {
	fake := sourcetest.New(7)
	page, err := New(fake, fastConfig(), nil).Fetch(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.Equal(t, 2, page.Covered())
}

func TestFetchSplitsAroundPoisonedRecord(t *testing.T) {
	fake := sourcetest.New(10)
	fake.Poisoned[3] = true
	m := metrics.NewNop()

	page, err := New(fake, fastConfig(), m).Fetch(context.Background(), 0, 10)
	require.NoError(t, err)

	want := []string{
		"message 0", "message 1", "message 2",
		"message 4", "message 5", "message 6", "message 7", "message 8", "message 9",
	}
	assert.Equal(t, want, sourcetest.Texts(page.Records))
	assert.Equal(t, 1, page.Lost)
	assert.Equal(t, 10, page.Covered())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsLostTotal))
	assert.Positive(t, testutil.ToFloat64(m.RangeSplitsTotal))
}

func TestFetchFallsBackToSingleRecords(t *testing.T) {
	fake := sourcetest.New(4)
	fake.Failures = func(_, _, limit int) error {
		if limit > 1 {
			return &source.StatusError{Code: http.StatusBadRequest}
		}
		return nil
	}

	page, err := New(fake, fastConfig(), nil).Fetch(context.Background(), 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"message 0", "message 1", "message 2", "message 3"}, sourcetest.Texts(page.Records))
	assert.Zero(t, page.Lost)
	assert.Equal(t, []sourcetest.Call{
		{Skip: 0, Limit: 4},
		{Skip: 0, Limit: 2},
		{Skip: 0, Limit: 1},
		{Skip: 1, Limit: 1},
		{Skip: 2, Limit: 2},
		{Skip: 2, Limit: 1},
		{Skip: 3, Limit: 1},
	}, fake.Calls())
}

func TestFetchSplitsAllPoisoned(t *testing.T) {
	fake := sourcetest.New(4)
	for i := range 4 {
		fake.Poisoned[i] = true
	}
	page, err := New(fake, fastConfig(), nil).Fetch(context.Background(), 0, 4)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Equal(t, 4, page.Lost)
}

func TestFetchSplitStopsAtEndOfData(t *testing.T) {
	fake := sourcetest.New(12)
	fake.Poisoned[10] = true

	page, err := New(fake, fastConfig(), nil).Fetch(context.Background(), 8, 8)
	require.NoError(t, err)
	assert.Equal(t, []string{"message 8", "message 9", "message 11"}, sourcetest.Texts(page.Records))
	assert.Equal(t, 1, page.Lost)
	assert.Less(t, page.Covered(), 8)
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	fake := sourcetest.New(10)
	fake.Failures = func(call, _, _ int) error {
		switch call {
		case 1:
			return &source.NetworkError{Err: errors.New("connection reset")}
		case 2:
			return &source.StatusError{Code: http.StatusServiceUnavailable}
		case 3:
			return &source.StatusError{Code: http.StatusTooManyRequests}
		}
		return nil
	}
	m := metrics.NewNop()

	page, err := New(fake, fastConfig(), m).Fetch(context.Background(), 0, 3)
	require.NoError(t, err)
	assert.Len(t, page.Records, 3)
	assert.Len(t, fake.Calls(), 4)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchRetriesTotal.WithLabelValues("network")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchRetriesTotal.WithLabelValues("server")))
}

func TestFetchRetriesExhausted(t *testing.T) {
	fake := sourcetest.New(10)
	fake.Failures = func(int, int, int) error {
		return &source.StatusError{Code: http.StatusInternalServerError}
	}

	_, err := New(fake, fastConfig(), nil).Fetch(context.Background(), 0, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRetriesExhausted)
	assert.ErrorIs(t, err, resilience.ErrRetriesExhausted)
	assert.Len(t, fake.Calls(), 5)
}

func TestFetchUsesBackoffPerClass(t *testing.T) {
	fake := sourcetest.New(1)
	fake.Failures = func(call, _, _ int) error {
		if call == 1 {
			return &source.StatusError{Code: http.StatusBadGateway}
		}
		return nil
	}
	cfg := Config{MaxAttempts: 3, NetworkBackoff: time.Millisecond, ServerBackoff: 80 * time.Millisecond}

	start := time.Now()
	_, err := New(fake, cfg, nil).Fetch(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestFetchCancelledDuringBackoff(t *testing.T) {
	fake := sourcetest.New(10)
	fake.Failures = func(int, int, int) error {
		return &source.NetworkError{Err: errors.New("unreachable")}
	}
	cfg := Config{MaxAttempts: 10, NetworkBackoff: time.Hour, ServerBackoff: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := New(fake, cfg, nil).Fetch(ctx, 0, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, fake.Calls(), 1)
}

func TestFetchZeroLimit(t *testing.T) {
	fake := sourcetest.New(3)
	page, err := New(fake, fastConfig(), nil).Fetch(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Empty(t, fake.Calls())
}
