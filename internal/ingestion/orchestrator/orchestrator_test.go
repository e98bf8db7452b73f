package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/fetcher"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/source"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/source/sourcetest"
	apperrors "github.com/Adithya-Monish-Kumar-K/message-search/pkg/errors"
)

func newOrchestrator(t *testing.T, fake *sourcetest.Fake, pageSize, fanOut int) *Orchestrator {
	t.Helper()
	f := fetcher.New(fake, fetcher.Config{
		MaxAttempts:    3,
		NetworkBackoff: time.Millisecond,
		ServerBackoff:  time.Millisecond,
	}, nil)
	o, err := New(f, Config{PageSize: pageSize, FanOut: fanOut})
	require.NoError(t, err)
	return o
}

func expected(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("message %d", i)
	}
	return out
}

func TestFetchAllSizes(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		pageSize   int
		fanOut     int
		wantRounds int
	}{
		{"empty source", 0, 10, 4, 1},
		{"single short page", 3, 10, 4, 1},
		{"exact multiple of page size", 40, 10, 4, 2},
		{"exact multiple of round", 80, 10, 4, 3},
		{"uneven tail", 95, 10, 4, 3},
		{"fan-out of one", 25, 10, 1, 3},
		{"page size of one", 5, 1, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := sourcetest.New(tt.total)
			res, err := newOrchestrator(t, fake, tt.pageSize, tt.fanOut).FetchAll(context.Background())
			require.NoError(t, err)
			assert.Equal(t, expected(tt.total), sourcetest.Texts(res.Records))
			assert.Equal(t, tt.wantRounds, res.Rounds)
			assert.Zero(t, res.Lost)
		})
	}
}

func TestFetchAllDiscardsPagesAfterTerminal(t *testing.T) {
	fake := sourcetest.New(15)
	res, err := newOrchestrator(t, fake, 10, 4).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 15)
	assert.Equal(t, 2, res.Pages)
	assert.Len(t, fake.Calls(), 4)
}

func TestFetchAllLossDoesNotEndIngestion(t *testing.T) {
	fake := sourcetest.New(30)
	fake.Poisoned[9] = true

	res, err := newOrchestrator(t, fake, 10, 1).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 29)
	assert.Equal(t, 1, res.Lost)
	assert.NotContains(t, sourcetest.Texts(res.Records), "message 9")
	assert.Contains(t, sourcetest.Texts(res.Records), "message 29")
}

func TestFetchAllFullPageOfLossDoesNotEndIngestion(t *testing.T) {
	fake := sourcetest.New(30)
	for i := 5; i < 10; i++ {
		fake.Poisoned[i] = true
	}

	res, err := newOrchestrator(t, fake, 5, 2).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Records, 25)
	assert.Equal(t, 5, res.Lost)
	assert.Equal(t, "message 4", res.Records[4].Text())
	assert.Equal(t, "message 10", res.Records[5].Text())
	assert.Contains(t, sourcetest.Texts(res.Records), "message 29")
}

func TestFetchAllFailsWhenSourceRejectsEverything(t *testing.T) {
	fake := sourcetest.New(10)
	fake.Failures = func(int, int, int) error {
		return &source.StatusError{Code: http.StatusNotFound}
	}

	res, err := newOrchestrator(t, fake, 4, 2).FetchAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSourceUnavailable)
	assert.Equal(t, http.StatusBadGateway, apperrors.HTTPStatusCode(err))
	assert.Empty(t, res.Records)
	assert.Zero(t, res.Lost)
}

func TestFetchAllCountsLossAcrossWholeRound(t *testing.T) {
	fake := sourcetest.New(10)
	fake.Failures = func(_, skip, _ int) error {
		if skip >= 12 {
			return &source.StatusError{Code: http.StatusBadRequest}
		}
		return nil
	}

	res, err := newOrchestrator(t, fake, 4, 4).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, expected(10), sourcetest.Texts(res.Records))
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 4, res.Lost)
	assert.Equal(t, 1, res.Rounds)
}

func TestFetchAllFatalErrorReturnsNoPartialResult(t *testing.T) {
	fake := sourcetest.New(100)
	fake.Failures = func(_, skip, _ int) error {
		if skip == 50 {
			return &source.StatusError{Code: http.StatusServiceUnavailable}
		}
		return nil
	}
	res, err := newOrchestrator(t, fake, 10, 2).FetchAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrRetriesExhausted))
	assert.Empty(t, res.Records)
}

func TestFetchAllCancelled(t *testing.T) {
	fake := sourcetest.New(100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newOrchestrator(t, fake, 10, 2).FetchAll(ctx)
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(nil, Config{PageSize: 0, FanOut: 1})
	assert.Error(t, err)
	_, err = New(nil, Config{PageSize: 1, FanOut: 0})
	assert.Error(t, err)
}
