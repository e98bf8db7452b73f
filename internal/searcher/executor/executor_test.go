package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/generation"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/message-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/metrics"
)

func genOf(messages ...string) *generation.Generation {
	records := make([]store.Record, len(messages))
	for i, m := range messages {
		records[i] = store.MustRecord(map[string]any{"idx": i, "message": m})
	}
	return generation.Build(store.New(records))
}

func texts(res *Result) []string {
	out := make([]string, len(res.Results))
	for i, r := range res.Results {
		out[i] = r.Text()
	}
	return out
}

var sample = []string{
	"Book a table for two",
	"Please BOOK my flight",
	"Cancel the table booking",
	"book, table; now!",
	"nothing relevant",
}

func TestSearchAndSemantics(t *testing.T) {
	gen := genOf(sample...)

	res, err := Search(gen, "book table", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"Book a table for two", "book, table; now!"}, texts(res))

	res, err = Search(gen, "book", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
}

func TestSearchCaseAndPunctuationInsensitive(t *testing.T) {
	gen := genOf(sample...)
	for _, q := range []string{"BOOK TABLE", "book... table!", "Table, Book"} {
		res, err := Search(gen, q, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Count, "query %q", q)
	}
}

func TestSearchZeroMatches(t *testing.T) {
	gen := genOf(sample...)
	tests := []string{"", "   ", "?!", "book zebra", "zebra"}
	for _, q := range tests {
		res, err := Search(gen, q, 10, 0)
		require.NoError(t, err)
		assert.Zero(t, res.Count, "query %q", q)
		assert.NotNil(t, res.Results)
		assert.Empty(t, res.Results)
	}
}

func TestSearchPagination(t *testing.T) {
	messages := make([]string, 25)
	for i := range messages {
		messages[i] = fmt.Sprintf("order %d shipped", i)
	}
	gen := genOf(messages...)

	var all []string
	for offset := 0; offset < 25; offset += 10 {
		res, err := Search(gen, "shipped", 10, offset)
		require.NoError(t, err)
		assert.Equal(t, 25, res.Count)
		assert.Equal(t, 10, res.Limit)
		assert.Equal(t, offset, res.Offset)
		all = append(all, texts(res)...)
	}
	assert.Equal(t, messages, all)

	res, err := Search(gen, "shipped", 10, 20)
	require.NoError(t, err)
	assert.Len(t, res.Results, 5)

	res, err = Search(gen, "shipped", 10, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, res.Count)
	assert.Empty(t, res.Results)

	first, _ := Search(gen, "order shipped", 7, 3)
	second, _ := Search(gen, "order shipped", 7, 3)
	assert.Equal(t, texts(first), texts(second))
}

func TestSearchRejectsInvalidPaging(t *testing.T) {
	gen := genOf(sample...)
	for _, tc := range []struct{ limit, offset int }{{0, 0}, {-1, 0}, {10, -1}} {
		_, err := Search(gen, "book", tc.limit, tc.offset)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
	}
}

func TestSearchPreservesRecordJSON(t *testing.T) {
	raw := `{"id":"x","user":{"name":"Ana"},"message":"Reserve table"}`
	r, err := store.DecodeRecord([]byte(raw))
	require.NoError(t, err)
	gen := generation.Build(store.New([]store.Record{r}))

	res, err := Search(gen, "reserve", 10, 0)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, raw, string(res.Results[0].Raw()))
}

func TestExecutorCountsOutcomes(t *testing.T) {
	holder := generation.NewHolder()
	holder.Publish(genOf(sample...))
	m := metrics.NewNop()
	e := New(holder, m)

	gen := e.Current()
	_, err := e.Execute(context.Background(), gen, "book", 10, 0)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), gen, "zebra", 10, 0)
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), gen, "book", 0, 0)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("invalid")))
}

func BenchmarkSearch(b *testing.B) {
	messages := make([]string, 20000)
	for i := range messages {
		messages[i] = fmt.Sprintf("customer %d wants to book table %d at restaurant %d", i, i%50, i%7)
	}
	gen := genOf(messages...)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Search(gen, "book table restaurant", 10, 100)
	}
}
