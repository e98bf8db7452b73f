package generation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/store"
)

func buildOf(n int, message string) *Generation {
	records := make([]store.Record, n)
	for i := range records {
		records[i] = store.MustRecord(map[string]any{"message": message})
	}
	return Build(store.New(records))
}

func TestNewHolderServesEmptyGeneration(t *testing.T) {
	h := NewHolder()
	g := h.Current()
	require.NotNil(t, g)
	assert.Equal(t, uint64(0), g.ID)
	assert.Equal(t, 0, g.Records())
	assert.Equal(t, 0, g.Index.TokenCount())
	assert.False(t, h.Ready())
}

func TestPublishAssignsIncreasingIDs(t *testing.T) {
	h := NewHolder()
	first := h.Publish(buildOf(2, "one"))
	second := h.Publish(buildOf(3, "two"))

	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)
	assert.Equal(t, 3, h.Current().Records())
	assert.True(t, h.Ready())
}

func TestReadersSeeWholeGenerations(t *testing.T) {
	h := NewHolder()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				g := h.Current()
				if g.ID == 0 {
					continue
				}
				// Every generation built below has ID*10 records all containing the
				// same token, so store and index must agree on the size.
				postings, ok := g.Index.Lookup("gen")
				if assert.True(t, ok) {
					assert.Len(t, postings, g.Records())
				}
			}
		}()
	}

	for i := 1; i <= 50; i++ {
		h.Publish(buildOf(i*10, "gen"))
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, uint64(50), h.Current().ID)
}
