// Package generation publishes the (store, index) pair that queries read.
// A generation is replaced as a whole; readers load it once per request and
// keep a consistent view even if a newer one is published meanwhile.
package generation

import (
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/store"
)

type Generation struct {
	ID      uint64
	Store   *store.Store
	Index   *index.InvertedIndex
	BuiltAt time.Time
}

// Build creates an unpublished generation from a completed store.
func Build(s *store.Store) *Generation {
	return &Generation{
		Store:   s,
		Index:   index.Build(s),
		BuiltAt: time.Now().UTC(),
	}
}

func (g *Generation) Records() int {
	return g.Store.Len()
}

// Holder owns the currently published generation.
type Holder struct {
	current atomic.Pointer[Generation]
	nextID  atomic.Uint64
}

// NewHolder returns a holder serving an empty generation with ID 0.
func NewHolder() *Holder {
	h := &Holder{}
	h.current.Store(&Generation{
		Store:   store.Empty(),
		Index:   index.Empty(),
		BuiltAt: time.Now().UTC(),
	})
	return h
}

// Current returns the published generation. It never returns nil.
func (h *Holder) Current() *Generation {
	return h.current.Load()
}

// Publish assigns g the next ID and makes it current. g must not be modified
// after it is published.
func (h *Holder) Publish(g *Generation) uint64 {
	g.ID = h.nextID.Add(1)
	h.current.Store(g)
	return g.ID
}

// Ready reports whether at least one generation has been published.
func (h *Holder) Ready() bool {
	return h.Current().ID > 0
}
