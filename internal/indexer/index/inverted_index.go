package index

import (
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/tokenizer"
)

// InvertedIndex maps each token to the store indices whose message contains
// it. It is built once from a complete store and never mutated.
type InvertedIndex struct {
	postings map[string]PostingList
}

// Build indexes every record of s in a single ascending pass, so each
// posting list comes out sorted without a separate sort step.
func Build(s *store.Store) *InvertedIndex {
	idx := &InvertedIndex{
		postings: make(map[string]PostingList),
	}
	s.Each(func(i int, r store.Record) {
		for _, term := range tokenizer.Tokenize(r.Text()) {
			idx.postings[term] = append(idx.postings[term], i)
		}
	})
	return idx
}

// Empty returns an index with no terms.
func Empty() *InvertedIndex {
	return &InvertedIndex{postings: make(map[string]PostingList)}
}

// Lookup returns the postings for term. The returned slice is shared and must
// not be modified.
func (x *InvertedIndex) Lookup(term string) (PostingList, bool) {
	p, ok := x.postings[term]
	return p, ok
}

func (x *InvertedIndex) TokenCount() int {
	return len(x.postings)
}
