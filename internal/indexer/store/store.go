// Package store holds the records of one ingestion generation as an
// immutable, 0-based ordered collection.
package store

// Store is an ordered, read-only sequence of records. Index i refers to the
// same record for the lifetime of the Store.
type Store struct {
	records []Record
}

// New takes ownership of records; the caller must not modify the slice
// afterwards.
func New(records []Record) *Store {
	if records == nil {
		records = []Record{}
	}
	return &Store{records: records}
}

// Empty returns a store with no records.
func Empty() *Store {
	return New(nil)
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Pick returns the records at the given indices, in the given order.
func (s *Store) Pick(indices []int) []Record {
	out := make([]Record, len(indices))
	for i, idx := range indices {
		out[i] = s.records[idx]
	}
	return out
}

// Each calls fn for every record in ascending index order.
func (s *Store) Each(fn func(i int, r Record)) {
	for i, r := range s.records {
		fn(i, r)
	}
}
