// Package sourcetest provides an in-memory source.Transport for tests.
package sourcetest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/source"
)

// Call records one FetchPage invocation.
type Call struct {
	Skip  int
	Limit int
}

// Fake serves a fixed dataset. Any request whose range covers a Poisoned
// offset fails with a 400. Failures, when set, is consulted before every
// request and may inject an error.
type Fake struct {
	Records  []store.Record
	Poisoned map[int]bool
	Failures func(call int, skip, limit int) error

	mu    sync.Mutex
	calls []Call
}

// New builds a fake with n records whose messages are "message <i>".
func New(n int) *Fake {
	records := make([]store.Record, n)
	for i := range records {
		records[i] = store.MustRecord(map[string]any{
			"id":      fmt.Sprintf("rec-%d", i),
			"message": fmt.Sprintf("message %d", i),
		})
	}
	return &Fake{Records: records, Poisoned: map[int]bool{}}
}

func (f *Fake) FetchPage(ctx context.Context, skip, limit int) ([]store.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Skip: skip, Limit: limit})
	n := len(f.calls)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Failures != nil {
		if err := f.Failures(n, skip, limit); err != nil {
			return nil, err
		}
	}
	end := min(skip+limit, len(f.Records))
	for i := skip; i < end; i++ {
		if f.Poisoned[i] {
			return nil, &source.StatusError{Code: http.StatusBadRequest, Body: "bad record"}
		}
	}
	if skip >= end {
		return []store.Record{}, nil
	}
	out := make([]store.Record, end-skip)
	copy(out, f.Records[skip:end])
	return out, nil
}

// Calls returns a copy of every request made so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Texts returns the message text of each record, for assertions.
func Texts(records []store.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Text()
	}
	return out
}
