// Package runlog keeps a ledger of ingestion cycles: when they ran, what
// they produced and why they failed. Only run metadata is stored.
package runlog

import (
	"context"
	"sync"
	"time"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one ingestion cycle outcome. GenerationID is 0 for failed runs.
type Run struct {
	TraceID      string        `json:"trace_id"`
	GenerationID uint64        `json:"generation_id"`
	Status       Status        `json:"status"`
	Records      int           `json:"records"`
	Lost         int           `json:"lost"`
	Pages        int           `json:"pages"`
	Rounds       int           `json:"rounds"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
	Error        string        `json:"error,omitempty"`
}

// Recorder stores runs and lists the most recent ones, newest first.
type Recorder interface {
	Record(ctx context.Context, run Run) error
	Recent(ctx context.Context, limit int) ([]Run, error)
}

// Memory keeps the last capacity runs in process.
type Memory struct {
	mu       sync.Mutex
	runs     []Run
	capacity int
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 100
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) Record(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	if over := len(m.runs) - m.capacity; over > 0 {
		m.runs = append(m.runs[:0], m.runs[over:]...)
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.runs) {
		limit = len(m.runs)
	}
	out := make([]Run, 0, limit)
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}
