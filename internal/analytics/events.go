package analytics

import "time"

type EventType string

const (
	EventSearch              EventType = "search"
	EventZeroResult          EventType = "zero_result"
	EventGenerationPublished EventType = "generation_published"
)

// SearchEvent describes one answered /search request.
type SearchEvent struct {
	Type         EventType `json:"type"`
	Query        string    `json:"query"`
	Terms        []string  `json:"terms"`
	TotalHits    int       `json:"total_hits"`
	Returned     int       `json:"returned"`
	Limit        int       `json:"limit"`
	Offset       int       `json:"offset"`
	GenerationID uint64    `json:"generation_id"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

// GenerationEvent announces a newly published index generation.
type GenerationEvent struct {
	Type         EventType `json:"type"`
	GenerationID uint64    `json:"generation_id"`
	TraceID      string    `json:"trace_id"`
	Records      int       `json:"records"`
	Tokens       int       `json:"tokens"`
	Lost         int       `json:"lost"`
	Pages        int       `json:"pages"`
	Rounds       int       `json:"rounds"`
	DurationMs   int64     `json:"duration_ms"`
	BuiltAt      time.Time `json:"built_at"`
}
