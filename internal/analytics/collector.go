// Package analytics records search activity. Events feed an in-process
// aggregator and, when Kafka is enabled, are batched onto the analytics
// topic.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/kafka"
)

// Collector accepts events from request handlers without blocking them.
// Kafka delivery happens when the buffer reaches batchSize or every
// flushInterval, whichever comes first.
type Collector struct {
	publisher     kafka.Publisher
	aggregator    *Aggregator
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	flushing      atomic.Bool
	logger        *slog.Logger
	done          chan struct{}
}

// NewCollector builds a collector. publisher may be nil, in which case
// events only reach the aggregator.
func NewCollector(publisher kafka.Publisher, aggregator *Aggregator, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if aggregator == nil {
		aggregator = NewAggregator()
	}
	return &Collector{
		publisher:     publisher,
		aggregator:    aggregator,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

func (c *Collector) Aggregator() *Aggregator {
	return c.aggregator
}

// Start runs the flush loop until ctx is cancelled, then flushes once more.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		if c.publisher == nil {
			<-ctx.Done()
			return
		}
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"kafka", c.publisher != nil,
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track records event. It never blocks on Kafka.
func (c *Collector) Track(event SearchEvent) {
	c.aggregator.Record(event)
	if c.publisher == nil {
		return
	}
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{Key: event.Query, Value: event})
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if full && c.flushing.CompareAndSwap(false, true) {
		go func() {
			defer c.flushing.Store(false)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			c.flush(ctx)
		}()
	}
}

// Close waits for the flush loop started by Start to exit.
func (c *Collector) Close() {
	<-c.done
}

// BufferLen returns the number of events waiting for Kafka.
func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "batch_size", len(batch), "error", err)
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			dropped := len(c.buffer) - limit
			c.buffer = c.buffer[:limit]
			c.logger.Warn("analytics buffer overflow, events dropped", "dropped", dropped)
		}
		c.mu.Unlock()
		return
	}
	c.logger.Debug("analytics batch flushed", "events", len(batch))
}
