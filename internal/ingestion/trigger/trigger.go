// Package trigger starts ingestion cycles in response to reindex requests
// published on Kafka.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/coordinator"
	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/kafka"
)

// ReindexRequest is the message body on the reindex-requests topic. All
// fields are informational.
type ReindexRequest struct {
	Reason      string    `json:"reason"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// Runner runs a cycle; *coordinator.Coordinator implements it.
type Runner interface {
	Run(ctx context.Context, reason string) (coordinator.Outcome, error)
}

// HandleMessage runs one cycle per request. Requests that arrive while a
// cycle is running join it. Undecodable messages are logged and dropped.
func HandleMessage(runner Runner) kafka.MessageHandler {
	logger := slog.Default().With("component", "reindex-trigger")
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[ReindexRequest](value)
		if err != nil {
			logger.Error("dropping malformed reindex request", "key", string(key), "error", err)
			return nil
		}
		reason := "kafka"
		if req.Reason != "" {
			reason = "kafka: " + req.Reason
		}
		logger.Info("reindex requested", "reason", req.Reason, "requested_by", req.RequestedBy)

		out, err := runner.Run(ctx, reason)
		if err != nil {
			return fmt.Errorf("reindex for %q: %w", req.Reason, err)
		}
		logger.Info("reindex complete", "generation_id", out.GenerationID, "records", out.Records)
		return nil
	}
}

// Listener consumes the reindex-requests topic.
type Listener struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func NewListener(consumer *kafka.Consumer) *Listener {
	return &Listener{
		consumer: consumer,
		logger:   slog.Default().With("component", "reindex-trigger"),
	}
}

// Start blocks until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	l.logger.Info("reindex listener starting")
	return l.consumer.Start(ctx)
}
