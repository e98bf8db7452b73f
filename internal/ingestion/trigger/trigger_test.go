package trigger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/message-search/internal/ingestion/coordinator"
)

type recordingRunner struct {
	reasons []string
	err     error
}

func (r *recordingRunner) Run(_ context.Context, reason string) (coordinator.Outcome, error) {
	r.reasons = append(r.reasons, reason)
	return coordinator.Outcome{GenerationID: uint64(len(r.reasons))}, r.err
}

func TestHandleMessageRunsCycle(t *testing.T) {
	runner := &recordingRunner{}
	handle := HandleMessage(runner)

	require.NoError(t, handle(context.Background(), []byte("k"), []byte(`{"reason":"source schema changed","requested_by":"ops"}`)))
	require.NoError(t, handle(context.Background(), nil, []byte(`{}`)))
	assert.Equal(t, []string{"kafka: source schema changed", "kafka"}, runner.reasons)
}

func TestHandleMessageDropsMalformed(t *testing.T) {
	runner := &recordingRunner{}
	err := HandleMessage(runner)(context.Background(), nil, []byte(`{"reason":`))
	assert.NoError(t, err)
	assert.Empty(t, runner.reasons)
}

func TestHandleMessageReportsCycleFailure(t *testing.T) {
	cause := errors.New("retries exhausted")
	runner := &recordingRunner{err: cause}
	err := HandleMessage(runner)(context.Background(), nil, []byte(`{"reason":"nightly"}`))
	assert.ErrorIs(t, err, cause)
}
