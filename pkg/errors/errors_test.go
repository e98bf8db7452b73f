package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", Invalid("limit must be positive"), http.StatusBadRequest},
		{"wrapped sentinel", fmt.Errorf("parse: %w", ErrInvalidInput), http.StatusBadRequest},
		{"cycle running", ErrCycleInProgress, http.StatusConflict},
		{"not ready", ErrNotReady, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	err := fmt.Errorf("handler: %w", Invalid("offset must be >= 0, got %d", -1))
	assert.Equal(t, "offset must be >= 0, got -1", Message(err, "fallback"))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, "fallback", Message(errors.New("x"), "fallback"))
}
