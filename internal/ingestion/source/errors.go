package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/resilience"
)

// Class groups source failures by how the fetcher should react to them.
type Class int

const (
	// ClassNone means the request succeeded.
	ClassNone Class = iota
	// ClassNetwork covers connection errors and request timeouts.
	ClassNetwork
	// ClassServer covers 429, 5xx and an open circuit breaker.
	ClassServer
	// ClassPermanent covers other 4xx and undecodable bodies. Retrying the
	// same request will not help; a smaller range might.
	ClassPermanent
	// ClassCanceled means the caller's context ended.
	ClassCanceled
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassNetwork:
		return "network"
	case ClassServer:
		return "server"
	case ClassPermanent:
		return "permanent"
	case ClassCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retriable reports whether the same request may succeed if repeated.
func (c Class) Retriable() bool {
	return c == ClassNetwork || c == ClassServer
}

// StatusError is a non-2xx response from the source.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("source returned status %d", e.Code)
	}
	return fmt.Sprintf("source returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Retriable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// NetworkError wraps a transport-level failure: DNS, connect, reset or a
// per-request timeout.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "source request failed: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DecodeError means a 2xx response body could not be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decoding source page: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by a Transport to its Class.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var statusErr *StatusError
	var netErr *NetworkError
	var decodeErr *DecodeError
	switch {
	case errors.As(err, &statusErr):
		if statusErr.Retriable() {
			return ClassServer
		}
		return ClassPermanent
	case errors.As(err, &decodeErr):
		return ClassPermanent
	case errors.Is(err, resilience.ErrCircuitOpen):
		return ClassServer
	case errors.As(err, &netErr):
		return ClassNetwork
	case errors.Is(err, errCanceled), errors.Is(err, context.Canceled):
		return ClassCanceled
	default:
		return ClassNetwork
	}
}

var errCanceled = errors.New("source request canceled")
