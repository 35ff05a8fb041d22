package chat

import (
	"errors"
	"fmt"
)

// Error taxonomy for the conversation pipeline. Everything the orchestrator
// or completion client can fail with is one of these; the HTTP layer maps
// them to status codes and never leaks internal detail to the UI.
var (
	// ErrInvalidInput is returned for empty or whitespace-only messages
	ErrInvalidInput = errors.New("chat: message is empty")

	// ErrBusy is returned when a send is already in flight for the session
	ErrBusy = errors.New("chat: send already in flight for session")

	// ErrUnauthorized is returned before any network or storage write when
	// the caller is not authenticated
	ErrUnauthorized = errors.New("chat: not authenticated")

	// ErrStorageUnavailable wraps failures of the local store
	ErrStorageUnavailable = errors.New("chat: storage unavailable")

	// ErrTimeout is returned when the upstream exceeds the first-byte or
	// between-fragment bound
	ErrTimeout = errors.New("chat: upstream timed out")

	// ErrUpstreamUnavailable is returned when the upstream cannot be reached
	ErrUpstreamUnavailable = errors.New("chat: upstream unreachable")

	// ErrStreamInterrupted is returned when an open stream dies mid-flight
	ErrStreamInterrupted = errors.New("chat: stream interrupted")
)

// UpstreamError carries a non-2xx status reported by the completion upstream
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("chat: upstream error %d: %s", e.Status, e.Message)
}

// storageErr tags an underlying store failure with ErrStorageUnavailable
// while preserving the cause for logs.
func storageErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
