package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrMissingBaseURL is returned when the client is built without a
	// backend address.
	ErrMissingBaseURL = errors.New("backend base URL is required")

	// ErrUnreachable wraps transport-level failures (DNS, connection
	// reset, client timeout). Always retryable.
	ErrUnreachable = errors.New("backend is unreachable")
)

// Error is a non-2xx response from the backend. 4xx means the request
// itself is wrong and retrying cannot succeed; 5xx is a transient backend
// problem.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend responded with status %d: %s", e.StatusCode, e.Message)
}

// IsRetryable classifies a backend call failure: 5xx, timeouts, and
// network errors are transient; 4xx is permanent. The sync queue uses this
// to decide whether a failed entry stays eligible for re-queue.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var respErr *Error
	if errors.As(err, &respErr) {
		return respErr.StatusCode >= 500
	}

	if errors.Is(err, ErrUnreachable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
