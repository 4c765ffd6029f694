package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrServerUnavailable marks a failed liveness probe.
var ErrServerUnavailable = errors.New("server unavailable")

// ConflictError is returned when a mutating call hits HTTP 409. It carries
// the server's current snapshot of the entity so the conflict resolver can
// act without another round trip. It is control flow, never retried blindly.
type ConflictError struct {
	ServerData json.RawMessage
}

func (e *ConflictError) Error() string {
	return "conflict: server state diverged from the queued mutation"
}

// StatusError is any other non-2xx response. The status code is what the
// retry policy classifies on.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %s", e.Status)
}
