package watsonx

import (
	"errors"
	"fmt"
)

// ErrNotConfigured signals missing credentials or identifiers. It is raised
// at construction time, never at call time, so misconfiguration fails fast
// instead of surfacing as runtime flakiness.
var ErrNotConfigured = errors.New("watsonx not configured")

// StatusError is a non-2xx response from a watsonx endpoint.
type StatusError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("watsonx %s: status %d: %s", e.Endpoint, e.StatusCode, body)
}

// statusOf extracts the HTTP status from an error chain, 0 if none.
func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
