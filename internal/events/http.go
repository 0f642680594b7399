package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when a validation request is received.
// Context carries the request context.
type HTTPStart struct {
	Request   *http.Request
	RequestID string
}

// HTTPFinish is emitted after the handler has written its response.
type HTTPFinish struct {
	Request   *http.Request
	RequestID string
	Status    int
	Duration  time.Duration
}
