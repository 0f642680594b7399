package events

import "time"

// ValidationStart is emitted before an operation document is validated.
type ValidationStart struct {
	Document   string
	Operations []string
}

// ValidationFinish is emitted after validation completes.
type ValidationFinish struct {
	Document   string
	Operations []string
	Violations int
	Overrides  int
	Duration   time.Duration
}
