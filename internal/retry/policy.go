// Package retry holds the backoff and eligibility rules for redelivering
// events that failed to reach the collector.
package retry

import "time"

const (
	// BaseDelay is the delay before the first retry.
	BaseDelay = 250 * time.Millisecond

	// MaxShift caps the exponent, so no single delay exceeds 64 * BaseDelay.
	MaxShift = 6
)

// Policy decides whether and when a failed event is retried.
type Policy struct {
	MaxAttempts int
}

// Delay returns BaseDelay * 2^min(attempts, MaxShift).
// Negative attempts are treated as 0.
func (p Policy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	} else if attempts > MaxShift {
		attempts = MaxShift
	}

	return BaseDelay * time.Duration(1<<attempts)
}

// CanRetry reports whether an event that has failed attempts times may be
// sent again.
func (p Policy) CanRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}
