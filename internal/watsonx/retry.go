package watsonx

import (
	"context"
	"time"
)

// RetryPolicy retries transient service failures with bounded exponential
// backoff. One policy instance is shared by every network-calling component
// instead of per-call-site sleep loops.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	// Retriable decides from the HTTP status whether another attempt is
	// worthwhile. Status 0 means a transport-level failure.
	Retriable func(status int) bool

	sleep func(time.Duration) // injectable for tests
}

// DefaultRetryPolicy retries rate-limit and server-side errors up to three
// attempts with 1s/2s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		Retriable:   RetriableStatus,
		sleep:       time.Sleep,
	}
}

// RetriableStatus reports whether an HTTP status is a transient failure.
// Transport errors (status 0) are treated as transient; everything else
// outside this set is terminal for the call.
func RetriableStatus(status int) bool {
	switch status {
	case 0, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// Do runs op until it succeeds, fails terminally, or attempts run out.
// op reports the HTTP status it observed (0 for transport errors).
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) (int, error)) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	retriable := p.Retriable
	if retriable == nil {
		retriable = RetriableStatus
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := p.BaseBackoff
			if backoff <= 0 {
				backoff = time.Second
			}
			sleep(backoff * time.Duration(1<<uint(attempt-1)))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var status int
		status, err = op(ctx)
		if err == nil {
			return nil
		}
		if !retriable(status) {
			return err
		}
	}
	return err
}
