package watsonx

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicy_SucceedsFirstAttempt(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.sleep = func(time.Duration) { t.Error("Expected no sleep on first-attempt success") }

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 200, nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryPolicy_RetriesTransientThenSucceeds(t *testing.T) {
	var slept []time.Duration
	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		Retriable:   RetriableStatus,
		sleep:       func(d time.Duration) { slept = append(slept, d) },
	}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 503, &StatusError{StatusCode: 503, Endpoint: "test"}
		}
		return 200, nil
	})

	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}

	// Exponential backoff: 1s then 2s.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("Expected %d sleeps, got %d", len(want), len(slept))
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("Sleep %d: expected %v, got %v", i, want[i], slept[i])
		}
	}
}

func TestRetryPolicy_TerminalNotRetried(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.sleep = func(time.Duration) {}

	calls := 0
	wantErr := &StatusError{StatusCode: 401, Endpoint: "test"}
	err := policy.Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 401, wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected terminal error to propagate, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call for terminal failure, got %d", calls)
	}
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond, sleep: func(time.Duration) {}}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 429, &StatusError{StatusCode: 429, Endpoint: "test"}
	})

	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetryPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Millisecond, sleep: func(time.Duration) {}}

	calls := 0
	err := policy.Do(ctx, func(context.Context) (int, error) {
		calls++
		cancel()
		return 500, &StatusError{StatusCode: 500, Endpoint: "test"}
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation stopped retries, got %d", calls)
	}
}

func TestRetriableStatus(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true}, // transport failure
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{200, false},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
	}

	for _, tt := range tests {
		if got := RetriableStatus(tt.status); got != tt.want {
			t.Errorf("RetriableStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
