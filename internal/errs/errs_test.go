package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		content   bool
		parse     bool
		fatal     bool
	}{
		{"retryable", NewRetryable("timeout", errors.New("deadline")), true, false, false, false},
		{"content", NewContent("too_short"), false, true, false, false},
		{"parse", NewParse("identify", 2, errors.New("bad json")), false, false, true, false},
		{"fatal", NewFatal("storage_unreachable", errors.New("dial")), false, false, false, true},
		{"wrapped retryable", fmt.Errorf("stage: %w", NewRetryable("rate_limit", nil)), true, false, false, false},
		{"plain", errors.New("boom"), false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
			if got := IsContent(tt.err); got != tt.content {
				t.Errorf("IsContent = %v, want %v", got, tt.content)
			}
			if got := IsParse(tt.err); got != tt.parse {
				t.Errorf("IsParse = %v, want %v", got, tt.parse)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	origSleep := retrySleepFunc
	retrySleepFunc = func(ctx context.Context, d time.Duration) error { return nil }
	defer func() { retrySleepFunc = origSleep }()

	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return NewRetryable("transient", nil)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return NewContent("duplicate")
	})

	if !IsContent(err) {
		t.Fatalf("expected content error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	origSleep := retrySleepFunc
	retrySleepFunc = func(ctx context.Context, d time.Duration) error { return nil }
	defer func() { retrySleepFunc = origSleep }()

	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return NewRetryable("still down", nil)
	})

	if !IsRetryable(err) {
		t.Fatalf("expected retryable error after exhaustion, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Minute, func() error {
		return NewRetryable("transient", nil)
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
