package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errDialRefused = errors.New("dial refused")

func fastConfig(maxAttempts int) Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_EventualSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errDialRefused
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_ExhaustionKeepsLastError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(2), func() error {
		calls++
		return errDialRefused
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if !errors.Is(err, errDialRefused) {
		t.Fatalf("expected wrapped cause, got: %v", err)
	}
	// MaxAttempts counts retries on top of the initial try.
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_DisabledRunsOnce(t *testing.T) {
	cfg := fastConfig(5)
	cfg.Enabled = false

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return errDialRefused
	})
	if !errors.Is(err, errDialRefused) {
		t.Fatalf("expected the raw error, got: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	errBadGreeting := errors.New("greeting carries no client id")
	cfg := fastConfig(5)
	cfg.NonRetryableErrors = []error{errBadGreeting}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return errBadGreeting
	})
	if !errors.Is(err, errBadGreeting) {
		t.Fatalf("expected wrapped cause, got: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_RetryableListFiltersOthers(t *testing.T) {
	errOther := errors.New("something else")
	cfg := fastConfig(5)
	cfg.RetryableErrors = []error{errDialRefused}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return errOther
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call for unlisted error, got %d", calls)
	}
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	cfg := fastConfig(5)
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Retry(ctx, cfg, func() error { return errDialRefused })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("cancel did not interrupt the backoff wait, took %v", elapsed)
	}
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errDialRefused
		}
		return "session-42", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "session-42" {
		t.Fatalf("expected session-42, got %q", got)
	}
}

func TestRetryWithResult_ZeroValueOnFailure(t *testing.T) {
	got, err := RetryWithResult(context.Background(), fastConfig(1), func() (int, error) {
		return 99, errDialRefused
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got != 0 {
		t.Fatalf("expected zero value, got %d", got)
	}
}

func TestCalculateDelay_CapsAtMax(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   2.0,
	}
	if d := calculateDelay(cfg, 0); d != 100*time.Millisecond {
		t.Errorf("attempt 0: expected 100ms, got %v", d)
	}
	if d := calculateDelay(cfg, 10); d != 300*time.Millisecond {
		t.Errorf("attempt 10: expected the 300ms cap, got %v", d)
	}
}
