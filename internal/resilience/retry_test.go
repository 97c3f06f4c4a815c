package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingSleep captures requested delays without waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func testConfig(s *recordingSleep) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Sleep:             s.sleep,
	}
}

func TestRetry_Success(t *testing.T) {
	s := &recordingSleep{}
	attempts := 0
	last, err := Retry(context.Background(), func(ctx context.Context, a Attempt) error {
		attempts++
		return nil
	}, testConfig(s), nil)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 || last.Number != 1 {
		t.Errorf("Expected 1 attempt, got %d (last %d)", attempts, last.Number)
	}
	if len(s.delays) != 0 {
		t.Errorf("Expected no delays, got %v", s.delays)
	}
}

func TestRetry_FailureThenSuccess(t *testing.T) {
	s := &recordingSleep{}
	var numbers []int
	_, err := Retry(context.Background(), func(ctx context.Context, a Attempt) error {
		numbers = append(numbers, a.Number)
		if a.Number < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, testConfig(s), nil)

	if err != nil {
		t.Errorf("Expected no error after retries, got %v", err)
	}
	if len(numbers) != 3 || numbers[0] != 1 || numbers[2] != 3 {
		t.Errorf("Expected attempts [1 2 3], got %v", numbers)
	}
}

func TestRetry_ExhaustedDoublesDelay(t *testing.T) {
	s := &recordingSleep{}
	calls := 0
	last, err := Retry(context.Background(), func(ctx context.Context, a Attempt) error {
		calls++
		return errors.New("persistent error")
	}, testConfig(s), func(error) bool { return true })

	if calls != 3 {
		t.Fatalf("Expected 3 attempts, got %d", calls)
	}
	if last.Number != 3 {
		t.Errorf("Expected last attempt 3, got %d", last.Number)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected ExhaustedError, got %T", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Expected 3 attempts recorded, got %d", exhausted.Attempts)
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if len(s.delays) != len(want) {
		t.Fatalf("Expected delays %v, got %v", want, s.delays)
	}
	for i := range want {
		if s.delays[i] != want[i] {
			t.Errorf("Delay %d: expected %v, got %v", i, want[i], s.delays[i])
		}
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	s := &recordingSleep{}
	attempts := 0
	sentinel := errors.New("non-retryable error")

	_, err := Retry(context.Background(), func(ctx context.Context, a Attempt) error {
		attempts++
		return sentinel
	}, testConfig(s), func(error) bool { return false })

	if !errors.Is(err, sentinel) {
		t.Errorf("Expected sentinel error, got %v", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("Non-retryable failure must not be reported as exhaustion")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt for non-retryable error, got %d", attempts)
	}
	if len(s.delays) != 0 {
		t.Errorf("Expected no delay, got %v", s.delays)
	}
}

func TestRetry_OnRetryHook(t *testing.T) {
	s := &recordingSleep{}
	cfg := testConfig(s)
	var seen []Attempt
	cfg.OnRetry = func(a Attempt, err error) { seen = append(seen, a) }

	_, _ = Retry(context.Background(), func(ctx context.Context, a Attempt) error {
		return errors.New("boom")
	}, cfg, nil)

	if len(seen) != 2 {
		t.Fatalf("Expected 2 retry notifications, got %d", len(seen))
	}
	if seen[1].Number != 2 || seen[1].NextDelay != 2*time.Second {
		t.Errorf("Unexpected second attempt record: %+v", seen[1])
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := &RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour, BackoffMultiplier: 2}
	attempts := 0
	_, err := Retry(ctx, func(ctx context.Context, a Attempt) error {
		attempts++
		return errors.New("rate limited")
	}, cfg, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in error chain, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestAttempt_NextIsImmutable(t *testing.T) {
	cfg := &RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, BackoffMultiplier: 2}
	first := FirstAttempt(cfg)
	second := first.Next(cfg)
	third := second.Next(cfg)

	if first.Number != 1 || first.NextDelay != time.Second {
		t.Errorf("First attempt changed: %+v", first)
	}
	if second.Number != 2 || second.NextDelay != 2*time.Second {
		t.Errorf("Unexpected second attempt: %+v", second)
	}
	if third.NextDelay != 3*time.Second {
		t.Errorf("Expected delay capped at 3s, got %v", third.NextDelay)
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt        int
		initialBackoff time.Duration
		maxBackoff     time.Duration
		multiplier     float64
		expected       time.Duration
	}{
		{0, 1 * time.Second, 10 * time.Second, 2.0, 1 * time.Second},
		{1, 1 * time.Second, 10 * time.Second, 2.0, 2 * time.Second},
		{2, 1 * time.Second, 10 * time.Second, 2.0, 4 * time.Second},
		{5, 1 * time.Second, 10 * time.Second, 2.0, 10 * time.Second}, // Capped at max
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			backoff := CalculateBackoff(tt.attempt, tt.initialBackoff, tt.maxBackoff, tt.multiplier)
			if backoff != tt.expected {
				t.Errorf("Expected backoff %v, got %v", tt.expected, backoff)
			}
		})
	}
}

func TestJittered(t *testing.T) {
	d := 100 * time.Millisecond
	if jittered(d, false) != d {
		t.Error("Expected no jitter when disabled")
	}
	for i := 0; i < 20; i++ {
		got := jittered(d, true)
		if got < d || got > d+d/4 {
			t.Fatalf("Jittered delay %v outside [%v, %v]", got, d, d+d/4)
		}
	}
}
