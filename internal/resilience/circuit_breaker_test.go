package resilience

import (
	"errors"
	"testing"
	"time"
)

// manualClock lets tests move past the reset timeout without sleeping.
type manualClock struct {
	t time.Time
}

func (c *manualClock) now() time.Time { return c.t }

func newTestBreaker(maxFailures int, reset time.Duration) (*CircuitBreaker, *manualClock) {
	clock := &manualClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("test", maxFailures, reset)
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_StateClosed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected initial state to be Closed, got %s", cb.GetState())
	}
	if !cb.allowRequest() {
		t.Error("Expected to allow request in Closed state")
	}
}

func TestCircuitBreaker_OpenAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	cb.RecordResult(false)
	cb.RecordResult(false)
	if cb.GetState() != StateClosed {
		t.Error("Expected state to still be Closed after 2 failures")
	}

	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after 3 failures")
	}
	if cb.allowRequest() {
		t.Error("Expected to not allow request in Open state")
	}
}

func TestCircuitBreaker_HalfOpenThenClosed(t *testing.T) {
	cb, clock := newTestBreaker(3, 100*time.Millisecond)
	for i := 0; i < 3; i++ {
		cb.RecordResult(false)
	}

	clock.t = clock.t.Add(150 * time.Millisecond)
	if !cb.allowRequest() {
		t.Fatal("Expected to allow request after timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("Expected HalfOpen, got %s", cb.GetState())
	}

	for i := 0; i < 3; i++ {
		cb.RecordResult(true)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected Closed after successes in HalfOpen, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_OpenAfterFailureInHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(3, 100*time.Millisecond)
	for i := 0; i < 3; i++ {
		cb.RecordResult(false)
	}
	clock.t = clock.t.Add(150 * time.Millisecond)
	cb.allowRequest()

	cb.RecordResult(false)
	if cb.GetState() != StateOpen {
		t.Error("Expected state to be Open after failure in HalfOpen")
	}
}

func TestCircuitBreaker_CallOpen(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Second)
	cb.RecordResult(false)

	called := false
	err := cb.Call(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Function must not run while circuit is open")
	}
}

func TestCircuitBreaker_CallPropagatesError(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	boom := errors.New("test error")

	if err := cb.Call(func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Expected test error, got %v", err)
	}
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Second)
	var states []CircuitState
	cb.OnStateChange = func(name string, s CircuitState) {
		if name != "test" {
			t.Errorf("Unexpected breaker name %q", name)
		}
		states = append(states, s)
	}

	cb.RecordResult(false)
	cb.RecordResult(false)
	cb.Reset()

	if len(states) != 2 || states[0] != StateOpen || states[1] != StateClosed {
		t.Errorf("Expected [open closed], got %v", states)
	}
}

func TestCircuitBreaker_GetStatsAndReset(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	cb.RecordResult(true)
	cb.RecordResult(true)
	cb.RecordResult(false)

	state, requestCount, failureCount, failureRate := cb.GetStats()
	if state != StateClosed {
		t.Errorf("Expected state Closed, got %s", state)
	}
	if requestCount != 3 || failureCount != 1 {
		t.Errorf("Expected 3 requests and 1 failure, got %d and %d", requestCount, failureCount)
	}
	if failureRate < 33.0 || failureRate > 34.0 {
		t.Errorf("Expected failure rate around 33.33%%, got %.2f%%", failureRate)
	}

	cb.Reset()
	_, requestCount, failureCount, _ = cb.GetStats()
	if requestCount != 0 || failureCount != 0 {
		t.Error("Expected stats to be reset")
	}
}
