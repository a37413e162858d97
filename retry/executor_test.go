package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/resilience/breaker"
	"github.com/vietddude/resilience/classify"
)

var errTest = errors.New("test error")

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Now()} }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// retryableTimeout classifies everything as a retryable TIMEOUT with no
// suggested delay, so computed backoff is observable in tests.
var retryableTimeout = classify.ClassifierFunc(func(err error) *classify.Error {
	return &classify.Error{Kind: classify.KindTimeout, Retryable: true, Cause: err}
})

var permanentValidation = classify.ClassifierFunc(func(err error) *classify.Error {
	return &classify.Error{Kind: classify.KindValidation, Retryable: false, Cause: err}
})

type testHarness struct {
	exec   *Executor
	clock  *fakeClock
	sleeps []time.Duration
}

func newHarness(opts ...Option) *testHarness {
	h := &testHarness{clock: newFakeClock()}
	base := []Option{
		WithClock(h.clock),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		}),
	}
	h.exec = New(append(base, opts...)...)
	return h
}

func testPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2.0,
		CircuitThreshold:  3,
		CircuitCooldown:   10 * time.Second,
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	h := newHarness()

	res := Do(context.Background(), h.exec, "api", testPolicy(), func(ctx context.Context) (string, error) {
		return "ok", nil
	})

	if !res.Success {
		t.Fatalf("expected success, got error %v", res.Err)
	}
	if res.Value != "ok" {
		t.Errorf("value = %q, want ok", res.Value)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
	if len(h.sleeps) != 0 {
		t.Errorf("unexpected sleeps: %v", h.sleeps)
	}
	if res.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("execution ID should be assigned")
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	// Fails twice with a retryable timeout, then succeeds: three attempts
	// with backoff delays of 100ms and 200ms.
	h := newHarness(WithClassifier(retryableTimeout))

	calls := 0
	res := Do(context.Background(), h.exec, "api", testPolicy(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errTest
		}
		return "recovered", nil
	})

	if !res.Success || res.Value != "recovered" {
		t.Fatalf("expected recovered success, got %+v", res)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(h.sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", h.sleeps, want)
	}
	for i := range want {
		if h.sleeps[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, h.sleeps[i], want[i])
		}
	}
	if len(res.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(res.History))
	}
	for i, rec := range res.History {
		if rec.Attempt != i {
			t.Errorf("history[%d].Attempt = %d, want %d", i, rec.Attempt, i)
		}
		if rec.Kind != classify.KindTimeout {
			t.Errorf("history[%d].Kind = %s, want TIMEOUT", i, rec.Kind)
		}
	}
}

func TestDo_NoRetryOnPermanentError(t *testing.T) {
	h := newHarness(WithClassifier(permanentValidation))

	calls := 0
	res := Do(context.Background(), h.exec, "api", testPolicy(), func(ctx context.Context) (string, error) {
		calls++
		return "", errTest
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if calls != 1 || res.Attempts != 1 {
		t.Errorf("calls = %d, attempts = %d, want 1 and 1", calls, res.Attempts)
	}
	if len(h.sleeps) != 0 {
		t.Errorf("no delay should be incurred, got %v", h.sleeps)
	}
	if res.Err.Kind != classify.KindValidation {
		t.Errorf("kind = %s, want VALIDATION", res.Err.Kind)
	}
	if !errors.Is(res.Err, errTest) {
		t.Error("original error should be reachable through the result")
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	h := newHarness(WithClassifier(retryableTimeout))

	calls := 0
	res := Do(context.Background(), h.exec, "api", testPolicy(), func(ctx context.Context) (string, error) {
		calls++
		return "", errTest
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if calls != 3 || res.Attempts != 3 {
		t.Errorf("calls = %d, attempts = %d, want maxAttempts 3", calls, res.Attempts)
	}
	if res.Err.Kind != classify.KindTimeout {
		t.Errorf("kind = %s, want last classified TIMEOUT", res.Err.Kind)
	}
}

func TestDo_SuggestedDelayOverridesBackoff(t *testing.T) {
	h := newHarness(WithClassifier(classify.ClassifierFunc(func(err error) *classify.Error {
		return &classify.Error{
			Kind:           classify.KindRateLimit,
			Retryable:      true,
			SuggestedDelay: 1500 * time.Millisecond,
			Cause:          err,
		}
	})))

	calls := 0
	Do(context.Background(), h.exec, "api", testPolicy(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errTest
		}
		return "ok", nil
	})

	if len(h.sleeps) != 1 || h.sleeps[0] != 1500*time.Millisecond {
		t.Errorf("sleeps = %v, want [1.5s]", h.sleeps)
	}
}

func TestDo_CircuitOpensAfterTerminalFailures(t *testing.T) {
	h := newHarness(WithClassifier(permanentValidation))
	p := testPolicy() // threshold 3

	for i := 0; i < 3; i++ {
		res := Do(context.Background(), h.exec, "api", p, func(ctx context.Context) (string, error) {
			return "", errTest
		})
		if res.CircuitOpen {
			t.Fatalf("call %d should not be rejected yet", i)
		}
	}

	invoked := false
	res := Do(context.Background(), h.exec, "api", p, func(ctx context.Context) (string, error) {
		invoked = true
		return "ok", nil
	})

	if invoked {
		t.Error("operation must not be invoked when the circuit is open")
	}
	if !res.CircuitOpen {
		t.Error("result should report the circuit rejection")
	}
	if res.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", res.Attempts)
	}
	if res.Err.Kind != classify.KindCircuitOpen {
		t.Errorf("kind = %s, want CIRCUIT_OPEN", res.Err.Kind)
	}
	if !breaker.IsOpen(res.Err) {
		t.Error("breaker.IsOpen should match through the classified error")
	}
}

func TestDo_PerCallCircuitAccounting(t *testing.T) {
	// A single call that retries three times internally counts as one
	// failure against the circuit, not three.
	h := newHarness(WithClassifier(retryableTimeout))
	p := testPolicy() // threshold 3

	Do(context.Background(), h.exec, "api", p, func(ctx context.Context) (string, error) {
		return "", errTest
	})

	snap, ok := h.exec.Registry().State("api")
	if !ok {
		t.Fatal("expected circuit state")
	}
	if snap.ConsecutiveFailures != 1 {
		t.Errorf("consecutiveFailures = %d, want 1 (per-call accounting)", snap.ConsecutiveFailures)
	}
	if snap.Status != "closed" {
		t.Errorf("status = %s, want closed", snap.Status)
	}
}

func TestDo_HalfOpenProbeRecovers(t *testing.T) {
	h := newHarness(WithClassifier(permanentValidation))
	p := testPolicy()
	p.CircuitThreshold = 1

	Do(context.Background(), h.exec, "api", p, func(ctx context.Context) (string, error) {
		return "", errTest
	})
	if snap, _ := h.exec.Registry().State("api"); snap.Status != "open" {
		t.Fatalf("status = %s, want open", snap.Status)
	}

	h.clock.Advance(p.CircuitCooldown)

	res := Do(context.Background(), h.exec, "api", p, func(ctx context.Context) (string, error) {
		return "probe ok", nil
	})
	if !res.Success {
		t.Fatalf("probe should be admitted and succeed, got %+v", res)
	}

	snap, _ := h.exec.Registry().State("api")
	if snap.Status != "closed" {
		t.Errorf("status = %s, want closed after successful probe", snap.Status)
	}
	if snap.ConsecutiveFailures != 0 {
		t.Errorf("consecutiveFailures = %d, want 0", snap.ConsecutiveFailures)
	}
}

func TestDo_CancellationSkipsRetries(t *testing.T) {
	h := newHarness(WithClassifier(retryableTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	res := Do(ctx, h.exec, "api", testPolicy(), func(ctx context.Context) (string, error) {
		cancel() // caller gives up while the attempt is in flight
		return "", errTest
	})

	if res.Success {
		t.Fatal("expected cancelled failure")
	}
	if res.Err.Kind != classify.KindCancelled {
		t.Errorf("kind = %s, want CANCELLED", res.Err.Kind)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}

	// Cancellation is not counted against the circuit.
	snap, _ := h.exec.Registry().State("api")
	if snap.ConsecutiveFailures != 0 {
		t.Errorf("consecutiveFailures = %d, want 0", snap.ConsecutiveFailures)
	}
}

func TestDo_CancellationDuringBackoff(t *testing.T) {
	clock := newFakeClock()
	exec := New(
		WithClock(clock),
		WithClassifier(retryableTimeout),
		WithSleep(sleepContext), // real select, cancelled context wins
	)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan Result[string], 1)
	go func() {
		done <- Do(ctx, exec, "api", testPolicy(), func(ctx context.Context) (string, error) {
			calls++
			if calls == 1 {
				go cancel()
			}
			return "", errTest
		})
	}()

	res := <-done
	if res.Err == nil || res.Err.Kind != classify.KindCancelled {
		t.Fatalf("expected CANCELLED, got %+v", res.Err)
	}
}

func TestDo_PerAttemptTimeout(t *testing.T) {
	h := newHarness()
	p := testPolicy()
	p.MaxAttempts = 2
	p.OperationTimeout = 20 * time.Millisecond

	res := Do(context.Background(), h.exec, "api", p, func(ctx context.Context) (string, error) {
		// Ignores its context entirely; the executor must still time out.
		time.Sleep(150 * time.Millisecond)
		return "too late", nil
	})

	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if res.Err.Kind != classify.KindTimeout {
		t.Errorf("kind = %s, want TIMEOUT", res.Err.Kind)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 (timeouts are retryable)", res.Attempts)
	}
}

func TestDo_BudgetExhaustion(t *testing.T) {
	budget := NewBudget(1)
	h := newHarness(WithClassifier(retryableTimeout), WithBudget(budget))

	// Occupy the only slot.
	if !budget.TryAcquire() {
		t.Fatal("first acquire should succeed")
	}
	defer budget.Release()

	calls := 0
	res := Do(context.Background(), h.exec, "api", testPolicy(), func(ctx context.Context) (string, error) {
		calls++
		return "", errTest
	})

	if !res.BudgetExhausted {
		t.Error("result should report budget exhaustion")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry without budget)", calls)
	}
	if res.Err.Kind != classify.KindTimeout {
		t.Errorf("kind = %s, want the last classified error", res.Err.Kind)
	}
}

func TestDo_BudgetReleasedAfterExecution(t *testing.T) {
	budget := NewBudget(1)
	h := newHarness(WithClassifier(retryableTimeout), WithBudget(budget))

	calls := 0
	Do(context.Background(), h.exec, "api", testPolicy(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errTest
		}
		return "ok", nil
	})

	if got := budget.Inflight(); got != 0 {
		t.Errorf("inflight = %d, want 0 after execution finished", got)
	}
}

func TestDo_InvalidPolicy(t *testing.T) {
	h := newHarness()

	res := Do(context.Background(), h.exec, "api", Policy{}, func(ctx context.Context) (string, error) {
		t.Error("operation must not run under an invalid policy")
		return "", nil
	})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Err.Kind != classify.KindValidation {
		t.Errorf("kind = %s, want VALIDATION", res.Err.Kind)
	}
}
