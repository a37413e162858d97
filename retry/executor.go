package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/resilience/breaker"
	"github.com/vietddude/resilience/classify"
	"github.com/vietddude/resilience/metrics"
)

// Executor runs operations under a retry policy with circuit breaking.
// It is stateless per call; the only shared state is the circuit registry
// and the optional retry budget, so a single Executor is safe for use by
// any number of goroutines.
type Executor struct {
	circuits   *breaker.Registry
	classifier classify.Classifier
	budget     *Budget
	log        *slog.Logger
	clock      breaker.Clock
	sleep      func(context.Context, time.Duration) error
}

// New creates an Executor. With no options it uses a fresh registry, the
// default classifier, no budget, and the default logger.
func New(opts ...Option) *Executor {
	e := &Executor{
		classifier: classify.Default,
		log:        slog.Default(),
		clock:      systemClock{},
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.circuits == nil {
		e.circuits = breaker.NewRegistry(breaker.WithClock(e.clock), breaker.WithLogger(e.log))
	}
	return e
}

// Registry exposes the circuit registry for health endpoints and operator
// resets.
func (e *Executor) Registry() *breaker.Registry {
	return e.circuits
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// sleepContext suspends only the calling goroutine, waking early on
// cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Do executes op under the policy, retrying retryable failures with
// backoff until success, budget exhaustion, or a permanent failure. Only
// the terminal outcome of the whole call is reported to the circuit for
// key; intermediate retryable failures are not, so a single flaky call
// cannot open the circuit by itself.
//
// Cancellation of ctx propagates to the in-flight attempt, skips further
// retries, and yields a CANCELLED result that is not counted against the
// circuit.
func Do[T any](ctx context.Context, e *Executor, key string, p Policy, op func(context.Context) (T, error)) Result[T] {
	start := e.clock.Now()
	res := Result[T]{ID: uuid.New()}

	if err := p.Validate(); err != nil {
		res.Err = &classify.Error{Kind: classify.KindValidation, Cause: err}
		return finish(e, key, "invalid-policy", start, res)
	}

	decision := e.circuits.Check(key, p.circuitSettings())
	if decision == breaker.Reject {
		res.CircuitOpen = true
		res.Err = &classify.Error{Kind: classify.KindCircuitOpen, Cause: breaker.ErrOpen}
		e.log.Debug("call rejected by open circuit", "key", key, "execution", res.ID)
		return finish(e, key, "rejected", start, res)
	}
	probe := decision == breaker.AllowProbe

	budgetHeld := false
	defer func() {
		if budgetHeld {
			e.budget.Release()
		}
	}()

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		value, err := invoke(ctx, p, op)
		res.Attempts = attempt + 1

		if err == nil {
			metrics.AttemptsTotal.WithLabelValues(key, "success").Inc()
			res.Success = true
			res.Value = value
			e.circuits.Record(key, true)
			return finish(e, key, "success", start, res)
		}

		if ctx.Err() != nil {
			// Caller-side cancellation: do not penalize the circuit.
			res.Err = &classify.Error{Kind: classify.KindCancelled, Cause: ctx.Err()}
			if probe {
				e.circuits.ReleaseProbe(key)
			}
			return finish(e, key, "cancelled", start, res)
		}

		// Per-attempt timeouts arrive pre-classified from invoke.
		ce, ok := classify.As(err)
		if !ok {
			ce = e.classifier.Classify(err)
		}
		metrics.AttemptsTotal.WithLabelValues(key, string(ce.Kind)).Inc()

		if !ce.Retryable || attempt == p.MaxAttempts-1 {
			res.Err = ce
			e.circuits.Record(key, false)
			return finish(e, key, "failure", start, res)
		}

		delay := ce.SuggestedDelay
		if delay <= 0 {
			delay = Backoff(attempt, p)
		}
		res.History = append(res.History, AttemptRecord{
			Attempt: attempt,
			Err:     ce,
			Kind:    ce.Kind,
			Delay:   delay,
			At:      e.clock.Now(),
		})
		metrics.RetriesTotal.WithLabelValues(key, string(ce.Kind)).Inc()
		metrics.RetryDelay.WithLabelValues(key).Observe(delay.Seconds())
		e.log.Debug("retrying after failure",
			"key", key, "execution", res.ID, "attempt", attempt,
			"kind", ce.Kind, "delay", delay)

		if e.budget != nil && !budgetHeld {
			if !e.budget.TryAcquire() {
				res.Err = ce
				res.BudgetExhausted = true
				metrics.BudgetExhaustedTotal.WithLabelValues(key).Inc()
				e.circuits.Record(key, false)
				e.log.Warn("retry budget exhausted, giving up",
					"key", key, "execution", res.ID, "attempt", attempt)
				return finish(e, key, "failure", start, res)
			}
			budgetHeld = true
		}

		if err := e.sleep(ctx, delay); err != nil {
			res.Err = &classify.Error{Kind: classify.KindCancelled, Cause: err}
			if probe {
				e.circuits.ReleaseProbe(key)
			}
			return finish(e, key, "cancelled", start, res)
		}
	}

	// Unreachable: the loop always returns on the last attempt.
	return res
}

// invoke runs one attempt under the per-attempt timeout. The operation
// runs in its own goroutine so a handler that ignores its context cannot
// stall the retry loop past the timeout.
func invoke[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	if p.OperationTimeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.OperationTimeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := op(attemptCtx)
		done <- outcome{v, err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-attemptCtx.Done():
		var zero T
		if ctx.Err() != nil {
			// Parent cancelled; the caller gave up.
			return zero, ctx.Err()
		}
		return zero, &classify.Error{
			Kind:           classify.KindTimeout,
			Retryable:      true,
			SuggestedDelay: classify.TimeoutDelay,
			Cause:          attemptCtx.Err(),
		}
	}
}

func finish[T any](e *Executor, key, outcome string, start time.Time, res Result[T]) Result[T] {
	res.Elapsed = e.clock.Now().Sub(start)
	metrics.ExecutionDuration.WithLabelValues(key, outcome).Observe(res.Elapsed.Seconds())
	return res
}
