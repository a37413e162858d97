package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/resilience/breaker"
	"github.com/vietddude/resilience/classify"
)

// Option configures an Executor.
type Option func(*Executor)

// WithRegistry sets the circuit breaker registry. Executors sharing a
// registry share circuit state per key.
func WithRegistry(r *breaker.Registry) Option {
	return func(e *Executor) { e.circuits = r }
}

// WithClassifier sets the failure classifier. Build one executor per
// integration (HTTP, Postgres, ...) with its matching classifier.
func WithClassifier(c classify.Classifier) Option {
	return func(e *Executor) { e.classifier = c }
}

// WithBudget sets the shared retry budget. Nil means unlimited retries.
func WithBudget(b *Budget) Option {
	return func(e *Executor) { e.budget = b }
}

// WithLogger sets the logger for retry and outcome events.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// WithClock sets the clock for time operations. Useful for testing.
func WithClock(clock breaker.Clock) Option {
	return func(e *Executor) { e.clock = clock }
}

// WithSleep replaces the backoff sleep. Tests use this to record delays
// instead of actually waiting.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}
