// Package classify normalizes raw failures from heterogeneous providers
// (HTTP APIs, Postgres, Redis, gRPC) into a single taxonomy the retry
// executor can act on.
//
// This package contains:
//   - Error: a kind-tagged, retryability-aware wrapper around a raw failure
//   - Classifier: the seam each integration implements
//   - Default: the fallback classifier for context and network errors
//   - HTTP, Postgres, Redis, GRPC: per-integration classifiers
package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind tags a classified failure with its place in the taxonomy.
type Kind string

const (
	KindTimeout             Kind = "TIMEOUT"
	KindRateLimit           Kind = "RATE_LIMIT"
	KindPoolExhausted       Kind = "POOL_EXHAUSTED"
	KindLockContention      Kind = "LOCK_CONTENTION"
	KindServiceUnavailable  Kind = "SERVICE_UNAVAILABLE"
	KindValidation          Kind = "VALIDATION"
	KindAuth                Kind = "AUTH"
	KindNotFound            Kind = "NOT_FOUND"
	KindConstraintViolation Kind = "CONSTRAINT_VIOLATION"

	// Outcome kinds produced by the executor itself, not by classifiers.
	KindCancelled   Kind = "CANCELLED"
	KindCircuitOpen Kind = "CIRCUIT_OPEN"

	KindUnknown Kind = "UNKNOWN"
)

// Default suggested delays per retryable kind. A server-provided hint
// (Retry-After header, gRPC RetryInfo) takes precedence over these.
const (
	TimeoutDelay        = 500 * time.Millisecond
	RateLimitDelay      = 1 * time.Second
	PoolExhaustedDelay  = 1 * time.Second
	LockContentionDelay = 200 * time.Millisecond
	UnavailableDelay    = 500 * time.Millisecond
)

// Error is a classified failure. It wraps the raw provider error so callers
// can still errors.Is/As through it.
type Error struct {
	Kind      Kind
	Retryable bool

	// SuggestedDelay overrides computed backoff when non-zero, e.g. a
	// server-provided retry-after.
	SuggestedDelay time.Duration

	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Classifier maps a raw failure to a classified one. Implementations are
// integration-specific but share the same output shape so the executor
// stays generic.
type Classifier interface {
	Classify(err error) *Error
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(err error) *Error

func (f ClassifierFunc) Classify(err error) *Error {
	return f(err)
}

// As extracts a classified error from an error chain, if present.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// retryable builds a retryable classified error with its default delay.
func retryable(kind Kind, delay time.Duration, cause error) *Error {
	return &Error{Kind: kind, Retryable: true, SuggestedDelay: delay, Cause: cause}
}

// permanent builds a non-retryable classified error.
func permanent(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Retryable: false, Cause: cause}
}

// Default classifies errors every integration can produce: context
// cancellation, deadlines, and generic network timeouts. Anything it does
// not recognize is non-retryable, so unknown failures never loop.
var Default Classifier = ClassifierFunc(func(err error) *Error {
	if ce, ok := As(err); ok {
		return ce
	}

	switch {
	case errors.Is(err, context.Canceled):
		return permanent(KindCancelled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return retryable(KindTimeout, TimeoutDelay, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retryable(KindTimeout, TimeoutDelay, err)
	}

	return permanent(KindUnknown, err)
})

// Chain tries classifiers in order and returns the first classification
// that is not UNKNOWN, falling back to the last result. It lets an
// integration layer its own rules over Default.
func Chain(classifiers ...Classifier) Classifier {
	return ClassifierFunc(func(err error) *Error {
		var last *Error
		for _, c := range classifiers {
			last = c.Classify(err)
			if last != nil && last.Kind != KindUnknown {
				return last
			}
		}
		if last == nil {
			last = permanent(KindUnknown, err)
		}
		return last
	})
}
