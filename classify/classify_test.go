package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestDefault(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"context canceled", context.Canceled, KindCancelled, false},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout, true},
		{"net timeout", &fakeNetError{timeout: true}, KindTimeout, true},
		{"net non-timeout", &fakeNetError{timeout: false}, KindUnknown, false},
		{"unknown error", errors.New("something odd"), KindUnknown, false},
		{"wrapped cancel", fmt.Errorf("op: %w", context.Canceled), KindCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := Default.Classify(tt.err)
			if ce.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", ce.Kind, tt.kind)
			}
			if ce.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", ce.Retryable, tt.retryable)
			}
		})
	}
}

func TestDefault_PassesThroughClassified(t *testing.T) {
	orig := &Error{Kind: KindRateLimit, Retryable: true, SuggestedDelay: 2 * time.Second}
	wrapped := fmt.Errorf("call failed: %w", orig)

	ce := Default.Classify(wrapped)
	if ce != orig {
		t.Errorf("expected the original classified error, got %+v", ce)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	ce := &Error{Kind: KindTimeout, Retryable: true, Cause: cause}

	if !errors.Is(ce, cause) {
		t.Error("errors.Is should reach the cause through the classified error")
	}
	if ce.Error() != "TIMEOUT: boom" {
		t.Errorf("Error() = %q", ce.Error())
	}
}

func TestChain(t *testing.T) {
	unknown := ClassifierFunc(func(err error) *Error {
		return &Error{Kind: KindUnknown, Cause: err}
	})
	rateLimit := ClassifierFunc(func(err error) *Error {
		return &Error{Kind: KindRateLimit, Retryable: true, Cause: err}
	})

	ce := Chain(unknown, rateLimit).Classify(errors.New("x"))
	if ce.Kind != KindRateLimit {
		t.Errorf("kind = %s, want RATE_LIMIT", ce.Kind)
	}

	ce = Chain(unknown, unknown).Classify(errors.New("x"))
	if ce.Kind != KindUnknown {
		t.Errorf("kind = %s, want UNKNOWN", ce.Kind)
	}
}
