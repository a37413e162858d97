package retry

import (
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/resilience/classify"
)

// AttemptRecord describes one failed attempt and the delay applied before
// the next one. Records are append-only per execution.
type AttemptRecord struct {
	Attempt int             `json:"attempt"`
	Err     *classify.Error `json:"-"`
	Kind    classify.Kind   `json:"kind"`
	Delay   time.Duration   `json:"delay"`
	At      time.Time       `json:"at"`
}

// Result is the outcome of a whole execution. It is owned exclusively by
// the caller and holds no references into shared circuit state.
type Result[T any] struct {
	// ID correlates log lines and records belonging to one execution.
	ID uuid.UUID

	Success bool
	Value   T
	Err     *classify.Error

	Attempts int
	Elapsed  time.Duration

	// CircuitOpen reports that the call was rejected without invoking the
	// operation at all.
	CircuitOpen bool

	// BudgetExhausted reports that retries were abandoned because the
	// system-wide retry budget was full.
	BudgetExhausted bool

	History []AttemptRecord
}

// Unwrap returns the classified error as a plain error, nil on success.
func (r Result[T]) Unwrap() (T, error) {
	if r.Success {
		return r.Value, nil
	}
	if r.Err == nil {
		return r.Value, nil
	}
	return r.Value, r.Err
}
