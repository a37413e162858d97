// Package pipeline chains retry-wrapped stages into a graceful
// degradation path: each stage only runs if the previous one failed, and
// the caller always receives a structured result naming which stage
// served it, instead of an opaque failure.
//
// Typical use: vector-similarity search, then keyword search, then an
// explicit empty result.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/vietddude/resilience/classify"
	"github.com/vietddude/resilience/retry"
)

// Stage is one fallback level: a labeled, policy-bound operation.
type Stage[T any] struct {
	// Label identifies the stage in results and logs.
	Label string

	// Key is the circuit breaker key, usually distinct per stage so a
	// broken primary does not poison its fallback.
	Key string

	Policy retry.Policy

	Run func(ctx context.Context) (T, error)
}

// Result reports the pipeline outcome with full provenance.
type Result[T any] struct {
	Value   T
	Success bool

	// ServedBy is the label of the stage that produced the value.
	ServedBy string

	// Degraded reports that a fallback stage, not the first one, served
	// the result.
	Degraded bool

	// StageFailed records, for every stage that ran, whether it failed.
	StageFailed map[string]bool

	// StageErrors holds the classified error of each failed stage.
	StageErrors map[string]*classify.Error

	// Stages holds the full retry result of every stage that ran, in
	// execution order.
	Stages []retry.Result[T]
}

// Err returns nil on success, or an aggregate error naming every stage's
// classified failure.
func (r Result[T]) Err() error {
	if r.Success {
		return nil
	}
	parts := make([]string, 0, len(r.Stages))
	for _, sr := range r.Stages {
		if sr.Err != nil {
			parts = append(parts, sr.Err.Error())
		}
	}
	return &AllFailedError{Message: strings.Join(parts, "; ")}
}

// AllFailedError reports that every stage of a pipeline failed.
type AllFailedError struct {
	Message string
}

func (e *AllFailedError) Error() string {
	return fmt.Sprintf("all stages failed: %s", e.Message)
}

// Run executes stages in order through the executor, short-circuiting on
// the first success. A cancelled stage stops the pipeline; falling
// through to cheaper stages is pointless once the caller has gone away.
func Run[T any](ctx context.Context, exec *retry.Executor, stages []Stage[T]) Result[T] {
	res := Result[T]{
		StageFailed: make(map[string]bool, len(stages)),
		StageErrors: make(map[string]*classify.Error, len(stages)),
	}

	for i, stage := range stages {
		sr := retry.Do(ctx, exec, stage.Key, stage.Policy, stage.Run)
		res.Stages = append(res.Stages, sr)

		if sr.Success {
			res.Success = true
			res.Value = sr.Value
			res.ServedBy = stage.Label
			res.Degraded = i > 0
			res.StageFailed[stage.Label] = false
			return res
		}

		res.StageFailed[stage.Label] = true
		res.StageErrors[stage.Label] = sr.Err

		if sr.Err != nil && sr.Err.Kind == classify.KindCancelled {
			return res
		}
	}

	return res
}
