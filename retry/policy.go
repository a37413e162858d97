// Package retry executes unreliable operations with bounded retries,
// exponential backoff with jitter, per-attempt timeouts, and per-key
// circuit breaking. Failure handling is delegated to a pluggable
// classifier so the executor never inspects raw provider errors.
package retry

import (
	"fmt"
	"time"

	"github.com/vietddude/resilience/breaker"
)

// Policy defines retry behavior for one operation type. Policies are
// immutable values configured once at startup; the built-in presets live
// in the config package.
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	UseJitter         bool
	JitterFraction    float64

	CircuitThreshold int
	CircuitCooldown  time.Duration

	// OperationTimeout bounds each individual attempt. 0 disables the
	// per-attempt timeout.
	OperationTimeout time.Duration
}

// DefaultPolicy provides sensible defaults for a generic external call.
var DefaultPolicy = Policy{
	MaxAttempts:       3,
	InitialDelay:      200 * time.Millisecond,
	MaxDelay:          5 * time.Second,
	BackoffMultiplier: 2.0,
	UseJitter:         true,
	JitterFraction:    0.2,
	CircuitThreshold:  5,
	CircuitCooldown:   30 * time.Second,
	OperationTimeout:  10 * time.Second,
}

// Validate checks policy parameters.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("maxAttempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if p.InitialDelay > p.MaxDelay {
		return fmt.Errorf("initialDelay %v exceeds maxDelay %v", p.InitialDelay, p.MaxDelay)
	}
	if p.BackoffMultiplier <= 1.0 {
		return fmt.Errorf("backoffMultiplier must be > 1.0, got %v", p.BackoffMultiplier)
	}
	if p.JitterFraction < 0 || p.JitterFraction >= 1 {
		return fmt.Errorf("jitterFraction must be in [0,1), got %v", p.JitterFraction)
	}
	if p.OperationTimeout < 0 {
		return fmt.Errorf("operationTimeout must not be negative")
	}
	return nil
}

func (p Policy) circuitSettings() breaker.Settings {
	return breaker.Settings{
		Threshold: p.CircuitThreshold,
		Cooldown:  p.CircuitCooldown,
	}
}
