// Package breaker implements a keyed circuit breaker registry. Each
// operation key owns an independent CLOSED/OPEN/HALF_OPEN state machine so
// a failing dependency gets fast rejection instead of piling up timeouts.
package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/resilience/metrics"
)

// ErrOpen is returned when the circuit is open and rejecting calls.
var ErrOpen = errors.New("circuit open")

// IsOpen reports whether err is because the circuit is open.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}

// Status represents the circuit state.
type Status int

const (
	// Closed is the normal operating state. Calls flow through.
	Closed Status = iota

	// Open is the tripped state. Calls are rejected immediately.
	Open

	// HalfOpen is the recovery testing state. A single probe is allowed.
	HalfOpen
)

func (s Status) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Decision is the registry's answer to "may this call proceed".
type Decision int

const (
	// Allow admits the call normally.
	Allow Decision = iota

	// AllowProbe admits the call as the single half-open probe.
	AllowProbe

	// Reject refuses the call without invoking the operation.
	Reject
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case AllowProbe:
		return "allow-probe"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Settings configure a single circuit. Zero fields fall back to defaults.
type Settings struct {
	Threshold int           // consecutive failures before opening
	Cooldown  time.Duration // how long the circuit stays open
}

// Default values.
const (
	DefaultThreshold = 5
	DefaultCooldown  = 30 * time.Second
)

func (s Settings) withDefaults() Settings {
	if s.Threshold <= 0 {
		s.Threshold = DefaultThreshold
	}
	if s.Cooldown <= 0 {
		s.Cooldown = DefaultCooldown
	}
	return s
}

// circuit is the per-key state machine. Each circuit has its own mutex;
// unrelated keys never contend.
type circuit struct {
	key      string
	settings Settings
	clock    Clock
	log      *slog.Logger
	onChange OnStateChangeFunc

	mu                  sync.Mutex
	status              Status
	consecutiveFailures int
	lastFailureAt       time.Time
	openedAt            time.Time
	probing             bool
}

func (c *circuit) check() Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.currentStatus() {
	case Open:
		metrics.CircuitRejectionsTotal.WithLabelValues(c.key).Inc()
		return Reject
	case HalfOpen:
		if c.probing {
			metrics.CircuitRejectionsTotal.WithLabelValues(c.key).Inc()
			return Reject
		}
		c.probing = true
		return AllowProbe
	default:
		return Allow
	}
}

func (c *circuit) record(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.currentStatus() {
	case Closed:
		if success {
			c.consecutiveFailures = 0
			return
		}
		c.consecutiveFailures++
		c.lastFailureAt = c.clock.Now()
		if c.consecutiveFailures >= c.settings.Threshold {
			c.transition(Open)
		}

	case HalfOpen:
		c.probing = false
		if success {
			c.consecutiveFailures = 0
			c.transition(Closed)
			return
		}
		c.consecutiveFailures++
		c.lastFailureAt = c.clock.Now()
		c.transition(Open)

	case Open:
		// A call admitted before the circuit opened finished late. Failures
		// still count; recovery only happens through a half-open probe.
		if !success {
			c.consecutiveFailures++
			c.lastFailureAt = c.clock.Now()
		}
	}
}

// releaseProbe frees the half-open probe slot without recording an
// outcome, for probes that were cancelled mid-flight.
func (c *circuit) releaseProbe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probing = false
}

// currentStatus applies the open -> half-open transition lazily once the
// cooldown has elapsed. Callers must hold c.mu.
func (c *circuit) currentStatus() Status {
	if c.status == Open && c.clock.Now().Sub(c.openedAt) >= c.settings.Cooldown {
		c.transition(HalfOpen)
	}
	return c.status
}

func (c *circuit) transition(to Status) {
	if c.status == to {
		return
	}
	from := c.status
	c.status = to
	c.probing = false

	if to == Open {
		c.openedAt = c.clock.Now()
	}

	metrics.CircuitState.WithLabelValues(c.key).Set(float64(to))
	metrics.CircuitTransitionsTotal.WithLabelValues(c.key, to.String()).Inc()
	c.log.Info("circuit state changed",
		"key", c.key, "from", from.String(), "to", to.String(),
		"consecutive_failures", c.consecutiveFailures)

	if c.onChange != nil {
		c.onChange(c.key, from, to)
	}
}

func (c *circuit) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
	c.transition(Closed)
}

func (c *circuit) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Key:                 c.key,
		Status:              c.currentStatus().String(),
		ConsecutiveFailures: c.consecutiveFailures,
		Threshold:           c.settings.Threshold,
	}
	if !c.lastFailureAt.IsZero() {
		t := c.lastFailureAt
		s.LastFailureAt = &t
	}
	if c.status == Open {
		t := c.openedAt
		s.OpenedAt = &t
	}
	return s
}
