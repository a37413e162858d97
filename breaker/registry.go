package breaker

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// OnStateChangeFunc is called when a circuit changes state.
type OnStateChangeFunc func(key string, from, to Status)

// Snapshot is a point-in-time view of one circuit, safe to serialize for
// health endpoints. It holds no references into live state.
type Snapshot struct {
	Key                 string     `json:"key"`
	Status              string     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Threshold           int        `json:"threshold"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
}

// Registry owns one circuit per operation key. Circuits are created lazily
// on first use and live for the registry's lifetime. The registry lock
// only guards map access; each circuit carries its own mutex, so callers
// on different keys never serialize against each other.
type Registry struct {
	mu       sync.RWMutex
	circuits map[string]*circuit

	clock    Clock
	log      *slog.Logger
	onChange OnStateChangeFunc
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock for time operations. Useful for testing.
func WithClock(clock Clock) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithLogger sets the logger for state transition events.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// OnStateChange sets a hook called when any circuit changes state.
func OnStateChange(fn OnStateChangeFunc) Option {
	return func(r *Registry) { r.onChange = fn }
}

// NewRegistry creates an empty registry. Pass the registry explicitly to
// whatever needs it; tests get isolated instances instead of sharing a
// package-level singleton.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		circuits: make(map[string]*circuit),
		clock:    realClock{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check reports whether a call for key may proceed. The circuit is created
// with the given settings on first use; later calls for the same key keep
// the original settings, so use one policy per key.
func (r *Registry) Check(key string, settings Settings) Decision {
	return r.acquire(key, settings).check()
}

// Record reports the terminal outcome of a call for key. Unknown keys are
// ignored.
func (r *Registry) Record(key string, success bool) {
	if c := r.lookup(key); c != nil {
		c.record(success)
	}
}

// ReleaseProbe frees a half-open probe slot without recording an outcome.
// Used when a probe call is cancelled before completing.
func (r *Registry) ReleaseProbe(key string) {
	if c := r.lookup(key); c != nil {
		c.releaseProbe()
	}
}

// State returns a snapshot of the circuit for key.
func (r *Registry) State(key string) (Snapshot, bool) {
	c := r.lookup(key)
	if c == nil {
		return Snapshot{}, false
	}
	return c.snapshot(), true
}

// SnapshotAll returns snapshots of every circuit, sorted by key.
func (r *Registry) SnapshotAll() []Snapshot {
	r.mu.RLock()
	circuits := make([]*circuit, 0, len(r.circuits))
	for _, c := range r.circuits {
		circuits = append(circuits, c)
	}
	r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(circuits))
	for _, c := range circuits {
		snaps = append(snaps, c.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Key < snaps[j].Key })
	return snaps
}

// Reset closes the circuit for key and clears its failure count. This is
// an operator action, exposed through the health server.
func (r *Registry) Reset(key string) bool {
	c := r.lookup(key)
	if c == nil {
		return false
	}
	c.reset()
	return true
}

func (r *Registry) lookup(key string) *circuit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.circuits[key]
}

func (r *Registry) acquire(key string, settings Settings) *circuit {
	r.mu.RLock()
	c, ok := r.circuits[key]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.circuits[key]; ok {
		return c
	}
	c = &circuit{
		key:      key,
		settings: settings.withDefaults(),
		clock:    r.clock,
		log:      r.log,
		onChange: r.onChange,
	}
	r.circuits[key] = c
	return c
}
