package retry

import (
	"sync"

	"github.com/vietddude/resilience/metrics"
)

// Budget caps the number of executions that may be retrying at once,
// system-wide. Without a cap, retries amplify load exactly when the
// system is degraded; with one, excess callers fail fast with their last
// classified error instead of queueing more work.
//
// An execution acquires one slot when it schedules its first retry and
// holds it until the execution finishes.
type Budget struct {
	mu       sync.Mutex
	max      int
	inflight int
}

// NewBudget creates a budget allowing at most max concurrent in-flight
// retries. max <= 0 means unlimited.
func NewBudget(max int) *Budget {
	return &Budget{max: max}
}

// TryAcquire claims a retry slot. It never blocks.
func (b *Budget) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.inflight >= b.max {
		return false
	}
	b.inflight++
	metrics.InflightRetries.Inc()
	return true
}

// Release returns a previously acquired slot.
func (b *Budget) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inflight > 0 {
		b.inflight--
		metrics.InflightRetries.Dec()
	}
}

// Inflight returns the number of currently held slots.
func (b *Budget) Inflight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inflight
}
