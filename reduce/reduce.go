// Package reduce implements Reducer and Counter: per-worker accumulators
// that fold over the live agent population in one parallel pass and
// combine deterministically, per spec.md §4.9. Grounded on the teacher's
// RunningBatchFeatures per-step accumulator-struct idiom (sim/simulator.go),
// generalized from a single accumulator to one per worker.
package reduce

import (
	"sync"

	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/rm"
	"github.com/abmcore/abmcore/uid"
)

// cacheLineSize keeps consecutive per-worker accumulators on separate
// cache lines — false sharing would otherwise serialize the very
// parallel pass this type exists to speed up. 64 bytes is the common x86
// cache-line size; sized generously rather than exactly, since the exact
// value is irrelevant to correctness.
const cacheLineSize = 64

// Reducer folds agent.Agent values into a T via an associative combine
// function, across rm.ResourceManager's NUMA partitions in parallel, with
// an optional filter predicate. Grounded on spec.md §4.9.
type Reducer[T any] struct {
	zero    func() T
	fold    func(acc T, a agent.Agent) T
	combine func(a, b T) T

	mu   sync.Mutex
	accs []paddedAccumulator[T]
}

type paddedAccumulator[T any] struct {
	value T
	_     [cacheLineSize]byte
}

// New builds a Reducer with the given identity, per-agent fold, and
// pairwise combine functions.
func New[T any](zero func() T, fold func(acc T, a agent.Agent) T, combine func(a, b T) T) *Reducer[T] {
	return &Reducer[T]{zero: zero, fold: fold, combine: combine}
}

// Run executes one parallel pass over manager's live agents (filtered by
// the optional predicate, nil meaning "every agent"), one accumulator per
// worker, and returns the deterministically combined result. Safe without
// extra locking: ForEachAgentParallel runs exactly one goroutine per NUMA
// partition and each only ever touches its own partition's handles, so
// concurrent writes to r.accs[h.Primary] never collide across workers.
func (r *Reducer[T]) Run(manager *rm.ResourceManager, filter func(agent.Agent) bool) T {
	n := manager.NumPartitions()
	r.accs = make([]paddedAccumulator[T], n)
	for i := range r.accs {
		r.accs[i].value = r.zero()
	}

	manager.ForEachAgentParallel(filter, func(h uid.AgentHandle, a agent.Agent) {
		r.accs[h.Primary].value = r.fold(r.accs[h.Primary].value, a)
	})

	result := r.zero()
	for i := range r.accs {
		result = r.combine(result, r.accs[i].value)
	}
	return result
}

// Reset reinitializes this reducer's accumulators. Must be invoked after
// any ResourceManager.SortAndBalanceNUMA call, since partition assignment
// (and thus any partition-indexed cached state) changes underneath a
// reducer that has not yet run again — the default load_balancing
// standalone op does this for every registered Reducer, per spec.md §9.
func (r *Reducer[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accs = nil
}

// Counter is the common Reducer[int] specialization: counts live agents
// matching an optional predicate.
type Counter struct {
	r *Reducer[int]
}

// NewCounter builds a Counter.
func NewCounter() *Counter {
	return &Counter{r: New(
		func() int { return 0 },
		func(acc int, _ agent.Agent) int { return acc + 1 },
		func(a, b int) int { return a + b },
	)}
}

// Count returns the number of live agents in manager matching filter (nil
// counts every agent), per spec.md §8 scenario 1's counting-by-predicate
// test.
func (c *Counter) Count(manager *rm.ResourceManager, filter func(agent.Agent) bool) int {
	return c.r.Run(manager, filter)
}

// Reset reinitializes the underlying reducer's accumulators, per the
// same post-rebalance contract as Reducer.Reset.
func (c *Counter) Reset() { c.r.Reset() }
