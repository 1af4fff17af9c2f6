// Package vec provides AgentVector, the NUMA-partitioned parallel
// container used to store agents (and environment successor links)
// indexed by uid.AgentHandle.
package vec

import (
	"runtime"
	"sync"

	"github.com/abmcore/abmcore/uid"
)

// AgentVector is a partitioned collection: one inner slice per NUMA
// partition, each behind its own lock so that concurrent appends to
// distinct partitions never contend. Indexed by uid.AgentHandle
// {Primary=partition, Secondary=slot}.
type AgentVector[T any] struct {
	partitions []*partition[T]
}

type partition[T any] struct {
	mu    sync.RWMutex
	items []T
}

// New creates an AgentVector with the given number of partitions. A value
// of 0 defaults to runtime.NumCPU(), matching the teacher's
// worker-pool-sized-off-NumCPU idiom generalized here to NUMA partitions.
func New[T any](numPartitions int) *AgentVector[T] {
	if numPartitions <= 0 {
		numPartitions = runtime.NumCPU()
	}
	v := &AgentVector[T]{partitions: make([]*partition[T], numPartitions)}
	for i := range v.partitions {
		v.partitions[i] = &partition[T]{}
	}
	return v
}

// NumPartitions returns the number of NUMA partitions.
func (v *AgentVector[T]) NumPartitions() int {
	return len(v.partitions)
}

// Append adds value to the given partition and returns the handle
// assigned to it.
func (v *AgentVector[T]) Append(partitionIdx uint16, value T) uid.AgentHandle {
	p := v.partitions[partitionIdx]
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := uint32(len(p.items))
	p.items = append(p.items, value)
	return uid.NewAgentHandle(partitionIdx, idx)
}

// Get returns the value at handle h.
func (v *AgentVector[T]) Get(h uid.AgentHandle) T {
	p := v.partitions[h.Primary]
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.items[h.Secondary]
}

// Set overwrites the value at handle h.
func (v *AgentVector[T]) Set(h uid.AgentHandle, value T) {
	p := v.partitions[h.Primary]
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[h.Secondary] = value
}

// PartitionSize reports the number of live slots in one partition.
func (v *AgentVector[T]) PartitionSize(partitionIdx uint16) int {
	p := v.partitions[partitionIdx]
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Size reports the total number of slots across every partition.
func (v *AgentVector[T]) Size() int {
	total := 0
	for i := range v.partitions {
		total += v.PartitionSize(uint16(i))
	}
	return total
}

// Reserve pre-allocates capacity in the given partition to amortize
// repeated appends, matching §4.3's "reserve the successor vector" step.
func (v *AgentVector[T]) Reserve(partitionIdx uint16, capacity int) {
	p := v.partitions[partitionIdx]
	p.mu.Lock()
	defer p.mu.Unlock()
	if cap(p.items) >= capacity {
		return
	}
	grown := make([]T, len(p.items), capacity)
	copy(grown, p.items)
	p.items = grown
}

// Truncate drops partition partitionIdx back to 0 length, preserving
// capacity, used when a partition is being fully rebuilt (rebalancing,
// grid resize).
func (v *AgentVector[T]) Truncate(partitionIdx uint16) {
	p := v.partitions[partitionIdx]
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = p.items[:0]
}

// ForEachInPartition calls fn for every item in the partition, in slot
// order. fn must not mutate the partition's length.
func (v *AgentVector[T]) ForEachInPartition(partitionIdx uint16, fn func(slot uint32, value T)) {
	p := v.partitions[partitionIdx]
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i, item := range p.items {
		fn(uint32(i), item)
	}
}

// ForEach calls fn for every live item across all partitions, in handle
// order (partition, then slot). Sequential — callers needing parallelism
// drive partitions themselves via ForEachInPartition.
func (v *AgentVector[T]) ForEach(fn func(h uid.AgentHandle, value T)) {
	for pIdx := range v.partitions {
		v.ForEachInPartition(uint16(pIdx), func(slot uint32, value T) {
			fn(uid.NewAgentHandle(uint16(pIdx), slot), value)
		})
	}
}

// EnsureSet writes value at handle h, growing the partition (zero-filling
// any newly created slots) if h.Secondary is not yet covered. Used by
// env/grid to maintain its successor list indexed by an agent's real
// ResourceManager-assigned handle, which this vector's own Append-driven
// length need not have reached yet.
func (v *AgentVector[T]) EnsureSet(h uid.AgentHandle, value T) {
	p := v.partitions[h.Primary]
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(h.Secondary) >= len(p.items) {
		grown := make([]T, h.Secondary+1)
		copy(grown, p.items)
		p.items = grown
	}
	p.items[h.Secondary] = value
}

// EnsureGet is EnsureSet's read counterpart: returns the zero value for a
// slot that was never written rather than panicking.
func (v *AgentVector[T]) EnsureGet(h uid.AgentHandle) T {
	p := v.partitions[h.Primary]
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(h.Secondary) >= len(p.items) {
		var zero T
		return zero
	}
	return p.items[h.Secondary]
}

// SwapRemove deletes the item at handle h by swapping in the partition's
// last item and shrinking the partition by one slot (classic swap-remove).
// Returns the handle the swapped-in item used to occupy and whether a
// swap actually happened (false when h already named the last slot, or
// the partition was already empty) — callers maintaining a UID→handle
// index use this to know which live agent's handle just changed.
func (v *AgentVector[T]) SwapRemove(h uid.AgentHandle) (movedFrom uid.AgentHandle, moved bool) {
	p := v.partitions[h.Primary]
	p.mu.Lock()
	defer p.mu.Unlock()
	last := len(p.items) - 1
	if last < 0 || int(h.Secondary) > last {
		return uid.AgentHandle{}, false
	}
	if int(h.Secondary) != last {
		p.items[h.Secondary] = p.items[last]
		moved = true
		movedFrom = uid.NewAgentHandle(h.Primary, uint32(last))
	}
	var zero T
	p.items[last] = zero
	p.items = p.items[:last]
	return movedFrom, moved
}

// ReplacePartition swaps an entire partition's contents at once — used by
// ResourceManager.SortAndBalanceNUMA to install freshly-sorted contents
// (EndOfIteration removes agents one at a time with SwapRemove).
func (v *AgentVector[T]) ReplacePartition(partitionIdx uint16, items []T) {
	p := v.partitions[partitionIdx]
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = items
}
