package uid

import (
	"sync"
	"sync/atomic"
)

// AgentUidGenerator issues AgentUids. In normal mode it hands out
// monotonically increasing indices. In defragmentation mode (enabled by
// EnterDefragMode, given a live AgentUidMap to scan) it reuses vacated
// indices, incrementing Reused by one each time, and falls back to normal
// mode automatically once no vacancies remain.
//
// Thread-safety: the normal-mode counter is an atomic fetch-add;
// defragmentation scan/issue is serialized by a mutex. GenerateUid takes
// that mutex on every call to check for queued vacancies before falling
// back to the counter.
type AgentUidGenerator struct {
	counter atomic.Uint32

	mu       sync.Mutex
	vacant   []uint32 // pending reusable indices, populated on EnterDefragMode
	scanning bool     // true while vacant[] has unconsumed entries
	reusedOf func(idx uint32) uint32
}

// NewAgentUidGenerator creates a generator starting at index 0.
func NewAgentUidGenerator() *AgentUidGenerator {
	return &AgentUidGenerator{}
}

// GenerateUid returns the next UID. In defragmentation mode it drains the
// vacant-index queue (recycling, Reused+1) before reverting to normal mode.
func (g *AgentUidGenerator) GenerateUid() AgentUid {
	g.mu.Lock()
	if g.scanning && len(g.vacant) > 0 {
		idx := g.vacant[0]
		g.vacant = g.vacant[1:]
		if len(g.vacant) == 0 {
			g.scanning = false
		}
		reused := uint32(0)
		if g.reusedOf != nil {
			reused = g.reusedOf(idx)
		}
		g.mu.Unlock()
		return AgentUid{Index: idx, Reused: reused + 1}
	}
	g.mu.Unlock()
	return New(g.counter.Add(1) - 1)
}

// HighestIndex returns the number of indices issued in normal mode, which
// is also the next fresh index (one past the highest issued so far).
func (g *AgentUidGenerator) HighestIndex() uint32 {
	return g.counter.Load()
}

// EnterDefragMode scans m for vacated slots and queues them for reuse.
// Scanning a map with no vacancies leaves the generator in normal mode.
// Thread-safety: serialized by the generator's mutex, per spec.md §4.2.
func EnterDefragMode[V any](g *AgentUidGenerator, m *AgentUidMap[V]) {
	// Only indices this generator has already issued count as vacated;
	// slots beyond the counter are unused capacity, not vacancies.
	issued := g.counter.Load()
	vacant := m.VacantIndices()
	n := 0
	for _, idx := range vacant {
		if idx < issued {
			vacant[n] = idx
			n++
		}
	}
	vacant = vacant[:n]
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vacant = vacant
	g.scanning = len(vacant) > 0
	g.reusedOf = m.ReusedAt
}

// InDefragMode reports whether the generator still has queued vacancies to
// recycle before it reverts to issuing fresh indices.
func (g *AgentUidGenerator) InDefragMode() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scanning
}
