// Package rm implements ResourceManager, the authoritative agent
// container keyed by AgentUid: add/remove/iterate agents and keep the
// UID→handle registry consistent, including NUMA (re)balancing. Grounded
// on spec.md §4.4 and the teacher's partition/instance vocabulary
// (sim/cluster/simulator.go's Instances map[InstanceID]*InstanceSimulator),
// generalized to vec.AgentVector[agent.Agent] + uid.AgentUidMap[AgentHandle].
package rm

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/uid"
	"github.com/abmcore/abmcore/vec"
)

// ResourceManager owns the canonical agent storage and the UID→handle
// registry, per spec.md §4.4.
type ResourceManager struct {
	agents *vec.AgentVector[agent.Agent]
	uids   *uid.AgentUidMap[uid.AgentHandle]
	gen    *uid.AgentUidGenerator

	numPartitions int
	roundRobin    atomic.Uint32

	removeMu      sync.Mutex
	pendingRemove []uid.AgentUid
}

// New creates a ResourceManager with numPartitions NUMA partitions (0
// defaults to runtime.NumCPU(), matching AgentVector's own default) and
// the given UID generator, shared with any ExecutionContexts that mint
// UIDs for newly created agents during a step.
func New(numPartitions int, gen *uid.AgentUidGenerator) *ResourceManager {
	if numPartitions <= 0 {
		numPartitions = runtime.NumCPU()
	}
	return &ResourceManager{
		agents:        vec.New[agent.Agent](numPartitions),
		uids:          uid.NewAgentUidMap[uid.AgentHandle](1024),
		gen:           gen,
		numPartitions: numPartitions,
	}
}

// NumPartitions returns the number of NUMA partitions agents are spread
// across.
func (rm *ResourceManager) NumPartitions() int { return rm.numPartitions }

// NumAgents returns the total number of live agents.
func (rm *ResourceManager) NumAgents() int { return rm.agents.Size() }

// nextPartition round-robins across partitions for agents that do not
// name one explicitly (e.g. setup-time population seeding).
func (rm *ResourceManager) nextPartition() uint16 {
	return uint16(rm.roundRobin.Add(1) % uint32(rm.numPartitions))
}

// AddAgent registers a agent directly (used at simulation setup, not
// during a timestep — mid-step creation goes through an ExecutionContext,
// per spec.md §3.2's lifecycle). Assigns a to partition, minting a fresh
// UID if a does not already carry one. Panics if a already carries a UID
// that is currently live (spec.md §4.10: "reuse of live UID" is fatal).
func (rm *ResourceManager) AddAgent(partition int, a agent.Agent) uid.AgentUid {
	u := a.Uid()
	if u.IsSentinel() {
		u = rm.gen.GenerateUid()
		a.SetUid(u)
	} else if rm.uids.Contains(u) {
		panic(fmt.Sprintf("rm: add_agent with UID %s already live", u))
	}
	if partition < 0 {
		partition = int(rm.nextPartition())
	}
	h := rm.agents.Append(uint16(partition), a)
	a.SetHandle(h)
	rm.uids.Insert(u, h)
	return u
}

// GetAgentByUid returns the live agent named by u, or (nil, false).
func (rm *ResourceManager) GetAgentByUid(u uid.AgentUid) (agent.Agent, bool) {
	h, ok := rm.uids.Get(u)
	if !ok {
		return nil, false
	}
	return rm.agents.Get(h), true
}

// GetAgentByHandle returns the agent at h directly.
func (rm *ResourceManager) GetAgentByHandle(h uid.AgentHandle) agent.Agent {
	return rm.agents.Get(h)
}

// ReplaceAt overwrites the agent stored at handle h in place — used by
// the copy-on-write ExecutionContext to atomically install each agent's
// post-step copy at TearDownIteration.
func (rm *ResourceManager) ReplaceAt(h uid.AgentHandle, a agent.Agent) {
	rm.agents.Set(h, a)
}

// EnterDefragMode scans this manager's UID map for vacancies and arms gen
// to recycle them on its next GenerateUid calls, per spec.md §4.4's "end
// of iteration... invokes the generator's defragmentation path when
// vacancies were produced."
func (rm *ResourceManager) EnterDefragMode(gen *uid.AgentUidGenerator) {
	uid.EnterDefragMode(gen, rm.uids)
}

// Remove stages u for removal; the actual extraction happens at
// EndOfIteration, per spec.md §4.4. Safe to call while iterating.
func (rm *ResourceManager) Remove(u uid.AgentUid) {
	rm.removeMu.Lock()
	rm.pendingRemove = append(rm.pendingRemove, u)
	rm.removeMu.Unlock()
}

// ForEachAgent iterates every live agent sequentially in current handle
// order.
func (rm *ResourceManager) ForEachAgent(fn func(h uid.AgentHandle, a agent.Agent)) {
	rm.agents.ForEach(fn)
}

// ForEachAgentParallel iterates every live agent with one goroutine per
// NUMA partition, applying the optional filter predicate first. Every
// live agent is visited exactly once, per spec.md §4.4's invariant.
func (rm *ResourceManager) ForEachAgentParallel(filter func(agent.Agent) bool, fn func(h uid.AgentHandle, a agent.Agent)) {
	var wg sync.WaitGroup
	for p := 0; p < rm.numPartitions; p++ {
		wg.Add(1)
		go func(partitionIdx uint16) {
			defer wg.Done()
			rm.agents.ForEachInPartition(partitionIdx, func(slot uint32, a agent.Agent) {
				if filter != nil && !filter(a) {
					return
				}
				fn(uid.NewAgentHandle(partitionIdx, slot), a)
			})
		}(uint16(p))
	}
	wg.Wait()
}

// EndOfIteration commits staged removals and the newAgents collected from
// every worker's ExecutionContext in one bulk pass (spec.md §4.5
// "Commit at end of iteration"). Returns whether any vacancies were
// produced, so the caller can re-enter the UID generator's
// defragmentation mode. newAgents must already carry the non-sentinel
// UID their creating ExecutionContext minted; a UID already live is a
// commit-time fatal error, per spec.md §4.10. New agents are inserted
// before the staged removals are applied, so an agent added and removed
// in the same step is gone afterwards.
func (rm *ResourceManager) EndOfIteration(newAgents []agent.Agent) (vacanciesProduced bool) {
	rm.removeMu.Lock()
	toRemove := rm.pendingRemove
	rm.pendingRemove = nil
	rm.removeMu.Unlock()

	for _, a := range newAgents {
		u := a.Uid()
		if rm.uids.Contains(u) {
			panic(fmt.Sprintf("rm: commit with UID %s already live", u))
		}
		h := rm.agents.Append(uint16(rm.nextPartition()), a)
		a.SetHandle(h)
		rm.uids.Insert(u, h)
	}

	if len(toRemove) > 0 {
		rm.compactRemovals(toRemove)
		vacanciesProduced = true
	}
	return vacanciesProduced
}

// compactRemovals swap-removes every staged UID from its current
// partition and fixes up the UID map entry for whatever agent slid into
// the vacated slot.
func (rm *ResourceManager) compactRemovals(toRemove []uid.AgentUid) {
	for _, u := range toRemove {
		h, ok := rm.uids.Get(u)
		if !ok {
			// Already gone (double-remove within the same step, or never
			// lived) — removal is safe to request redundantly.
			continue
		}
		movedFrom, moved := rm.agents.SwapRemove(h)
		rm.uids.Remove(u)
		if moved {
			slid := rm.agents.Get(h)
			slid.SetHandle(h)
			rm.uids.Insert(slid.Uid(), h)
			_ = movedFrom
		}
	}
}

// BoxCoord resolves an agent's home box to 3D integer coordinates for
// Morton-ordering purposes; supplied by the caller (the load_balancing
// standalone op, which alone knows both the ResourceManager and the
// Environment's box geometry) so this package stays decoupled from any
// specific Environment implementation.
type BoxCoord func(a agent.Agent) (bx, by, bz uint32)

// SortAndBalanceNUMA reorders agents across NUMA partitions along a
// Morton (Z-order) curve over their home box coordinates so spatially
// close agents land memory-close, per spec.md §4.8. Invalidates every
// AgentHandle (and rebuilds the UID map to match) but preserves every UID
// and the agent object it names.
func (rm *ResourceManager) SortAndBalanceNUMA(boxCoord BoxCoord) {
	type keyed struct {
		a   agent.Agent
		key uint64
	}

	var all []keyed
	rm.agents.ForEach(func(_ uid.AgentHandle, a agent.Agent) {
		bx, by, bz := boxCoord(a)
		all = append(all, keyed{a: a, key: mortonEncode(bx, by, bz)})
	})
	sort.Slice(all, func(i, j int) bool { return all[i].key < all[j].key })

	per := (len(all) + rm.numPartitions - 1) / rm.numPartitions
	if per < 1 {
		per = 1
	}
	buckets := make([][]agent.Agent, rm.numPartitions)
	for i, e := range all {
		p := i / per
		if p >= rm.numPartitions {
			p = rm.numPartitions - 1
		}
		buckets[p] = append(buckets[p], e.a)
	}

	var wg sync.WaitGroup
	for p := 0; p < rm.numPartitions; p++ {
		wg.Add(1)
		go func(partitionIdx int) {
			defer wg.Done()
			rm.agents.ReplacePartition(uint16(partitionIdx), buckets[partitionIdx])
		}(p)
	}
	wg.Wait()

	newUids := uid.NewAgentUidMap[uid.AgentHandle](rm.uids.Capacity())
	var wg2 sync.WaitGroup
	for p := 0; p < rm.numPartitions; p++ {
		wg2.Add(1)
		go func(partitionIdx uint16) {
			defer wg2.Done()
			rm.agents.ForEachInPartition(partitionIdx, func(slot uint32, a agent.Agent) {
				h := uid.NewAgentHandle(partitionIdx, slot)
				a.SetHandle(h)
				// Distinct-UID concurrent Insert across partitions is
				// lock-free by the AgentUidMap contract (disjoint index
				// writes), per spec.md §4.1.
				newUids.Insert(a.Uid(), h)
			})
		}(uint16(p))
	}
	wg2.Wait()
	rm.uids = newUids
}

// mortonEncode interleaves the low 21 bits of x, y, z into a 63-bit
// Morton (Z-order) code, the classic bit-spread algorithm — grounded on
// original_source/src/core/environment/morton_order.cc's use of
// libmorton::morton3D_64_encode, reproduced here as plain bit-twiddling
// since no retrieved example repo carries a Morton-encoding library.
func mortonEncode(x, y, z uint32) uint64 {
	return spread3(uint64(x)) | spread3(uint64(y))<<1 | spread3(uint64(z))<<2
}

func spread3(x uint64) uint64 {
	x &= 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}
