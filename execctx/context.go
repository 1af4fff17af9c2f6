// Package execctx implements ExecutionContext: the per-worker staging
// area that buffers agent creation/removal during a timestep and runs
// the per-agent operation pipeline under the configured thread-safety
// mode, with optional neighbor-query caching. Grounded on spec.md §4.5/§9
// and original_source/src/core/execution_context/in_place_exec_ctxt.h/.cc
// and copy_execution_context.h/.cc.
package execctx

import (
	"fmt"
	"sort"
	"sync"

	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/env"
	"github.com/abmcore/abmcore/rm"
	"github.com/abmcore/abmcore/uid"
)

// ThreadSafety selects how Execute guards an agent against concurrent
// access by other workers, per spec.md §4.5.
type ThreadSafety int

const (
	// ThreadSafetyNone takes no lock at all.
	ThreadSafetyNone ThreadSafety = iota
	// ThreadSafetyAutomatic acquires the environment's box-level mutex
	// set covering the agent's home box plus its 26 Moore neighbors.
	ThreadSafetyAutomatic
	// ThreadSafetyUserSpecified defers to the agent's own declared lock
	// set (see LockSet).
	ThreadSafetyUserSpecified
)

// AgentOp is the minimal interface the execution context needs from an
// agent-operation implementation to drive the per-agent pipeline —
// defined locally so execctx does not depend on package ops; ops does not
// import execctx either (its AgentContext is satisfied structurally).
type AgentOp interface {
	Apply(self agent.Agent)
}

// LockSet is implemented by an agent kind that opts into user-specified
// thread-safety mode: it names the extra locks it needs acquired before
// its pipeline runs, beyond its own per-instance lock (spec.md §4.5
// "user-specified").
type LockSet interface {
	RequiredLocks() []sync.Locker
}

// neighborMutexer is implemented by an Environment that supports
// automatic thread-safety mode — env/grid.Environment does, by exposing
// its per-box insertion spinlocks as a Moore-neighborhood mutex set.
type neighborMutexer interface {
	NeighborMutexes(boxIdx uint64) []*sync.Mutex
}

type newAgentEntry struct {
	agent agent.Agent
}

type neighborEntry struct {
	agent           agent.Agent
	squaredDistance float64
}

// InPlace is the default ExecutionContext: operations mutate the agent
// directly. One instance per worker thread.
type InPlace struct {
	mode ThreadSafety
	gen  *uid.AgentUidGenerator

	pendingNew    []agent.Agent
	pendingRemove []uid.AgentUid
	newAgentMap   map[uid.AgentUid]newAgentEntry

	neighborCache      []neighborEntry
	neighborCacheValid bool
}

// NewInPlace creates an in-place ExecutionContext with the given
// thread-safety mode, minting new UIDs from gen (shared across every
// worker's context and the ResourceManager's setup-time inserts).
func NewInPlace(mode ThreadSafety, gen *uid.AgentUidGenerator) *InPlace {
	return &InPlace{mode: mode, gen: gen, newAgentMap: make(map[uid.AgentUid]newAgentEntry)}
}

// SetupIteration flushes any residue from the previous step — spec.md
// §2's SetupIterationAll, run before Environment::Update each step.
func (c *InPlace) SetupIteration() {
	c.pendingNew = nil
	c.pendingRemove = nil
	for k := range c.newAgentMap {
		delete(c.newAgentMap, k)
	}
	c.clearNeighborCache()
}

// AddAgent mints a UID, stages a for insertion at commit, and makes it
// reachable through GetAgent for the remainder of this iteration, per
// spec.md §4.5.
func (c *InPlace) AddAgent(a agent.Agent) uid.AgentUid {
	u := c.gen.GenerateUid()
	a.SetUid(u)
	c.pendingNew = append(c.pendingNew, a)
	c.newAgentMap[u] = newAgentEntry{agent: a}
	return u
}

// RemoveAgent stages u for removal at commit.
func (c *InPlace) RemoveAgent(u uid.AgentUid) {
	c.pendingRemove = append(c.pendingRemove, u)
}

// GetAgent first consults manager, then falls back to this iteration's
// newly created agents, so lookups during the same iteration see
// freshly created agents regardless of which worker created them, per
// spec.md §4.5.
func (c *InPlace) GetAgent(u uid.AgentUid, manager *rm.ResourceManager) (agent.Agent, bool) {
	if a, ok := manager.GetAgentByUid(u); ok {
		return a, true
	}
	if e, ok := c.newAgentMap[u]; ok {
		return e.agent, true
	}
	return nil, false
}

// Execute runs ops over a in declared order, under the configured
// thread-safety mode's lock set, clearing the neighbor cache first
// (spec.md §4.5's four-step per-agent pipeline).
func (c *InPlace) Execute(a agent.Agent, environment env.Environment, ops []AgentOp) {
	unlock := c.acquireLocks(a, environment)
	defer unlock()

	c.clearNeighborCache()
	for _, op := range ops {
		op.Apply(a)
	}
}

// ExecuteAt is Execute with an unused handle parameter, present so
// package sched can drive InPlace and CopyOnWrite worker contexts through
// one uniform interface — InPlace never needs the handle since it mutates
// agents in place, CopyOnWrite needs it to know where to install the
// committed copy.
func (c *InPlace) ExecuteAt(a agent.Agent, _ uid.AgentHandle, environment env.Environment, ops []AgentOp) {
	c.Execute(a, environment, ops)
}

func (c *InPlace) acquireLocks(a agent.Agent, environment env.Environment) func() {
	switch c.mode {
	case ThreadSafetyNone:
		return func() {}
	case ThreadSafetyUserSpecified:
		if ls, ok := a.(LockSet); ok {
			locks := append([]sync.Locker(nil), ls.RequiredLocks()...)
			sortLocks(locks)
			for _, l := range locks {
				l.Lock()
			}
			return func() {
				for i := len(locks) - 1; i >= 0; i-- {
					locks[i].Unlock()
				}
			}
		}
		a.Lock()
		return a.Unlock
	default: // ThreadSafetyAutomatic
		if nm, ok := environment.(neighborMutexer); ok {
			mutexes := nm.NeighborMutexes(a.BoxIdx())
			for _, m := range mutexes {
				m.Lock()
			}
			return func() {
				for i := len(mutexes) - 1; i >= 0; i-- {
					mutexes[i].Unlock()
				}
			}
		}
		a.Lock()
		return a.Unlock
	}
}

// sortLocks orders a lock set by pointer identity so any two workers
// requesting an overlapping set always acquire the shared members in the
// same order — the deadlock-free lock-ordering rule of spec.md §4.5/§5.
func sortLocks(locks []sync.Locker) {
	sort.Slice(locks, func(i, j int) bool {
		return fmt.Sprintf("%p", locks[i]) < fmt.Sprintf("%p", locks[j])
	})
}

// ForEachNeighbor delegates to the environment once per agent-processing
// call (i.e. since the last clearNeighborCache) and populates the cache
// as it goes; subsequent calls within the same agent-processing call
// replay the cache, filtered by the caller's own squared radius, per
// spec.md §4.5.
func (c *InPlace) ForEachNeighbor(environment env.Environment, query env.Query, squaredRadius float64, fn env.NeighborFunc) {
	if !c.neighborCacheValid {
		environment.ForEachNeighbor(query, squaredRadius, func(cand agent.Agent, d2 float64) {
			c.neighborCache = append(c.neighborCache, neighborEntry{agent: cand, squaredDistance: d2})
			fn(cand, d2)
		})
		c.neighborCacheValid = true
		return
	}
	for _, e := range c.neighborCache {
		if e.squaredDistance <= squaredRadius {
			fn(e.agent, e.squaredDistance)
		}
	}
}

func (c *InPlace) clearNeighborCache() {
	c.neighborCache = c.neighborCache[:0]
	c.neighborCacheValid = false
}

// ClearNeighborCache drops any cached neighbor results. Exposed for the
// load-balancing safe policy (spec.md §9): after
// ResourceManager.SortAndBalanceNUMA, every live context's cache must be
// cleared since cached neighbor pointers may reference stale handles.
func (c *InPlace) ClearNeighborCache() { c.clearNeighborCache() }

// Commit transfers this context's staged work to manager: pending
// removals are pushed into the manager's own pending-removal queue
// immediately (cheap and already thread-safe); pending new agents are
// returned so the caller (Scheduler) can gather every context's new
// agents into one bulk ResourceManager.EndOfIteration call, matching
// spec.md §4.5's "single bulk operation" commit step. Clears this
// context's own staged state and new-agent map.
func (c *InPlace) Commit(manager *rm.ResourceManager) []agent.Agent {
	for _, u := range c.pendingRemove {
		manager.Remove(u)
	}
	newAgents := c.pendingNew
	c.pendingNew = nil
	c.pendingRemove = nil
	for k := range c.newAgentMap {
		delete(c.newAgentMap, k)
	}
	return newAgents
}
