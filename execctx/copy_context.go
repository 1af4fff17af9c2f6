package execctx

import (
	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/env"
	"github.com/abmcore/abmcore/rm"
	"github.com/abmcore/abmcore/uid"
)

// replacement queues a committed copy for installation over its
// original's handle slot at commit time.
type replacement struct {
	handle uid.AgentHandle
	copy   agent.Agent
}

// CopyOnWrite is the alternative ExecutionContext (spec.md §4.5/§9):
// each agent's pipeline runs against a private copy, never the original,
// so any agent processed later in the same step observes every other
// agent's last-iteration (pre-step) state when it queries neighbors.
// Committed copies atomically replace the originals at TearDownIteration.
// It disallows neighbor mutation reaching other in-flight agents and
// only supports the kForEachAgentForEachOp scheduling order (enforced by
// package sched, not here).
type CopyOnWrite struct {
	InPlace

	pendingReplace []replacement
}

// NewCopyOnWrite creates a copy-on-write ExecutionContext.
func NewCopyOnWrite(mode ThreadSafety, gen *uid.AgentUidGenerator) *CopyOnWrite {
	return &CopyOnWrite{InPlace: *NewInPlace(mode, gen)}
}

// Execute clones a, runs ops against the clone under the configured
// thread-safety mode, and queues the clone for atomic installation at
// commit — the original a is left untouched until then.
func (c *CopyOnWrite) Execute(a agent.Agent, h uid.AgentHandle, environment env.Environment, ops []AgentOp) {
	cp := a.NewCopy()
	cp.SetUid(a.Uid())
	cp.SetHandle(h)
	cp.SetBoxIdx(a.BoxIdx())

	unlock := c.acquireLocks(cp, environment)
	defer unlock()

	c.clearNeighborCache()
	for _, op := range ops {
		op.Apply(cp)
	}

	c.pendingReplace = append(c.pendingReplace, replacement{handle: h, copy: cp})
}

// ExecuteAt is Execute under the name package sched dispatches through
// uniformly across both ExecutionContext kinds.
func (c *CopyOnWrite) ExecuteAt(a agent.Agent, h uid.AgentHandle, environment env.Environment, ops []AgentOp) {
	c.Execute(a, h, environment, ops)
}

// Commit installs every queued copy over its original handle slot, in
// addition to the inherited InPlace new/remove staging.
func (c *CopyOnWrite) Commit(manager *rm.ResourceManager) []agent.Agent {
	for _, r := range c.pendingReplace {
		manager.ReplaceAt(r.handle, r.copy)
	}
	c.pendingReplace = nil
	return c.InPlace.Commit(manager)
}
