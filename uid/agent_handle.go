package uid

import "fmt"

// AgentHandle is the mutable internal locator for an agent: which NUMA
// partition (or, in distributed mode, neighbor rank) it lives in and its
// slot within that partition. Handles change across timesteps when agents
// are rebalanced; UIDs never do.
type AgentHandle struct {
	// InAura marks a handle that refers to an agent mirrored in from a
	// neighboring rank's halo region. Single-process simulations never set
	// this; it exists solely as the distributed-mode affordance called out
	// in spec.md §9 — no behavior in this repo branches on it.
	InAura bool
	// Primary identifies the owning NUMA partition in single-process mode
	// (overloaded, in distributed mode, to mean neighbor rank — out of
	// scope here).
	Primary uint16
	// Secondary is the slot index inside the owning partition.
	Secondary uint32
}

// NewAgentHandle builds a handle for partition p, slot s.
func NewAgentHandle(p uint16, s uint32) AgentHandle {
	return AgentHandle{Primary: p, Secondary: s}
}

// InvalidHandle returns the sentinel handle, both index fields maxed out.
func InvalidHandle() AgentHandle {
	return AgentHandle{Primary: ^uint16(0), Secondary: ^uint32(0)}
}

// IsValid reports whether h is not the sentinel handle.
func (h AgentHandle) IsValid() bool {
	return h != InvalidHandle()
}

func (h AgentHandle) String() string {
	return fmt.Sprintf("partition=%d slot=%d", h.Primary, h.Secondary)
}
