// Package agent defines the Agent and Behavior capability traits and a
// base implementation agents embed, plus the reference Test agent used by
// the core's end-to-end test scenarios.
package agent

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abmcore/abmcore/uid"
)

// Agent is the capability set every simulated entity must expose, per
// spec.md §6. Concrete kinds (cells, test agents, user-defined kinds)
// satisfy it by embedding Base and overriding as needed.
type Agent interface {
	Uid() uid.AgentUid
	SetUid(uid.AgentUid)

	Handle() uid.AgentHandle
	SetHandle(uid.AgentHandle)

	BoxIdx() uint64
	SetBoxIdx(uint64)

	Position() r3.Vec
	SetPosition(r3.Vec)

	Diameter() float64
	SetDiameter(float64)

	Behaviors() []Behavior
	AddBehavior(Behavior)
	RemoveBehavior(Behavior)

	// Lock exposes the per-instance lock for opt-in user synchronization
	// (spec.md §3.2, §5 "user-specified" thread-safety mode).
	Lock()
	Unlock()

	// IsStatic/SetStatic expose the "not moved since last iteration" flag
	// the default update_staticness/propagate_staticness operations
	// maintain (spec.md §9's "staticness" glossary entry).
	IsStatic() bool
	SetStatic(bool)

	NewCopy() Agent
	NewDefault() Agent

	CalculateDisplacement(force r3.Vec, squaredRadius float64, dt float64) r3.Vec
	ApplyDisplacement(d r3.Vec)
	RunDiscretization()
}

// Base implements Agent and is meant to be embedded by concrete agent
// kinds. Grounded on original_source/src/core/agent/agent.h's field set
// and the teacher's plain-struct-with-methods style (sim/request.go).
type Base struct {
	mu sync.Mutex

	id       uid.AgentUid
	handle   uid.AgentHandle
	boxIdx   uint64
	position r3.Vec
	diameter float64
	behaviors []Behavior

	// staticness: not-yet-moved flag consumed by the default displacement
	// pipeline ops (update_staticness/propagate_staticness), per spec.md
	// §9's "staticness" glossary entry. Left for the embedding kind / the
	// ops package to read and set; Base itself only clears it, in
	// ApplyDisplacement.
	Static bool
}

func (b *Base) Uid() uid.AgentUid           { return b.id }
func (b *Base) SetUid(u uid.AgentUid)       { b.id = u }
func (b *Base) Handle() uid.AgentHandle     { return b.handle }
func (b *Base) SetHandle(h uid.AgentHandle) { b.handle = h }
func (b *Base) BoxIdx() uint64              { return b.boxIdx }
func (b *Base) SetBoxIdx(idx uint64)        { b.boxIdx = idx }
func (b *Base) Position() r3.Vec            { return b.position }
func (b *Base) SetPosition(p r3.Vec)        { b.position = p }
func (b *Base) Diameter() float64           { return b.diameter }
func (b *Base) SetDiameter(d float64)       { b.diameter = d }

func (b *Base) Behaviors() []Behavior { return b.behaviors }

func (b *Base) AddBehavior(bh Behavior) {
	b.behaviors = append(b.behaviors, bh)
}

// RemoveBehavior deletes bh from the behavior list. Driving the per-agent
// pipeline's "behavior" operation (ops/defaults.go) is responsible for the
// run_bm_loop_idx_ index-adjustment rule from spec.md §9 when a behavior
// removes an earlier-or-current entry mid-iteration; RemoveBehavior itself
// only performs the removal.
func (b *Base) RemoveBehavior(bh Behavior) {
	for i, existing := range b.behaviors {
		if existing == bh {
			b.behaviors = append(b.behaviors[:i], b.behaviors[i+1:]...)
			return
		}
	}
}

func (b *Base) Lock()   { b.mu.Lock() }
func (b *Base) Unlock() { b.mu.Unlock() }

func (b *Base) IsStatic() bool    { return b.Static }
func (b *Base) SetStatic(s bool) { b.Static = s }

// CalculateDisplacement computes the position delta from an accumulated
// mechanical force, using gonum's r3 vector arithmetic (promoted from the
// teacher's indirect-only gonum dependency).
func (b *Base) CalculateDisplacement(force r3.Vec, squaredRadius float64, dt float64) r3.Vec {
	// Overdamped-motion approximation: displacement proportional to force
	// and timestep, scaled by dt/squaredRadius. The scale depends only on
	// the squaredRadius argument (mechanical_forces passes the square of
	// the environment's interaction radius), not on the agent's diameter.
	if squaredRadius <= 0 {
		return r3.Vec{}
	}
	scale := dt / squaredRadius
	return r3.Scale(scale, force)
}

// ApplyDisplacement adds d to the agent's position and clears Static,
// since the agent has now moved.
func (b *Base) ApplyDisplacement(d r3.Vec) {
	if d == (r3.Vec{}) {
		return
	}
	b.position = r3.Add(b.position, d)
	b.Static = false
}

// RunDiscretization is a no-op hook point: user kinds that need per-step
// spatial refinement (e.g. cell division along a discretized growth axis)
// override it. Base provides the default empty implementation so
// embedding kinds are not required to supply one.
func (b *Base) RunDiscretization() {}
