// Package ops implements Operation, OperationRegistry and the default
// agent/standalone operation set the scheduler drives each step. Grounded
// on spec.md §4.6 and original_source/src/core/operation/operation.h's
// OperationImpl Setup/TearDown/Clone/row-wise-vs-column-wise split, with
// the name-keyed registry texture taken from the teacher's
// policy.NewAdmissionPolicy factory (sim/policy/admission.go) and
// EventTypePriority ordered-map constant (sim/cluster/event_heap.go).
package ops

import (
	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/env"
	"github.com/abmcore/abmcore/rm"
	"github.com/abmcore/abmcore/uid"
)

// Target distinguishes an agent-operation (fires once per agent) from a
// standalone operation (fires once per step), per spec.md §4.6.
type Target int

const (
	TargetAgent Target = iota
	TargetStandalone
)

func (t Target) String() string {
	if t == TargetStandalone {
		return "standalone"
	}
	return "agent"
}

// AgentContext is what an agent-operation implementation needs from its
// worker's ExecutionContext for the duration of one step — satisfied
// structurally by both execctx.InPlace and execctx.CopyOnWrite, so this
// package never imports execctx (which would otherwise import ops for the
// AgentOp contract, an import cycle).
type AgentContext interface {
	ForEachNeighbor(environment env.Environment, query env.Query, squaredRadius float64, fn env.NeighborFunc)
	AddAgent(a agent.Agent) uid.AgentUid
	RemoveAgent(u uid.AgentUid)
	GetAgent(u uid.AgentUid, manager *rm.ResourceManager) (agent.Agent, bool)
}

// AgentImplementation is the per-agent operation contract. SetUp binds
// this worker's environment and context once before the per-agent pass
// begins; Apply runs once per agent and alone is enough to satisfy
// execctx.AgentOp, so an AgentImplementation value can be passed directly
// into execctx.InPlace.Execute / execctx.CopyOnWrite.Execute.
type AgentImplementation interface {
	Name() string
	SetUp(environment env.Environment, ctx AgentContext)
	Apply(self agent.Agent)
	TearDown()
	Clone() AgentImplementation
}

// CacheClearer is satisfied by an ExecutionContext that supports dropping
// its cached neighbor results — execctx.InPlace.ClearNeighborCache (and,
// through embedding, execctx.CopyOnWrite).
type CacheClearer interface {
	ClearNeighborCache()
}

// Resettable is satisfied by a per-step accumulator that must be
// reinitialized after a NUMA rebalance invalidates its cached state —
// reduce.Reducer[T] and reduce.Counter's Reset method.
type Resettable interface {
	Reset()
}

// SimState is the shared, mutable simulation state a standalone
// operation may read and act on, satisfied structurally by
// sched.Scheduler so this package never imports sched (which imports ops
// to drive the pipeline), per spec.md §4.6's load_balancing/bound_space
// access pattern.
type SimState interface {
	Manager() *rm.ResourceManager
	Environment() env.Environment
	Step() int
	CacheClearers() []CacheClearer
	Resettables() []Resettable
}

// StandaloneImplementation is the once-per-step operation contract.
type StandaloneImplementation interface {
	Name() string
	Run(sim SimState)
	Clone() StandaloneImplementation
}

// Operation wraps exactly one of AgentImplementation or
// StandaloneImplementation with a name and firing frequency, per spec.md
// §4.6. Frequency<=1 fires every step; otherwise it fires on steps where
// step%Frequency==0.
type Operation struct {
	Name      string
	Frequency int
	Target    Target

	agentImpl      AgentImplementation
	standaloneImpl StandaloneImplementation
}

// NewAgentOperation builds an agent-targeted Operation.
func NewAgentOperation(name string, frequency int, impl AgentImplementation) *Operation {
	return &Operation{Name: name, Frequency: frequency, Target: TargetAgent, agentImpl: impl}
}

// NewStandaloneOperation builds a standalone-targeted Operation.
func NewStandaloneOperation(name string, frequency int, impl StandaloneImplementation) *Operation {
	return &Operation{Name: name, Frequency: frequency, Target: TargetStandalone, standaloneImpl: impl}
}

// ActiveAt reports whether this operation fires on the given 0-indexed
// step number (the scheduler's first step is 0).
func (o *Operation) ActiveAt(step int) bool {
	if o.Frequency <= 1 {
		return true
	}
	return step%o.Frequency == 0
}

// AgentImpl returns the wrapped AgentImplementation, or nil for a
// standalone operation.
func (o *Operation) AgentImpl() AgentImplementation { return o.agentImpl }

// StandaloneImpl returns the wrapped StandaloneImplementation, or nil for
// an agent operation.
func (o *Operation) StandaloneImpl() StandaloneImplementation { return o.standaloneImpl }

// Clone returns an independent copy of o with its own cloned
// implementation, for per-worker isolation (an agent operation may carry
// per-call state bound by SetUp, e.g. mechanical_forces's environment
// reference).
func (o *Operation) Clone() *Operation {
	cp := *o
	if o.agentImpl != nil {
		cp.agentImpl = o.agentImpl.Clone()
	}
	if o.standaloneImpl != nil {
		cp.standaloneImpl = o.standaloneImpl.Clone()
	}
	return &cp
}
