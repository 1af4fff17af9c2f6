// Package env defines the Environment abstraction — the pluggable
// neighbor-query index every simulation uses to answer radius queries —
// and the init()-time factory-registration wiring its implementations
// (env/grid, env/octree, env/kdtree) use to avoid an import cycle between
// this interface package and its implementations, grounded directly on
// the teacher's sim/kv/register.go and sim/latency/register.go pattern.
package env

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/space"
)

// Query names what ForEachNeighbor searches around: either an agent
// (excluded from its own result set, and whose cached BoxIdx may be used
// as a fast path) or a bare position.
type Query struct {
	Agent    agent.Agent // nil for a point query
	Position r3.Vec
}

// ForAgent builds a Query centered on a, using a's current position.
func ForAgent(a agent.Agent) Query {
	return Query{Agent: a, Position: a.Position()}
}

// ForPoint builds a Query centered on an arbitrary position with no
// excluded agent.
func ForPoint(p r3.Vec) Query {
	return Query{Position: p}
}

// NeighborFunc is invoked once per candidate neighbor found by
// ForEachNeighbor, with the squared distance from the query point.
type NeighborFunc func(candidate agent.Agent, squaredDistance float64)

// Environment is the neighbor-query abstraction every simulation step
// updates once and queries many times against, per spec.md §3.4, §4.3, §6.
type Environment interface {
	// Update rebuilds the spatial index from the current agent population.
	// Per spec.md §4.3: fatal (returned as an error, escalated by the
	// caller) if the space cannot be derived from zero agents.
	Update(agents []agent.Agent) error

	// ForEachNeighbor invokes fn for every live agent within squaredRadius
	// of query, excluding query.Agent itself when set. Fatal (panics) if
	// squaredRadius exceeds the implementation's maximum supported radius
	// squared, per spec.md §4.3/§4.10.
	ForEachNeighbor(query Query, squaredRadius float64, fn NeighborFunc)

	// GetDimensions returns [minX, maxX, minY, maxY, minZ, maxZ].
	GetDimensions() [6]int64

	// GetInteractionRadius returns the space's configured radius.
	GetInteractionRadius() float64
}

// Constructor builds an Environment over the given simulation space, using
// up to workers goroutines for parallel index construction.
type Constructor func(sp *space.SimulationSpace, workers int) Environment

// NewGridEnvironmentFunc is set by env/grid's register.go at import time.
var NewGridEnvironmentFunc Constructor

// NewOctreeEnvironmentFunc is set by env/octree's register.go at import time.
var NewOctreeEnvironmentFunc Constructor

// NewKdtreeEnvironmentFunc is set by env/kdtree's register.go at import time.
var NewKdtreeEnvironmentFunc Constructor

// New dispatches to the named implementation's registered constructor.
// Valid names: "grid", "octree", "kdtree". The caller's main package (or
// test) must blank-import the corresponding sub-package so its register.go
// init() has run; an unregistered name is a configuration error (fatal at
// the call site per spec.md §7 kind 2, surfaced here as a panic since it
// can only happen from a programming mistake in wiring, never user input
// reachable at runtime without a code change).
func New(kind string, sp *space.SimulationSpace, workers int) Environment {
	var ctor Constructor
	switch kind {
	case "grid":
		ctor = NewGridEnvironmentFunc
	case "octree":
		ctor = NewOctreeEnvironmentFunc
	case "kdtree":
		ctor = NewKdtreeEnvironmentFunc
	default:
		panic("env: unknown environment kind " + kind)
	}
	if ctor == nil {
		panic("env: environment kind " + kind + " not registered — blank-import its package")
	}
	return ctor(sp, workers)
}
