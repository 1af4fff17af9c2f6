// Package kdtree implements an optional Environment backed by a 3D
// kd-tree (median split, alternating axis), an alternative to the
// mandatory uniform grid for workloads where agent density varies widely
// across the simulation volume. Grounded on
// original_source/src/core/environment/kd_tree_environment.h, whose
// public surface (same Update/ForEachNeighbor contract, pimpl-hidden
// internals) is reproduced here with a from-scratch balanced-median
// kd-tree build rather than a transliteration of its third-party nanoflann
// backing.
package kdtree

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/env"
	"github.com/abmcore/abmcore/space"
)

type node struct {
	agent       agent.Agent
	axis        int
	left, right *node
}

// Environment is the kd-tree-backed Environment implementation.
type Environment struct {
	sp   *space.SimulationSpace
	root *node
}

// New constructs a kd-tree Environment over sp. workers is accepted for
// interface parity with env.Constructor but unused — the median-split
// build below is sequential.
func New(sp *space.SimulationSpace, workers int) env.Environment {
	return &Environment{sp: sp}
}

// Update rebuilds the kd-tree from the current agent population.
func (e *Environment) Update(agents []agent.Agent) error {
	if len(agents) == 0 {
		if e.sp.BoxFixed && e.sp.RadiusFixed {
			e.root = nil
			return nil
		}
		return fmt.Errorf("kdtree: zero agents and the space is not fully fixed — cannot derive a volume")
	}

	views := make([]space.AgentView, len(agents))
	for i, a := range agents {
		views[i] = space.AgentView{Position: a.Position(), Diameter: a.Diameter()}
	}
	if err := e.sp.Update(views); err != nil {
		return err
	}

	cp := make([]agent.Agent, len(agents))
	copy(cp, agents)
	e.root = build(cp, 0)
	return nil
}

func build(agents []agent.Agent, depth int) *node {
	if len(agents) == 0 {
		return nil
	}
	axis := depth % 3
	sort.Slice(agents, func(i, j int) bool {
		return axisValue(agents[i].Position(), axis) < axisValue(agents[j].Position(), axis)
	})
	mid := len(agents) / 2
	n := &node{agent: agents[mid], axis: axis}
	n.left = build(agents[:mid], depth+1)
	n.right = build(agents[mid+1:], depth+1)
	return n
}

func axisValue(p r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// ForEachNeighbor descends the tree, visiting the near child first and
// the far child only when the splitting plane itself is within radius —
// the standard kd-tree radius-search pruning rule.
func (e *Environment) ForEachNeighbor(q env.Query, squaredRadius float64, fn env.NeighborFunc) {
	search(e.root, q, squaredRadius, fn)
}

func search(n *node, q env.Query, squaredRadius float64, fn env.NeighborFunc) {
	if n == nil {
		return
	}
	cand := n.agent
	if q.Agent == nil || cand != q.Agent {
		cp := cand.Position()
		dx := cp.X - q.Position.X
		dx2 := dx * dx
		if dx2 <= squaredRadius {
			dy := cp.Y - q.Position.Y
			dy2 := dy * dy
			if dx2+dy2 <= squaredRadius {
				dz := cp.Z - q.Position.Z
				dz2 := dz * dz
				sum := dx2 + dy2 + dz2
				if sum < squaredRadius {
					fn(cand, sum)
				}
			}
		}
	}

	diff := axisValue(q.Position, n.axis) - axisValue(cand.Position(), n.axis)
	near, far := n.left, n.right
	if diff > 0 {
		near, far = n.right, n.left
	}
	search(near, q, squaredRadius, fn)
	if diff*diff <= squaredRadius {
		search(far, q, squaredRadius, fn)
	}
}

// GetDimensions returns the current bounding box's six integer bounds.
func (e *Environment) GetDimensions() [6]int64 {
	return e.sp.Box.Dimensions()
}

// GetInteractionRadius returns the space's configured interaction radius.
func (e *Environment) GetInteractionRadius() float64 {
	return e.sp.Radius
}
