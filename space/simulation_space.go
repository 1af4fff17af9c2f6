// Package space implements SimulationSpace: the bounding box and maximum
// interaction radius an Environment is built over, each independently
// fixed (user-supplied) or derived (recomputed from agent state).
package space

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// BoundingBox is an axis-aligned box given as integer min/max per axis,
// per spec.md §3.4.
type BoundingBox struct {
	MinX, MinY, MinZ int64
	MaxX, MaxY, MaxZ int64
}

// Dimensions returns the six bounds as spec.md §6's
// Environment.get_dimensions() contract: [minX, maxX, minY, maxY, minZ, maxZ].
func (b BoundingBox) Dimensions() [6]int64 {
	return [6]int64{b.MinX, b.MaxX, b.MinY, b.MaxY, b.MinZ, b.MaxZ}
}

// SimulationSpace carries the bounding box and interaction radius an
// Environment builds its index over. Either field may be Fixed
// (user-supplied, immutable) or Derived (recomputed each Update from
// agent state).
type SimulationSpace struct {
	BoxFixed    bool
	Box         BoundingBox
	RadiusFixed bool
	Radius      float64
	radiusSq    float64
}

// NewFixed builds a space with both box and radius fixed.
func NewFixed(box BoundingBox, radius float64) *SimulationSpace {
	s := &SimulationSpace{BoxFixed: true, Box: box, RadiusFixed: true, Radius: radius}
	s.radiusSq = radius * radius
	return s
}

// NewDerived builds a space with both box and radius derived from agent
// positions on each Update.
func NewDerived() *SimulationSpace {
	return &SimulationSpace{}
}

// InteractionRadiusSquared returns the cached square of the radius.
func (s *SimulationSpace) InteractionRadiusSquared() float64 {
	return s.radiusSq
}

// AgentView is the minimal per-agent data Update needs: position and
// diameter. Decoupled from the agent package, so space imports neither
// agent nor env (env depends on space; agent does not).
type AgentView struct {
	Position r3.Vec
	Diameter float64
}

// Update recomputes any derived field from the supplied agent snapshot.
// Per spec.md §3.4: if both fields are derived and no agents exist, Update
// is a fatal configuration error — surfaced here as a returned error
// (never silently defaulted). env/grid's Update returns it unchanged; the
// default update_environment operation escalates it via
// logrus.Fatalf per spec.md §7 kind 2.
func (s *SimulationSpace) Update(agents []AgentView) error {
	if !s.BoxFixed {
		if len(agents) == 0 {
			if !s.RadiusFixed {
				return fmt.Errorf("space: cannot derive bounding box and radius with zero agents and no fixed space")
			}
			return fmt.Errorf("space: cannot derive bounding box with zero agents")
		}
		box, err := deriveBoundingBox(agents)
		if err != nil {
			return err
		}
		s.Box = box
	}

	if !s.RadiusFixed {
		if len(agents) == 0 {
			return fmt.Errorf("space: cannot derive interaction radius with zero agents")
		}
		maxDiameter := 0.0
		for _, a := range agents {
			if a.Diameter > maxDiameter {
				maxDiameter = a.Diameter
			}
		}
		s.Radius = maxDiameter
	}

	if s.Radius < 0 {
		return fmt.Errorf("space: negative interaction radius %v", s.Radius)
	}
	s.radiusSq = s.Radius * s.Radius
	return nil
}

func deriveBoundingBox(agents []AgentView) (BoundingBox, error) {
	minX, minY, minZ := math.Inf(1), math.Inf(1), math.Inf(1)
	maxX, maxY, maxZ := math.Inf(-1), math.Inf(-1), math.Inf(-1)
	for _, a := range agents {
		p := a.Position
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		minZ, maxZ = math.Min(minZ, p.Z), math.Max(maxZ, p.Z)
	}
	return BoundingBox{
		MinX: int64(math.Floor(minX)), MaxX: int64(math.Ceil(maxX)),
		MinY: int64(math.Floor(minY)), MaxY: int64(math.Ceil(maxY)),
		MinZ: int64(math.Floor(minZ)), MaxZ: int64(math.Ceil(maxZ)),
	}, nil
}
