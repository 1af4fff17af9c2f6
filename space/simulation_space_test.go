package space

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestSimulationSpace_FixedUpdateSucceedsWithZeroAgents(t *testing.T) {
	// GIVEN a fixed space with no agents
	s := NewFixed(BoundingBox{MaxX: 100, MaxY: 100, MaxZ: 100}, 10)

	// WHEN Update runs with zero agents
	err := s.Update(nil)

	// THEN it succeeds and returns the configured box unchanged
	require.NoError(t, err)
	assert.Equal(t, int64(100), s.Box.MaxX)
	assert.Equal(t, 100.0, s.InteractionRadiusSquared())
}

func TestSimulationSpace_DerivedUpdateFatalWithZeroAgents(t *testing.T) {
	// GIVEN a fully derived space with no agents
	s := NewDerived()

	// WHEN Update runs
	err := s.Update(nil)

	// THEN it errors (core escalates to fatal, never silently defaults)
	assert.Error(t, err)
}

func TestSimulationSpace_DerivesBoxFromAgents(t *testing.T) {
	// GIVEN a derived space and agents spanning a range
	s := NewDerived()
	agents := []AgentView{
		{Position: r3.Vec{X: -5, Y: 0, Z: 0}, Diameter: 2},
		{Position: r3.Vec{X: 5, Y: 10, Z: 1}, Diameter: 4},
	}

	// WHEN Update runs
	err := s.Update(agents)
	require.NoError(t, err)

	// THEN the box covers the agents and the radius is the max diameter
	assert.Equal(t, int64(-5), s.Box.MinX)
	assert.Equal(t, int64(5), s.Box.MaxX)
	assert.Equal(t, int64(10), s.Box.MaxY)
	assert.Equal(t, 4.0, s.Radius)
	assert.Equal(t, 16.0, s.InteractionRadiusSquared())
}

func TestSimulationSpace_NegativeRadiusErrors(t *testing.T) {
	// GIVEN a space with a fixed negative radius
	s := NewFixed(BoundingBox{}, -1)

	// WHEN Update runs
	err := s.Update(nil)

	// THEN it errors
	assert.Error(t, err)
}
