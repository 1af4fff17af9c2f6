package kdtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/env"
	"github.com/abmcore/abmcore/space"
)

func TestMatchesGridResultSet(t *testing.T) {
	sp := space.NewFixed(space.BoundingBox{MinX: 0, MaxX: 60, MinY: 0, MaxY: 60, MinZ: 0, MaxZ: 60}, 30)
	environment := New(sp, 2)

	var agents []agent.Agent
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 4; z++ {
				pos := r3.Vec{X: float64(x * 20), Y: float64(y * 20), Z: float64(z * 20)}
				agents = append(agents, agent.NewTest(pos, 30, 0))
			}
		}
	}
	require.NoError(t, environment.Update(agents))

	origin := agents[0]
	var found []agent.Agent
	environment.ForEachNeighbor(env.ForAgent(origin), 900, func(cand agent.Agent, d2 float64) {
		found = append(found, cand)
	})
	assert.Len(t, found, 7)
}

func TestCrossAxisPointProbe(t *testing.T) {
	sp := space.NewFixed(space.BoundingBox{MinX: -10, MaxX: 10, MinY: -10, MaxY: 10, MinZ: -10, MaxZ: 10}, 4)
	environment := New(sp, 1)

	a1 := agent.NewTest(r3.Vec{X: 0, Y: 0, Z: 0}, 2, 1)
	a2 := agent.NewTest(r3.Vec{X: 5, Y: 0, Z: 0}, 4, 2)
	a3 := agent.NewTest(r3.Vec{X: 0, Y: -2.5, Z: 0}, 2, 3)
	agents := []agent.Agent{a1, a2, a3}
	require.NoError(t, environment.Update(agents))

	var found []agent.Agent
	environment.ForEachNeighbor(env.ForPoint(r3.Vec{X: 0, Y: -0.8, Z: 0}), 4, func(cand agent.Agent, d2 float64) {
		found = append(found, cand)
	})
	assert.ElementsMatch(t, []agent.Agent{a1, a3}, found)
}

func TestEmptyDerivedIsFatal(t *testing.T) {
	sp := space.NewDerived()
	environment := New(sp, 1)
	assert.Error(t, environment.Update(nil))
}
