package execctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/env"
	"github.com/abmcore/abmcore/env/grid"
	"github.com/abmcore/abmcore/rm"
	"github.com/abmcore/abmcore/space"
	"github.com/abmcore/abmcore/uid"
)

type incrementOp struct{ calls *int }

func (o incrementOp) Apply(self agent.Agent) { *o.calls++ }

func TestExecuteRunsOpsInOrder(t *testing.T) {
	var order []int
	gen := uid.NewAgentUidGenerator()
	ctx := NewInPlace(ThreadSafetyNone, gen)
	a := agent.NewTest(r3.Vec{}, 1, 0)

	sp := space.NewFixed(space.BoundingBox{MinX: 0, MaxX: 10, MinY: 0, MaxY: 10, MinZ: 0, MaxZ: 10}, 1)
	environment := grid.New(sp, 1)
	require.NoError(t, environment.Update([]agent.Agent{a}))

	ops := []AgentOp{
		opFunc(func(agent.Agent) { order = append(order, 1) }),
		opFunc(func(agent.Agent) { order = append(order, 2) }),
		opFunc(func(agent.Agent) { order = append(order, 3) }),
	}
	ctx.Execute(a, environment, ops)
	assert.Equal(t, []int{1, 2, 3}, order)
}

type opFunc func(agent.Agent)

func (f opFunc) Apply(self agent.Agent) { f(self) }

// TestAddAgentVisibleWithinSameIteration covers spec.md §4.5: a lookup
// during the same iteration sees an agent freshly created by this
// context but not yet committed to the ResourceManager.
func TestAddAgentVisibleWithinSameIteration(t *testing.T) {
	manager := rm.New(1, uid.NewAgentUidGenerator())
	gen := uid.NewAgentUidGenerator()
	ctx := NewInPlace(ThreadSafetyNone, gen)

	a := agent.NewTest(r3.Vec{}, 1, 0)
	u := ctx.AddAgent(a)

	_, ok := manager.GetAgentByUid(u)
	assert.False(t, ok, "not yet committed to the manager")

	got, ok := ctx.GetAgent(u, manager)
	require.True(t, ok)
	assert.Same(t, a, got)
}

// TestCommitInsertsNewAgents covers the commit step: new agents return
// from Commit for the caller to bulk-insert into the ResourceManager.
func TestCommitInsertsNewAgents(t *testing.T) {
	manager := rm.New(1, uid.NewAgentUidGenerator())
	gen := uid.NewAgentUidGenerator()
	ctx := NewInPlace(ThreadSafetyNone, gen)

	a := agent.NewTest(r3.Vec{}, 1, 0)
	u := ctx.AddAgent(a)

	newAgents := ctx.Commit(manager)
	manager.EndOfIteration(newAgents)

	got, ok := manager.GetAgentByUid(u)
	require.True(t, ok)
	assert.Same(t, a, got)
}

// TestNeighborCacheReplayedWithinCall covers spec.md §4.5's
// cache-lifetime-is-one-call contract: a second ForEachNeighbor call
// before the next Execute's cache clear replays cached results instead
// of re-querying the environment.
func TestNeighborCacheReplayedWithinCall(t *testing.T) {
	sp := space.NewFixed(space.BoundingBox{MinX: 0, MaxX: 10, MinY: 0, MaxY: 10, MinZ: 0, MaxZ: 10}, 5)
	environment := grid.New(sp, 1)

	a := agent.NewTest(r3.Vec{X: 0, Y: 0, Z: 0}, 10, 0)
	b := agent.NewTest(r3.Vec{X: 1, Y: 0, Z: 0}, 10, 1)
	a.SetHandle(uid.NewAgentHandle(0, 0))
	b.SetHandle(uid.NewAgentHandle(0, 1))
	agents := []agent.Agent{a, b}
	require.NoError(t, environment.Update(agents))

	gen := uid.NewAgentUidGenerator()
	ctx := NewInPlace(ThreadSafetyNone, gen)
	ctx.clearNeighborCache()

	var firstCount, secondCount int
	ctx.ForEachNeighbor(environment, env.ForAgent(a), 25, func(agent.Agent, float64) { firstCount++ })
	ctx.ForEachNeighbor(environment, env.ForAgent(a), 25, func(agent.Agent, float64) { secondCount++ })
	assert.Equal(t, firstCount, secondCount)
	assert.Equal(t, 1, firstCount)
}
