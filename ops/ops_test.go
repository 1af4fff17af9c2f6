package ops

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

func TestRegistryGetReturnsIndependentClones(t *testing.T) {
	r := NewRegistry()
	r.Register(NewAgentOperation("mechanical_forces", 1, &mechanicalForcesImpl{dt: 1.0}))

	a, ok := r.Get("mechanical_forces")
	require.True(t, ok)
	b, ok := r.Get("mechanical_forces")
	require.True(t, ok)
	assert.NotSame(t, a.AgentImpl(), b.AgentImpl())
}

func TestMustGetPanicsOnUnknownName(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() { r.MustGet("nope") })
}

func TestOperationActiveAt(t *testing.T) {
	op := NewStandaloneOperation("diffusion", 3, &diffusionImpl{})
	assert.False(t, op.ActiveAt(1))
	assert.False(t, op.ActiveAt(2))
	assert.True(t, op.ActiveAt(3))
	assert.True(t, op.ActiveAt(6))
}

func TestDefaultRegistersAllDefaultOps(t *testing.T) {
	r := Default(0.1)
	for _, name := range []string{
		"update_staticness", "behavior", "discretization", "mechanical_forces", "propagate_staticness",
		"set_up_iteration", "update_environment", "load_balancing", "bound_space", "diffusion", "visualization", "tear_down_iteration",
	} {
		_, ok := r.Get(name)
		assert.True(t, ok, "expected %q to be registered", name)
	}
}

func TestUpdateStaticnessSetsStatic(t *testing.T) {
	a := agent.NewTest(r3.Vec{}, 1, 0)
	a.SetStatic(false)
	impl := &updateStaticnessImpl{}
	impl.Apply(a)
	assert.True(t, a.IsStatic())
}

func TestBehaviorImplRunsEveryBehaviorOnce(t *testing.T) {
	a := agent.NewTest(r3.Vec{}, 1, 0)
	var calls []int
	a.AddBehavior(&agent.BehaviorFunc{Name: "b0", Fn: func(agent.Agent) { calls = append(calls, 0) }})
	a.AddBehavior(&agent.BehaviorFunc{Name: "b1", Fn: func(agent.Agent) { calls = append(calls, 1) }})
	a.AddBehavior(&agent.BehaviorFunc{Name: "b2", Fn: func(agent.Agent) { calls = append(calls, 2) }})

	(&behaviorImpl{}).Apply(a)
	assert.Equal(t, []int{0, 1, 2}, calls)
}

// TestBehaviorImplSelfRemovalDoesNotSkipNext covers the run_bm_loop_idx_
// rule (spec.md §9): a behavior that removes itself must not cause the
// next behavior in the (now-shifted) list to be skipped.
func TestBehaviorImplSelfRemovalDoesNotSkipNext(t *testing.T) {
	a := agent.NewTest(r3.Vec{}, 1, 0)
	var calls []int

	var self *agent.BehaviorFunc
	self = &agent.BehaviorFunc{Name: "self-removing", Fn: func(s agent.Agent) {
		calls = append(calls, 0)
		s.RemoveBehavior(self)
	}}
	a.AddBehavior(self)
	a.AddBehavior(&agent.BehaviorFunc{Name: "b1", Fn: func(agent.Agent) { calls = append(calls, 1) }})

	(&behaviorImpl{}).Apply(a)
	assert.Equal(t, []int{0, 1}, calls)
	assert.Len(t, a.Behaviors(), 1)
}

func TestMechanicalForcesAppliesRepulsion(t *testing.T) {
	sp := space.NewFixed(space.BoundingBox{MinX: 0, MaxX: 10, MinY: 0, MaxY: 10, MinZ: 0, MaxZ: 10}, 5)
	environment := grid.New(sp, 1)

	a := agent.NewTest(r3.Vec{X: 0, Y: 0, Z: 0}, 10, 0)
	b := agent.NewTest(r3.Vec{X: 1, Y: 0, Z: 0}, 10, 1)
	require.NoError(t, environment.Update([]agent.Agent{a, b}))

	impl := &mechanicalForcesImpl{dt: 1.0}
	impl.SetUp(environment, fakeAgentContext{environment: environment})
	a.SetStatic(false)
	before := a.Position()
	impl.Apply(a)
	assert.NotEqual(t, before, a.Position(), "overlapping neighbor should push a away")
	assert.False(t, a.IsStatic())
}

func TestMechanicalForcesSkipsStaticAgents(t *testing.T) {
	sp := space.NewFixed(space.BoundingBox{MinX: 0, MaxX: 10, MinY: 0, MaxY: 10, MinZ: 0, MaxZ: 10}, 5)
	environment := grid.New(sp, 1)
	a := agent.NewTest(r3.Vec{}, 10, 0)
	require.NoError(t, environment.Update([]agent.Agent{a}))

	a.SetStatic(true)
	before := a.Position()
	(&mechanicalForcesImpl{dt: 1.0}).Apply(a)
	assert.Equal(t, before, a.Position())
}

// fakeAgentContext adapts a bare env.Environment directly to
// AgentContext for tests that don't need the full ExecutionContext
// staging machinery.
type fakeAgentContext struct {
	environment env.Environment
}

func (f fakeAgentContext) ForEachNeighbor(environment env.Environment, query env.Query, squaredRadius float64, fn env.NeighborFunc) {
	environment.ForEachNeighbor(query, squaredRadius, fn)
}
func (f fakeAgentContext) AddAgent(a agent.Agent) uid.AgentUid { return uid.Sentinel() }
func (f fakeAgentContext) RemoveAgent(u uid.AgentUid)          {}
func (f fakeAgentContext) GetAgent(u uid.AgentUid, manager *rm.ResourceManager) (agent.Agent, bool) {
	return nil, false
}
