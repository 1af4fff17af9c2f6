package ops

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/env"
	"github.com/abmcore/abmcore/uid"
)

// updateStaticnessImpl marks every agent static at the top of the
// per-step pipeline; a later ApplyDisplacement call (from
// mechanical_forces, a behavior, or user code) clears it back to false,
// per agent.Base.ApplyDisplacement's own contract.
type updateStaticnessImpl struct{}

func (*updateStaticnessImpl) Name() string                                     { return "update_staticness" }
func (*updateStaticnessImpl) SetUp(env.Environment, AgentContext)              {}
func (*updateStaticnessImpl) TearDown()                                       {}
func (*updateStaticnessImpl) Clone() AgentImplementation                      { return &updateStaticnessImpl{} }
func (*updateStaticnessImpl) Apply(self agent.Agent)                          { self.SetStatic(true) }

// behaviorImpl runs every behavior attached to an agent in order. Owns
// the run_bm_loop_idx_ cursor-adjustment rule from spec.md §9: if a
// behavior's Run call removed itself or an earlier entry, the slot at the
// current cursor now holds whatever used to sit one past it, so the
// cursor is not advanced — it is re-examined on the next loop instead of
// skipped. The cursor advances whenever the slot still holds the behavior
// that just ran, so removing a later entry does not re-run it.
type behaviorImpl struct{}

func (*behaviorImpl) Name() string                        { return "behavior" }
func (*behaviorImpl) SetUp(env.Environment, AgentContext) {}
func (*behaviorImpl) TearDown()                           {}
func (*behaviorImpl) Clone() AgentImplementation           { return &behaviorImpl{} }

func (*behaviorImpl) Apply(self agent.Agent) {
	i := 0
	for i < len(self.Behaviors()) {
		current := self.Behaviors()[i]
		current.Run(self)
		if bs := self.Behaviors(); i < len(bs) && bs[i] == current {
			i++
		}
	}
}

// discretizationImpl invokes the agent's own spatial-refinement hook.
type discretizationImpl struct{}

func (*discretizationImpl) Name() string                        { return "discretization" }
func (*discretizationImpl) SetUp(env.Environment, AgentContext) {}
func (*discretizationImpl) TearDown()                           {}
func (*discretizationImpl) Clone() AgentImplementation           { return &discretizationImpl{} }
func (*discretizationImpl) Apply(self agent.Agent)               { self.RunDiscretization() }

// mechanicalForcesImpl accumulates a pairwise overlap-repulsion force
// from every neighbor within the environment's interaction radius and
// applies the resulting displacement, using agent.Agent's own
// CalculateDisplacement/ApplyDisplacement hooks (gonum r3 arithmetic).
type mechanicalForcesImpl struct {
	dt          float64
	environment env.Environment
	ctx         AgentContext
}

func (m *mechanicalForcesImpl) Name() string { return "mechanical_forces" }

func (m *mechanicalForcesImpl) SetUp(environment env.Environment, ctx AgentContext) {
	m.environment = environment
	m.ctx = ctx
}

func (m *mechanicalForcesImpl) TearDown() {}

func (m *mechanicalForcesImpl) Clone() AgentImplementation {
	return &mechanicalForcesImpl{dt: m.dt}
}

func (m *mechanicalForcesImpl) Apply(self agent.Agent) {
	if self.IsStatic() {
		return
	}
	radius := m.environment.GetInteractionRadius()
	if radius <= 0 {
		return
	}
	squaredRadius := radius * radius

	var force r3.Vec
	m.ctx.ForEachNeighbor(m.environment, env.ForAgent(self), squaredRadius, func(cand agent.Agent, squaredDistance float64) {
		dist := math.Sqrt(squaredDistance)
		if dist < 1e-9 {
			return
		}
		overlap := (self.Diameter()+cand.Diameter())/2 - dist
		if overlap <= 0 {
			return
		}
		dir := r3.Scale(1/dist, r3.Sub(self.Position(), cand.Position()))
		force = r3.Add(force, r3.Scale(overlap, dir))
	})
	if force == (r3.Vec{}) {
		return
	}
	d := self.CalculateDisplacement(force, squaredRadius, m.dt)
	self.ApplyDisplacement(d)
}

// propagateStaticnessImpl clears an agent's static flag when any neighbor
// within interaction range is not static, so a resting agent still
// re-enters the mechanical_forces pass next step if something nearby is
// still moving into it.
type propagateStaticnessImpl struct {
	environment env.Environment
	ctx         AgentContext
}

func (p *propagateStaticnessImpl) Name() string { return "propagate_staticness" }

func (p *propagateStaticnessImpl) SetUp(environment env.Environment, ctx AgentContext) {
	p.environment = environment
	p.ctx = ctx
}

func (p *propagateStaticnessImpl) TearDown() {}

func (p *propagateStaticnessImpl) Clone() AgentImplementation {
	return &propagateStaticnessImpl{}
}

func (p *propagateStaticnessImpl) Apply(self agent.Agent) {
	if !self.IsStatic() {
		return
	}
	radius := p.environment.GetInteractionRadius()
	if radius <= 0 {
		return
	}
	squaredRadius := radius * radius
	stillStatic := true
	p.ctx.ForEachNeighbor(p.environment, env.ForAgent(self), squaredRadius, func(cand agent.Agent, _ float64) {
		if !cand.IsStatic() {
			stillStatic = false
		}
	})
	if !stillStatic {
		self.SetStatic(false)
	}
}

// setUpIterationImpl logs the start-of-step boundary; the actual
// per-worker staging flush (ExecutionContext.SetupIteration) is driven
// directly by the scheduler, which alone holds the per-worker context
// list.
type setUpIterationImpl struct{}

func (*setUpIterationImpl) Name() string                 { return "set_up_iteration" }
func (*setUpIterationImpl) Clone() StandaloneImplementation { return &setUpIterationImpl{} }
func (*setUpIterationImpl) Run(sim SimState) {
	logrus.Debugf("ops: set_up_iteration step=%d agents=%d", sim.Step(), sim.Manager().NumAgents())
}

// updateEnvironmentImpl rebuilds the spatial index from the current agent
// population, per spec.md §4.3's "rebuilt once per iteration" contract.
type updateEnvironmentImpl struct{}

func (*updateEnvironmentImpl) Name() string                 { return "update_environment" }
func (*updateEnvironmentImpl) Clone() StandaloneImplementation { return &updateEnvironmentImpl{} }

func (*updateEnvironmentImpl) Run(sim SimState) {
	agents := make([]agent.Agent, 0, sim.Manager().NumAgents())
	sim.Manager().ForEachAgent(func(_ uid.AgentHandle, a agent.Agent) {
		agents = append(agents, a)
	})
	if err := sim.Environment().Update(agents); err != nil {
		logrus.Fatalf("ops: update_environment: %v", err)
	}
}

// boxCoorder is satisfied by env/grid.Environment, the only Environment
// implementation with a meaningful Morton-orderable box coordinate.
type boxCoorder interface {
	BoxCoord(boxIdx uint64) (bx, by, bz uint32)
}

// loadBalancingImpl reorders agents across NUMA partitions along a
// Morton curve over their home box, then clears every live
// ExecutionContext's neighbor cache and resets every registered reducer,
// per spec.md §9's documented safe policy for rebalance-invalidated
// cached state.
type loadBalancingImpl struct{}

func (*loadBalancingImpl) Name() string                 { return "load_balancing" }
func (*loadBalancingImpl) Clone() StandaloneImplementation { return &loadBalancingImpl{} }

func (*loadBalancingImpl) Run(sim SimState) {
	bc, ok := sim.Environment().(boxCoorder)
	if !ok {
		logrus.Warnf("ops: load_balancing skipped, environment %T exposes no box coordinates", sim.Environment())
		return
	}
	sim.Manager().SortAndBalanceNUMA(func(a agent.Agent) (uint32, uint32, uint32) {
		return bc.BoxCoord(a.BoxIdx())
	})
	for _, c := range sim.CacheClearers() {
		c.ClearNeighborCache()
	}
	for _, r := range sim.Resettables() {
		r.Reset()
	}
	logrus.Infof("ops: load_balancing rebalanced %d agents across %d partitions", sim.Manager().NumAgents(), sim.Manager().NumPartitions())
}

// boundSpaceImpl clamps every agent's position back inside the
// environment's current bounding box, the default "keep agents in the
// simulated volume" standalone operation.
type boundSpaceImpl struct{}

func (*boundSpaceImpl) Name() string                 { return "bound_space" }
func (*boundSpaceImpl) Clone() StandaloneImplementation { return &boundSpaceImpl{} }

func (*boundSpaceImpl) Run(sim SimState) {
	dims := sim.Environment().GetDimensions()
	minX, maxX := float64(dims[0]), float64(dims[1])
	minY, maxY := float64(dims[2]), float64(dims[3])
	minZ, maxZ := float64(dims[4]), float64(dims[5])

	sim.Manager().ForEachAgentParallel(nil, func(_ uid.AgentHandle, a agent.Agent) {
		p := a.Position()
		clamped := r3.Vec{
			X: clampF(p.X, minX, maxX),
			Y: clampF(p.Y, minY, maxY),
			Z: clampF(p.Z, minZ, maxZ),
		}
		if clamped != p {
			a.SetPosition(clamped)
		}
	})
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// diffusionImpl is a stub: substance diffusion/PDE grids are named
// Non-goals (spec.md §1) left as an external collaborator hook.
type diffusionImpl struct{}

func (*diffusionImpl) Name() string                 { return "diffusion" }
func (*diffusionImpl) Clone() StandaloneImplementation { return &diffusionImpl{} }
func (*diffusionImpl) Run(sim SimState) {
	logrus.Debugf("ops: diffusion step=%d is an external collaborator hook, no-op here", sim.Step())
}

// visualizationImpl is a stub: rendering/export is an external
// collaborator hook, a named Non-goal (spec.md §1).
type visualizationImpl struct{}

func (*visualizationImpl) Name() string                 { return "visualization" }
func (*visualizationImpl) Clone() StandaloneImplementation { return &visualizationImpl{} }
func (*visualizationImpl) Run(sim SimState) {
	logrus.Debugf("ops: visualization step=%d is an external collaborator hook, no-op here", sim.Step())
}

// tearDownIterationImpl logs the end-of-step boundary; the actual commit
// (draining every worker context's staged new/removed agents into the
// ResourceManager) is driven directly by the scheduler.
type tearDownIterationImpl struct{}

func (*tearDownIterationImpl) Name() string                 { return "tear_down_iteration" }
func (*tearDownIterationImpl) Clone() StandaloneImplementation { return &tearDownIterationImpl{} }
func (*tearDownIterationImpl) Run(sim SimState) {
	logrus.Debugf("ops: tear_down_iteration step=%d agents=%d", sim.Step(), sim.Manager().NumAgents())
}
