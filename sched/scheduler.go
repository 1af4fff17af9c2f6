// Package sched implements Scheduler: the timestep loop that drives
// environment update, the per-agent operation pipeline with bounded
// parallelism, and the standalone-operation pipeline, then commits every
// worker's staged agent creations/removals. Grounded on spec.md §4.7 and
// the teacher's Simulator.Run event loop (sim/simulator.go), generalized
// from a single event-heap drain to the fixed three-list step shape.
package sched

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/env"
	"github.com/abmcore/abmcore/execctx"
	"github.com/abmcore/abmcore/ops"
	"github.com/abmcore/abmcore/rm"
	"github.com/abmcore/abmcore/uid"
)

// Order selects which loop is outermost during the per-agent pass, per
// spec.md §4.7.
type Order int

const (
	// ForEachAgentForEachOp is the default: the per-agent loop is
	// outermost, per-op inner. Required by the copy-on-write execution
	// context.
	ForEachAgentForEachOp Order = iota
	// ForEachOpForEachAgent runs the per-op loop outermost, better cache
	// behavior for homogeneous operations; unsupported with CopyOnWrite
	// worker contexts.
	ForEachOpForEachAgent
)

// DisabledFrequency marks a standalone operation as off by default — s %
// DisabledFrequency == 0 only at s == 0, matching spec.md §4.7's
// "load_balancing (frequency = ∞ by default, i.e., fires at most once at
// step 0 when user-enabled)".
const DisabledFrequency = math.MaxInt32

// workerContext is the minimal contract a per-worker ExecutionContext
// must satisfy for the scheduler to drive it, satisfied structurally by
// both *execctx.InPlace and *execctx.CopyOnWrite.
type workerContext interface {
	SetupIteration()
	AddAgent(a agent.Agent) uid.AgentUid
	RemoveAgent(u uid.AgentUid)
	GetAgent(u uid.AgentUid, manager *rm.ResourceManager) (agent.Agent, bool)
	ForEachNeighbor(environment env.Environment, query env.Query, squaredRadius float64, fn env.NeighborFunc)
	ClearNeighborCache()
	ExecuteAt(a agent.Agent, h uid.AgentHandle, environment env.Environment, ops []execctx.AgentOp)
	Commit(manager *rm.ResourceManager) []agent.Agent
}

// Scheduler is the core timestep driver, per spec.md §4.7. One instance
// per simulation; its worker count always equals the ResourceManager's
// NUMA partition count, so each worker's ExecutionContext maps 1:1 onto
// exactly one partition's agents (rm.ForEachAgentParallel already hands
// each partition to exactly one goroutine, so that goroutine is this
// worker).
type Scheduler struct {
	manager     *rm.ResourceManager
	environment env.Environment
	registry    *ops.Registry
	gen         *uid.AgentUidGenerator

	order       Order
	copyOnWrite bool

	workers          []workerContext
	preStandalone    []*ops.Operation
	agentProtos      []*ops.Operation
	perWorkerAgentOp [][]*ops.Operation // [worker][agentProtos index]
	postStandalone   []*ops.Operation

	resettablesMu sync.Mutex
	resettables   []ops.Resettable

	simulatedSteps int
	currentStep    int
}

// Config bundles the construction-time choices New needs beyond the
// registry, manager and environment it is handed directly.
type Config struct {
	// ThreadSafety selects the per-agent lock strategy of the worker
	// contexts, InPlace or CopyOnWrite alike.
	ThreadSafety execctx.ThreadSafety
	// CopyOnWrite selects the copy-on-write ExecutionContext variant
	// instead of the default in-place one, per spec.md §4.5/§9.
	CopyOnWrite bool
	// Order selects the per-step loop nesting, per spec.md §4.7.
	Order Order
	// Dt is the per-step time delta handed to the default
	// mechanical_forces operation.
	Dt float64
}

// New builds a Scheduler wired to manager and environment, with one
// worker ExecutionContext per NUMA partition and the default agent-op /
// standalone-op pipeline from spec.md §4.7 drawn from registry by name
// (ops.Default(cfg.Dt) if registry is nil). Returns an error if cfg requests an
// unsupported combination (CopyOnWrite with ForEachOpForEachAgent).
func New(manager *rm.ResourceManager, environment env.Environment, registry *ops.Registry, gen *uid.AgentUidGenerator, cfg Config) (*Scheduler, error) {
	if cfg.CopyOnWrite && cfg.Order == ForEachOpForEachAgent {
		return nil, fmt.Errorf("sched: copy-on-write execution context does not support ForEachOpForEachAgent order")
	}
	if registry == nil {
		registry = ops.Default(cfg.Dt)
	}

	s := &Scheduler{
		manager:     manager,
		environment: environment,
		registry:    registry,
		gen:         gen,
		order:       cfg.Order,
		copyOnWrite: cfg.CopyOnWrite,
	}

	numWorkers := manager.NumPartitions()
	s.workers = make([]workerContext, numWorkers)
	for i := range s.workers {
		if cfg.CopyOnWrite {
			s.workers[i] = execctx.NewCopyOnWrite(cfg.ThreadSafety, gen)
		} else {
			s.workers[i] = execctx.NewInPlace(cfg.ThreadSafety, gen)
		}
	}

	s.preStandalone = []*ops.Operation{
		registry.MustGet("set_up_iteration"),
		registry.MustGet("update_environment"),
	}
	s.agentProtos = []*ops.Operation{
		registry.MustGet("update_staticness"),
		registry.MustGet("behavior"),
		registry.MustGet("discretization"),
		registry.MustGet("mechanical_forces"),
		registry.MustGet("propagate_staticness"),
	}
	loadBalancing := registry.MustGet("load_balancing")
	loadBalancing.Frequency = DisabledFrequency
	s.postStandalone = []*ops.Operation{
		loadBalancing,
		registry.MustGet("bound_space"),
		registry.MustGet("diffusion"),
		registry.MustGet("visualization"),
		registry.MustGet("tear_down_iteration"),
	}

	s.perWorkerAgentOp = make([][]*ops.Operation, numWorkers)
	for w := range s.perWorkerAgentOp {
		s.perWorkerAgentOp[w] = make([]*ops.Operation, len(s.agentProtos))
		for i, proto := range s.agentProtos {
			s.perWorkerAgentOp[w][i] = proto.Clone()
		}
	}

	return s, nil
}

// AddAgentOperation appends a named agent-operation from the registry to
// the default per-agent pipeline with the given firing frequency,
// returning an error if the name is unknown or not an agent operation.
// Must be called before the first Simulate call — the per-worker clone
// set is fixed at that point.
func (s *Scheduler) AddAgentOperation(name string, frequency int) error {
	op, ok := s.registry.Get(name)
	if !ok {
		return fmt.Errorf("sched: unknown operation %q", name)
	}
	if op.AgentImpl() == nil {
		return fmt.Errorf("sched: %q is not an agent operation", name)
	}
	op.Frequency = frequency
	s.agentProtos = append(s.agentProtos, op)
	for w := range s.perWorkerAgentOp {
		s.perWorkerAgentOp[w] = append(s.perWorkerAgentOp[w], op.Clone())
	}
	return nil
}

// AddPostStandaloneOperation appends a named standalone operation from
// the registry to the post-agent standalone list with the given firing
// frequency.
func (s *Scheduler) AddPostStandaloneOperation(name string, frequency int) error {
	op, ok := s.registry.Get(name)
	if !ok {
		return fmt.Errorf("sched: unknown operation %q", name)
	}
	if op.StandaloneImpl() == nil {
		return fmt.Errorf("sched: %q is not a standalone operation", name)
	}
	op.Frequency = frequency
	s.postStandalone = append(s.postStandalone, op)
	return nil
}

// EnableLoadBalancing sets the default load_balancing post-standalone
// operation's firing frequency, overriding DisabledFrequency, per
// spec.md §4.7's "fires at most once at step 0 when user-enabled".
func (s *Scheduler) EnableLoadBalancing(frequency int) {
	for _, op := range s.postStandalone {
		if op.Name == "load_balancing" {
			op.Frequency = frequency
			return
		}
	}
}

// RegisterResettable adds r (typically a *reduce.Reducer[T] or
// *reduce.Counter) to the set the default load_balancing operation resets
// after every NUMA rebalance, per spec.md §9's documented safe policy.
func (s *Scheduler) RegisterResettable(r ops.Resettable) {
	s.resettablesMu.Lock()
	s.resettables = append(s.resettables, r)
	s.resettablesMu.Unlock()
}

// Manager implements ops.SimState.
func (s *Scheduler) Manager() *rm.ResourceManager { return s.manager }

// Environment implements ops.SimState.
func (s *Scheduler) Environment() env.Environment { return s.environment }

// Step implements ops.SimState: the 0-indexed step currently executing,
// valid only while a standalone or agent operation is running.
func (s *Scheduler) Step() int { return s.currentStep }

// SimulatedSteps returns the total number of completed iterations, the
// persisted counter named in spec.md §6.
func (s *Scheduler) SimulatedSteps() int { return s.simulatedSteps }

// CacheClearers implements ops.SimState, exposing every worker's neighbor
// cache so the load_balancing operation can drop all of them at once.
func (s *Scheduler) CacheClearers() []ops.CacheClearer {
	out := make([]ops.CacheClearer, len(s.workers))
	for i, w := range s.workers {
		out[i] = w
	}
	return out
}

// Resettables implements ops.SimState.
func (s *Scheduler) Resettables() []ops.Resettable {
	s.resettablesMu.Lock()
	defer s.resettablesMu.Unlock()
	return append([]ops.Resettable(nil), s.resettables...)
}

// Simulate runs nSteps iterations of the control flow in spec.md §2/§4.7:
// flush worker residue, run pre-agent standalone ops (environment
// update), the per-agent pipeline with bounded parallelism, the
// post-agent standalone ops, then commit every worker's staged agent
// creations/removals. simulatedSteps increments once per iteration,
// continuing from wherever a previous Simulate call left off.
func (s *Scheduler) Simulate(nSteps int) {
	for i := 0; i < nSteps; i++ {
		step := s.simulatedSteps
		s.currentStep = step

		for _, w := range s.workers {
			w.SetupIteration()
		}

		s.runStandalone(s.preStandalone, step)
		s.runAgentPipeline(step)
		s.runStandalone(s.postStandalone, step)
		s.commit()

		s.simulatedSteps++
		logrus.Debugf("sched: step %d complete, %d live agents", step, s.manager.NumAgents())
	}
}

func (s *Scheduler) runStandalone(list []*ops.Operation, step int) {
	for _, op := range list {
		if !op.ActiveAt(step) {
			continue
		}
		op.StandaloneImpl().Run(s)
	}
}

// runAgentPipeline dispatches the operations in s.agentProtos that fire
// at step across every live agent, in the configured Order.
func (s *Scheduler) runAgentPipeline(step int) {
	var firing []int
	for i, proto := range s.agentProtos {
		if proto.ActiveAt(step) {
			firing = append(firing, i)
		}
	}
	if len(firing) == 0 {
		return
	}

	switch s.order {
	case ForEachOpForEachAgent:
		for _, idx := range firing {
			s.setUpAgentOp(idx)
			s.manager.ForEachAgentParallel(nil, func(h uid.AgentHandle, a agent.Agent) {
				impl := s.perWorkerAgentOp[h.Primary][idx].AgentImpl()
				s.workers[h.Primary].ExecuteAt(a, h, s.environment, []execctx.AgentOp{impl})
			})
			s.tearDownAgentOp(idx)
		}
	default: // ForEachAgentForEachOp
		for _, idx := range firing {
			s.setUpAgentOp(idx)
		}
		s.manager.ForEachAgentParallel(nil, func(h uid.AgentHandle, a agent.Agent) {
			perWorker := s.perWorkerAgentOp[h.Primary]
			opList := make([]execctx.AgentOp, len(firing))
			for i, idx := range firing {
				opList[i] = perWorker[idx].AgentImpl()
			}
			s.workers[h.Primary].ExecuteAt(a, h, s.environment, opList)
		})
		for _, idx := range firing {
			s.tearDownAgentOp(idx)
		}
	}
}

func (s *Scheduler) setUpAgentOp(idx int) {
	for w := range s.workers {
		s.perWorkerAgentOp[w][idx].AgentImpl().SetUp(s.environment, s.workers[w])
	}
}

func (s *Scheduler) tearDownAgentOp(idx int) {
	for w := range s.workers {
		s.perWorkerAgentOp[w][idx].AgentImpl().TearDown()
	}
}

// commit drains every worker's staged new/removed agents into the
// ResourceManager in one bulk pass, per spec.md §4.5's "single bulk
// operation" contract, then re-arms defragmentation mode if any vacancies
// were produced.
func (s *Scheduler) commit() {
	var newAgents []agent.Agent
	for _, w := range s.workers {
		newAgents = append(newAgents, w.Commit(s.manager)...)
	}
	if s.manager.EndOfIteration(newAgents) {
		s.manager.EnterDefragMode(s.gen)
	}
}

// DefaultWorkerCount mirrors vec.AgentVector's own runtime.NumCPU()
// default, exposed so callers building a ResourceManager explicitly for
// use with a Scheduler can size both consistently.
func DefaultWorkerCount() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}
