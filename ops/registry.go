package ops

import (
	"fmt"
	"sync"
)

// Registry is a name-keyed store of Operation prototypes: Register adds
// one, Get returns a fresh Clone so no two callers ever share mutable
// per-call state. Grounded directly on the teacher's
// policy.NewAdmissionPolicy name-dispatch factory (sim/policy/admission.go).
type Registry struct {
	mu     sync.RWMutex
	protos map[string]*Operation
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{protos: make(map[string]*Operation)}
}

// Register adds op's current state as the named prototype, overwriting
// any existing registration under the same name.
func (r *Registry) Register(op *Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.protos[op.Name] = op
}

// Get returns a clone of the named prototype, or (nil, false) if unknown.
func (r *Registry) Get(name string) (*Operation, bool) {
	r.mu.RLock()
	proto, ok := r.protos[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return proto.Clone(), true
}

// MustGet is Get but panics on an unknown name — invoked only from
// configuration wiring, where an unknown operation name is a fatal
// mis-configuration (spec.md §7 kind 2), never a runtime user input.
func (r *Registry) MustGet(name string) *Operation {
	op, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("ops: unknown operation %q", name))
	}
	return op
}

// Names returns every registered operation name, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.protos))
	for name := range r.protos {
		names = append(names, name)
	}
	return names
}

// Default returns a Registry pre-populated with the default agent-op
// pipeline (update_staticness, behavior, discretization,
// mechanical_forces, propagate_staticness) and default standalone-op list
// (set_up_iteration, update_environment, load_balancing, bound_space,
// diffusion, visualization, tear_down_iteration), per spec.md §4.7's
// default lists and original_source's default_ops.cc.
func Default(dt float64) *Registry {
	r := NewRegistry()
	r.Register(NewAgentOperation("update_staticness", 1, &updateStaticnessImpl{}))
	r.Register(NewAgentOperation("behavior", 1, &behaviorImpl{}))
	r.Register(NewAgentOperation("discretization", 1, &discretizationImpl{}))
	r.Register(NewAgentOperation("mechanical_forces", 1, &mechanicalForcesImpl{dt: dt}))
	r.Register(NewAgentOperation("propagate_staticness", 1, &propagateStaticnessImpl{}))

	r.Register(NewStandaloneOperation("set_up_iteration", 1, &setUpIterationImpl{}))
	r.Register(NewStandaloneOperation("update_environment", 1, &updateEnvironmentImpl{}))
	r.Register(NewStandaloneOperation("load_balancing", 1, &loadBalancingImpl{}))
	r.Register(NewStandaloneOperation("bound_space", 1, &boundSpaceImpl{}))
	r.Register(NewStandaloneOperation("diffusion", 1, &diffusionImpl{}))
	r.Register(NewStandaloneOperation("visualization", 1, &visualizationImpl{}))
	r.Register(NewStandaloneOperation("tear_down_iteration", 1, &tearDownIterationImpl{}))
	return r
}
