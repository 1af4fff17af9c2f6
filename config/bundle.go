// Package config implements Bundle, a YAML-loadable wiring configuration
// for a simulation run — which Environment implementation, NUMA
// partition count, execution-context variant, scheduling order, and
// default operation frequencies to build a sched.Scheduler with.
// Grounded on the teacher's sim.PolicyBundle (sim/bundle.go): strict YAML
// decoding, a name-validity-map Validate step, and sorted-name error
// messages.
package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/abmcore/abmcore/env"
	"github.com/abmcore/abmcore/execctx"
	"github.com/abmcore/abmcore/ops"
	"github.com/abmcore/abmcore/rm"
	"github.com/abmcore/abmcore/sched"
	"github.com/abmcore/abmcore/space"
	"github.com/abmcore/abmcore/uid"
)

// SpaceConfig configures the SimulationSpace a run builds its
// Environment over, per spec.md §3.4.
type SpaceConfig struct {
	// Fixed, when true, uses the six bounds below instead of deriving the
	// bounding box from agent positions each Update.
	Fixed bool  `yaml:"fixed"`
	MinX  int64 `yaml:"min_x"`
	MinY  int64 `yaml:"min_y"`
	MinZ  int64 `yaml:"min_z"`
	MaxX  int64 `yaml:"max_x"`
	MaxY  int64 `yaml:"max_y"`
	MaxZ  int64 `yaml:"max_z"`

	// RadiusFixed, when true, uses Radius instead of deriving it from the
	// largest agent diameter each Update.
	RadiusFixed bool    `yaml:"radius_fixed"`
	Radius      float64 `yaml:"radius"`
}

// Bundle holds unified run configuration, loadable from a YAML file. Zero
// values mean "not set" for scalar fields with an explicit default
// applied by Defaults(); there is no pointer-field "unset" tracking here
// since (unlike the teacher's PolicyBundle) every field has a meaningful
// zero-adjacent default.
type Bundle struct {
	Environment string      `yaml:"environment"`
	Space       SpaceConfig `yaml:"space"`
	Partitions  int         `yaml:"partitions"`

	ThreadSafety string `yaml:"thread_safety"`
	CopyOnWrite  bool   `yaml:"copy_on_write"`
	Order        string `yaml:"order"`

	Dt    float64 `yaml:"dt"`
	Steps int     `yaml:"steps"`

	LoadBalancingFrequency int `yaml:"load_balancing_frequency"`

	// RunID labels this run for the external persistence handoff spec.md
	// §6 delegates ("each data-bearing type exposes a versioned
	// streamer; the core does not manage file formats") — a checkpoint
	// writer tags its output with this value, not a core identifier
	// (UIDs stay uid.AgentUid throughout). Generated if left blank.
	RunID string `yaml:"run_id"`

	LogLevel string `yaml:"log_level"`
}

// Defaults returns a Bundle matching spec.md's defaults: a mandatory
// uniform grid, one partition per logical CPU, in-place execution
// context with automatic thread safety, the per-agent-outer scheduling
// order, load balancing disabled (DisabledFrequency, spec.md §4.7), and
// info-level logging.
func Defaults() *Bundle {
	return &Bundle{
		Environment:  "grid",
		Partitions:   0, // resolved to runtime.NumCPU() by sched.DefaultWorkerCount
		ThreadSafety: "automatic",
		Order:        "agent-outer",
		Dt:           1.0,
		Steps:        1,
		RunID:        uuid.New().String(),
		LogLevel:     "info",
	}
}

// Load reads and parses a YAML bundle file, starting from Defaults() so
// any field the file omits keeps its default. Uses strict parsing:
// unrecognized keys (typos) are rejected.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading bundle: %w", err)
	}
	bundle := Defaults()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(bundle); err != nil {
		return nil, fmt.Errorf("config: parsing bundle: %w", err)
	}
	return bundle, nil
}

var (
	validEnvironments = map[string]bool{"grid": true, "octree": true, "kdtree": true}
	validThreadSafety = map[string]bool{"none": true, "automatic": true, "user": true}
	validOrders       = map[string]bool{"agent-outer": true, "op-outer": true}
)

func validNames(m map[string]bool) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// Validate checks every name and parameter range in b, per spec.md §7
// kind 2's "fatal at the call that first needs the missing information,
// never silently defaulted."
func (b *Bundle) Validate() error {
	if !validEnvironments[b.Environment] {
		return fmt.Errorf("config: unknown environment %q; valid options: %s", b.Environment, validNames(validEnvironments))
	}
	if !validThreadSafety[b.ThreadSafety] {
		return fmt.Errorf("config: unknown thread_safety %q; valid options: %s", b.ThreadSafety, validNames(validThreadSafety))
	}
	if !validOrders[b.Order] {
		return fmt.Errorf("config: unknown order %q; valid options: %s", b.Order, validNames(validOrders))
	}
	if b.CopyOnWrite && b.Order == "op-outer" {
		return fmt.Errorf("config: copy_on_write is incompatible with order=op-outer")
	}
	if err := validateFloat("dt", b.Dt); err != nil {
		return err
	}
	if b.Dt <= 0 {
		return fmt.Errorf("config: dt must be positive, got %v", b.Dt)
	}
	if b.Steps < 0 {
		return fmt.Errorf("config: steps must be non-negative, got %d", b.Steps)
	}
	if b.Partitions < 0 {
		return fmt.Errorf("config: partitions must be non-negative, got %d", b.Partitions)
	}
	if err := validateFloat("space.radius", b.Space.Radius); err != nil {
		return err
	}
	if b.Space.RadiusFixed && b.Space.Radius < 0 {
		return fmt.Errorf("config: space.radius must be non-negative, got %v", b.Space.Radius)
	}
	if b.Space.Fixed && (b.Space.MinX >= b.Space.MaxX || b.Space.MinY >= b.Space.MaxY || b.Space.MinZ >= b.Space.MaxZ) {
		return fmt.Errorf("config: space bounds must have min < max on every axis")
	}
	if b.LoadBalancingFrequency < 0 {
		return fmt.Errorf("config: load_balancing_frequency must be non-negative, got %d", b.LoadBalancingFrequency)
	}
	return nil
}

func validateFloat(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("config: %s must be a finite number, got %f", name, val)
	}
	return nil
}

// BuildSpace constructs the SimulationSpace b.Space describes. When both
// box and radius are fixed this is exactly space.NewFixed; otherwise it
// starts from space.NewDerived and overrides whichever field is fixed,
// leaving the other to be computed by the first Environment.Update.
func (b *Bundle) BuildSpace() *space.SimulationSpace {
	box := space.BoundingBox{
		MinX: b.Space.MinX, MinY: b.Space.MinY, MinZ: b.Space.MinZ,
		MaxX: b.Space.MaxX, MaxY: b.Space.MaxY, MaxZ: b.Space.MaxZ,
	}
	if b.Space.Fixed && b.Space.RadiusFixed {
		return space.NewFixed(box, b.Space.Radius)
	}
	sp := space.NewDerived()
	if b.Space.Fixed {
		sp.BoxFixed = true
		sp.Box = box
	}
	if b.Space.RadiusFixed {
		sp.RadiusFixed = true
		sp.Radius = b.Space.Radius
	}
	return sp
}

// BuildEnvironment constructs the Environment b.Environment names, over
// sp, with b.PartitionCount() workers. The caller's main package must
// blank-import env/grid, env/octree, and env/kdtree as needed so their
// register.go init() functions have registered a constructor — env.New
// panics otherwise.
func (b *Bundle) BuildEnvironment(sp *space.SimulationSpace) env.Environment {
	return env.New(b.Environment, sp, b.PartitionCount())
}

// PartitionCount resolves b.Partitions to a concrete worker count,
// defaulting to sched.DefaultWorkerCount when unset (0).
func (b *Bundle) PartitionCount() int {
	if b.Partitions > 0 {
		return b.Partitions
	}
	return sched.DefaultWorkerCount()
}

// ThreadSafetyMode resolves b.ThreadSafety to an execctx.ThreadSafety
// value. Caller must have already run Validate.
func (b *Bundle) ThreadSafetyMode() execctx.ThreadSafety {
	switch b.ThreadSafety {
	case "none":
		return execctx.ThreadSafetyNone
	case "user":
		return execctx.ThreadSafetyUserSpecified
	default:
		return execctx.ThreadSafetyAutomatic
	}
}

// SchedOrder resolves b.Order to a sched.Order value. Caller must have
// already run Validate.
func (b *Bundle) SchedOrder() sched.Order {
	if b.Order == "op-outer" {
		return sched.ForEachOpForEachAgent
	}
	return sched.ForEachAgentForEachOp
}

// SchedulerConfig builds the sched.Config New needs from this bundle.
func (b *Bundle) SchedulerConfig() sched.Config {
	return sched.Config{
		ThreadSafety: b.ThreadSafetyMode(),
		CopyOnWrite:  b.CopyOnWrite,
		Order:        b.SchedOrder(),
		Dt:           b.Dt,
	}
}

// Build wires a full run from b: the UID generator, ResourceManager,
// Environment (via BuildEnvironment — the caller must have blank-imported
// the needed env/* package), default operation registry, and Scheduler
// with the load-balancing frequency applied. Caller must call
// b.Validate() first.
func (b *Bundle) Build() (*rm.ResourceManager, env.Environment, *sched.Scheduler, error) {
	gen := uid.NewAgentUidGenerator()
	manager := rm.New(b.PartitionCount(), gen)
	environment := b.BuildEnvironment(b.BuildSpace())

	registry := ops.Default(b.Dt)
	scheduler, err := sched.New(manager, environment, registry, gen, b.SchedulerConfig())
	if err != nil {
		return nil, nil, nil, err
	}

	if b.LoadBalancingFrequency > 0 {
		scheduler.EnableLoadBalancing(b.LoadBalancingFrequency)
	}

	return manager, environment, scheduler, nil
}
