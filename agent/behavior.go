package agent

// BehaviorEvent distinguishes the lifecycle hook a Behavior is being
// notified about (spec.md §6: initialize/update carry an "event", run is
// the per-step invocation).
type BehaviorEvent int

const (
	// EventCellDivision fires when the owning agent divided; Initialize
	// runs on the new daughter's copy of the behavior.
	EventCellDivision BehaviorEvent = iota
	// EventAgentRemoval fires when the owning agent is about to be removed.
	EventAgentRemoval
)

// CopyMaskCellDivision / RemoveMaskAgentRemoval select which lifecycle events a behavior's
// CopyMask / RemoveMask bitfields opt into (spec.md §6).
const (
	CopyMaskCellDivision   uint64 = 1 << iota // copy this behavior on division
	RemoveMaskAgentRemoval                    // drop this behavior on removal
)

// Behavior is a user-attached unit of per-step logic that runs inside an
// agent's pipeline slot, per spec.md §6.
type Behavior interface {
	// CopyMask / RemoveMask select which lifecycle events this behavior
	// participates in (see the CopyMask*/RemoveMask* bit constants).
	CopyMask() uint64
	RemoveMask() uint64

	Run(self Agent)
	Initialize(event BehaviorEvent)
	Update(event BehaviorEvent)

	NewCopy() Behavior
	NewDefault() Behavior
}

// BehaviorFunc adapts a plain function to Behavior for simple, stateless
// per-step logic, mirroring the teacher's small-interface-plus-adapter
// texture (sim/policy's interface-per-concern style).
type BehaviorFunc struct {
	Name string
	Fn   func(self Agent)
}

func (f *BehaviorFunc) CopyMask() uint64   { return CopyMaskCellDivision }
func (f *BehaviorFunc) RemoveMask() uint64 { return RemoveMaskAgentRemoval }
func (f *BehaviorFunc) Run(self Agent)     { f.Fn(self) }
func (f *BehaviorFunc) Initialize(BehaviorEvent) {}
func (f *BehaviorFunc) Update(BehaviorEvent)     {}
func (f *BehaviorFunc) NewCopy() Behavior        { return &BehaviorFunc{Name: f.Name, Fn: f.Fn} }
func (f *BehaviorFunc) NewDefault() Behavior     { return &BehaviorFunc{Name: f.Name} }
