package agent

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abmcore/abmcore/uid"
)

// Test is the reference agent kind used by the core's own end-to-end
// scenarios (spec.md §8: counting by predicate, Moore-neighbor search,
// cross-axis probe) and by downstream tests that need a minimal concrete
// Agent without a domain-specific behavior set. Grounded on BioDynaMo's
// own TestAgent fixtures (original_source/test/unit file names reference
// a scalar-data test agent throughout).
type Test struct {
	Base

	// Data is the scalar payload §8 scenario 1's counting-by-predicate
	// test filters on.
	Data int
}

// NewTest creates a Test agent at the given position with the given
// diameter and scalar Data value. Its UID is the sentinel (no UID) until
// one is assigned, e.g. by ResourceManager.AddAgent.
func NewTest(position r3.Vec, diameter float64, data int) *Test {
	t := &Test{Data: data}
	t.SetUid(uid.Sentinel())
	t.SetPosition(position)
	t.SetDiameter(diameter)
	return t
}

// NewCopy returns a deep-enough copy for clone-on-division semantics: new
// UID/handle (left zero-valued for the caller to assign), same scalar
// state and behaviors list (independent slice header).
func (t *Test) NewCopy() Agent {
	clone := &Test{Data: t.Data}
	clone.SetPosition(t.Position())
	clone.SetDiameter(t.Diameter())
	clone.Static = t.Static
	for _, b := range t.Behaviors() {
		if b.CopyMask()&CopyMaskCellDivision != 0 {
			clone.AddBehavior(b.NewCopy())
		}
	}
	return clone
}

// NewDefault returns a zero-valued Test agent, for callers that need only
// the concrete kind, not any particular instance's state.
func (t *Test) NewDefault() Agent {
	return &Test{}
}
