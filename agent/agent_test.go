package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abmcore/abmcore/uid"
)

func TestBase_UidHandleRoundTrip(t *testing.T) {
	// GIVEN a base agent
	var a Test

	// WHEN uid and handle are set
	u := uid.New(3)
	h := uid.NewAgentHandle(1, 2)
	a.SetUid(u)
	a.SetHandle(h)

	// THEN they read back unchanged
	assert.Equal(t, u, a.Uid())
	assert.Equal(t, h, a.Handle())
}

func TestBase_ApplyDisplacementMovesAndClearsStatic(t *testing.T) {
	// GIVEN a static agent at the origin
	a := NewTest(r3.Vec{}, 1, 0)
	a.Static = true

	// WHEN a nonzero displacement is applied
	a.ApplyDisplacement(r3.Vec{X: 1, Y: 2, Z: 3})

	// THEN the position moves and Static clears
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, a.Position())
	assert.False(t, a.Static)
}

func TestBase_ApplyZeroDisplacementPreservesStatic(t *testing.T) {
	// GIVEN a static agent
	a := NewTest(r3.Vec{}, 1, 0)
	a.Static = true

	// WHEN a zero displacement is applied
	a.ApplyDisplacement(r3.Vec{})

	// THEN Static is unaffected
	assert.True(t, a.Static)
}

func TestBase_CalculateDisplacementScalesByRadius(t *testing.T) {
	// GIVEN an agent
	a := NewTest(r3.Vec{}, 1, 0)

	// WHEN displacement is calculated for a force with a given radius and dt
	d := a.CalculateDisplacement(r3.Vec{X: 10}, 4, 2)

	// THEN it scales force by dt/r^2
	assert.InDelta(t, 5.0, d.X, 1e-9)
}

func TestBase_AddRemoveBehavior(t *testing.T) {
	// GIVEN an agent with two behaviors
	a := NewTest(r3.Vec{}, 1, 0)
	var ran []string
	b1 := &BehaviorFunc{Name: "b1", Fn: func(self Agent) { ran = append(ran, "b1") }}
	b2 := &BehaviorFunc{Name: "b2", Fn: func(self Agent) { ran = append(ran, "b2") }}
	a.AddBehavior(b1)
	a.AddBehavior(b2)
	assert.Len(t, a.Behaviors(), 2)

	// WHEN the first is removed
	a.RemoveBehavior(b1)

	// THEN only the second remains
	assert.Equal(t, []Behavior{b2}, a.Behaviors())
}

func TestTest_NewCopyPreservesDataAndMaskedBehaviors(t *testing.T) {
	// GIVEN a Test agent with a copyable behavior
	a := NewTest(r3.Vec{X: 1}, 2, 42)
	copyable := &BehaviorFunc{Name: "copyable", Fn: func(Agent) {}}
	a.AddBehavior(copyable)

	// WHEN cloned via NewCopy
	clone := a.NewCopy().(*Test)

	// THEN scalar state and copy-masked behaviors carry over
	assert.Equal(t, 42, clone.Data)
	assert.Equal(t, a.Position(), clone.Position())
	assert.Len(t, clone.Behaviors(), 1)
}

func TestTest_NewDefaultIsZeroValued(t *testing.T) {
	// GIVEN a populated Test agent
	a := NewTest(r3.Vec{X: 5}, 3, 7)

	// WHEN NewDefault is called
	def := a.NewDefault().(*Test)

	// THEN it is zero-valued, independent of the source
	assert.Equal(t, 0, def.Data)
	assert.Equal(t, r3.Vec{}, def.Position())
}
