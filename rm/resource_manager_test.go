package rm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/abmcore/abmcore/agent"
	"github.com/abmcore/abmcore/uid"
)

func newTestRM(partitions int) *ResourceManager {
	return New(partitions, uid.NewAgentUidGenerator())
}

// TestCountingByPredicate reproduces spec.md §8 scenario 1.
func TestCountingByPredicate(t *testing.T) {
	manager := newTestRM(4)
	for i := 0; i < 2000; i++ {
		manager.AddAgent(-1, agent.NewTest(r3.Vec{}, 1, i))
	}

	count := 0
	manager.ForEachAgent(func(_ uid.AgentHandle, a agent.Agent) {
		if a.(*agent.Test).Data < 1000 {
			count++
		}
	})
	assert.Equal(t, 1000, count)

	count = 0
	manager.ForEachAgent(func(_ uid.AgentHandle, a agent.Agent) {
		if a.(*agent.Test).Data < 500 {
			count++
		}
	})
	assert.Equal(t, 500, count)
}

// TestLookupConsistencyInvariant covers spec.md §8's
// "rm.lookup(a.uid()).points_to(a)" invariant after every public call.
func TestLookupConsistencyInvariant(t *testing.T) {
	manager := newTestRM(2)
	a := agent.NewTest(r3.Vec{}, 1, 0)
	u := manager.AddAgent(-1, a)

	got, ok := manager.GetAgentByUid(u)
	require.True(t, ok)
	assert.Same(t, a, got)
}

// TestAddThenRemoveSameStep covers spec.md §8: add-then-remove within the
// same step never appears after TearDownIteration/EndOfIteration.
func TestAddThenRemoveSameStep(t *testing.T) {
	manager := newTestRM(1)
	gen := uid.NewAgentUidGenerator()
	manager.gen = gen

	a := agent.NewTest(r3.Vec{}, 1, 0)
	u := gen.GenerateUid()
	a.SetUid(u)

	manager.Remove(u)
	manager.EndOfIteration([]agent.Agent{a})

	_, ok := manager.GetAgentByUid(u)
	assert.False(t, ok)
}

// TestRemoveThenLookupSameStep covers spec.md §8: a staged removal is
// still reachable by UID until the barrier (EndOfIteration).
func TestRemoveThenLookupSameStep(t *testing.T) {
	manager := newTestRM(1)
	a := agent.NewTest(r3.Vec{}, 1, 0)
	u := manager.AddAgent(0, a)

	manager.Remove(u)
	_, ok := manager.GetAgentByUid(u)
	assert.True(t, ok, "agent must remain reachable until the barrier")

	manager.EndOfIteration(nil)
	_, ok = manager.GetAgentByUid(u)
	assert.False(t, ok)
}

// TestCommitSemantics reproduces spec.md §8 scenario 6: concurrent
// creation on one thread and removal on another, observed consistently
// via both UID lookup and ForEachAgent after the barrier.
func TestCommitSemantics(t *testing.T) {
	manager := newTestRM(2)
	existing := agent.NewTest(r3.Vec{}, 1, 1)
	existingUid := manager.AddAgent(0, existing)

	var wg sync.WaitGroup
	var newAgent agent.Agent
	wg.Add(2)
	go func() {
		defer wg.Done()
		newAgent = agent.NewTest(r3.Vec{}, 1, 2)
		newAgent.SetUid(manager.gen.GenerateUid())
	}()
	go func() {
		defer wg.Done()
		manager.Remove(existingUid)
	}()
	wg.Wait()

	manager.EndOfIteration([]agent.Agent{newAgent})

	_, stillThere := manager.GetAgentByUid(existingUid)
	assert.False(t, stillThere)
	_, present := manager.GetAgentByUid(newAgent.Uid())
	assert.True(t, present)

	var seen []agent.Agent
	manager.ForEachAgent(func(_ uid.AgentHandle, a agent.Agent) { seen = append(seen, a) })
	assert.ElementsMatch(t, []agent.Agent{newAgent}, seen)
}

// TestSortAndBalanceNUMAPreservesUids reproduces spec.md §8's rebalancing
// round-trip law: the UID set is identical before/after, and lookups
// resolve to the new handle pointing at the same agent object.
func TestSortAndBalanceNUMAPreservesUids(t *testing.T) {
	manager := newTestRM(3)
	var uids []uid.AgentUid
	var agents []agent.Agent
	for i := 0; i < 30; i++ {
		a := agent.NewTest(r3.Vec{X: float64(i)}, 1, i)
		a.SetBoxIdx(uint64(i))
		u := manager.AddAgent(i%3, a)
		uids = append(uids, u)
		agents = append(agents, a)
	}

	manager.SortAndBalanceNUMA(func(a agent.Agent) (uint32, uint32, uint32) {
		return uint32(a.BoxIdx()), 0, 0
	})

	for i, u := range uids {
		got, ok := manager.GetAgentByUid(u)
		require.True(t, ok)
		assert.Same(t, agents[i], got)
	}
	assert.Equal(t, 30, manager.NumAgents())
}

// TestAddAgentRejectsLiveUidReuse covers spec.md §4.10: inserting an
// already-live UID is fatal.
func TestAddAgentRejectsLiveUidReuse(t *testing.T) {
	manager := newTestRM(1)
	a := agent.NewTest(r3.Vec{}, 1, 0)
	u := manager.AddAgent(0, a)

	dup := agent.NewTest(r3.Vec{}, 1, 1)
	dup.SetUid(u)
	assert.Panics(t, func() { manager.AddAgent(0, dup) })
}
