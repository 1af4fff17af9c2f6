package uid

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgentUidMap_InsertContainsLookup(t *testing.T) {
	// GIVEN a fresh map
	m := NewAgentUidMap[string](4)
	u := New(2)

	// WHEN a value is inserted
	m.Insert(u, "agent-2")

	// THEN it is contained and looked up correctly
	assert.True(t, m.Contains(u))
	assert.Equal(t, "agent-2", m.Lookup(u))

	// AND a different reused generation at the same index is absent
	stale := AgentUid{Index: 2, Reused: 1}
	assert.False(t, m.Contains(stale))
}

func TestAgentUidMap_Remove(t *testing.T) {
	// GIVEN a map with one entry
	m := NewAgentUidMap[int](2)
	u := New(0)
	m.Insert(u, 99)

	// WHEN it is removed
	m.Remove(u)

	// THEN it is no longer contained
	assert.False(t, m.Contains(u))
}

func TestAgentUidMap_ReusedAtSurvivesRemoval(t *testing.T) {
	// GIVEN an inserted-then-removed UID
	m := NewAgentUidMap[int](2)
	u := AgentUid{Index: 0, Reused: 3}
	m.Insert(u, 1)
	m.Remove(u)

	// THEN ReusedAt still reports the last assigned generation
	assert.Equal(t, uint32(3), m.ReusedAt(0))
}

func TestAgentUidMap_GrowsOnDemand(t *testing.T) {
	// GIVEN a map with small initial capacity
	m := NewAgentUidMap[int](1)

	// WHEN inserting at an index beyond capacity
	u := New(50)
	m.Insert(u, 7)

	// THEN it grows to cover it and reports correctly
	assert.True(t, m.Capacity() > 50)
	assert.True(t, m.Contains(u))
	assert.Equal(t, 7, m.Lookup(u))
}

func TestAgentUidMap_VacantIndices(t *testing.T) {
	// GIVEN a map with some inserted and some removed entries
	m := NewAgentUidMap[int](3)
	m.Insert(New(0), 1)
	m.Insert(New(1), 2)
	m.Insert(New(2), 3)
	m.Remove(New(1))

	// THEN only index 1 is vacant
	assert.Equal(t, []uint32{1}, m.VacantIndices())
}

func TestAgentUidMap_ConcurrentDistinctKeyWrites(t *testing.T) {
	// GIVEN a map and many goroutines each owning a distinct index
	const n = 500
	m := NewAgentUidMap[int](n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			u := New(uint32(idx))
			m.Insert(u, idx*2)
		}(i)
	}
	wg.Wait()

	// THEN every distinct-key write landed correctly with no corruption
	for i := 0; i < n; i++ {
		u := New(uint32(i))
		assert.True(t, m.Contains(u))
		assert.Equal(t, i*2, m.Lookup(u))
	}
}

func TestAgentUidMap_ParallelClear(t *testing.T) {
	// GIVEN a populated map
	m := NewAgentUidMap[int](10)
	for i := 0; i < 10; i++ {
		m.Insert(New(uint32(i)), i)
	}

	// WHEN cleared in parallel
	m.ParallelClear(4)

	// THEN every slot reports vacant
	for i := 0; i < 10; i++ {
		assert.False(t, m.Contains(New(uint32(i))))
	}
}
