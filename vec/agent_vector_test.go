package vec

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abmcore/abmcore/uid"
)

func TestAgentVector_AppendGet(t *testing.T) {
	// GIVEN a 2-partition vector
	v := New[string](2)

	// WHEN a value is appended to partition 0
	h := v.Append(0, "agent-a")

	// THEN it is retrievable at the returned handle
	assert.Equal(t, uint16(0), h.Primary)
	assert.Equal(t, uint32(0), h.Secondary)
	assert.Equal(t, "agent-a", v.Get(h))
}

func TestAgentVector_DefaultsToNumCPUPartitions(t *testing.T) {
	// GIVEN a vector created with 0 partitions requested
	v := New[int](0)

	// THEN it defaults to at least one partition
	assert.True(t, v.NumPartitions() >= 1)
}

func TestAgentVector_SizeAcrossPartitions(t *testing.T) {
	// GIVEN a 3-partition vector with items spread across partitions
	v := New[int](3)
	v.Append(0, 1)
	v.Append(0, 2)
	v.Append(1, 3)
	v.Append(2, 4)

	// THEN Size sums every partition
	assert.Equal(t, 4, v.Size())
	assert.Equal(t, 2, v.PartitionSize(0))
	assert.Equal(t, 1, v.PartitionSize(1))
}

func TestAgentVector_ConcurrentAppendDistinctPartitions(t *testing.T) {
	// GIVEN a vector with one partition per goroutine
	const n = 8
	v := New[int](n)
	var wg sync.WaitGroup
	for p := 0; p < n; p++ {
		wg.Add(1)
		go func(pIdx int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				v.Append(uint16(pIdx), i)
			}
		}(p)
	}
	wg.Wait()

	// THEN every partition got exactly 100 appends, none lost to races
	for p := 0; p < n; p++ {
		assert.Equal(t, 100, v.PartitionSize(uint16(p)))
	}
}

func TestAgentVector_ForEachVisitsEveryItemOnce(t *testing.T) {
	// GIVEN a populated multi-partition vector
	v := New[int](2)
	v.Append(0, 10)
	v.Append(0, 20)
	v.Append(1, 30)

	// WHEN iterating with ForEach
	seen := map[uid.AgentHandle]int{}
	v.ForEach(func(h uid.AgentHandle, value int) {
		seen[h] = value
	})

	// THEN every item is visited exactly once
	assert.Len(t, seen, 3)
	assert.Equal(t, 10, seen[uid.NewAgentHandle(0, 0)])
	assert.Equal(t, 30, seen[uid.NewAgentHandle(1, 0)])
}

func TestAgentVector_ReplacePartition(t *testing.T) {
	// GIVEN a populated partition
	v := New[int](1)
	v.Append(0, 1)
	v.Append(0, 2)

	// WHEN the partition is replaced wholesale
	v.ReplacePartition(0, []int{99})

	// THEN the new contents are in effect
	assert.Equal(t, 1, v.PartitionSize(0))
	assert.Equal(t, 99, v.Get(uid.NewAgentHandle(0, 0)))
}
