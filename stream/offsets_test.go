package stream

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOffsetTracker_MergeMaxKeepsMaximum(t *testing.T) {
	tr := NewOffsetTracker()
	tp := TopicPartition{Topic: "vertices", Partition: 0}

	tr.MergeMax(tp, 5)
	tr.MergeMax(tp, 3)
	tr.MergeMax(tp, 7)
	tr.MergeMax(tp, 6)

	require.Equal(t, int64(7), tr.Snapshot()[tp])
}

func TestOffsetTracker_PartitionsIndependent(t *testing.T) {
	tr := NewOffsetTracker()
	p0 := TopicPartition{Topic: "vertices", Partition: 0}
	p1 := TopicPartition{Topic: "vertices", Partition: 1}

	tr.MergeMax(p0, 10)
	tr.MergeMax(p1, 2)

	wm := tr.Snapshot()
	require.Equal(t, int64(10), wm[p0])
	require.Equal(t, int64(2), wm[p1])
}

// Any interleaving of concurrent out-of-order acknowledgements must leave
// the maximum offset ever merged.
func TestOffsetTracker_ConcurrentMergeMonotonic(t *testing.T) {
	tr := NewOffsetTracker()
	tp := TopicPartition{Topic: "edges-grouped", Partition: 3}

	const n = 1000
	offsets := rand.Perm(n)

	var wg sync.WaitGroup
	for _, off := range offsets {
		wg.Add(1)
		go func(off int64) {
			defer wg.Done()
			tr.MergeMax(tp, off)
		}(int64(off))
	}
	wg.Wait()

	require.Equal(t, int64(n-1), tr.Snapshot()[tp])
}

func TestOffsetTracker_SnapshotIsCopy(t *testing.T) {
	tr := NewOffsetTracker()
	tp := TopicPartition{Topic: "vertices", Partition: 0}
	tr.MergeMax(tp, 1)

	wm := tr.Snapshot()
	wm[tp] = 99

	require.Equal(t, int64(1), tr.Snapshot()[tp])
}
