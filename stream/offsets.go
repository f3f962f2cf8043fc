package stream

import (
	"fmt"
	"sync"
)

// ---------------------------------------------------------------------------
// Offset tracking
// ---------------------------------------------------------------------------

// TopicPartition names one partition of one topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}

// Watermark maps each partition to the highest offset known to be durably
// written; a consumer may read up to and including these offsets.
type Watermark map[TopicPartition]int64

// OffsetTracker records the write frontier of one pipeline run. Producer
// acknowledgements arrive out of order from multiple goroutines, so stored
// offsets only ever move forward.
type OffsetTracker struct {
	mu      sync.Mutex
	offsets Watermark
}

func NewOffsetTracker() *OffsetTracker {
	return &OffsetTracker{offsets: make(Watermark)}
}

// MergeMax stores the offset unless a higher one is already recorded for the
// partition.
func (t *OffsetTracker) MergeMax(tp TopicPartition, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.offsets[tp]; !ok || offset > cur {
		t.offsets[tp] = offset
	}
}

// Snapshot returns a copy of the current frontier.
func (t *OffsetTracker) Snapshot() Watermark {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(Watermark, len(t.offsets))
	for tp, off := range t.offsets {
		out[tp] = off
	}
	return out
}
