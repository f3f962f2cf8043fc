package stream

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// Completion detection
// ---------------------------------------------------------------------------

// The repartition job reacts to a changelog and never runs out of input, so
// completion is inferred: once records have flowed and none has for the idle
// threshold, the backlog is drained. A run with no writes at all waits
// forever; callers bound that with their own context.
type detector struct {
	poll time.Duration
	idle time.Duration

	lastWrite atomic.Int64 // unix ms, 0 until the first write

	cancel     chan struct{}
	cancelOnce sync.Once
}

func newDetector(poll, idle time.Duration) *detector {
	return &detector{poll: poll, idle: idle, cancel: make(chan struct{})}
}

// Touch marks topology activity. Called for every record observed entering a
// sink, not only on broker acknowledgement.
func (d *detector) Touch() {
	d.lastWrite.Store(time.Now().UnixMilli())
}

// watch polls until the idle threshold passes, then calls finish exactly
// once and returns. The first check happens immediately. Blocking; run it on
// its own goroutine. stop aborts the watch without calling finish.
func (d *detector) watch(finish func()) {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()
	for {
		if d.expired() {
			finish()
			return
		}
		select {
		case <-ticker.C:
		case <-d.cancel:
			return
		}
	}
}

func (d *detector) expired() bool {
	last := d.lastWrite.Load()
	if last == 0 {
		return false
	}
	return time.Since(time.UnixMilli(last)) > d.idle
}

func (d *detector) stop() {
	d.cancelOnce.Do(func() { close(d.cancel) })
}
