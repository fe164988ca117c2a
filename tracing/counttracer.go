package tracing

import (
	"sync"

	"github.com/sarchlab/vmkit/sim/hooking"
)

// CountTracer counts the events of each hook position.
type CountTracer struct {
	lock       sync.Mutex
	posNames   []string
	count      map[string]uint64
	failed     map[string]uint64
	perProcess map[uint32]uint64
}

// NewCountTracer creates a new CountTracer.
func NewCountTracer() *CountTracer {
	return &CountTracer{
		count:      make(map[string]uint64),
		failed:     make(map[string]uint64),
		perProcess: make(map[uint32]uint64),
	}
}

// RecordEvent counts the event.
func (t *CountTracer) RecordEvent(evt Event) {
	t.lock.Lock()
	defer t.lock.Unlock()

	name := evt.Pos.Name
	if _, ok := t.count[name]; !ok {
		t.posNames = append(t.posNames, name)
	}

	t.count[name]++
	if !evt.VM.OK {
		t.failed[name]++
	}

	if evt.Pos == hooking.HookPosPageFault {
		t.perProcess[evt.VM.PID]++
	}
}

// Names returns the hook positions seen so far, in order of first
// appearance.
func (t *CountTracer) Names() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.posNames...)
}

// Count returns how many events were seen at a position.
func (t *CountTracer) Count(pos *hooking.HookPos) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.count[pos.Name]
}

// FailedCount returns how many events at a position reported a failure.
func (t *CountTracer) FailedCount(pos *hooking.HookPos) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.failed[pos.Name]
}

// FaultCount returns how many page faults a process raised.
func (t *CountTracer) FaultCount(pid uint32) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.perProcess[pid]
}

// Counts returns a copy of all counters, keyed by position name.
func (t *CountTracer) Counts() map[string]uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	counts := make(map[string]uint64, len(t.count))
	for name, n := range t.count {
		counts[name] = n
	}

	return counts
}
