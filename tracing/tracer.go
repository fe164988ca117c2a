// Package tracing collects the events that the virtual memory manager
// reports through hooks.
package tracing

import "github.com/sarchlab/vmkit/sim/hooking"

// An Event is a virtual memory event seen by a tracer.
type Event struct {
	Pos   *hooking.HookPos
	VM    hooking.VMEvent
	Error error
}

// A Tracer can collect virtual memory events.
type Tracer interface {
	RecordEvent(evt Event)
}
