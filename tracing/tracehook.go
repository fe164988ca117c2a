package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/vmkit/sim/hooking"
)

// CollectTrace lets the tracer collect the events of a domain.
func CollectTrace(domain hooking.Hookable, tracer Tracer) {
	hooks := domain.Hooks()
	for _, hook := range hooks {
		hook, ok := hook.(*traceHook)
		if ok && hook.t == tracer {
			panic(fmt.Sprintf("domain already has tracer %s",
				reflect.TypeOf(tracer)))
		}
	}

	h := traceHook{t: tracer}
	domain.AcceptHook(&h)
}

// A traceHook is a hook that forwards virtual memory events to a tracer.
type traceHook struct {
	t Tracer
}

// Func calls the tracer when the hook is triggered by a virtual memory event.
func (h *traceHook) Func(ctx hooking.HookCtx) {
	evt, ok := ctx.Item.(hooking.VMEvent)
	if !ok {
		return
	}

	err, _ := ctx.Detail.(error)

	h.t.RecordEvent(Event{Pos: ctx.Pos, VM: evt, Error: err})
}
