package tracing

import (
	"log"
)

// LogTracer writes one line per event.
type LogTracer struct {
	logger     *log.Logger
	onlyFailed bool
}

// NewLogTracer creates a tracer that logs through logger. When onlyFailed
// is set, successful events are not logged.
func NewLogTracer(logger *log.Logger, onlyFailed bool) *LogTracer {
	return &LogTracer{logger: logger, onlyFailed: onlyFailed}
}

// RecordEvent logs the event.
func (t *LogTracer) RecordEvent(evt Event) {
	if t.onlyFailed && evt.VM.OK {
		return
	}

	status := "ok"
	if !evt.VM.OK {
		status = "failed"
		if evt.Error != nil {
			status = "failed: " + evt.Error.Error()
		}
	}

	t.logger.Printf("%s pid=%d vaddr=0x%x kind=%s what=%q %s",
		evt.Pos.Name, evt.VM.PID, evt.VM.VAddr,
		evt.VM.Kind, evt.VM.What, status)
}
