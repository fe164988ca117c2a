package tracing

import (
	"sync"

	"github.com/sarchlab/vmkit/datarecording"
	"github.com/sarchlab/vmkit/sim/id"
	"github.com/tebeka/atexit"
)

// EventTableName is the table the DBTracer writes into.
const EventTableName = "vm_events"

// EventEntry is a row of the event table.
type EventEntry struct {
	ID    string `json:"id"`
	Seq   uint64 `json:"seq"`
	Pos   string `json:"pos"`
	PID   uint32 `json:"pid"`
	VAddr uint64 `json:"vaddr"`
	Kind  string `json:"kind"`
	What  string `json:"what"`
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// DBTracer is a tracer that stores events into a database.
type DBTracer struct {
	mu      sync.Mutex
	backend datarecording.DataRecorder
	idGen   id.IDGenerator
	seq     uint64
}

// NewDBTracer creates a new DBTracer. The events are flushed when the
// program exits through atexit.
func NewDBTracer(dataRecorder datarecording.DataRecorder) *DBTracer {
	dataRecorder.CreateTable(EventTableName, EventEntry{})

	t := &DBTracer{
		backend: dataRecorder,
		idGen:   id.NewParallelIDGenerator(),
	}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// RecordEvent stores the event.
func (t *DBTracer) RecordEvent(evt Event) {
	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.mu.Unlock()

	entry := EventEntry{
		ID:    t.idGen.Generate(),
		Seq:   seq,
		Pos:   evt.Pos.Name,
		PID:   evt.VM.PID,
		VAddr: evt.VM.VAddr,
		Kind:  evt.VM.Kind,
		What:  evt.VM.What,
		OK:    evt.VM.OK,
	}

	if evt.Error != nil {
		entry.Error = evt.Error.Error()
	}

	t.backend.InsertData(EventTableName, entry)
}

// Terminate flushes the buffered events.
func (t *DBTracer) Terminate() {
	t.backend.Flush()
}
