package frame

import (
	"container/list"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/vmkit/memory"
	"github.com/sarchlab/vmkit/sim/hooking"
	"github.com/sarchlab/vmkit/sim/id"
)

// ErrNoFrame is returned when the pool is exhausted and no registered frame
// can be taken as a victim, that is, every frame is held by a page-in or an
// eviction in progress.
var ErrNoFrame = errors.New("no frame available")

// A Table tracks every frame that currently backs a resident page.
//
// The table lock guards the frame list. Frames go back to the pool with the
// lock held, so a frame is always either free, listed, or held by the
// goroutine that acquired it. The lock is released before a victim is paged
// out; disk I/O never runs with it held.
type Table struct {
	sync.Mutex
	hooking.HookableBase

	pool   *memory.Pool
	idGen  id.IDGenerator
	frames *list.List

	numEvictions      atomic.Uint64
	numFailedEviction atomic.Uint64
}

// NewTable creates a frame table over the pool. IDs are sequential when
// idGen is nil.
func NewTable(pool *memory.Pool, idGen id.IDGenerator) *Table {
	if pool == nil {
		panic("frame table requires a user pool")
	}

	if idGen == nil {
		idGen = id.NewIDGenerator()
	}

	return &Table{
		pool:   pool,
		idGen:  idGen,
		frames: list.New(),
	}
}

// Pool returns the user pool the frames come from.
func (t *Table) Pool() *memory.Pool {
	return t.pool
}

// Acquire returns a frame that is not registered to any page. It takes a
// free physical page when the pool has one and evicts a victim otherwise.
func (t *Table) Acquire() (*Frame, error) {
	paddr, ok := t.pool.Alloc()
	if ok {
		return t.newFrame(paddr), nil
	}

	return t.evict()
}

// Register makes f visible to victim selection as the frame of owner. It
// must be called only after the content of the owner has been paged in.
func (t *Table) Register(f *Frame, owner Owner) {
	t.Lock()
	defer t.Unlock()

	if f.elem != nil {
		panic("frame " + f.ID + " is already registered")
	}

	f.owner = owner
	f.elem = t.frames.PushBack(f)
}

// Discard returns an unregistered frame to the pool.
func (t *Table) Discard(f *Frame) {
	t.Lock()
	defer t.Unlock()

	if f.elem != nil {
		panic("discarding registered frame " + f.ID)
	}

	t.pool.Free(f.PAddr)
}

// Release removes f from the table and frees its physical page. A frame
// that is being evicted is left to the evictor.
func (t *Table) Release(f *Frame) {
	t.Lock()

	if f.evicting {
		f.orphaned = true
		t.Unlock()

		return
	}

	if f.elem != nil {
		t.frames.Remove(f.elem)
		f.elem = nil
	}

	f.owner = nil
	t.pool.Free(f.PAddr)
	t.Unlock()
}

// Len returns the number of registered frames.
func (t *Table) Len() int {
	t.Lock()
	defer t.Unlock()

	return t.frames.Len()
}

// NumEvictions returns how many frames have been reclaimed by eviction.
func (t *Table) NumEvictions() uint64 {
	return t.numEvictions.Load()
}

// NumFailedEvictions returns how many evictions the owner refused.
func (t *Table) NumFailedEvictions() uint64 {
	return t.numFailedEviction.Load()
}

// Frames describes the registered frames in clock order.
func (t *Table) Frames() []Info {
	t.Lock()
	defer t.Unlock()

	infos := make([]Info, 0, t.frames.Len())
	for e := t.frames.Front(); e != nil; e = e.Next() {
		f := e.Value.(*Frame)
		infos = append(infos, Info{
			ID:       f.ID,
			PAddr:    f.PAddr,
			PID:      f.owner.PID(),
			VAddr:    f.owner.VAddr(),
			Accessed: f.owner.Accessed(),
		})
	}

	return infos
}

func (t *Table) newFrame(paddr uint64) *Frame {
	return &Frame{
		ID:    t.idGen.Generate(),
		PAddr: paddr,
		kva:   t.pool.Bytes(paddr),
	}
}

// evict reclaims a frame. A frame released since Acquire found the pool
// empty is taken before any victim is considered.
func (t *Table) evict() (*Frame, error) {
	t.Lock()
	if paddr, ok := t.pool.Alloc(); ok {
		t.Unlock()
		return t.newFrame(paddr), nil
	}

	victim := t.selectVictim()
	t.Unlock()

	if victim == nil {
		return nil, ErrNoFrame
	}

	owner := victim.owner
	err := owner.Evict(victim)

	t.Lock()
	victim.evicting = false
	if err != nil && !victim.orphaned {
		victim.elem = t.frames.PushBack(victim)
		t.Unlock()

		t.numFailedEviction.Add(1)
		t.invokeEvictHook(owner, victim, false)

		return nil, err
	}

	victim.owner = nil
	t.Unlock()

	t.numEvictions.Add(1)
	t.invokeEvictHook(owner, victim, true)

	return t.newFrame(victim.PAddr), nil
}

// selectVictim runs one pass of the clock over the frame list. A frame whose
// page was accessed gets its bit cleared and moves to the tail. The first
// frame found with a clear bit is taken; if every frame was accessed the
// head is taken. The victim leaves the list marked as evicting.
func (t *Table) selectVictim() *Frame {
	n := t.frames.Len()
	if n == 0 {
		return nil
	}

	var victim *Frame
	for i := 0; i < n; i++ {
		e := t.frames.Front()
		f := e.Value.(*Frame)

		if !f.owner.Accessed() {
			victim = f
			break
		}

		f.owner.ClearAccessed()
		t.frames.MoveToBack(e)
	}

	if victim == nil {
		victim = t.frames.Front().Value.(*Frame)
	}

	t.frames.Remove(victim.elem)
	victim.elem = nil
	victim.evicting = true

	return victim
}

func (t *Table) invokeEvictHook(owner Owner, f *Frame, ok bool) {
	if t.NumHooks() == 0 {
		return
	}

	t.InvokeHook(hooking.HookCtx{
		Domain: t,
		Pos:    hooking.HookPosFrameEvict,
		Item: hooking.VMEvent{
			PID:   uint32(owner.PID()),
			VAddr: owner.VAddr(),
			Kind:  "frame",
			What:  f.ID,
			OK:    ok,
		},
		Detail: f,
	})
}
