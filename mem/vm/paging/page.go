package paging

import (
	"fmt"
	"sync"

	"github.com/sarchlab/vmkit/mem/vm"
	"github.com/sarchlab/vmkit/mem/vm/frame"
	"github.com/sarchlab/vmkit/mem/vm/swap"
	"github.com/sarchlab/vmkit/sim/hooking"
)

// PageID identifies a page inside the table of one address space.
type PageID int

// A Page describes one virtual page of a process: how it is backed and which
// frame holds it while resident.
//
// The page lock guards the frame link and the variant state. It is taken
// before the frame table, swap and page table locks, never after.
type Page struct {
	mu sync.Mutex

	as       *AddressSpace
	id       PageID
	vaddr    uint64
	writable bool
	frame    *frame.Frame

	kind   Kind
	uninit uninitPage
	anon   anonPage
	file   filePage
}

type uninitPage struct {
	target Kind
	init   Initializer
}

type anonPage struct {
	slot swap.Slot
}

type filePage struct {
	mapping   *Mapping
	offset    int64
	readBytes uint64
	zeroBytes uint64
}

func newUninitPage(
	as *AddressSpace,
	target Kind,
	vaddr uint64,
	writable bool,
	init Initializer,
) *Page {
	return &Page{
		as:       as,
		vaddr:    vaddr,
		writable: writable,
		kind:     KindUninit,
		uninit:   uninitPage{target: target, init: init},
		anon:     anonPage{slot: swap.NoSlot},
	}
}

// PID returns the process the page belongs to.
func (p *Page) PID() vm.PID {
	return p.as.pid
}

// VAddr returns the virtual address of the page.
func (p *Page) VAddr() uint64 {
	return p.vaddr
}

// Writable tells if user code may write the page.
func (p *Page) Writable() bool {
	return p.writable
}

// Kind returns the current state of the page, KindUninit included.
func (p *Page) Kind() Kind {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.kind
}

// Type returns the kind the page has or will have once it is claimed.
func (p *Page) Type() Kind {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.typ()
}

func (p *Page) typ() Kind {
	if p.kind == KindUninit {
		return p.uninit.target
	}

	return p.kind
}

// Resident tells if the page is currently backed by a frame.
func (p *Page) Resident() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.frame != nil
}

// Accessed reads the hardware accessed bit of the page mapping.
func (p *Page) Accessed() bool {
	pte, found := p.as.mgr.pageTable.Find(p.as.pid, p.vaddr)
	return found && pte.Accessed
}

// ClearAccessed clears the hardware accessed bit of the page mapping.
func (p *Page) ClearAccessed() {
	p.as.mgr.pageTable.SetAccessed(p.as.pid, p.vaddr, false)
}

func (p *Page) dirty() bool {
	pte, found := p.as.mgr.pageTable.Find(p.as.pid, p.vaddr)
	return found && pte.Dirty
}

// Evict pages the content out of f and unmaps the page. It is called by the
// frame table with no table lock held.
func (p *Page) Evict(f *frame.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frame != f {
		return nil
	}

	err := p.swapOut()
	if err == nil {
		p.frame = nil
	}

	p.as.mgr.invokeHook(hooking.HookPosPageOut, p, err)

	return err
}

// swapIn fills kva with the content of the page. An uninitialized page
// turns into its target kind first and goes back to uninitialized if the
// initializer fails.
func (p *Page) swapIn(kva []byte) error {
	switch p.kind {
	case KindUninit:
		return p.uninitSwapIn(kva)
	case KindAnon:
		return p.anonSwapIn(kva)
	case KindFile:
		return p.fileSwapIn(kva)
	default:
		panic(fmt.Sprintf("page 0x%x has unknown kind %d", p.vaddr, p.kind))
	}
}

// swapOut saves the content of the resident page to its backing store and
// removes the hardware mapping.
func (p *Page) swapOut() error {
	switch p.kind {
	case KindAnon:
		return p.anonSwapOut()
	case KindFile:
		return p.fileSwapOut()
	default:
		panic(fmt.Sprintf("swapping out %s page 0x%x", p.kind, p.vaddr))
	}
}

// destroy releases everything the page holds. File pages are written back
// when dirty. The page must already be out of its table.
func (p *Page) destroy() error {
	var err error

	switch p.kind {
	case KindUninit:
	case KindAnon:
		p.anonDestroy()
	case KindFile:
		err = p.fileDestroy()
	default:
		panic(fmt.Sprintf("page 0x%x has unknown kind %d", p.vaddr, p.kind))
	}

	if p.frame != nil {
		p.as.mgr.pageTable.Remove(p.as.pid, p.vaddr)
		p.as.mgr.frames.Release(p.frame)
		p.frame = nil
	}

	return err
}

func (p *Page) uninitSwapIn(kva []byte) error {
	u := p.uninit

	switch u.target {
	case KindAnon:
		p.kind = KindAnon
		p.anon = anonPage{slot: swap.NoSlot}
	case KindFile:
		ml := u.init.(MappingLoad)
		p.kind = KindFile
		p.file = filePage{
			mapping:   ml.Mapping,
			offset:    ml.Offset,
			readBytes: ml.ReadBytes,
			zeroBytes: ml.ZeroBytes,
		}
	}

	err := p.runInitializer(kva)
	if err != nil {
		p.kind = KindUninit
		p.anon = anonPage{slot: swap.NoSlot}
		p.file = filePage{}

		return err
	}

	return nil
}

func (p *Page) runInitializer(kva []byte) error {
	switch init := p.uninit.init.(type) {
	case ZeroFill:
		clear(kva)
		return nil
	case SegmentLoad:
		return readPage(init.File, init.Offset, init.ReadBytes, kva)
	case MappingLoad:
		return readPage(init.Mapping.file, init.Offset, init.ReadBytes, kva)
	default:
		panic(fmt.Sprintf("unknown initializer %T", init))
	}
}

func (p *Page) anonSwapIn(kva []byte) error {
	if p.anon.slot == swap.NoSlot {
		return fmt.Errorf("page 0x%x: %w", p.vaddr, ErrNoSwapSlot)
	}

	err := p.as.mgr.swap.SwapIn(p.anon.slot, kva)
	if err != nil {
		return err
	}

	p.anon.slot = swap.NoSlot

	return nil
}

func (p *Page) anonSwapOut() error {
	slot, err := p.as.mgr.swap.SwapOut(p.frame.Bytes())
	if err != nil {
		return fmt.Errorf("page 0x%x: %w", p.vaddr, err)
	}

	p.anon.slot = slot
	p.as.mgr.pageTable.Remove(p.as.pid, p.vaddr)

	return nil
}

func (p *Page) anonDestroy() {
	if p.anon.slot != swap.NoSlot {
		p.as.mgr.swap.Release(p.anon.slot)
		p.anon.slot = swap.NoSlot
	}
}

func (p *Page) fileSwapIn(kva []byte) error {
	fp := p.file
	return readPage(fp.mapping.file, fp.offset, fp.readBytes, kva)
}

func (p *Page) fileSwapOut() error {
	err := p.writeBack()
	if err != nil {
		return err
	}

	p.as.mgr.pageTable.Remove(p.as.pid, p.vaddr)

	return nil
}

func (p *Page) fileDestroy() error {
	if p.frame == nil {
		return nil
	}

	return p.writeBack()
}

// writeBack stores a dirty resident file page into its file and clears the
// dirty bit.
func (p *Page) writeBack() error {
	if !p.dirty() {
		return nil
	}

	fp := p.file
	f := fp.mapping.file
	data := p.frame.Bytes()[:fp.readBytes]

	n, err := f.WriteAt(data, fp.offset)
	if err != nil {
		return fmt.Errorf("%s at %d: %w: %w",
			f.Name(), fp.offset, ErrShortWrite, err)
	}

	if uint64(n) < fp.readBytes {
		return fmt.Errorf("%s: wrote %d of %d bytes at %d: %w",
			f.Name(), n, fp.readBytes, fp.offset, ErrShortWrite)
	}

	p.as.mgr.pageTable.SetDirty(p.as.pid, p.vaddr, false)

	return nil
}

// PageInfo is a point-in-time description of a page.
type PageInfo struct {
	VAddr    uint64 `json:"vaddr"`
	Kind     string `json:"kind"`
	Type     string `json:"type"`
	Writable bool   `json:"writable"`
	Resident bool   `json:"resident"`
	PAddr    uint64 `json:"paddr"`
	SwapSlot int    `json:"swap_slot"`
	Accessed bool   `json:"accessed"`
	Dirty    bool   `json:"dirty"`
	Mapping  string `json:"mapping,omitempty"`
}

// Info describes the page.
func (p *Page) Info() PageInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := PageInfo{
		VAddr:    p.vaddr,
		Kind:     p.kind.String(),
		Type:     p.typ().String(),
		Writable: p.writable,
		Resident: p.frame != nil,
		SwapSlot: int(swap.NoSlot),
	}

	if p.frame != nil {
		info.PAddr = p.frame.PAddr
		pte, _ := p.as.mgr.pageTable.Find(p.as.pid, p.vaddr)
		info.Accessed = pte.Accessed
		info.Dirty = pte.Dirty
	}

	switch p.kind {
	case KindAnon:
		info.SwapSlot = int(p.anon.slot)
	case KindFile:
		info.Mapping = p.file.mapping.ID
	case KindUninit:
		if ml, ok := p.uninit.init.(MappingLoad); ok {
			info.Mapping = ml.Mapping.ID
		}
	}

	return info
}
