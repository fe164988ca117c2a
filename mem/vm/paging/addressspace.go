package paging

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sarchlab/vmkit/mem/vm"
	"github.com/sarchlab/vmkit/sim/hooking"
)

// An AddressSpace is the virtual memory of one process.
type AddressSpace struct {
	mgr *Manager
	pid vm.PID
	spt *SPT

	mu          sync.Mutex
	mappings    map[uint64]*Mapping
	stackBottom uint64
	userRSP     uint64
	rsp         uint64
}

// PID returns the process that owns the address space.
func (as *AddressSpace) PID() vm.PID {
	return as.pid
}

// SPT returns the supplemental page table.
func (as *AddressSpace) SPT() *SPT {
	return as.spt
}

// StackBottom returns the lowest address of the stack reserved so far.
func (as *AddressSpace) StackBottom() uint64 {
	as.mu.Lock()
	defer as.mu.Unlock()

	return as.stackBottom
}

// SetUserRSP records the user stack pointer saved at system call entry. It
// is used to judge stack growth for faults raised in kernel mode.
func (as *AddressSpace) SetUserRSP(rsp uint64) {
	as.mu.Lock()
	defer as.mu.Unlock()

	as.userRSP = rsp
}

// SetStackPointer sets the stack pointer of the running user code.
func (as *AddressSpace) SetStackPointer(rsp uint64) {
	as.mu.Lock()
	defer as.mu.Unlock()

	as.rsp = rsp
}

// StackPointer returns the stack pointer of the running user code.
func (as *AddressSpace) StackPointer() uint64 {
	as.mu.Lock()
	defer as.mu.Unlock()

	return as.rsp
}

// AllocPage registers a lazy zero-filled page.
func (as *AddressSpace) AllocPage(kind Kind, addr uint64, writable bool) error {
	return as.AllocPageWithInitializer(kind, addr, writable, ZeroFill{})
}

// AllocPageWithInitializer registers a lazy page that turns into kind the
// first time it is claimed, with init providing its content. No frame is
// taken and no I/O happens until then.
func (as *AddressSpace) AllocPageWithInitializer(
	kind Kind,
	addr uint64,
	writable bool,
	init Initializer,
) error {
	if init == nil {
		init = ZeroFill{}
	}

	if kind != KindAnon && kind != KindFile {
		return fmt.Errorf("%w: cannot allocate a %s page", ErrBadPageKind, kind)
	}

	if err := checkInitializer(kind, init); err != nil {
		return err
	}

	if addr == 0 || !vm.IsUserAddr(addr) {
		return fmt.Errorf("0x%x: %w", addr, ErrKernelAddress)
	}

	p := newUninitPage(as, kind, vm.PageRoundDown(addr), writable, init)
	if !as.spt.Insert(p) {
		return fmt.Errorf("0x%x: %w", p.vaddr, ErrPageExists)
	}

	return nil
}

// ClaimPage makes the page at addr resident.
func (as *AddressSpace) ClaimPage(addr uint64) error {
	p, found := as.spt.Find(addr)
	if !found {
		return fmt.Errorf("0x%x: %w", addr, ErrNotMapped)
	}

	return as.claim(p)
}

// claim gets a frame for p, pages the content in, installs the hardware
// mapping and hands the frame to the frame table. Nothing is linked if the
// page-in fails.
func (as *AddressSpace) claim(p *Page) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frame != nil {
		return nil
	}

	f, err := as.mgr.frames.Acquire()
	if err != nil {
		as.mgr.invokeHook(hooking.HookPosPageIn, p, err)
		return fmt.Errorf("claim 0x%x: %w", p.vaddr, err)
	}

	err = p.swapIn(f.Bytes())
	if err != nil {
		as.mgr.frames.Discard(f)
		as.mgr.invokeHook(hooking.HookPosPageIn, p, err)

		return fmt.Errorf("claim 0x%x: %w", p.vaddr, err)
	}

	p.frame = f
	as.mgr.pageTable.Insert(vm.PTE{
		PID:      as.pid,
		VAddr:    p.vaddr,
		PAddr:    f.PAddr,
		Present:  true,
		Writable: p.writable,
	})
	as.mgr.frames.Register(f, p)
	as.mgr.invokeHook(hooking.HookPosPageIn, p, nil)

	return nil
}

// SetupStack reserves and claims the first stack page right below
// vm.UserStack and points the stack pointer at the stack top.
func (as *AddressSpace) SetupStack() error {
	stackPage := vm.UserStack - vm.PageSize

	err := as.AllocPage(KindAnon, stackPage, true)
	if err != nil {
		return err
	}

	err = as.ClaimPage(stackPage)
	if err != nil {
		return err
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	as.stackBottom = stackPage
	as.rsp = vm.UserStack
	as.userRSP = vm.UserStack

	return nil
}

// Pages describes every page in ascending address order.
func (as *AddressSpace) Pages() []PageInfo {
	pages := as.spt.Pages()

	infos := make([]PageInfo, 0, len(pages))
	for _, p := range pages {
		infos = append(infos, p.Info())
	}

	return infos
}

// Destroy releases every page of the process. Dirty file pages are written
// back. Mapping handles still open are closed, the hardware mappings are
// dropped and the address space leaves its manager.
func (as *AddressSpace) Destroy() error {
	err := as.spt.DestroyAll()

	as.mu.Lock()
	mappings := as.mappings
	as.mappings = make(map[uint64]*Mapping)
	as.mu.Unlock()

	for _, m := range mappings {
		err = errors.Join(err, m.close())
	}

	as.mgr.pageTable.RemoveProcess(as.pid)
	as.mgr.forget(as)

	return err
}

// Exit unmaps every mapping and then destroys the address space.
func (as *AddressSpace) Exit() error {
	var err error

	for _, m := range as.Mappings() {
		err = errors.Join(err, as.Munmap(m.Start))
	}

	return errors.Join(err, as.Destroy())
}
