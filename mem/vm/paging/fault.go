package paging

import (
	"fmt"

	"github.com/sarchlab/vmkit/mem/vm"
	"github.com/sarchlab/vmkit/sim/hooking"
)

// A Fault describes a page fault raised by the MMU.
type Fault struct {
	Addr       uint64
	User       bool
	Write      bool
	NotPresent bool

	// RSP is the stack pointer at the time of a user-mode fault.
	RSP uint64
}

// HandleFault resolves a page fault. An error means the fault cannot be
// resolved and the process must be terminated.
func (as *AddressSpace) HandleFault(f Fault) error {
	err := as.handleFault(f)

	as.mgr.invokeAddrHook(hooking.HookPosPageFault, as, f.Addr,
		faultKind(f), err)

	return err
}

func faultKind(f Fault) string {
	access := "read"
	if f.Write {
		access = "write"
	}

	mode := "kernel"
	if f.User {
		mode = "user"
	}

	if f.NotPresent {
		return mode + " " + access + " not-present"
	}

	return mode + " " + access + " protection"
}

func (as *AddressSpace) handleFault(f Fault) error {
	if f.Addr == 0 || vm.IsKernelAddr(f.Addr) {
		return fmt.Errorf("0x%x: %w", f.Addr, ErrKernelAddress)
	}

	p, found := as.spt.Find(f.Addr)

	if !f.NotPresent {
		if !found {
			return fmt.Errorf("0x%x: %w", f.Addr, ErrNotMapped)
		}

		if f.Write && !p.writable {
			return fmt.Errorf("0x%x: %w", f.Addr, ErrReadOnly)
		}

		return nil
	}

	if found {
		if f.Write && !p.writable {
			return fmt.Errorf("0x%x: %w", f.Addr, ErrReadOnly)
		}

		return as.claim(p)
	}

	rsp := f.RSP
	if !f.User {
		rsp = as.savedUserRSP()
	}

	if !stackGrowthAllowed(f.Addr, rsp) {
		return fmt.Errorf("0x%x: %w", f.Addr, ErrNotMapped)
	}

	return as.growStack(f.Addr)
}

func (as *AddressSpace) savedUserRSP() uint64 {
	as.mu.Lock()
	defer as.mu.Unlock()

	return as.userRSP
}

// stackGrowthAllowed tells if a fault at addr can be served by extending the
// stack. The address must be under the stack top, within the maximum stack
// size, and no more than vm.StackSlack bytes below the stack pointer.
func stackGrowthAllowed(addr, rsp uint64) bool {
	if addr >= vm.UserStack {
		return false
	}

	if vm.UserStack-vm.PageRoundDown(addr) > vm.MaxStackSize {
		return false
	}

	return addr+vm.StackSlack >= rsp
}

// growStack reserves zero-filled writable pages from the current stack
// bottom down to the page of addr and claims the page of addr.
func (as *AddressSpace) growStack(addr uint64) error {
	target := vm.PageRoundDown(addr)

	as.mu.Lock()
	for as.stackBottom > target {
		va := as.stackBottom - vm.PageSize

		err := as.AllocPage(KindAnon, va, true)
		if err != nil {
			as.mu.Unlock()
			as.mgr.invokeAddrHook(hooking.HookPosStackGrowth, as, addr,
				"grow", err)

			return err
		}

		as.stackBottom = va
	}
	as.mu.Unlock()

	as.mgr.invokeAddrHook(hooking.HookPosStackGrowth, as, addr, "grow", nil)

	p, found := as.spt.Find(target)
	if !found {
		return fmt.Errorf("0x%x: %w", addr, ErrNotMapped)
	}

	return as.claim(p)
}
