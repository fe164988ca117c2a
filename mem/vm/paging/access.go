package paging

import (
	"fmt"

	"github.com/sarchlab/vmkit/mem/vm"
)

// maxFaultsPerPage bounds how often one page access may fault before giving
// up. A page can be evicted again between the fault and the retry.
const maxFaultsPerPage = 8

// Read performs a user-mode load of n bytes at addr.
func (as *AddressSpace) Read(addr uint64, n int) ([]byte, error) {
	buf := make([]byte, n)

	err := as.access(addr, buf, false)
	if err != nil {
		return nil, err
	}

	return buf, nil
}

// Write performs a user-mode store of data at addr.
func (as *AddressSpace) Write(addr uint64, data []byte) error {
	return as.access(addr, data, true)
}

func (as *AddressSpace) access(addr uint64, buf []byte, write bool) error {
	done := 0

	for done < len(buf) {
		va := addr + uint64(done)
		n := min(uint64(len(buf)-done), vm.PageSize-vm.PageOffset(va))

		err := as.accessPage(va, buf[done:done+int(n)], write)
		if err != nil {
			return err
		}

		done += int(n)
	}

	return nil
}

// accessPage moves buf in or out of the page containing va. A miss in the
// page table raises a user fault and the access is retried.
func (as *AddressSpace) accessPage(va uint64, buf []byte, write bool) error {
	for i := 0; i < maxFaultsPerPage; i++ {
		if vm.IsUserAddr(va) && va != 0 {
			done, err := as.tryAccess(va, buf, write)
			if done || err != nil {
				return err
			}
		}

		err := as.HandleFault(Fault{
			Addr:       va,
			User:       true,
			Write:      write,
			NotPresent: true,
			RSP:        as.StackPointer(),
		})
		if err != nil {
			return err
		}
	}

	return fmt.Errorf("0x%x: page keeps getting evicted", va)
}

// tryAccess performs the access if the page is mapped in hardware. It
// reports false when the access has to fault first.
func (as *AddressSpace) tryAccess(
	va uint64,
	buf []byte,
	write bool,
) (bool, error) {
	p, found := as.spt.Find(va)
	if !found {
		return false, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pte, mapped := as.mgr.pageTable.Find(as.pid, va)
	if p.frame == nil || !mapped || !pte.Present {
		return false, nil
	}

	if write && !pte.Writable {
		return true, as.HandleFault(Fault{
			Addr:  va,
			User:  true,
			Write: true,
			RSP:   as.StackPointer(),
		})
	}

	offset := vm.PageOffset(va)
	kva := p.frame.Bytes()

	if write {
		copy(kva[offset:], buf)
		pte.Dirty = true
	} else {
		copy(buf, kva[offset:])
	}

	pte.Accessed = true
	as.mgr.pageTable.Update(pte)

	return true, nil
}
