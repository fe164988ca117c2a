// Package frame keeps the global table of physical frames that back user
// pages and picks eviction victims with a clock sweep.
package frame

import (
	"container/list"

	"github.com/sarchlab/vmkit/mem/vm"
)

// An Owner is the page a frame is assigned to.
type Owner interface {
	// PID returns the process the page belongs to.
	PID() vm.PID

	// VAddr returns the virtual address of the page.
	VAddr() uint64

	// Accessed tells if the hardware accessed bit of the page mapping is set.
	Accessed() bool

	// ClearAccessed clears the hardware accessed bit of the page mapping.
	ClearAccessed()

	// Evict pages the content out and detaches the page from f. It returns
	// nil without doing anything if the page is no longer backed by f.
	Evict(f *Frame) error
}

// A Frame is a physical page handed to exactly one user page.
type Frame struct {
	ID    string
	PAddr uint64

	kva      []byte
	owner    Owner
	elem     *list.Element
	evicting bool
	orphaned bool
}

// Bytes returns the kernel view of the frame content.
func (f *Frame) Bytes() []byte {
	return f.kva
}

// Owner returns the page the frame is registered to, or nil.
func (f *Frame) Owner() Owner {
	return f.owner
}

// Info is a point-in-time description of a registered frame.
type Info struct {
	ID       string `json:"id"`
	PAddr    uint64 `json:"paddr"`
	PID      vm.PID `json:"pid"`
	VAddr    uint64 `json:"vaddr"`
	Accessed bool   `json:"accessed"`
}
