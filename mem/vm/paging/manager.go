// Package paging implements demand paging for user processes: supplemental
// page tables, lazy pages, the fault handler with stack growth, memory
// mapped files and fork copies.
package paging

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sarchlab/vmkit/mem/vm"
	"github.com/sarchlab/vmkit/mem/vm/frame"
	"github.com/sarchlab/vmkit/mem/vm/swap"
	"github.com/sarchlab/vmkit/memory"
	"github.com/sarchlab/vmkit/sim/hooking"
	"github.com/sarchlab/vmkit/sim/id"
)

// A Manager owns the resources shared by all address spaces: the user pool,
// the frame table, the swap store and the hardware page table.
type Manager struct {
	hooking.HookableBase

	pool      *memory.Pool
	frames    *frame.Table
	swap      *swap.Store
	pageTable vm.PageTable
	idGen     id.IDGenerator

	mu     sync.Mutex
	spaces map[vm.PID]*AddressSpace
}

// AcceptHook registers a hook with the manager and with its frame table.
func (m *Manager) AcceptHook(hook hooking.Hook) {
	m.HookableBase.AcceptHook(hook)
	m.frames.AcceptHook(hook)
}

// Pool returns the user pool.
func (m *Manager) Pool() *memory.Pool {
	return m.pool
}

// FrameTable returns the frame table.
func (m *Manager) FrameTable() *frame.Table {
	return m.frames
}

// SwapStore returns the swap store.
func (m *Manager) SwapStore() *swap.Store {
	return m.swap
}

// PageTable returns the hardware page table.
func (m *Manager) PageTable() vm.PageTable {
	return m.pageTable
}

// NewAddressSpace creates the empty address space of a new process.
func (m *Manager) NewAddressSpace(pid vm.PID) (*AddressSpace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.spaces[pid]; found {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrPIDInUse)
	}

	as := &AddressSpace{
		mgr:         m,
		pid:         pid,
		spt:         NewSPT(),
		mappings:    make(map[uint64]*Mapping),
		stackBottom: vm.UserStack,
	}
	m.spaces[pid] = as

	return as, nil
}

// AddressSpace returns the address space of a process.
func (m *Manager) AddressSpace(pid vm.PID) (*AddressSpace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	as, found := m.spaces[pid]

	return as, found
}

// AddressSpaces lists the live address spaces by PID.
func (m *Manager) AddressSpaces() []*AddressSpace {
	m.mu.Lock()
	spaces := make([]*AddressSpace, 0, len(m.spaces))
	for _, as := range m.spaces {
		spaces = append(spaces, as)
	}
	m.mu.Unlock()

	sort.Slice(spaces, func(i, j int) bool {
		return spaces[i].pid < spaces[j].pid
	})

	return spaces
}

func (m *Manager) forget(as *AddressSpace) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.spaces[as.pid] == as {
		delete(m.spaces, as.pid)
	}
}

// Stats is a summary of the memory resources.
type Stats struct {
	NumFrames          int    `json:"num_frames"`
	NumFreeFrames      int    `json:"num_free_frames"`
	NumResidentFrames  int    `json:"num_resident_frames"`
	NumSwapSlots       int    `json:"num_swap_slots"`
	NumUsedSwapSlots   int    `json:"num_used_swap_slots"`
	NumEvictions       uint64 `json:"num_evictions"`
	NumFailedEvictions uint64 `json:"num_failed_evictions"`
	NumProcesses       int    `json:"num_processes"`
}

// Stats summarizes the current resource usage.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	numProcesses := len(m.spaces)
	m.mu.Unlock()

	return Stats{
		NumFrames:          m.pool.NumFrames(),
		NumFreeFrames:      m.pool.NumFree(),
		NumResidentFrames:  m.frames.Len(),
		NumSwapSlots:       m.swap.NumSlots(),
		NumUsedSwapSlots:   m.swap.NumUsed(),
		NumEvictions:       m.frames.NumEvictions(),
		NumFailedEvictions: m.frames.NumFailedEvictions(),
		NumProcesses:       numProcesses,
	}
}

func (m *Manager) invokeHook(pos *hooking.HookPos, p *Page, err error) {
	if m.NumHooks() == 0 {
		return
	}

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    pos,
		Item: hooking.VMEvent{
			PID:   uint32(p.as.pid),
			VAddr: p.vaddr,
			Kind:  p.typ().String(),
			What:  pos.Name,
			OK:    err == nil,
		},
		Detail: err,
	})
}

func (m *Manager) invokeAddrHook(
	pos *hooking.HookPos,
	as *AddressSpace,
	addr uint64,
	what string,
	err error,
) {
	if m.NumHooks() == 0 {
		return
	}

	m.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    pos,
		Item: hooking.VMEvent{
			PID:   uint32(as.pid),
			VAddr: addr,
			What:  what,
			OK:    err == nil,
		},
		Detail: err,
	})
}
