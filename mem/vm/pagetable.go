package vm

import (
	"container/list"
	"sync"
)

// A PTE is an entry in the hardware page table. It maps a user virtual page
// to a physical frame and carries the bits the MMU maintains.
type PTE struct {
	PID      PID
	VAddr    uint64
	PAddr    uint64
	Present  bool
	Writable bool
	Accessed bool
	Dirty    bool
}

// A PageTable is the simulated hardware page table of all processes.
type PageTable interface {
	// Insert installs a mapping. An existing mapping at the same address is
	// replaced.
	Insert(pte PTE)

	// Remove clears the mapping of vAddr, if any.
	Remove(pid PID, vAddr uint64)

	// Find returns the entry that contains the given virtual address.
	Find(pid PID, vAddr uint64) (PTE, bool)

	// Update changes the bits of an existing entry. The PID and the VAddr
	// field locate the entry.
	Update(pte PTE)

	// SetAccessed sets or clears the accessed bit of a mapped page.
	SetAccessed(pid PID, vAddr uint64, accessed bool)

	// SetDirty sets or clears the dirty bit of a mapped page.
	SetDirty(pid PID, vAddr uint64, dirty bool)

	// RemoveProcess drops every mapping of a process.
	RemoveProcess(pid PID)

	// Entries lists the mappings of a process in insertion order.
	Entries(pid PID) []PTE
}

// NewPageTable creates a new PageTable.
func NewPageTable() PageTable {
	return &pageTableImpl{
		tables: make(map[PID]*processTable),
	}
}

type pageTableImpl struct {
	sync.Mutex
	tables map[PID]*processTable
}

func (pt *pageTableImpl) getTable(pid PID) *processTable {
	pt.Lock()
	defer pt.Unlock()

	table, found := pt.tables[pid]
	if !found {
		table = &processTable{
			entries:      list.New(),
			entriesTable: make(map[uint64]*list.Element),
		}
		pt.tables[pid] = table
	}

	return table
}

func (pt *pageTableImpl) Insert(pte PTE) {
	pte.VAddr = PageRoundDown(pte.VAddr)
	table := pt.getTable(pte.PID)
	table.insert(pte)
}

func (pt *pageTableImpl) Remove(pid PID, vAddr uint64) {
	table := pt.getTable(pid)
	table.remove(PageRoundDown(vAddr))
}

func (pt *pageTableImpl) Find(pid PID, vAddr uint64) (PTE, bool) {
	table := pt.getTable(pid)
	return table.find(PageRoundDown(vAddr))
}

func (pt *pageTableImpl) Update(pte PTE) {
	pte.VAddr = PageRoundDown(pte.VAddr)
	table := pt.getTable(pte.PID)
	table.update(pte)
}

func (pt *pageTableImpl) SetAccessed(pid PID, vAddr uint64, accessed bool) {
	table := pt.getTable(pid)
	table.modify(PageRoundDown(vAddr), func(pte *PTE) {
		pte.Accessed = accessed
	})
}

func (pt *pageTableImpl) SetDirty(pid PID, vAddr uint64, dirty bool) {
	table := pt.getTable(pid)
	table.modify(PageRoundDown(vAddr), func(pte *PTE) {
		pte.Dirty = dirty
	})
}

func (pt *pageTableImpl) RemoveProcess(pid PID) {
	pt.Lock()
	defer pt.Unlock()

	delete(pt.tables, pid)
}

func (pt *pageTableImpl) Entries(pid PID) []PTE {
	table := pt.getTable(pid)
	return table.list()
}

type processTable struct {
	sync.Mutex
	entries      *list.List
	entriesTable map[uint64]*list.Element
}

func (t *processTable) insert(pte PTE) {
	t.Lock()
	defer t.Unlock()

	if elem, found := t.entriesTable[pte.VAddr]; found {
		elem.Value = pte
		return
	}

	elem := t.entries.PushBack(pte)
	t.entriesTable[pte.VAddr] = elem
}

func (t *processTable) remove(vAddr uint64) {
	t.Lock()
	defer t.Unlock()

	elem, found := t.entriesTable[vAddr]
	if !found {
		return
	}

	t.entries.Remove(elem)
	delete(t.entriesTable, vAddr)
}

func (t *processTable) update(pte PTE) {
	t.Lock()
	defer t.Unlock()

	t.pageMustExist(pte.VAddr)

	elem := t.entriesTable[pte.VAddr]
	elem.Value = pte
}

func (t *processTable) modify(vAddr uint64, f func(pte *PTE)) {
	t.Lock()
	defer t.Unlock()

	elem, found := t.entriesTable[vAddr]
	if !found {
		return
	}

	pte := elem.Value.(PTE)
	f(&pte)
	elem.Value = pte
}

func (t *processTable) find(vAddr uint64) (PTE, bool) {
	t.Lock()
	defer t.Unlock()

	elem, found := t.entriesTable[vAddr]
	if found {
		return elem.Value.(PTE), true
	}

	return PTE{}, false
}

func (t *processTable) list() []PTE {
	t.Lock()
	defer t.Unlock()

	ptes := make([]PTE, 0, t.entries.Len())
	for e := t.entries.Front(); e != nil; e = e.Next() {
		ptes = append(ptes, e.Value.(PTE))
	}

	return ptes
}

func (t *processTable) pageMustExist(vAddr uint64) {
	_, found := t.entriesTable[vAddr]
	if !found {
		panic("page does not exist")
	}
}
