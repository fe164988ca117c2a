package paging

import (
	"fmt"

	"github.com/sarchlab/vmkit/mem/vm"
	"github.com/sarchlab/vmkit/mem/vm/swap"
)

// CopyFrom fills the empty address space as with a copy of src, as a fork
// does. Lazy pages stay lazy and repeat the load of the parent. Materialized
// pages are copied into new frames, from the backing store when the parent
// page is not resident. Mappings get their own reopened file handles.
//
// On failure the copy stops and the caller destroys as.
func (as *AddressSpace) CopyFrom(src *AddressSpace) error {
	clones, err := as.cloneMappings(src)
	if err != nil {
		return err
	}

	src.mu.Lock()
	as.mu.Lock()
	as.stackBottom = src.stackBottom
	as.userRSP = src.userRSP
	as.rsp = src.rsp
	as.mu.Unlock()
	src.mu.Unlock()

	for _, parent := range src.spt.Pages() {
		err := as.copyPage(parent, clones)
		if err != nil {
			return fmt.Errorf("fork page 0x%x: %w", parent.vaddr, err)
		}
	}

	return nil
}

func (as *AddressSpace) cloneMappings(
	src *AddressSpace,
) (map[*Mapping]*Mapping, error) {
	clones := make(map[*Mapping]*Mapping)

	for _, m := range src.Mappings() {
		handle, err := m.file.Reopen()
		if err != nil {
			return nil, fmt.Errorf("fork mapping 0x%x: %w", m.Start, err)
		}

		clone := &Mapping{
			ID:       as.mgr.idGen.Generate(),
			Start:    m.Start,
			NumPages: m.NumPages,
			Length:   m.Length,
			Offset:   m.Offset,
			Writable: m.Writable,
			file:     handle,
		}
		clones[m] = clone

		as.mu.Lock()
		as.mappings[clone.Start] = clone
		as.mu.Unlock()
	}

	return clones, nil
}

func (as *AddressSpace) copyPage(
	parent *Page,
	clones map[*Mapping]*Mapping,
) error {
	parent.mu.Lock()
	child := &Page{
		as:       as,
		vaddr:    parent.vaddr,
		writable: parent.writable,
		kind:     parent.kind,
		uninit:   parent.uninit,
		anon:     anonPage{slot: swap.NoSlot},
		file:     parent.file,
	}
	parent.mu.Unlock()

	switch child.kind {
	case KindUninit:
		if ml, ok := child.uninit.init.(MappingLoad); ok {
			ml.Mapping = clones[ml.Mapping]
			child.uninit.init = ml
		}
	case KindFile:
		child.file.mapping = clones[child.file.mapping]
	}

	if !as.spt.Insert(child) {
		return fmt.Errorf("0x%x: %w", child.vaddr, ErrPageExists)
	}

	if child.kind == KindUninit {
		return nil
	}

	return as.copyContent(parent, child)
}

// copyContent claims a frame for child filled with the content of parent.
// The frame is acquired before the parent is locked since the acquisition
// may evict the parent itself.
func (as *AddressSpace) copyContent(parent, child *Page) error {
	f, err := as.mgr.frames.Acquire()
	if err != nil {
		return err
	}

	parent.mu.Lock()
	err = parent.readContent(f.Bytes())
	dirty := parent.frame != nil && parent.dirty()
	parent.mu.Unlock()

	if err != nil {
		as.mgr.frames.Discard(f)
		return err
	}

	child.mu.Lock()
	defer child.mu.Unlock()

	child.frame = f
	as.mgr.pageTable.Insert(vm.PTE{
		PID:      as.pid,
		VAddr:    child.vaddr,
		PAddr:    f.PAddr,
		Present:  true,
		Writable: child.writable,
		Dirty:    dirty,
	})
	as.mgr.frames.Register(f, child)

	return nil
}

// readContent copies the current content of a materialized page into buf.
// The page lock must be held.
func (p *Page) readContent(buf []byte) error {
	if p.frame != nil {
		copy(buf, p.frame.Bytes())
		return nil
	}

	switch p.kind {
	case KindAnon:
		if p.anon.slot == swap.NoSlot {
			return fmt.Errorf("page 0x%x: %w", p.vaddr, ErrNoSwapSlot)
		}

		return p.as.mgr.swap.ReadPage(p.anon.slot, buf)
	case KindFile:
		return p.fileSwapIn(buf)
	default:
		panic(fmt.Sprintf("copying %s page 0x%x", p.kind, p.vaddr))
	}
}
