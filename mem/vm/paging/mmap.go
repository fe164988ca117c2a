package paging

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sarchlab/vmkit/filesys"
	"github.com/sarchlab/vmkit/mem/vm"
	"github.com/sarchlab/vmkit/sim/hooking"
)

// A Mapping is a file range mapped into an address space. It owns its file
// handle, which is reopened from the handle given to Mmap.
type Mapping struct {
	ID       string `json:"id"`
	Start    uint64 `json:"start"`
	NumPages int    `json:"num_pages"`
	Length   uint64 `json:"length"`
	Offset   int64  `json:"offset"`
	Writable bool   `json:"writable"`

	file filesys.File
}

// End returns the first address after the mapped pages.
func (m *Mapping) End() uint64 {
	return m.Start + uint64(m.NumPages)*vm.PageSize
}

// FileName returns the name of the mapped file.
func (m *Mapping) FileName() string {
	return m.file.Name()
}

func (m *Mapping) close() error {
	if m.file == nil {
		return nil
	}

	err := m.file.Close()
	m.file = nil

	return err
}

// Mappings lists the active mappings by start address.
func (as *AddressSpace) Mappings() []*Mapping {
	as.mu.Lock()
	mappings := make([]*Mapping, 0, len(as.mappings))
	for _, m := range as.mappings {
		mappings = append(mappings, m)
	}
	as.mu.Unlock()

	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].Start < mappings[j].Start
	})

	return mappings
}

// Mmap maps length bytes of file, starting at offset, at addr. The pages are
// lazy; nothing is read until they are touched. It returns addr.
func (as *AddressSpace) Mmap(
	addr uint64,
	length uint64,
	writable bool,
	file filesys.File,
	offset int64,
) (uint64, error) {
	err := as.mmap(addr, length, writable, file, offset)

	as.mgr.invokeAddrHook(hooking.HookPosMmap, as, addr, "mmap", err)

	if err != nil {
		return 0, err
	}

	return addr, nil
}

func (as *AddressSpace) mmap(
	addr uint64,
	length uint64,
	writable bool,
	file filesys.File,
	offset int64,
) error {
	numPages, readTotal, err := as.validateMmap(addr, length, file, offset)
	if err != nil {
		return err
	}

	handle, err := file.Reopen()
	if err != nil {
		return fmt.Errorf("mmap 0x%x: %w", addr, err)
	}

	m := &Mapping{
		ID:       as.mgr.idGen.Generate(),
		Start:    addr,
		NumPages: numPages,
		Length:   length,
		Offset:   offset,
		Writable: writable,
		file:     handle,
	}

	err = as.allocMappingPages(m, readTotal)
	if err != nil {
		_ = m.close()
		return err
	}

	as.mu.Lock()
	as.mappings[addr] = m
	as.mu.Unlock()

	return nil
}

func (as *AddressSpace) validateMmap(
	addr uint64,
	length uint64,
	file filesys.File,
	offset int64,
) (numPages int, readTotal uint64, err error) {
	if addr == 0 || vm.PageOffset(addr) != 0 {
		return 0, 0, fmt.Errorf("%w: address 0x%x", ErrInvalidMapping, addr)
	}

	if length == 0 {
		return 0, 0, fmt.Errorf("%w: empty range", ErrInvalidMapping)
	}

	end := addr + vm.PageRoundUp(length)
	if end <= addr || end > vm.KernBase {
		return 0, 0, fmt.Errorf("%w: range 0x%x+%d leaves user space",
			ErrInvalidMapping, addr, length)
	}

	if file == nil {
		return 0, 0, fmt.Errorf("%w: no file", ErrInvalidMapping)
	}

	fileLen, err := file.Length()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrInvalidMapping, err)
	}

	if fileLen == 0 {
		return 0, 0, fmt.Errorf("%w: empty file", ErrInvalidMapping)
	}

	if offset < 0 || offset > fileLen || uint64(offset)%vm.PageSize != 0 {
		return 0, 0, fmt.Errorf("%w: offset %d", ErrInvalidMapping, offset)
	}

	for va := addr; va < end; va += vm.PageSize {
		if _, found := as.spt.Find(va); found {
			return 0, 0, fmt.Errorf("%w: 0x%x overlaps a page",
				ErrInvalidMapping, va)
		}
	}

	numPages = int((end - addr) / vm.PageSize)
	readTotal = min(length, uint64(fileLen-offset))

	return numPages, readTotal, nil
}

func (as *AddressSpace) allocMappingPages(m *Mapping, readTotal uint64) error {
	remaining := readTotal

	for i := 0; i < m.NumPages; i++ {
		va := m.Start + uint64(i)*vm.PageSize
		readBytes := min(remaining, vm.PageSize)

		err := as.AllocPageWithInitializer(KindFile, va, m.Writable,
			MappingLoad{
				Mapping:   m,
				Offset:    m.Offset + int64(uint64(i)*vm.PageSize),
				ReadBytes: readBytes,
				ZeroBytes: vm.PageSize - readBytes,
			})
		if err != nil {
			return errors.Join(fmt.Errorf("%w: %w", ErrInvalidMapping, err),
				as.removeMappingPages(m, i))
		}

		remaining -= readBytes
	}

	return nil
}

func (as *AddressSpace) removeMappingPages(m *Mapping, n int) error {
	var err error
	for i := 0; i < n; i++ {
		p, found := as.spt.Find(m.Start + uint64(i)*vm.PageSize)
		if found && p.belongsTo(m) {
			_, destroyErr := as.spt.Remove(p)
			err = errors.Join(err, destroyErr)
		}
	}

	return err
}

// Munmap removes the mapping that starts at addr. Resident dirty pages are
// written back to the file before they are released. An address that does
// not start a mapping is ignored.
func (as *AddressSpace) Munmap(addr uint64) error {
	as.mu.Lock()
	m, found := as.mappings[addr]
	if found {
		delete(as.mappings, addr)
	}
	as.mu.Unlock()

	if !found {
		return nil
	}

	var err error
	for i := 0; i < m.NumPages; i++ {
		p, found := as.spt.Find(m.Start + uint64(i)*vm.PageSize)
		if !found || !p.belongsTo(m) || !as.spt.take(p) {
			continue
		}

		p.mu.Lock()
		err = errors.Join(err, p.destroy())
		p.mu.Unlock()
	}

	err = errors.Join(err, m.close())

	as.mgr.invokeAddrHook(hooking.HookPosMunmap, as, addr, "munmap", err)

	return err
}

func (p *Page) belongsTo(m *Mapping) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.kind {
	case KindFile:
		return p.file.mapping == m
	case KindUninit:
		ml, ok := p.uninit.init.(MappingLoad)
		return ok && ml.Mapping == m
	default:
		return false
	}
}
