// Package swap manages the swap disk: a fixed number of page-sized slots
// tracked by a bitmap.
package swap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/sarchlab/vmkit/mem/disk"
	"github.com/sarchlab/vmkit/mem/vm"
)

// SectorsPerPage is the number of disk sectors one page occupies.
const SectorsPerPage = vm.PageSize / disk.SectorSize

// A Slot identifies a page-sized region of the swap disk.
type Slot int

// NoSlot marks a page that does not hold any swap slot.
const NoSlot Slot = -1

// ErrSwapFull is returned when every slot is occupied.
var ErrSwapFull = errors.New("swap disk is full")

// A Store hands out swap slots and moves pages in and out of them.
//
// Only the bitmap is guarded by the store lock. A slot is claimed before its
// I/O starts, so two writers never share a slot while the disk blocks.
type Store struct {
	sync.Mutex
	disk     disk.Disk
	used     *bitset.BitSet
	numSlots uint
}

// NewStore creates a store covering the whole disk.
func NewStore(d disk.Disk) *Store {
	if d == nil {
		panic("swap disk not found")
	}

	numSlots := uint(d.Size() / SectorsPerPage)

	return &Store{
		disk:     d,
		used:     bitset.New(numSlots),
		numSlots: numSlots,
	}
}

// NumSlots returns the capacity of the store in pages.
func (s *Store) NumSlots() int {
	return int(s.numSlots)
}

// NumUsed returns how many slots are occupied.
func (s *Store) NumUsed() int {
	s.Lock()
	defer s.Unlock()

	return int(s.used.Count())
}

// InUse tells if a slot is occupied.
func (s *Store) InUse(slot Slot) bool {
	s.Lock()
	defer s.Unlock()

	return slot >= 0 && uint(slot) < s.numSlots && s.used.Test(uint(slot))
}

// Alloc claims the first free slot.
func (s *Store) Alloc() (Slot, error) {
	s.Lock()
	defer s.Unlock()

	idx, found := s.used.NextClear(0)
	if !found || idx >= s.numSlots {
		return NoSlot, ErrSwapFull
	}

	s.used.Set(idx)

	return Slot(idx), nil
}

// Release gives a slot back.
func (s *Store) Release(slot Slot) {
	s.Lock()
	defer s.Unlock()

	s.slotMustBeUsed(slot)
	s.used.Clear(uint(slot))
}

// SwapOut claims a slot and writes page into it. The slot is released again
// if the write fails.
func (s *Store) SwapOut(page []byte) (Slot, error) {
	slot, err := s.Alloc()
	if err != nil {
		return NoSlot, err
	}

	err = s.WritePage(slot, page)
	if err != nil {
		s.Release(slot)
		return NoSlot, err
	}

	return slot, nil
}

// SwapIn reads a slot into page and releases the slot.
func (s *Store) SwapIn(slot Slot, page []byte) error {
	err := s.ReadPage(slot, page)
	if err != nil {
		return err
	}

	s.Release(slot)

	return nil
}

// WritePage stores a page into an already claimed slot.
func (s *Store) WritePage(slot Slot, page []byte) error {
	s.mustBeValidPage(slot, page)

	start := uint64(slot) * SectorsPerPage
	for i := uint64(0); i < SectorsPerPage; i++ {
		sector := page[i*disk.SectorSize : (i+1)*disk.SectorSize]

		err := s.disk.Write(start+i, sector)
		if err != nil {
			return fmt.Errorf("swap slot %d: %w", slot, err)
		}
	}

	return nil
}

// ReadPage loads a slot into page without releasing the slot.
func (s *Store) ReadPage(slot Slot, page []byte) error {
	s.mustBeValidPage(slot, page)

	start := uint64(slot) * SectorsPerPage
	for i := uint64(0); i < SectorsPerPage; i++ {
		sector := page[i*disk.SectorSize : (i+1)*disk.SectorSize]

		err := s.disk.Read(start+i, sector)
		if err != nil {
			return fmt.Errorf("swap slot %d: %w", slot, err)
		}
	}

	return nil
}

func (s *Store) mustBeValidPage(slot Slot, page []byte) {
	if slot < 0 || uint(slot) >= s.numSlots {
		panic(fmt.Sprintf("invalid swap slot %d", slot))
	}

	if uint64(len(page)) != vm.PageSize {
		panic(fmt.Sprintf("swap buffer of %d bytes is not a page", len(page)))
	}
}

func (s *Store) slotMustBeUsed(slot Slot) {
	if slot < 0 || uint(slot) >= s.numSlots || !s.used.Test(uint(slot)) {
		panic(fmt.Sprintf("swap slot %d is not in use", slot))
	}
}
