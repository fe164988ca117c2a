package paging

import (
	"fmt"

	"github.com/sarchlab/vmkit/filesys"
	"github.com/sarchlab/vmkit/mem/vm"
)

// LoadSegment registers the pages of an executable segment. readBytes bytes
// starting at offset in file fill the first pages and zeroBytes zeroes
// follow. The pages are anonymous and lazy.
func (as *AddressSpace) LoadSegment(
	file filesys.File,
	offset int64,
	upage uint64,
	readBytes, zeroBytes uint64,
	writable bool,
) error {
	if (readBytes+zeroBytes)%vm.PageSize != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of pages",
			ErrInvalidSegment, readBytes+zeroBytes)
	}

	if vm.PageOffset(upage) != 0 {
		return fmt.Errorf("%w: page 0x%x is not aligned",
			ErrInvalidSegment, upage)
	}

	if offset < 0 || uint64(offset)%vm.PageSize != 0 {
		return fmt.Errorf("%w: offset %d is not aligned",
			ErrInvalidSegment, offset)
	}

	for readBytes > 0 || zeroBytes > 0 {
		pageReadBytes := min(readBytes, vm.PageSize)
		pageZeroBytes := vm.PageSize - pageReadBytes

		err := as.AllocPageWithInitializer(KindAnon, upage, writable,
			SegmentLoad{
				File:      file,
				Offset:    offset,
				ReadBytes: pageReadBytes,
				ZeroBytes: pageZeroBytes,
			})
		if err != nil {
			return err
		}

		readBytes -= pageReadBytes
		zeroBytes -= pageZeroBytes
		upage += vm.PageSize
		offset += int64(pageReadBytes)
	}

	return nil
}
