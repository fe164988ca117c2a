package paging

import "errors"

var (
	// ErrKernelAddress is returned for faults and mappings that target the
	// null page or kernel space.
	ErrKernelAddress = errors.New("kernel or null address")

	// ErrNotMapped is returned when a fault cannot be resolved because no
	// page covers the address and the stack may not grow there.
	ErrNotMapped = errors.New("address not mapped")

	// ErrReadOnly is returned for a write to a read-only page.
	ErrReadOnly = errors.New("write to read-only page")

	// ErrShortRead is returned when a file yields fewer bytes than a page
	// needs.
	ErrShortRead = errors.New("short read")

	// ErrShortWrite is returned when a write-back stores fewer bytes than
	// the page holds.
	ErrShortWrite = errors.New("short write")

	// ErrPageExists is returned when a page is already registered at the
	// address.
	ErrPageExists = errors.New("page already exists")

	// ErrInvalidMapping is returned when mmap arguments are rejected.
	ErrInvalidMapping = errors.New("invalid mapping")

	// ErrInvalidSegment is returned when a segment is not page aligned.
	ErrInvalidSegment = errors.New("invalid segment")

	// ErrNoSwapSlot is returned when an anonymous page is swapped in
	// without holding a swap slot.
	ErrNoSwapSlot = errors.New("page has no swap slot")

	// ErrBadPageKind is returned when a kind and an initializer do not fit
	// together.
	ErrBadPageKind = errors.New("bad page kind")

	// ErrPIDInUse is returned when an address space already exists for the
	// process.
	ErrPIDInUse = errors.New("pid already has an address space")
)
