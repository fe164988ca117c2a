// Package vm provides the address-space model shared by the paging
// components: address constants, process IDs, and the hardware page table.
package vm

// PID stands for Process ID.
type PID uint32

const (
	// Log2PageSize is the log2 of the page size.
	Log2PageSize = 12

	// PageSize is the size of a virtual page and of a physical frame.
	PageSize uint64 = 1 << Log2PageSize

	// KernBase is the first kernel virtual address. Everything below it
	// belongs to user space.
	KernBase uint64 = 0x8004000000

	// UserStack is the top of the user stack. The stack grows down from
	// here.
	UserStack uint64 = 0x47480000

	// MaxStackSize bounds how far the stack may grow below UserStack.
	MaxStackSize uint64 = 1 << 20

	// StackSlack is how far below the stack pointer an access may land and
	// still count as a stack access. PUSH faults before it moves rsp.
	StackSlack uint64 = 32
)

// PageRoundDown returns the base address of the page containing addr.
func PageRoundDown(addr uint64) uint64 {
	return (addr >> Log2PageSize) << Log2PageSize
}

// PageRoundUp rounds addr up to the next page boundary.
func PageRoundUp(addr uint64) uint64 {
	return PageRoundDown(addr + PageSize - 1)
}

// PageOffset returns the offset of addr within its page.
func PageOffset(addr uint64) uint64 {
	return addr & (PageSize - 1)
}

// IsUserAddr tells if addr is a user virtual address.
func IsUserAddr(addr uint64) bool {
	return addr < KernBase
}

// IsKernelAddr tells if addr is a kernel virtual address.
func IsKernelAddr(addr uint64) bool {
	return addr >= KernBase
}
