package paging

import (
	"github.com/sarchlab/vmkit/mem/disk"
	"github.com/sarchlab/vmkit/mem/vm"
	"github.com/sarchlab/vmkit/mem/vm/frame"
	"github.com/sarchlab/vmkit/mem/vm/swap"
	"github.com/sarchlab/vmkit/memory"
	"github.com/sarchlab/vmkit/sim/id"
)

// A Builder can build a Manager.
type Builder struct {
	numFrames   int
	swapDisk    disk.Disk
	pageTable   vm.PageTable
	idGenerator id.IDGenerator
}

// MakeBuilder creates a new builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		numFrames: 64,
	}
}

// WithNumFrames sets the number of frames in the user pool.
func (b Builder) WithNumFrames(n int) Builder {
	b.numFrames = n
	return b
}

// WithSwapDisk sets the disk used as swap. A swap disk is mandatory.
func (b Builder) WithSwapDisk(d disk.Disk) Builder {
	b.swapDisk = d
	return b
}

// WithPageTable sets the hardware page table that the manager updates.
func (b Builder) WithPageTable(pageTable vm.PageTable) Builder {
	b.pageTable = pageTable
	return b
}

// WithIDGenerator sets the generator used for frame and mapping IDs.
func (b Builder) WithIDGenerator(g id.IDGenerator) Builder {
	b.idGenerator = g
	return b
}

// Build creates the manager. It panics if the swap disk is missing or the
// pool would be empty.
func (b Builder) Build() *Manager {
	if b.numFrames <= 0 {
		panic("the user pool must have at least one frame")
	}

	m := &Manager{
		spaces: make(map[vm.PID]*AddressSpace),
	}

	b.createIDGenerator(m)
	b.createPageTable(m)

	m.pool = memory.NewPool(b.numFrames, vm.PageSize)
	m.frames = frame.NewTable(m.pool, m.idGen)
	m.swap = swap.NewStore(b.swapDisk)

	return m
}

func (b Builder) createIDGenerator(m *Manager) {
	if b.idGenerator != nil {
		m.idGen = b.idGenerator
	} else {
		m.idGen = id.NewIDGenerator()
	}
}

func (b Builder) createPageTable(m *Manager) {
	if b.pageTable != nil {
		m.pageTable = b.pageTable
	} else {
		m.pageTable = vm.NewPageTable()
	}
}
