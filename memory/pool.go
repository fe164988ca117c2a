package memory

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// A Pool is the user pool of physical memory. It hands out page-sized frames
// and takes them back. The pool never grows.
type Pool struct {
	sync.Mutex
	storage   *Storage
	frameSize uint64
	numFrames uint
	used      *bitset.BitSet
}

// NewPool creates a pool of numFrames frames of frameSize bytes each.
func NewPool(numFrames int, frameSize uint64) *Pool {
	if numFrames <= 0 {
		panic("the user pool must have at least one frame")
	}

	return &Pool{
		storage:   NewStorage(uint64(numFrames)*frameSize, frameSize),
		frameSize: frameSize,
		numFrames: uint(numFrames),
		used:      bitset.New(uint(numFrames)),
	}
}

// Alloc takes a free frame out of the pool and returns its physical address.
// The bool is false when the pool is exhausted. Frame content is not cleared.
func (p *Pool) Alloc() (uint64, bool) {
	p.Lock()
	defer p.Unlock()

	idx, found := p.used.NextClear(0)
	if !found || idx >= p.numFrames {
		return 0, false
	}

	p.used.Set(idx)

	return uint64(idx) * p.frameSize, true
}

// Free returns a frame to the pool.
func (p *Pool) Free(paddr uint64) {
	p.Lock()
	defer p.Unlock()

	idx := p.frameIndex(paddr)
	if !p.used.Test(idx) {
		panic(fmt.Sprintf("double free of frame 0x%x", paddr))
	}

	p.used.Clear(idx)
}

// Bytes returns the kernel view of the frame at paddr.
func (p *Pool) Bytes(paddr uint64) []byte {
	p.Lock()
	defer p.Unlock()

	unit, err := p.storage.Unit(paddr)
	if err != nil {
		panic(err)
	}

	return unit
}

// NumFrames returns the capacity of the pool in frames.
func (p *Pool) NumFrames() int {
	return int(p.numFrames)
}

// NumFree returns how many frames are currently free.
func (p *Pool) NumFree() int {
	p.Lock()
	defer p.Unlock()

	return int(p.numFrames - p.used.Count())
}

func (p *Pool) frameIndex(paddr uint64) uint {
	if paddr%p.frameSize != 0 {
		panic(fmt.Sprintf("frame address 0x%x is not aligned", paddr))
	}

	idx := uint(paddr / p.frameSize)
	if idx >= p.numFrames {
		panic(fmt.Sprintf("frame address 0x%x is out of the pool", paddr))
	}

	return idx
}
