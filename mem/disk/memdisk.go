package disk

import "sync"

// MemDisk is a disk that keeps its sectors in memory. Sectors that are never
// written read back as zeros.
type MemDisk struct {
	sync.RWMutex
	name       string
	numSectors uint64
	sectors    map[uint64][]byte
	numReads   uint64
	numWrites  uint64
}

// NewMemDisk creates an in-memory disk with numSectors sectors.
func NewMemDisk(name string, numSectors uint64) *MemDisk {
	return &MemDisk{
		name:       name,
		numSectors: numSectors,
		sectors:    make(map[uint64][]byte),
	}
}

// Name returns the name of the disk.
func (d *MemDisk) Name() string {
	return d.name
}

// Size returns the number of sectors.
func (d *MemDisk) Size() uint64 {
	return d.numSectors
}

// Read copies a sector into buf.
func (d *MemDisk) Read(sector uint64, buf []byte) error {
	if err := checkAccess(d, sector, buf); err != nil {
		return err
	}

	d.Lock()
	defer d.Unlock()

	d.numReads++

	data, ok := d.sectors[sector]
	if !ok {
		clear(buf)
		return nil
	}

	copy(buf, data)

	return nil
}

// Write copies buf into a sector.
func (d *MemDisk) Write(sector uint64, buf []byte) error {
	if err := checkAccess(d, sector, buf); err != nil {
		return err
	}

	d.Lock()
	defer d.Unlock()

	d.numWrites++

	data, ok := d.sectors[sector]
	if !ok {
		data = make([]byte, SectorSize)
		d.sectors[sector] = data
	}

	copy(data, buf)

	return nil
}

// Stats returns how many sector reads and writes the disk has served.
func (d *MemDisk) Stats() (reads, writes uint64) {
	d.RLock()
	defer d.RUnlock()

	return d.numReads, d.numWrites
}
