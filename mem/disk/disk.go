// Package disk provides sector-addressed block devices.
package disk

import (
	"errors"
	"fmt"
)

// SectorSize is the number of bytes in a disk sector.
const SectorSize = 512

// ErrSectorOutOfRange is returned when a sector number is beyond the disk.
var ErrSectorOutOfRange = errors.New("sector out of range")

// A Disk is a block device that reads and writes whole sectors.
type Disk interface {
	// Name returns the name of the device.
	Name() string

	// Size returns the number of sectors of the disk.
	Size() uint64

	// Read fills buf, which must be SectorSize long, with the sector.
	Read(sector uint64, buf []byte) error

	// Write stores buf, which must be SectorSize long, into the sector.
	Write(sector uint64, buf []byte) error
}

func checkAccess(d Disk, sector uint64, buf []byte) error {
	if len(buf) != SectorSize {
		return fmt.Errorf("%s: buffer of %d bytes is not a sector",
			d.Name(), len(buf))
	}

	if sector >= d.Size() {
		return fmt.Errorf("%s: sector %d: %w",
			d.Name(), sector, ErrSectorOutOfRange)
	}

	return nil
}
