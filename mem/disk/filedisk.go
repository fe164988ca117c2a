package disk

import (
	"fmt"
	"io"
	"os"
)

// FileDisk is a disk backed by an image file on the host.
type FileDisk struct {
	file       *os.File
	numSectors uint64
}

// CreateFileDisk creates, or truncates, an image file of numSectors sectors.
func CreateFileDisk(path string, numSectors uint64) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	err = f.Truncate(int64(numSectors * SectorSize))
	if err != nil {
		f.Close()
		return nil, err
	}

	return &FileDisk{file: f, numSectors: numSectors}, nil
}

// OpenFileDisk opens an existing image file. The disk size is derived from
// the file size.
func OpenFileDisk(path string) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &FileDisk{
		file:       f,
		numSectors: uint64(info.Size()) / SectorSize,
	}, nil
}

// Name returns the path of the image file.
func (d *FileDisk) Name() string {
	return d.file.Name()
}

// Size returns the number of sectors.
func (d *FileDisk) Size() uint64 {
	return d.numSectors
}

// Read copies a sector into buf.
func (d *FileDisk) Read(sector uint64, buf []byte) error {
	if err := checkAccess(d, sector, buf); err != nil {
		return err
	}

	n, err := d.file.ReadAt(buf, int64(sector*SectorSize))
	if err != nil && err != io.EOF {
		return err
	}

	if n != SectorSize {
		return fmt.Errorf("%s: short read of sector %d", d.Name(), sector)
	}

	return nil
}

// Write copies buf into a sector.
func (d *FileDisk) Write(sector uint64, buf []byte) error {
	if err := checkAccess(d, sector, buf); err != nil {
		return err
	}

	_, err := d.file.WriteAt(buf, int64(sector*SectorSize))

	return err
}

// Close closes the image file.
func (d *FileDisk) Close() error {
	return d.file.Close()
}
