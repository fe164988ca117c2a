// Package filesys provides the file handles the virtual memory manager reads
// executables and mapped files through.
package filesys

import (
	"errors"
	"io"
)

var (
	// ErrClosed is returned when using a handle after Close.
	ErrClosed = errors.New("file already closed")

	// ErrNotExist is returned when opening a missing file.
	ErrNotExist = errors.New("file does not exist")

	// ErrNegativeOffset is returned for accesses before the file start.
	ErrNegativeOffset = errors.New("negative offset")
)

// A File is an open handle to a file.
//
// Handles are independent: closing one handle never invalidates another
// handle to the same file, including handles obtained from Reopen.
type File interface {
	io.ReaderAt
	io.WriterAt

	// Name returns the name the file was opened with.
	Name() string

	// Length returns the current length of the file in bytes.
	Length() (int64, error)

	// Reopen opens a new, independent handle to the same file.
	Reopen() (File, error)

	// Close releases the handle.
	Close() error
}
