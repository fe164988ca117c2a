package paging

import (
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/vmkit/filesys"
)

// An Initializer fills a lazy page the first time it is claimed.
type Initializer interface {
	isInitializer()
}

// ZeroFill leaves the page zeroed.
type ZeroFill struct{}

// SegmentLoad reads part of an executable segment. The file is owned by the
// loader and must stay open while the page is uninitialized.
type SegmentLoad struct {
	File      filesys.File
	Offset    int64
	ReadBytes uint64
	ZeroBytes uint64
}

// MappingLoad reads a page of a memory-mapped file.
type MappingLoad struct {
	Mapping   *Mapping
	Offset    int64
	ReadBytes uint64
	ZeroBytes uint64
}

func (ZeroFill) isInitializer()    {}
func (SegmentLoad) isInitializer() {}
func (MappingLoad) isInitializer() {}

func checkInitializer(kind Kind, init Initializer) error {
	switch init := init.(type) {
	case ZeroFill, SegmentLoad:
		if kind != KindAnon {
			return fmt.Errorf("%w: %T for a %s page",
				ErrBadPageKind, init, kind)
		}
	case MappingLoad:
		if kind != KindFile || init.Mapping == nil {
			return fmt.Errorf("%w: mapping load for a %s page",
				ErrBadPageKind, kind)
		}
	default:
		return fmt.Errorf("%w: unknown initializer %T", ErrBadPageKind, init)
	}

	return nil
}

// readPage fills kva with readBytes bytes of f at offset and zeroes the rest.
func readPage(f filesys.File, offset int64, readBytes uint64, kva []byte) error {
	n, err := f.ReadAt(kva[:readBytes], offset)
	if uint64(n) < readBytes {
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%s at %d: %w: %w",
				f.Name(), offset, ErrShortRead, err)
		}

		return fmt.Errorf("%s: read %d of %d bytes at %d: %w",
			f.Name(), n, readBytes, offset, ErrShortRead)
	}

	clear(kva[readBytes:])

	return nil
}
