package filesys

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// MemFS is a flat, in-memory file system.
type MemFS struct {
	sync.Mutex
	inodes map[string]*inode
}

// NewMemFS creates an empty file system.
func NewMemFS() *MemFS {
	return &MemFS{inodes: make(map[string]*inode)}
}

type inode struct {
	sync.RWMutex
	name      string
	data      []byte
	openCount int
}

// Create creates, or replaces, a file with the given content.
func (fs *MemFS) Create(name string, content []byte) {
	fs.Lock()
	defer fs.Unlock()

	data := make([]byte, len(content))
	copy(data, content)

	fs.inodes[name] = &inode{name: name, data: data}
}

// Open opens a handle to an existing file.
func (fs *MemFS) Open(name string) (File, error) {
	fs.Lock()
	in, ok := fs.inodes[name]
	fs.Unlock()

	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotExist)
	}

	return in.open(), nil
}

// Contents returns a copy of the current content of a file.
func (fs *MemFS) Contents(name string) ([]byte, error) {
	fs.Lock()
	in, ok := fs.inodes[name]
	fs.Unlock()

	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotExist)
	}

	in.RLock()
	defer in.RUnlock()

	data := make([]byte, len(in.data))
	copy(data, in.data)

	return data, nil
}

// OpenCount returns how many handles to a file are currently open.
func (fs *MemFS) OpenCount(name string) int {
	fs.Lock()
	in, ok := fs.inodes[name]
	fs.Unlock()

	if !ok {
		return 0
	}

	in.RLock()
	defer in.RUnlock()

	return in.openCount
}

// List returns the names of all files in lexical order.
func (fs *MemFS) List() []string {
	fs.Lock()
	defer fs.Unlock()

	names := make([]string, 0, len(fs.inodes))
	for name := range fs.inodes {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (in *inode) open() *memFile {
	in.Lock()
	defer in.Unlock()

	in.openCount++

	return &memFile{inode: in}
}

type memFile struct {
	sync.Mutex
	inode  *inode
	closed bool
}

func (f *memFile) checkOpen() error {
	f.Lock()
	defer f.Unlock()

	if f.closed {
		return fmt.Errorf("%s: %w", f.inode.name, ErrClosed)
	}

	return nil
}

func (f *memFile) Name() string {
	return f.inode.name
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}

	if off < 0 {
		return 0, ErrNegativeOffset
	}

	f.inode.RLock()
	defer f.inode.RUnlock()

	if off >= int64(len(f.inode.data)) {
		return 0, io.EOF
	}

	n := copy(p, f.inode.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}

	if off < 0 {
		return 0, ErrNegativeOffset
	}

	f.inode.Lock()
	defer f.inode.Unlock()

	end := off + int64(len(p))
	if end > int64(len(f.inode.data)) {
		grown := make([]byte, end)
		copy(grown, f.inode.data)
		f.inode.data = grown
	}

	return copy(f.inode.data[off:], p), nil
}

func (f *memFile) Length() (int64, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}

	f.inode.RLock()
	defer f.inode.RUnlock()

	return int64(len(f.inode.data)), nil
}

func (f *memFile) Reopen() (File, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}

	return f.inode.open(), nil
}

func (f *memFile) Close() error {
	f.Lock()
	defer f.Unlock()

	if f.closed {
		return fmt.Errorf("%s: %w", f.inode.name, ErrClosed)
	}

	f.closed = true

	f.inode.Lock()
	f.inode.openCount--
	f.inode.Unlock()

	return nil
}
