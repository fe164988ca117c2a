package filesys

import (
	"errors"
	"io/fs"
	"os"
)

type osFile struct {
	file *os.File
	path string
}

// OpenOS opens a host file for reading and writing.
func OpenOS(path string) (File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}

	if err != nil {
		return nil, err
	}

	return &osFile{file: f, path: path}, nil
}

func (f *osFile) Name() string {
	return f.path
}

func (f *osFile) ReadAt(p []byte, off int64) (int, error) {
	return f.file.ReadAt(p, off)
}

func (f *osFile) WriteAt(p []byte, off int64) (int, error) {
	return f.file.WriteAt(p, off)
}

func (f *osFile) Length() (int64, error) {
	info, err := f.file.Stat()
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

func (f *osFile) Reopen() (File, error) {
	return OpenOS(f.path)
}

func (f *osFile) Close() error {
	err := f.file.Close()
	if errors.Is(err, os.ErrClosed) {
		return ErrClosed
	}

	return err
}
