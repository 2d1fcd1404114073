// Package mmap reads files by mapping them into memory.
package mmap

import (
	"errors"
	"io"
	"os"
	"unsafe"
)

// ReadFile maps the named file into memory for reading.
// On success, it returns the mapped data as a byte slice or a string,
// and a function that unmaps the data. The data must not be used after
// calling the function.
//
// An empty file yields empty data and a no-op function.
// On platforms without memory mapping, the file is read into memory instead.
func ReadFile[T ~[]byte | ~string](name string) (data T, close func() error, err error) {
	f, err := os.Open(name)
	if err != nil {
		return
	}
	defer f.Close()

	fs, err := f.Stat()
	if err != nil {
		return
	}

	size := fs.Size()
	if size == 0 {
		return data, noop, nil
	}
	if int64(int(size)) != size {
		return data, nil, errors.New("file too large to map")
	}

	b, close, err := readFile(f, int(size))
	if err != nil {
		if errors.Is(err, errors.ErrUnsupported) {
			return readFileFallback[T](f, size)
		}
		return
	}

	return *(*T)(unsafe.Pointer(&b)), close, nil
}

func readFileFallback[T ~[]byte | ~string](f *os.File, size int64) (data T, close func() error, err error) {
	b := make([]byte, size)
	if _, err = io.ReadFull(f, b); err != nil {
		return
	}
	return *(*T)(unsafe.Pointer(&b)), noop, nil
}

func noop() error {
	return nil
}
