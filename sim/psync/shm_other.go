//go:build !unix

package psync

import (
	"errors"
	"os"
)

// ErrNoSharedMemory is returned by MapFile on platforms without mmap.
var ErrNoSharedMemory = errors.New("psync: shared memory mapping is not supported on this platform")

// ShmDir returns the system temp directory.
func ShmDir() string { return os.TempDir() }

// MapFile is unsupported here; use heap-backed regions (in-process mode).
func MapFile(path string, size int, create bool) ([]byte, error) {
	return nil, ErrNoSharedMemory
}

// Unmap is a no-op.
func Unmap(data []byte) error { return nil }
