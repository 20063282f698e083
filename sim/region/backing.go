package region

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/gang-sim/gang-sim/sim/psync"
)

// Backing provides the bytes a region lives in.
type Backing interface {
	// Map returns size bytes of the backing object, creating it when create is set.
	// A missing object on attach is reported as fs.ErrNotExist.
	Map(size int, create bool) ([]byte, error)
	// Release drops this process's view of the bytes.
	Release(data []byte) error
	// Unlink removes the underlying object. Only the owner calls it.
	Unlink() error
}

// Shm backs a region with a named shared-memory object, mapped MAP_SHARED so every
// process sees the same bytes.
type Shm struct {
	path string
}

// NewShm returns a shared-memory backing named name under psync.ShmDir.
func NewShm(name string) *Shm {
	return &Shm{path: filepath.Join(psync.ShmDir(), name)}
}

// Path returns the file backing the object.
func (s *Shm) Path() string { return s.path }

func (s *Shm) Map(size int, create bool) ([]byte, error) {
	return psync.MapFile(s.path, size, create)
}

func (s *Shm) Release(data []byte) error {
	return psync.Unmap(data)
}

func (s *Shm) Unlink() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unlink %s: %w", s.path, err)
	}
	return nil
}

// Heap backs a region with process memory. Handles created from the same Heap
// share bytes, which is how in-process runs and tests stand in for separate
// processes.
type Heap struct {
	mu    sync.Mutex
	words []uint64
	size  int
}

// NewHeap returns an empty heap backing.
func NewHeap() *Heap {
	return &Heap{}
}

func (h *Heap) Map(size int, create bool) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if create {
		// uint64 words keep the base 8-byte aligned.
		h.words = make([]uint64, (size+7)/8)
		h.size = size
	}
	if h.words == nil {
		return nil, fmt.Errorf("heap region: %w", fs.ErrNotExist)
	}
	if h.size < size {
		return nil, fmt.Errorf("heap region is %d bytes, need %d", h.size, size)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&h.words[0])), size), nil
}

func (h *Heap) Release(data []byte) error { return nil }

func (h *Heap) Unlink() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.words = nil
	h.size = 0
	return nil
}
