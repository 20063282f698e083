package psync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"
)

// semObjectSize matches the size of a POSIX sem_t on 64-bit Linux.
// Only the first word is used.
const semObjectSize = 32

// Semaphore is a counting semaphore whose count lives in one shared word.
//
// Thread-safety: safe for concurrent use by any number of goroutines and processes
// that map the same word.
type Semaphore struct {
	count *uint32
	data  []byte // non-nil for named semaphores; unmapped by Close
	name  string
}

// NewSemaphore returns a process-local semaphore with the given initial count.
func NewSemaphore(initial uint32) *Semaphore {
	c := new(uint32)
	*c = initial
	return &Semaphore{count: c}
}

// NamedPath returns the file backing the named semaphore, following the glibc
// convention of sem.<name> under the shared-memory directory.
func NamedPath(name string) string {
	return filepath.Join(ShmDir(), "sem."+name)
}

// OpenNamed opens the named semaphore, creating it with the initial count if it does
// not exist yet. Creation is idempotent across racing processes: the object is
// fully initialised under a temporary name and then linked into place, so no
// process can observe a half-written semaphore.
func OpenNamed(name string, initial uint32) (*Semaphore, error) {
	if name == "" {
		return nil, errors.New("semaphore name must not be empty")
	}
	path := NamedPath(name)
	if err := createNamed(path, initial); err != nil {
		return nil, err
	}
	data, err := MapFile(path, semObjectSize, false)
	if err != nil {
		return nil, fmt.Errorf("semaphore %s: %w", name, err)
	}
	count := (*uint32)(unsafe.Pointer(&data[0]))
	if err := checkAligned(unsafe.Pointer(count)); err != nil {
		_ = Unmap(data)
		return nil, fmt.Errorf("semaphore %s: %w", name, err)
	}
	return &Semaphore{count: count, data: data, name: name}, nil
}

func createNamed(path string, initial uint32) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "sem.tmp*")
	if err != nil {
		return fmt.Errorf("creating semaphore: %w", err)
	}
	defer os.Remove(tmp.Name())

	buf := make([]byte, semObjectSize)
	*(*uint32)(unsafe.Pointer(&buf[0])) = initial
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("writing semaphore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing semaphore: %w", err)
	}
	if err := os.Link(tmp.Name(), path); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("linking semaphore: %w", err)
	}
	return nil
}

// UnlinkNamed removes the named semaphore. Processes that still have it open keep a
// valid mapping. A missing semaphore is not an error.
func UnlinkNamed(name string) error {
	if err := os.Remove(NamedPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unlink semaphore %s: %w", name, err)
	}
	return nil
}

// Name returns the semaphore's name, or "" for a process-local semaphore.
func (s *Semaphore) Name() string { return s.name }

// Wait decrements the count, sleeping while it is zero.
func (s *Semaphore) Wait() {
	for !s.TryWait() {
		futexWait(s.count, 0, waitSlice)
	}
}

// WaitContext is Wait that gives up when ctx is done.
func (s *Semaphore) WaitContext(ctx context.Context) error {
	for !s.TryWait() {
		if err := ctx.Err(); err != nil {
			return err
		}
		futexWait(s.count, 0, waitSlice)
	}
	return nil
}

// TryWait decrements the count if it is positive and reports whether it did.
func (s *Semaphore) TryWait() bool {
	for {
		v := atomic.LoadUint32(s.count)
		if v == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(s.count, v, v-1) {
			return true
		}
	}
}

// Post increments the count and wakes one waiter.
func (s *Semaphore) Post() {
	if atomic.AddUint32(s.count, 1) == 0 {
		panic("psync: semaphore overflow")
	}
	futexWake(s.count, 1)
}

// Value returns the current count.
func (s *Semaphore) Value() uint32 {
	return atomic.LoadUint32(s.count)
}

// Close unmaps a named semaphore. It does not unlink it.
func (s *Semaphore) Close() error {
	if s.data == nil {
		return nil
	}
	data := s.data
	s.data = nil
	return Unmap(data)
}
