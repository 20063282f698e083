//go:build linux

package psync

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Shared (non-private) futex operations: the kernel keys the wait queue by the
// backing page, so waiters in different processes meet on the same word.
const (
	opFutexWait = 0
	opFutexWake = 1
)

// futexWait sleeps while *addr == val, for at most timeout. Spurious and early
// returns are expected; callers re-check their predicate.
func futexWait(addr *uint32, val uint32, timeout time.Duration) {
	ts := unix.NsecToTimespec(int64(timeout))
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), opFutexWait, uintptr(val),
		uintptr(unsafe.Pointer(&ts)), 0, 0)
}

// futexWake wakes up to n waiters blocked on addr.
func futexWake(addr *uint32, n int) {
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), opFutexWake, uintptr(n), 0, 0, 0)
}
