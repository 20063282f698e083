//go:build !linux

package psync

import (
	"sync/atomic"
	"time"
)

const pollInterval = time.Millisecond

// futexWait polls until *addr != val or timeout elapses.
func futexWait(addr *uint32, val uint32, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for atomic.LoadUint32(addr) == val && time.Now().Before(deadline) {
		time.Sleep(pollInterval)
	}
}

// futexWake is a no-op: pollers observe the changed word on their own.
func futexWake(addr *uint32, n int) {}
