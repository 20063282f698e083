package psync

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
	"unsafe"
)

// ErrUnaligned is returned by Init when a primitive's word is not 4-byte aligned.
// Atomic and futex operations on such a word are undefined.
var ErrUnaligned = errors.New("psync: primitive is not 4-byte aligned")

// waitSlice bounds every futex sleep so lost wakeups across process death cannot
// park a waiter forever.
const waitSlice = 50 * time.Millisecond

// Mutex states.
const (
	unlocked  uint32 = 0
	locked    uint32 = 1
	contended uint32 = 2 // locked, and at least one waiter may be sleeping
)

// Mutex is a process-shared mutual exclusion lock.
// The zero value is an unlocked mutex. A Mutex must not be copied after first use.
type Mutex struct {
	state uint32
}

// Init resets the mutex to unlocked and verifies alignment.
// Only the region owner calls Init, before any other process attaches.
func (m *Mutex) Init() error {
	if err := checkAligned(unsafe.Pointer(&m.state)); err != nil {
		return fmt.Errorf("mutex: %w", err)
	}
	atomic.StoreUint32(&m.state, unlocked)
	return nil
}

// Lock acquires the mutex, sleeping on the futex while it is held.
func (m *Mutex) Lock() {
	if atomic.CompareAndSwapUint32(&m.state, unlocked, locked) {
		return
	}
	for atomic.SwapUint32(&m.state, contended) != unlocked {
		futexWait(&m.state, contended, waitSlice)
	}
}

// TryLock acquires the mutex if it is free and reports whether it did.
func (m *Mutex) TryLock() bool {
	return atomic.CompareAndSwapUint32(&m.state, unlocked, locked)
}

// Unlock releases the mutex. Unlocking an unlocked mutex panics.
func (m *Mutex) Unlock() {
	switch atomic.SwapUint32(&m.state, unlocked) {
	case unlocked:
		panic("psync: unlock of unlocked mutex")
	case contended:
		futexWake(&m.state, 1)
	}
}

// Cond is a process-shared condition variable built on a sequence word.
// Broadcast bumps the sequence; waiters sleep until it moves.
// Like sync.Cond, waiters must re-check their predicate in a loop.
type Cond struct {
	seq uint32
}

// Init resets the condition variable and verifies alignment.
func (c *Cond) Init() error {
	if err := checkAligned(unsafe.Pointer(&c.seq)); err != nil {
		return fmt.Errorf("cond: %w", err)
	}
	atomic.StoreUint32(&c.seq, 0)
	return nil
}

// Wait atomically unlocks m and suspends until the condition is signalled, then
// re-locks m before returning.
func (c *Cond) Wait(m *Mutex) {
	seq := atomic.LoadUint32(&c.seq)
	m.Unlock()
	for atomic.LoadUint32(&c.seq) == seq {
		futexWait(&c.seq, seq, waitSlice)
	}
	m.Lock()
}

// WaitTimeout is Wait bounded by d. It reports whether the condition was signalled
// before the timeout. m is held again on return either way.
func (c *Cond) WaitTimeout(m *Mutex, d time.Duration) bool {
	seq := atomic.LoadUint32(&c.seq)
	m.Unlock()
	deadline := time.Now().Add(d)
	for atomic.LoadUint32(&c.seq) == seq {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		futexWait(&c.seq, seq, min(remaining, waitSlice))
	}
	signalled := atomic.LoadUint32(&c.seq) != seq
	m.Lock()
	return signalled
}

// Broadcast wakes all waiters.
func (c *Cond) Broadcast() {
	atomic.AddUint32(&c.seq, 1)
	futexWake(&c.seq, math.MaxInt32)
}

// Signal wakes one waiter.
func (c *Cond) Signal() {
	atomic.AddUint32(&c.seq, 1)
	futexWake(&c.seq, 1)
}

func checkAligned(p unsafe.Pointer) error {
	if uintptr(p)%4 != 0 {
		return ErrUnaligned
	}
	return nil
}
