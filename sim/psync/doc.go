// Package psync provides synchronization primitives that stay valid when the memory
// holding them is mapped into several processes.
//
// Go's sync.Mutex and sync.Cond are process-local: their state includes runtime
// semaphores that other address spaces cannot see. The types here keep their whole
// state in one aligned 32-bit word and touch it only with sync/atomic operations and,
// on Linux, non-private futex calls keyed by the physical page. Elsewhere waits fall
// back to short sleeping polls.
//
// Mutex and Cond are meant to be embedded in fixed-layout records inside a shared
// region (see sim/region). Semaphore wraps a counter word that lives either on the heap
// or in a named /dev/shm object, mirroring POSIX named semaphores.
//
// The race detector does not observe these locks: memory guarded only by them
// may be reported as racy under -race.
package psync
