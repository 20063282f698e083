package psync

import (
	"context"
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutex_ExcludesConcurrentIncrements(t *testing.T) {
	// GIVEN an initialised mutex guarding a plain counter
	var mu Mutex
	require.NoError(t, mu.Init())
	counter := 0

	// WHEN 8 goroutines each increment 1000 times under the lock
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				mu.Lock()
				counter++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// THEN no increment is lost
	assert.Equal(t, 8000, counter)
}

func TestMutex_TryLock(t *testing.T) {
	var mu Mutex
	require.NoError(t, mu.Init())

	assert.True(t, mu.TryLock())
	assert.False(t, mu.TryLock(), "second TryLock must fail while held")
	mu.Unlock()
	assert.True(t, mu.TryLock())
	mu.Unlock()
}

func TestMutex_UnlockOfUnlockedPanics(t *testing.T) {
	var mu Mutex
	require.NoError(t, mu.Init())
	assert.Panics(t, func() { mu.Unlock() })
}

func TestInit_RejectsUnalignedWord(t *testing.T) {
	// GIVEN a buffer and a mutex placed at an odd offset inside it
	buf := make([]uint64, 2)
	base := unsafe.Pointer(&buf[0])
	mu := (*Mutex)(unsafe.Add(base, 1))
	cond := (*Cond)(unsafe.Add(base, 2))

	// WHEN / THEN initialisation fails with ErrUnaligned
	assert.ErrorIs(t, mu.Init(), ErrUnaligned)
	assert.ErrorIs(t, cond.Init(), ErrUnaligned)
}

func TestCond_BroadcastWakesAllWaiters(t *testing.T) {
	// GIVEN 5 goroutines waiting for ready under a shared mutex
	var mu Mutex
	var cond Cond
	require.NoError(t, mu.Init())
	require.NoError(t, cond.Init())
	ready := false
	waiting := 0

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu.Lock()
			waiting++
			for !ready {
				cond.Wait(&mu)
			}
			mu.Unlock()
		}()
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return waiting == 5
	}, time.Second, time.Millisecond)

	// WHEN the predicate is set and the condition broadcast
	mu.Lock()
	ready = true
	cond.Broadcast()
	mu.Unlock()

	// THEN every waiter returns
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiters were not released by Broadcast")
	}
}

func TestCond_WaitTimeout_ReturnsFalseWithoutSignal(t *testing.T) {
	var mu Mutex
	var cond Cond
	require.NoError(t, mu.Init())
	require.NoError(t, cond.Init())

	mu.Lock()
	start := time.Now()
	signalled := cond.WaitTimeout(&mu, 20*time.Millisecond)
	elapsed := time.Since(start)

	// THEN the wait timed out and the mutex is held again
	assert.False(t, signalled)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.False(t, mu.TryLock(), "mutex must be re-acquired on return")
	mu.Unlock()
}

func TestSemaphore_CountsDown(t *testing.T) {
	sem := NewSemaphore(2)

	assert.True(t, sem.TryWait())
	assert.True(t, sem.TryWait())
	assert.False(t, sem.TryWait())
	sem.Post()
	assert.Equal(t, uint32(1), sem.Value())
}

func TestSemaphore_WaitContext_Cancelled(t *testing.T) {
	// GIVEN an exhausted semaphore
	sem := NewSemaphore(0)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	// WHEN waiting with a context that expires
	err := sem.WaitContext(ctx)

	// THEN the context error is returned and the count is untouched
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint32(0), sem.Value())
}

func TestSemaphore_PostReleasesWaiter(t *testing.T) {
	sem := NewSemaphore(0)
	done := make(chan struct{})
	go func() {
		sem.Wait()
		close(done)
	}()

	sem.Post()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after Post")
	}
}
