//go:build unix && !race

// The race detector cannot see the ordering these semaphores impose, so this
// file is left out of -race builds.

package psync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_SerializesCounterUpdates(t *testing.T) {
	// GIVEN named stats semaphores under a test-unique prefix
	prefix := uniqueName(t)
	stats, err := OpenStats(prefix)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = stats.Close()
		_ = stats.Unlink()
	})

	// WHEN many goroutines increment two counters through the helpers
	game, gang := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 250; j++ {
				stats.WithGameStats(func() { game++ })
				stats.WithGangStats(func() { gang++ })
			}
		}()
	}
	wg.Wait()

	// THEN both counters are exact and the semaphores are back at 1
	assert.Equal(t, 1000, game)
	assert.Equal(t, 1000, gang)
	assert.Equal(t, uint32(1), stats.game.Value())
	assert.Equal(t, uint32(1), stats.gang.Value())
}
