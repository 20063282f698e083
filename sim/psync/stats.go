package psync

import (
	"errors"
	"fmt"
)

// Well-known semaphore names. GAME_STATS serializes updates to the simulation-wide
// counters, GANG_STATS to the per-gang aggregate counters.
const (
	GameStatsName = "GAME_STATS"
	GangStatsName = "GANG_STATS"
)

// Stats holds the two counter semaphores, both initialised to 1 and used as locks.
type Stats struct {
	game   *Semaphore
	gang   *Semaphore
	prefix string
	named  bool
}

// OpenStats opens (creating if needed) the named counter semaphores.
// prefix is prepended to both names; production runs pass "" so every process
// meets on the well-known names.
func OpenStats(prefix string) (*Stats, error) {
	game, err := OpenNamed(prefix+GameStatsName, 1)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", GameStatsName, err)
	}
	gang, err := OpenNamed(prefix+GangStatsName, 1)
	if err != nil {
		_ = game.Close()
		return nil, fmt.Errorf("opening %s: %w", GangStatsName, err)
	}
	return &Stats{game: game, gang: gang, prefix: prefix, named: true}, nil
}

// NewLocalStats returns process-local counter semaphores for in-process runs.
func NewLocalStats() *Stats {
	return &Stats{game: NewSemaphore(1), gang: NewSemaphore(1)}
}

// WithGameStats runs fn while holding GAME_STATS.
func (s *Stats) WithGameStats(fn func()) {
	s.game.Wait()
	defer s.game.Post()
	fn()
}

// WithGangStats runs fn while holding GANG_STATS.
func (s *Stats) WithGangStats(fn func()) {
	s.gang.Wait()
	defer s.gang.Post()
	fn()
}

// Close unmaps both semaphores.
func (s *Stats) Close() error {
	return errors.Join(s.game.Close(), s.gang.Close())
}

// Unlink removes both named semaphores. Only the owning process calls it, at shutdown.
func (s *Stats) Unlink() error {
	if !s.named {
		return nil
	}
	return errors.Join(UnlinkNamed(s.prefix+GameStatsName), UnlinkNamed(s.prefix+GangStatsName))
}
