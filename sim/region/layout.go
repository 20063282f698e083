package region

import (
	"fmt"

	"github.com/gang-sim/gang-sim/sim"
)

// Layout holds the byte offsets of every record in the region. It is a pure
// function of the configuration, so every attaching process derives the same
// offsets without reading pointers from shared memory.
type Layout struct {
	NumGangs      int
	GangSize      int // member slots per gang (max_gang_size)
	GangsOffset   int
	MembersOffset int
	Total         int
}

// ComputeLayout derives the region layout. The member array of every gang is
// sized for max_gang_size regardless of how many members the gang actually has.
func ComputeLayout(cfg sim.Config) (Layout, error) {
	if cfg.NumGangs < 1 || cfg.NumGangs > sim.MaxGangsLimit {
		return Layout{}, fmt.Errorf("num_gangs must be in [1, %d], got %d", sim.MaxGangsLimit, cfg.NumGangs)
	}
	if cfg.MaxGangSize < 1 || cfg.MaxGangSize > sim.MaxGangSizeLimit {
		return Layout{}, fmt.Errorf("max_gang_size must be in [1, %d], got %d", sim.MaxGangSizeLimit, cfg.MaxGangSize)
	}
	l := Layout{
		NumGangs:    cfg.NumGangs,
		GangSize:    cfg.MaxGangSize,
		GangsOffset: headerSize,
	}
	l.MembersOffset = l.GangsOffset + l.NumGangs*gangSize
	l.Total = l.MembersOffset + l.NumGangs*l.GangSize*memberSize
	return l, nil
}

// GangOffset returns the offset of gang g's record.
func (l Layout) GangOffset(g sim.GangID) int {
	return l.GangsOffset + int(g)*gangSize
}

// MemberOffset returns the offset of member m of gang g.
func (l Layout) MemberOffset(g sim.GangID, m sim.MemberID) int {
	return l.MembersOffset + (int(g)*l.GangSize+int(m))*memberSize
}
