// Package region lays out the simulation's shared state in one contiguous block of
// bytes and gives every process typed, index-based access to it.
//
// The owner process creates the region; gang and police processes attach to it.
// Attaching recomputes every offset from the configuration, so no pointer ever
// crosses a process boundary: records are addressed by sim.GangID and sim.MemberID
// against the caller's own Handle.
package region

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"sync/atomic"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/gang-sim/gang-sim/sim"
)

// ErrRegionMissing is returned by Attach when the shared object does not exist.
// Callers treat it as fatal.
var ErrRegionMissing = errors.New("shared region does not exist")

const (
	regionMagic   uint32 = 0x47534d31 // "GSM1"
	regionVersion uint32 = 1
)

// Handle is one process's attachment to the shared region.
// Each process owns exactly one Handle for the lifetime of a run.
//
// Thread-safety: the Handle itself is immutable after Create/Attach. Records
// returned by accessors follow the locking rules documented on each record type.
type Handle struct {
	cfg     sim.Config
	layout  Layout
	data    []byte
	backing Backing
	owner   bool
}

// Create allocates and initialises the region. Owner only.
//
// Every gang gets a member count drawn uniformly from [min_gang_size,
// max_gang_size] using rng; its member slots stay fixed at max_gang_size so the
// layout does not depend on the draw. Every gang's mutex and condition variables
// are initialised here, before any other process can attach.
func Create(cfg sim.Config, targets []sim.Target, b Backing, rng *rand.Rand) (*Handle, error) {
	if err := sim.ValidateTargets(targets); err != nil {
		return nil, fmt.Errorf("create region: %w", err)
	}
	layout, err := ComputeLayout(cfg)
	if err != nil {
		return nil, fmt.Errorf("create region: %w", err)
	}
	data, err := b.Map(layout.Total, true)
	if err != nil {
		return nil, fmt.Errorf("create region: %w", err)
	}
	clear(data)

	h := &Handle{cfg: cfg, layout: layout, data: data, backing: b, owner: true}
	st := h.State()
	st.version = regionVersion
	st.size = uint64(layout.Total)
	st.NumGangs = int32(cfg.NumGangs)
	st.GangSize = int32(cfg.MaxGangSize)
	for _, t := range targets {
		st.storeTarget(t)
	}

	for g := 0; g < cfg.NumGangs; g++ {
		if err := h.initGang(sim.GangID(g), rng); err != nil {
			_ = b.Release(data)
			return nil, fmt.Errorf("create region: gang %d: %w", g, err)
		}
	}
	atomic.StoreUint32(&st.magic, regionMagic)

	logrus.Debugf("region created: %d gangs, %d member slots each, %d bytes", cfg.NumGangs, cfg.MaxGangSize, layout.Total)
	return h, nil
}

func (h *Handle) initGang(id sim.GangID, rng *rand.Rand) error {
	g := h.Gang(id)
	if err := g.Mu.Init(); err != nil {
		return err
	}
	if err := g.PrepDone.Init(); err != nil {
		return err
	}
	if err := g.PlanExecuted.Init(); err != nil {
		return err
	}
	g.ID = int32(id)
	g.Target = NoTarget
	g.PlanSuccess = PlanThwarted
	g.LastOutcome = PlanThwarted
	g.Capacity = int32(h.cfg.MaxGangSize)
	g.MaxMemberCount = int32(sim.RandInt(rng, h.cfg.MinGangSize, h.cfg.MaxGangSize))
	g.MisinformationChance = h.cfg.MisinformationChance
	for t := range g.Heat {
		g.Heat[t] = 1.0
	}
	for m := 0; m < h.cfg.MaxGangSize; m++ {
		h.Member(id, sim.MemberID(m)).SetRole(sim.Civilian())
	}
	return nil
}

// Attach maps an existing region and validates its stamp against the layout
// recomputed from cfg.
func Attach(cfg sim.Config, b Backing) (*Handle, error) {
	layout, err := ComputeLayout(cfg)
	if err != nil {
		return nil, fmt.Errorf("attach region: %w", err)
	}
	data, err := b.Map(layout.Total, false)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("attach region: %w", ErrRegionMissing)
		}
		return nil, fmt.Errorf("attach region: %w", err)
	}
	h := &Handle{cfg: cfg, layout: layout, data: data, backing: b}
	st := h.State()
	switch {
	case atomic.LoadUint32(&st.magic) != regionMagic:
		err = fmt.Errorf("bad magic %#x", st.magic)
	case st.version != regionVersion:
		err = fmt.Errorf("version %d, want %d", st.version, regionVersion)
	case st.size != uint64(layout.Total):
		err = fmt.Errorf("size %d, layout expects %d", st.size, layout.Total)
	case int(st.NumGangs) != cfg.NumGangs || int(st.GangSize) != cfg.MaxGangSize:
		err = fmt.Errorf("region holds %d gangs of %d slots, config says %d of %d",
			st.NumGangs, st.GangSize, cfg.NumGangs, cfg.MaxGangSize)
	}
	if err != nil {
		_ = b.Release(data)
		return nil, fmt.Errorf("attach region: %w", err)
	}
	return h, nil
}

// Release drops this process's mapping. The Handle must not be used afterwards.
func (h *Handle) Release() error {
	if h.data == nil {
		return nil
	}
	data := h.data
	h.data = nil
	return h.backing.Release(data)
}

// Unlink removes the shared object. Only the owner may unlink.
func (h *Handle) Unlink() error {
	if !h.owner {
		return errors.New("only the region owner may unlink it")
	}
	return h.backing.Unlink()
}

// Config returns the configuration the layout was computed from.
func (h *Handle) Config() sim.Config { return h.cfg }

// Layout returns the region layout.
func (h *Handle) Layout() Layout { return h.layout }

// NumGangs returns the number of gang slots.
func (h *Handle) NumGangs() int { return h.layout.NumGangs }

// State returns the simulation-wide header.
func (h *Handle) State() *StateHeader {
	return (*StateHeader)(unsafe.Pointer(&h.data[0]))
}

// Gang returns gang g's record. Panics if g is out of range.
func (h *Handle) Gang(g sim.GangID) *GangRecord {
	if g < 0 || int(g) >= h.layout.NumGangs {
		panic(fmt.Sprintf("gang id %d out of range [0, %d)", g, h.layout.NumGangs))
	}
	return (*GangRecord)(unsafe.Pointer(&h.data[h.layout.GangOffset(g)]))
}

// Member returns member m of gang g. Panics if either id is out of range.
func (h *Handle) Member(g sim.GangID, m sim.MemberID) *MemberRecord {
	if g < 0 || int(g) >= h.layout.NumGangs {
		panic(fmt.Sprintf("gang id %d out of range [0, %d)", g, h.layout.NumGangs))
	}
	if m < 0 || int(m) >= h.layout.GangSize {
		panic(fmt.Sprintf("member id %d out of range [0, %d)", m, h.layout.GangSize))
	}
	return (*MemberRecord)(unsafe.Pointer(&h.data[h.layout.MemberOffset(g, m)]))
}

// Members returns the logically active member slots of gang g, the first
// max_member_count of its capacity.
func (h *Handle) Members(g sim.GangID) []MemberRecord {
	count := int(h.Gang(g).MaxMemberCount)
	first := h.Member(g, 0)
	return unsafe.Slice(first, count)
}
