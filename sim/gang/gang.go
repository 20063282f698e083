// Package gang runs one gang: a controller goroutine that drives the plan cycle,
// one goroutine per member, and a responder that answers police plant requests.
//
// A plan cycle moves through PREPARING → READY_BARRIER → RESOLVING → REACTING.
// The controller opens a cycle, members contribute until they reach the gang's
// preparation level and then meet at the barrier, the controller resolves the
// outcome, and every participant acknowledges it before the next cycle opens.
//
// Barrier accounting: the participant count is frozen when a cycle opens, and
// deaths (investigations, failed-plan casualties) only happen after every
// participant has acknowledged the resolution. A member can therefore never be
// counted as ready and then removed within the same cycle.
//
// Imprisonment is signalled only through the shared arrest countdown. While a
// gang's countdown is positive the controller opens no cycle and members do not
// contribute; an open cycle is closed as thwarted by the arresting officer.
package gang

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/intel"
	"github.com/gang-sim/gang-sim/sim/msgq"
	"github.com/gang-sim/gang-sim/sim/psync"
	"github.com/gang-sim/gang-sim/sim/region"
	"github.com/gang-sim/gang-sim/sim/trace"
)

// Hooks observe barrier transitions. Nil hooks are skipped.
// Hooks run on the goroutine that made the transition and must not block.
type Hooks struct {
	// OnResolve runs once per cycle after the controller has resolved it, with
	// the number of members that were ready and the frozen participant count.
	OnResolve func(cycle, ready, participants int, outcome int32)
	// OnReact runs when a member observes the outcome of a cycle it took part in.
	OnReact func(member sim.MemberID, cycle int, outcome int32)
}

// Options configures a Gang.
type Options struct {
	Recorder trace.Recorder  // defaults to trace.Discard
	Skills   *sim.SkillModel // defaults to sim.DefaultSkillModel()
	Hooks    Hooks
}

// Gang is one gang process's view of its own slot in the shared region.
type Gang struct {
	id     sim.GangID
	cfg    sim.Config
	h      *region.Handle
	ch     msgq.Channel
	stats  *psync.Stats
	router msgq.Router
	rec    trace.Recorder
	skills *sim.SkillModel
	hooks  Hooks
	log    *logrus.Entry

	heldIDs uint64 // agent ids awaiting a death notice; guarded by the gang mutex
}

// New returns the gang occupying slot id of h.
func New(id sim.GangID, h *region.Handle, ch msgq.Channel, stats *psync.Stats, opts Options) *Gang {
	cfg := h.Config()
	if opts.Recorder == nil {
		opts.Recorder = trace.Discard
	}
	if opts.Skills == nil {
		opts.Skills = sim.DefaultSkillModel()
	}
	return &Gang{
		id:     id,
		cfg:    cfg,
		h:      h,
		ch:     ch,
		stats:  stats,
		router: msgq.NewRouter(cfg),
		rec:    opts.Recorder,
		skills: opts.Skills,
		hooks:  opts.Hooks,
		log:    logrus.WithField("gang", int(id)),
	}
}

// ID returns the gang's slot.
func (g *Gang) ID() sim.GangID { return g.id }

// Init populates the gang's member records: ranks, correlated skills and covert
// attributes. Member 0 is the leader and holds the top rank. Called once by the
// gang process before Run.
func (g *Gang) Init(rng *rand.Rand) {
	rec := g.h.Gang(g.id)
	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	topRank := g.cfg.NumRanks - 1
	members := g.h.Members(g.id)
	for i := range members {
		m := &members[i]
		m.Reset()
		if i == 0 {
			m.Rank = int32(topRank)
		} else {
			m.Rank = int32(sim.RandInt(rng, 0, max(topRank-1, 0)))
		}
		m.Experience = float64(m.Rank) + rng.Float64()
		m.Attributes = g.skills.Sample(rng)
		m.SetAlive(true)
		m.SetRole(sim.Civilian())
		intel.InitCovert(m, topRank, rng)
	}
	rec.NumAlive = int32(len(members))
	rec.NumAgents = 0
	rec.NextInfoSpread = int32(g.h.State().ElapsedTicks() + intel.NextSpreadInterval(rng))
	g.log.Infof("initialised %d members", len(members))
}

// Run drives the gang until the shutdown flag is raised or ctx is cancelled.
// Random streams are derived from rngs before any goroutine starts.
func (g *Gang) Run(ctx context.Context, rngs *sim.PartitionedRNG) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctrlRNG := rngs.ForSubsystem(sim.SubsystemGang(g.id))
	hsRNG := rngs.ForSubsystem(sim.SubsystemHandshake(g.id))
	memberRNGs := make([]*rand.Rand, len(g.h.Members(g.id)))
	for i := range memberRNGs {
		memberRNGs[i] = rngs.ForSubsystem(sim.SubsystemMember(g.id, sim.MemberID(i)))
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.watchShutdown(ctx, cancel)
		return nil
	})
	eg.Go(func() error {
		defer cancel()
		return g.runController(ctx, ctrlRNG)
	})
	eg.Go(func() error {
		return g.runHandshakeResponder(ctx, hsRNG)
	})
	for i, rng := range memberRNGs {
		m := &member{g: g, id: sim.MemberID(i), rng: rng, log: g.log.WithField("member", i)}
		eg.Go(func() error {
			return m.run(ctx)
		})
	}
	err := eg.Wait()
	g.log.Infof("stopped")
	return err
}

// watchShutdown cancels the gang's context once the shared termination flag is set.
func (g *Gang) watchShutdown(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(g.cfg.Tick())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if g.h.State().ShutdownRequested() {
				cancel()
				return
			}
		}
	}
}

// stopping reports whether the gang should wind down.
func (g *Gang) stopping(ctx context.Context) bool {
	return ctx.Err() != nil || g.h.State().ShutdownRequested()
}

// arrested reports whether the gang is serving a prison countdown.
func (g *Gang) arrested() bool {
	return g.h.State().ArrestCountdown(g.id) > 0
}

func (g *Gang) now() int {
	return g.h.State().ElapsedTicks()
}

// officer returns the police id monitoring this gang: officer i watches gang i.
func (g *Gang) officer() sim.PoliceID {
	return sim.PoliceID(g.id)
}

// sleep waits d or until ctx is done; it reports whether the full delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
