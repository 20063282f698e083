package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/gang"
	"github.com/gang-sim/gang-sim/sim/police"
	"github.com/gang-sim/gang-sim/sim/trace"
)

// Options configures an in-process run.
type Options struct {
	Recorder trace.Recorder  // defaults to trace.Discard
	Skills   *sim.SkillModel // defaults to sim.DefaultSkillModel()
	MaxTicks int             // 0 = run until a game-ending condition
}

// Result is the outcome of a run.
type Result struct {
	Config    sim.Config // with NumGangs resolved
	Counters  Counters
	EndReason EndReason
}

// RunInProcess runs a whole simulation inside this process: the police force
// and every gang run as goroutine groups against one heap region, exactly as
// they would against a shared-memory region in separate processes.
//
// The run ends on a game-ending condition, after opts.MaxTicks, or when ctx is
// cancelled; all goroutines have returned when RunInProcess does.
func RunInProcess(ctx context.Context, cfg sim.Config, targets []sim.Target, opts Options) (*Result, error) {
	if opts.Recorder == nil {
		opts.Recorder = trace.Discard
	}
	rngs := sim.NewPartitionedRNG(cfg.Seed)
	cfg = cfg.ResolveGangs(rngs.ForSubsystem(sim.SubsystemOwner))

	res := LocalResources()
	owner, err := NewOwner(cfg, targets, res, rngs)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := owner.Close(); err != nil {
			logrus.Warnf("game: teardown: %v", err)
		}
	}()
	h := owner.Handle()

	force := police.NewForce(h, res.Channel, res.Stats, opts.Recorder, rngs)
	defer func() { _ = force.Close() }()

	gangs := make([]*gang.Gang, cfg.NumGangs)
	for i := range gangs {
		id := sim.GangID(i)
		gangs[i] = gang.New(id, h, res.Channel, res.Stats, gang.Options{Recorder: opts.Recorder, Skills: opts.Skills})
		gangs[i].Init(rngs.ForSubsystem(sim.SubsystemGangInit(id)))
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return force.Run(egCtx)
	})
	for _, g := range gangs {
		// Each gang derives its streams from its own PartitionedRNG: streams
		// depend only on seed and subsystem name, and a PartitionedRNG is not
		// safe for concurrent use.
		gangRNGs := sim.NewPartitionedRNG(cfg.Seed)
		eg.Go(func() error {
			if err := g.Run(egCtx, gangRNGs); err != nil {
				return fmt.Errorf("gang %d: %w", g.ID(), err)
			}
			return nil
		})
	}

	reason := owner.Run(egCtx.Done(), opts.MaxTicks)
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	if reason == EndCancelled && ctx.Err() != nil {
		logrus.Infof("game: cancelled")
	}
	return &Result{Config: cfg, Counters: owner.Counters(), EndReason: reason}, nil
}
