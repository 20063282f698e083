// Package police runs the police force: one officer per gang, each planting
// informants, gathering their reports and imprisoning its gang when the
// evidence is strong enough.
//
// Officers poll the message channel rather than block on it so they stay
// responsive to shutdown and to the once-per-tick arrest countdown.
package police

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/msgq"
	"github.com/gang-sim/gang-sim/sim/psync"
	"github.com/gang-sim/gang-sim/sim/region"
	"github.com/gang-sim/gang-sim/sim/trace"
)

// Force owns the officers and the message channel.
type Force struct {
	h        *region.Handle
	ch       msgq.Channel
	officers []*Officer

	closeOnce sync.Once
	closeErr  error
}

// NewForce creates one officer per gang in h. Random streams are derived from
// rngs here, on the caller's goroutine.
func NewForce(h *region.Handle, ch msgq.Channel, stats *psync.Stats, rec trace.Recorder, rngs *sim.PartitionedRNG) *Force {
	f := &Force{h: h, ch: ch}
	for i := 0; i < h.NumGangs(); i++ {
		id := sim.PoliceID(i)
		f.officers = append(f.officers, NewOfficer(id, h, ch, stats, rec, rngs.ForSubsystem(sim.SubsystemOfficer(id))))
	}
	return f
}

// Officers returns the officers, indexed by police id.
func (f *Force) Officers() []*Officer { return f.officers }

// Run runs every officer until shutdown.
func (f *Force) Run(ctx context.Context) error {
	logrus.Infof("police force: %d officers on duty", len(f.officers))
	eg, ctx := errgroup.WithContext(ctx)
	for _, o := range f.officers {
		eg.Go(func() error {
			return o.Run(ctx)
		})
	}
	return eg.Wait()
}

// Close destroys the message channel. Safe to call more than once; the channel
// is destroyed only the first time.
func (f *Force) Close() error {
	f.closeOnce.Do(func() {
		f.closeErr = f.ch.Destroy()
		logrus.Debugf("police force: message channel destroyed")
	})
	return f.closeErr
}
