// Package game owns a simulation run: it creates the shared objects, advances
// the clock, watches the game-ending conditions and tears everything down.
//
// RunInProcess hosts the police force and every gang as goroutine groups over a
// heap region and an in-memory channel. The multi-process mode in cmd uses the
// same Owner with named shared objects and real child processes.
package game

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/msgq"
	"github.com/gang-sim/gang-sim/sim/psync"
	"github.com/gang-sim/gang-sim/sim/region"
)

// EndReason says why a run stopped.
type EndReason string

const (
	EndNone            EndReason = ""
	EndThwartedPlans   EndReason = "max_thwarted_plans"
	EndSuccessfulPlans EndReason = "max_successful_plans"
	EndExecutedAgents  EndReason = "max_executed_agents"
	EndTickLimit       EndReason = "tick_limit"
	EndCancelled       EndReason = "cancelled"
)

// Counters are the simulation-wide totals at one instant.
type Counters struct {
	SuccessfulPlans int `json:"successful_plans"`
	ThwartedPlans   int `json:"thwarted_plans"`
	ExecutedAgents  int `json:"executed_agents"`
	ElapsedTicks    int `json:"elapsed_ticks"`
}

// ReadCounters snapshots the header counters.
func ReadCounters(st *region.StateHeader) Counters {
	return Counters{
		SuccessfulPlans: st.SuccessfulPlans(),
		ThwartedPlans:   st.ThwartedPlans(),
		ExecutedAgents:  st.ExecutedAgents(),
		ElapsedTicks:    st.ElapsedTicks(),
	}
}

// CheckConditions reports which game-ending maximum has been reached, if any.
// Executed agents are checked first, then successful and thwarted plans.
func CheckConditions(c Counters, cfg sim.Config) EndReason {
	switch {
	case c.ExecutedAgents >= cfg.MaxExecutedAgents:
		return EndExecutedAgents
	case c.SuccessfulPlans >= cfg.MaxSuccessfulPlans:
		return EndSuccessfulPlans
	case c.ThwartedPlans >= cfg.MaxThwartedPlans:
		return EndThwartedPlans
	}
	return EndNone
}

// Resources are the shared objects of one run.
type Resources struct {
	Backing region.Backing
	Stats   *psync.Stats
	Channel msgq.Channel
}

// LocalResources returns process-local stand-ins for the shared objects.
func LocalResources() Resources {
	return Resources{
		Backing: region.NewHeap(),
		Stats:   psync.NewLocalStats(),
		Channel: msgq.NewMemory(0),
	}
}

// SharedResources opens the named objects every process of a run meets on: the
// shared-memory region shmName, the well-known counter semaphores and the
// message queue queueKey.
func SharedResources(shmName string, queueKey int) (Resources, error) {
	stats, err := psync.OpenStats("")
	if err != nil {
		return Resources{}, fmt.Errorf("opening counter semaphores: %w", err)
	}
	ch, err := msgq.OpenSysV(queueKey)
	if err != nil {
		_ = stats.Close()
		return Resources{}, fmt.Errorf("opening message channel: %w", err)
	}
	return Resources{Backing: region.NewShm(shmName), Stats: stats, Channel: ch}, nil
}

// Owner is the process that creates the region and drives the clock.
type Owner struct {
	cfg sim.Config
	h   *region.Handle
	res Resources

	closeOnce sync.Once
	closeErr  error
}

// NewOwner creates the region. cfg must already have NumGangs resolved.
func NewOwner(cfg sim.Config, targets []sim.Target, res Resources, rngs *sim.PartitionedRNG) (*Owner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.NumGangs == 0 {
		return nil, errors.New("num_gangs must be resolved before the region is created")
	}
	h, err := region.Create(cfg, targets, res.Backing, rngs.ForSubsystem(sim.SubsystemLayout))
	if err != nil {
		return nil, err
	}
	logrus.Infof("game: %d gangs, %d-%d members, tick %s", cfg.NumGangs, cfg.MinGangSize, cfg.MaxGangSize, cfg.Tick())
	return &Owner{cfg: cfg, h: h, res: res}, nil
}

// Handle returns the owner's attachment to the region.
func (o *Owner) Handle() *region.Handle { return o.h }

// Counters snapshots the current totals.
func (o *Owner) Counters() Counters { return ReadCounters(o.h.State()) }

// Tick advances the clock by one tick and reports whether the game is over.
func (o *Owner) Tick() EndReason {
	o.h.State().AdvanceClock()
	return CheckConditions(o.Counters(), o.cfg)
}

// Run ticks once per tick until a game-ending condition holds, maxTicks ticks
// have passed (0 = no limit) or done is closed. It then raises the shutdown flag.
func (o *Owner) Run(done <-chan struct{}, maxTicks int) EndReason {
	ticker := time.NewTicker(o.cfg.Tick())
	defer ticker.Stop()
	reason := EndNone
	for reason == EndNone {
		select {
		case <-done:
			reason = EndCancelled
		case <-ticker.C:
			reason = o.Tick()
			if reason == EndNone && maxTicks > 0 && o.h.State().ElapsedTicks() >= maxTicks {
				reason = EndTickLimit
			}
		}
	}
	o.h.State().RequestShutdown()
	c := o.Counters()
	logrus.Infof("game over (%s) after %d ticks: %d successful, %d thwarted, %d executed",
		reason, c.ElapsedTicks, c.SuccessfulPlans, c.ThwartedPlans, c.ExecutedAgents)
	return reason
}

// Close releases the region and removes the region and semaphores. The message
// channel belongs to the police force and is left alone. Safe to call twice.
func (o *Owner) Close() error {
	o.closeOnce.Do(func() {
		o.closeErr = errors.Join(
			o.h.Release(),
			o.h.Unlink(),
			o.res.Stats.Unlink(),
			o.res.Stats.Close(),
		)
	})
	return o.closeErr
}
