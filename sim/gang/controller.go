package gang

import (
	"context"
	"math/rand"
	"time"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/intel"
	"github.com/gang-sim/gang-sim/sim/msgq"
	"github.com/gang-sim/gang-sim/sim/region"
	"github.com/gang-sim/gang-sim/sim/trace"
)

// Heat feedback applied when a cycle resolves.
const (
	successHeat    = 1.0
	thwartedHeat   = 0.5
	globalHeatGain = 0.1
	heatDecay      = 0.9 // other targets relax toward 1 by this factor
)

// sendAttempts bounds retries when the channel is full.
const sendAttempts = 3

// cycleResult is what the controller learned from one cycle.
type cycleResult struct {
	cycle        int
	target       sim.Target
	rate         float64
	ready        int
	participants int
	outcome      int32
	arrested     bool // closed by police before resolution
}

func (r cycleResult) traceOutcome() string {
	switch {
	case r.arrested:
		return trace.OutcomeArrested
	case r.outcome == region.PlanSucceeded:
		return trace.OutcomeSucceeded
	default:
		return trace.OutcomeThwarted
	}
}

// runController loops over plan cycles until shutdown. On exit it wakes every
// waiter so members re-check the stop condition promptly.
func (g *Gang) runController(ctx context.Context, rng *rand.Rand) error {
	rec := g.h.Gang(g.id)
	defer func() {
		rec.Mu.Lock()
		rec.PlanExecuted.Broadcast()
		rec.PrepDone.Broadcast()
		rec.Mu.Unlock()
	}()

	for !g.stopping(ctx) {
		res, ok := g.runCycle(ctx, rng)
		if ok {
			g.afterCycle(ctx, res, rng)
		}
		g.maybeSpread(rng)
		if !sleep(ctx, g.cfg.Tick()) {
			break
		}
	}
	return nil
}

// runCycle opens one cycle, waits for the barrier, resolves the outcome and
// waits until every participant has observed it. ok is false when no cycle was
// opened (arrested, no one alive) or the gang stopped mid-cycle.
func (g *Gang) runCycle(ctx context.Context, rng *rand.Rand) (res cycleResult, ok bool) {
	rec := g.h.Gang(g.id)
	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	// The arrest countdown is only set under Mu, so this check cannot race an arrest.
	if g.arrested() || rec.NumAlive == 0 {
		return res, false
	}

	// PREPARING
	rec.Cycle++
	cycle := rec.Cycle
	rec.MembersReady = 0
	rec.PlanSuccess = region.PlanPending
	rec.PlanInProgress = 1
	rec.Acks = 0
	rec.Participants = rec.NumAlive
	members := g.h.Members(g.id)
	for i := range members {
		members[i].PrepContribution = 0
	}
	if rec.Target == region.NoTarget || g.cfg.ReselectTargetEachCycle {
		g.selectTarget(rec, members, rng)
	}
	rec.PlanExecuted.Broadcast()
	g.log.Debugf("cycle %d opened: %d participants, prep level %d", cycle, rec.Participants, rec.PrepLevel)

	// READY_BARRIER
	for rec.MembersReady < rec.Participants && rec.ResolvedCycle < cycle {
		if g.stopping(ctx) {
			return res, false
		}
		rec.PrepDone.WaitTimeout(&rec.Mu, g.waitSlice())
	}

	// RESOLVING
	t, _ := rec.TargetType()
	var target sim.Target
	g.stats.WithGameStats(func() {
		target = g.h.State().Target(t)
	})
	res = cycleResult{
		cycle:        int(cycle),
		target:       target,
		ready:        int(rec.MembersReady),
		participants: int(rec.Participants),
	}
	if rec.ResolvedCycle >= cycle {
		res.arrested = true
		res.outcome = rec.LastOutcome
	} else {
		res.rate = intel.SuccessRate(members, res.target, g.cfg)
		res.outcome = region.PlanThwarted
		if intel.Roll(res.rate, rng) {
			res.outcome = region.PlanSucceeded
		}
		rec.PlanSuccess = res.outcome
		rec.LastOutcome = res.outcome
		rec.ResolvedCycle = cycle
		rec.PlanInProgress = 0
		rec.PlanExecuted.Broadcast()
	}
	g.applyOutcome(rec, t, res)

	// REACTING: hold the next cycle until every participant has read the outcome.
	for rec.Acks < rec.Participants {
		if g.stopping(ctx) {
			return res, false
		}
		rec.PrepDone.WaitTimeout(&rec.Mu, g.waitSlice())
	}
	return res, true
}

// selectTarget lets the highest-ranked member pick the coldest target and
// derive the preparation parameters. Called with Mu held.
func (g *Gang) selectTarget(rec *region.GangRecord, members []region.MemberRecord, rng *rand.Rand) {
	var targets []sim.Target
	g.stats.WithGameStats(func() {
		targets = g.h.State().AllTargets()
	})
	t := intel.SelectTarget(targets, rec.Heat, rng)
	prepTime, prepLevel := intel.PrepParameters(t, rng)
	rec.Target = int32(t)
	rec.PrepTime = int32(prepTime)
	rec.PrepLevel = int32(prepLevel)
	leader, _ := intel.HighestRanked(members)
	g.log.Infof("member %d selected target %s (prep time %d, level %d)", leader, t, prepTime, prepLevel)
}

// applyOutcome updates heat and counters for a resolved cycle. Called with Mu
// held; takes the stats semaphores after it, never the other way around.
func (g *Gang) applyOutcome(rec *region.GangRecord, t sim.TargetType, res cycleResult) {
	succeeded := res.outcome == region.PlanSucceeded
	for i := range rec.Heat {
		if sim.TargetType(i) != t {
			rec.Heat[i] = 1 + (rec.Heat[i]-1)*heatDecay
		}
	}
	if succeeded {
		rec.Heat[t] += successHeat
		rec.Notoriety++
	} else {
		rec.Heat[t] += thwartedHeat
	}

	g.stats.WithGameStats(func() {
		st := g.h.State()
		switch {
		case succeeded:
			st.IncSuccessfulPlans()
			st.AddTargetHeat(t, globalHeatGain)
		case !res.arrested:
			// Police already counted the thwarted plan when it imprisoned the gang.
			st.IncThwartedPlans()
		}
	})
	g.stats.WithGangStats(func() {
		if succeeded {
			rec.SuccessfulPlans++
		} else {
			rec.ThwartedPlans++
		}
	})
}

// afterCycle records the cycle and, after a failure, runs the investigation and
// the failed-plan casualties. Runs without Mu.
func (g *Gang) afterCycle(ctx context.Context, res cycleResult, rng *rand.Rand) {
	if g.hooks.OnResolve != nil {
		g.hooks.OnResolve(res.cycle, res.ready, res.participants, res.outcome)
	}
	g.rec.RecordPlan(trace.PlanRecord{
		Gang:         int(g.id),
		Cycle:        res.cycle,
		Tick:         g.now(),
		Target:       res.target.Name,
		SuccessRate:  res.rate,
		Participants: res.participants,
		Outcome:      res.traceOutcome(),
	})
	g.log.Infof("cycle %d on %s: %s (rate %.2f, %d/%d ready)",
		res.cycle, res.target.Name, res.traceOutcome(), res.rate, res.ready, res.participants)

	if res.outcome == region.PlanSucceeded {
		return
	}
	g.Investigate(ctx)
	g.failedPlanDeaths(ctx, rng)
}

// Investigate runs an internal investigation. Every executed agent is removed
// from the gang's counts, counted globally, and reported to the gang's officer.
// It returns the number of executions.
func (g *Gang) Investigate(ctx context.Context) int {
	rec := g.h.Gang(g.id)
	rec.Mu.Lock()
	inv := intel.Investigate(g.h.Members(g.id), g.cfg.SuspicionThreshold)
	for _, e := range inv.Executed {
		rec.NumAlive--
		rec.NumAgents--
		g.holdAgentID(e.Agent)
	}
	rec.Mu.Unlock()

	for _, e := range inv.Executed {
		g.stats.WithGameStats(g.h.State().IncExecutedAgents)
		g.log.Infof("member %d executed as informant %d (investigator %d)", e.Member, e.Agent, inv.Investigator)
		g.reportDeath(ctx, e.Member, e.Agent, trace.CauseInvestigation)
	}
	return len(inv.Executed)
}

// failedPlanDeaths kills each alive non-leader member with death_probability.
func (g *Gang) failedPlanDeaths(ctx context.Context, rng *rand.Rand) {
	if g.cfg.DeathProbability <= 0 {
		return
	}
	type death struct {
		member sim.MemberID
		agent  sim.AgentID
	}
	var deaths []death

	rec := g.h.Gang(g.id)
	rec.Mu.Lock()
	members := g.h.Members(g.id)
	leader, _ := intel.HighestRanked(members)
	for i := range members {
		m := &members[i]
		if !m.Alive() || sim.MemberID(i) == leader || rng.Float64() >= g.cfg.DeathProbability {
			continue
		}
		m.SetAlive(false)
		rec.NumAlive--
		agent, isAgent := m.Role().AgentID()
		if isAgent {
			rec.NumAgents--
			g.holdAgentID(agent)
		} else {
			agent = sim.NoAgent
		}
		deaths = append(deaths, death{member: sim.MemberID(i), agent: agent})
	}
	rec.Mu.Unlock()

	for _, d := range deaths {
		g.log.Infof("member %d died after the failed plan", d.member)
		g.reportDeath(ctx, d.member, d.agent, trace.CauseFailedPlan)
	}
}

// reportDeath records a death and, for informants, notifies the officer.
func (g *Gang) reportDeath(ctx context.Context, m sim.MemberID, agent sim.AgentID, cause string) {
	g.rec.RecordDeath(trace.DeathRecord{
		Gang:   int(g.id),
		Member: int(m),
		Agent:  int(agent),
		Tick:   g.now(),
		Cause:  cause,
	})
	if agent == sim.NoAgent {
		return
	}
	msg := msgq.Message{
		Key:      g.router.Police(g.officer()),
		Mode:     msgq.ModeAgentDeath,
		GangID:   g.id,
		AgentID:  agent,
		PoliceID: g.officer(),
	}
	if err := msgq.SendRetry(ctx, g.ch, msg, sendAttempts, g.cfg.Tick()); err != nil {
		g.log.Warnf("agent death notice for informant %d not delivered: %v", agent, err)
	}
	g.releaseAgentID(agent)
}

// holdAgentID keeps a dead informant's id out of Recruit until its death notice
// is queued, so the officer never sees a new handshake on that id first.
// Caller holds the gang mutex.
func (g *Gang) holdAgentID(id sim.AgentID) {
	g.heldIDs |= 1 << uint(id)
}

func (g *Gang) releaseAgentID(id sim.AgentID) {
	rec := g.h.Gang(g.id)
	rec.Mu.Lock()
	g.heldIDs &^= 1 << uint(id)
	rec.Mu.Unlock()
}

// maybeSpread runs an information-diffusion round when one is due.
func (g *Gang) maybeSpread(rng *rand.Rand) {
	now := g.now()
	rec := g.h.Gang(g.id)
	rec.Mu.Lock()
	defer rec.Mu.Unlock()
	if now < int(rec.NextInfoSpread) || rec.NumAlive == 0 {
		return
	}
	intel.Spread(g.h.Members(g.id), rec.MisinformationChance, now, rng)
	rec.NextInfoSpread = int32(now + intel.NextSpreadInterval(rng))
}

// waitSlice bounds condition waits so the stop condition is re-checked.
func (g *Gang) waitSlice() time.Duration {
	return max(g.cfg.Tick(), 10*time.Millisecond)
}
