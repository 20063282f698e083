package gang

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/intel"
	"github.com/gang-sim/gang-sim/sim/msgq"
	"github.com/gang-sim/gang-sim/sim/region"
)

// member is the goroutine of one member slot. It exits when the member dies or
// the gang stops.
type member struct {
	g   *Gang
	id  sim.MemberID
	rng *rand.Rand
	log *logrus.Entry

	last     int32 // last cycle this member acknowledged
	reported int32 // last cycle in which it volunteered a report
}

func (m *member) record() *region.MemberRecord { return m.g.h.Member(m.g.id, m.id) }

func (m *member) run(ctx context.Context) error {
	for {
		cycle, ok := m.awaitCycle(ctx)
		if !ok {
			return nil
		}
		m.prepare(ctx, cycle)
		outcome, ok := m.ready(ctx, cycle)
		if !ok {
			return nil
		}
		m.react(cycle, outcome)
		if !sleep(ctx, m.g.cfg.Tick()) {
			return nil
		}
	}
}

// awaitCycle blocks until a cycle newer than the last acknowledged one opens.
// A member alive when it observes the cycle was alive when it opened, since
// deaths only happen between cycles.
func (m *member) awaitCycle(ctx context.Context) (int32, bool) {
	rec := m.g.h.Gang(m.g.id)
	rec.Mu.Lock()
	defer rec.Mu.Unlock()
	for {
		if !m.record().Alive() || m.g.stopping(ctx) {
			return 0, false
		}
		if rec.Cycle > m.last {
			return rec.Cycle, true
		}
		rec.PlanExecuted.WaitTimeout(&rec.Mu, m.g.waitSlice())
	}
}

// prepare raises the member's contribution in random steps until it meets the
// gang's preparation level or the cycle is closed. No progress is made while
// the gang is imprisoned.
func (m *member) prepare(ctx context.Context, cycle int32) {
	rec := m.g.h.Gang(m.g.id)
	self := m.record()
	for !m.g.stopping(ctx) {
		rec.Mu.Lock()
		done := rec.ResolvedCycle >= cycle || self.PrepContribution >= rec.PrepLevel
		if !done && !m.g.arrested() {
			self.PrepContribution += int32(1 + m.rng.Intn(10))
			done = self.PrepContribution >= rec.PrepLevel
		}
		role := self.Role()
		interval := sim.RandInt(m.rng, 1, max(1, int(rec.PrepTime)/10))
		rec.Mu.Unlock()

		if agent, ok := role.AgentID(); ok {
			m.covertActivity(ctx, cycle, agent)
		}
		if done {
			return
		}
		sleep(ctx, time.Duration(interval)*m.g.cfg.Tick())
	}
}

// ready enters the barrier and waits for the controller's resolution, then
// acknowledges it. A cycle closed by police is acknowledged without counting
// the member as ready.
func (m *member) ready(ctx context.Context, cycle int32) (int32, bool) {
	rec := m.g.h.Gang(m.g.id)
	rec.Mu.Lock()
	defer rec.Mu.Unlock()

	if rec.ResolvedCycle < cycle {
		rec.MembersReady++
		if rec.MembersReady >= rec.Participants {
			rec.PrepDone.Broadcast()
		}
	}
	for rec.ResolvedCycle < cycle {
		if m.g.stopping(ctx) {
			return 0, false
		}
		rec.PlanExecuted.WaitTimeout(&rec.Mu, m.g.waitSlice())
	}

	// LastOutcome cannot change until every participant has acknowledged.
	outcome := rec.LastOutcome
	rec.Acks++
	if rec.Acks >= rec.Participants {
		rec.PrepDone.Broadcast()
	}
	m.last = cycle
	return outcome, true
}

func (m *member) react(cycle int32, outcome int32) {
	if outcome == region.PlanSucceeded {
		m.log.Debugf("cycle %d succeeded", cycle)
	} else {
		m.log.Debugf("cycle %d thwarted", cycle)
	}
	if m.g.hooks.OnReact != nil {
		m.g.hooks.OnReact(m.id, int(cycle), outcome)
	}
}

// covertActivity is what an informant does between preparation steps:
// interrogate a random member, answer report requests from its officer, and
// volunteer one report per cycle once its knowledge crosses the threshold.
func (m *member) covertActivity(ctx context.Context, cycle int32, agent sim.AgentID) {
	if m.rng.Float64() < m.g.cfg.AskProbability {
		m.askRandomMember()
	}

	key := m.g.router.Agent(m.g.id, agent)
	for {
		msg, err := m.g.ch.TryReceive(key)
		if err != nil {
			if !errors.Is(err, msgq.ErrEmpty) {
				m.log.Debugf("informant %d mailbox: %v", agent, err)
			}
			break
		}
		if msg.Mode == msgq.ModePoliceRequest {
			m.sendReport(ctx, agent)
		}
	}

	if m.reported != cycle && m.knowledge() > m.g.cfg.KnowledgeThreshold {
		m.reported = cycle
		m.sendReport(ctx, agent)
	}
}

func (m *member) askRandomMember() {
	rec := m.g.h.Gang(m.g.id)
	rec.Mu.Lock()
	defer rec.Mu.Unlock()
	members := m.g.h.Members(m.g.id)
	var candidates []sim.MemberID
	for i := range members {
		if sim.MemberID(i) != m.id && members[i].Alive() {
			candidates = append(candidates, sim.MemberID(i))
		}
	}
	if len(candidates) == 0 || !members[m.id].Alive() {
		return
	}
	target := candidates[m.rng.Intn(len(candidates))]
	intel.AskMember(members, m.id, target, m.g.cfg.MaxAskers)
}

func (m *member) knowledge() float64 {
	rec := m.g.h.Gang(m.g.id)
	rec.Mu.Lock()
	defer rec.Mu.Unlock()
	return m.record().Knowledge
}

func (m *member) sendReport(ctx context.Context, agent sim.AgentID) {
	k := m.knowledge()
	msg := msgq.Message{
		Key:       m.g.router.Police(m.g.officer()),
		Mode:      msgq.ModePoliceReport,
		GangID:    m.g.id,
		AgentID:   agent,
		PoliceID:  m.g.officer(),
		Knowledge: k,
	}
	if err := msgq.SendRetry(ctx, m.g.ch, msg, sendAttempts, m.g.cfg.Tick()); err != nil {
		m.log.Debugf("report from informant %d dropped: %v", agent, err)
	}
}
