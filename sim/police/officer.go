package police

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/msgq"
	"github.com/gang-sim/gang-sim/sim/psync"
	"github.com/gang-sim/gang-sim/sim/region"
	"github.com/gang-sim/gang-sim/sim/trace"
)

const (
	plantAttempts = 3  // handshake attempts per planting round
	replyPolls    = 20 // non-blocking reply checks per handshake, tick/10 apart

	lowReportGain  = 0.05 // officer knowledge gained from a report below the threshold
	highReportGain = 0.3  // ... and from one at or above it

	baseImprisonment      = 0.1
	knowledgeWeight       = 0.4
	agentRatioWeight      = 0.3
	agentKnowledgeWeight  = 0.2
	maxImprisonmentChance = 0.9

	sendAttempts = 3
)

// informant is the officer's record of one planted agent, indexed by agent id.
type informant struct {
	active      bool
	knowledge   float64
	lastContact int // tick of the last report received or request sent
}

// Officer monitors one gang. Officer i watches gang i.
//
// Thread-safety: an Officer is driven by a single goroutine. Its snapshot is
// published to the shared region for other readers.
type Officer struct {
	id     sim.PoliceID
	gang   sim.GangID
	cfg    sim.Config
	h      *region.Handle
	ch     msgq.Channel
	stats  *psync.Stats
	router msgq.Router
	rec    trace.Recorder
	rng    *rand.Rand
	log    *logrus.Entry

	state     int32
	knowledge float64
	agents    []informant
}

// NewOfficer returns officer id, monitoring gang id.
func NewOfficer(id sim.PoliceID, h *region.Handle, ch msgq.Channel, stats *psync.Stats, rec trace.Recorder, rng *rand.Rand) *Officer {
	cfg := h.Config()
	if rec == nil {
		rec = trace.Discard
	}
	return &Officer{
		id:     id,
		gang:   sim.GangID(id),
		cfg:    cfg,
		h:      h,
		ch:     ch,
		stats:  stats,
		router: msgq.NewRouter(cfg),
		rec:    rec,
		rng:    rng,
		log:    logrus.WithFields(logrus.Fields{"officer": int(id), "gang": int(id)}),
		state:  region.OfficerMonitoring,
		agents: make([]informant, cfg.MaxAgentsPerGang),
	}
}

// ID returns the officer's police id.
func (o *Officer) ID() sim.PoliceID { return o.id }

// Knowledge returns the officer's knowledge level.
func (o *Officer) Knowledge() float64 { return o.knowledge }

// State returns region.OfficerMonitoring or region.OfficerImprisoned.
func (o *Officer) State() int32 { return o.state }

// ActiveAgents returns the number of informants believed alive.
func (o *Officer) ActiveAgents() int {
	n := 0
	for _, a := range o.agents {
		if a.active {
			n++
		}
	}
	return n
}

// AgentActive reports whether informant id is registered and alive.
func (o *Officer) AgentActive(id sim.AgentID) bool {
	return id >= 0 && int(id) < len(o.agents) && o.agents[id].active
}

// Run steps the officer once per tick until shutdown.
func (o *Officer) Run(ctx context.Context) error {
	o.log.Infof("monitoring gang %d", o.gang)
	for !o.stopping(ctx) {
		o.Step(ctx)
		if !sleep(ctx, o.cfg.Tick()) {
			break
		}
	}
	o.publish()
	o.log.Infof("stopped")
	return nil
}

// Step runs one tick of the control loop.
func (o *Officer) Step(ctx context.Context) {
	if o.state == region.OfficerImprisoned {
		o.serveSentence()
	}
	o.drainMailbox(ctx)
	if o.state == region.OfficerMonitoring {
		if o.ActiveAgents() < o.cfg.MaxAgentsPerGang && o.rng.Float64() < o.cfg.PlantProbability {
			o.Plant(ctx)
		}
		o.requestOverdueReports(ctx)
		if o.state == region.OfficerMonitoring && o.knowledge > o.cfg.KnowledgeThreshold {
			o.evaluateImprisonment()
		}
	}
	o.publish()
}

// Plant tries to turn a member of the monitored gang. Each of up to
// plantAttempts attempts is gated by agent_success_rate, then sends a
// HANDSHAKE and polls briefly for the reply. Reports whether an informant was
// registered.
func (o *Officer) Plant(ctx context.Context) bool {
	for attempt := 1; attempt <= plantAttempts; attempt++ {
		if o.rng.Float64() > o.cfg.AgentSuccessRate {
			o.recordPlant(attempt, sim.NoAgent)
			continue
		}
		req := msgq.Message{
			Key:      o.router.Gang(o.gang),
			Mode:     msgq.ModeHandshake,
			GangID:   o.gang,
			AgentID:  sim.NoAgent,
			PoliceID: o.id,
		}
		if err := o.ch.Send(req); err != nil {
			o.log.Debugf("handshake attempt %d not sent: %v", attempt, err)
			o.recordPlant(attempt, sim.NoAgent)
			continue
		}
		agent, ok := o.awaitHandshake(ctx)
		o.recordPlant(attempt, agent)
		if ok && agent != sim.NoAgent {
			o.register(agent)
			o.log.Infof("planted informant %d", agent)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	o.log.Debugf("no informant planted after %d attempts", plantAttempts)
	return false
}

// awaitHandshake polls the officer's mailbox for a handshake reply. Other
// messages that arrive meanwhile are handled, not dropped.
func (o *Officer) awaitHandshake(ctx context.Context) (sim.AgentID, bool) {
	key := o.router.Police(o.id)
	interval := max(o.cfg.Tick()/10, time.Millisecond)
	for i := 0; i < replyPolls; i++ {
		for {
			msg, err := o.ch.TryReceive(key)
			if err != nil {
				break
			}
			if msg.Mode == msgq.ModeHandshake {
				return msg.AgentID, true
			}
			o.handle(ctx, msg)
		}
		if !sleep(ctx, interval) {
			break
		}
	}
	return sim.NoAgent, false
}

func (o *Officer) drainMailbox(ctx context.Context) {
	key := o.router.Police(o.id)
	for {
		msg, err := o.ch.TryReceive(key)
		if err != nil {
			if !errors.Is(err, msgq.ErrEmpty) {
				o.log.Debugf("mailbox: %v", err)
			}
			return
		}
		o.handle(ctx, msg)
	}
}

func (o *Officer) handle(ctx context.Context, msg msgq.Message) {
	switch msg.Mode {
	case msgq.ModeHandshake:
		// A reply that arrived after its attempt timed out still names a real informant.
		if msg.AgentID != sim.NoAgent {
			o.register(msg.AgentID)
			o.log.Infof("late handshake reply: informant %d", msg.AgentID)
		}
	case msgq.ModeAgentDeath:
		o.deactivate(msg.AgentID)
	case msgq.ModePoliceReport:
		o.applyReport(ctx, msg.AgentID, msg.Knowledge)
	default:
		o.log.Debugf("ignoring %s", msg.Mode)
	}
}

func (o *Officer) register(id sim.AgentID) {
	if id < 0 || int(id) >= len(o.agents) {
		o.log.Warnf("informant id %d out of range", id)
		return
	}
	o.agents[id] = informant{active: true, lastContact: o.now()}
}

func (o *Officer) deactivate(id sim.AgentID) {
	if !o.AgentActive(id) {
		return
	}
	o.agents[id] = informant{}
	o.log.Infof("informant %d is dead", id)
}

// applyReport folds one informant report into the officer's knowledge. A report
// at or above knowledge_threshold confirms criminal activity: the larger gain
// applies and imprisonment is evaluated at once.
func (o *Officer) applyReport(ctx context.Context, id sim.AgentID, knowledge float64) {
	if id < 0 || int(id) >= len(o.agents) {
		o.log.Debugf("report from unknown informant %d", id)
		return
	}
	a := &o.agents[id]
	a.active = true
	a.knowledge = sim.Clamp01(knowledge)
	a.lastContact = o.now()

	above := knowledge >= o.cfg.KnowledgeThreshold
	o.rec.RecordReport(trace.ReportRecord{
		Officer:        int(o.id),
		Agent:          int(id),
		Tick:           o.now(),
		Knowledge:      knowledge,
		AboveThreshold: above,
	})

	if above {
		o.knowledge = sim.Clamp01(o.knowledge + highReportGain)
		o.log.Infof("informant %d confirms criminal activity (%.2f)", id, knowledge)
		if o.state == region.OfficerMonitoring {
			o.evaluateImprisonment()
		}
		return
	}
	o.knowledge = sim.Clamp01(o.knowledge + lowReportGain)
	if o.ActiveAgents() > 1 && o.allBelowThreshold() {
		o.requestFromOther(ctx, id)
	}
}

func (o *Officer) allBelowThreshold() bool {
	for _, a := range o.agents {
		if a.active && a.knowledge >= o.cfg.KnowledgeThreshold {
			return false
		}
	}
	return true
}

// requestFromOther asks the first other active informant for a report.
func (o *Officer) requestFromOther(ctx context.Context, except sim.AgentID) {
	for i, a := range o.agents {
		if a.active && sim.AgentID(i) != except {
			o.requestReport(ctx, sim.AgentID(i))
			return
		}
	}
}

// requestOverdueReports re-requests a report from every informant silent for
// longer than timeout_period ticks.
func (o *Officer) requestOverdueReports(ctx context.Context) {
	now := o.now()
	for i, a := range o.agents {
		if a.active && now-a.lastContact > o.cfg.TimeoutPeriod {
			o.requestReport(ctx, sim.AgentID(i))
		}
	}
}

func (o *Officer) requestReport(ctx context.Context, id sim.AgentID) {
	msg := msgq.Message{
		Key:      o.router.Agent(o.gang, id),
		Mode:     msgq.ModePoliceRequest,
		GangID:   o.gang,
		AgentID:  id,
		PoliceID: o.id,
	}
	if err := msgq.SendRetry(ctx, o.ch, msg, sendAttempts, o.cfg.Tick()); err != nil {
		o.log.Debugf("report request to informant %d not sent: %v", id, err)
		return
	}
	o.agents[id].lastContact = o.now()
}

// ImprisonmentProbability is base + 0.4·knowledge + 0.3·(active/maxAgents) +
// 0.2·avgAgentKnowledge, capped at 0.9.
func ImprisonmentProbability(knowledge float64, active, maxAgents int, avgAgentKnowledge float64) float64 {
	p := baseImprisonment + knowledgeWeight*knowledge + agentKnowledgeWeight*avgAgentKnowledge
	if maxAgents > 0 {
		p += agentRatioWeight * float64(active) / float64(maxAgents)
	}
	return min(p, maxImprisonmentChance)
}

func (o *Officer) imprisonmentProbability() float64 {
	active, sum := 0, 0.0
	for _, a := range o.agents {
		if a.active {
			active++
			sum += a.knowledge
		}
	}
	avg := 0.0
	if active > 0 {
		avg = sum / float64(active)
	}
	return ImprisonmentProbability(o.knowledge, active, o.cfg.MaxAgentsPerGang, avg)
}

func (o *Officer) evaluateImprisonment() {
	p := o.imprisonmentProbability()
	if o.rng.Float64() < p {
		o.imprison(p)
	}
}

// imprison sets the gang's countdown and closes any open cycle under the gang
// mutex, so the controller either sees the arrest before opening a cycle or has
// its open cycle closed.
func (o *Officer) imprison(p float64) {
	countdown := max(1, sim.RandInt(o.rng, o.cfg.MinPrisonPeriod, o.cfg.MaxPrisonPeriod))
	rec := o.h.Gang(o.gang)
	st := o.h.State()

	rec.Mu.Lock()
	st.SetArrestCountdown(o.gang, countdown)
	closed := rec.CloseOpenCycle()
	rec.Mu.Unlock()
	o.stats.WithGameStats(st.IncThwartedPlans)

	o.rec.RecordArrest(trace.ArrestRecord{
		Officer:     int(o.id),
		Gang:        int(o.gang),
		Tick:        o.now(),
		Countdown:   countdown,
		Probability: p,
		Knowledge:   o.knowledge,
	})
	o.log.Infof("gang imprisoned for %d ticks (p=%.2f, open cycle closed: %v)", countdown, p, closed)
	o.state = region.OfficerImprisoned
}

// serveSentence decrements the gang's countdown; at zero the barrier is reset
// and monitoring resumes. Both happen under the gang mutex.
func (o *Officer) serveSentence() {
	rec := o.h.Gang(o.gang)
	rec.Mu.Lock()
	left := o.h.State().DecrementArrest(o.gang)
	if left == 0 {
		rec.ResetBarrier()
	}
	rec.Mu.Unlock()
	if left == 0 {
		o.state = region.OfficerMonitoring
		o.log.Infof("gang released")
	}
}

func (o *Officer) publish() {
	o.h.State().Officers[o.id].Publish(o.knowledge, o.ActiveAgents(), o.state)
}

func (o *Officer) recordPlant(attempt int, agent sim.AgentID) {
	o.rec.RecordPlant(trace.PlantRecord{
		Officer:  int(o.id),
		Gang:     int(o.gang),
		Attempt:  attempt,
		Tick:     o.now(),
		Accepted: agent != sim.NoAgent,
		Agent:    int(agent),
	})
}

func (o *Officer) now() int { return o.h.State().ElapsedTicks() }

func (o *Officer) stopping(ctx context.Context) bool {
	return ctx.Err() != nil || o.h.State().ShutdownRequested()
}

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
