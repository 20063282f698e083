package gang

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/internal/testutil"
	"github.com/gang-sim/gang-sim/sim/msgq"
	"github.com/gang-sim/gang-sim/sim/psync"
	"github.com/gang-sim/gang-sim/sim/region"
	"github.com/gang-sim/gang-sim/sim/trace"
)

type fixture struct {
	cfg   sim.Config
	h     *region.Handle
	ch    *msgq.Memory
	stats *psync.Stats
	gang  *Gang
}

func newFixture(t *testing.T, cfg sim.Config, opts Options) *fixture {
	t.Helper()
	h, err := region.Create(cfg, testutil.UniformTargets(), region.NewHeap(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Release() })
	ch := msgq.NewMemory(0)
	t.Cleanup(func() { _ = ch.Destroy() })
	stats := psync.NewLocalStats()

	g := New(0, h, ch, stats, opts)
	g.Init(rand.New(rand.NewSource(2)))
	return &fixture{cfg: cfg, h: h, ch: ch, stats: stats, gang: g}
}

// presetTarget skips target selection and fixes the preparation level.
func (f *fixture) presetTarget(level int32) {
	rec := f.h.Gang(0)
	rec.Mu.Lock()
	defer rec.Mu.Unlock()
	rec.Target = int32(sim.TargetBankRobbery)
	rec.PrepTime = 1
	rec.PrepLevel = level
}

// start runs the gang in the background and returns a stop function that
// waits for Run to return.
func (f *fixture) start(t *testing.T) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.gang.Run(ctx, sim.NewPartitionedRNG(7)) }()
	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("gang did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func TestInit_LeaderHoldsTopRank(t *testing.T) {
	cfg := testutil.SmallConfig()
	cfg.MinGangSize, cfg.MaxGangSize = 6, 6
	f := newFixture(t, cfg, Options{})

	members := f.h.Members(0)
	require.Len(t, members, 6)
	assert.Equal(t, int32(cfg.NumRanks-1), members[0].Rank)
	for i := range members {
		m := &members[i]
		assert.True(t, m.Alive())
		assert.False(t, m.Role().IsAgent())
		assert.GreaterOrEqual(t, m.Knowledge, 0.1)
		assert.LessOrEqual(t, m.Knowledge, 1.0)
		if i > 0 {
			assert.Less(t, m.Rank, members[0].Rank, "member %d outranks the leader", i)
		}
	}
	assert.Equal(t, int32(6), f.h.Gang(0).NumAlive)
}

func TestRun_BarrierResolvesOncePerCycle(t *testing.T) {
	// GIVEN a 3-member gang whose preparation completes in one step
	type resolution struct{ cycle, ready, participants int }
	var mu sync.Mutex
	var resolved []resolution
	reacts := map[int][]int32{}
	outcomes := map[int]int32{}
	hooks := Hooks{
		OnResolve: func(cycle, ready, participants int, outcome int32) {
			mu.Lock()
			defer mu.Unlock()
			resolved = append(resolved, resolution{cycle, ready, participants})
			outcomes[cycle] = outcome
		},
		OnReact: func(_ sim.MemberID, cycle int, outcome int32) {
			mu.Lock()
			defer mu.Unlock()
			reacts[cycle] = append(reacts[cycle], outcome)
		},
	}
	f := newFixture(t, testutil.SmallConfig(), Options{Hooks: hooks})
	f.presetTarget(1)

	// WHEN the gang runs for several cycles
	stop := f.start(t)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(resolved) >= 5
	}, 10*time.Second, 5*time.Millisecond)
	stop()

	// THEN every cycle left the barrier exactly once with all 3 members ready
	mu.Lock()
	defer mu.Unlock()
	for i, r := range resolved {
		assert.Equal(t, i+1, r.cycle, "cycles resolve in order, once each")
		assert.Equal(t, 3, r.ready)
		assert.Equal(t, 3, r.participants)
	}
	// AND every member saw the same non-pending outcome as the controller
	for _, r := range resolved {
		want := outcomes[r.cycle]
		assert.NotEqual(t, region.PlanPending, want)
		require.Len(t, reacts[r.cycle], 3, "cycle %d", r.cycle)
		for _, got := range reacts[r.cycle] {
			assert.Equal(t, want, got, "cycle %d", r.cycle)
		}
	}
}

func TestRun_StopsOnShutdownFlag(t *testing.T) {
	f := newFixture(t, testutil.SmallConfig(), Options{})
	f.presetTarget(1_000_000)

	done := make(chan error, 1)
	go func() { done <- f.gang.Run(context.Background(), sim.NewPartitionedRNG(7)) }()
	time.Sleep(20 * time.Millisecond)
	f.h.State().RequestShutdown()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gang ignored the shutdown flag")
	}
}

func TestRun_CycleClosedByArrest(t *testing.T) {
	// GIVEN a running gang whose members can never finish preparing
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelPlans})
	var mu sync.Mutex
	var outcomes []int32
	f := newFixture(t, testutil.SmallConfig(), Options{
		Recorder: st,
		Hooks: Hooks{OnResolve: func(_, _, _ int, outcome int32) {
			mu.Lock()
			defer mu.Unlock()
			outcomes = append(outcomes, outcome)
		}},
	})
	f.presetTarget(1_000_000)
	stop := f.start(t)
	rec := f.h.Gang(0)
	require.Eventually(t, func() bool {
		rec.Mu.Lock()
		defer rec.Mu.Unlock()
		return rec.Cycle == 1 && rec.PlanInProgress == 1
	}, 5*time.Second, time.Millisecond)

	// WHEN police imprison the gang and close the open cycle
	rec.Mu.Lock()
	f.h.State().SetArrestCountdown(0, 1_000)
	closed := rec.CloseOpenCycle()
	rec.Mu.Unlock()
	require.True(t, closed)

	// THEN the controller records the cycle as arrested, once
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes) == 1
	}, 5*time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	stop()

	assert.Equal(t, []int32{region.PlanThwarted}, outcomes)
	snap := st.Snapshot()
	require.Len(t, snap.Plans, 1)
	assert.Equal(t, trace.OutcomeArrested, snap.Plans[0].Outcome)
	assert.Equal(t, int32(1), rec.ThwartedPlans)
	assert.Equal(t, 0, f.h.State().ThwartedPlans(), "the arresting officer counts the global thwart")
	// AND no new cycle opens while the countdown runs
	assert.Equal(t, int32(1), rec.Cycle)
}

func TestInvestigate_ExecutesSuspiciousAgent(t *testing.T) {
	// GIVEN one informant at suspicion 0.95 and a threshold of 0.9
	cfg := testutil.SmallConfig()
	cfg.SuspicionThreshold = 0.9
	f := newFixture(t, cfg, Options{})
	rec := f.h.Gang(0)
	agent := f.h.Member(0, 2)
	agent.SetRole(sim.Informant(0))
	agent.Suspicion = 0.95
	rec.NumAgents = 1
	aliveBefore := rec.NumAlive

	// WHEN the gang investigates
	executed := f.gang.Investigate(context.Background())

	// THEN exactly that agent is executed, counted once and reported to police
	assert.Equal(t, 1, executed)
	assert.False(t, agent.Alive())
	assert.Equal(t, aliveBefore-1, rec.NumAlive)
	assert.Equal(t, int32(0), rec.NumAgents)
	assert.Equal(t, 1, f.h.State().ExecutedAgents())

	msgs := f.ch.Drain(msgq.NewRouter(cfg).Police(0))
	require.Len(t, msgs, 1)
	assert.Equal(t, msgq.ModeAgentDeath, msgs[0].Mode)
	assert.Equal(t, sim.AgentID(0), msgs[0].AgentID)
	assert.Equal(t, sim.GangID(0), msgs[0].GangID)
}

// noticeHook runs onDeath just before an AGENT_DEATH notice is queued.
type noticeHook struct {
	msgq.Channel
	onDeath func()
}

func (c *noticeHook) Send(m msgq.Message) error {
	if m.Mode == msgq.ModeAgentDeath && c.onDeath != nil {
		c.onDeath()
	}
	return c.Channel.Send(m)
}

func TestInvestigate_HoldsAgentIDUntilDeathNoticeQueued(t *testing.T) {
	// GIVEN a gang with room for one informant whose only informant is exposed,
	// and members who would all accept a recruitment
	cfg := testutil.SmallConfig()
	cfg.SuspicionThreshold = 0.9
	cfg.MaxAgentsPerGang = 1
	f := newFixture(t, cfg, Options{})
	members := f.h.Members(0)
	for i := range members {
		members[i].Faithfulness = 0
	}
	agent := &members[2]
	agent.SetRole(sim.Informant(0))
	agent.Suspicion = 0.95
	f.h.Gang(0).NumAgents = 1

	ch := &noticeHook{Channel: f.ch}
	g := New(0, f.h, ch, f.stats, Options{})
	rng := rand.New(rand.NewSource(5))
	recruitedDuringNotice := sim.AgentID(-2)
	ch.onDeath = func() { recruitedDuringNotice = g.Recruit(rng) }

	// WHEN the gang investigates and a handshake lands while the notice is in flight
	require.Equal(t, 1, g.Investigate(context.Background()))

	// THEN the freed id is not handed out before the officer is told of the death
	assert.Equal(t, sim.NoAgent, recruitedDuringNotice)
	msgs := f.ch.Drain(msgq.NewRouter(cfg).Police(0))
	require.Len(t, msgs, 1)
	assert.Equal(t, msgq.ModeAgentDeath, msgs[0].Mode)

	// AND once the notice is queued the id is free again
	ch.onDeath = nil
	assert.Equal(t, sim.AgentID(0), g.Recruit(rng))
}

func TestInvestigate_SparesCiviliansAndCalmAgents(t *testing.T) {
	cfg := testutil.SmallConfig()
	cfg.SuspicionThreshold = 0.9
	f := newFixture(t, cfg, Options{})
	agent := f.h.Member(0, 1)
	agent.SetRole(sim.Informant(0))
	agent.Suspicion = 0
	f.h.Member(0, 2).Suspicion = 1

	assert.Equal(t, 0, f.gang.Investigate(context.Background()))
	assert.Equal(t, 0, f.h.State().ExecutedAgents())
	assert.Zero(t, f.ch.Pending(msgq.NewRouter(cfg).Police(0)))
}

func TestRecruit_AssignsSmallestFreeID(t *testing.T) {
	// GIVEN a 4-member gang of members who always accept, with room for 2 informants
	cfg := testutil.SmallConfig()
	cfg.MinGangSize, cfg.MaxGangSize = 4, 4
	cfg.MaxAgentsPerGang = 2
	f := newFixture(t, cfg, Options{})
	members := f.h.Members(0)
	for i := range members {
		members[i].Faithfulness = 0
	}
	rng := rand.New(rand.NewSource(3))

	// WHEN recruiting until the limit
	first := f.gang.Recruit(rng)
	second := f.gang.Recruit(rng)
	third := f.gang.Recruit(rng)

	// THEN ids 0 and 1 are handed out, then the limit refuses
	assert.Equal(t, sim.AgentID(0), first)
	assert.Equal(t, sim.AgentID(1), second)
	assert.Equal(t, sim.NoAgent, third)
	assert.False(t, members[0].Role().IsAgent(), "the leader is never turned")

	// WHEN informant 0 dies, its id is handed out again
	for i := range members {
		if id, ok := members[i].Role().AgentID(); ok && id == 0 {
			members[i].SetAlive(false)
		}
	}
	f.h.Gang(0).NumAgents--
	assert.Equal(t, sim.AgentID(0), f.gang.Recruit(rng))
}

func TestRecruit_FaithfulMembersRefuse(t *testing.T) {
	f := newFixture(t, testutil.SmallConfig(), Options{})
	members := f.h.Members(0)
	for i := range members {
		members[i].Faithfulness = 1
	}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		assert.Equal(t, sim.NoAgent, f.gang.Recruit(rng))
	}
	assert.Equal(t, int32(0), f.h.Gang(0).NumAgents)
}

func TestHandshake_RepliesOnPoliceKey(t *testing.T) {
	// GIVEN a running gang of members who always accept
	cfg := testutil.SmallConfig()
	f := newFixture(t, cfg, Options{})
	f.presetTarget(1_000_000)
	members := f.h.Members(0)
	for i := range members {
		members[i].Faithfulness = 0
	}
	router := msgq.NewRouter(cfg)
	stop := f.start(t)
	defer stop()

	// WHEN officer 0 sends a plant request on the gang broadcast key
	require.NoError(t, f.ch.Send(msgq.Message{Key: router.Gang(0), Mode: msgq.ModeHandshake, GangID: 0, PoliceID: 0}))

	// THEN the reply on the officer's key carries the new agent id
	reply := receiveMode(t, f.ch, router.Police(0), msgq.ModeHandshake)
	assert.Equal(t, sim.GangID(0), reply.GangID)
	assert.Equal(t, sim.AgentID(0), reply.AgentID)
}

func TestAgent_AnswersPoliceRequest(t *testing.T) {
	// GIVEN a running gang with one informant that never volunteers or asks
	cfg := testutil.SmallConfig()
	cfg.KnowledgeThreshold = 1
	cfg.AskProbability = 0
	f := newFixture(t, cfg, Options{})
	f.presetTarget(1_000_000)
	agent := f.h.Member(0, 1)
	agent.SetRole(sim.Informant(0))
	agent.Knowledge = 0.42
	f.h.Gang(0).NumAgents = 1
	router := msgq.NewRouter(cfg)
	stop := f.start(t)
	defer stop()

	// WHEN its officer demands a report
	require.NoError(t, f.ch.Send(msgq.Message{Key: router.Agent(0, 0), Mode: msgq.ModePoliceRequest, GangID: 0, AgentID: 0}))

	// THEN the report carries the agent's knowledge
	report := receiveMode(t, f.ch, router.Police(0), msgq.ModePoliceReport)
	assert.Equal(t, sim.AgentID(0), report.AgentID)
	assert.Equal(t, 0.42, report.Knowledge)
}

func receiveMode(t *testing.T, ch msgq.Channel, key msgq.Key, mode msgq.Mode) msgq.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		m, err := ch.Receive(ctx, key)
		require.NoError(t, err)
		if m.Mode == mode {
			return m
		}
	}
}
