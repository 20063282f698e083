package intel

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/internal/testutil"
	"github.com/gang-sim/gang-sim/sim/region"
)

// newMembers returns alive civilians with the given ranks and a flat skill vector.
func newMembers(ranks ...int32) []region.MemberRecord {
	members := make([]region.MemberRecord, len(ranks))
	for i, r := range ranks {
		members[i].Rank = r
		members[i].SetAlive(true)
		members[i].SetRole(sim.Civilian())
		members[i].Shrewdness = 1.5
		members[i].Discretion = 1.5
		for a := range members[i].Attributes {
			members[i].Attributes[a] = 50
		}
	}
	return members
}

// === Target selection ===

func TestSelectTarget_PicksUniqueMinimum(t *testing.T) {
	// GIVEN every target hot except art theft
	targets := sim.DefaultTargets()
	var gangHeat [sim.NumTargets]float64
	for i := range gangHeat {
		gangHeat[i] = 2
	}
	gangHeat[sim.TargetArtTheft] = 0.5

	// WHEN selecting repeatedly
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		// THEN the coldest target always wins
		assert.Equal(t, sim.TargetArtTheft, SelectTarget(targets, gangHeat, rng))
	}
}

func TestSelectTarget_TwoWayTieIsUniform(t *testing.T) {
	// GIVEN two targets tied at the minimum score and the rest hotter
	targets := sim.DefaultTargets()
	var gangHeat [sim.NumTargets]float64
	for i := range gangHeat {
		gangHeat[i] = 3
	}
	gangHeat[sim.TargetJewelryRobbery] = 1
	gangHeat[sim.TargetBlackmail] = 1

	// WHEN selecting 1000 times
	rng := rand.New(rand.NewSource(42))
	counts := map[sim.TargetType]int{}
	for i := 0; i < 1000; i++ {
		counts[SelectTarget(targets, gangHeat, rng)]++
	}

	// THEN only the tied targets are chosen, each within 10% of half
	assert.Len(t, counts, 2)
	assert.InDelta(t, 500, counts[sim.TargetJewelryRobbery], 100)
	assert.InDelta(t, 500, counts[sim.TargetBlackmail], 100)
}

func TestPrepParameters_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for tt := 0; tt < sim.NumTargets; tt++ {
		for i := 0; i < 100; i++ {
			prepTime, prepLevel := PrepParameters(sim.TargetType(tt), rng)
			assert.GreaterOrEqual(t, prepTime, 10+5*tt)
			assert.Less(t, prepTime, 20+5*tt)
			assert.GreaterOrEqual(t, prepLevel, 50+10*tt)
			assert.Less(t, prepLevel, 70+10*tt)
		}
	}
}

func TestHighestRanked_IgnoresDeadAndBreaksTiesByID(t *testing.T) {
	members := newMembers(2, 4, 4, 5)
	members[3].SetAlive(false)

	id, ok := HighestRanked(members)
	require.True(t, ok)
	assert.Equal(t, sim.MemberID(1), id)
	assert.Equal(t, 4, MaxAliveRank(members))

	for i := range members {
		members[i].SetAlive(false)
	}
	_, ok = HighestRanked(members)
	assert.False(t, ok)
}

// === Success rate ===

func TestSuccessRate_ScenarioMeanOfMemberScores(t *testing.T) {
	// GIVEN 3 members with contributions 50, 60, 70, uniform weights and no difficulty
	cfg := testutil.SmallConfig()
	cfg.DifficultyLevel = 0
	members := newMembers(1, 2, 3)
	for i, c := range []int32{50, 60, 70} {
		members[i].PrepContribution = c
	}
	target := testutil.UniformTargets()[sim.TargetBankRobbery]

	// WHEN the success rate is computed
	got := SuccessRate(members, target, cfg)

	// THEN it equals the arithmetic mean of the per-member scores
	s0 := MemberScore(&members[0], target, cfg.NumRanks)
	s1 := MemberScore(&members[1], target, cfg.NumRanks)
	s2 := MemberScore(&members[2], target, cfg.NumRanks)
	want := sim.Clamp((s0+s1+s2)/3, 0, 100)
	assert.Equal(t, want, got)
}

func TestSuccessRate_BitReproducible(t *testing.T) {
	cfg := testutil.SmallConfig()
	cfg.DifficultyLevel = 2
	members := newMembers(0, 3, 4, 1)
	rng := rand.New(rand.NewSource(9))
	model := sim.DefaultSkillModel()
	for i := range members {
		members[i].Attributes = model.Sample(rng)
		members[i].PrepContribution = int32(rng.Intn(100))
	}
	target := sim.DefaultTargets()[sim.TargetKidnapping]

	first := SuccessRate(members, target, cfg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, math.Float64bits(first), math.Float64bits(SuccessRate(members, target, cfg)))
	}
}

func TestSuccessRate_ClampedAndDeadExcluded(t *testing.T) {
	cfg := testutil.SmallConfig()
	target := sim.DefaultTargets()[0]

	// GIVEN maxed-out members the raw rate exceeds 100
	members := newMembers(4, 4)
	for i := range members {
		for a := range members[i].Attributes {
			members[i].Attributes[a] = 100
		}
		members[i].PrepContribution = 500
	}
	assert.Equal(t, 100.0, SuccessRate(members, target, cfg))

	// GIVEN nobody alive the rate is zero
	for i := range members {
		members[i].SetAlive(false)
	}
	assert.Equal(t, 0.0, SuccessRate(members, target, cfg))
}

func TestRoll_Extremes(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 100; i++ {
		assert.True(t, Roll(100, rng))
		assert.False(t, Roll(0, rng))
	}
}

// === Interrogation and investigation ===

func TestAskMember_FellowAgentLowersKnowledge(t *testing.T) {
	// GIVEN an agent asking another agent who knows a lot
	members := newMembers(1, 2)
	members[0].SetRole(sim.Informant(0))
	members[0].Knowledge = 0.6
	members[1].SetRole(sim.Informant(1))
	members[1].Knowledge = 0.9

	// WHEN member 0 interrogates member 1
	AskMember(members, 0, 1, 4)

	// THEN the asker's knowledge drops by shrewdness × (0.9 − 0.5), clamped at 0
	assert.InDelta(t, math.Max(0, 0.6-1.5*0.4), members[0].Knowledge, 1e-12)
	assert.Equal(t, []sim.MemberID{0}, members[1].Askers())
}

func TestAskMember_CivilianRaisesSuspicionAndKnowledge(t *testing.T) {
	// GIVEN a low-ranked agent asking the top-ranked civilian
	members := newMembers(1, 4)
	members[0].SetRole(sim.Informant(0))
	members[0].Knowledge = 0.2
	members[0].Discretion = 1.0
	members[0].Shrewdness = 0.5

	AskMember(members, 0, 1, 4)

	// THEN suspicion += 0.5 × (1 − 0.25×1) and knowledge += 0.5 × (1 − 0.5)
	assert.InDelta(t, 0.375, members[0].Suspicion, 1e-12)
	assert.InDelta(t, 0.45, members[0].Knowledge, 1e-12)
}

func TestInvestigate_ExecutesOnlyAgentsAboveThreshold(t *testing.T) {
	// GIVEN one agent at suspicion 0.95, one calm agent and a threshold of 0.9
	members := newMembers(4, 1, 2, 3)
	members[1].SetRole(sim.Informant(0))
	members[1].Suspicion = 0.95
	members[2].SetRole(sim.Informant(1))
	members[2].Suspicion = 0.1
	members[0].Shrewdness = 1.0

	// WHEN an investigation runs
	inv := Investigate(members, 0.9)

	// THEN exactly the suspicious agent is executed
	assert.Equal(t, sim.MemberID(0), inv.Investigator)
	require.Len(t, inv.Executed, 1)
	assert.Equal(t, Execution{Member: 1, Agent: 0}, inv.Executed[0])
	assert.False(t, members[1].Alive())
	assert.True(t, members[2].Alive())
	assert.InDelta(t, 0.2, members[2].Suspicion, 1e-12)
}

func TestInvestigate_AskersGainSuspicion(t *testing.T) {
	// GIVEN a civilian who was asked questions by member 2
	members := newMembers(4, 1, 2)
	members[0].Shrewdness = 1.0
	members[1].Suspicion = 0.25
	members[1].RecordAsker(2, 4)

	Investigate(members, 0.9)

	// THEN the asker's suspicion rose by shrewdness × (1 − 0.25)
	assert.InDelta(t, 0.75, members[2].Suspicion, 1e-12)
	assert.Empty(t, members[1].Askers())
}

func TestCovertFields_StayClampedOverRandomSequences(t *testing.T) {
	// GIVEN randomised gangs with random roles and covert attributes
	rng := rand.New(rand.NewSource(2024))
	for seq := 0; seq < 10000; seq++ {
		n := 2 + rng.Intn(6)
		members := make([]region.MemberRecord, n)
		for i := range members {
			members[i].Rank = int32(rng.Intn(5))
			members[i].SetAlive(true)
			if rng.Intn(3) == 0 {
				members[i].SetRole(sim.Informant(sim.AgentID(i)))
			} else {
				members[i].SetRole(sim.Civilian())
			}
			InitCovert(&members[i], 4, rng)
			members[i].Suspicion = rng.Float64()
		}

		// WHEN a random mix of interrogations and investigations is applied
		for step := 0; step < 5; step++ {
			if rng.Intn(4) == 0 {
				Investigate(members, rng.Float64())
				continue
			}
			a, b := rng.Intn(n), rng.Intn(n)
			if a != b && members[a].Alive() && members[b].Alive() {
				AskMember(members, sim.MemberID(a), sim.MemberID(b), 8)
			}
		}

		// THEN knowledge and suspicion never leave [0, 1]
		for i := range members {
			k, s := members[i].Knowledge, members[i].Suspicion
			if k < 0 || k > 1 || s < 0 || s > 1 || math.IsNaN(k) || math.IsNaN(s) {
				t.Fatalf("sequence %d member %d: knowledge=%v suspicion=%v", seq, i, k, s)
			}
		}
	}
}

func TestInitCovert_Ranges(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 1000; i++ {
		var m region.MemberRecord
		m.Rank = int32(rng.Intn(5))
		InitCovert(&m, 4, rng)
		assert.GreaterOrEqual(t, m.Knowledge, 0.1)
		assert.LessOrEqual(t, m.Knowledge, 1.0)
		assert.Zero(t, m.Suspicion)
		assert.GreaterOrEqual(t, m.Discretion, 1.0)
		assert.Less(t, m.Shrewdness, 2.0)
	}
}

// === Diffusion ===

func TestSpread_LeaderMisinformationReachesSubordinates(t *testing.T) {
	// GIVEN a leader who always lies
	members := newMembers(4, 1, 2)
	rng := rand.New(rand.NewSource(8))
	for i := range members {
		InitCovert(&members[i], 4, rng)
	}

	// WHEN one diffusion round runs
	Spread(members, 1.0, 30, rng)

	// THEN each subordinate's first packet is the leader's false briefing
	for _, i := range []int{1, 2} {
		packets := members[i].Packets()
		require.NotEmpty(t, packets)
		assert.Equal(t, region.InfoFalse, packets[0].Kind)
		assert.Equal(t, int32(4), packets[0].SourceRank)
		assert.Equal(t, int32(30), packets[0].Timestamp)
		assert.Greater(t, members[i].Misinformation, 0.0)
	}
	assert.Empty(t, members[0].Packets(), "the leader receives nothing from below")
}

func TestUpdateKnowledge_BlendsEightyTwenty(t *testing.T) {
	var m region.MemberRecord
	m.Knowledge = 0.5
	m.PushPacket(region.InfoPacket{Kind: region.InfoCorrect, Accuracy: 1.0, SourceRank: 0})

	UpdateKnowledge(&m)

	assert.InDelta(t, 0.5*0.8+1.0*0.2, m.Knowledge, 1e-12)
	assert.Zero(t, m.Misinformation)
}

func TestNextSpreadInterval_Range(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		v := NextSpreadInterval(rng)
		assert.GreaterOrEqual(t, v, 5)
		assert.LessOrEqual(t, v, 15)
	}
}
