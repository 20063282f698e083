package intel

import (
	"math/rand"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/region"
)

// InitCovert draws a member's covert attributes. Knowledge starts from the
// member's rank ratio (0.2 + 0.7·ratio² plus N(0, 0.1) noise, clamped to
// [0.1, 1]); suspicion starts at 0; faithfulness is U[0,1]; discretion and
// shrewdness are U[1,2].
func InitCovert(m *region.MemberRecord, maxRank int, rng *rand.Rand) {
	m.Knowledge = BaseKnowledge(int(m.Rank), maxRank, rng)
	m.Suspicion = 0
	m.Misinformation = 0
	m.Faithfulness = rng.Float64()
	m.Discretion = sim.Uniform(rng, 1, 2)
	m.Shrewdness = sim.Uniform(rng, 1, 2)
	m.ClearAskers()
}

// BaseKnowledge is the starting knowledge for a rank.
func BaseKnowledge(rank, maxRank int, rng *rand.Rand) float64 {
	if maxRank <= 0 {
		return 0.5
	}
	ratio := float64(rank) / float64(maxRank)
	k := 0.2 + ratio*ratio*0.7 + rng.NormFloat64()*0.1
	return sim.Clamp(k, 0.1, 1.0)
}

// AskMember applies one interrogation of target by the agent asker.
//
// Questioning a fellow agent lowers the asker's knowledge by
// shrewdness × (target.knowledge − 0.5). Otherwise the asker's suspicion grows
// by shrewdness × (1 − rank_ratio × discretion) and its knowledge moves by
// shrewdness × (target_rank_ratio − 0.5), with ratios taken against the
// highest alive rank. Either way the target remembers the asker, up to
// maxAskers distinct entries.
func AskMember(members []region.MemberRecord, asker, target sim.MemberID, maxAskers int) {
	a := &members[asker]
	t := &members[target]

	if t.Role().IsAgent() {
		a.Knowledge = sim.Clamp01(a.Knowledge - a.Shrewdness*(t.Knowledge-0.5))
	} else {
		maxRank := float64(max(MaxAliveRank(members), 1))
		rankRatio := float64(a.Rank) / maxRank
		a.Suspicion = sim.Clamp01(a.Suspicion + a.Shrewdness*(1-rankRatio*a.Discretion))
		targetRatio := float64(t.Rank) / maxRank
		a.Knowledge = sim.Clamp01(a.Knowledge + a.Shrewdness*(targetRatio-0.5))
	}
	t.RecordAsker(asker, maxAskers)
}

// Execution records an agent killed by an investigation.
type Execution struct {
	Member sim.MemberID
	Agent  sim.AgentID
}

// Investigation is the result of one internal investigation.
type Investigation struct {
	Investigator sim.MemberID
	Executed     []Execution
}

// Investigate runs an internal investigation led by the highest-ranked alive
// member.
//
// Every living agent's suspicion grows by investigator.shrewdness × its own
// suspicion. For every living member with recorded askers, each alive asker's
// suspicion grows by investigator.shrewdness × (1 − askee.suspicion). Then every
// alive agent whose suspicion exceeds threshold is marked dead and returned.
// Askers lists are cleared afterwards.
//
// Investigate only touches member records. The caller adjusts the gang's alive
// and agent counts, the global counters, and notifies police.
func Investigate(members []region.MemberRecord, threshold float64) Investigation {
	lead, ok := HighestRanked(members)
	if !ok {
		return Investigation{Investigator: -1}
	}
	shrewdness := members[lead].Shrewdness

	for i := range members {
		m := &members[i]
		if !m.Alive() {
			continue
		}
		if m.Role().IsAgent() {
			m.Suspicion = sim.Clamp01(m.Suspicion + shrewdness*m.Suspicion)
		}
		for _, askerID := range m.Askers() {
			if int(askerID) >= len(members) {
				continue
			}
			asker := &members[askerID]
			if !asker.Alive() {
				continue
			}
			asker.Suspicion = sim.Clamp01(asker.Suspicion + shrewdness*(1-m.Suspicion))
		}
	}

	result := Investigation{Investigator: lead}
	for i := range members {
		m := &members[i]
		m.ClearAskers()
		agent, isAgent := m.Role().AgentID()
		if !m.Alive() || !isAgent || m.Suspicion <= threshold {
			continue
		}
		m.SetAlive(false)
		result.Executed = append(result.Executed, Execution{Member: sim.MemberID(i), Agent: agent})
	}
	return result
}
