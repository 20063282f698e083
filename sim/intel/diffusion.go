package intel

import (
	"math"
	"math/rand"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/region"
)

// Spread runs one information-diffusion round at tick now.
//
// The leader first briefs every lower-ranked alive member, with false
// information (accuracy U[0.1,0.4]) with probability misinfoChance and correct
// information (accuracy U[0.8,1.0]) otherwise. Then every alive member may pass
// information to every lower-ranked alive member with probability
// 0.7/(1 + 0.3·rank_gap). Finally every alive member's knowledge is recomputed
// from its packets.
func Spread(members []region.MemberRecord, misinfoChance float64, now int, rng *rand.Rand) {
	leader, ok := HighestRanked(members)
	if !ok {
		return
	}
	lead := &members[leader]
	falseInfo := rng.Float64() < misinfoChance
	for i := range members {
		m := &members[i]
		if !m.Alive() || sim.MemberID(i) == leader || m.Rank >= lead.Rank {
			continue
		}
		p := region.InfoPacket{Kind: region.InfoCorrect, SourceRank: lead.Rank, Timestamp: int32(now)}
		if falseInfo {
			p.Kind = region.InfoFalse
			p.Accuracy = sim.Uniform(rng, 0.1, 0.4)
		} else {
			p.Accuracy = sim.Uniform(rng, 0.8, 1.0)
		}
		m.PushPacket(p)
	}

	for s := range members {
		src := &members[s]
		if !src.Alive() {
			continue
		}
		for d := range members {
			dst := &members[d]
			if s == d || !dst.Alive() || src.Rank <= dst.Rank {
				continue
			}
			gap := float64(src.Rank - dst.Rank)
			if rng.Float64() < 0.7/(1+0.3*gap) {
				share(src, dst, now, rng)
			}
		}
	}

	for i := range members {
		if members[i].Alive() {
			UpdateKnowledge(&members[i])
		}
	}
}

func share(src, dst *region.MemberRecord, now int, rng *rand.Rand) {
	gap := math.Abs(float64(src.Rank - dst.Rank))
	accuracy := src.Knowledge * (1 - 0.1*gap) * (1 - src.Misinformation)
	dst.PushPacket(region.InfoPacket{
		Kind:       infoKind(int(src.Rank), src.Misinformation, rng),
		SourceRank: src.Rank,
		Accuracy:   sim.Clamp(accuracy, 0.1, 1.0),
		Timestamp:  int32(now),
	})
}

// infoKind draws what a member passes on: correct with probability
// 0.8 + 0.05·rank − misinformation, partial for the next 0.15, false otherwise.
func infoKind(rank int, misinformation float64, rng *rand.Rand) int32 {
	correct := 0.8 + 0.05*float64(rank) - misinformation
	r := rng.Float64()
	switch {
	case r < correct:
		return region.InfoCorrect
	case r < correct+0.15:
		return region.InfoPartial
	}
	return region.InfoFalse
}

// UpdateKnowledge blends a member's knowledge with its packets: newer packets and
// packets from higher-ranked sources weigh more. Knowledge keeps 80% of its old
// value; the misinformation score keeps 90%.
func UpdateKnowledge(m *region.MemberRecord) {
	packets := m.Packets()
	if len(packets) == 0 {
		return
	}
	var total, accuracy, misinfo float64
	for age := 0; age < len(packets); age++ {
		p := packets[len(packets)-1-age]
		w := (1 / (1 + 0.2*float64(age))) * (1 + 0.1*float64(p.SourceRank))
		total += w
		switch p.Kind {
		case region.InfoCorrect:
			accuracy += p.Accuracy * w
		case region.InfoPartial:
			accuracy += p.Accuracy * w * 0.7
		case region.InfoFalse:
			accuracy += (1 - p.Accuracy) * w * 0.3
			misinfo += (1 - p.Accuracy) * w * 0.5
		}
	}
	if total <= 0 {
		return
	}
	m.Knowledge = sim.Clamp01(m.Knowledge*0.8 + (accuracy/total)*0.2)
	m.Misinformation = sim.Clamp01(m.Misinformation*0.9 + (misinfo/total)*0.1)
}

// NextSpreadInterval draws the ticks until the next diffusion round.
func NextSpreadInterval(rng *rand.Rand) int {
	return sim.RandInt(rng, 5, 15)
}
