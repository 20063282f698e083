package intel

import (
	"math/rand"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/region"
)

// prepLevels normalises a member's preparation contribution in the success formula.
const prepLevels = 100.0

// MemberScore is one member's contribution to the success rate:
// dot(attributes, weights) × (1 + rank/num_ranks) × (1 + prep/100).
func MemberScore(m *region.MemberRecord, target sim.Target, numRanks int) float64 {
	dot := DotProduct(m.Attributes, target.Weights)
	rankFactor := 1.0 + float64(m.Rank)/float64(max(numRanks, 1))
	prepFactor := 1.0 + float64(m.PrepContribution)/prepLevels
	return dot * rankFactor * prepFactor
}

// SuccessRate returns the plan success rate in [0, 100]: the sum of alive
// members' scores divided by alive_count × difficulty_factor². Deterministic
// for fixed inputs.
func SuccessRate(members []region.MemberRecord, target sim.Target, cfg sim.Config) float64 {
	sum := 0.0
	alive := 0
	for i := range members {
		if !members[i].Alive() {
			continue
		}
		sum += MemberScore(&members[i], target, cfg.NumRanks)
		alive++
	}
	if alive == 0 {
		return 0
	}
	df := cfg.DifficultyFactor()
	return sim.Clamp(sum/(float64(alive)*df*df), 0, 100)
}

// Roll reports whether a plan with the given success rate succeeds:
// uniform[0,100) < rate.
func Roll(rate float64, rng *rand.Rand) bool {
	return rng.Float64()*100 < rate
}
