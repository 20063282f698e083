package intel

import (
	"math/rand"

	"github.com/gang-sim/gang-sim/sim"
	"github.com/gang-sim/gang-sim/sim/region"
)

// DotProduct returns the weighted sum of a skill vector.
func DotProduct(attrs, weights [sim.NumAttributes]float64) float64 {
	sum := 0.0
	for i := range attrs {
		sum += attrs[i] * weights[i]
	}
	return sum
}

// HighestRanked returns the alive member with the highest rank. Ties go to the
// lowest member id. ok is false when no member is alive.
func HighestRanked(members []region.MemberRecord) (id sim.MemberID, ok bool) {
	best := int32(-1)
	for i := range members {
		if members[i].Alive() && members[i].Rank > best {
			best = members[i].Rank
			id = sim.MemberID(i)
			ok = true
		}
	}
	return id, ok
}

// MaxAliveRank returns the highest rank among alive members, or 0 if none.
func MaxAliveRank(members []region.MemberRecord) int {
	best := 0
	for i := range members {
		if members[i].Alive() && int(members[i].Rank) > best {
			best = int(members[i].Rank)
		}
	}
	return best
}

// SelectTarget picks the coldest target for a gang: the score of target t is
// global heat × the gang's own heat for t, and the choice is uniform among all
// targets tied at the minimum score.
func SelectTarget(targets []sim.Target, gangHeat [sim.NumTargets]float64, rng *rand.Rand) sim.TargetType {
	var tied [sim.NumTargets]sim.TargetType
	n := 0
	minScore := 0.0
	for i, t := range targets {
		score := t.Heat * gangHeat[i]
		switch {
		case n == 0 || score < minScore:
			minScore = score
			tied[0] = t.Type
			n = 1
		case score == minScore:
			tied[n] = t.Type
			n++
		}
	}
	if n == 0 {
		return sim.TargetBankRobbery
	}
	return tied[rng.Intn(n)]
}

// PrepParameters derives the preparation time (ticks) and level a target needs.
// Both grow with the target's ordinal, plus bounded jitter.
func PrepParameters(t sim.TargetType, rng *rand.Rand) (prepTime, prepLevel int) {
	prepTime = 10 + 5*int(t) + rng.Intn(10)
	prepLevel = 50 + 10*int(t) + rng.Intn(20)
	return prepTime, prepLevel
}
