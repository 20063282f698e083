package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// === Subsystem Names ===

const (
	// SubsystemLayout draws gang sizes when the owner creates the region.
	// Uses master seed directly.
	SubsystemLayout = "layout"

	// SubsystemOwner drives owner-level choices (number of gangs).
	SubsystemOwner = "owner"
)

// SubsystemGang returns the subsystem name for gang N's controller.
func SubsystemGang(id GangID) string {
	return fmt.Sprintf("gang_%d", id)
}

// SubsystemGangInit returns the subsystem name used once to populate gang N's members.
func SubsystemGangInit(id GangID) string {
	return fmt.Sprintf("gang_%d_init", id)
}

// SubsystemHandshake returns the subsystem name for gang N's handshake responder.
func SubsystemHandshake(id GangID) string {
	return fmt.Sprintf("gang_%d_handshake", id)
}

// SubsystemMember returns the subsystem name for one member goroutine.
func SubsystemMember(gang GangID, member MemberID) string {
	return fmt.Sprintf("gang_%d_member_%d", gang, member)
}

// SubsystemOfficer returns the subsystem name for officer N.
func SubsystemOfficer(id PoliceID) string {
	return fmt.Sprintf("officer_%d", id)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemLayout: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Every goroutine owns the *rand.Rand of its own subsystem; streams are never shared.
// Processes that share a seed derive identical streams for the same subsystem name.
//
// Thread-safety: NOT thread-safe. Derive all streams from one goroutine before
// handing them to workers.
type PartitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a master seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	var derivedSeed int64
	if name == SubsystemLayout {
		derivedSeed = p.seed
	} else {
		derivedSeed = p.seed ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Seed returns the master seed.
func (p *PartitionedRNG) Seed() int64 {
	return p.seed
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

// === Draw helpers ===

// RandInt returns a uniform integer in [lo, hi]. Returns lo when hi <= lo.
func RandInt(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// Uniform returns a uniform float in [lo, hi).
func Uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// Clamp01 clamps v to [0, 1]. NaN clamps to 0.
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// Clamp clamps v to [lo, hi]. NaN clamps to lo.
func Clamp(v, lo, hi float64) float64 {
	if v != v || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
