package sim

import (
	"math"
	"math/rand"
	"testing"
)

// === PartitionedRNG Tests ===

func TestPartitionedRNG_DeterministicDerivation(t *testing.T) {
	// BDD: Same seed+name produces same sequence, even across instances
	rng1 := NewPartitionedRNG(42)
	rng2 := NewPartitionedRNG(42)

	for i := 0; i < 3; i++ {
		v1 := rng1.ForSubsystem(SubsystemGang(1)).Float64()
		v2 := rng2.ForSubsystem(SubsystemGang(1)).Float64()
		if v1 != v2 {
			t.Errorf("Value %d: got %v and %v, want identical", i, v1, v2)
		}
	}
}

func TestPartitionedRNG_SubsystemIsolation(t *testing.T) {
	// BDD: Drawing from subsystem A doesn't affect subsystem B
	rngA := NewPartitionedRNG(42)
	for i := 0; i < 10; i++ {
		rngA.ForSubsystem(SubsystemOfficer(0)).Float64()
	}
	aGangFirst := rngA.ForSubsystem(SubsystemGang(0)).Float64()

	fresh := NewPartitionedRNG(42)
	expectedFirst := fresh.ForSubsystem(SubsystemGang(0)).Float64()

	if aGangFirst != expectedFirst {
		t.Errorf("gang first value = %v, want %v (isolation broken)", aGangFirst, expectedFirst)
	}
}

func TestPartitionedRNG_LayoutUsesMasterSeed(t *testing.T) {
	// BDD: "layout" subsystem uses master seed directly
	seed := int64(42)
	layout := NewPartitionedRNG(seed).ForSubsystem(SubsystemLayout)
	direct := rand.New(rand.NewSource(seed))

	for i := 0; i < 10; i++ {
		if got, want := layout.Float64(), direct.Float64(); got != want {
			t.Errorf("Value %d: layout RNG = %v, direct RNG = %v", i, got, want)
		}
	}
}

func TestPartitionedRNG_CachesInstance(t *testing.T) {
	rng := NewPartitionedRNG(42)
	if rng.ForSubsystem(SubsystemOwner) != rng.ForSubsystem(SubsystemOwner) {
		t.Error("ForSubsystem returned different instances for same name")
	}
	if rng.Seed() != 42 {
		t.Errorf("Seed() = %d, want 42", rng.Seed())
	}
}

func TestSubsystemNames_Distinct(t *testing.T) {
	names := []string{
		SubsystemLayout, SubsystemOwner,
		SubsystemGang(0), SubsystemGang(1), SubsystemGangInit(0), SubsystemHandshake(0),
		SubsystemMember(0, 1), SubsystemMember(1, 0), SubsystemOfficer(0), SubsystemOfficer(1),
	}
	seen := make(map[string]bool)
	for _, n := range names {
		if seen[n] {
			t.Errorf("duplicate subsystem name %q", n)
		}
		seen[n] = true
	}
}

// === Draw helpers ===

func TestRandInt_StaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	hit := map[int]bool{}
	for i := 0; i < 1000; i++ {
		v := RandInt(rng, 3, 6)
		if v < 3 || v > 6 {
			t.Fatalf("RandInt(3, 6) = %d", v)
		}
		hit[v] = true
	}
	if len(hit) != 4 {
		t.Errorf("RandInt(3, 6) hit %d distinct values, want 4", len(hit))
	}
	if got := RandInt(rng, 5, 5); got != 5 {
		t.Errorf("RandInt(5, 5) = %d, want 5", got)
	}
	if got := RandInt(rng, 5, 2); got != 5 {
		t.Errorf("RandInt(5, 2) = %d, want lo", got)
	}
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0.25, 0.25},
		{1.5, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
	}
	for _, tt := range tests {
		if got := Clamp01(tt.in); got != tt.want {
			t.Errorf("Clamp01(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
