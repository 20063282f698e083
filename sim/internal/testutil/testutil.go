// Package testutil provides shared test fixtures for the gang simulator.
// It consolidates configuration and target builders used across the sim/
// sub-package tests.
package testutil

import (
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"testing"

	"github.com/gang-sim/gang-sim/sim"
)

// SmallConfig returns a fast, deterministic configuration: two gangs of exactly
// three members, a 1ms tick and no random deaths.
func SmallConfig() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.NumGangs = 2
	cfg.MinGangs = 2
	cfg.MaxGangs = 2
	cfg.MinGangSize = 3
	cfg.MaxGangSize = 3
	cfg.TickMillis = 1
	cfg.DeathProbability = 0
	cfg.PlantProbability = 0
	cfg.DifficultyLevel = 0
	return cfg
}

// UniformTargets returns a valid target table in which every weight is 1/7 and
// every heat is 1.
func UniformTargets() []sim.Target {
	targets := sim.DefaultTargets()
	for i := range targets {
		for a := range targets[i].Weights {
			targets[i].Weights[a] = 1.0 / sim.NumAttributes
		}
	}
	return targets
}

// UniqueName returns a name unique to this test process and test, suitable for
// shared-memory objects and named semaphores.
func UniqueName(t *testing.T, suffix string) string {
	t.Helper()
	return fmt.Sprintf("gangsim_test_%d_%x_%s", os.Getpid(), fnv32(t.Name()), suffix)
}

func fnv32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// AssertFloat64Equal fails the test if want and got differ by more than
// relTol relative to want (absolute when want is 0).
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	diff := math.Abs(want - got)
	if want != 0 {
		diff /= math.Abs(want)
	}
	if diff > relTol {
		t.Errorf("%s: got %v, want %v (tolerance %g)", name, got, want, relTol)
	}
}
