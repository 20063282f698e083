package sim

import (
	"fmt"
	"math"
)

// NumAttributes is the dimension of a member's skill vector and of a target's weight vector.
const NumAttributes = 7

// NumTargets is the number of target types in the static target table.
const NumTargets = 7

// Attribute indexes a skill dimension.
type Attribute int

const (
	AttrSmartness Attribute = iota
	AttrStealth
	AttrStrength
	AttrTechSkills
	AttrBravery
	AttrNegotiation
	AttrNetworking
)

var attributeNames = [NumAttributes]string{
	"smartness", "stealth", "strength", "tech_skills", "bravery", "negotiation", "networking",
}

func (a Attribute) String() string {
	if a < 0 || int(a) >= NumAttributes {
		return fmt.Sprintf("attribute(%d)", int(a))
	}
	return attributeNames[a]
}

// ParseAttribute maps a JSON attribute name to its Attribute.
func ParseAttribute(name string) (Attribute, bool) {
	for i, n := range attributeNames {
		if n == name {
			return Attribute(i), true
		}
	}
	return 0, false
}

// TargetType is the ordinal of a target. The ordinal doubles as the target's
// complexity: preparation time and level grow with it.
type TargetType int

const (
	TargetBankRobbery TargetType = iota
	TargetJewelryRobbery
	TargetDrugTrafficking
	TargetArtTheft
	TargetKidnapping
	TargetBlackmail
	TargetArmsTrafficking
)

var targetNames = [NumTargets]string{
	"bank_robbery", "jewelry_shop_robbery", "drug_trafficking", "art_theft",
	"kidnapping", "blackmail", "arms_trafficking",
}

func (t TargetType) String() string {
	if t < 0 || int(t) >= NumTargets {
		return fmt.Sprintf("target(%d)", int(t))
	}
	return targetNames[t]
}

// ParseTargetType maps a JSON target name to its TargetType.
func ParseTargetType(name string) (TargetType, bool) {
	for i, n := range targetNames {
		if n == name {
			return TargetType(i), true
		}
	}
	return 0, false
}

// Target is one row of the static target table.
// Read-only after load except Heat, which gangs raise as they hit the target.
type Target struct {
	Type    TargetType
	Name    string
	Heat    float64                // global pursuit intensity, >= 0
	Weights [NumAttributes]float64 // attribute weights, summing to ~1.0
}

// WeightSum returns the sum of the target's attribute weights.
func (t Target) WeightSum() float64 {
	sum := 0.0
	for _, w := range t.Weights {
		sum += w
	}
	return sum
}

// weightTolerance is the allowed deviation of a weight sum from 1.0.
const weightTolerance = 0.01

// ValidateTargets checks that the table holds exactly one row per target type,
// in ordinal order, with non-negative heat and weights summing to 1 ± 0.01.
func ValidateTargets(targets []Target) error {
	if len(targets) != NumTargets {
		return fmt.Errorf("expected %d targets, got %d", NumTargets, len(targets))
	}
	for i, t := range targets {
		if t.Type != TargetType(i) {
			return fmt.Errorf("targets[%d]: type %s out of order", i, t.Type)
		}
		if math.IsNaN(t.Heat) || t.Heat < 0 {
			return fmt.Errorf("targets[%d] %s: heat must be non-negative, got %f", i, t.Name, t.Heat)
		}
		for a, w := range t.Weights {
			if math.IsNaN(w) || w < 0 {
				return fmt.Errorf("targets[%d] %s: weight %s must be non-negative, got %f", i, t.Name, Attribute(a), w)
			}
		}
		if sum := t.WeightSum(); math.Abs(sum-1.0) > weightTolerance {
			return fmt.Errorf("targets[%d] %s: weights sum to %.3f, want 1.0", i, t.Name, sum)
		}
	}
	return nil
}

// DefaultTargets returns the built-in target table used when no targets file is given.
func DefaultTargets() []Target {
	weights := [NumTargets][NumAttributes]float64{
		TargetBankRobbery:     {0.20, 0.15, 0.15, 0.20, 0.15, 0.05, 0.10},
		TargetJewelryRobbery:  {0.15, 0.30, 0.05, 0.20, 0.10, 0.05, 0.15},
		TargetDrugTrafficking: {0.10, 0.15, 0.10, 0.05, 0.15, 0.20, 0.25},
		TargetArtTheft:        {0.25, 0.25, 0.05, 0.20, 0.05, 0.05, 0.15},
		TargetKidnapping:      {0.10, 0.15, 0.25, 0.05, 0.25, 0.15, 0.05},
		TargetBlackmail:       {0.25, 0.10, 0.00, 0.15, 0.05, 0.30, 0.15},
		TargetArmsTrafficking: {0.10, 0.15, 0.15, 0.10, 0.20, 0.10, 0.20},
	}
	targets := make([]Target, NumTargets)
	for i := range targets {
		targets[i] = Target{
			Type:    TargetType(i),
			Name:    targetNames[i],
			Heat:    1.0,
			Weights: weights[i],
		}
	}
	return targets
}
