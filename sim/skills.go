package sim

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Skill values live on a 0..100 scale, so a member's dot product with a target's
// weights is directly a percentage-scale score.
const (
	SkillMin = 0.0
	SkillMax = 100.0
)

// SkillModel draws correlated skill vectors from a multivariate normal distribution.
// The correlation matrix is factorised once; sampling is x = mean + std ⊙ (L·z).
//
// Thread-safety: safe for concurrent Sample calls with distinct *rand.Rand values.
type SkillModel struct {
	mean  [NumAttributes]float64
	std   [NumAttributes]float64
	lower mat.TriDense
}

// NewSkillModel factorises the correlation matrix.
// Returns an error if corr is not NumAttributes×NumAttributes or not positive definite.
func NewSkillModel(mean, std [NumAttributes]float64, corr [][]float64) (*SkillModel, error) {
	if len(corr) != NumAttributes {
		return nil, fmt.Errorf("correlation matrix must have %d rows, got %d", NumAttributes, len(corr))
	}
	flat := make([]float64, 0, NumAttributes*NumAttributes)
	for i, row := range corr {
		if len(row) != NumAttributes {
			return nil, fmt.Errorf("correlation row %d must have %d columns, got %d", i, NumAttributes, len(row))
		}
		flat = append(flat, row...)
	}
	sym := mat.NewSymDense(NumAttributes, flat)

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, fmt.Errorf("correlation matrix is not positive definite")
	}
	m := &SkillModel{mean: mean, std: std}
	chol.LTo(&m.lower)
	return m, nil
}

// DefaultSkillModel returns the built-in model: smartness/tech and stealth/bravery
// pairs move together, strength trades off against negotiation.
func DefaultSkillModel() *SkillModel {
	mean := [NumAttributes]float64{50, 50, 50, 45, 55, 45, 50}
	std := [NumAttributes]float64{15, 15, 15, 15, 15, 15, 15}
	corr := [][]float64{
		{1.0, 0.2, 0.0, 0.5, 0.0, 0.1, 0.1},
		{0.2, 1.0, 0.0, 0.2, 0.4, 0.0, 0.0},
		{0.0, 0.0, 1.0, 0.0, 0.3, -0.2, 0.0},
		{0.5, 0.2, 0.0, 1.0, 0.0, 0.0, 0.1},
		{0.0, 0.4, 0.3, 0.0, 1.0, 0.0, 0.0},
		{0.1, 0.0, -0.2, 0.0, 0.0, 1.0, 0.4},
		{0.1, 0.0, 0.0, 0.1, 0.0, 0.4, 1.0},
	}
	m, err := NewSkillModel(mean, std, corr)
	if err != nil {
		panic(fmt.Sprintf("default skill model: %v", err))
	}
	return m
}

// Sample draws one skill vector clamped to [SkillMin, SkillMax].
func (m *SkillModel) Sample(rng *rand.Rand) [NumAttributes]float64 {
	var z [NumAttributes]float64
	for i := range z {
		z[i] = rng.NormFloat64()
	}
	var out [NumAttributes]float64
	for i := 0; i < NumAttributes; i++ {
		acc := 0.0
		for j := 0; j <= i; j++ {
			acc += m.lower.At(i, j) * z[j]
		}
		out[i] = Clamp(m.mean[i]+m.std[i]*acc, SkillMin, SkillMax)
	}
	return out
}
