package agent

import "golang.org/x/exp/rand"

// Largest float64 eps such that 1-eps != 1 in float32 precision.
// Subtracted from each action probability before sampling so that a
// simplex whose mass sums fractionally over 1 cannot skew the draw.
const probNudge = 5.960464477539063e-08

// SampleCategorical draws an index from a categorical distribution by
// cumulative sum. Each probability is nudged down by a tiny epsilon,
// floored at 0, before accumulation; a draw past the remaining mass
// falls to the last index.
func SampleCategorical(rng *rand.Rand, probs []float64) int {
	point := rng.Float64()
	cumulative := 0.0
	for i, p := range probs {
		p -= probNudge
		if p < 0 {
			p = 0
		}
		cumulative += p
		if point < cumulative {
			return i
		}
	}
	return len(probs) - 1
}
