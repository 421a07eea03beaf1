package chaos

import (
	"math"
	"math/rand"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// KillCount computes the fixed-proportion kill count for an eligible
// population of size n under failure fraction p: zero when p is zero, at
// least one and at most n otherwise. This is the canonical sampling law; the
// reliability estimator must mirror it exactly or every downstream
// comparison is invalid.
func KillCount(n int, p float64) int {
	if n <= 0 || p <= 0 {
		return 0
	}
	k := int(math.Round(float64(n) * p))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// SampleKillSet draws KillCount(len(eligible), p) containers uniformly
// without replacement. The result is a fresh snapshot: mutating it never
// affects the input, and the kill set is final once stopping begins.
func SampleKillSet(rng *rand.Rand, eligible []models.Container, p float64) []models.Container {
	k := KillCount(len(eligible), p)
	if k == 0 {
		return nil
	}
	pool := append([]models.Container(nil), eligible...)
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	return pool[:k]
}
