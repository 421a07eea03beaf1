package stats

import (
	"math"
	"math/rand"
	"sort"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// BootstrapMeanCI computes a percentile bootstrap confidence interval for
// the mean. Returns nil when fewer than two observations exist; an interval
// from one point would be vacuous.
func BootstrapMeanCI(rng *rand.Rand, values []float64, resamples int, alpha float64) *models.Interval {
	if len(values) < 2 || resamples < 2 {
		return nil
	}
	means := make([]float64, resamples)
	for r := 0; r < resamples; r++ {
		sum := 0.0
		for i := 0; i < len(values); i++ {
			sum += values[rng.Intn(len(values))]
		}
		means[r] = sum / float64(len(values))
	}
	sort.Float64s(means)
	lo := int(math.Floor(alpha / 2 * float64(resamples)))
	hi := int(math.Ceil((1-alpha/2)*float64(resamples))) - 1
	if lo < 0 {
		lo = 0
	}
	if hi >= resamples {
		hi = resamples - 1
	}
	return &models.Interval{Low: means[lo], High: means[hi]}
}

// minWilcoxonPairs is the smallest number of non-zero paired differences for
// which the normal approximation to the signed-rank statistic is defensible.
const minWilcoxonPairs = 5

// WilcoxonSignedRank runs the paired two-sided Wilcoxon signed-rank test on
// x[i] − y[i], using average ranks for tied magnitudes and the tie-corrected
// normal approximation. Zero differences are dropped first. Returns nil when
// too few informative pairs remain for the approximation to mean anything.
func WilcoxonSignedRank(x, y []float64) *float64 {
	if len(x) != len(y) {
		return nil
	}
	var diffs []float64
	for i := range x {
		if d := x[i] - y[i]; d != 0 {
			diffs = append(diffs, d)
		}
	}
	n := len(diffs)
	if n < minWilcoxonPairs {
		return nil
	}

	type ranked struct {
		abs  float64
		sign float64
	}
	rs := make([]ranked, n)
	for i, d := range diffs {
		rs[i] = ranked{abs: math.Abs(d), sign: math.Copysign(1, d)}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].abs < rs[j].abs })

	// Average ranks within tie groups; each group of size t shrinks the
	// variance by (t³−t)/48.
	wPlus := 0.0
	tieTerm := 0.0
	for i := 0; i < n; {
		j := i
		for j < n && rs[j].abs == rs[i].abs {
			j++
		}
		t := float64(j - i)
		avgRank := (float64(i+1) + float64(j)) / 2
		for k := i; k < j; k++ {
			if rs[k].sign > 0 {
				wPlus += avgRank
			}
		}
		tieTerm += (t*t*t - t) / 48
		i = j
	}

	nf := float64(n)
	mean := nf * (nf + 1) / 4
	variance := nf*(nf+1)*(2*nf+1)/24 - tieTerm
	if variance <= 0 {
		return nil
	}
	z := (wPlus - mean) / math.Sqrt(variance)
	p := math.Erfc(math.Abs(z) / math.Sqrt2)
	return &p
}

// CliffsDelta computes Cliff's delta effect size between two samples: the
// probability a value from x exceeds one from y, minus the reverse, over all
// cross pairs. Result lies in [−1, 1]; nil when either sample is empty.
func CliffsDelta(x, y []float64) *float64 {
	if len(x) == 0 || len(y) == 0 {
		return nil
	}
	var gt, lt int
	for _, a := range x {
		for _, b := range y {
			switch {
			case a > b:
				gt++
			case a < b:
				lt++
			}
		}
	}
	delta := float64(gt-lt) / float64(len(x)*len(y))
	return &delta
}

// SharePositive returns the fraction of values strictly above zero.
func SharePositive(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	pos := 0
	for _, v := range values {
		if v > 0 {
			pos++
		}
	}
	return float64(pos) / float64(len(values))
}
