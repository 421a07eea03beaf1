package stats

import (
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// Correlator merges measured live windows with model estimates and reports
// how far each semantics drifts from reality. A result exists only when live
// windows and a model estimate actually share (p, endpoint); there is no
// implicit zero for missing data.
type Correlator struct {
	logger    *slog.Logger
	rng       *rand.Rand
	resamples int
	alpha     float64
}

// NewCorrelator constructs a Correlator. rng drives the bootstrap resampling
// and is passed explicitly, never pulled from the global source.
func NewCorrelator(logger *slog.Logger, rng *rand.Rand, resamples int, alpha float64) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{logger: logger, rng: rng, resamples: resamples, alpha: alpha}
}

// Compare correlates the live windows measured at failure fraction p with
// the model estimates for the same p. It emits one ComparisonResult per
// (endpoint, aggregation) plus the probe-count-weighted mix, under both the
// "all" and the anomaly-excluding "clean" aggregation.
func (c *Correlator) Compare(p float64, windows []models.LiveWindow, estimates []models.ModelEstimate) []models.ComparisonResult {
	blocking := indexEstimates(estimates, models.ModeBlocking, p)
	nonBlocking := indexEstimates(estimates, models.ModeNonBlocking, p)

	endpoints := liveEndpoints(windows)
	endpoints = append(endpoints, models.MixEndpoint)

	var results []models.ComparisonResult
	for _, agg := range []models.Aggregation{models.AggregationAll, models.AggregationClean} {
		selected := selectWindows(windows, agg)
		for _, endpoint := range endpoints {
			rates := liveRates(selected, endpoint)
			if len(rates) == 0 {
				continue
			}
			modelB, haveB := blocking[endpoint]
			modelN, haveN := nonBlocking[endpoint]
			if !haveB && !haveN {
				c.logger.Debug("no model estimate for endpoint; comparison omitted",
					slog.String("endpoint", endpoint), slog.Float64("p_fail", p))
				continue
			}

			result := models.ComparisonResult{
				Endpoint:    endpoint,
				PFail:       p,
				Aggregation: agg,
				Windows:     len(rates),
				MeanLive:    Mean(rates),
			}

			var biasB, biasN []float64
			if haveB {
				success := modelB.Success
				result.ModelBlocking = &success
				biasB = biases(success, rates)
				result.BiasBlocking = c.modeBias(biasB)
			}
			if haveN {
				success := modelN.Success
				result.ModelNonBlocking = &success
				biasN = biases(success, rates)
				result.BiasNonBlocking = c.modeBias(biasN)
			}
			if haveB && haveN {
				result.Contrast = c.contrast(biasB, biasN)
			}
			results = append(results, result)
		}
	}
	return results
}

func (c *Correlator) modeBias(bias []float64) *models.ModeBias {
	return &models.ModeBias{
		Mean: Mean(bias),
		CI:   BootstrapMeanCI(c.rng, bias, c.resamples, c.alpha),
	}
}

// contrast compares how closely each semantics tracks the live outcome by
// pairing per-window absolute biases. Positive deltas mean the blocking
// model missed by more, favoring the non-blocking semantics.
func (c *Correlator) contrast(biasBlocking, biasNonBlocking []float64) *models.ModeContrast {
	absB := make([]float64, len(biasBlocking))
	absN := make([]float64, len(biasNonBlocking))
	deltas := make([]float64, len(biasBlocking))
	for i := range biasBlocking {
		absB[i] = math.Abs(biasBlocking[i])
		absN[i] = math.Abs(biasNonBlocking[i])
		deltas[i] = absB[i] - absN[i]
	}
	return &models.ModeContrast{
		MeanDelta:     Mean(deltas),
		DeltaCI:       BootstrapMeanCI(c.rng, deltas, c.resamples, c.alpha),
		WilcoxonP:     WilcoxonSignedRank(absB, absN),
		CliffsDelta:   CliffsDelta(absB, absN),
		SharePositive: SharePositive(deltas),
	}
}

func indexEstimates(estimates []models.ModelEstimate, mode models.Mode, p float64) map[string]models.ModelEstimate {
	out := make(map[string]models.ModelEstimate)
	for _, est := range estimates {
		if est.Mode == mode && samePFail(est.PFail, p) {
			out[est.Endpoint] = est
		}
	}
	return out
}

func samePFail(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func selectWindows(windows []models.LiveWindow, agg models.Aggregation) []models.LiveWindow {
	if agg == models.AggregationAll {
		return windows
	}
	var clean []models.LiveWindow
	for _, w := range windows {
		if !w.Anomalous {
			clean = append(clean, w)
		}
	}
	return clean
}

// liveRates extracts per-window success rates for one endpoint, skipping
// windows with no probes for it. The mix endpoint pools raw counts across
// endpoints, which weights each endpoint by its probe volume.
func liveRates(windows []models.LiveWindow, endpoint string) []float64 {
	var rates []float64
	for _, w := range windows {
		if endpoint == models.MixEndpoint {
			var total models.ProbeCount
			for _, count := range w.Endpoints {
				total.Total += count.Total
				total.OK += count.OK
			}
			if total.Total > 0 {
				rates = append(rates, total.Rate())
			}
			continue
		}
		if count, ok := w.Endpoints[endpoint]; ok && count.Total > 0 {
			rates = append(rates, count.Rate())
		}
	}
	return rates
}

func biases(model float64, liveRates []float64) []float64 {
	out := make([]float64, len(liveRates))
	for i, rate := range liveRates {
		out[i] = model - rate
	}
	return out
}

func liveEndpoints(windows []models.LiveWindow) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, w := range windows {
		for name := range w.Endpoints {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
