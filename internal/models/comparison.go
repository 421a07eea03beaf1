package models

// Aggregation selects which live windows feed a comparison.
type Aggregation string

const (
	// AggregationAll uses every live window.
	AggregationAll Aggregation = "all"
	// AggregationClean excludes windows whose chaos execution logged anomalies.
	AggregationClean Aggregation = "clean"
)

// Interval is a two-sided percentile confidence interval.
type Interval struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ModeBias summarizes the signed model-minus-live bias for one mode.
type ModeBias struct {
	Mean float64   `json:"mean"`
	CI   *Interval `json:"ci,omitempty"`
}

// ModeContrast compares how closely the two semantics track live outcomes,
// computed over paired per-window absolute biases (blocking minus
// non-blocking; positive values favor non-blocking semantics).
type ModeContrast struct {
	MeanDelta     float64   `json:"mean_delta"`
	DeltaCI       *Interval `json:"delta_ci,omitempty"`
	WilcoxonP     *float64  `json:"wilcoxon_p,omitempty"`
	CliffsDelta   *float64  `json:"cliffs_delta,omitempty"`
	SharePositive float64   `json:"share_positive"`
}

// ComparisonResult correlates live measurements with model estimates for one
// (endpoint|mix, p) pair under one aggregation. It exists only when at least
// one live window and a matching estimate share (mode, p, endpoint).
type ComparisonResult struct {
	Endpoint         string       `json:"endpoint"`
	PFail            float64      `json:"p_fail"`
	Aggregation      Aggregation  `json:"aggregation"`
	Windows          int          `json:"windows"`
	MeanLive         float64      `json:"mean_live"`
	ModelBlocking    *float64     `json:"model_blocking,omitempty"`
	ModelNonBlocking *float64     `json:"model_non_blocking,omitempty"`
	BiasBlocking     *ModeBias    `json:"bias_blocking,omitempty"`
	BiasNonBlocking  *ModeBias    `json:"bias_non_blocking,omitempty"`
	Contrast         *ModeContrast `json:"contrast,omitempty"`
}
