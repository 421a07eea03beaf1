package models

// MixEndpoint labels aggregates computed across all declared endpoints
// rather than for one of them.
const MixEndpoint = "mix"

// ModelEstimate is the Monte Carlo prediction for one (endpoint, mode, p)
// combination. Estimates are derived artifacts, recomputable at will.
type ModelEstimate struct {
	Endpoint string  `json:"endpoint"`
	Mode     Mode    `json:"mode"`
	PFail    float64 `json:"p_fail"`
	Success  float64 `json:"success"`
	StdDev   float64 `json:"stddev"`
	Samples  int     `json:"samples"`
}
