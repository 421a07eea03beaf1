package models

import "time"

// StopAnomaly records a kill-set victim that failed to reach a terminal
// stopped state after the stop command was issued.
type StopAnomaly struct {
	Container string `json:"container"`
	State     string `json:"state"`
}

// ChaosWindow is one append-only record in the per-run chaos log. Records
// are never mutated after being written; a zero-kill window still produces
// one so window numbering stays aligned downstream.
type ChaosWindow struct {
	RunID      string        `json:"run_id"`
	Window     int           `json:"window"`
	PFail      float64       `json:"p_fail"`
	Eligible   int           `json:"eligible"`
	Killed     int           `json:"killed"`
	Containers []string      `json:"containers,omitempty"`
	Services   []string      `json:"services,omitempty"`
	WindowSecs float64       `json:"window_s"`
	Anomalies  []StopAnomaly `json:"anomalies,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
}

// Anomalous reports whether any victim missed its terminal stopped state.
func (w ChaosWindow) Anomalous() bool { return len(w.Anomalies) > 0 }

// ProbeCount aggregates probe outcomes for one endpoint in one window.
// OK never exceeds Total.
type ProbeCount struct {
	Total int `json:"total"`
	OK    int `json:"ok"`
}

// Rate returns the live success rate in [0,1], or 0 when nothing was probed.
func (c ProbeCount) Rate() float64 {
	if c.Total <= 0 {
		return 0
	}
	return float64(c.OK) / float64(c.Total)
}

// LiveWindow captures measured probe outcomes for one chaos window. The
// anomaly flag is inherited from the matching ChaosWindow so the correlator
// can exclude tainted ground truth.
type LiveWindow struct {
	RunID     string                `json:"run_id"`
	Window    int                   `json:"window"`
	PFail     float64               `json:"p_fail"`
	Endpoints map[string]ProbeCount `json:"endpoints"`
	Anomalous bool                  `json:"anomalous,omitempty"`
}
