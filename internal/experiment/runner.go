package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/fleet"
	"github.com/miradorstack/mirador-chaos/internal/metrics"
	"github.com/miradorstack/mirador-chaos/internal/models"
)

// Inspector is the fleet behaviour the runner depends on.
type Inspector interface {
	Snapshot(ctx context.Context) (fleet.Fleet, error)
	EnsureRunning(ctx context.Context, f fleet.Fleet) fleet.Fleet
}

// Executor runs one chaos window end to end.
type Executor interface {
	RunWindow(ctx context.Context, runID string, window int, p float64, duration time.Duration, eligible []models.Container, during func(context.Context) error) (models.ChaosWindow, error)
}

// Prober measures the declared endpoints during an outage.
type Prober interface {
	Measure(ctx context.Context, d time.Duration) map[string]models.ProbeCount
}

// LiveSink persists per-window live measurements.
type LiveSink interface {
	SaveLiveWindow(w models.LiveWindow) error
}

// Params fixes one experiment run: a failure fraction driven across a number
// of sequential windows, with the measurement placed strictly inside each
// outage.
type Params struct {
	RunID       string
	PFail       float64
	Windows     int
	Window      time.Duration
	RevealDelay time.Duration
	Measure     time.Duration
}

// Runner drives the experiment loop: windows are strictly sequential, never
// overlapping, and the fleet is re-snapshotted and restored to a full
// population before every window.
type Runner struct {
	logger    *slog.Logger
	inspector Inspector
	executor  Executor
	prober    Prober
	sink      LiveSink
}

// NewRunner constructs a Runner.
func NewRunner(logger *slog.Logger, inspector Inspector, executor Executor, prober Prober, sink LiveSink) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger, inspector: inspector, executor: executor, prober: prober, sink: sink}
}

// Run executes the configured number of chaos windows. A failing window is
// logged and counted; the run continues with the next one so a single bad
// window never discards the rest of the evidence. Cancellation stops the
// loop after the in-flight window has restored its victims.
func (r *Runner) Run(ctx context.Context, params Params) error {
	if params.RevealDelay+params.Measure > params.Window {
		return fmt.Errorf("reveal delay plus measurement (%s) exceeds the window (%s)",
			params.RevealDelay+params.Measure, params.Window)
	}

	for window := 0; window < params.Windows; window++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.runWindow(ctx, params, window); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.WindowsTotal.WithLabelValues("failed").Inc()
			r.logger.Error("window failed; continuing with the next one",
				slog.Int("window", window), slog.Any("error", err))
		}
	}
	return nil
}

func (r *Runner) runWindow(ctx context.Context, params Params, window int) error {
	snapshot, err := r.inspector.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot fleet: %w", err)
	}
	restored := r.inspector.EnsureRunning(ctx, snapshot)
	if len(restored.Eligible) == 0 {
		r.logger.Warn("no eligible containers this window; holding an empty window", slog.Int("window", window))
	}

	var counts map[string]models.ProbeCount
	record, err := r.executor.RunWindow(ctx, params.RunID, window, params.PFail, params.Window, restored.Eligible,
		func(ctx context.Context) error {
			// The reveal delay lets failures propagate before measuring; the
			// measurement then sits strictly inside the outage.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(params.RevealDelay):
			}
			counts = r.prober.Measure(ctx, params.Measure)
			return nil
		})

	metrics.ContainersKilledTotal.Add(float64(record.Killed))
	metrics.StopAnomaliesTotal.Add(float64(len(record.Anomalies)))
	for endpoint, count := range counts {
		metrics.ProbeRequestsTotal.WithLabelValues(endpoint, "ok").Add(float64(count.OK))
		metrics.ProbeRequestsTotal.WithLabelValues(endpoint, "failed").Add(float64(count.Total - count.OK))
	}
	if err != nil {
		return err
	}

	outcome := "ok"
	if record.Anomalous() {
		outcome = "anomalous"
	}
	metrics.WindowsTotal.WithLabelValues(outcome).Inc()

	live := models.LiveWindow{
		RunID:     params.RunID,
		Window:    window,
		PFail:     params.PFail,
		Endpoints: counts,
		Anomalous: record.Anomalous(),
	}
	if err := r.sink.SaveLiveWindow(live); err != nil {
		return fmt.Errorf("save live window: %w", err)
	}

	r.logger.Info("window complete",
		slog.Int("window", window),
		slog.Int("killed", record.Killed),
		slog.Int("anomalies", len(record.Anomalies)),
		slog.String("outcome", outcome))
	return nil
}
