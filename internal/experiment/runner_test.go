package experiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/fleet"
	"github.com/miradorstack/mirador-chaos/internal/models"
)

type fakeInspector struct {
	fleet     fleet.Fleet
	snapshots int
	err       error
}

func (f *fakeInspector) Snapshot(ctx context.Context) (fleet.Fleet, error) {
	f.snapshots++
	return f.fleet, f.err
}

func (f *fakeInspector) EnsureRunning(ctx context.Context, fl fleet.Fleet) fleet.Fleet {
	return fl
}

type fakeExecutor struct {
	windows   []int
	anomalous map[int]bool
	err       error
}

func (f *fakeExecutor) RunWindow(ctx context.Context, runID string, window int, p float64, duration time.Duration, eligible []models.Container, during func(context.Context) error) (models.ChaosWindow, error) {
	f.windows = append(f.windows, window)
	record := models.ChaosWindow{RunID: runID, Window: window, PFail: p, Eligible: len(eligible), Killed: 1}
	if f.anomalous[window] {
		record.Anomalies = []models.StopAnomaly{{Container: "cart-1", State: "running"}}
	}
	if f.err != nil {
		return record, f.err
	}
	if during != nil {
		if err := during(ctx); err != nil {
			return record, err
		}
	}
	return record, nil
}

type fakeProber struct {
	measured int
}

func (f *fakeProber) Measure(ctx context.Context, d time.Duration) map[string]models.ProbeCount {
	f.measured++
	return map[string]models.ProbeCount{"checkout": {Total: 10, OK: 6}}
}

type fakeSink struct {
	saved []models.LiveWindow
	err   error
}

func (f *fakeSink) SaveLiveWindow(w models.LiveWindow) error {
	f.saved = append(f.saved, w)
	return f.err
}

func testParams(windows int) Params {
	return Params{
		RunID:       "run-1",
		PFail:       0.3,
		Windows:     windows,
		Window:      20 * time.Millisecond,
		RevealDelay: time.Millisecond,
		Measure:     5 * time.Millisecond,
	}
}

func eligibleFleet() fleet.Fleet {
	return fleet.Fleet{Eligible: []models.Container{
		{ID: "c1", Name: "cart-1", Service: "cart", State: models.StateRunning},
	}}
}

func TestRunSequentialWindows(t *testing.T) {
	inspector := &fakeInspector{fleet: eligibleFleet()}
	executor := &fakeExecutor{anomalous: map[int]bool{1: true}}
	prober := &fakeProber{}
	sink := &fakeSink{}
	runner := NewRunner(nil, inspector, executor, prober, sink)

	if err := runner.Run(context.Background(), testParams(3)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if inspector.snapshots != 3 {
		t.Fatalf("fleet must be re-snapshotted per window, got %d", inspector.snapshots)
	}
	if len(executor.windows) != 3 || executor.windows[2] != 2 {
		t.Fatalf("windows not sequential: %v", executor.windows)
	}
	if prober.measured != 3 {
		t.Fatalf("expected 3 measurements, got %d", prober.measured)
	}
	if len(sink.saved) != 3 {
		t.Fatalf("expected 3 live windows, got %d", len(sink.saved))
	}
	if !sink.saved[1].Anomalous {
		t.Fatal("live window must inherit the chaos anomaly flag")
	}
	if sink.saved[0].Anomalous {
		t.Fatal("clean window wrongly flagged")
	}
	if sink.saved[0].Endpoints["checkout"].OK != 6 {
		t.Fatalf("probe counts lost: %+v", sink.saved[0])
	}
}

func TestRunContinuesAfterWindowFailure(t *testing.T) {
	inspector := &fakeInspector{fleet: eligibleFleet()}
	executor := &fakeExecutor{err: errors.New("stop storm")}
	sink := &fakeSink{}
	runner := NewRunner(nil, inspector, executor, &fakeProber{}, sink)

	if err := runner.Run(context.Background(), testParams(3)); err != nil {
		t.Fatalf("Run must absorb window failures: %v", err)
	}
	if len(executor.windows) != 3 {
		t.Fatalf("run must continue past failures, got %v", executor.windows)
	}
	if len(sink.saved) != 0 {
		t.Fatalf("failed windows must not produce live artifacts, got %d", len(sink.saved))
	}
}

func TestRunRejectsOversizedMeasurement(t *testing.T) {
	runner := NewRunner(nil, &fakeInspector{}, &fakeExecutor{}, &fakeProber{}, &fakeSink{})
	params := testParams(1)
	params.RevealDelay = 15 * time.Millisecond
	params.Measure = 10 * time.Millisecond
	if err := runner.Run(context.Background(), params); err == nil {
		t.Fatal("measurement overflowing the window must be rejected")
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	inspector := &fakeInspector{fleet: eligibleFleet()}
	executor := &fakeExecutor{}
	runner := NewRunner(nil, inspector, executor, &fakeProber{}, &fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := runner.Run(ctx, testParams(5)); err == nil {
		t.Fatal("cancelled context must abort the run")
	}
	if len(executor.windows) != 0 {
		t.Fatalf("no window should start after cancellation, got %v", executor.windows)
	}
}
