package chaos

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/repo"
)

// Platform defines the per-container platform operations the executor
// drives. Every operation may fail independently.
type Platform interface {
	StopContainer(ctx context.Context, id string, grace time.Duration) error
	StartContainer(ctx context.Context, id string) error
	InspectContainer(ctx context.Context, id string) (repo.ContainerDetail, error)
	SetRestartPolicy(ctx context.Context, id, policy string) error
}

// Phase names the states a chaos window moves through.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSampling  Phase = "sampling"
	PhaseStopping  Phase = "stopping"
	PhaseCooling   Phase = "cooling"
	PhaseRestoring Phase = "restoring"
	PhaseLogged    Phase = "logged"
)

// stopPollInterval and stopPollBudget bound how long a victim is polled for
// a terminal stopped state before being flagged anomalous.
const (
	stopPollInterval = 500 * time.Millisecond
	stopPollBudget   = 5 * time.Second
)

// Executor runs chaos windows: it samples a kill set, stops the victims for
// a fixed outage, detects stop anomalies, restores everything, and appends
// one structured record per window. Restoration and logging run on every
// exit path, including cancellation mid-window.
type Executor struct {
	logger   *slog.Logger
	platform Platform
	log      *WindowLog
	rng      *rand.Rand
	grace    time.Duration
	fanOut   int
}

// NewExecutor constructs an Executor. rng is the run's explicit randomness
// source; it is never seeded from a constant.
func NewExecutor(logger *slog.Logger, platform Platform, log *WindowLog, rng *rand.Rand, grace time.Duration, fanOut int) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if fanOut <= 0 {
		fanOut = 4
	}
	if grace <= 0 {
		grace = time.Second
	}
	return &Executor{logger: logger, platform: platform, log: log, rng: rng, grace: grace, fanOut: fanOut}
}

// RunWindow executes one window against the snapshotted eligible set. The
// kill set is final before any stop is issued. during, when non-nil, runs
// inside the outage (the caller places its reveal delay and measurement
// there); the window still holds for its full duration afterwards so
// timing stays aligned across windows, kills or not.
func (e *Executor) RunWindow(ctx context.Context, runID string, window int, p float64, duration time.Duration, eligible []models.Container, during func(context.Context) error) (models.ChaosWindow, error) {
	e.logPhase(window, PhaseSampling)
	record := models.ChaosWindow{
		RunID:      runID,
		Window:     window,
		PFail:      p,
		Eligible:   len(eligible),
		WindowSecs: duration.Seconds(),
		StartedAt:  time.Now().UTC(),
	}

	killSet := SampleKillSet(e.rng, eligible, p)
	record.Killed = len(killSet)
	for _, victim := range killSet {
		record.Containers = append(record.Containers, victim.Name)
	}
	record.Services = serviceNames(killSet)

	policies := make(map[string]string, len(killSet))
	var duringErr error

	// Victims are restored and the record is appended no matter how the
	// window exits.
	defer func() {
		e.logPhase(window, PhaseRestoring)
		e.restore(killSet, policies)
		if err := e.log.Append(record); err != nil {
			e.logger.Error("failed to append window record", slog.Int("window", window), slog.Any("error", err))
		}
		e.logPhase(window, PhaseLogged)
	}()

	e.logPhase(window, PhaseStopping)
	record.Anomalies = e.stopAll(ctx, killSet, policies)

	e.logPhase(window, PhaseCooling)
	outageStart := time.Now()
	if during != nil {
		duringErr = during(ctx)
	}
	if remaining := duration - time.Since(outageStart); remaining > 0 {
		select {
		case <-ctx.Done():
			return record, ctx.Err()
		case <-time.After(remaining):
		}
	}

	return record, duringErr
}

// stopAll disables auto-restart on the victims, stops them with a short
// grace period under bounded fan-out, then polls each for a terminal stopped
// state. Victims that never reach {exited, dead} are reported as anomalies.
func (e *Executor) stopAll(ctx context.Context, killSet []models.Container, policies map[string]string) []models.StopAnomaly {
	var (
		mu        sync.Mutex
		anomalies []models.StopAnomaly
	)

	e.forEach(killSet, func(victim models.Container) {
		if detail, err := e.platform.InspectContainer(ctx, victim.ID); err == nil {
			mu.Lock()
			policies[victim.ID] = detail.HostConfig.RestartPolicy.Name
			mu.Unlock()
		}
		if err := e.platform.SetRestartPolicy(ctx, victim.ID, "no"); err != nil {
			e.logger.Warn("could not disable restart policy", slog.String("container", victim.Name), slog.Any("error", err))
		}
		if err := e.platform.StopContainer(ctx, victim.ID, e.grace); err != nil {
			e.logger.Warn("stop command failed", slog.String("container", victim.Name), slog.Any("error", err))
		}
		if state, stopped := e.awaitStopped(ctx, victim.ID); !stopped {
			mu.Lock()
			anomalies = append(anomalies, models.StopAnomaly{Container: victim.Name, State: string(state)})
			mu.Unlock()
			e.logger.Warn("victim did not reach a terminal stopped state",
				slog.String("container", victim.Name), slog.String("state", string(state)))
		}
	})

	sort.Slice(anomalies, func(i, j int) bool { return anomalies[i].Container < anomalies[j].Container })
	return anomalies
}

func (e *Executor) awaitStopped(ctx context.Context, id string) (models.ContainerState, bool) {
	deadline := time.Now().Add(stopPollBudget)
	state := models.StateUnknown
	for {
		detail, err := e.platform.InspectContainer(ctx, id)
		if err == nil {
			state = models.ParseContainerState(detail.State.Status)
			if state == models.StateExited || state == models.StateDead {
				return state, true
			}
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return state, false
		}
		select {
		case <-ctx.Done():
			return state, false
		case <-time.After(stopPollInterval):
		}
	}
}

// restore starts every victim and puts its original restart policy back.
// It runs on a fresh context so cancellation of the window never leaves
// containers stopped; individual failures are logged and tolerated.
func (e *Executor) restore(killSet []models.Container, policies map[string]string) {
	if len(killSet) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	e.forEach(killSet, func(victim models.Container) {
		if err := e.platform.StartContainer(ctx, victim.ID); err != nil {
			e.logger.Warn("restore start failed", slog.String("container", victim.Name), slog.Any("error", err))
		}
		if err := e.platform.SetRestartPolicy(ctx, victim.ID, policies[victim.ID]); err != nil {
			e.logger.Warn("restore restart policy failed", slog.String("container", victim.Name), slog.Any("error", err))
		}
	})
}

// forEach applies fn to every container with bounded fan-out; operations are
// independent per container and order-insensitive.
func (e *Executor) forEach(containers []models.Container, fn func(models.Container)) {
	if len(containers) == 0 {
		return
	}
	sem := make(chan struct{}, e.fanOut)
	var wg sync.WaitGroup
	for _, c := range containers {
		wg.Add(1)
		sem <- struct{}{}
		go func(c models.Container) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(c)
		}(c)
	}
	wg.Wait()
}

func (e *Executor) logPhase(window int, phase Phase) {
	e.logger.Debug("window phase", slog.Int("window", window), slog.String("phase", string(phase)))
}

func serviceNames(killSet []models.Container) []string {
	seen := make(map[string]struct{}, len(killSet))
	var names []string
	for _, victim := range killSet {
		// A container whose service label could not be resolved is simply
		// omitted from the service-name set; the record is still written.
		if victim.Service == "" {
			continue
		}
		if _, ok := seen[victim.Service]; ok {
			continue
		}
		seen[victim.Service] = struct{}{}
		names = append(names, victim.Service)
	}
	sort.Strings(names)
	return names
}
