package main

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-chaos/internal/artifacts"
	"github.com/miradorstack/mirador-chaos/internal/chaos"
	"github.com/miradorstack/mirador-chaos/internal/config"
	"github.com/miradorstack/mirador-chaos/internal/experiment"
	"github.com/miradorstack/mirador-chaos/internal/fleet"
	"github.com/miradorstack/mirador-chaos/internal/probe"
	"github.com/miradorstack/mirador-chaos/internal/repo"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// warmupBudget bounds how long run waits for the fleet and the trace backend
// to come alive before the first window.
const warmupBudget = 2 * time.Minute

func newRunCommand(a *app) *cobra.Command {
	var (
		pFail      float64
		windows    int
		skipWarmup bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute chaos windows against the fleet and record live measurements",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			cfg := a.cfg

			if pFail < 0 {
				pFail = cfg.Chaos.PFail
			}
			if windows <= 0 {
				windows = cfg.Chaos.Windows
			}

			store, err := artifacts.NewStore(a.logger, cfg.Artifacts.Dir)
			if err != nil {
				return err
			}

			var disallow []string
			if cfg.Chaos.Disallowlist != "" {
				disallow, err = config.LoadDisallowlist(cfg.Chaos.Disallowlist)
				if err != nil {
					return err
				}
			}

			platform := repo.NewPlatformClient(cfg.Platform.Socket, cfg.Platform.Timeout)
			inspector := fleet.NewInspector(a.logger, platform, disallow)
			prober := probe.NewProber(a.logger, probeEndpoints(cfg.Probes.Endpoints),
				cfg.Probes.Timeout, cfg.Probes.MaxInFlight, cfg.Probes.PerWindow)

			if !skipWarmup {
				if err := warmup(ctx, a.logger, prober, cfg.Traces.Bases); err != nil {
					return err
				}
			}

			runID := uuid.NewString()
			windowLog, err := chaos.OpenWindowLog(store.WindowLogPath(pFail))
			if err != nil {
				return err
			}
			defer windowLog.Close()

			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			executor := chaos.NewExecutor(a.logger, platform, windowLog, rng,
				cfg.Platform.StopGrace, cfg.Platform.FanOut)
			runner := experiment.NewRunner(a.logger, inspector, executor, prober, store)

			serveMetrics(a.logger, cfg.Metrics.Address)
			a.logger.Info("experiment starting",
				slog.String("run_id", runID),
				slog.Float64("p_fail", pFail),
				slog.Int("windows", windows))

			err = runner.Run(ctx, experiment.Params{
				RunID:       runID,
				PFail:       pFail,
				Windows:     windows,
				Window:      cfg.Chaos.Window,
				RevealDelay: cfg.Chaos.RevealDelay,
				Measure:     cfg.Chaos.Measure,
			})
			if err != nil {
				return utils.NewAppError("run", "experiment aborted", err)
			}
			a.logger.Info("experiment complete", slog.String("run_id", runID))
			return nil
		},
	}
	cmd.Flags().Float64Var(&pFail, "p", -1, "failure fraction (defaults to chaos.pFail)")
	cmd.Flags().IntVar(&windows, "windows", 0, "number of windows (defaults to chaos.windows)")
	cmd.Flags().BoolVar(&skipWarmup, "skip-warmup", false, "start windows without waiting for the fleet to answer probes")
	return cmd
}

// warmup blocks until every declared endpoint answers a probe, then checks
// the trace backend has indexed at least one service. A silent backend is a
// warning only; the run itself never reads traces.
func warmup(ctx context.Context, logger *slog.Logger, prober *probe.Prober, traceBases []string) error {
	warmCtx, cancel := context.WithTimeout(ctx, warmupBudget)
	defer cancel()

	if err := prober.Warmup(warmCtx); err != nil {
		return err
	}
	traces := repo.NewTraceClient(traceBases, traceClientTimeout)
	services, err := traces.Services(warmCtx)
	if err != nil || len(services) == 0 {
		logger.Warn("trace backend has no indexed services yet", slog.Any("error", err))
		return nil
	}
	logger.Info("warm-up complete", slog.Int("traced_services", len(services)))
	return nil
}

func probeEndpoints(endpoints map[string][]config.ProbeStep) map[string][]probe.Step {
	out := make(map[string][]probe.Step, len(endpoints))
	for name, steps := range endpoints {
		converted := make([]probe.Step, 0, len(steps))
		for _, s := range steps {
			converted = append(converted, probe.Step{Method: s.Method, URL: s.URL, Body: s.Body})
		}
		out[name] = converted
	}
	return out
}
