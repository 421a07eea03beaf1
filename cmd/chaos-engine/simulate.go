package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-chaos/internal/artifacts"
	"github.com/miradorstack/mirador-chaos/internal/config"
	"github.com/miradorstack/mirador-chaos/internal/fleet"
	"github.com/miradorstack/mirador-chaos/internal/graph"
	"github.com/miradorstack/mirador-chaos/internal/metrics"
	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/sim"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

func newSimulateCommand(a *app) *cobra.Command {
	var (
		modeFlag string
		pFail    float64
		targets  string
		replicas string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the Monte Carlo reliability estimator over the persisted graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			cfg := a.cfg

			modes, err := resolveModes(modeFlag)
			if err != nil {
				return err
			}
			if pFail < 0 {
				pFail = cfg.Chaos.PFail
			}
			if targets == "" {
				targets = cfg.Sim.Targets
			}
			if replicas == "" {
				replicas = cfg.Sim.Replicas
			}
			if targets == "" {
				return fmt.Errorf("no targets file: pass --targets or set sim.targets")
			}

			store, err := artifacts.NewStore(a.logger, cfg.Artifacts.Dir)
			if err != nil {
				return err
			}
			g, err := store.LoadGraph()
			if err != nil {
				return err
			}
			targetSpecs, err := config.LoadTargets(targets)
			if err != nil {
				return err
			}
			replicaMap, err := config.LoadReplicas(replicas)
			if err != nil {
				return err
			}
			disallow, err := loadDisallowSet(cfg.Chaos.Disallowlist)
			if err != nil {
				return err
			}

			pop := sim.BuildPopulation(g, graphServices(g, disallow), replicaMap)
			estimator := sim.NewEstimator(a.logger, g, cfg.Sim.Trials, cfg.Sim.Workers)
			specs := config.SortedSpecs(targetSpecs)

			for _, mode := range modes {
				started := time.Now()
				estimates, err := estimator.Estimate(ctx, mode, pFail, specs, pop)
				if err != nil {
					return utils.NewAppError("simulate", "reliability estimation failed", err)
				}
				metrics.SimulationTrialsTotal.Add(float64(cfg.Sim.Trials))
				metrics.SimulationSeconds.Observe(time.Since(started).Seconds())

				for _, est := range estimates {
					if err := store.SaveModelEstimate(est); err != nil {
						return err
					}
					a.logger.Info("model estimate persisted",
						slog.String("endpoint", est.Endpoint),
						slog.String("mode", string(est.Mode)),
						slog.Float64("p_fail", est.PFail),
						slog.Float64("success", est.Success))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modeFlag, "mode", "both", "evaluation mode: blocking, non-blocking, or both")
	cmd.Flags().Float64Var(&pFail, "p", -1, "failure fraction (defaults to chaos.pFail)")
	cmd.Flags().StringVar(&targets, "targets", "", "path to the targets JSON file (defaults to sim.targets)")
	cmd.Flags().StringVar(&replicas, "replicas", "", "path to the replicas JSON file (defaults to sim.replicas)")
	return cmd
}

func resolveModes(flag string) ([]models.Mode, error) {
	if flag == "both" || flag == "" {
		return []models.Mode{models.ModeBlocking, models.ModeNonBlocking}, nil
	}
	mode, ok := models.ParseMode(flag)
	if !ok {
		return nil, fmt.Errorf("unknown mode %q: want blocking, non-blocking, or both", flag)
	}
	return []models.Mode{mode}, nil
}

func loadDisallowSet(path string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if path == "" {
		return set, nil
	}
	names, err := config.LoadDisallowlist(path)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set, nil
}

// graphServices derives the simulated fleet from the graph itself: every
// node classified as an application service and not disallowed is a
// chaos-eligible member of the kill population.
func graphServices(g *graph.Graph, disallow map[string]struct{}) []models.Service {
	services := make([]models.Service, 0, len(g.Services))
	for _, name := range g.Services {
		services = append(services, models.Service{
			Name:     name,
			Category: fleet.Classify(name),
			Eligible: fleet.Eligible(name, disallow),
		})
	}
	return services
}
