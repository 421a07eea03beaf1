package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-chaos/internal/artifacts"
	"github.com/miradorstack/mirador-chaos/internal/graph"
	"github.com/miradorstack/mirador-chaos/internal/repo"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// traceClientTimeout bounds a single query against the trace backend; the
// overall discovery budget is traces.discoverTimeout.
const traceClientTimeout = 15 * time.Second

func newDiscoverCommand(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Build the service dependency graph from traces and persist it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			cfg := a.cfg

			traces := repo.NewTraceClient(cfg.Traces.Bases, traceClientTimeout)
			builder := graph.NewBuilder(cfg.Traces.Brokers, cfg.Traces.Entrypoints)
			discoverer := graph.NewDiscoverer(a.logger, traces, builder,
				cfg.Traces.Lookback, cfg.Traces.Limit, cfg.Traces.DiscoverTimeout,
				strict || cfg.Traces.Strict)

			g, err := discoverer.Discover(ctx)
			if err != nil {
				return utils.NewAppError("discover", "dependency discovery failed", err)
			}

			store, err := artifacts.NewStore(a.logger, cfg.Artifacts.Dir)
			if err != nil {
				return err
			}
			if err := store.SaveGraph(g); err != nil {
				return err
			}

			a.logger.Info("dependency graph persisted",
				slog.Int("services", len(g.Services)),
				slog.Int("edges", len(g.Edges)),
				slog.Int("async_edges", len(g.AsyncEdges)),
				slog.String("source", g.Source),
				slog.String("dir", store.Dir()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail instead of falling back to the dependency summary")
	return cmd
}
