package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-chaos/internal/config"
	"github.com/miradorstack/mirador-chaos/internal/metrics"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

// app carries the shared state every subcommand boots from.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	a := &app{}

	root := &cobra.Command{
		Use:           "chaos-engine",
		Short:         "Validate failure resilience of a containerized service mesh",
		Long:          "chaos-engine discovers a trace-derived dependency graph, runs controlled chaos windows against the container fleet, estimates reliability with a Monte Carlo model, and correlates the two statistically.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
			metrics.Register(prometheus.DefaultRegisterer)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file (or CHAOS_ENGINE_CONFIG)")

	root.AddCommand(
		newDiscoverCommand(a),
		newSimulateCommand(a),
		newRunCommand(a),
		newCompareCommand(a),
	)
	return root
}

// signalContext derives a context cancelled on SIGINT/SIGTERM so an
// interrupted window still restores its victims before the process exits.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// serveMetrics exposes the Prometheus registry during long-running commands.
func serveMetrics(logger *slog.Logger, address string) {
	if address == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listener started", slog.String("address", address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics listener stopped", slog.Any("error", err))
		}
	}()
}
