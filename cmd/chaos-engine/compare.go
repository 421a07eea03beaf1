package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-chaos/internal/artifacts"
	"github.com/miradorstack/mirador-chaos/internal/models"
	"github.com/miradorstack/mirador-chaos/internal/stats"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

func newCompareCommand(a *app) *cobra.Command {
	var pFail float64

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Correlate live window measurements with model estimates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if pFail < 0 {
				pFail = cfg.Chaos.PFail
			}

			store, err := artifacts.NewStore(a.logger, cfg.Artifacts.Dir)
			if err != nil {
				return err
			}
			windows, err := store.LoadLiveWindows(pFail)
			if err != nil {
				return err
			}
			if len(windows) == 0 {
				return fmt.Errorf("no live windows recorded at p=%v in %s", pFail, store.Dir())
			}
			estimates, err := store.LoadModelEstimates()
			if err != nil {
				return err
			}
			if len(estimates) == 0 {
				return fmt.Errorf("no model estimates found in %s: run simulate first", store.Dir())
			}

			// The chaos log is the raw evidence; when it is readable its
			// anomaly flags override whatever the live artifacts captured.
			if chaosWindows, err := store.LoadChaosWindows(pFail); err == nil {
				applyAnomalies(windows, chaosWindows)
			} else {
				a.logger.Warn("chaos window log unavailable; trusting live artifact anomaly flags", slog.Any("error", err))
			}

			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			correlator := stats.NewCorrelator(a.logger, rng, cfg.Stats.Resamples, cfg.Stats.Alpha)
			results := correlator.Compare(pFail, windows, estimates)
			if len(results) == 0 {
				a.logger.Warn("live windows and model estimates share nothing; no comparison written")
				return nil
			}

			byEndpoint := make(map[string][]models.ComparisonResult)
			for _, result := range results {
				byEndpoint[result.Endpoint] = append(byEndpoint[result.Endpoint], result)
			}
			for endpoint, group := range byEndpoint {
				if err := store.SaveComparisons(pFail, endpoint, group); err != nil {
					return utils.NewAppError("compare", "persisting comparison report failed", err)
				}
				for _, result := range group {
					a.logger.Info("comparison persisted",
						slog.String("endpoint", endpoint),
						slog.String("aggregation", string(result.Aggregation)),
						slog.Int("windows", result.Windows),
						slog.Float64("mean_live", result.MeanLive))
				}
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&pFail, "p", -1, "failure fraction to compare (defaults to chaos.pFail)")
	return cmd
}

// applyAnomalies folds chaos-log anomaly flags into the live windows, keyed
// by (run, window).
func applyAnomalies(live []models.LiveWindow, chaosWindows []models.ChaosWindow) {
	type key struct {
		run    string
		window int
	}
	anomalous := make(map[key]bool, len(chaosWindows))
	for _, w := range chaosWindows {
		if w.Anomalous() {
			anomalous[key{w.RunID, w.Window}] = true
		}
	}
	for i := range live {
		if anomalous[key{live[i].RunID, live[i].Window}] {
			live[i].Anomalous = true
		}
	}
}
