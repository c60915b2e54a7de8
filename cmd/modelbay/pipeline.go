package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/modelbay-labs/modelbay-go/internal/client"
)

func newBestRunCmd(global *globalOptions) *cobra.Command {
	var experiment, metric, direction string
	cmd := &cobra.Command{
		Use:   "best-run",
		Short: "Select the best completed run of an experiment by a metric",
		Example: `  # Lowest validation loss wins
  modelbay best-run --experiment tagifai --metric val_loss --direction ASC`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if experiment == "" || metric == "" {
				return fmt.Errorf("--experiment and --metric are required")
			}
			run, err := client.NewTracking(global.TrackingURL, global.Token).BestRun(cmd.Context(), experiment, metric, direction)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), run)
		},
	}
	cmd.Flags().StringVar(&experiment, "experiment", "", "experiment name")
	cmd.Flags().StringVar(&metric, "metric", "", "metric name to rank by")
	cmd.Flags().StringVar(&direction, "direction", "ASC", "ASC (lower is better) or DESC")
	return cmd
}

// parseThresholds turns repeated key=value flags into a threshold map.
func parseThresholds(raw []string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("threshold %q: want metric=minimum", kv)
		}
		minimum, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("threshold %q: %w", kv, err)
		}
		out[key] = minimum
	}
	return out, nil
}

func newEvaluateCmd(global *globalOptions) *cobra.Command {
	var runID, datasetLoc string
	var thresholds []string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a completed run against a holdout dataset",
		Example: `  # Gate on aggregate f1 and the short_text slice
  modelbay evaluate --run RUN_ID --dataset s3://datasets/holdout.csv \
    --threshold f1=0.9 --threshold slice:short_text:f1=0.8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" || datasetLoc == "" {
				return fmt.Errorf("--run and --dataset are required")
			}
			parsed, err := parseThresholds(thresholds)
			if err != nil {
				return err
			}
			report, err := client.NewGate(global.GateURL, global.Token).Evaluate(cmd.Context(), client.EvaluateRequest{
				RunID:      runID,
				DatasetLoc: datasetLoc,
				Thresholds: parsed,
			})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Passed {
				return fmt.Errorf("evaluation failed the gate: %s", strings.Join(report.Failures, "; "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run to evaluate")
	cmd.Flags().StringVar(&datasetLoc, "dataset", "", "holdout dataset location")
	cmd.Flags().StringArrayVar(&thresholds, "threshold", nil, "metric=minimum, repeatable")
	return cmd
}

func newRolloutCmd(global *globalOptions) *cobra.Command {
	var service, runID string
	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Promote a run to a serving endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if service == "" || runID == "" {
				return fmt.Errorf("--service and --run are required")
			}
			binding, err := client.NewRegistry(global.RegistryURL, global.Token).Rollout(cmd.Context(), service, runID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), binding)
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "serving endpoint name")
	cmd.Flags().StringVar(&runID, "run", "", "run to promote")
	return cmd
}

func newRollbackCmd(global *globalOptions) *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Rebind a serving endpoint to its previous run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if service == "" {
				return fmt.Errorf("--service is required")
			}
			binding, err := client.NewRegistry(global.RegistryURL, global.Token).Rollback(cmd.Context(), service)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), binding)
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "serving endpoint name")
	return cmd
}

func newPredictCmd(global *globalOptions) *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Request a prediction from the serving endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" && description == "" {
				return fmt.Errorf("--title or --description is required")
			}
			pred, err := client.NewServing(global.ServingURL, global.Token).Predict(cmd.Context(), title, description)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pred)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&description, "description", "", "project description")
	return cmd
}
