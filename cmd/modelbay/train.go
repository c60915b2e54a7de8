package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelbay-labs/modelbay-go/internal/client"
	"github.com/modelbay-labs/modelbay-go/internal/dataset"
	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/training"
)

type trainOptions struct {
	ConfigPath string
	Experiment string
	DatasetLoc string
	DropoutP   float64
	LR         float64
	LRFactor   float64
	LRPatience int
	Epochs     int
	BatchSize  int
	Seed       int64
	Workers    int
}

func (o *trainOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.ConfigPath, "config", "c", "", "experiment config file (YAML)")
	cmd.Flags().StringVar(&o.Experiment, "experiment", "", "experiment name")
	cmd.Flags().StringVar(&o.DatasetLoc, "dataset", "", "dataset location (path or URL)")
	cmd.Flags().Float64Var(&o.DropoutP, "dropout-p", 0, "word dropout probability")
	cmd.Flags().Float64Var(&o.LR, "lr", 0, "initial learning rate")
	cmd.Flags().Float64Var(&o.LRFactor, "lr-factor", 0, "plateau decay factor")
	cmd.Flags().IntVar(&o.LRPatience, "lr-patience", -1, "epochs without improvement before decay")
	cmd.Flags().IntVar(&o.Epochs, "epochs", 0, "training epochs")
	cmd.Flags().IntVar(&o.BatchSize, "batch-size", 0, "mini-batch size")
	cmd.Flags().Int64Var(&o.Seed, "seed", 0, "random seed")
	cmd.Flags().IntVar(&o.Workers, "workers", 0, "requested training workers")
}

// launchSpec merges the config file with flag overrides.
func (o *trainOptions) launchSpec() (training.LaunchSpec, experimentConfig, error) {
	cfg, err := loadExperimentConfig(o.ConfigPath)
	if err != nil {
		return training.LaunchSpec{}, cfg, err
	}
	if o.Experiment != "" {
		cfg.Experiment = o.Experiment
	}
	if o.DatasetLoc != "" {
		cfg.DatasetLoc = o.DatasetLoc
	}
	if o.DropoutP != 0 {
		cfg.Params.DropoutP = o.DropoutP
	}
	if o.LR != 0 {
		cfg.Params.LR = o.LR
	}
	if o.LRFactor != 0 {
		cfg.Params.LRFactor = o.LRFactor
	}
	if o.LRPatience >= 0 {
		cfg.Params.LRPatience = o.LRPatience
	}
	if o.Epochs != 0 {
		cfg.Epochs = o.Epochs
	}
	if o.BatchSize != 0 {
		cfg.BatchSize = o.BatchSize
	}
	if o.Seed != 0 {
		cfg.Seed = o.Seed
	}

	resources := domain.DefaultResourceSpec()
	if cfg.Resources != nil {
		resources = *cfg.Resources
	}
	if o.Workers > 0 {
		resources.NumWorkers = o.Workers
	}

	return training.LaunchSpec{
		Experiment: cfg.Experiment,
		DatasetLoc: cfg.DatasetLoc,
		Loop:       cfg.Params,
		Resources:  resources,
		Epochs:     cfg.Epochs,
		BatchSize:  cfg.BatchSize,
		Seed:       cfg.Seed,
	}, cfg, nil
}

func newOrchestrator(opts *globalOptions) *training.Orchestrator {
	tracking := client.NewTracking(opts.TrackingURL, opts.Token)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return training.NewOrchestrator(tracking, tracking, dataset.LocalHTTPOpener(nil), logger)
}

func newTrainCmd(global *globalOptions) *cobra.Command {
	opts := &trainOptions{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model and record the run in the tracking store",
		Example: `  # Train from a config file
  modelbay train -c experiment.yaml

  # Override hyperparameters from the command line
  modelbay train -c experiment.yaml --lr 0.0001 --epochs 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, _, err := opts.launchSpec()
			if err != nil {
				return err
			}
			run, err := newOrchestrator(global).Launch(cmd.Context(), spec)
			if err != nil {
				if run.ID != "" {
					_ = printJSON(cmd.OutOrStdout(), run)
				}
				return fmt.Errorf("training failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), run)
		},
	}
	opts.bind(cmd)
	return cmd
}

func newTuneCmd(global *globalOptions) *cobra.Command {
	opts := &trainOptions{}
	var budget, concurrency int
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Run a hyperparameter sweep as independent runs",
		Example: `  # Sweep the candidate points from the config file
  modelbay tune -c experiment.yaml

  # Fill a budget of 8 trials, 2 at a time
  modelbay tune -c experiment.yaml --budget 8 --concurrency 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, cfg, err := opts.launchSpec()
			if err != nil {
				return err
			}
			tune := training.TuneSpec{
				Base:        spec,
				Points:      cfg.Tune.Points,
				Budget:      cfg.Tune.Budget,
				Concurrency: cfg.Tune.Concurrency,
			}
			if budget > 0 {
				tune.Budget = budget
			}
			if concurrency > 0 {
				tune.Concurrency = concurrency
			}

			results, err := newOrchestrator(global).Tune(cmd.Context(), tune)
			if err != nil {
				return err
			}
			summary := make([]map[string]any, 0, len(results))
			failed := 0
			for _, r := range results {
				entry := map[string]any{
					"trial":  r.Trial,
					"params": r.Loop,
					"run_id": r.Run.ID,
					"status": r.Run.Status,
				}
				if r.Err != nil {
					entry["error"] = r.Err.Error()
					failed++
				}
				summary = append(summary, entry)
			}
			if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
				return err
			}
			if failed == len(results) {
				return fmt.Errorf("all %d trials failed", failed)
			}
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().IntVar(&budget, "budget", 0, "total trials to run")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max trials in flight")
	return cmd
}
