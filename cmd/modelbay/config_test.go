package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadExperimentConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "experiment.yaml")
	doc := `experiment: tagifai
dataset_loc: dataset.csv
params:
  dropout_p: 0.5
  lr: 0.0001
  lr_factor: 0.8
  lr_patience: 3
epochs: 10
batch_size: 32
seed: 42
tune:
  budget: 4
  concurrency: 2
  points:
    - dropout_p: 0.3
      lr: 0.001
      lr_factor: 0.5
      lr_patience: 2
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadExperimentConfig(path)
	if err != nil {
		t.Fatalf("loadExperimentConfig: %v", err)
	}
	if cfg.Experiment != "tagifai" || cfg.DatasetLoc != "dataset.csv" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Params.DropoutP != 0.5 || cfg.Params.LR != 0.0001 || cfg.Params.LRPatience != 3 {
		t.Fatalf("params=%+v", cfg.Params)
	}
	if cfg.Epochs != 10 || cfg.Seed != 42 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Tune.Budget != 4 || len(cfg.Tune.Points) != 1 || cfg.Tune.Points[0].LR != 0.001 {
		t.Fatalf("tune=%+v", cfg.Tune)
	}
}

func TestLoadExperimentConfig_Missing(t *testing.T) {
	if _, err := loadExperimentConfig("/nonexistent/experiment.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
	cfg, err := loadExperimentConfig("")
	if err != nil {
		t.Fatalf("empty path must be a zero config: %v", err)
	}
	if cfg.Experiment != "" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestTrainOptions_FlagOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "experiment.yaml")
	doc := `experiment: tagifai
dataset_loc: dataset.csv
params:
  dropout_p: 0.5
  lr: 0.0001
  lr_factor: 0.8
  lr_patience: 3
epochs: 10
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	opts := &trainOptions{ConfigPath: path, LR: 0.01, Epochs: 3, Workers: 2, LRPatience: -1}
	spec, _, err := opts.launchSpec()
	if err != nil {
		t.Fatalf("launchSpec: %v", err)
	}
	if spec.Loop.LR != 0.01 {
		t.Fatalf("lr=%v, want flag override 0.01", spec.Loop.LR)
	}
	if spec.Loop.DropoutP != 0.5 || spec.Loop.LRPatience != 3 {
		t.Fatalf("file values lost: %+v", spec.Loop)
	}
	if spec.Epochs != 3 {
		t.Fatalf("epochs=%d, want 3", spec.Epochs)
	}
	if spec.Resources.NumWorkers != 2 {
		t.Fatalf("resources=%+v", spec.Resources)
	}
}

func TestParseThresholds(t *testing.T) {
	got, err := parseThresholds([]string{"f1=0.9", "slice:short_text:f1=0.8"})
	if err != nil {
		t.Fatalf("parseThresholds: %v", err)
	}
	if got["f1"] != 0.9 || got["slice:short_text:f1"] != 0.8 {
		t.Fatalf("thresholds=%v", got)
	}
	if _, err := parseThresholds([]string{"f1"}); err == nil {
		t.Fatalf("expected error for missing =")
	}
	if _, err := parseThresholds([]string{"f1=high"}); err == nil {
		t.Fatalf("expected error for non-numeric minimum")
	}
}
