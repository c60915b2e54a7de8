package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

// experimentConfig is the YAML file a training or tuning invocation reads.
// Flags override file values where both are given.
type experimentConfig struct {
	Experiment string                 `yaml:"experiment"`
	DatasetLoc string                 `yaml:"dataset_loc"`
	Params     domain.TrainLoopConfig `yaml:"params"`
	Resources  *domain.ResourceSpec   `yaml:"resources,omitempty"`
	Epochs     int                    `yaml:"epochs"`
	BatchSize  int                    `yaml:"batch_size"`
	Seed       int64                  `yaml:"seed"`

	Tune tuneConfig `yaml:"tune,omitempty"`
}

type tuneConfig struct {
	Budget      int                      `yaml:"budget"`
	Concurrency int                      `yaml:"concurrency"`
	Points      []domain.TrainLoopConfig `yaml:"points,omitempty"`
}

func loadExperimentConfig(path string) (experimentConfig, error) {
	var cfg experimentConfig
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
