package domain

import (
	"errors"
	"fmt"
)

// TrainLoopConfig holds the recognized train-loop hyperparameters.
type TrainLoopConfig struct {
	DropoutP   float64 `json:"dropout_p" yaml:"dropout_p"`
	LR         float64 `json:"lr" yaml:"lr"`
	LRFactor   float64 `json:"lr_factor" yaml:"lr_factor"`
	LRPatience int     `json:"lr_patience" yaml:"lr_patience"`
}

func (c TrainLoopConfig) Validate() error {
	if c.DropoutP < 0 || c.DropoutP >= 1 {
		return fmt.Errorf("dropout_p must be in [0, 1): %v", c.DropoutP)
	}
	if c.LR <= 0 {
		return fmt.Errorf("lr must be positive: %v", c.LR)
	}
	if c.LRFactor <= 0 || c.LRFactor > 1 {
		return fmt.Errorf("lr_factor must be in (0, 1]: %v", c.LRFactor)
	}
	if c.LRPatience < 0 {
		return fmt.Errorf("lr_patience must be >= 0: %d", c.LRPatience)
	}
	return nil
}

// ResourceSpec describes the workers requested for a training attempt. The
// compute substrate interprets it; this core only records and forwards it.
type ResourceSpec struct {
	NumWorkers   int     `json:"num_workers" yaml:"num_workers"`
	CPUPerWorker float64 `json:"cpu_per_worker" yaml:"cpu_per_worker"`
	GPUPerWorker float64 `json:"gpu_per_worker" yaml:"gpu_per_worker"`
}

func (s ResourceSpec) Validate() error {
	if s.NumWorkers < 1 {
		return errors.New("num_workers must be >= 1")
	}
	if s.CPUPerWorker < 0 {
		return errors.New("cpu_per_worker must be >= 0")
	}
	if s.GPUPerWorker < 0 {
		return errors.New("gpu_per_worker must be >= 0")
	}
	return nil
}

// DefaultResourceSpec is a single CPU worker.
func DefaultResourceSpec() ResourceSpec {
	return ResourceSpec{NumWorkers: 1, CPUPerWorker: 1}
}
