package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunStatus is the lifecycle state of a training run. COMPLETED and FAILED
// are terminal; a failed run is never retried in place.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

var runTransitions = map[RunStatus][]RunStatus{
	RunStatusRunning:   {RunStatusCompleted, RunStatusFailed},
	RunStatusCompleted: {},
	RunStatusFailed:    {},
}

// ValidateRunTransition ensures a run status transition is allowed.
func ValidateRunTransition(from, to RunStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("invalid run status transition")
	}
	for _, candidate := range runTransitions[from] {
		if candidate == to {
			return nil
		}
	}
	return fmt.Errorf("run status transition %q -> %q not allowed", from, to)
}

// MetricSnapshot is one epoch's worth of recorded metrics. Snapshots are
// append-only and ordered by epoch.
type MetricSnapshot struct {
	Epoch      int                `json:"epoch"`
	RecordedAt time.Time          `json:"recorded_at"`
	Values     map[string]float64 `json:"values"`
}

// Run is a single training attempt. Params are fixed at creation; the metric
// history grows while the run is RUNNING and freezes at the terminal status.
// ArtifactKey is only meaningful once Status is COMPLETED.
type Run struct {
	ID          string           `json:"run_id"`
	Experiment  string           `json:"experiment"`
	Status      RunStatus        `json:"status"`
	Params      TrainLoopConfig  `json:"params"`
	Resources   ResourceSpec     `json:"resources"`
	DatasetLoc  string           `json:"dataset_loc,omitempty"`
	ArtifactKey string           `json:"artifact_key,omitempty"`
	FailReason  string           `json:"fail_reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	EndedAt     *time.Time       `json:"ended_at,omitempty"`
	Metrics     []MetricSnapshot `json:"metrics,omitempty"`
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.Experiment) == "" {
		return errors.New("experiment is required")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid run status %q", r.Status)
	}
	if r.CreatedAt.IsZero() {
		return errors.New("created_at is required")
	}
	return nil
}

// LastMetric returns the most recent recorded value of a metric, scanning
// the history from the newest snapshot backwards.
func (r Run) LastMetric(name string) (float64, bool) {
	for i := len(r.Metrics) - 1; i >= 0; i-- {
		if v, ok := r.Metrics[i].Values[name]; ok {
			return v, true
		}
	}
	return 0, false
}
