package domain

import (
	"errors"
	"strings"
	"time"
)

// Metrics is a precision/recall/f1 triple with the sample count it was
// computed over.
type Metrics struct {
	Precision  float64 `json:"precision"`
	Recall     float64 `json:"recall"`
	F1         float64 `json:"f1"`
	NumSamples int     `json:"num_samples"`
}

// ClassMetrics pairs a label with its metrics so per-class results keep
// their order (sorted by descending f1 when produced by the gate).
type ClassMetrics struct {
	Class   string  `json:"class"`
	Metrics Metrics `json:"metrics"`
}

// EvaluationReport is the immutable outcome of one evaluation invocation.
// Re-evaluating the same run produces a new report with a new ID.
type EvaluationReport struct {
	ID          string             `json:"report_id"`
	RunID       string             `json:"run_id"`
	DatasetLoc  string             `json:"dataset_loc"`
	EvaluatedAt time.Time          `json:"evaluated_at"`
	EvaluatedBy string             `json:"evaluated_by"`
	Overall     Metrics            `json:"overall"`
	PerClass    []ClassMetrics     `json:"per_class"`
	Slices      map[string]Metrics `json:"slices"`
	Thresholds  map[string]float64 `json:"thresholds"`
	Passed      bool               `json:"passed"`
	Failures    []string           `json:"failures,omitempty"`
	ObjectKey   string             `json:"object_key,omitempty"`
}

func (r EvaluationReport) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("report id is required")
	}
	if strings.TrimSpace(r.RunID) == "" {
		return errors.New("run id is required")
	}
	if r.EvaluatedAt.IsZero() {
		return errors.New("evaluated_at is required")
	}
	return nil
}
