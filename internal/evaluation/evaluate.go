package evaluation

import (
	"context"
	"fmt"

	"github.com/modelbay-labs/modelbay-go/internal/dataset"
	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

// Predictor is the one thing the gate needs from a model.
type Predictor interface {
	Predict(title, description string) (string, error)
}

// PredictorFunc adapts a plain function to Predictor.
type PredictorFunc func(title, description string) (string, error)

func (f PredictorFunc) Predict(title, description string) (string, error) {
	return f(title, description)
}

// Result is the outcome of evaluating one model against one holdout set.
type Result struct {
	Overall  domain.Metrics
	PerClass []domain.ClassMetrics
	Slices   map[string]domain.Metrics
	Passed   bool
	Failures []string
}

// Evaluate scores every labeled holdout record, computes aggregate,
// per-class, and slice metrics, and applies thresholds. Records missing a
// tag are rejected: an unlabeled holdout cannot ground a verdict.
func Evaluate(ctx context.Context, records []dataset.Record, p Predictor, thresholds map[string]float64) (Result, error) {
	return EvaluateWithSlices(ctx, records, p, thresholds, DefaultSlices())
}

func EvaluateWithSlices(ctx context.Context, records []dataset.Record, p Predictor, thresholds map[string]float64, sliceFns map[string]SliceFunc) (Result, error) {
	if len(records) == 0 {
		return Result{}, fmt.Errorf("holdout set is empty")
	}

	yTrue := make([]string, len(records))
	yPred := make([]string, len(records))
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if r.Tag == "" {
			return Result{}, fmt.Errorf("holdout record %d has no tag", i)
		}
		label, err := p.Predict(r.Title, r.Description)
		if err != nil {
			return Result{}, fmt.Errorf("predict holdout record %d: %w", i, err)
		}
		yTrue[i] = r.Tag
		yPred[i] = label
	}

	slices := make(map[string]domain.Metrics, len(sliceFns))
	for name, belongs := range sliceFns {
		var st, sp []string
		for i, r := range records {
			if belongs(r) {
				st = append(st, yTrue[i])
				sp = append(sp, yPred[i])
			}
		}
		slices[name] = Micro(st, sp)
	}

	overall := Overall(yTrue, yPred)
	passed, failures, err := Verdict(overall, slices, thresholds)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Overall:  overall,
		PerClass: PerClass(yTrue, yPred),
		Slices:   slices,
		Passed:   passed,
		Failures: failures,
	}, nil
}
