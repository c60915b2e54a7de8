// Package selection picks the best run of an experiment. It is a pure
// function over a snapshot of run records so the policy stays independent of
// how runs are stored.
package selection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

type Direction string

const (
	// Ascending picks the run with the smallest final metric value
	// (lower is better, e.g. val_loss).
	Ascending Direction = "ASC"
	// Descending picks the run with the largest final metric value
	// (higher is better, e.g. f1).
	Descending Direction = "DESC"
)

var ErrNotFound = errors.New("no eligible run")

func ParseDirection(raw string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(Ascending):
		return Ascending, nil
	case string(Descending):
		return Descending, nil
	default:
		return "", fmt.Errorf("direction must be ASC or DESC: %q", raw)
	}
}

// BestRun returns the COMPLETED run whose final recorded value of metric is
// minimal (Ascending) or maximal (Descending). The final value is the last
// one in the history, not the best-ever value; for fluctuating metrics the
// two differ and the final value is the selected policy. Exact ties go to
// the earlier-created run, then the lexically smaller run id, so repeated
// invocations always return the same run.
func BestRun(runs []domain.Run, metric string, direction Direction) (domain.Run, error) {
	metric = strings.TrimSpace(metric)
	if metric == "" {
		return domain.Run{}, fmt.Errorf("metric is required")
	}
	if direction != Ascending && direction != Descending {
		return domain.Run{}, fmt.Errorf("direction must be ASC or DESC: %q", direction)
	}

	var (
		best      domain.Run
		bestValue float64
		completed int
		found     bool
	)
	for _, run := range runs {
		if run.Status != domain.RunStatusCompleted {
			continue
		}
		completed++
		value, ok := run.LastMetric(metric)
		if !ok {
			continue
		}
		if !found || better(value, bestValue, direction) || (value == bestValue && earlier(run, best)) {
			best = run
			bestValue = value
			found = true
		}
	}
	if !found {
		if completed == 0 {
			return domain.Run{}, fmt.Errorf("%w: no COMPLETED runs", ErrNotFound)
		}
		return domain.Run{}, fmt.Errorf("%w: metric %q absent from every completed run", ErrNotFound, metric)
	}
	return best, nil
}

func better(candidate, incumbent float64, direction Direction) bool {
	if direction == Ascending {
		return candidate < incumbent
	}
	return candidate > incumbent
}

func earlier(a, b domain.Run) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
