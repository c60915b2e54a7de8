// Package memory provides in-memory repository implementations used by
// tests and the single-process local mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/repo"
)

type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*domain.Run
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*domain.Run)}
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	clone := run
	clone.Metrics = append([]domain.MetricSnapshot(nil), run.Metrics...)
	s.runs[run.ID] = &clone
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.Run{}, repo.ErrNotFound
	}
	return cloneRun(run), nil
}

func (s *RunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if filter.Experiment != "" && run.Experiment != filter.Experiment {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, cloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *RunStore) AppendMetrics(ctx context.Context, runID string, snapshot domain.MetricSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return repo.ErrNotFound
	}
	if run.Status.Terminal() {
		return fmt.Errorf("%w: run %s is %s; metrics are frozen", repo.ErrConflict, runID, run.Status)
	}
	values := make(map[string]float64, len(snapshot.Values))
	for k, v := range snapshot.Values {
		values[k] = v
	}
	snapshot.Values = values
	if snapshot.RecordedAt.IsZero() {
		snapshot.RecordedAt = time.Now().UTC()
	}
	run.Metrics = append(run.Metrics, snapshot)
	return nil
}

func (s *RunStore) CompleteRun(ctx context.Context, runID string, artifactKey string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return repo.ErrNotFound
	}
	if err := domain.ValidateRunTransition(run.Status, domain.RunStatusCompleted); err != nil {
		return fmt.Errorf("%w: %v", repo.ErrConflict, err)
	}
	if artifactKey == "" {
		return fmt.Errorf("artifact key is required to complete run %s", runID)
	}
	run.Status = domain.RunStatusCompleted
	run.ArtifactKey = artifactKey
	ended := endedAt.UTC()
	run.EndedAt = &ended
	return nil
}

func (s *RunStore) FailRun(ctx context.Context, runID string, reason string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return repo.ErrNotFound
	}
	if err := domain.ValidateRunTransition(run.Status, domain.RunStatusFailed); err != nil {
		return fmt.Errorf("%w: %v", repo.ErrConflict, err)
	}
	run.Status = domain.RunStatusFailed
	run.FailReason = reason
	ended := endedAt.UTC()
	run.EndedAt = &ended
	return nil
}

func cloneRun(run *domain.Run) domain.Run {
	clone := *run
	clone.Metrics = append([]domain.MetricSnapshot(nil), run.Metrics...)
	return clone
}

type ReportStore struct {
	mu      sync.RWMutex
	reports map[string]domain.EvaluationReport
	byRun   map[string][]string
}

func NewReportStore() *ReportStore {
	return &ReportStore{
		reports: make(map[string]domain.EvaluationReport),
		byRun:   make(map[string][]string),
	}
}

func (s *ReportStore) CreateReport(ctx context.Context, report domain.EvaluationReport) error {
	if err := report.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reports[report.ID]; exists {
		return fmt.Errorf("report %s already exists", report.ID)
	}
	s.reports[report.ID] = report
	s.byRun[report.RunID] = append(s.byRun[report.RunID], report.ID)
	return nil
}

func (s *ReportStore) GetReport(ctx context.Context, id string) (domain.EvaluationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[id]
	if !ok {
		return domain.EvaluationReport{}, repo.ErrNotFound
	}
	return report, nil
}

func (s *ReportStore) ListReportsForRun(ctx context.Context, runID string, limit int) ([]domain.EvaluationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRun[runID]
	out := make([]domain.EvaluationReport, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.reports[id])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EvaluatedAt.After(out[j].EvaluatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ReportStore) LatestReportForRun(ctx context.Context, runID string) (domain.EvaluationReport, error) {
	reports, err := s.ListReportsForRun(ctx, runID, 1)
	if err != nil {
		return domain.EvaluationReport{}, err
	}
	if len(reports) == 0 {
		return domain.EvaluationReport{}, repo.ErrNotFound
	}
	return reports[0], nil
}

type PromotionStore struct {
	mu       sync.RWMutex
	bindings map[string]domain.Promotion
}

func NewPromotionStore() *PromotionStore {
	return &PromotionStore{bindings: make(map[string]domain.Promotion)}
}

func (s *PromotionStore) GetBinding(ctx context.Context, service string) (domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	binding, ok := s.bindings[service]
	if !ok {
		return domain.Promotion{}, repo.ErrNotFound
	}
	return binding, nil
}

func (s *PromotionStore) PutBinding(ctx context.Context, promotion domain.Promotion) error {
	if err := promotion.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[promotion.Service] = promotion
	return nil
}
