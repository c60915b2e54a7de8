package repo

import (
	"context"
	"errors"
	"time"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with the record's current
// state: appending metrics to a terminal run, or an illegal status
// transition.
var ErrConflict = errors.New("conflict")

type RunFilter struct {
	Experiment string
	Status     domain.RunStatus
	Limit      int
}

// RunRepository owns training run records. Metric snapshots are append-only
// and written only by the single attempt that owns the run, so appends from
// concurrent runs never conflict.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.Run) error
	GetRun(ctx context.Context, id string) (domain.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.Run, error)
	AppendMetrics(ctx context.Context, runID string, snapshot domain.MetricSnapshot) error
	CompleteRun(ctx context.Context, runID string, artifactKey string, endedAt time.Time) error
	FailRun(ctx context.Context, runID string, reason string, endedAt time.Time) error
}

// ReportRepository owns immutable evaluation reports.
type ReportRepository interface {
	CreateReport(ctx context.Context, report domain.EvaluationReport) error
	GetReport(ctx context.Context, id string) (domain.EvaluationReport, error)
	ListReportsForRun(ctx context.Context, runID string, limit int) ([]domain.EvaluationReport, error)
	LatestReportForRun(ctx context.Context, runID string) (domain.EvaluationReport, error)
}

// PromotionRepository owns the single mutable binding record per service.
// Callers serialize writes per service; the repository only persists.
type PromotionRepository interface {
	GetBinding(ctx context.Context, service string) (domain.Promotion, error)
	PutBinding(ctx context.Context, promotion domain.Promotion) error
}
