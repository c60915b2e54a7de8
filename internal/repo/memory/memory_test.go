package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/repo"
)

func newRun(id, experiment string, createdAt time.Time) domain.Run {
	return domain.Run{
		ID:         id,
		Experiment: experiment,
		Status:     domain.RunStatusRunning,
		CreatedAt:  createdAt,
	}
}

func TestRunStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	base := time.Unix(1700000000, 0).UTC()

	if err := store.CreateRun(ctx, newRun("r1", "exp", base)); err != nil {
		t.Fatalf("CreateRun() err=%v", err)
	}
	if err := store.CreateRun(ctx, newRun("r1", "exp", base)); err == nil {
		t.Fatalf("duplicate CreateRun should fail")
	}

	if err := store.AppendMetrics(ctx, "r1", domain.MetricSnapshot{Epoch: 0, Values: map[string]float64{"val_loss": 0.9}}); err != nil {
		t.Fatalf("AppendMetrics() err=%v", err)
	}
	if err := store.CompleteRun(ctx, "r1", "runs/r1/model.json", base.Add(time.Minute)); err != nil {
		t.Fatalf("CompleteRun() err=%v", err)
	}

	run, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun() err=%v", err)
	}
	if run.Status != domain.RunStatusCompleted {
		t.Fatalf("status=%s, want COMPLETED", run.Status)
	}
	if run.ArtifactKey != "runs/r1/model.json" {
		t.Fatalf("artifact key=%q", run.ArtifactKey)
	}

	// terminal runs freeze their metric history
	err = store.AppendMetrics(ctx, "r1", domain.MetricSnapshot{Epoch: 1, Values: map[string]float64{"val_loss": 0.1}})
	if err == nil {
		t.Fatalf("AppendMetrics after completion should fail")
	}
	if err := store.CompleteRun(ctx, "r1", "again", base); err == nil {
		t.Fatalf("double complete should fail")
	}
}

func TestRunStore_FailKeepsMetrics(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	base := time.Unix(1700000000, 0).UTC()

	if err := store.CreateRun(ctx, newRun("r1", "exp", base)); err != nil {
		t.Fatalf("CreateRun() err=%v", err)
	}
	if err := store.AppendMetrics(ctx, "r1", domain.MetricSnapshot{Epoch: 0, Values: map[string]float64{"val_loss": 0.9}}); err != nil {
		t.Fatalf("AppendMetrics() err=%v", err)
	}
	if err := store.FailRun(ctx, "r1", "worker lost", base.Add(time.Minute)); err != nil {
		t.Fatalf("FailRun() err=%v", err)
	}
	run, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun() err=%v", err)
	}
	if run.Status != domain.RunStatusFailed || run.FailReason != "worker lost" {
		t.Fatalf("run=%+v, want FAILED with reason", run)
	}
	if len(run.Metrics) != 1 {
		t.Fatalf("metrics len=%d, want 1 (partial metrics preserved)", len(run.Metrics))
	}
}

func TestRunStore_ListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	base := time.Unix(1700000000, 0).UTC()

	for _, r := range []domain.Run{
		newRun("r2", "exp", base.Add(time.Second)),
		newRun("r1", "exp", base),
		newRun("r3", "other", base),
	} {
		if err := store.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun(%s) err=%v", r.ID, err)
		}
	}
	if err := store.CompleteRun(ctx, "r1", "k1", base.Add(time.Minute)); err != nil {
		t.Fatalf("CompleteRun() err=%v", err)
	}

	runs, err := store.ListRuns(ctx, repo.RunFilter{Experiment: "exp"})
	if err != nil {
		t.Fatalf("ListRuns() err=%v", err)
	}
	if len(runs) != 2 || runs[0].ID != "r1" || runs[1].ID != "r2" {
		t.Fatalf("runs=%v, want [r1 r2] by created_at", runs)
	}

	completed, err := store.ListRuns(ctx, repo.RunFilter{Experiment: "exp", Status: domain.RunStatusCompleted})
	if err != nil {
		t.Fatalf("ListRuns() err=%v", err)
	}
	if len(completed) != 1 || completed[0].ID != "r1" {
		t.Fatalf("completed=%v, want [r1]", completed)
	}
}

func TestReportStore_LatestWins(t *testing.T) {
	ctx := context.Background()
	store := NewReportStore()
	base := time.Unix(1700000000, 0).UTC()

	older := domain.EvaluationReport{ID: "e1", RunID: "r1", EvaluatedAt: base, Passed: false}
	newer := domain.EvaluationReport{ID: "e2", RunID: "r1", EvaluatedAt: base.Add(time.Hour), Passed: true}
	if err := store.CreateReport(ctx, older); err != nil {
		t.Fatalf("CreateReport() err=%v", err)
	}
	if err := store.CreateReport(ctx, newer); err != nil {
		t.Fatalf("CreateReport() err=%v", err)
	}

	latest, err := store.LatestReportForRun(ctx, "r1")
	if err != nil {
		t.Fatalf("LatestReportForRun() err=%v", err)
	}
	if latest.ID != "e2" || !latest.Passed {
		t.Fatalf("latest=%+v, want e2 passed", latest)
	}

	if _, err := store.LatestReportForRun(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestPromotionStore(t *testing.T) {
	ctx := context.Background()
	store := NewPromotionStore()

	if _, err := store.GetBinding(ctx, "svc"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}

	binding := domain.Promotion{Service: "svc", RunID: "r1", UpdatedAt: time.Unix(1700000000, 0)}
	if err := store.PutBinding(ctx, binding); err != nil {
		t.Fatalf("PutBinding() err=%v", err)
	}
	got, err := store.GetBinding(ctx, "svc")
	if err != nil {
		t.Fatalf("GetBinding() err=%v", err)
	}
	if got.RunID != "r1" {
		t.Fatalf("run id=%q, want r1", got.RunID)
	}
}
