// Package registry decides which trained run a serving endpoint is bound to.
// Promotion is gated on the run's latest evaluation verdict; rollback swaps
// back to the previously bound run.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/repo"
)

var (
	// ErrNotEligible means the run cannot be promoted: it is not COMPLETED,
	// has never been evaluated, or its latest evaluation failed.
	ErrNotEligible = errors.New("run is not eligible for promotion")

	// ErrNoPriorBinding means rollback has nothing to return to.
	ErrNoPriorBinding = errors.New("no prior binding to roll back to")
)

type Registrar struct {
	runs       repo.RunRepository
	reports    repo.ReportRepository
	promotions repo.PromotionRepository
	log        *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	services map[string]*sync.Mutex
}

func NewRegistrar(runs repo.RunRepository, reports repo.ReportRepository, promotions repo.PromotionRepository, log *slog.Logger) *Registrar {
	if log == nil {
		log = slog.Default()
	}
	return &Registrar{
		runs:       runs,
		reports:    reports,
		promotions: promotions,
		log:        log,
		now:        time.Now,
		services:   map[string]*sync.Mutex{},
	}
}

// serviceLock serializes binding mutations per service so concurrent
// promotes and rollbacks for the same endpoint apply one at a time.
func (r *Registrar) serviceLock(service string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.services[service]
	if !ok {
		m = &sync.Mutex{}
		r.services[service] = m
	}
	return m
}

// Binding returns the current promotion record for a service.
func (r *Registrar) Binding(ctx context.Context, service string) (domain.Promotion, error) {
	return r.promotions.GetBinding(ctx, service)
}

// Promote binds a run to a service after checking eligibility: the run must
// be COMPLETED and its most recent evaluation must have passed. Promoting
// the already-bound run is a no-op that returns the unchanged binding.
func (r *Registrar) Promote(ctx context.Context, service, runID, actor string) (domain.Promotion, error) {
	if service == "" || runID == "" {
		return domain.Promotion{}, fmt.Errorf("service and run id are required")
	}
	if err := r.checkEligible(ctx, runID); err != nil {
		return domain.Promotion{}, err
	}

	lock := r.serviceLock(service)
	lock.Lock()
	defer lock.Unlock()

	current, err := r.promotions.GetBinding(ctx, service)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		current = domain.Promotion{}
	case err != nil:
		return domain.Promotion{}, fmt.Errorf("read binding for %s: %w", service, err)
	case current.RunID == runID:
		return current, nil
	}

	next := domain.Promotion{
		Service:       service,
		RunID:         runID,
		PreviousRunID: current.RunID,
		UpdatedAt:     r.now().UTC(),
		UpdatedBy:     actor,
	}
	if err := r.promotions.PutBinding(ctx, next); err != nil {
		return domain.Promotion{}, fmt.Errorf("write binding for %s: %w", service, err)
	}
	r.log.Info("run promoted", "service", service, "run_id", runID, "previous_run_id", current.RunID, "actor", actor)
	return next, nil
}

// Rollback rebinds a service to its previously bound run. The prior slot is
// cleared, so a second rollback without an intervening promote fails with
// ErrNoPriorBinding.
func (r *Registrar) Rollback(ctx context.Context, service, actor string) (domain.Promotion, error) {
	if service == "" {
		return domain.Promotion{}, fmt.Errorf("service is required")
	}

	lock := r.serviceLock(service)
	lock.Lock()
	defer lock.Unlock()

	current, err := r.promotions.GetBinding(ctx, service)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Promotion{}, fmt.Errorf("%w: service %s has no binding", ErrNoPriorBinding, service)
	}
	if err != nil {
		return domain.Promotion{}, fmt.Errorf("read binding for %s: %w", service, err)
	}
	if current.PreviousRunID == "" {
		return domain.Promotion{}, fmt.Errorf("%w: service %s", ErrNoPriorBinding, service)
	}

	next := domain.Promotion{
		Service:   service,
		RunID:     current.PreviousRunID,
		UpdatedAt: r.now().UTC(),
		UpdatedBy: actor,
	}
	if err := r.promotions.PutBinding(ctx, next); err != nil {
		return domain.Promotion{}, fmt.Errorf("write binding for %s: %w", service, err)
	}
	r.log.Info("binding rolled back", "service", service, "run_id", next.RunID, "actor", actor)
	return next, nil
}

func (r *Registrar) checkEligible(ctx context.Context, runID string) error {
	run, err := r.runs.GetRun(ctx, runID)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: run %s not found", ErrNotEligible, runID)
	}
	if err != nil {
		return fmt.Errorf("read run %s: %w", runID, err)
	}
	if run.Status != domain.RunStatusCompleted {
		return fmt.Errorf("%w: run %s is %s", ErrNotEligible, runID, run.Status)
	}

	report, err := r.reports.LatestReportForRun(ctx, runID)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: run %s has never been evaluated", ErrNotEligible, runID)
	}
	if err != nil {
		return fmt.Errorf("read reports for %s: %w", runID, err)
	}
	if !report.Passed {
		return fmt.Errorf("%w: latest evaluation of %s failed: %v", ErrNotEligible, runID, report.Failures)
	}
	return nil
}
