package serving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/repo"
	"github.com/modelbay-labs/modelbay-go/internal/textclf"
)

// ErrLoadFailure means the bound run's model could not be loaded. When a
// model is already resident the controller keeps serving it; at startup,
// with nothing loaded, the failure is fatal to the caller.
var ErrLoadFailure = errors.New("model load failed")

// BindingSource resolves the service's current promotion record.
type BindingSource interface {
	GetBinding(ctx context.Context, service string) (domain.Promotion, error)
}

// RunSource resolves run records so the controller can refuse to serve
// anything but a COMPLETED run.
type RunSource interface {
	GetRun(ctx context.Context, id string) (domain.Run, error)
}

// ArtifactFetcher retrieves raw artifact bytes by key.
type ArtifactFetcher func(ctx context.Context, key string) ([]byte, error)

// Controller reconciles the served model with the service's binding.
type Controller struct {
	service  string
	bindings BindingSource
	runs     RunSource
	fetch    ArtifactFetcher
	holder   *Holder
	log      *slog.Logger
}

func NewController(service string, bindings BindingSource, runs RunSource, fetch ArtifactFetcher, holder *Holder, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		service:  service,
		bindings: bindings,
		runs:     runs,
		fetch:    fetch,
		holder:   holder,
		log:      log,
	}
}

func (c *Controller) Holder() *Holder { return c.holder }

// Reload reads the current binding and swaps the bound run's model in if it
// differs from what is being served. On any failure the resident model, if
// one exists, keeps serving and the error wraps ErrLoadFailure.
func (c *Controller) Reload(ctx context.Context) error {
	currentRunID, _, hasModel := c.holder.Current()

	binding, err := c.bindings.GetBinding(ctx, c.service)
	if errors.Is(err, repo.ErrNotFound) {
		return c.failed(hasModel, fmt.Errorf("service %s has no binding", c.service))
	}
	if err != nil {
		return c.failed(hasModel, fmt.Errorf("read binding: %w", err))
	}
	if hasModel && binding.RunID == currentRunID {
		return nil
	}

	model, err := c.load(ctx, binding.RunID)
	if err != nil {
		return c.failed(hasModel, err)
	}

	c.holder.Swap(binding.RunID, model)
	c.log.Info("model swapped in", "service", c.service, "run_id", binding.RunID, "previous_run_id", currentRunID)
	return nil
}

func (c *Controller) load(ctx context.Context, runID string) (*textclf.Model, error) {
	run, err := c.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", runID, err)
	}
	if run.Status != domain.RunStatusCompleted {
		return nil, fmt.Errorf("run %s is %s, not COMPLETED", runID, run.Status)
	}
	if run.ArtifactKey == "" {
		return nil, fmt.Errorf("run %s has no artifact", runID)
	}

	raw, err := c.fetch(ctx, run.ArtifactKey)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %s: %w", run.ArtifactKey, err)
	}
	model, err := textclf.DecodeArtifact(raw)
	if err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", run.ArtifactKey, err)
	}
	return model, nil
}

func (c *Controller) failed(hasModel bool, cause error) error {
	if hasModel {
		c.log.Warn("reload failed, keeping resident model", "service", c.service, "error", cause)
	} else {
		c.log.Error("reload failed with no resident model", "service", c.service, "error", cause)
	}
	return fmt.Errorf("%w: %v", ErrLoadFailure, cause)
}
