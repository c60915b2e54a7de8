// Package training launches training runs and hyperparameter sweeps against
// the tracking store. It owns the run lifecycle: RUNNING at creation, then
// exactly one transition to COMPLETED or FAILED.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/modelbay-labs/modelbay-go/internal/dataset"
	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/textclf"
)

// RunRecorder is the slice of the tracking store the orchestrator writes to.
// Implemented by the repository directly or by an HTTP client against the
// tracking service.
type RunRecorder interface {
	CreateRun(ctx context.Context, run domain.Run) error
	AppendMetrics(ctx context.Context, runID string, snapshot domain.MetricSnapshot) error
	CompleteRun(ctx context.Context, runID string, artifactKey string, endedAt time.Time) error
	FailRun(ctx context.Context, runID string, reason string, endedAt time.Time) error
}

// ArtifactSink stores a completed run's model bytes and returns the key the
// run record should carry.
type ArtifactSink interface {
	PutArtifact(ctx context.Context, runID string, data []byte) (string, error)
}

// LaunchSpec describes one training attempt.
type LaunchSpec struct {
	Experiment string
	DatasetLoc string
	Loop       domain.TrainLoopConfig
	Resources  domain.ResourceSpec
	Epochs     int
	BatchSize  int
	Seed       int64
}

func (s LaunchSpec) validate() error {
	if s.Experiment == "" {
		return fmt.Errorf("experiment is required")
	}
	if s.DatasetLoc == "" {
		return fmt.Errorf("dataset location is required")
	}
	if err := s.Loop.Validate(); err != nil {
		return fmt.Errorf("train loop config: %w", err)
	}
	if err := s.Resources.Validate(); err != nil {
		return fmt.Errorf("resources: %w", err)
	}
	return nil
}

type Orchestrator struct {
	runs      RunRecorder
	artifacts ArtifactSink
	open      dataset.Opener
	probe     func(ctx context.Context, location string) error
	log       *slog.Logger
	now       func() time.Time
	newRunID  func() string
}

func NewOrchestrator(runs RunRecorder, artifacts ArtifactSink, open dataset.Opener, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		runs:      runs,
		artifacts: artifacts,
		open:      open,
		probe: func(ctx context.Context, location string) error {
			return dataset.Probe(ctx, http.DefaultClient, location)
		},
		log:      log,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// Launch runs one training attempt to a terminal status. Validation and
// dataset reachability are checked before any run record exists; failures
// past that point mark the run FAILED with its metric history intact. The
// returned run reflects the terminal state even when err is non-nil.
func (o *Orchestrator) Launch(ctx context.Context, spec LaunchSpec) (domain.Run, error) {
	if spec.Resources == (domain.ResourceSpec{}) {
		spec.Resources = domain.DefaultResourceSpec()
	}
	if err := spec.validate(); err != nil {
		return domain.Run{}, err
	}
	if err := o.probe(ctx, spec.DatasetLoc); err != nil {
		return domain.Run{}, err
	}

	run := domain.Run{
		ID:         o.newRunID(),
		Experiment: spec.Experiment,
		Status:     domain.RunStatusRunning,
		Params:     spec.Loop,
		Resources:  spec.Resources,
		DatasetLoc: spec.DatasetLoc,
		CreatedAt:  o.now().UTC(),
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("create run: %w", err)
	}
	log := o.log.With("run_id", run.ID, "experiment", run.Experiment)
	log.Info("run started", "dataset_loc", spec.DatasetLoc)

	model, err := o.train(ctx, run, spec, log)
	if err != nil {
		return o.fail(ctx, run, err, log)
	}

	raw, err := textclf.EncodeArtifact(model, trainConfig(spec), o.now().UTC())
	if err != nil {
		return o.fail(ctx, run, fmt.Errorf("encode artifact: %w", err), log)
	}
	key, err := o.artifacts.PutArtifact(ctx, run.ID, raw)
	if err != nil {
		return o.fail(ctx, run, fmt.Errorf("store artifact: %w", err), log)
	}

	endedAt := o.now().UTC()
	if err := o.runs.CompleteRun(ctx, run.ID, key, endedAt); err != nil {
		return domain.Run{}, fmt.Errorf("complete run %s: %w", run.ID, err)
	}
	run.Status = domain.RunStatusCompleted
	run.ArtifactKey = key
	run.EndedAt = &endedAt
	log.Info("run completed", "artifact_key", key)
	return run, nil
}

func (o *Orchestrator) train(ctx context.Context, run domain.Run, spec LaunchSpec, log *slog.Logger) (*textclf.Model, error) {
	records, err := dataset.Load(ctx, o.open, spec.DatasetLoc)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	return textclf.Train(ctx, records, trainConfig(spec), func(s textclf.EpochStats) error {
		snapshot := domain.MetricSnapshot{
			Epoch:      s.Epoch,
			RecordedAt: o.now().UTC(),
			Values:     s.Values(),
		}
		if err := o.runs.AppendMetrics(ctx, run.ID, snapshot); err != nil {
			return fmt.Errorf("append metrics for epoch %d: %w", s.Epoch, err)
		}
		log.Debug("epoch finished", "epoch", s.Epoch, "train_loss", s.TrainLoss, "val_loss", s.ValLoss)
		return nil
	})
}

// fail marks the run FAILED and returns the original cause. The fail write
// deliberately ignores the live context so a canceled training attempt can
// still be recorded.
func (o *Orchestrator) fail(ctx context.Context, run domain.Run, cause error, log *slog.Logger) (domain.Run, error) {
	endedAt := o.now().UTC()
	failCtx := context.WithoutCancel(ctx)
	if err := o.runs.FailRun(failCtx, run.ID, cause.Error(), endedAt); err != nil {
		log.Error("marking run failed", "error", err)
		return run, fmt.Errorf("training failed (%v) and the failure could not be recorded: %w", cause, err)
	}
	run.Status = domain.RunStatusFailed
	run.FailReason = cause.Error()
	run.EndedAt = &endedAt
	log.Warn("run failed", "reason", cause.Error())
	return run, cause
}

func trainConfig(spec LaunchSpec) textclf.Config {
	return textclf.ConfigFromLoop(spec.Loop, spec.Epochs, spec.BatchSize, spec.Seed)
}
