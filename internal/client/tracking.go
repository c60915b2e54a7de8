package client

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

// Tracking talks to the tracking service. It satisfies the training
// orchestrator's recorder and artifact sink, so a local training loop can
// stream its lifecycle into a remote store.
type Tracking struct {
	rest
}

func NewTracking(baseURL, token string) *Tracking {
	return &Tracking{rest: newREST(baseURL, token)}
}

// CreateRun registers a run under the client-chosen ID.
func (c *Tracking) CreateRun(ctx context.Context, run domain.Run) error {
	in := map[string]any{
		"run_id":      run.ID,
		"experiment":  run.Experiment,
		"params":      run.Params,
		"resources":   run.Resources,
		"dataset_loc": run.DatasetLoc,
	}
	return c.postJSON(ctx, "/runs", in, nil)
}

func (c *Tracking) GetRun(ctx context.Context, id string) (domain.Run, error) {
	var run domain.Run
	err := c.getJSON(ctx, "/runs/"+pathEscape(id), &run)
	return run, err
}

func (c *Tracking) AppendMetrics(ctx context.Context, runID string, snapshot domain.MetricSnapshot) error {
	return c.postJSON(ctx, "/runs/"+pathEscape(runID)+"/metrics", snapshot, nil)
}

func (c *Tracking) CompleteRun(ctx context.Context, runID string, artifactKey string, _ time.Time) error {
	return c.postJSON(ctx, "/runs/"+pathEscape(runID)+"/complete", map[string]string{"artifact_key": artifactKey}, nil)
}

func (c *Tracking) FailRun(ctx context.Context, runID string, reason string, _ time.Time) error {
	return c.postJSON(ctx, "/runs/"+pathEscape(runID)+"/fail", map[string]string{"reason": reason}, nil)
}

// PutArtifact uploads model bytes and returns the server-assigned key.
func (c *Tracking) PutArtifact(ctx context.Context, runID string, data []byte) (string, error) {
	body, err := c.do(ctx, http.MethodPut, "/runs/"+pathEscape(runID)+"/artifact", bytes.NewReader(data), "application/json")
	if err != nil {
		return "", err
	}
	var out struct {
		ArtifactKey string `json:"artifact_key"`
	}
	if err := decodeJSON(body, &out); err != nil {
		return "", err
	}
	return out.ArtifactKey, nil
}

func (c *Tracking) GetArtifact(ctx context.Context, runID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/runs/"+pathEscape(runID)+"/artifact", nil, "")
}

func (c *Tracking) ListExperimentRuns(ctx context.Context, experiment string) ([]domain.Run, error) {
	var out struct {
		Runs []domain.Run `json:"runs"`
	}
	err := c.getJSON(ctx, "/experiments/"+pathEscape(experiment)+"/runs", &out)
	return out.Runs, err
}

func (c *Tracking) BestRun(ctx context.Context, experiment, metric, direction string) (domain.Run, error) {
	var run domain.Run
	path := "/experiments/" + pathEscape(experiment) + "/best-run?metric=" + queryEscape(metric) + "&direction=" + queryEscape(direction)
	err := c.getJSON(ctx, path, &run)
	return run, err
}
