package client

import (
	"context"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

// Gate talks to the evaluation gate service.
type Gate struct {
	rest
}

func NewGate(baseURL, token string) *Gate {
	return &Gate{rest: newREST(baseURL, token)}
}

type EvaluateRequest struct {
	RunID      string             `json:"run_id"`
	DatasetLoc string             `json:"dataset_loc"`
	Thresholds map[string]float64 `json:"thresholds,omitempty"`
}

func (c *Gate) Evaluate(ctx context.Context, req EvaluateRequest) (domain.EvaluationReport, error) {
	var report domain.EvaluationReport
	err := c.postJSON(ctx, "/evaluations", req, &report)
	return report, err
}

func (c *Gate) Report(ctx context.Context, reportID string) (domain.EvaluationReport, error) {
	var report domain.EvaluationReport
	err := c.getJSON(ctx, "/evaluations/"+pathEscape(reportID), &report)
	return report, err
}

func (c *Gate) LatestReport(ctx context.Context, runID string) (domain.EvaluationReport, error) {
	var report domain.EvaluationReport
	err := c.getJSON(ctx, "/runs/"+pathEscape(runID)+"/evaluations/latest", &report)
	return report, err
}
