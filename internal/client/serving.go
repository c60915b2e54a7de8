package client

import (
	"context"
	"fmt"
)

// Serving talks to a prediction endpoint.
type Serving struct {
	rest
}

func NewServing(baseURL, token string) *Serving {
	return &Serving{rest: newREST(baseURL, token)}
}

type Prediction struct {
	Prediction    []string           `json:"prediction"`
	Probabilities map[string]float64 `json:"probabilities"`
}

func (c *Serving) Predict(ctx context.Context, title, description string) (Prediction, error) {
	in := map[string]string{"title": title, "description": description}
	var out []Prediction
	if err := c.postJSON(ctx, "/", in, &out); err != nil {
		return Prediction{}, err
	}
	if len(out) == 0 {
		return Prediction{}, fmt.Errorf("empty prediction response")
	}
	return out[0], nil
}

type ModelInfo struct {
	Service string `json:"service"`
	RunID   string `json:"run_id"`
}

func (c *Serving) Model(ctx context.Context) (ModelInfo, error) {
	var info ModelInfo
	err := c.getJSON(ctx, "/model", &info)
	return info, err
}
