package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
)

func TestTracking_RunLifecycleRequests(t *testing.T) {
	var seen []string
	var authHeader string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /runs", func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		var req struct {
			RunID      string `json:"run_id"`
			Experiment string `json:"experiment"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode create run: %v", err)
		}
		if req.RunID != "run-1" || req.Experiment != "tagifai" {
			t.Errorf("create run body=%+v", req)
		}
		seen = append(seen, "create")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(domain.Run{ID: req.RunID})
	})
	mux.HandleFunc("POST /runs/run-1/metrics", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, "metrics")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT /runs/run-1/artifact", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, "artifact")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"artifact_key":"runs/run-1/model.json"}`))
	})
	mux.HandleFunc("POST /runs/run-1/complete", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ArtifactKey string `json:"artifact_key"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ArtifactKey != "runs/run-1/model.json" {
			t.Errorf("complete body=%+v", req)
		}
		seen = append(seen, "complete")
		_ = json.NewEncoder(w).Encode(domain.Run{ID: "run-1", Status: domain.RunStatusCompleted})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := NewTracking(srv.URL, "secret")
	if err := c.CreateRun(ctx, domain.Run{ID: "run-1", Experiment: "tagifai"}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := c.AppendMetrics(ctx, "run-1", domain.MetricSnapshot{Epoch: 0, Values: map[string]float64{"val_loss": 1}}); err != nil {
		t.Fatalf("AppendMetrics: %v", err)
	}
	key, err := c.PutArtifact(ctx, "run-1", []byte(`{}`))
	if err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	if key != "runs/run-1/model.json" {
		t.Fatalf("artifact key=%q", key)
	}
	if err := c.CompleteRun(ctx, "run-1", key, time.Now()); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	want := []string{"create", "metrics", "artifact", "complete"}
	if len(seen) != len(want) {
		t.Fatalf("requests=%v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("requests=%v, want %v", seen, want)
		}
	}
	if authHeader != "Bearer secret" {
		t.Fatalf("authorization header=%q", authHeader)
	}
}

func TestAPIError_Parsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"not_eligible","detail":"run run-1 has never been evaluated"}`))
	}))
	defer srv.Close()

	c := NewRegistry(srv.URL, "")
	_, err := c.Rollout(context.Background(), "predictor", "run-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v, want APIError", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "not_eligible" {
		t.Fatalf("apiErr=%+v", apiErr)
	}
	if apiErr.Detail == "" {
		t.Fatalf("detail lost: %+v", apiErr)
	}
}

func TestServing_Predict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"prediction":["computer-vision"],"probabilities":{"computer-vision":0.8,"other":0.2}}]`))
	}))
	defer srv.Close()

	c := NewServing(srv.URL, "")
	pred, err := c.Predict(context.Background(), "YOLO", "object detection")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(pred.Prediction) != 1 || pred.Prediction[0] != "computer-vision" {
		t.Fatalf("prediction=%+v", pred)
	}
	if pred.Probabilities["computer-vision"] != 0.8 {
		t.Fatalf("probabilities=%+v", pred.Probabilities)
	}
}
