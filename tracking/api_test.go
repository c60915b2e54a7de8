package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/repo/memory"
)

type fakeArtifacts struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeArtifacts() *fakeArtifacts { return &fakeArtifacts{data: map[string][]byte{}} }

func (s *fakeArtifacts) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeArtifacts) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type trackingHarness struct {
	runs      *memory.RunStore
	artifacts *fakeArtifacts
	srv       *httptest.Server
}

func newTrackingHarness(t *testing.T) *trackingHarness {
	t.Helper()
	h := &trackingHarness{runs: memory.NewRunStore(), artifacts: newFakeArtifacts()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := newTrackingAPI(logger, h.runs, h.artifacts, nil)
	mux := http.NewServeMux()
	api.register(mux)
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *trackingHarness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeRun(t *testing.T, resp *http.Response) domain.Run {
	t.Helper()
	defer resp.Body.Close()
	var run domain.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	return run
}

func validParams() domain.TrainLoopConfig {
	return domain.TrainLoopConfig{DropoutP: 0.5, LR: 1e-4, LRFactor: 0.8, LRPatience: 3}
}

func (h *trackingHarness) createRun(t *testing.T, experiment string) domain.Run {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/runs", createRunRequest{
		Experiment: experiment,
		Params:     validParams(),
		DatasetLoc: "https://example.com/dataset.csv",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create run status=%d", resp.StatusCode)
	}
	return decodeRun(t, resp)
}

func TestCreateAndGetRun(t *testing.T) {
	h := newTrackingHarness(t)
	run := h.createRun(t, "tagifai")
	if run.ID == "" || run.Status != domain.RunStatusRunning {
		t.Fatalf("created run=%+v", run)
	}
	if run.Resources.NumWorkers != 1 {
		t.Fatalf("resources not defaulted: %+v", run.Resources)
	}

	got := decodeRun(t, h.do(t, http.MethodGet, "/runs/"+run.ID, nil))
	if got.ID != run.ID || got.Experiment != "tagifai" {
		t.Fatalf("get run=%+v", got)
	}
}

func TestCreateRun_Validation(t *testing.T) {
	h := newTrackingHarness(t)

	resp := h.do(t, http.MethodPost, "/runs", createRunRequest{Params: validParams()})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing experiment status=%d, want 400", resp.StatusCode)
	}

	bad := createRunRequest{Experiment: "tagifai", Params: validParams()}
	bad.Params.LR = -1
	resp = h.do(t, http.MethodPost, "/runs", bad)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad params status=%d, want 400", resp.StatusCode)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	h := newTrackingHarness(t)
	resp := h.do(t, http.MethodGet, "/runs/nope", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", resp.StatusCode)
	}
}

func TestRunLifecycle_MetricsAndComplete(t *testing.T) {
	h := newTrackingHarness(t)
	run := h.createRun(t, "tagifai")

	for epoch := 0; epoch < 3; epoch++ {
		resp := h.do(t, http.MethodPost, "/runs/"+run.ID+"/metrics", domain.MetricSnapshot{
			Epoch:  epoch,
			Values: map[string]float64{"train_loss": 1.0 - float64(epoch)*0.1, "val_loss": 1.1 - float64(epoch)*0.1},
		})
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("append metrics epoch %d status=%d", epoch, resp.StatusCode)
		}
	}

	resp := h.do(t, http.MethodPut, "/runs/"+run.ID+"/artifact", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty artifact status=%d, want 400", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPut, h.srv.URL+"/runs/"+run.ID+"/artifact", strings.NewReader(`{"schema":"x"}`))
	upload, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload artifact: %v", err)
	}
	var uploaded struct {
		ArtifactKey string `json:"artifact_key"`
	}
	if err := json.NewDecoder(upload.Body).Decode(&uploaded); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	upload.Body.Close()
	if uploaded.ArtifactKey == "" {
		t.Fatalf("no artifact key returned")
	}

	completed := decodeRun(t, h.do(t, http.MethodPost, "/runs/"+run.ID+"/complete", completeRunRequest{ArtifactKey: uploaded.ArtifactKey}))
	if completed.Status != domain.RunStatusCompleted || completed.ArtifactKey != uploaded.ArtifactKey {
		t.Fatalf("completed run=%+v", completed)
	}
	if len(completed.Metrics) != 3 {
		t.Fatalf("metric snapshots=%d, want 3", len(completed.Metrics))
	}

	// Terminal runs freeze their metric history.
	resp = h.do(t, http.MethodPost, "/runs/"+run.ID+"/metrics", domain.MetricSnapshot{
		Epoch:  3,
		Values: map[string]float64{"train_loss": 0.1},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("append to terminal run status=%d, want 409", resp.StatusCode)
	}

	// And refuse a second transition.
	resp = h.do(t, http.MethodPost, "/runs/"+run.ID+"/fail", failRunRequest{Reason: "late"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("fail after complete status=%d, want 409", resp.StatusCode)
	}
}

func TestFailRun_PreservesMetrics(t *testing.T) {
	h := newTrackingHarness(t)
	run := h.createRun(t, "tagifai")

	resp := h.do(t, http.MethodPost, "/runs/"+run.ID+"/metrics", domain.MetricSnapshot{
		Epoch:  0,
		Values: map[string]float64{"train_loss": 0.9},
	})
	resp.Body.Close()

	failed := decodeRun(t, h.do(t, http.MethodPost, "/runs/"+run.ID+"/fail", failRunRequest{Reason: "worker oom"}))
	if failed.Status != domain.RunStatusFailed || failed.FailReason != "worker oom" {
		t.Fatalf("failed run=%+v", failed)
	}
	if len(failed.Metrics) != 1 {
		t.Fatalf("metric history lost: %d snapshots", len(failed.Metrics))
	}
	if failed.EndedAt == nil {
		t.Fatalf("failed run has no ended_at")
	}
}

func TestArtifactDownload(t *testing.T) {
	h := newTrackingHarness(t)
	run := h.createRun(t, "tagifai")

	req, _ := http.NewRequest(http.MethodPut, h.srv.URL+"/runs/"+run.ID+"/artifact", strings.NewReader(`{"weights":[1,2]}`))
	upload, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	var uploaded struct {
		ArtifactKey string `json:"artifact_key"`
	}
	if err := json.NewDecoder(upload.Body).Decode(&uploaded); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	upload.Body.Close()

	resp := h.do(t, http.MethodPost, "/runs/"+run.ID+"/complete", completeRunRequest{ArtifactKey: uploaded.ArtifactKey})
	resp.Body.Close()

	download := h.do(t, http.MethodGet, "/runs/"+run.ID+"/artifact", nil)
	defer download.Body.Close()
	if download.StatusCode != http.StatusOK {
		t.Fatalf("download status=%d", download.StatusCode)
	}
	raw, _ := io.ReadAll(download.Body)
	if string(raw) != `{"weights":[1,2]}` {
		t.Fatalf("downloaded artifact=%q", raw)
	}
}

func TestListExperimentRuns(t *testing.T) {
	h := newTrackingHarness(t)
	a := h.createRun(t, "tagifai")
	h.createRun(t, "tagifai")
	h.createRun(t, "other-exp")

	resp := h.do(t, http.MethodGet, "/experiments/tagifai/runs", nil)
	defer resp.Body.Close()
	var out struct {
		Runs []domain.Run `json:"runs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(out.Runs) != 2 {
		t.Fatalf("runs=%d, want 2", len(out.Runs))
	}
	if out.Runs[0].ID != a.ID && out.Runs[1].ID != a.ID {
		t.Fatalf("created run missing from list")
	}
}

func TestBestRunEndpoint(t *testing.T) {
	h := newTrackingHarness(t)
	ctx := context.Background()

	worse := h.createRun(t, "tagifai")
	better := h.createRun(t, "tagifai")
	running := h.createRun(t, "tagifai")

	record := func(runID string, valLoss float64) {
		if err := h.runs.AppendMetrics(ctx, runID, domain.MetricSnapshot{
			Epoch:      0,
			RecordedAt: time.Now().UTC(),
			Values:     map[string]float64{"val_loss": valLoss},
		}); err != nil {
			t.Fatalf("AppendMetrics: %v", err)
		}
	}
	record(worse.ID, 0.9)
	record(better.ID, 0.4)
	record(running.ID, 0.1)

	for _, id := range []string{worse.ID, better.ID} {
		if err := h.runs.CompleteRun(ctx, id, "runs/"+id+"/model.json", time.Now().UTC()); err != nil {
			t.Fatalf("CompleteRun: %v", err)
		}
	}

	resp := h.do(t, http.MethodGet, "/experiments/tagifai/best-run?metric=val_loss&direction=ASC", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("best-run status=%d", resp.StatusCode)
	}
	best := decodeRun(t, resp)
	if best.ID != better.ID {
		t.Fatalf("best run=%s, want %s (RUNNING runs are ineligible)", best.ID, better.ID)
	}

	resp = h.do(t, http.MethodGet, "/experiments/tagifai/best-run?metric=val_loss&direction=UP", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad direction status=%d, want 400", resp.StatusCode)
	}

	resp = h.do(t, http.MethodGet, "/experiments/tagifai/best-run?metric=accuracy&direction=DESC", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("absent metric status=%d, want 404", resp.StatusCode)
	}

	resp = h.do(t, http.MethodGet, "/experiments/empty/best-run?metric=val_loss&direction=ASC", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("empty experiment status=%d, want 404", resp.StatusCode)
	}
}
