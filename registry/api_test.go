package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/registry"
	"github.com/modelbay-labs/modelbay-go/internal/repo/memory"
)

type registryHarness struct {
	runs    *memory.RunStore
	reports *memory.ReportStore
	srv     *httptest.Server
}

func newRegistryHarness(t *testing.T) *registryHarness {
	t.Helper()
	h := &registryHarness{runs: memory.NewRunStore(), reports: memory.NewReportStore()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registrar := registry.NewRegistrar(h.runs, h.reports, memory.NewPromotionStore(), logger)
	api := newRegistryAPI(logger, registrar, nil)
	mux := http.NewServeMux()
	api.register(mux)
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *registryHarness) addEligibleRun(t *testing.T, runID string) {
	t.Helper()
	ctx := context.Background()
	if err := h.runs.CreateRun(ctx, domain.Run{ID: runID, Experiment: "tagifai", Status: domain.RunStatusRunning, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := h.runs.CompleteRun(ctx, runID, "runs/"+runID+"/model.json", time.Now().UTC()); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	if err := h.reports.CreateReport(ctx, domain.EvaluationReport{
		ID:          "report-" + runID,
		RunID:       runID,
		EvaluatedAt: time.Now().UTC(),
		Passed:      true,
	}); err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
}

func (h *registryHarness) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader = bytes.NewReader([]byte("{}"))
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	resp, err := http.Post(h.srv.URL+path, "application/json", reader)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeBinding(t *testing.T, resp *http.Response) domain.Promotion {
	t.Helper()
	defer resp.Body.Close()
	var binding domain.Promotion
	if err := json.NewDecoder(resp.Body).Decode(&binding); err != nil {
		t.Fatalf("decode binding: %v", err)
	}
	return binding
}

func TestRolloutAndBinding(t *testing.T) {
	h := newRegistryHarness(t)
	h.addEligibleRun(t, "run-a")

	resp := h.post(t, "/services/predictor/rollout", rolloutRequest{RunID: "run-a"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rollout status=%d", resp.StatusCode)
	}
	binding := decodeBinding(t, resp)
	if binding.RunID != "run-a" || binding.Service != "predictor" {
		t.Fatalf("binding=%+v", binding)
	}

	get, err := http.Get(h.srv.URL + "/services/predictor/binding")
	if err != nil {
		t.Fatalf("GET binding: %v", err)
	}
	got := decodeBinding(t, get)
	if got.RunID != "run-a" {
		t.Fatalf("stored binding=%+v", got)
	}
}

func TestRollout_NotEligible(t *testing.T) {
	h := newRegistryHarness(t)

	resp := h.post(t, "/services/predictor/rollout", rolloutRequest{RunID: "run-missing"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status=%d, want 409", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error != "not_eligible" {
		t.Fatalf("error=%q, want not_eligible", body.Error)
	}
}

func TestRolloutThenRollback(t *testing.T) {
	h := newRegistryHarness(t)
	h.addEligibleRun(t, "run-a")
	h.addEligibleRun(t, "run-b")

	resp := h.post(t, "/services/predictor/rollout", rolloutRequest{RunID: "run-a"})
	resp.Body.Close()
	resp = h.post(t, "/services/predictor/rollout", rolloutRequest{RunID: "run-b"})
	resp.Body.Close()

	binding := decodeBinding(t, h.post(t, "/services/predictor/rollback", nil))
	if binding.RunID != "run-a" {
		t.Fatalf("rollback bound %q, want run-a", binding.RunID)
	}

	resp = h.post(t, "/services/predictor/rollback", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second rollback status=%d, want 409", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error != "no_prior_binding" {
		t.Fatalf("error=%q, want no_prior_binding", body.Error)
	}
}

func TestGetBinding_NotFound(t *testing.T) {
	h := newRegistryHarness(t)
	resp, err := http.Get(h.srv.URL + "/services/predictor/binding")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", resp.StatusCode)
	}
}

func TestRollout_MissingRunID(t *testing.T) {
	h := newRegistryHarness(t)
	resp := h.post(t, "/services/predictor/rollout", rolloutRequest{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", resp.StatusCode)
	}
}
