package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/platform/auditlog"
	"github.com/modelbay-labs/modelbay-go/internal/platform/auth"
	"github.com/modelbay-labs/modelbay-go/internal/platform/httpserver"
	"github.com/modelbay-labs/modelbay-go/internal/repo"
	"github.com/modelbay-labs/modelbay-go/internal/selection"
)

const maxArtifactBytes = 64 << 20

// artifactStore is the slice of the object store the tracking API needs.
type artifactStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type trackingAPI struct {
	logger    *slog.Logger
	runs      repo.RunRepository
	artifacts artifactStore
	audit     func(ctx context.Context, event auditlog.Event)
}

func newTrackingAPI(logger *slog.Logger, runs repo.RunRepository, artifacts artifactStore, audit func(ctx context.Context, event auditlog.Event)) *trackingAPI {
	if audit == nil {
		audit = func(context.Context, auditlog.Event) {}
	}
	return &trackingAPI{logger: logger, runs: runs, artifacts: artifacts, audit: audit}
}

func (api *trackingAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /runs", api.handleCreateRun)
	mux.HandleFunc("GET /runs/{run_id}", api.handleGetRun)
	mux.HandleFunc("POST /runs/{run_id}/metrics", api.handleAppendMetrics)
	mux.HandleFunc("POST /runs/{run_id}/complete", api.handleCompleteRun)
	mux.HandleFunc("POST /runs/{run_id}/fail", api.handleFailRun)
	mux.HandleFunc("PUT /runs/{run_id}/artifact", api.handleUploadArtifact)
	mux.HandleFunc("GET /runs/{run_id}/artifact", api.handleDownloadArtifact)

	mux.HandleFunc("GET /experiments/{experiment}/runs", api.handleListExperimentRuns)
	mux.HandleFunc("GET /experiments/{experiment}/best-run", api.handleBestRun)
}

type createRunRequest struct {
	// RunID is optional; clients that drive training locally supply their
	// own so the record and the training loop agree on identity.
	RunID      string                 `json:"run_id,omitempty"`
	Experiment string                 `json:"experiment"`
	Params     domain.TrainLoopConfig `json:"params"`
	Resources  *domain.ResourceSpec   `json:"resources,omitempty"`
	DatasetLoc string                 `json:"dataset_loc"`
}

func (api *trackingAPI) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Experiment == "" {
		api.writeError(w, r, http.StatusBadRequest, "experiment_required")
		return
	}
	if err := req.Params.Validate(); err != nil {
		api.writeErrorDetail(w, r, http.StatusBadRequest, "invalid_params", err.Error())
		return
	}
	resources := domain.DefaultResourceSpec()
	if req.Resources != nil {
		resources = *req.Resources
	}
	if err := resources.Validate(); err != nil {
		api.writeErrorDetail(w, r, http.StatusBadRequest, "invalid_resources", err.Error())
		return
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	run := domain.Run{
		ID:         runID,
		Experiment: req.Experiment,
		Status:     domain.RunStatusRunning,
		Params:     req.Params,
		Resources:  resources,
		DatasetLoc: req.DatasetLoc,
		CreatedAt:  time.Now().UTC(),
	}
	if err := api.runs.CreateRun(r.Context(), run); err != nil {
		api.logger.Error("create run", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.auditEvent(r, "run.create", run.ID, map[string]any{"experiment": run.Experiment})
	httpserver.WriteJSON(w, http.StatusCreated, run)
}

func (api *trackingAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := api.runs.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		api.writeRepoError(w, r, err, "run_not_found")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, run)
}

func (api *trackingAPI) handleAppendMetrics(w http.ResponseWriter, r *http.Request) {
	var snapshot domain.MetricSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(snapshot.Values) == 0 {
		api.writeError(w, r, http.StatusBadRequest, "metrics_required")
		return
	}
	if snapshot.RecordedAt.IsZero() {
		snapshot.RecordedAt = time.Now().UTC()
	}
	if err := api.runs.AppendMetrics(r.Context(), r.PathValue("run_id"), snapshot); err != nil {
		api.writeRepoError(w, r, err, "run_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeRunRequest struct {
	ArtifactKey string `json:"artifact_key"`
}

func (api *trackingAPI) handleCompleteRun(w http.ResponseWriter, r *http.Request) {
	var req completeRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.ArtifactKey == "" {
		api.writeError(w, r, http.StatusBadRequest, "artifact_key_required")
		return
	}
	runID := r.PathValue("run_id")
	if err := api.runs.CompleteRun(r.Context(), runID, req.ArtifactKey, time.Now().UTC()); err != nil {
		api.writeRepoError(w, r, err, "run_not_found")
		return
	}
	api.auditEvent(r, "run.complete", runID, map[string]any{"artifact_key": req.ArtifactKey})
	run, err := api.runs.GetRun(r.Context(), runID)
	if err != nil {
		api.writeRepoError(w, r, err, "run_not_found")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, run)
}

type failRunRequest struct {
	Reason string `json:"reason"`
}

func (api *trackingAPI) handleFailRun(w http.ResponseWriter, r *http.Request) {
	var req failRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	runID := r.PathValue("run_id")
	if err := api.runs.FailRun(r.Context(), runID, req.Reason, time.Now().UTC()); err != nil {
		api.writeRepoError(w, r, err, "run_not_found")
		return
	}
	api.auditEvent(r, "run.fail", runID, map[string]any{"reason": req.Reason})
	run, err := api.runs.GetRun(r.Context(), runID)
	if err != nil {
		api.writeRepoError(w, r, err, "run_not_found")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, run)
}

func (api *trackingAPI) handleUploadArtifact(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	run, err := api.runs.GetRun(r.Context(), runID)
	if err != nil {
		api.writeRepoError(w, r, err, "run_not_found")
		return
	}
	if run.Status != domain.RunStatusRunning {
		api.writeError(w, r, http.StatusConflict, "run_terminal")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxArtifactBytes+1))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "read_body_failed")
		return
	}
	if len(data) == 0 {
		api.writeError(w, r, http.StatusBadRequest, "empty_artifact")
		return
	}
	if len(data) > maxArtifactBytes {
		api.writeError(w, r, http.StatusRequestEntityTooLarge, "artifact_too_large")
		return
	}

	key := "runs/" + runID + "/model.json"
	if err := api.artifacts.Put(r.Context(), key, data); err != nil {
		api.logger.Error("store artifact", "run_id", runID, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "artifact_store_unavailable")
		return
	}
	api.auditEvent(r, "run.artifact_upload", runID, map[string]any{"artifact_key": key, "size_bytes": len(data)})
	httpserver.WriteJSON(w, http.StatusCreated, map[string]string{"artifact_key": key})
}

func (api *trackingAPI) handleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	run, err := api.runs.GetRun(r.Context(), runID)
	if err != nil {
		api.writeRepoError(w, r, err, "run_not_found")
		return
	}
	if run.ArtifactKey == "" {
		api.writeError(w, r, http.StatusNotFound, "artifact_not_found")
		return
	}
	rc, err := api.artifacts.Open(r.Context(), run.ArtifactKey)
	if err != nil {
		api.logger.Error("open artifact", "run_id", runID, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "artifact_store_unavailable")
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/json")
	if _, err := io.Copy(w, rc); err != nil {
		api.logger.Error("stream artifact", "run_id", runID, "error", err)
	}
}

func (api *trackingAPI) handleListExperimentRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.RunFilter{Experiment: r.PathValue("experiment")}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.RunStatus(raw)
		if !status.Valid() {
			api.writeError(w, r, http.StatusBadRequest, "invalid_status")
			return
		}
		filter.Status = status
	}
	runs, err := api.runs.ListRuns(r.Context(), filter)
	if err != nil {
		api.logger.Error("list runs", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (api *trackingAPI) handleBestRun(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		api.writeError(w, r, http.StatusBadRequest, "metric_required")
		return
	}
	direction, err := selection.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		api.writeErrorDetail(w, r, http.StatusBadRequest, "invalid_direction", err.Error())
		return
	}

	runs, err := api.runs.ListRuns(r.Context(), repo.RunFilter{Experiment: r.PathValue("experiment")})
	if err != nil {
		api.logger.Error("list runs", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	best, err := selection.BestRun(runs, metric, direction)
	if errors.Is(err, selection.ErrNotFound) {
		api.writeErrorDetail(w, r, http.StatusNotFound, "no_eligible_run", err.Error())
		return
	}
	if err != nil {
		api.logger.Error("select best run", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, best)
}

func (api *trackingAPI) auditEvent(r *http.Request, action, resourceID string, payload map[string]any) {
	actor := "anonymous"
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		actor = identity.Subject
	}
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	api.audit(r.Context(), auditlog.Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        actor,
		Action:       action,
		ResourceType: "training_run",
		ResourceID:   resourceID,
		RequestID:    requestID,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
		Payload:      payload,
	})
}

func (api *trackingAPI) writeRepoError(w http.ResponseWriter, r *http.Request, err error, notFoundCode string) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, notFoundCode)
	case errors.Is(err, repo.ErrConflict):
		api.writeErrorDetail(w, r, http.StatusConflict, "conflict", err.Error())
	default:
		api.logger.Error("repository error", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func (api *trackingAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	httpserver.WriteJSON(w, status, map[string]any{"error": code, "request_id": requestID})
}

func (api *trackingAPI) writeErrorDetail(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	httpserver.WriteJSON(w, status, map[string]any{"error": code, "detail": detail, "request_id": requestID})
}
