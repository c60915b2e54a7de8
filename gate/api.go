package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/modelbay-labs/modelbay-go/internal/dataset"
	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/evaluation"
	"github.com/modelbay-labs/modelbay-go/internal/platform/auditlog"
	"github.com/modelbay-labs/modelbay-go/internal/platform/auth"
	"github.com/modelbay-labs/modelbay-go/internal/platform/httpserver"
	"github.com/modelbay-labs/modelbay-go/internal/repo"
	"github.com/modelbay-labs/modelbay-go/internal/textclf"
)

// artifactFetcher retrieves a trained model's raw bytes by artifact key.
type artifactFetcher func(ctx context.Context, key string) ([]byte, error)

// reportSink archives the report document; a nil sink skips archiving.
type reportSink func(ctx context.Context, key string, data []byte) error

type gateAPI struct {
	logger      *slog.Logger
	runs        repo.RunRepository
	reports     repo.ReportRepository
	fetch       artifactFetcher
	openDataset dataset.Opener
	sink        reportSink
	audit       func(ctx context.Context, event auditlog.Event)
}

func newGateAPI(logger *slog.Logger, runs repo.RunRepository, reports repo.ReportRepository, fetch artifactFetcher, openDataset dataset.Opener, sink reportSink, audit func(ctx context.Context, event auditlog.Event)) *gateAPI {
	if audit == nil {
		audit = func(context.Context, auditlog.Event) {}
	}
	return &gateAPI{
		logger:      logger,
		runs:        runs,
		reports:     reports,
		fetch:       fetch,
		openDataset: openDataset,
		sink:        sink,
		audit:       audit,
	}
}

func (api *gateAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /evaluations", api.handleCreateEvaluation)
	mux.HandleFunc("GET /evaluations/{report_id}", api.handleGetEvaluation)
	mux.HandleFunc("GET /runs/{run_id}/evaluations", api.handleListRunEvaluations)
	mux.HandleFunc("GET /runs/{run_id}/evaluations/latest", api.handleLatestRunEvaluation)
}

type createEvaluationRequest struct {
	RunID      string             `json:"run_id"`
	DatasetLoc string             `json:"dataset_loc"`
	Thresholds map[string]float64 `json:"thresholds"`
}

func (api *gateAPI) handleCreateEvaluation(w http.ResponseWriter, r *http.Request) {
	var req createEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.RunID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}
	if req.DatasetLoc == "" {
		api.writeError(w, r, http.StatusBadRequest, "dataset_loc_required")
		return
	}

	run, err := api.runs.GetRun(r.Context(), req.RunID)
	if errors.Is(err, repo.ErrNotFound) {
		api.writeError(w, r, http.StatusNotFound, "run_not_found")
		return
	}
	if err != nil {
		api.logger.Error("get run", "run_id", req.RunID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	if run.Status != domain.RunStatusCompleted || run.ArtifactKey == "" {
		api.writeErrorDetail(w, r, http.StatusConflict, "run_not_evaluable", "run must be COMPLETED with an artifact")
		return
	}

	raw, err := api.fetch(r.Context(), run.ArtifactKey)
	if err != nil {
		api.logger.Error("fetch artifact", "artifact_key", run.ArtifactKey, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "artifact_unavailable")
		return
	}
	model, err := textclf.DecodeArtifact(raw)
	if err != nil {
		api.logger.Error("decode artifact", "artifact_key", run.ArtifactKey, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "artifact_unavailable")
		return
	}

	records, err := dataset.Load(r.Context(), api.openDataset, req.DatasetLoc)
	if err != nil {
		api.writeErrorDetail(w, r, http.StatusUnprocessableEntity, "dataset_unreachable", err.Error())
		return
	}

	predictor := evaluation.PredictorFunc(func(title, description string) (string, error) {
		pred, err := model.Predict(title, description)
		if err != nil {
			return "", err
		}
		return pred.Label, nil
	})
	result, err := evaluation.Evaluate(r.Context(), records, predictor, req.Thresholds)
	if err != nil {
		api.writeErrorDetail(w, r, http.StatusUnprocessableEntity, "evaluation_failed", err.Error())
		return
	}

	actor := "anonymous"
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		actor = identity.Subject
	}
	report := domain.EvaluationReport{
		ID:          uuid.NewString(),
		RunID:       run.ID,
		DatasetLoc:  req.DatasetLoc,
		EvaluatedAt: time.Now().UTC(),
		EvaluatedBy: actor,
		Overall:     result.Overall,
		PerClass:    result.PerClass,
		Slices:      result.Slices,
		Thresholds:  req.Thresholds,
		Passed:      result.Passed,
		Failures:    result.Failures,
	}

	if api.sink != nil {
		key := "evaluations/" + run.ID + "/" + report.ID + ".json"
		doc, err := json.Marshal(report)
		if err == nil {
			err = api.sink(r.Context(), key, doc)
		}
		if err != nil {
			api.logger.Error("archive report", "report_id", report.ID, "error", err)
		} else {
			report.ObjectKey = key
		}
	}

	if err := api.reports.CreateReport(r.Context(), report); err != nil {
		api.logger.Error("create report", "report_id", report.ID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.auditEvent(r, "evaluation.create", report.ID, map[string]any{
		"run_id": run.ID,
		"passed": report.Passed,
	})
	httpserver.WriteJSON(w, http.StatusCreated, report)
}

func (api *gateAPI) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	report, err := api.reports.GetReport(r.Context(), r.PathValue("report_id"))
	if errors.Is(err, repo.ErrNotFound) {
		api.writeError(w, r, http.StatusNotFound, "report_not_found")
		return
	}
	if err != nil {
		api.logger.Error("get report", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, report)
}

func (api *gateAPI) handleListRunEvaluations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.writeError(w, r, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = n
	}
	reports, err := api.reports.ListReportsForRun(r.Context(), r.PathValue("run_id"), limit)
	if err != nil {
		api.logger.Error("list reports", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (api *gateAPI) handleLatestRunEvaluation(w http.ResponseWriter, r *http.Request) {
	report, err := api.reports.LatestReportForRun(r.Context(), r.PathValue("run_id"))
	if errors.Is(err, repo.ErrNotFound) {
		api.writeError(w, r, http.StatusNotFound, "report_not_found")
		return
	}
	if err != nil {
		api.logger.Error("latest report", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, report)
}

func (api *gateAPI) auditEvent(r *http.Request, action, resourceID string, payload map[string]any) {
	actor := "anonymous"
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		actor = identity.Subject
	}
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	api.audit(r.Context(), auditlog.Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        actor,
		Action:       action,
		ResourceType: "evaluation_report",
		ResourceID:   resourceID,
		RequestID:    requestID,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
		Payload:      payload,
	})
}

func (api *gateAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	httpserver.WriteJSON(w, status, map[string]any{"error": code, "request_id": requestID})
}

func (api *gateAPI) writeErrorDetail(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	httpserver.WriteJSON(w, status, map[string]any{"error": code, "detail": detail, "request_id": requestID})
}
