package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelbay-labs/modelbay-go/internal/platform/auditlog"
	"github.com/modelbay-labs/modelbay-go/internal/platform/auth"
	"github.com/modelbay-labs/modelbay-go/internal/platform/httpserver"
	"github.com/modelbay-labs/modelbay-go/internal/registry"
	"github.com/modelbay-labs/modelbay-go/internal/repo"
)

type registryAPI struct {
	logger    *slog.Logger
	registrar *registry.Registrar
	audit     func(ctx context.Context, event auditlog.Event)
}

func newRegistryAPI(logger *slog.Logger, registrar *registry.Registrar, audit func(ctx context.Context, event auditlog.Event)) *registryAPI {
	if audit == nil {
		audit = func(context.Context, auditlog.Event) {}
	}
	return &registryAPI{logger: logger, registrar: registrar, audit: audit}
}

func (api *registryAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /services/{service}/binding", api.handleGetBinding)
	mux.HandleFunc("POST /services/{service}/rollout", api.handleRollout)
	mux.HandleFunc("POST /services/{service}/rollback", api.handleRollback)
}

func (api *registryAPI) handleGetBinding(w http.ResponseWriter, r *http.Request) {
	binding, err := api.registrar.Binding(r.Context(), r.PathValue("service"))
	if errors.Is(err, repo.ErrNotFound) {
		api.writeError(w, r, http.StatusNotFound, "binding_not_found")
		return
	}
	if err != nil {
		api.logger.Error("get binding", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, binding)
}

type rolloutRequest struct {
	RunID string `json:"run_id"`
}

func (api *registryAPI) handleRollout(w http.ResponseWriter, r *http.Request) {
	var req rolloutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.RunID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}

	service := r.PathValue("service")
	binding, err := api.registrar.Promote(r.Context(), service, req.RunID, api.actor(r))
	if errors.Is(err, registry.ErrNotEligible) {
		api.writeErrorDetail(w, r, http.StatusConflict, "not_eligible", err.Error())
		return
	}
	if err != nil {
		api.logger.Error("promote", "service", service, "run_id", req.RunID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.auditEvent(r, "binding.rollout", service, map[string]any{
		"run_id":          binding.RunID,
		"previous_run_id": binding.PreviousRunID,
	})
	httpserver.WriteJSON(w, http.StatusOK, binding)
}

func (api *registryAPI) handleRollback(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	binding, err := api.registrar.Rollback(r.Context(), service, api.actor(r))
	if errors.Is(err, registry.ErrNoPriorBinding) {
		api.writeErrorDetail(w, r, http.StatusConflict, "no_prior_binding", err.Error())
		return
	}
	if err != nil {
		api.logger.Error("rollback", "service", service, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.auditEvent(r, "binding.rollback", service, map[string]any{"run_id": binding.RunID})
	httpserver.WriteJSON(w, http.StatusOK, binding)
}

func (api *registryAPI) actor(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.Subject
	}
	return "anonymous"
}

func (api *registryAPI) auditEvent(r *http.Request, action, resourceID string, payload map[string]any) {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	api.audit(r.Context(), auditlog.Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        api.actor(r),
		Action:       action,
		ResourceType: "service_binding",
		ResourceID:   resourceID,
		RequestID:    requestID,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
		Payload:      payload,
	})
}

func (api *registryAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	httpserver.WriteJSON(w, status, map[string]any{"error": code, "request_id": requestID})
}

func (api *registryAPI) writeErrorDetail(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	httpserver.WriteJSON(w, status, map[string]any{"error": code, "detail": detail, "request_id": requestID})
}
