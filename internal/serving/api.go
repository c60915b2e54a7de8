package serving

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelbay-labs/modelbay-go/internal/platform/httpserver"
)

type predictRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type predictResponse struct {
	Prediction    []string           `json:"prediction"`
	Probabilities map[string]float64 `json:"probabilities"`
}

type modelInfo struct {
	Service string `json:"service"`
	RunID   string `json:"run_id"`
}

// Routes mounts the prediction API on a mux: POST / for predictions and
// GET /model for the identity of the resident model.
func Routes(mux *http.ServeMux, service string, holder *Holder, log *slog.Logger) {
	mux.HandleFunc("POST /{$}", predictHandler(holder, log))
	mux.HandleFunc("GET /model", func(w http.ResponseWriter, r *http.Request) {
		runID, _, ok := holder.Current()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "model_unavailable", "no model loaded")
			return
		}
		httpserver.WriteJSON(w, http.StatusOK, modelInfo{Service: service, RunID: runID})
	})
}

func predictHandler(holder *Holder, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON with title and description")
			return
		}
		if req.Title == "" && req.Description == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "title or description is required")
			return
		}

		_, model, ok := holder.Current()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "model_unavailable", "no model loaded")
			return
		}
		pred, err := model.Predict(req.Title, req.Description)
		if err != nil {
			log.Error("predict", "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "prediction failed")
			return
		}
		httpserver.WriteJSON(w, http.StatusOK, []predictResponse{{
			Prediction:    []string{pred.Label},
			Probabilities: pred.Probabilities,
		}})
	}
}

// ReadyCheck reports ready once a model is resident.
func ReadyCheck(holder *Holder) func() error {
	return func() error {
		if _, _, ok := holder.Current(); !ok {
			return errors.New("no model loaded")
		}
		return nil
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	httpserver.WriteJSON(w, status, map[string]string{"error": code, "message": message})
}
