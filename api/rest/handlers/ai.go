package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"qc-inspector/core/inference"
	"qc-inspector/core/models"
	"qc-inspector/core/orchestrator"
	"qc-inspector/core/registry"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AIHandler handles model lifecycle and prediction HTTP requests
type AIHandler struct {
	orch     *orchestrator.Orchestrator
	registry *registry.Registry
	router   *inference.Router
	log      *zap.SugaredLogger
}

// NewAIHandler creates a new AI handler
func NewAIHandler(orch *orchestrator.Orchestrator, reg *registry.Registry, router *inference.Router, log *zap.SugaredLogger) *AIHandler {
	return &AIHandler{orch: orch, registry: reg, router: router, log: log}
}

// TrainRequest represents the request to start training
type TrainRequest struct {
	ModelType string `json:"model_type"`
}

// Train handles POST /api/train. Training runs in the background; the
// response only acknowledges the start.
func (h *AIHandler) Train(w http.ResponseWriter, r *http.Request) {
	var req TrainRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	mt, err := models.ParseModelType(req.ModelType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
		return
	}

	// Detached context: the run outlives this request.
	err = h.orch.TrainAsync(context.Background(), mt)
	if err != nil {
		var insufficient *models.InsufficientSamplesError
		switch {
		case errors.Is(err, models.ErrTrainingInProgress):
			writeJSON(w, http.StatusConflict, map[string]string{"status": "error", "message": "Training already in progress"})
		case errors.As(err, &insufficient):
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": insufficient.Error()})
		default:
			h.log.Errorw("failed to start training", "model_type", mt, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "started",
		"message": "Training started in background",
	})
}

// TrainingStatus handles GET /api/training-status
func (h *AIHandler) TrainingStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"active": h.orch.Guard().Active()})
}

// PredictRequest represents a prediction request
type PredictRequest struct {
	Filepath string `json:"filepath"`
}

// Predict handles POST /api/predict
func (h *AIHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.Filepath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Filepath required"})
		return
	}

	path := req.Filepath
	if _, err := os.Stat(path); err != nil {
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
			return
		}
		if _, err := os.Stat(abs); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
			return
		}
		path = abs
	}

	result, err := h.router.Predict(path)
	if err != nil {
		if errors.Is(err, models.ErrModelNotLoaded) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Model not loaded. Please train first."})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListVersions handles GET /api/models/{type}/versions
func (h *AIHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	mt, err := models.ParseModelType(mux.Vars(r)["type"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	versions := h.registry.ListVersions(mt)
	if versions == nil {
		versions = []models.VersionInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model_type": mt,
		"current":    fmt.Sprintf("v%d", h.registry.CurrentVersion(mt)),
		"versions":   versions,
	})
}

// RollbackRequest represents a rollback request; the version may arrive as
// "v3", "3", or a number.
type RollbackRequest struct {
	Version json.RawMessage `json:"version"`
}

// Rollback handles POST /api/models/{type}/rollback
func (h *AIHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	mt, err := models.ParseModelType(mux.Vars(r)["type"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	version, err := parseVersion(req.Version)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.registry.Rollback(mt, version); err != nil {
		if errors.Is(err, models.ErrVersionNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Version v%d not found", version))
			return
		}
		h.log.Errorw("rollback failed", "model_type", mt, "version", version, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.router.Reload(mt); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Rolled back to v%d", version),
		"version": fmt.Sprintf("v%d", version),
	})
}

// AvailableModels handles GET /api/models
func (h *AIHandler) AvailableModels(w http.ResponseWriter, r *http.Request) {
	active := h.router.ActiveType()
	statuses := make([]models.ModelStatus, 0, len(models.SupportedModels))
	for _, mt := range models.SupportedModels {
		statuses = append(statuses, models.ModelStatus{
			Type:    mt,
			Name:    mt.DisplayName(),
			Trained: h.registry.HasCheckpoint(mt),
			Active:  mt == active,
		})
	}
	writeJSON(w, http.StatusOK, statuses)
}

func parseVersion(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("version required")
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimPrefix(strings.TrimSpace(s), "v")
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("invalid version: %s", string(raw))
}
