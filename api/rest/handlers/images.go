package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"qc-inspector/core/models"
	"qc-inspector/core/repository"
	"qc-inspector/storage"

	"go.uber.org/zap"
)

// ImageHandler handles capture, labeling, gallery and statistics requests
type ImageHandler struct {
	store *storage.ImageStore
	repo  *repository.ImageRepository
	log   *zap.SugaredLogger
}

// NewImageHandler creates a new image handler
func NewImageHandler(store *storage.ImageStore, repo *repository.ImageRepository, log *zap.SugaredLogger) *ImageHandler {
	return &ImageHandler{store: store, repo: repo, log: log}
}

// CaptureRequest represents a browser capture submission
type CaptureRequest struct {
	Image   string `json:"image"`
	CableID string `json:"cable_id"`
}

// Capture handles POST /capture: stores a base64 data-URL image as unlabeled
func (h *ImageHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Image == "" {
		writeError(w, http.StatusBadRequest, "Image data required")
		return
	}

	path, filename, err := h.store.SaveFromDataURL(req.Image, models.LabelUnlabeled, req.CableID)
	if err != nil {
		h.log.Errorw("capture failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"filepath": path,
		"filename": filename,
	})
}

// LabelRequest represents a relabel submission
type LabelRequest struct {
	Filepath string `json:"filepath"`
	Label    string `json:"label"`
}

// Label handles POST /label: moves an image between label directories
func (h *ImageHandler) Label(w http.ResponseWriter, r *http.Request) {
	var req LabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !models.ValidLabel(req.Label) {
		writeError(w, http.StatusBadRequest, "Invalid label")
		return
	}
	if req.Filepath == "" {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if _, err := os.Stat(req.Filepath); err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	newPath, err := h.store.Relabel(req.Filepath, req.Label)
	if err != nil {
		h.log.Errorw("relabel failed", "path", req.Filepath, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"new_filepath": newPath,
		"label":        req.Label,
	})
}

// Gallery handles GET /gallery with optional label/cable_id filters and
// limit/offset pagination. Without filters it returns the plain recent list
// for backward compatibility.
func (h *ImageHandler) Gallery(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	cableID := r.URL.Query().Get("cable_id")
	n := queryInt(r, "n", 50)
	offset := queryInt(r, "offset", 0)

	if label == "" && cableID == "" && offset == 0 {
		records, err := h.repo.Recent(n)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if records == nil {
			records = []models.ImageRecord{}
		}
		writeJSON(w, http.StatusOK, records)
		return
	}

	records, total, err := h.repo.Filtered(label, cableID, n, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []models.ImageRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"images":   records,
		"total":    total,
		"has_more": offset+n < total,
	})
}

// DeleteRequest represents an image deletion
type DeleteRequest struct {
	Filepath string `json:"filepath"`
}

// DeleteImage handles DELETE /image
func (h *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Filepath == "" {
		writeError(w, http.StatusBadRequest, "Path required")
		return
	}
	if !h.store.WithinDataRoot(req.Filepath) {
		writeError(w, http.StatusForbidden, "Access denied")
		return
	}
	if _, err := os.Stat(req.Filepath); err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	if err := h.store.Delete(req.Filepath); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ServeImage handles GET /image?path=...
func (h *ImageHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "Path required", http.StatusBadRequest)
		return
	}
	if !h.store.WithinDataRoot(path) {
		http.Error(w, "Access denied", http.StatusForbidden)
		return
	}
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(path))
	http.ServeFile(w, r, path)
}

// Stats handles GET /stats
func (h *ImageHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Statistics()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// DailyStats handles GET /api/daily-stats
func (h *ImageHandler) DailyStats(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	daily, err := h.repo.DailyStatistics(days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if daily == nil {
		daily = []models.DailyStats{}
	}
	writeJSON(w, http.StatusOK, daily)
}

// ExportCSV handles GET /export
func (h *ImageHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	count, err := h.repo.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if count == 0 {
		http.Error(w, "No data", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=qc_check_metadata.csv")
	if err := h.repo.ExportCSV(w); err != nil {
		h.log.Errorw("csv export failed", "error", err)
	}
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".bmp":
		return "image/bmp"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}
