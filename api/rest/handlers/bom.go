package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"qc-inspector/core/cost"
	"qc-inspector/providers/gemini"

	"go.uber.org/zap"
)

// BOMHandler handles design-spec analysis requests
type BOMHandler struct {
	vlm *gemini.Client
	log *zap.SugaredLogger
}

// NewBOMHandler creates a new BOM handler
func NewBOMHandler(vlm *gemini.Client, log *zap.SugaredLogger) *BOMHandler {
	return &BOMHandler{vlm: vlm, log: log}
}

// AnalyzeSpecRequest represents a design-spec analysis request
type AnalyzeSpecRequest struct {
	Filepath string `json:"filepath"`
}

// AnalyzeSpec handles POST /api/analyze-spec: extracts a bill of materials
// from a design-spec image and prices it.
func (h *BOMHandler) AnalyzeSpec(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeSpecRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Filepath == "" {
		writeError(w, http.StatusBadRequest, "Filepath required")
		return
	}
	if _, err := os.Stat(req.Filepath); err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	analysis, err := h.vlm.AnalyzeSpec(r.Context(), req.Filepath)
	if err != nil {
		h.log.Errorw("spec analysis failed", "path", req.Filepath, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	components := make([]cost.Component, 0, len(analysis.Components))
	for _, c := range analysis.Components {
		components = append(components, cost.Component{
			Name:       c.Name,
			PartNumber: c.PartNumber,
			Count:      float64(c.Count),
		})
	}

	resp := map[string]interface{}{
		"components": analysis.Components,
		"estimate":   cost.Calculate(components),
	}
	if analysis.RawText != "" {
		resp["raw_text"] = analysis.RawText
	}
	if analysis.Warning != "" {
		resp["warning"] = analysis.Warning
	}
	writeJSON(w, http.StatusOK, resp)
}
