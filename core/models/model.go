package models

import (
	"fmt"
	"strings"
)

// ModelType identifies which anomaly-detection architecture a training run
// or inference backend belongs to. The set is closed; unknown keys are
// rejected at the API boundary.
type ModelType string

const (
	ModelPatchcore   ModelType = "patchcore"
	ModelPadim       ModelType = "padim"
	ModelEfficientAD ModelType = "efficientad"
)

// SupportedModels lists every model type the engine can train and serve,
// in presentation order.
var SupportedModels = []ModelType{
	ModelPatchcore,
	ModelPadim,
	ModelEfficientAD,
}

// ParseModelType validates a model type key. Empty input defaults to patchcore.
func ParseModelType(key string) (ModelType, error) {
	if key == "" {
		return ModelPatchcore, nil
	}
	mt := ModelType(strings.ToLower(key))
	for _, known := range SupportedModels {
		if mt == known {
			return mt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModelType, key)
}

// DisplayName returns the capitalized form used in the on-disk registry
// layout (e.g. "patchcore" -> "Patchcore").
func (m ModelType) DisplayName() string {
	s := string(m)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// VersionInfo describes one version entry in the registry
type VersionInfo struct {
	Version       string `json:"version"`
	HasCheckpoint bool   `json:"has_checkpoint"`
	Path          string `json:"path"`
}

// TrainResult is the outcome of a completed training run
type TrainResult struct {
	ModelType    ModelType `json:"model_type"`
	Version      string    `json:"version"`
	ExportStatus string    `json:"export_status"`
	Message      string    `json:"message"`
}

// PredictResult is the outcome of scoring a single image
type PredictResult struct {
	Score   float64 `json:"score"`
	Label   string  `json:"label"`
	Method  string  `json:"method"`
	Heatmap string  `json:"heatmap,omitempty"`
}

// ModelStatus describes one supported model type for the model listing
type ModelStatus struct {
	Type    ModelType `json:"type"`
	Name    string    `json:"name"`
	Trained bool      `json:"trained"`
	Active  bool      `json:"active"`
}
