package engine

import (
	"context"
	"fmt"
	"image"

	"qc-inspector/core/models"
)

// FitConfig carries the type-specific training defaults resolved from the
// static model table.
type FitConfig struct {
	ModelType    models.ModelType
	Backbone     string
	GridSize     int
	CoresetRatio float64
}

// AnomalyMap is a coarse per-cell anomaly intensity grid produced alongside
// a score by the reference backend.
type AnomalyMap struct {
	Width  int
	Height int
	Values []float64
}

// At returns the value at cell (x, y)
func (m *AnomalyMap) At(x, y int) float64 {
	return m.Values[y*m.Width+x]
}

// Model is a loaded, ready-to-score representation of a trained checkpoint.
// The anomaly map is optional; the optimized backend returns none.
type Model interface {
	Score(img image.Image) (float64, *AnomalyMap, error)
}

// Capability is the trainable-model contract the lifecycle engine drives:
// fit a sample set into a checkpoint, and load a checkpoint back for scoring.
type Capability interface {
	Fit(ctx context.Context, sampleDir string, cfg FitConfig) (checkpointPath string, err error)
	Load(checkpointPath string) (Model, error)
}

// capabilities maps each supported model type to its implementation. The
// table is the single place a model key is resolved; unknown keys fail here
// rather than deep inside a training run.
var capabilities = map[models.ModelType]Capability{
	models.ModelPatchcore:   &gridStatsCapability{},
	models.ModelPadim:       &gridStatsCapability{},
	models.ModelEfficientAD: &gridStatsCapability{},
}

// ForType resolves the capability implementation for a model type
func ForType(mt models.ModelType) (Capability, error) {
	cap, ok := capabilities[mt]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownModelType, mt)
	}
	return cap, nil
}
