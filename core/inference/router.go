package inference

import (
	"sync"

	"qc-inspector/core/engine"
	"qc-inspector/core/models"
	"qc-inspector/core/registry"

	"go.uber.org/zap"
)

// Backend method identifiers reported on predict results
const (
	methodOptimized = "openvino"
	methodReference = "reference"
)

type backend struct {
	model  engine.Model
	method string
}

// Router holds the currently loaded inference backend per model type and
// resolves predict requests against it. Reload builds a full replacement
// before swapping, so an in-flight predict never observes a half-initialized
// backend.
type Router struct {
	registry *registry.Registry
	log      *zap.SugaredLogger

	mu       sync.RWMutex
	backends map[models.ModelType]*backend
	active   models.ModelType
}

// New creates a router and attempts an initial load of the default model type
func New(reg *registry.Registry, log *zap.SugaredLogger) *Router {
	r := &Router{
		registry: reg,
		log:      log,
		backends: make(map[models.ModelType]*backend),
		active:   models.ModelPatchcore,
	}
	if err := r.Reload(models.ModelPatchcore); err != nil {
		log.Warnw("no model loaded at startup", "error", err)
	}
	return r
}

// Reload rebuilds the backend for a model type from the registry and makes
// that type active. The previous backend stays in service until the
// replacement is fully built.
func (r *Router) Reload(mt models.ModelType) error {
	b := r.build(mt)

	r.mu.Lock()
	r.backends[mt] = b
	r.active = mt
	r.mu.Unlock()

	if b == nil {
		r.log.Infow("no backend available", "model_type", mt)
	} else {
		r.log.Infow("inference backend loaded", "model_type", mt, "method", b.method)
	}
	return nil
}

// build applies the backend selection policy: optimized bundle first,
// newest checkpoint second, nothing third.
func (r *Router) build(mt models.ModelType) *backend {
	if modelPath, metaPath, ok := r.registry.OptimizedBundle(); ok {
		m, err := engine.LoadOptimized(modelPath, metaPath)
		if err == nil {
			return &backend{model: m, method: methodOptimized}
		}
		r.log.Warnw("failed to load optimized bundle, falling back", "error", err)
	}

	if ckpt, ok := r.registry.LatestCheckpoint(mt); ok {
		cap, err := engine.ForType(mt)
		if err != nil {
			return nil
		}
		m, err := cap.Load(ckpt)
		if err != nil {
			r.log.Warnw("failed to load checkpoint", "path", ckpt, "error", err)
			return nil
		}
		return &backend{model: m, method: methodReference}
	}

	return nil
}

// ActiveType returns the model type predictions currently resolve against
func (r *Router) ActiveType() models.ModelType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Predict scores the image at path through the active backend
func (r *Router) Predict(path string) (*models.PredictResult, error) {
	r.mu.RLock()
	b := r.backends[r.active]
	r.mu.RUnlock()

	if b == nil {
		return nil, models.ErrModelNotLoaded
	}

	img, err := engine.DecodeImage(path)
	if err != nil {
		return nil, &models.InferenceError{Reason: "failed to load image", Cause: err}
	}

	score, amap, err := b.model.Score(img)
	if err != nil {
		return nil, &models.InferenceError{Reason: "unrecognized model output", Cause: err}
	}

	result := &models.PredictResult{
		Score:  round4(score),
		Label:  scoreLabel(score),
		Method: b.method,
	}

	// Operator visualization only; the label decision is score-based.
	if amap != nil {
		heatmap, err := RenderHeatmap(img, amap)
		if err != nil {
			r.log.Warnw("heatmap generation failed", "error", err)
		} else {
			result.Heatmap = heatmap
		}
	}

	return result, nil
}

// scoreLabel applies the fixed decision threshold
func scoreLabel(score float64) string {
	if score > 0.5 {
		return models.LabelNG
	}
	return models.LabelOK
}

func round4(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}
