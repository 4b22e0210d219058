package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"qc-inspector/config"
	"qc-inspector/core/engine"
	"qc-inspector/core/models"
	"qc-inspector/core/registry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Corpus supplies the current reference ("ok") sample set
type Corpus interface {
	Count() (int, error)
	Samples() ([]string, error)
}

// Reloader is notified after every successful commit so the serving backend
// tracks the registry.
type Reloader interface {
	Reload(mt models.ModelType) error
}

// Mirror replicates a committed version bundle to remote storage
type Mirror interface {
	MirrorVersion(ctx context.Context, mt models.ModelType, version int, dir string) error
}

// Orchestrator drives one training run end-to-end: precondition check,
// workspace staging, fit, best-effort export, registry commit, reload.
type Orchestrator struct {
	corpus      Corpus
	registry    *registry.Registry
	router      Reloader
	guard       *TrainingGuard
	exporter    engine.Exporter
	mirror      Mirror
	table       config.ModelTable
	stagingRoot string
	log         *zap.SugaredLogger
}

// New creates a training orchestrator. mirror may be nil.
func New(
	corpus Corpus,
	reg *registry.Registry,
	router Reloader,
	guard *TrainingGuard,
	exporter engine.Exporter,
	mirror Mirror,
	table config.ModelTable,
	stagingRoot string,
	log *zap.SugaredLogger,
) *Orchestrator {
	return &Orchestrator{
		corpus:      corpus,
		registry:    reg,
		router:      router,
		guard:       guard,
		exporter:    exporter,
		mirror:      mirror,
		table:       table,
		stagingRoot: stagingRoot,
		log:         log,
	}
}

// Guard exposes the training guard for status reporting
func (o *Orchestrator) Guard() *TrainingGuard { return o.guard }

// Train runs a full training cycle synchronously. It fails fast with
// ErrTrainingInProgress when another run holds the guard.
func (o *Orchestrator) Train(ctx context.Context, mt models.ModelType) (*models.TrainResult, error) {
	cap, fitCfg, minSamples, err := o.prepare(mt)
	if err != nil {
		return nil, err
	}
	if err := o.checkCorpus(minSamples); err != nil {
		return nil, err
	}
	if !o.guard.TryBegin() {
		return nil, models.ErrTrainingInProgress
	}
	defer o.guard.End()

	return o.run(ctx, mt, cap, fitCfg)
}

// TrainAsync validates preconditions and acquires the guard synchronously,
// then runs the training cycle in a background worker. A nil return means
// the run has started; its outcome is observed via the guard and registry.
func (o *Orchestrator) TrainAsync(ctx context.Context, mt models.ModelType) error {
	cap, fitCfg, minSamples, err := o.prepare(mt)
	if err != nil {
		return err
	}
	if err := o.checkCorpus(minSamples); err != nil {
		return err
	}
	if !o.guard.TryBegin() {
		return models.ErrTrainingInProgress
	}

	go func() {
		defer o.guard.End()
		result, err := o.run(ctx, mt, cap, fitCfg)
		if err != nil {
			o.log.Errorw("background training failed", "model_type", mt, "error", err)
			return
		}
		o.log.Infow("background training finished",
			"model_type", mt, "version", result.Version, "export_status", result.ExportStatus)
	}()

	return nil
}

func (o *Orchestrator) prepare(mt models.ModelType) (engine.Capability, engine.FitConfig, int, error) {
	cap, err := engine.ForType(mt)
	if err != nil {
		return nil, engine.FitConfig{}, 0, err
	}
	settings := o.table.For(string(mt))
	fitCfg := engine.FitConfig{
		ModelType:    mt,
		Backbone:     settings.Backbone,
		GridSize:     settings.GridSize,
		CoresetRatio: settings.CoresetRatio,
	}
	return cap, fitCfg, settings.MinSamples, nil
}

func (o *Orchestrator) checkCorpus(minSamples int) error {
	count, err := o.corpus.Count()
	if err != nil {
		return fmt.Errorf("failed to count corpus: %w", err)
	}
	if count < minSamples {
		return &models.InsufficientSamplesError{Required: minSamples, Found: count}
	}
	return nil
}

// run executes the training cycle with the guard already held
func (o *Orchestrator) run(ctx context.Context, mt models.ModelType, cap engine.Capability, fitCfg engine.FitConfig) (*models.TrainResult, error) {
	staging := filepath.Join(o.stagingRoot, "staging-"+uuid.NewString())
	defer os.RemoveAll(staging)

	goodDir, err := o.stage(staging)
	if err != nil {
		return nil, err
	}

	o.log.Infow("training started", "model_type", mt, "backbone", fitCfg.Backbone)
	ckptPath, err := cap.Fit(ctx, goodDir, fitCfg)
	if err != nil {
		return nil, &models.TrainingFailedError{Cause: err}
	}

	exportStatus := "ok"
	if err := o.exporter.Export(ckptPath, o.registry.OptimizedDir()); err != nil {
		// The optimized backend is an acceleration path, not a serving
		// requirement. Surface the failure on the result, keep going.
		o.log.Warnw("optimized export failed", "model_type", mt, "error", err)
		exportStatus = "failed: " + err.Error()
	}

	version := o.registry.NextVersion(mt)
	versionDir, err := o.registry.Commit(mt, version, ckptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to commit version: %w", err)
	}

	os.RemoveAll(staging)

	if o.mirror != nil {
		if err := o.mirror.MirrorVersion(ctx, mt, version, versionDir); err != nil {
			o.log.Warnw("artifact mirror failed", "model_type", mt, "version", version, "error", err)
		}
	}

	if err := o.router.Reload(mt); err != nil {
		return nil, fmt.Errorf("model committed as v%d but backend reload failed: %w", version, err)
	}

	return &models.TrainResult{
		ModelType:    mt,
		Version:      fmt.Sprintf("v%d", version),
		ExportStatus: exportStatus,
		Message:      fmt.Sprintf("%s training completed", mt),
	}, nil
}

// stage builds the isolated workspace: copies of the current normal set,
// never the originals.
func (o *Orchestrator) stage(staging string) (string, error) {
	samples, err := o.corpus.Samples()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate corpus: %w", err)
	}

	goodDir := filepath.Join(staging, "good")
	if err := os.MkdirAll(goodDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging workspace: %w", err)
	}

	for i, src := range samples {
		dst := filepath.Join(goodDir, fmt.Sprintf("%04d_%s", i, filepath.Base(src)))
		if err := copySample(src, dst); err != nil {
			return "", fmt.Errorf("failed to stage sample %s: %w", filepath.Base(src), err)
		}
	}
	return goodDir, nil
}

func copySample(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
