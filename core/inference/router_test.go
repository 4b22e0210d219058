package inference

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"qc-inspector/core/engine"
	"qc-inspector/core/models"
	"qc-inspector/core/registry"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeGrayImage(t *testing.T, path string, pixel func(x, y int) uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.SetGray(x, y, color.Gray{Y: pixel(x, y)})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func normalPixel(seed int) func(x, y int) uint8 {
	return func(x, y int) uint8 {
		return uint8(120 + (x+3*y+7*seed)%11)
	}
}

func defectPixel(x, y int) uint8 {
	if x >= 24 && x < 40 && y >= 24 && y < 40 {
		return 250
	}
	return uint8(120 + (x+3*y)%11)
}

// trainInto fits a model on synthetic samples and commits it as the given
// version, mirroring what the orchestrator does.
func trainInto(t *testing.T, reg *registry.Registry, mt models.ModelType, version int) string {
	t.Helper()
	staging := t.TempDir()
	goodDir := filepath.Join(staging, "good")
	for i := 0; i < 6; i++ {
		writeGrayImage(t, filepath.Join(goodDir, "sample_"+string(rune('a'+i))+".png"), normalPixel(i))
	}
	cap, err := engine.ForType(mt)
	require.NoError(t, err)
	ckpt, err := cap.Fit(context.Background(), goodDir, engine.FitConfig{
		ModelType: mt, Backbone: "resnet18", GridSize: 16,
	})
	require.NoError(t, err)
	dir, err := reg.Commit(mt, version, ckpt)
	require.NoError(t, err)
	return filepath.Join(dir, "model.ckpt")
}

func TestPredictWithoutModel(t *testing.T) {
	log := zap.NewNop().Sugar()
	reg, err := registry.New(t.TempDir(), log)
	require.NoError(t, err)

	router := New(reg, log)
	_, err = router.Predict(filepath.Join(t.TempDir(), "anything.png"))
	require.ErrorIs(t, err, models.ErrModelNotLoaded)
}

func TestPredictReferenceBackend(t *testing.T) {
	log := zap.NewNop().Sugar()
	reg, err := registry.New(t.TempDir(), log)
	require.NoError(t, err)
	trainInto(t, reg, models.ModelPatchcore, 1)

	router := New(reg, log)
	require.Equal(t, models.ModelPatchcore, router.ActiveType())

	normalPath := filepath.Join(t.TempDir(), "normal.png")
	writeGrayImage(t, normalPath, normalPixel(0))
	result, err := router.Predict(normalPath)
	require.NoError(t, err)
	require.Equal(t, "reference", result.Method)
	require.Equal(t, models.LabelOK, result.Label)
	require.LessOrEqual(t, result.Score, 0.5)
	require.True(t, strings.HasPrefix(result.Heatmap, "data:image/jpeg;base64,"))

	defectPath := filepath.Join(t.TempDir(), "defect.png")
	writeGrayImage(t, defectPath, defectPixel)
	result, err = router.Predict(defectPath)
	require.NoError(t, err)
	require.Equal(t, models.LabelNG, result.Label)
	require.Greater(t, result.Score, 0.5)
	require.LessOrEqual(t, result.Score, 1.0)
}

func TestPredictOptimizedBackend(t *testing.T) {
	log := zap.NewNop().Sugar()
	reg, err := registry.New(t.TempDir(), log)
	require.NoError(t, err)
	ckpt := trainInto(t, reg, models.ModelPatchcore, 1)

	exporter := &engine.OpenVINOExporter{}
	require.NoError(t, exporter.Export(ckpt, reg.OptimizedDir()))

	router := New(reg, log)

	defectPath := filepath.Join(t.TempDir(), "defect.png")
	writeGrayImage(t, defectPath, defectPixel)
	result, err := router.Predict(defectPath)
	require.NoError(t, err)
	require.Equal(t, "openvino", result.Method)
	require.Equal(t, models.LabelNG, result.Label)
	// The optimized path serves scores only, no pixel map to visualize.
	require.Empty(t, result.Heatmap)
}

func TestPredictCorruptBundleFallsBack(t *testing.T) {
	log := zap.NewNop().Sugar()
	reg, err := registry.New(t.TempDir(), log)
	require.NoError(t, err)
	trainInto(t, reg, models.ModelPatchcore, 1)

	require.NoError(t, os.MkdirAll(reg.OptimizedDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(reg.OptimizedDir(), "model.xml"), []byte("<broken"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(reg.OptimizedDir(), "metadata.json"), []byte("{}"), 0o644))

	router := New(reg, log)
	normalPath := filepath.Join(t.TempDir(), "normal.png")
	writeGrayImage(t, normalPath, normalPixel(0))
	result, err := router.Predict(normalPath)
	require.NoError(t, err)
	require.Equal(t, "reference", result.Method)
}

func TestPredictUndecodableImage(t *testing.T) {
	log := zap.NewNop().Sugar()
	reg, err := registry.New(t.TempDir(), log)
	require.NoError(t, err)
	trainInto(t, reg, models.ModelPatchcore, 1)

	router := New(reg, log)
	badPath := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(badPath, []byte("not an image"), 0o644))

	_, err = router.Predict(badPath)
	var infErr *models.InferenceError
	require.ErrorAs(t, err, &infErr)
	require.Contains(t, infErr.Error(), "failed to load image")
}

func TestReloadFollowsRollback(t *testing.T) {
	log := zap.NewNop().Sugar()
	reg, err := registry.New(t.TempDir(), log)
	require.NoError(t, err)

	v1 := trainInto(t, reg, models.ModelPatchcore, 1)
	v2 := trainInto(t, reg, models.ModelPatchcore, 2)

	// Age both version checkpoints so the alias written by rollback is the
	// newest artifact on disk.
	t1 := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(v1, t1, t1))
	t2 := time.Now().Add(-1 * time.Hour)
	require.NoError(t, os.Chtimes(v2, t2, t2))

	require.NoError(t, reg.Rollback(models.ModelPatchcore, 1))

	router := New(reg, log)
	normalPath := filepath.Join(t.TempDir(), "normal.png")
	writeGrayImage(t, normalPath, normalPixel(0))
	result, err := router.Predict(normalPath)
	require.NoError(t, err)
	require.Equal(t, "reference", result.Method)

	ckpt, ok := reg.LatestCheckpoint(models.ModelPatchcore)
	require.True(t, ok)
	require.NotContains(t, ckpt, "v2")
}
