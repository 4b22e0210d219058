package engine

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"qc-inspector/core/models"

	"github.com/stretchr/testify/require"
)

// writeSample writes a deterministic mid-gray image with per-image texture
// variation, mimicking consistent "ok" captures.
func writeSample(t *testing.T, path string, seed int) {
	t.Helper()
	writeImage(t, path, func(x, y int) uint8 {
		return uint8(120 + (x+3*y+7*seed)%11)
	})
}

// writeAnomaly writes the same texture with a bright defect block
func writeAnomaly(t *testing.T, path string) {
	t.Helper()
	writeImage(t, path, func(x, y int) uint8 {
		if x >= 24 && x < 40 && y >= 24 && y < 40 {
			return 250
		}
		return uint8(120 + (x+3*y)%11)
	})
}

func writeImage(t *testing.T, path string, pixel func(x, y int) uint8) {
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

func fitTestModel(t *testing.T, n int) string {
	t.Helper()
	staging := t.TempDir()
	goodDir := filepath.Join(staging, "good")
	for i := 0; i < n; i++ {
		writeSample(t, filepath.Join(goodDir, fmt.Sprintf("sample_%02d.png", i)), i)
	}

	cap, err := ForType(models.ModelPatchcore)
	require.NoError(t, err)
	ckpt, err := cap.Fit(context.Background(), goodDir, FitConfig{
		ModelType: models.ModelPatchcore,
		Backbone:  "resnet18",
		GridSize:  16,
	})
	require.NoError(t, err)
	return ckpt
}

func TestFitLoadScoreRoundtrip(t *testing.T) {
	ckpt := fitTestModel(t, 6)
	require.FileExists(t, ckpt)

	cap, err := ForType(models.ModelPatchcore)
	require.NoError(t, err)
	model, err := cap.Load(ckpt)
	require.NoError(t, err)

	normalPath := filepath.Join(t.TempDir(), "normal.png")
	writeSample(t, normalPath, 0)
	normal, err := DecodeImage(normalPath)
	require.NoError(t, err)

	score, amap, err := model.Score(normal)
	require.NoError(t, err)
	require.GreaterOrEqual(t, score, 0.0)
	require.LessOrEqual(t, score, 0.5)
	require.NotNil(t, amap)
	require.Len(t, amap.Values, 16*16)

	anomalyPath := filepath.Join(t.TempDir(), "defect.png")
	writeAnomaly(t, anomalyPath)
	anomaly, err := DecodeImage(anomalyPath)
	require.NoError(t, err)

	defectScore, _, err := model.Score(anomaly)
	require.NoError(t, err)
	require.Greater(t, defectScore, 0.5)
	require.Less(t, defectScore, 1.0)
}

func TestFitEmptyDirFails(t *testing.T) {
	cap, err := ForType(models.ModelPadim)
	require.NoError(t, err)
	_, err = cap.Fit(context.Background(), t.TempDir(), FitConfig{GridSize: 8})
	require.Error(t, err)
}

func TestFitUnreadableSampleFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "good")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not an image"), 0o644))

	cap, err := ForType(models.ModelPatchcore)
	require.NoError(t, err)
	_, err = cap.Fit(context.Background(), dir, FitConfig{GridSize: 8})
	require.Error(t, err)
}

func TestLoadRejectsMalformedCheckpoint(t *testing.T) {
	cap, err := ForType(models.ModelPatchcore)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.ckpt")
	require.NoError(t, os.WriteFile(path, []byte(`{"grid": 4, "mean": [0.5], "std": [0.1]}`), 0o644))
	_, err = cap.Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unrecognized checkpoint")

	require.NoError(t, os.WriteFile(path, []byte(`garbage`), 0o644))
	_, err = cap.Load(path)
	require.Error(t, err)
}

func TestForTypeRejectsUnknownKey(t *testing.T) {
	_, err := ForType(models.ModelType("resnet"))
	require.ErrorIs(t, err, models.ErrUnknownModelType)

	for _, mt := range models.SupportedModels {
		_, err := ForType(mt)
		require.NoError(t, err)
	}
}

func TestExportAndOptimizedLoad(t *testing.T) {
	ckpt := fitTestModel(t, 6)

	outDir := filepath.Join(t.TempDir(), "openvino")
	exporter := &OpenVINOExporter{}
	require.NoError(t, exporter.Export(ckpt, outDir))
	require.FileExists(t, filepath.Join(outDir, "model.xml"))
	require.FileExists(t, filepath.Join(outDir, "metadata.json"))

	optimized, err := LoadOptimized(filepath.Join(outDir, "model.xml"), filepath.Join(outDir, "metadata.json"))
	require.NoError(t, err)

	cap, _ := ForType(models.ModelPatchcore)
	reference, err := cap.Load(ckpt)
	require.NoError(t, err)

	imgPath := filepath.Join(t.TempDir(), "img.png")
	writeAnomaly(t, imgPath)
	img, err := DecodeImage(imgPath)
	require.NoError(t, err)

	refScore, refMap, err := reference.Score(img)
	require.NoError(t, err)
	require.NotNil(t, refMap)

	optScore, optMap, err := optimized.Score(img)
	require.NoError(t, err)
	require.Nil(t, optMap)
	require.InDelta(t, refScore, optScore, 1e-9)
}

func TestExportRejectsMissingCheckpoint(t *testing.T) {
	exporter := &OpenVINOExporter{}
	err := exporter.Export(filepath.Join(t.TempDir(), "missing.ckpt"), t.TempDir())
	require.Error(t, err)
}
