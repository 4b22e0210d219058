package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// stdFloor keeps cells with zero observed variance from producing infinite
// z-scores on any deviation.
const stdFloor = 1e-3

// gridStatsCapability fits per-cell luminance statistics over the reference
// set and scores images by their worst cell deviation. It backs every
// supported model type; the type-specific behavior comes in through the
// fit configuration (grid size, backbone hint, sampling ratio).
type gridStatsCapability struct{}

type checkpoint struct {
	ModelType    string    `json:"model_type"`
	Backbone     string    `json:"backbone"`
	Grid         int       `json:"grid"`
	Mean         []float64 `json:"mean"`
	Std          []float64 `json:"std"`
	ScoreScale   float64   `json:"score_scale"`
	SampleCount  int       `json:"sample_count"`
	CoresetRatio float64   `json:"coreset_sampling_ratio"`
	TrainedAt    time.Time `json:"trained_at"`
}

// Fit trains on every readable image in sampleDir and writes the checkpoint
// next to it (into the staging workspace root).
func (c *gridStatsCapability) Fit(ctx context.Context, sampleDir string, cfg FitConfig) (string, error) {
	grid := cfg.GridSize
	if grid <= 0 {
		grid = 32
	}

	samples, err := ListSampleImages(sampleDir)
	if err != nil {
		return "", err
	}
	if len(samples) == 0 {
		return "", fmt.Errorf("no readable samples in %s", sampleDir)
	}

	cells := grid * grid
	sum := make([]float64, cells)
	sumSq := make([]float64, cells)
	grids := make([][]float64, 0, len(samples))

	for _, path := range samples {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		img, err := DecodeImage(path)
		if err != nil {
			return "", fmt.Errorf("failed to read sample %s: %w", filepath.Base(path), err)
		}
		g := luminanceGrid(img, grid)
		grids = append(grids, g)
		for i, v := range g {
			sum[i] += v
			sumSq[i] += v * v
		}
	}

	n := float64(len(grids))
	mean := make([]float64, cells)
	std := make([]float64, cells)
	for i := range mean {
		mean[i] = sum[i] / n
		variance := sumSq[i]/n - mean[i]*mean[i]
		if variance < 0 {
			variance = 0
		}
		std[i] = math.Sqrt(variance) + stdFloor
	}

	// Calibrate the score squash so the worst training sample stays below
	// the fixed 0.5 decision threshold.
	worst := 0.0
	for _, g := range grids {
		if z := maxZ(g, mean, std); z > worst {
			worst = z
		}
	}
	scale := 2 * worst
	if scale <= 0 {
		scale = 1
	}

	ckpt := checkpoint{
		ModelType:    string(cfg.ModelType),
		Backbone:     cfg.Backbone,
		Grid:         grid,
		Mean:         mean,
		Std:          std,
		ScoreScale:   scale,
		SampleCount:  len(grids),
		CoresetRatio: cfg.CoresetRatio,
		TrainedAt:    time.Now().UTC(),
	}

	path := filepath.Join(filepath.Dir(sampleDir), "model.ckpt")
	data, err := json.MarshalIndent(ckpt, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return path, nil
}

// Load reads a checkpoint back into a scoring model. Payloads missing the
// score statistics are rejected rather than guessed at.
func (c *gridStatsCapability) Load(checkpointPath string) (Model, error) {
	data, err := os.ReadFile(checkpointPath)
	if err != nil {
		return nil, err
	}
	var ckpt checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("unrecognized checkpoint payload: %w", err)
	}
	if err := ckpt.validate(); err != nil {
		return nil, err
	}
	return &gridStatsModel{ckpt: ckpt}, nil
}

func (c *checkpoint) validate() error {
	cells := c.Grid * c.Grid
	if c.Grid <= 0 || len(c.Mean) != cells || len(c.Std) != cells {
		return fmt.Errorf("unrecognized checkpoint payload: grid %d with %d/%d statistics", c.Grid, len(c.Mean), len(c.Std))
	}
	if c.ScoreScale <= 0 {
		return fmt.Errorf("unrecognized checkpoint payload: missing score scale")
	}
	return nil
}

type gridStatsModel struct {
	ckpt checkpoint
}

func (m *gridStatsModel) Score(img image.Image) (float64, *AnomalyMap, error) {
	g := luminanceGrid(img, m.ckpt.Grid)

	values := make([]float64, len(g))
	worst := 0.0
	for i, v := range g {
		z := math.Abs(v-m.ckpt.Mean[i]) / m.ckpt.Std[i]
		values[i] = z
		if z > worst {
			worst = z
		}
	}

	score := squashScore(worst, m.ckpt.ScoreScale)
	amap := &AnomalyMap{Width: m.ckpt.Grid, Height: m.ckpt.Grid, Values: values}
	return score, amap, nil
}

// squashScore maps a deviation into [0, 1). The scale is calibrated at fit
// time so training samples land below 0.5.
func squashScore(z, scale float64) float64 {
	return 1 - math.Exp(-z/scale)
}

// luminanceGrid downsamples an image to a grid x grid luminance matrix with
// values in [0, 1].
func luminanceGrid(img image.Image, grid int) []float64 {
	dst := image.NewRGBA(image.Rect(0, 0, grid, grid))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	out := make([]float64, grid*grid)
	for y := 0; y < grid; y++ {
		for x := 0; x < grid; x++ {
			i := dst.PixOffset(x, y)
			r := float64(dst.Pix[i])
			g := float64(dst.Pix[i+1])
			b := float64(dst.Pix[i+2])
			out[y*grid+x] = (0.299*r + 0.587*g + 0.114*b) / 255.0
		}
	}
	return out
}

func maxZ(g, mean, std []float64) float64 {
	worst := 0.0
	for i, v := range g {
		z := math.Abs(v-mean[i]) / std[i]
		if z > worst {
			worst = z
		}
	}
	return worst
}

// DecodeImage opens and decodes a JPEG or PNG image file
func DecodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// ListSampleImages returns every jpg/jpeg/png file under dir, recursively
func ListSampleImages(dir string) ([]string, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
