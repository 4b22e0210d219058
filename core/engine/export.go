package engine

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Exporter derives an optimized inference bundle from a checkpoint. Export
// is best-effort: a training run succeeds without it.
type Exporter interface {
	Export(checkpointPath, outDir string) error
}

// OpenVINOExporter writes the optimized bundle as a model definition
// (model.xml) plus a metadata sidecar (metadata.json), matching the layout
// existing installations expect.
type OpenVINOExporter struct{}

type xmlNet struct {
	XMLName xml.Name `xml:"net"`
	Name    string   `xml:"name,attr"`
	Version int      `xml:"version,attr"`
	Stats   xmlStats `xml:"statistics"`
}

type xmlStats struct {
	Grid int    `xml:"grid,attr"`
	Mean string `xml:"mean"`
	Std  string `xml:"std"`
}

type optimizedMetadata struct {
	ModelType   string    `json:"model_type"`
	Backbone    string    `json:"backbone"`
	ScoreScale  float64   `json:"score_scale"`
	Threshold   float64   `json:"threshold"`
	SampleCount int       `json:"sample_count"`
	ExportedAt  time.Time `json:"exported_at"`
}

// Export converts a checkpoint into the optimized bundle under outDir
func (e *OpenVINOExporter) Export(checkpointPath, outDir string) error {
	data, err := os.ReadFile(checkpointPath)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var ckpt checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return fmt.Errorf("failed to parse checkpoint: %w", err)
	}
	if err := ckpt.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	net := xmlNet{
		Name:    ckpt.ModelType,
		Version: 11,
		Stats: xmlStats{
			Grid: ckpt.Grid,
			Mean: joinFloats(ckpt.Mean),
			Std:  joinFloats(ckpt.Std),
		},
	}
	xmlData, err := xml.MarshalIndent(net, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, "model.xml"), xmlData, 0o644); err != nil {
		return err
	}

	meta := optimizedMetadata{
		ModelType:   ckpt.ModelType,
		Backbone:    ckpt.Backbone,
		ScoreScale:  ckpt.ScoreScale,
		Threshold:   0.5,
		SampleCount: ckpt.SampleCount,
		ExportedAt:  time.Now().UTC(),
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, "metadata.json"), metaData, 0o644)
}

// LoadOptimized loads the optimized bundle into a scoring model. The
// optimized path returns only a scalar score, never an anomaly map.
func LoadOptimized(modelPath, metadataPath string) (Model, error) {
	xmlData, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, err
	}
	var net xmlNet
	if err := xml.Unmarshal(xmlData, &net); err != nil {
		return nil, fmt.Errorf("unrecognized model definition: %w", err)
	}

	metaData, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, err
	}
	var meta optimizedMetadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("unrecognized model metadata: %w", err)
	}

	mean, err := splitFloats(net.Stats.Mean)
	if err != nil {
		return nil, fmt.Errorf("unrecognized model definition: %w", err)
	}
	std, err := splitFloats(net.Stats.Std)
	if err != nil {
		return nil, fmt.Errorf("unrecognized model definition: %w", err)
	}

	ckpt := checkpoint{
		ModelType:  meta.ModelType,
		Backbone:   meta.Backbone,
		Grid:       net.Stats.Grid,
		Mean:       mean,
		Std:        std,
		ScoreScale: meta.ScoreScale,
	}
	if err := ckpt.validate(); err != nil {
		return nil, err
	}
	return &optimizedModel{gridStatsModel{ckpt: ckpt}}, nil
}

// optimizedModel scores like the reference model but suppresses the anomaly
// map; the fast path serves scalars only.
type optimizedModel struct {
	gridStatsModel
}

func (m *optimizedModel) Score(img image.Image) (float64, *AnomalyMap, error) {
	score, _, err := m.gridStatsModel.Score(img)
	return score, nil, err
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func splitFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}
