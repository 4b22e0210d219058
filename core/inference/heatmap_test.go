package inference

import (
	"image"
	"strings"
	"testing"

	"qc-inspector/core/engine"

	"github.com/stretchr/testify/require"
)

func TestRenderHeatmapProducesDataURL(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	amap := &engine.AnomalyMap{Width: 4, Height: 4, Values: make([]float64, 16)}
	amap.Values[5] = 3.0

	url, err := RenderHeatmap(img, amap)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))
	require.Greater(t, len(url), len("data:image/jpeg;base64,"))
}

func TestRenderHeatmapUniformMap(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	amap := &engine.AnomalyMap{Width: 2, Height: 2, Values: []float64{1, 1, 1, 1}}

	url, err := RenderHeatmap(img, amap)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))
}

func TestRenderHeatmapRejectsMalformedMap(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))

	_, err := RenderHeatmap(img, &engine.AnomalyMap{Width: 2, Height: 2, Values: nil})
	require.Error(t, err)

	_, err = RenderHeatmap(img, &engine.AnomalyMap{Width: 3, Height: 3, Values: []float64{1, 2}})
	require.Error(t, err)
}
