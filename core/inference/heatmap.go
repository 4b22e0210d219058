package inference

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"qc-inspector/core/engine"

	"golang.org/x/image/draw"
)

const (
	overlayOriginalWeight = 0.6
	overlayHeatWeight     = 0.4
	heatmapJPEGQuality    = 85
)

// RenderHeatmap overlays a colorized anomaly map on the original image and
// returns it as a base64 JPEG data URL.
func RenderHeatmap(src image.Image, amap *engine.AnomalyMap) (string, error) {
	if amap.Width <= 0 || amap.Height <= 0 || len(amap.Values) != amap.Width*amap.Height {
		return "", fmt.Errorf("malformed anomaly map: %dx%d with %d values", amap.Width, amap.Height, len(amap.Values))
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// Min-max normalize the map before colorizing.
	minV, maxV := amap.Values[0], amap.Values[0]
	for _, v := range amap.Values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	span := maxV - minV
	if span == 0 {
		span = 1
	}

	colored := image.NewRGBA(image.Rect(0, 0, amap.Width, amap.Height))
	for y := 0; y < amap.Height; y++ {
		for x := 0; x < amap.Width; x++ {
			t := (amap.At(x, y) - minV) / span
			r, g, b := jetColor(t)
			i := colored.PixOffset(x, y)
			colored.Pix[i] = r
			colored.Pix[i+1] = g
			colored.Pix[i+2] = b
			colored.Pix[i+3] = 0xff
		}
	}

	heat := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(heat, heat.Bounds(), colored, colored.Bounds(), draw.Src, nil)

	base := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(base, base.Bounds(), src, bounds.Min, draw.Src)

	for i := 0; i < len(base.Pix); i += 4 {
		base.Pix[i] = blend(base.Pix[i], heat.Pix[i])
		base.Pix[i+1] = blend(base.Pix[i+1], heat.Pix[i+1])
		base.Pix[i+2] = blend(base.Pix[i+2], heat.Pix[i+2])
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, base, &jpeg.Options{Quality: heatmapJPEGQuality}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func blend(original, heat uint8) uint8 {
	return uint8(overlayOriginalWeight*float64(original) + overlayHeatWeight*float64(heat))
}

// jetColor maps t in [0, 1] to the jet colormap
func jetColor(t float64) (uint8, uint8, uint8) {
	r := clampUnit(1.5 - abs(4*t-3))
	g := clampUnit(1.5 - abs(4*t-2))
	b := clampUnit(1.5 - abs(4*t-1))
	return uint8(r * 255), uint8(g * 255), uint8(b * 255)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
