package color

import (
	"image"
	stdcolor "image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

func solidRGBA(w, h int, r, g, b uint8) vision.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, stdcolor.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return vision.NewImage(img)
}

func TestClassifyHSVAchromaticBeforeChromatic(t *testing.T) {
	assert.Equal(t, "white", ClassifyHSV(0, 0, 255))
	assert.Equal(t, "black", ClassifyHSV(0, 0, 0))
	assert.Equal(t, "gray", ClassifyHSV(0, 10, 120))
}

func TestClassifyHSVRedWrapsHueCircle(t *testing.T) {
	assert.Equal(t, "red", ClassifyHSV(2, 200, 200))
	assert.Equal(t, "red", ClassifyHSV(170, 200, 200))
}

func TestDetectHistogramSolidRegionIsDominant(t *testing.T) {
	img := solidRGBA(10, 10, 255, 0, 0) // pure red

	obj, ok := Detect(img, Params{Mode: Histogram, ExpectedColor: "red", MinPercentage: 90})
	require.True(t, ok)
	assert.Equal(t, "red", obj.Properties["dominant_color"])
	assert.GreaterOrEqual(t, obj.Properties["percentage"].(float64), 99.0)
	assert.True(t, obj.Properties["match"].(bool))
}

func TestDetectSingleRegionAreaIsOne(t *testing.T) {
	img := solidRGBA(1, 1, 10, 10, 10)

	obj, ok := Detect(img, Params{Mode: Histogram})
	require.True(t, ok)
	require.NotNil(t, obj.Area)
	assert.Equal(t, 1.0, *obj.Area)
}

func TestDetectKMeansReturnsDominant(t *testing.T) {
	img := solidRGBA(12, 12, 0, 255, 0) // pure green

	obj, ok := Detect(img, Params{Mode: KMeans})
	require.True(t, ok)
	assert.Equal(t, "green", obj.Properties["dominant_color"])
}

func halfAndHalf(w, h int, left, right stdcolor.NRGBA) vision.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.SetNRGBA(x, y, left)
			} else {
				img.SetNRGBA(x, y, right)
			}
		}
	}
	return vision.NewImage(img)
}

func TestDetectHistogramPercentagesCoverEveryClassifiedColor(t *testing.T) {
	img := halfAndHalf(10, 10, stdcolor.NRGBA{R: 255, G: 0, B: 0, A: 255}, stdcolor.NRGBA{R: 0, G: 0, B: 255, A: 255})

	obj, ok := Detect(img, Params{Mode: Histogram})
	require.True(t, ok)

	percentages, ok := obj.Properties["percentages"].(map[string]float64)
	require.True(t, ok, "percentages must be a map[string]float64")
	require.Contains(t, percentages, "red")
	require.Contains(t, percentages, "blue")
	assert.InDelta(t, 50.0, percentages["red"], 0.01)
	assert.InDelta(t, 50.0, percentages["blue"], 0.01)

	var sum float64
	for _, pct := range percentages {
		sum += pct
	}
	assert.InDelta(t, 100.0, sum, 0.01, "per-color percentages must sum to the whole analyzed region")
}
