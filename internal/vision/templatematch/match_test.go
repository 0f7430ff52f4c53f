package templatematch

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

func solidGray(w, h int, v uint8) vision.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return vision.NewImage(img)
}

func withPatch(w, h, px, py, pw, ph int, bg, fg uint8) vision.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: bg})
		}
	}
	for y := py; y < py+ph; y++ {
		for x := px; x < px+pw; x++ {
			img.SetGray(x, y, color.Gray{Y: fg})
		}
	}
	return vision.NewImage(img)
}

func TestDetectFindsExactPatch(t *testing.T) {
	scene := withPatch(40, 40, 15, 12, 8, 8, 50, 220)
	template := solidGray(8, 8, 220)

	obj, ok, err := Detect(scene, template, Params{TemplateID: "t1", Method: SQDiff, Threshold: DefaultThreshold})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 15, obj.BoundingBox.X)
	assert.Equal(t, 12, obj.BoundingBox.Y)
}

func TestDetectZeroThresholdNeverEmpty(t *testing.T) {
	scene := solidGray(20, 20, 128)
	template := solidGray(4, 4, 200)

	_, ok, err := Detect(scene, template, Params{Method: SQDiff, Threshold: 0.0})
	require.NoError(t, err)
	assert.True(t, ok, "threshold=0.0 must always accept the best location for non-empty inputs")
}

func TestDetectRejectsWhenThresholdTooHigh(t *testing.T) {
	scene := withPatch(20, 20, 2, 2, 4, 4, 10, 250)
	template := solidGray(4, 4, 0)

	_, ok, err := Detect(scene, template, Params{Method: CCoeff, Threshold: 0.999999})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDetectRawSQDiffFindsExactPatchAtZeroThreshold(t *testing.T) {
	scene := withPatch(40, 40, 15, 12, 8, 8, 50, 220)
	template := solidGray(8, 8, 220)

	obj, ok, err := Detect(scene, template, Params{TemplateID: "t1", Method: SQDiffRaw, Threshold: 0.0})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 15, obj.BoundingBox.X)
	assert.Equal(t, 12, obj.BoundingBox.Y)
}

func TestDetectRawCCoeffFindsExactPatch(t *testing.T) {
	// CCoeff mean-subtracts before correlating, so a solid-color template
	// would score 0 everywhere; use a checkerboard template so the mean
	// subtraction has something to discriminate on.
	tmpl := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			v := uint8(80)
			if (x+y)%2 == 0 {
				v = 220
			}
			tmpl.SetGray(x, y, color.Gray{Y: v})
		}
	}

	scene := image.NewGray(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			scene.SetGray(x, y, color.Gray{Y: 128})
		}
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			scene.Set(6+x, 6+y, tmpl.At(x, y))
		}
	}

	obj, ok, err := Detect(vision.NewImage(scene), vision.NewImage(tmpl), Params{Method: CCoeffRaw, Threshold: 0.0})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 6, obj.BoundingBox.X)
	assert.Equal(t, 6, obj.BoundingBox.Y)
}

func TestDetectMultiScaleAnnotatesWinningScale(t *testing.T) {
	scene := withPatch(40, 40, 10, 10, 16, 16, 50, 220)
	template := solidGray(8, 8, 220)
	scaleRange := [2]float64{1.0, 2.0}

	obj, ok, err := Detect(scene, template, Params{
		Method:     SQDiff,
		Threshold:  DefaultThreshold,
		ScaleRange: &scaleRange,
		ScaleSteps: 3,
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, obj.Properties, "scale")
}
