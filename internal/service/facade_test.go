package service

import (
	"image"
	stdcolor "image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
	"github.com/uragamarco/proyecto-balistica/internal/history"
	"github.com/uragamarco/proyecto-balistica/internal/imagestore"
	"github.com/uragamarco/proyecto-balistica/internal/pipeline"
	"github.com/uragamarco/proyecto-balistica/internal/templatestore"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
	"github.com/uragamarco/proyecto-balistica/internal/vision/color"
	"github.com/uragamarco/proyecto-balistica/internal/vision/rotation"
	"github.com/uragamarco/proyecto-balistica/internal/vision/templatematch"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	images := imagestore.New(10, 1<<30, 5, nil)
	templates, err := templatestore.Open(filepath.Join(t.TempDir(), "templates"), 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { templates.Close() })
	hist := history.New(100, nil)
	orch := pipeline.New(images, 64, 70, nil)
	return New(images, templates, hist, orch, nil)
}

func grayImage(w, h int) vision.Image {
	return vision.NewImage(image.NewGray(image.Rect(0, 0, w, h)))
}

func solidRGBA(w, h int, r, g, b uint8) vision.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	c := stdcolor.NRGBA{R: r, G: g, B: b, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return vision.NewImage(img)
}

func TestRotationEstimateAlwaysPassesOnValidContour(t *testing.T) {
	f := newTestFacade(t)
	entry, err := f.images.Put("cam1", nil, grayImage(50, 50))
	require.NoError(t, err)

	contour := []geometry.Point{
		geometry.NewPoint(0, 0), geometry.NewPoint(10, 0),
		geometry.NewPoint(10, 4), geometry.NewPoint(0, 4),
	}
	insp, err := f.RotationEstimate(entry.ImageID, nil, contour, rotation.MinAreaRect, rotation.Range0To360, true)
	require.NoError(t, err)
	assert.Equal(t, history.Pass, insp.Outcome)
	assert.NotEmpty(t, insp.HistoryID)

	rec, err := f.history.Get(insp.HistoryID)
	require.NoError(t, err)
	assert.Equal(t, history.Pass, rec.Outcome)
}

func TestRotationEstimateErrorsRecordHistoryError(t *testing.T) {
	f := newTestFacade(t)
	entry, err := f.images.Put("cam1", nil, grayImage(50, 50))
	require.NoError(t, err)

	contour := []geometry.Point{geometry.NewPoint(0, 0), geometry.NewPoint(1, 1)}
	insp, err := f.RotationEstimate(entry.ImageID, nil, contour, rotation.MinAreaRect, rotation.Range0To360, true)
	assert.Error(t, err)
	assert.Nil(t, insp)

	recent := f.history.Recent(1, nil)
	require.Len(t, recent, 1)
	assert.Equal(t, history.Error, recent[0].Outcome)
}

func TestColorDetectFailsWhenExpectedColorMismatch(t *testing.T) {
	f := newTestFacade(t)
	entry, err := f.images.Put("cam1", nil, solidRGBA(10, 10, 0, 255, 0))
	require.NoError(t, err)

	insp, err := f.ColorDetect(entry.ImageID, nil, color.Params{
		Mode:          color.Histogram,
		ExpectedColor: "red",
		MinPercentage: 90,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, history.Fail, insp.Outcome)
	assert.Empty(t, insp.Objects)
}

func TestColorDetectPassesWithoutExpectedColor(t *testing.T) {
	f := newTestFacade(t)
	entry, err := f.images.Put("cam1", nil, solidRGBA(10, 10, 0, 255, 0))
	require.NoError(t, err)

	insp, err := f.ColorDetect(entry.ImageID, nil, color.Params{Mode: color.Histogram}, false)
	require.NoError(t, err)
	assert.Equal(t, history.Pass, insp.Outcome)
	require.Len(t, insp.Objects, 1)
}

func TestTemplateMatchZeroThresholdAlwaysPasses(t *testing.T) {
	f := newTestFacade(t)
	tmplID, err := f.templates.Upload("ref", "uniform reference patch", grayImage(4, 4))
	require.NoError(t, err)

	entry, err := f.images.Put("cam1", nil, grayImage(20, 20))
	require.NoError(t, err)

	insp, err := f.TemplateMatch(entry.ImageID, nil, tmplID, templatematch.SQDiff, 0.0, nil, 0, false)
	require.NoError(t, err)
	assert.Equal(t, history.Pass, insp.Outcome)
	require.Len(t, insp.Objects, 1)
}
