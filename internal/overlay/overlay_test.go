package overlay

import (
	"image"
	stdcolor "image/color"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

func blankImage(w, h int) vision.Image {
	return vision.NewImage(image.NewGray(image.Rect(0, 0, w, h)))
}

func TestRenderEmptyObjectsDrawsZeroContoursText(t *testing.T) {
	img := blankImage(80, 40)
	out := Render(img, nil)

	found := false
	for x := out.Bounds().Min.X; x < out.Bounds().Max.X; x++ {
		for y := out.Bounds().Min.Y; y < out.Bounds().Max.Y; y++ {
			r, g, b, a := out.At(x, y).RGBA()
			if a > 0 && (r != 0 || g != 0 || b != 0) {
				found = true
			}
		}
	}
	assert.True(t, found, "some non-background pixel must be drawn for the 'Contours: 0' label")
}

func TestRenderTemplateMatchDrawsBoundingBox(t *testing.T) {
	img := blankImage(60, 60)
	conf := 0.9
	obj := &vision.Object{
		ObjectType:  vision.TemplateMatch,
		BoundingBox: geometry.NewRectangle(10, 10, 20, 20),
		Confidence:  conf,
	}
	out := Render(img, []*vision.Object{obj})

	// top-left corner of the box must be non-background (green).
	r, g, b, _ := out.At(10, 10).RGBA()
	assert.NotEqual(t, stdcolor.RGBA{0, 0, 0, 0}, stdcolor.RGBA{uint8(r), uint8(g), uint8(b), 0})
}

func TestRenderDoesNotPanicOnOutOfBoundsCoordinates(t *testing.T) {
	img := blankImage(10, 10)
	obj := &vision.Object{
		ObjectType:  vision.TemplateMatch,
		BoundingBox: geometry.NewRectangle(-5, -5, 1000, 1000),
		Confidence:  1,
	}
	assert.NotPanics(t, func() { Render(img, []*vision.Object{obj}) })
}
