package fiducial

import (
	"image"
	stdcolor "image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

func onWhiteCanvas(size int, marker *image.Gray, ox, oy int) vision.Image {
	canvas := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			canvas.SetGray(x, y, stdcolor.Gray{Y: 255})
		}
	}
	mb := marker.Bounds()
	for y := 0; y < mb.Dy(); y++ {
		for x := 0; x < mb.Dx(); x++ {
			canvas.SetGray(ox+x, oy+y, marker.GrayAt(mb.Min.X+x, mb.Min.Y+y))
		}
	}
	return vision.NewImage(canvas)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	marker := Encode(Dict4x4_50, 7, 10)
	img := onWhiteCanvas(120, marker, 20, 20)

	obj, ok := Detect(img, Params{Dictionary: Dict4x4_50, CellPixels: 10})
	require.True(t, ok)
	assert.Equal(t, 7, obj.Properties["marker_id"])
}

func TestDetectProducesFourOrderedCorners(t *testing.T) {
	marker := Encode(Dict5x5_100, 3, 8)
	img := onWhiteCanvas(120, marker, 10, 10)

	obj, ok := Detect(img, Params{Dictionary: Dict5x5_100, CellPixels: 8})
	require.True(t, ok)
	require.Len(t, obj.Contour, 4)

	tl, tr, br, bl := obj.Contour[0], obj.Contour[1], obj.Contour[2], obj.Contour[3]
	assert.Less(t, tl.X, tr.X)
	assert.Equal(t, tl.Y, tr.Y)
	assert.Equal(t, tr.X, br.X)
	assert.Less(t, tr.Y, br.Y)
	assert.Equal(t, bl.X, tl.X)
}

func TestDetectNoMarkerReturnsFalse(t *testing.T) {
	canvas := image.NewGray(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			canvas.SetGray(x, y, stdcolor.Gray{Y: 128})
		}
	}
	_, ok := Detect(vision.NewImage(canvas), Params{Dictionary: Dict4x4_50})
	assert.False(t, ok)
}
