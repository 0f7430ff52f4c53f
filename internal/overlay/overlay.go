// Package overlay implements the stateless Overlay Renderer (spec.md
// §4.6): drawing routines per detector type over a mutable pixel buffer.
// Grounded on the repeated _create_visualization methods across
// original_source/vision/*.py, unified into one renderer.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

var (
	green  = color.RGBA{0, 200, 0, 255}
	yellow = color.RGBA{220, 220, 0, 255}
	red    = color.RGBA{220, 0, 0, 255}
	cyan   = color.RGBA{0, 200, 200, 255}
	white  = color.RGBA{255, 255, 255, 255}
)

// Render draws every object onto a mutable copy of img, following the
// per-detector routines in spec.md §4.6, and returns the annotated image.
func Render(img vision.Image, objects []*vision.Object) *image.NRGBA {
	canvas := toNRGBA(img.Img)

	largestArea := -1.0
	for _, obj := range objects {
		if obj.Area != nil && *obj.Area > largestArea {
			largestArea = *obj.Area
		}
	}

	for _, obj := range objects {
		switch obj.ObjectType {
		case vision.TemplateMatch:
			drawTemplateMatch(canvas, obj)
		case vision.EdgeContour:
			drawEdgeContour(canvas, obj, largestArea)
		case vision.ColorRegion:
			drawColorRegion(canvas, obj)
		case vision.ArucoMarker:
			drawArucoMarker(canvas, obj)
		case vision.RotationAnalysis:
			drawRotationAnalysis(canvas, obj)
		}
	}

	if len(objects) == 0 {
		drawText(canvas, 5, 15, "Contours: 0", white)
	}
	return canvas
}

func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

func drawTemplateMatch(canvas *image.NRGBA, obj *vision.Object) {
	drawRect(canvas, obj.BoundingBox, green)
	label := fmt.Sprintf("conf=%.2f", obj.Confidence)
	drawText(canvas, obj.BoundingBox.X, obj.BoundingBox.Y-5, label, green)
}

func drawEdgeContour(canvas *image.NRGBA, obj *vision.Object, largestArea float64) {
	c := yellow
	if obj.Area != nil && *obj.Area == largestArea {
		c = green
	}
	drawPolyline(canvas, obj.Contour, c, true)
	drawRect(canvas, obj.BoundingBox, c)
	drawDot(canvas, obj.Center, c)
}

func drawColorRegion(canvas *image.NRGBA, obj *vision.Object) {
	match, _ := obj.Properties["match"].(bool)
	c := green
	badge := "MATCH"
	if !match {
		c = red
		badge = "FAIL"
	}
	drawRect(canvas, obj.BoundingBox, c)

	name, _ := obj.Properties["dominant_color"].(string)
	pct, _ := obj.Properties["percentage"].(float64)
	label := fmt.Sprintf("%s (%.1f%%) %s", name, pct, badge)
	drawText(canvas, obj.BoundingBox.X, obj.BoundingBox.Y-5, label, c)

	if len(obj.Contour) >= 3 {
		drawPolyline(canvas, obj.Contour, cyan, true)
	}
}

func drawArucoMarker(canvas *image.NRGBA, obj *vision.Object) {
	drawPolyline(canvas, obj.Contour, green, true)
	drawRect(canvas, obj.BoundingBox, green)
	if id, ok := obj.Properties["marker_id"]; ok {
		drawText(canvas, obj.BoundingBox.X, obj.BoundingBox.Y-5, fmt.Sprintf("id=%v", id), green)
	}
	drawDot(canvas, obj.Center, green)

	if len(obj.Contour) == 4 {
		drawArrow(canvas, obj.Center, obj.Contour[1], yellow)
	}
}

func drawRotationAnalysis(canvas *image.NRGBA, obj *vision.Object) {
	drawPolyline(canvas, obj.Contour, yellow, true)
	drawDot(canvas, obj.Center, yellow)

	if obj.RotationDeg != nil {
		const length = 30.0
		rad := *obj.RotationDeg * math.Pi / 180
		tip := geometry.NewPoint(obj.Center.X+length*math.Cos(rad), obj.Center.Y+length*math.Sin(rad))
		drawArrow(canvas, obj.Center, tip, yellow)
	}
}

func drawRect(canvas *image.NRGBA, r geometry.Rectangle, c color.Color) {
	drawHLine(canvas, r.X, r.X2(), r.Y, c)
	drawHLine(canvas, r.X, r.X2(), r.Y2(), c)
	drawVLine(canvas, r.X, r.Y, r.Y2(), c)
	drawVLine(canvas, r.X2(), r.Y, r.Y2(), c)
}

func drawHLine(canvas *image.NRGBA, x0, x1, y int, c color.Color) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	for x := x0; x <= x1; x++ {
		setSafe(canvas, x, y, c)
	}
}

func drawVLine(canvas *image.NRGBA, x, y0, y1 int, c color.Color) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		setSafe(canvas, x, y, c)
	}
}

func drawPolyline(canvas *image.NRGBA, points []geometry.Point, c color.Color, closed bool) {
	if len(points) < 2 {
		return
	}
	n := len(points)
	limit := n - 1
	if closed {
		limit = n
	}
	for i := 0; i < limit; i++ {
		j := (i + 1) % n
		drawLine(canvas, points[i], points[j], c)
	}
}

func drawLine(canvas *image.NRGBA, a, b geometry.Point, c color.Color) {
	x0, y0 := int(a.X), int(a.Y)
	x1, y1 := int(b.X), int(b.Y)
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 >= x1 {
		sx = -1
	}
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy
	for {
		setSafe(canvas, x0, y0, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func drawArrow(canvas *image.NRGBA, from, to geometry.Point, c color.Color) {
	drawLine(canvas, from, to, c)

	angle := math.Atan2(to.Y-from.Y, to.X-from.X)
	const headLen = 6.0
	const headAngle = 0.5
	left := geometry.NewPoint(to.X-headLen*math.Cos(angle-headAngle), to.Y-headLen*math.Sin(angle-headAngle))
	right := geometry.NewPoint(to.X-headLen*math.Cos(angle+headAngle), to.Y-headLen*math.Sin(angle+headAngle))
	drawLine(canvas, to, left, c)
	drawLine(canvas, to, right, c)
}

func drawDot(canvas *image.NRGBA, p geometry.Point, c color.Color) {
	cx, cy := int(p.X), int(p.Y)
	const r = 2
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				setSafe(canvas, cx+dx, cy+dy, c)
			}
		}
	}
}

func drawText(canvas *image.NRGBA, x, y int, text string, c color.Color) {
	// Filled background band for contrast, matching the renderer's
	// repeated "text with optional filled background" contract.
	width := 7 * len(text)
	for dy := -10; dy <= 2; dy++ {
		for dx := -1; dx <= width; dx++ {
			setSafe(canvas, x+dx, y+dy, color.RGBA{0, 0, 0, 160})
		}
	}

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func setSafe(canvas *image.NRGBA, x, y int, c color.Color) {
	if x < canvas.Bounds().Min.X || x >= canvas.Bounds().Max.X || y < canvas.Bounds().Min.Y || y >= canvas.Bounds().Max.Y {
		return
	}
	canvas.Set(x, y, c)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
