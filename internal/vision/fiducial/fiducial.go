// Package fiducial implements square fiducial marker detection (spec.md
// §4.5.4): locate a quiet-bordered n×n black/white data grid, decode its
// bit pattern to an integer id, and report ordered corners, bounding box,
// center, rotation, area, and perimeter. Grounded on
// original_source/vision/aruco_detection.py's _process_marker (corner
// ordering, rotation-from-top-edge formula, shoelace area).
//
// No example repo or ecosystem library decodes OpenCV-compatible ArUco bit
// patterns, so this package defines its own square marker encoding: a
// quiet white border one cell wide, surrounding an n×n grid of black/white
// data cells read in row-major order as a binary integer id. Encode
// synthesizes markers of this format for tests; Detect locates and decodes
// them. Id 0 (an all-white data grid) is never detected: Detect skips any
// window whose data grid is all white. See DESIGN.md for the rationale.
package fiducial

import (
	"image"
	stdcolor "image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

// Dictionary names the closed set of grid sizes spec.md §4.5.4 lists; the
// numeric suffix (how many distinct ids the dictionary can enumerate) is
// informational only for this module's synthetic format.
type Dictionary string

const (
	Dict4x4_50    Dictionary = "4x4_50"
	Dict5x5_100   Dictionary = "5x5_100"
	Dict6x6_250   Dictionary = "6x6_250"
	Dict7x7_1000  Dictionary = "7x7_1000"
)

func gridSize(dict Dictionary) int {
	switch dict {
	case Dict4x4_50:
		return 4
	case Dict5x5_100:
		return 5
	case Dict6x6_250:
		return 6
	case Dict7x7_1000:
		return 7
	default:
		return 4
	}
}

// Params configures Detect.
type Params struct {
	Dictionary Dictionary
	CellPixels int // pixel width of one grid cell when scanning; defaults to 10
}

// Encode renders id as a marker image of the given dictionary at
// cellPixels per cell (plus a one-cell quiet border), for use in tests
// that need a synthesizable marker.
func Encode(dict Dictionary, id int, cellPixels int) *image.Gray {
	if cellPixels <= 0 {
		cellPixels = 10
	}
	n := gridSize(dict)
	total := (n + 2) * cellPixels
	img := image.NewGray(image.Rect(0, 0, total, total))
	for y := 0; y < total; y++ {
		for x := 0; x < total; x++ {
			img.SetGray(x, y, stdcolor.Gray{Y: 255})
		}
	}

	bits := idToBits(id, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			if !bits[row*n+col] {
				continue
			}
			x0 := (col + 1) * cellPixels
			y0 := (row + 1) * cellPixels
			for y := y0; y < y0+cellPixels; y++ {
				for x := x0; x < x0+cellPixels; x++ {
					img.SetGray(x, y, stdcolor.Gray{Y: 0})
				}
			}
		}
	}
	return img
}

func idToBits(id, count int) []bool {
	bits := make([]bool, count)
	for i := count - 1; i >= 0; i-- {
		bits[i] = id&1 == 1
		id >>= 1
	}
	return bits
}

func anyTrue(bits []bool) bool {
	for _, b := range bits {
		if b {
			return true
		}
	}
	return false
}

func bitsToID(bits []bool) int {
	id := 0
	for _, b := range bits {
		id <<= 1
		if b {
			id |= 1
		}
	}
	return id
}

// Detect scans img for a single axis-aligned instance of this package's
// marker format sized to Params.Dictionary, decodes its id, and reports
// the standard marker fields. Returns (nil, false) when no marker is
// found. Only axis-aligned markers the full width/height of a located
// square region are supported, matching the scope of the synthetic
// format's reference decoder.
func Detect(img vision.Image, p Params) (*vision.Object, bool) {
	cellPixels := p.CellPixels
	if cellPixels <= 0 {
		cellPixels = 10
	}
	n := gridSize(p.Dictionary)

	gray := toGray(img.Img)
	b := gray.Bounds()
	markerSize := (n + 2) * cellPixels
	if b.Dx() < markerSize || b.Dy() < markerSize {
		return nil, false
	}

	// Scan for the top-left corner of a region whose outer ring is
	// entirely white (the quiet border) — the synthetic format's locator.
	for y := b.Min.Y; y+markerSize <= b.Max.Y; y++ {
		for x := b.Min.X; x+markerSize <= b.Max.X; x++ {
			if !isQuietBorder(gray, x, y, markerSize, cellPixels) {
				continue
			}
			bits := decodeGrid(gray, x, y, n, cellPixels)
			if !anyTrue(bits) {
				// An all-white data grid is indistinguishable from a blank
				// region of the quiet border itself; this synthetic format
				// cannot represent id 0 (see package doc).
				continue
			}
			id := bitsToID(bits)

			tl := geometry.NewPoint(float64(x), float64(y))
			tr := geometry.NewPoint(float64(x+markerSize), float64(y))
			br := geometry.NewPoint(float64(x+markerSize), float64(y+markerSize))
			bl := geometry.NewPoint(float64(x), float64(y+markerSize))
			corners := []geometry.Point{tl, tr, br, bl}

			rotation := math.Atan2(tr.Y-tl.Y, tr.X-tl.X) * 180 / math.Pi
			for rotation < 0 {
				rotation += 360
			}

			area := shoelace(corners)
			perimeter := polylineLength(corners)
			cx, cy := meanPoint(corners)

			box := geometry.NewRectangle(x, y, markerSize, markerSize)
			r := rotation
			a := area
			per := perimeter
			obj := &vision.Object{
				ObjectType:  vision.ArucoMarker,
				BoundingBox: box,
				Center:      geometry.NewPoint(cx, cy),
				Confidence:  1.0,
				Area:        &a,
				Perimeter:   &per,
				RotationDeg: &r,
				Contour:     corners,
				Properties: map[string]interface{}{
					"marker_id":  id,
					"dictionary": string(p.Dictionary),
				},
			}
			return obj, true
		}
	}
	return nil, false
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	return imaging.Grayscale(img)
}

// isQuietBorder verifies every pixel of the one-cell-wide border band
// around the data grid is white. Checking the full band (not just a
// sparse sample of the outer edge) is what lets the scan reject windows
// that partially overlap a real marker: a misaligned window's border
// band would then include some of the marker's interior black cells.
func isQuietBorder(gray *image.Gray, x0, y0, size, cellPixels int) bool {
	white := func(x, y int) bool { return gray.GrayAt(x, y).Y > 200 }
	for y := y0; y < y0+size; y++ {
		for x := x0; x < x0+size; x++ {
			inBand := x < x0+cellPixels || x >= x0+size-cellPixels ||
				y < y0+cellPixels || y >= y0+size-cellPixels
			if inBand && !white(x, y) {
				return false
			}
		}
	}
	return true
}

func decodeGrid(gray *image.Gray, x0, y0, n, cellPixels int) []bool {
	bits := make([]bool, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			cx := x0 + (col+1)*cellPixels + cellPixels/2
			cy := y0 + (row+1)*cellPixels + cellPixels/2
			bits[row*n+col] = gray.GrayAt(cx, cy).Y < 128
		}
	}
	return bits
}

func shoelace(points []geometry.Point) float64 {
	var sum float64
	n := len(points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += points[i].X*points[j].Y - points[j].X*points[i].Y
	}
	if sum < 0 {
		sum = -sum
	}
	return sum / 2
}

func polylineLength(points []geometry.Point) float64 {
	var total float64
	n := len(points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		dx := points[j].X - points[i].X
		dy := points[j].Y - points[i].Y
		total += math.Hypot(dx, dy)
	}
	return total
}

func meanPoint(points []geometry.Point) (float64, float64) {
	var sx, sy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(points))
	return sx / n, sy / n
}
