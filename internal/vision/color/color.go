// Package color implements dominant-color detection (spec.md §4.5.3):
// pixels are classified against a table of named HSV ranges, tallied by
// histogram or k=3 kmeans, with an optional contour mask. Grounded on
// original_source/vision/color_detection.py and color_definitions.py's
// exact COLOR_DEFINITIONS table.
package color

import (
	"math"
	"sort"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

// Mode is the closed set of detection strategies.
type Mode string

const (
	Histogram Mode = "histogram"
	KMeans    Mode = "kmeans"
)

// hueRange is inclusive on both ends, in OpenCV's 0-179 hue convention.
type hueRange struct{ min, max int }

type definition struct {
	name      string
	hueRanges []hueRange // nil for achromatic colors
	satMin, satMax int
	valMin, valMax int
}

// achromatic must be checked, in this order, before the chromatic table.
var achromatic = []definition{
	{name: "white", satMin: 0, satMax: 30, valMin: 200, valMax: 255},
	{name: "black", satMin: 0, satMax: 50, valMin: 0, valMax: 50},
	{name: "gray", satMin: 0, satMax: 30, valMin: 51, valMax: 199},
}

// chromatic is checked in table order after achromatic; red wraps the hue
// circle with two ranges.
var chromatic = []definition{
	{name: "red", hueRanges: []hueRange{{0, 15}, {165, 180}}, satMin: 100, satMax: 255, valMin: 80, valMax: 255},
	{name: "orange", hueRanges: []hueRange{{16, 30}}, satMin: 100, satMax: 255, valMin: 80, valMax: 255},
	{name: "yellow", hueRanges: []hueRange{{31, 45}}, satMin: 100, satMax: 255, valMin: 100, valMax: 255},
	{name: "green", hueRanges: []hueRange{{46, 90}}, satMin: 100, satMax: 255, valMin: 80, valMax: 255},
	{name: "cyan", hueRanges: []hueRange{{91, 110}}, satMin: 100, satMax: 255, valMin: 80, valMax: 255},
	{name: "blue", hueRanges: []hueRange{{111, 140}}, satMin: 100, satMax: 255, valMin: 80, valMax: 255},
	{name: "purple", hueRanges: []hueRange{{141, 164}}, satMin: 100, satMax: 255, valMin: 80, valMax: 255},
}

func (d definition) matches(h, s, v int) bool {
	if s < d.satMin || s > d.satMax {
		return false
	}
	if v < d.valMin || v > d.valMax {
		return false
	}
	if d.hueRanges == nil {
		return true
	}
	for _, r := range d.hueRanges {
		if h >= r.min && h <= r.max {
			return true
		}
	}
	return false
}

// ClassifyHSV maps OpenCV-convention HSV (h in 0-179, s/v in 0-255) to the
// best-matching color name, checking achromatic colors first. Returns ""
// when no color matches.
func ClassifyHSV(h, s, v int) string {
	for _, d := range achromatic {
		if d.matches(h, s, v) {
			return d.name
		}
	}
	for _, d := range chromatic {
		if d.matches(h, s, v) {
			return d.name
		}
	}
	return ""
}

// rgbToHSVOpenCV converts 8-bit RGB to OpenCV's HSV convention: hue in
// [0, 179], saturation and value in [0, 255].
func rgbToHSVOpenCV(r, g, b uint8) (int, int, int) {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	var hue float64
	switch {
	case delta == 0:
		hue = 0
	case max == rf:
		hue = 60 * math.Mod((gf-bf)/delta, 6)
	case max == gf:
		hue = 60 * ((bf-rf)/delta + 2)
	default:
		hue = 60 * ((rf-gf)/delta + 4)
	}
	if hue < 0 {
		hue += 360
	}

	var sat float64
	if max > 0 {
		sat = delta / max
	}
	val := max

	return int(hue / 2), int(sat * 255), int(val * 255)
}

// Params configures Detect.
type Params struct {
	Mode            Mode
	MinPercentage   float64
	UseContourMask  bool
	Contour         []geometry.Point // in the ROI's local coordinates
	ExpectedColor   string
}

// Detect classifies every pixel of img's region (optionally masked by
// Contour) into the named color table, and emits exactly one color_region
// Object for the dominant color.
func Detect(img vision.Image, p Params) (*vision.Object, bool) {
	var mask func(x, y int) bool
	if p.UseContourMask && len(p.Contour) >= 3 {
		mask = polygonMask(p.Contour)
	}

	counts := make(map[string]int)
	analyzed := 0

	b := img.Img.Bounds()
	if p.Mode == KMeans {
		return detectKMeans(img, p, mask)
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask != nil && !mask(x-b.Min.X, y-b.Min.Y) {
				continue
			}
			r, g, bl, _ := img.Img.At(x, y).RGBA()
			h, s, v := rgbToHSVOpenCV(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			name := ClassifyHSV(h, s, v)
			if name == "" {
				name = "unknown"
			}
			counts[name]++
			analyzed++
		}
	}

	return emitFromCounts(img, p, counts, analyzed)
}

func emitFromCounts(img vision.Image, p Params, counts map[string]int, analyzed int) (*vision.Object, bool) {
	if analyzed == 0 {
		return nil, false
	}

	dominant := ""
	dominantCount := -1
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if counts[name] > dominantCount {
			dominantCount = counts[name]
			dominant = name
		}
	}

	percentage := 100.0 * float64(dominantCount) / float64(analyzed)

	percentages := make(map[string]float64, len(counts))
	for name, count := range counts {
		percentages[name] = 100.0 * float64(count) / float64(analyzed)
	}

	b := img.Img.Bounds()
	box := geometry.NewRectangle(b.Min.X, b.Min.Y, b.Dx(), b.Dy())
	cx, cy := box.Center()
	area := float64(analyzed)

	confidence := percentage / 100.0
	match := false
	if p.ExpectedColor != "" {
		match = dominant == p.ExpectedColor && percentage >= p.MinPercentage
	}

	obj := &vision.Object{
		ObjectType:  vision.ColorRegion,
		BoundingBox: box,
		Center:      geometry.NewPoint(float64(cx), float64(cy)),
		Confidence:  confidence,
		Area:        &area,
		Properties: map[string]interface{}{
			"dominant_color": dominant,
			"percentage":     percentage,
			"percentages":    percentages,
			"match":          match,
		},
	}
	return obj, true
}

// polygonMask returns a point-in-polygon test closure over contour, using
// the even-odd ray casting rule.
func polygonMask(contour []geometry.Point) func(x, y int) bool {
	return func(px, py int) bool {
		x, y := float64(px), float64(py)
		inside := false
		n := len(contour)
		for i, j := 0, n-1; i < n; j, i = i, i+1 {
			xi, yi := contour[i].X, contour[i].Y
			xj, yj := contour[j].X, contour[j].Y
			if ((yi > y) != (yj > y)) && (x < (xj-xi)*(y-yi)/(yj-yi)+xi) {
				inside = !inside
			}
		}
		return inside
	}
}

// detectKMeans clusters sampled pixels into k=3 centers using Lloyd's
// algorithm, maps each center to the color table, and aggregates
// percentages by mapped name.
func detectKMeans(img vision.Image, p Params, mask func(x, y int) bool) (*vision.Object, bool) {
	const k = 3
	b := img.Img.Bounds()

	type sample struct{ r, g, bl float64 }
	var samples []sample
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask != nil && !mask(x-b.Min.X, y-b.Min.Y) {
				continue
			}
			r, g, bl, _ := img.Img.At(x, y).RGBA()
			samples = append(samples, sample{float64(r >> 8), float64(g >> 8), float64(bl >> 8)})
		}
	}
	if len(samples) == 0 {
		return nil, false
	}

	centers := make([]sample, k)
	for i := range centers {
		centers[i] = samples[(i*len(samples))/k]
	}
	assignments := make([]int, len(samples))

	for iter := 0; iter < 25; iter++ {
		changed := false
		for i, s := range samples {
			best, bestDist := 0, math.Inf(1)
			for c, center := range centers {
				d := sqDist(s, center)
				if d < bestDist {
					bestDist = d
					best = c
				}
			}
			if assignments[i] != best {
				changed = true
			}
			assignments[i] = best
		}
		sums := make([]sample, k)
		counts := make([]int, k)
		for i, a := range assignments {
			sums[a].r += samples[i].r
			sums[a].g += samples[i].g
			sums[a].bl += samples[i].bl
			counts[a]++
		}
		for c := range centers {
			if counts[c] > 0 {
				centers[c] = sample{sums[c].r / float64(counts[c]), sums[c].g / float64(counts[c]), sums[c].bl / float64(counts[c])}
			}
		}
		if !changed {
			break
		}
	}

	counts := make(map[string]int)
	for _, a := range assignments {
		center := centers[a]
		h, s, v := rgbToHSVOpenCV(uint8(center.r), uint8(center.g), uint8(center.bl))
		name := ClassifyHSV(h, s, v)
		if name == "" {
			name = "unknown"
		}
		counts[name]++
	}

	return emitFromCounts(img, p, counts, len(samples))
}

func sqDist(a, b struct{ r, g, bl float64 }) float64 {
	dr, dg, db := a.r-b.r, a.g-b.g, a.bl-b.bl
	return dr*dr + dg*dg + db*db
}
