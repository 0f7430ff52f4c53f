// Package edge implements edge-based contour detection (spec.md §4.5.2):
// preprocessing (blur -> bilateral -> morphology -> equalize), one of six
// gradient operators producing a binary edge image, contour extraction,
// and area/perimeter filtering with polygon approximation. Grounded on
// original_source/vision/edge_detection.py.
package edge

import (
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

// Method is the closed set of supported edge operators.
type Method string

const (
	Canny                 Method = "canny"
	Sobel                 Method = "sobel"
	Laplacian             Method = "laplacian"
	Prewitt               Method = "prewitt"
	Scharr                Method = "scharr"
	MorphologicalGradient Method = "morphological_gradient"
)

// MorphOp selects which morphological transform the preprocessing step
// applies when MorphologyKernelSize > 0. Mirrors
// preprocessing.get("morphology_operation", "close") in the original.
type MorphOp string

const (
	MorphClose    MorphOp = "close"
	MorphOpen     MorphOp = "open"
	MorphGradient MorphOp = "gradient"
)

// Preprocessing toggles, applied in the fixed order blur -> bilateral ->
// morphology -> equalize.
type Preprocessing struct {
	GaussianBlur      bool
	GaussianBlurSigma float64

	BilateralFilter     bool
	BilateralDiameter    int     // window diameter; 0 defaults to 9
	BilateralSigmaColor  float64 // 0 defaults to 75
	BilateralSigmaSpace  float64 // 0 defaults to 75

	MorphologyKernelSize int // 0 disables the morphology step
	MorphologyOperation  MorphOp

	HistogramEqualize bool
}

// ContourFilters bounds which contours survive into the result.
type ContourFilters struct {
	MinArea      float64
	MaxArea      float64 // 0 means unbounded
	MinPerimeter float64
	MaxPerimeter float64 // 0 means unbounded
	MaxContours  int
}

// Params configures Detect.
type Params struct {
	Method         Method
	CannyLow       float64
	CannyHigh      float64
	GradientThresh float64 // threshold applied to the gradient magnitude
	Preprocess     Preprocessing
	Filters        ContourFilters
}

// Detect runs the configured preprocessing and edge operator, extracts and
// filters contours, and returns one edge_contour Object per surviving
// contour plus the preprocessed grayscale buffer the overlay can draw on.
func Detect(img vision.Image, p Params) ([]*vision.Object, *image.Gray, error) {
	gray := preprocess(img.Img, p.Preprocess)
	binary := applyOperator(gray, p)

	contours := traceContours(binary)
	objects := make([]*vision.Object, 0, len(contours))
	for _, c := range contours {
		area := shoelaceArea(c)
		perimeter := perimeterOf(c)

		if area < p.Filters.MinArea {
			continue
		}
		if p.Filters.MaxArea > 0 && area > p.Filters.MaxArea {
			continue
		}
		if perimeter < p.Filters.MinPerimeter {
			continue
		}
		if p.Filters.MaxPerimeter > 0 && perimeter > p.Filters.MaxPerimeter {
			continue
		}

		box := boundingBox(c)
		centroid := centroidOf(c)
		approx := approxPolygon(c, 0.02*perimeter)

		a := area
		per := perimeter
		obj := &vision.Object{
			ObjectType:  vision.EdgeContour,
			BoundingBox: box,
			Center:      centroid,
			Confidence:  1.0,
			Area:        &a,
			Perimeter:   &per,
			Contour:     c,
			Properties: map[string]interface{}{
				"vertex_count": len(approx),
			},
		}
		objects = append(objects, obj)
	}

	sort.Slice(objects, func(i, j int) bool { return *objects[i].Area > *objects[j].Area })
	if p.Filters.MaxContours > 0 && len(objects) > p.Filters.MaxContours {
		objects = objects[:p.Filters.MaxContours]
	}

	return objects, gray, nil
}

func preprocess(img image.Image, p Preprocessing) *image.Gray {
	working := img

	if p.GaussianBlur {
		sigma := p.GaussianBlurSigma
		if sigma == 0 {
			sigma = 1.0
		}
		working = imaging.Blur(working, sigma)
	}
	gray := imaging.Grayscale(working)
	if p.BilateralFilter {
		d := p.BilateralDiameter
		if d == 0 {
			d = 9
		}
		sigmaColor := p.BilateralSigmaColor
		if sigmaColor == 0 {
			sigmaColor = 75
		}
		sigmaSpace := p.BilateralSigmaSpace
		if sigmaSpace == 0 {
			sigmaSpace = 75
		}
		gray = bilateralFilter(gray, d, sigmaColor, sigmaSpace)
	}
	if p.MorphologyKernelSize > 0 {
		switch p.MorphologyOperation {
		case MorphOpen:
			gray = morphOpen(gray, p.MorphologyKernelSize)
		case MorphGradient:
			gray = morphGradientImage(gray, p.MorphologyKernelSize)
		default: // MorphClose, and the zero value
			gray = morphClose(gray, p.MorphologyKernelSize)
		}
	}
	if p.HistogramEqualize {
		gray = equalizeHistogram(gray)
	}
	return gray
}

// bilateralFilter smooths gray while preserving edges: each output pixel is
// a weighted average of its window, weighted by a spatial Gaussian (sigma
// sigmaSpace) and a range Gaussian over intensity difference (sigma
// sigmaColor), matching cv2.bilateralFilter(d, sigmaColor, sigmaSpace).
// disintegration/imaging has no equivalent and no library in the module's
// dependency set implements it (see DESIGN.md).
func bilateralFilter(gray *image.Gray, d int, sigmaColor, sigmaSpace float64) *image.Gray {
	b := gray.Bounds()
	out := image.NewGray(b)
	r := d / 2
	if r < 1 {
		r = 1
	}

	px := func(x, y int) float64 {
		if x < b.Min.X {
			x = b.Min.X
		}
		if x >= b.Max.X {
			x = b.Max.X - 1
		}
		if y < b.Min.Y {
			y = b.Min.Y
		}
		if y >= b.Max.Y {
			y = b.Max.Y - 1
		}
		return float64(gray.GrayAt(x, y).Y)
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			center := px(x, y)
			var sum, weightSum float64
			for j := -r; j <= r; j++ {
				for i := -r; i <= r; i++ {
					v := px(x+i, y+j)
					spatial := math.Exp(-float64(i*i+j*j) / (2 * sigmaSpace * sigmaSpace))
					rangeDiff := v - center
					rangeW := math.Exp(-(rangeDiff * rangeDiff) / (2 * sigmaColor * sigmaColor))
					w := spatial * rangeW
					sum += v * w
					weightSum += w
				}
			}
			out.SetGray(x, y, color8(uint8(sum/weightSum+0.5)))
		}
	}
	return out
}

// equalizeHistogram redistributes intensities by their cumulative
// distribution function so the output histogram is approximately uniform,
// matching cv2.equalizeHist. Hand-rolled on the standard library for the
// same reason as bilateralFilter (see DESIGN.md).
func equalizeHistogram(gray *image.Gray) *image.Gray {
	b := gray.Bounds()
	var hist [256]int
	total := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
			total++
		}
	}
	if total == 0 {
		return gray
	}

	var cdf [256]int
	running := 0
	for i, count := range hist {
		running += count
		cdf[i] = running
	}
	cdfMin := 0
	for _, count := range cdf {
		if count > 0 {
			cdfMin = count
			break
		}
	}

	var lut [256]uint8
	denom := total - cdfMin
	for i, count := range cdf {
		if denom <= 0 {
			lut[i] = uint8(i)
			continue
		}
		lut[i] = uint8(math.Round(float64(count-cdfMin) / float64(denom) * 255))
	}

	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetGray(x, y, color8(lut[gray.GrayAt(x, y).Y]))
		}
	}
	return out
}

func applyOperator(gray *image.Gray, p Params) *image.Gray {
	switch p.Method {
	case Sobel:
		return thresholdMagnitude(sobelGradients(gray), p.GradientThresh)
	case Scharr:
		return thresholdMagnitude(scharrGradients(gray), p.GradientThresh)
	case Prewitt:
		return thresholdMagnitude(prewittGradients(gray), p.GradientThresh)
	case Laplacian:
		return laplacianThresholded(gray, p.GradientThresh)
	case MorphologicalGradient:
		return morphologicalGradient(gray, 3, p.GradientThresh)
	default: // Canny
		return canny(gray, p.CannyLow, p.CannyHigh)
	}
}

// gradients holds the computed Gx/Gy at every pixel for the separable
// operators (sobel/scharr/prewitt), sized like the source.
type gradients struct {
	w, h   int
	gx, gy []float64
}

func (g gradients) at(x, y int) (float64, float64) {
	return g.gx[y*g.w+x], g.gy[y*g.w+x]
}

func convolveKernels(gray *image.Gray, kx, ky [3][3]float64) gradients {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	g := gradients{w: w, h: h, gx: make([]float64, w*h), gy: make([]float64, w*h)}

	px := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= h {
			y = h - 1
		}
		return float64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sx, sy float64
			for j := -1; j <= 1; j++ {
				for i := -1; i <= 1; i++ {
					v := px(x+i, y+j)
					sx += v * kx[j+1][i+1]
					sy += v * ky[j+1][i+1]
				}
			}
			g.gx[y*w+x] = sx
			g.gy[y*w+x] = sy
		}
	}
	return g
}

func sobelGradients(gray *image.Gray) gradients {
	kx := [3][3]float64{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
	ky := [3][3]float64{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}
	return convolveKernels(gray, kx, ky)
}

func scharrGradients(gray *image.Gray) gradients {
	kx := [3][3]float64{{-3, 0, 3}, {-10, 0, 10}, {-3, 0, 3}}
	ky := [3][3]float64{{-3, -10, -3}, {0, 0, 0}, {3, 10, 3}}
	return convolveKernels(gray, kx, ky)
}

func prewittGradients(gray *image.Gray) gradients {
	kx := [3][3]float64{{-1, 0, 1}, {-1, 0, 1}, {-1, 0, 1}}
	ky := [3][3]float64{{-1, -1, -1}, {0, 0, 0}, {1, 1, 1}}
	return convolveKernels(gray, kx, ky)
}

func thresholdMagnitude(g gradients, thresh float64) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, g.w, g.h))
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			gx, gy := g.at(x, y)
			mag := math.Sqrt(gx*gx + gy*gy)
			if mag >= thresh {
				out.SetGray(x, y, whitePixel)
			}
		}
	}
	return out
}

// laplacianThresholded applies the discrete Laplacian kernel and thresholds
// its absolute value to a binary edge image.
func laplacianThresholded(gray *image.Gray, thresh float64) *image.Gray {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	k := [3][3]float64{{0, 1, 0}, {1, -4, 1}, {0, 1, 0}}

	px := func(x, y int) float64 {
		if x < 0 || x >= w || y < 0 || y >= h {
			return 0
		}
		return float64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for j := -1; j <= 1; j++ {
				for i := -1; i <= 1; i++ {
					sum += px(x+i, y+j) * k[j+1][i+1]
				}
			}
			if math.Abs(sum) >= thresh {
				out.SetGray(x, y, whitePixel)
			}
		}
	}
	return out
}

func morphologicalGradient(gray *image.Gray, kernelSize int, thresh float64) *image.Gray {
	dil := dilate(gray, kernelSize)
	ero := erode(gray, kernelSize)
	b := gray.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			diff := float64(dil.GrayAt(x, y).Y) - float64(ero.GrayAt(x, y).Y)
			if diff >= thresh {
				out.SetGray(x, y, whitePixel)
			}
		}
	}
	return out
}

func morphClose(gray *image.Gray, kernelSize int) *image.Gray {
	return erode(dilate(gray, kernelSize), kernelSize)
}

func morphOpen(gray *image.Gray, kernelSize int) *image.Gray {
	return dilate(erode(gray, kernelSize), kernelSize)
}

// morphGradientImage is morphologicalGradient's dilate-minus-erode, but
// returns the smoothed grayscale difference (for the preprocessing step)
// rather than a thresholded binary image (the final edge operator).
func morphGradientImage(gray *image.Gray, kernelSize int) *image.Gray {
	dil := dilate(gray, kernelSize)
	ero := erode(gray, kernelSize)
	b := gray.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			diff := int(dil.GrayAt(x, y).Y) - int(ero.GrayAt(x, y).Y)
			out.SetGray(x, y, color8(uint8(diff)))
		}
	}
	return out
}

func dilate(gray *image.Gray, k int) *image.Gray {
	return morphOp(gray, k, func(vals []uint8) uint8 { return maxOf(vals) })
}

func erode(gray *image.Gray, k int) *image.Gray {
	return morphOp(gray, k, func(vals []uint8) uint8 { return minOf(vals) })
}

func morphOp(gray *image.Gray, k int, reduce func([]uint8) uint8) *image.Gray {
	b := gray.Bounds()
	out := image.NewGray(b)
	r := k / 2
	vals := make([]uint8, 0, k*k)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			vals = vals[:0]
			for j := -r; j <= r; j++ {
				for i := -r; i <= r; i++ {
					xi, yj := x+i, y+j
					if xi < b.Min.X || xi >= b.Max.X || yj < b.Min.Y || yj >= b.Max.Y {
						continue
					}
					vals = append(vals, gray.GrayAt(xi, yj).Y)
				}
			}
			out.SetGray(x, y, color8(reduce(vals)))
		}
	}
	return out
}

func maxOf(vals []uint8) uint8 {
	m := uint8(0)
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(vals []uint8) uint8 {
	m := uint8(255)
	for _, v := range vals {
		if v < m {
			m = v
		}
	}
	return m
}

// canny is a simplified two-threshold hysteresis edge operator: Sobel
// gradient magnitude, double-thresholded (strong >= high, weak in
// [low, high)), then weak pixels adjacent to a strong pixel are promoted.
func canny(gray *image.Gray, low, high float64) *image.Gray {
	g := sobelGradients(gray)
	out := image.NewGray(image.Rect(0, 0, g.w, g.h))
	weak := make([]bool, g.w*g.h)

	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			gx, gy := g.at(x, y)
			mag := math.Sqrt(gx*gx + gy*gy)
			switch {
			case mag >= high:
				out.SetGray(x, y, whitePixel)
			case mag >= low:
				weak[y*g.w+x] = true
			}
		}
	}
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			if !weak[y*g.w+x] {
				continue
			}
			if hasStrongNeighbor(out, x, y) {
				out.SetGray(x, y, whitePixel)
			}
		}
	}
	return out
}

func hasStrongNeighbor(img *image.Gray, x, y int) bool {
	b := img.Bounds()
	for j := -1; j <= 1; j++ {
		for i := -1; i <= 1; i++ {
			xi, yj := x+i, y+j
			if xi < b.Min.X || xi >= b.Max.X || yj < b.Min.Y || yj >= b.Max.Y {
				continue
			}
			if img.GrayAt(xi, yj).Y > 0 {
				return true
			}
		}
	}
	return false
}

var whitePixel = color8(255)

func boundingBox(points []geometry.Point) geometry.Rectangle {
	if len(points) == 0 {
		return geometry.Rectangle{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := points[0].X, points[0].Y
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return geometry.NewRectangle(int(minX), int(minY), int(maxX-minX)+1, int(maxY-minY)+1)
}
