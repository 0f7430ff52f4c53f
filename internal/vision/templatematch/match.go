// Package templatematch implements template location matching (spec.md
// §4.5.1): SQDIFF, CCORR, and CCOEFF score families, each in both raw and
// normalized form (OpenCV's TM_SQDIFF/TM_SQDIFF_NORMED and so on), over a
// sliding window. Grounded on
// original_source/vision/template_matching.py's TemplateDetector.detect,
// which dispatches to cv2.matchTemplate by method name. The accept/score
// formula depends only on whether the method is in the SQDIFF family, not
// on raw versus normalized.
package templatematch

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

// Method is the closed set of matching score families.
type Method string

const (
	// SQDiffRaw, CCorrRaw and CCoeffRaw are the raw (unnormalized) score
	// families — OpenCV's TM_SQDIFF, TM_CCORR, TM_CCOEFF.
	SQDiffRaw Method = "sqdiff_raw"
	CCorrRaw  Method = "ccorr_raw"
	CCoeffRaw Method = "ccoeff_raw"

	// SQDiff, CCorr and CCoeff are the normalized score families — OpenCV's
	// TM_SQDIFF_NORMED, TM_CCORR_NORMED, TM_CCOEFF_NORMED. CCoeff is the
	// default, matching TemplateMatchParams.method's TM_CCOEFF_NORMED default.
	SQDiff Method = "sqdiff"
	CCorr  Method = "ccorr"
	CCoeff Method = "ccoeff"
)

// DefaultThreshold is template_matching.py's detect(threshold=0.8) default.
// Nothing in this module substitutes it for an omitted threshold: Detect
// uses the caller's value as given, and a threshold of 0.0 (or below) is an
// "accept anything" request that always accepts the best location.
const DefaultThreshold = 0.8

// Params configures Detect, mirroring template_matching.py's detect()
// signature.
type Params struct {
	TemplateID string
	Method     Method // defaults to CCoeff, matching TM_CCOEFF_NORMED
	Threshold  float64

	// ScaleRange, when non-nil, switches Detect into multi-scale mode: the
	// template is resampled at ScaleSteps evenly spaced factors within
	// [ScaleRange[0], ScaleRange[1]] (inclusive), matched at each scale,
	// and the highest-confidence result kept. A nil ScaleRange preserves
	// the single-scale path. Mirrors template_matching.py's
	// multi_scale/scale_range/scale_steps request fields.
	ScaleRange *[2]float64
	ScaleSteps int
}

// Detect slides template over img, scoring every position by method, and
// emits exactly one Object for the best-scoring position that clears
// threshold. Coordinates are relative to img. When p.ScaleRange is set,
// it instead matches at every sampled scale and keeps the best.
func Detect(img vision.Image, template vision.Image, p Params) (*vision.Object, bool, error) {
	if p.ScaleRange != nil {
		return detectMultiScale(img, template, p)
	}
	return detectSingleScale(img, template, p)
}

// detectMultiScale resamples template at each sampled scale and keeps the
// highest-confidence accepted match across all scales.
func detectMultiScale(img vision.Image, template vision.Image, p Params) (*vision.Object, bool, error) {
	steps := p.ScaleSteps
	if steps < 1 {
		steps = 1
	}
	lo, hi := p.ScaleRange[0], p.ScaleRange[1]

	var best *vision.Object
	found := false

	for i := 0; i < steps; i++ {
		scale := lo
		if steps > 1 {
			scale = lo + (hi-lo)*float64(i)/float64(steps-1)
		}
		scaledW := int(float64(template.Width()) * scale)
		scaledH := int(float64(template.Height()) * scale)
		if scaledW < 1 || scaledH < 1 {
			continue
		}
		scaledTmpl := vision.NewImage(imaging.Resize(template.Img, scaledW, scaledH, imaging.Lanczos))

		single := p
		single.ScaleRange = nil
		obj, ok, err := detectSingleScale(img, scaledTmpl, single)
		if err != nil || !ok {
			continue
		}
		if best == nil || obj.Confidence > best.Confidence {
			obj.Properties["scale"] = scale
			best = obj
			found = true
		}
	}
	return best, found, nil
}

func detectSingleScale(img vision.Image, template vision.Image, p Params) (*vision.Object, bool, error) {
	method := p.Method
	if method == "" {
		method = CCoeff
	}

	src := toGray(img.Img)
	tmpl := toGray(template.Img)
	tw, th := tmpl.Bounds().Dx(), tmpl.Bounds().Dy()
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()

	if tw <= 0 || th <= 0 || tw > sw || th > sh {
		return nil, false, fmt.Errorf("template larger than search image")
	}

	bestScore := math.Inf(-1)
	bestMinVal := math.Inf(1)
	bestX, bestY := 0, 0
	found := false

	tmplMean := meanGray(tmpl)

	for y := 0; y <= sh-th; y++ {
		for x := 0; x <= sw-tw; x++ {
			switch method {
			case SQDiffRaw:
				val := sqdiffRaw(src, tmpl, x, y)
				if val < bestMinVal {
					bestMinVal = val
					bestX, bestY = x, y
					found = true
				}
			case SQDiff:
				val := sqdiff(src, tmpl, x, y)
				if val < bestMinVal {
					bestMinVal = val
					bestX, bestY = x, y
					found = true
				}
			case CCorrRaw:
				val := ccorrRaw(src, tmpl, x, y)
				if val > bestScore {
					bestScore = val
					bestX, bestY = x, y
					found = true
				}
			case CCorr:
				val := ccorrNormalized(src, tmpl, x, y)
				if val > bestScore {
					bestScore = val
					bestX, bestY = x, y
					found = true
				}
			case CCoeffRaw:
				val := ccoeffRaw(src, tmpl, x, y, tmplMean)
				if val > bestScore {
					bestScore = val
					bestX, bestY = x, y
					found = true
				}
			default: // CCoeff
				val := ccoeffNormalized(src, tmpl, x, y, tmplMean)
				if val > bestScore {
					bestScore = val
					bestX, bestY = x, y
					found = true
				}
			}
		}
	}
	if !found {
		return nil, false, nil
	}

	// The accept/score formula is the same regardless of raw vs normalized
	// method, matching template_matching.py's detect (it branches only on
	// whether the method name is one of the SQDIFF family, never on
	// raw-vs-normalized). A threshold of 0.0 or below accepts the best
	// location whatever its score, and the score is clamped to [0, 1].
	var score float64
	var accepted bool
	if method == SQDiff || method == SQDiffRaw {
		score = 1 - bestMinVal
		accepted = bestMinVal <= (1 - p.Threshold)
	} else {
		score = bestScore
		accepted = bestScore >= p.Threshold
	}
	if p.Threshold <= 0 {
		accepted = true
	}
	if !accepted {
		return nil, false, nil
	}
	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}

	box := geometry.NewRectangle(bestX, bestY, tw, th)
	cx, cy := box.Center()
	obj := &vision.Object{
		ObjectID:    "",
		ObjectType:  vision.TemplateMatch,
		BoundingBox: box,
		Center:      geometry.NewPoint(float64(cx), float64(cy)),
		Confidence:  score,
		Properties: map[string]interface{}{
			"template_id": p.TemplateID,
			"method":      string(method),
			"raw_score":   score,
		},
	}
	return obj, true, nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	return imaging.Grayscale(img)
}

func meanGray(g *image.Gray) float64 {
	b := g.Bounds()
	sum := 0.0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += float64(g.GrayAt(x, y).Y)
		}
	}
	return sum / float64(b.Dx()*b.Dy())
}

// sqdiff returns the normalized sum-of-squared-differences at offset
// (x0, y0): 0 for an exact match, non-negative, and not bounded above by 1
// (a dark window against a bright template scores well above 1).
func sqdiff(src, tmpl *image.Gray, x0, y0 int) float64 {
	tb := tmpl.Bounds()
	var sum, normSrc, normTmpl float64
	for ty := tb.Min.Y; ty < tb.Max.Y; ty++ {
		for tx := tb.Min.X; tx < tb.Max.X; tx++ {
			sv := float64(src.GrayAt(x0+tx-tb.Min.X, y0+ty-tb.Min.Y).Y)
			tv := float64(tmpl.GrayAt(tx, ty).Y)
			d := sv - tv
			sum += d * d
			normSrc += sv * sv
			normTmpl += tv * tv
		}
	}
	denom := math.Sqrt(normSrc * normTmpl)
	if denom == 0 {
		return 0
	}
	return sum / denom
}

// sqdiffRaw returns the unnormalized sum-of-squared-differences at offset
// (x0, y0), matching TM_SQDIFF — unbounded, grows with window size.
func sqdiffRaw(src, tmpl *image.Gray, x0, y0 int) float64 {
	tb := tmpl.Bounds()
	var sum float64
	for ty := tb.Min.Y; ty < tb.Max.Y; ty++ {
		for tx := tb.Min.X; tx < tb.Max.X; tx++ {
			sv := float64(src.GrayAt(x0+tx-tb.Min.X, y0+ty-tb.Min.Y).Y)
			tv := float64(tmpl.GrayAt(tx, ty).Y)
			d := sv - tv
			sum += d * d
		}
	}
	return sum
}

// ccorrRaw returns the unnormalized cross-correlation at offset (x0, y0),
// matching TM_CCORR — unbounded, grows with window size and pixel
// intensity.
func ccorrRaw(src, tmpl *image.Gray, x0, y0 int) float64 {
	tb := tmpl.Bounds()
	var sum float64
	for ty := tb.Min.Y; ty < tb.Max.Y; ty++ {
		for tx := tb.Min.X; tx < tb.Max.X; tx++ {
			sv := float64(src.GrayAt(x0+tx-tb.Min.X, y0+ty-tb.Min.Y).Y)
			tv := float64(tmpl.GrayAt(tx, ty).Y)
			sum += sv * tv
		}
	}
	return sum
}

// ccoeffRaw returns the unnormalized mean-subtracted cross-correlation at
// offset (x0, y0), matching TM_CCOEFF.
func ccoeffRaw(src, tmpl *image.Gray, x0, y0 int, tmplMean float64) float64 {
	tb := tmpl.Bounds()

	var srcMean float64
	for ty := tb.Min.Y; ty < tb.Max.Y; ty++ {
		for tx := tb.Min.X; tx < tb.Max.X; tx++ {
			srcMean += float64(src.GrayAt(x0+tx-tb.Min.X, y0+ty-tb.Min.Y).Y)
		}
	}
	srcMean /= float64(tb.Dx() * tb.Dy())

	var num float64
	for ty := tb.Min.Y; ty < tb.Max.Y; ty++ {
		for tx := tb.Min.X; tx < tb.Max.X; tx++ {
			sv := float64(src.GrayAt(x0+tx-tb.Min.X, y0+ty-tb.Min.Y).Y) - srcMean
			tv := float64(tmpl.GrayAt(tx, ty).Y) - tmplMean
			num += sv * tv
		}
	}
	return num
}

// ccorrNormalized returns the normalized cross-correlation at offset
// (x0, y0), in [0, 1] for non-negative inputs.
func ccorrNormalized(src, tmpl *image.Gray, x0, y0 int) float64 {
	tb := tmpl.Bounds()
	var sum, normSrc, normTmpl float64
	for ty := tb.Min.Y; ty < tb.Max.Y; ty++ {
		for tx := tb.Min.X; tx < tb.Max.X; tx++ {
			sv := float64(src.GrayAt(x0+tx-tb.Min.X, y0+ty-tb.Min.Y).Y)
			tv := float64(tmpl.GrayAt(tx, ty).Y)
			sum += sv * tv
			normSrc += sv * sv
			normTmpl += tv * tv
		}
	}
	denom := math.Sqrt(normSrc * normTmpl)
	if denom == 0 {
		return 0
	}
	return sum / denom
}

// ccoeffNormalized returns the mean-subtracted normalized cross-correlation
// coefficient at offset (x0, y0), matching TM_CCOEFF_NORMED's formula.
func ccoeffNormalized(src, tmpl *image.Gray, x0, y0 int, tmplMean float64) float64 {
	tb := tmpl.Bounds()

	var srcMean float64
	for ty := tb.Min.Y; ty < tb.Max.Y; ty++ {
		for tx := tb.Min.X; tx < tb.Max.X; tx++ {
			srcMean += float64(src.GrayAt(x0+tx-tb.Min.X, y0+ty-tb.Min.Y).Y)
		}
	}
	srcMean /= float64(tb.Dx() * tb.Dy())

	var num, denomSrc, denomTmpl float64
	for ty := tb.Min.Y; ty < tb.Max.Y; ty++ {
		for tx := tb.Min.X; tx < tb.Max.X; tx++ {
			sv := float64(src.GrayAt(x0+tx-tb.Min.X, y0+ty-tb.Min.Y).Y) - srcMean
			tv := float64(tmpl.GrayAt(tx, ty).Y) - tmplMean
			num += sv * tv
			denomSrc += sv * sv
			denomTmpl += tv * tv
		}
	}
	denom := math.Sqrt(denomSrc * denomTmpl)
	if denom == 0 {
		return 0
	}
	return num / denom
}
