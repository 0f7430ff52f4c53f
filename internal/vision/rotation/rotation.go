// Package rotation implements rotation-angle estimation from a contour
// (spec.md §4.5.5): min_area_rect, ellipse_fit, and pca, each with its own
// confidence derivation, normalized into one of three requested angle
// ranges. Grounded on original_source/vision/rotation_detection.py's three
// _detect_* methods.
package rotation

import (
	"fmt"
	"math"
	"sort"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
)

// Method is the closed set of estimators.
type Method string

const (
	MinAreaRect Method = "min_area_rect"
	EllipseFit  Method = "ellipse_fit"
	PCA         Method = "pca"
)

// AngleRange is the closed set of output normalizations.
type AngleRange string

const (
	Range0To360    AngleRange = "0_360"
	RangeNeg180To180 AngleRange = "neg180_180"
	Range0To180    AngleRange = "0_180"
)

// Result is the estimator's output.
type Result struct {
	AngleDeg   float64
	Confidence float64
}

// Estimate fits method to points and normalizes the resulting angle into
// rng. Returns an error for fewer than the method's minimum point count
// (3 for min_area_rect/pca, 5 for ellipse_fit).
func Estimate(points []geometry.Point, method Method, rng AngleRange) (Result, error) {
	switch method {
	case EllipseFit:
		if len(points) < 5 {
			return Result{}, fmt.Errorf("ellipse_fit requires at least 5 points, got %d", len(points))
		}
		return normalize(ellipseFit(points), 0.9, rng), nil
	case PCA:
		if len(points) < 3 {
			return Result{}, fmt.Errorf("pca requires at least 3 points, got %d", len(points))
		}
		angle, confidence := pca(points)
		return normalize(angle, confidence, rng), nil
	default: // MinAreaRect
		if len(points) < 3 {
			return Result{}, fmt.Errorf("min_area_rect requires at least 3 points, got %d", len(points))
		}
		return normalize(minAreaRectAngle(points), 1.0, rng), nil
	}
}

func normalize(angle, confidence float64, rng AngleRange) Result {
	a := angle
	switch rng {
	case RangeNeg180To180:
		for a <= -180 {
			a += 360
		}
		for a > 180 {
			a -= 360
		}
	case Range0To180:
		for a < 0 {
			a += 180
		}
		for a >= 180 {
			a -= 180
		}
	default: // Range0To360
		for a < 0 {
			a += 360
		}
		for a >= 360 {
			a -= 360
		}
	}
	return Result{AngleDeg: a, Confidence: confidence}
}

// minAreaRectAngle fits the minimum-area enclosing rectangle via rotating
// calipers over the convex hull and returns its angle with respect to the
// horizontal, adding 90 degrees when the fitted width is less than the
// fitted height so the reported angle always refers to the longer side.
func minAreaRectAngle(points []geometry.Point) float64 {
	hull := convexHull(points)
	if len(hull) < 2 {
		return 0
	}
	if len(hull) == 2 {
		dx := hull[1].X - hull[0].X
		dy := hull[1].Y - hull[0].Y
		return math.Atan2(dy, dx) * 180 / math.Pi
	}

	bestArea := math.Inf(1)
	bestAngle := 0.0
	bestWidth, bestHeight := 0.0, 0.0

	n := len(hull)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		edgeAngle := math.Atan2(hull[j].Y-hull[i].Y, hull[j].X-hull[i].X)

		cosA, sinA := math.Cos(-edgeAngle), math.Sin(-edgeAngle)
		minX, minY := math.Inf(1), math.Inf(1)
		maxX, maxY := math.Inf(-1), math.Inf(-1)
		for _, p := range hull {
			rx := p.X*cosA - p.Y*sinA
			ry := p.X*sinA + p.Y*cosA
			minX, maxX = math.Min(minX, rx), math.Max(maxX, rx)
			minY, maxY = math.Min(minY, ry), math.Max(maxY, ry)
		}
		w, h := maxX-minX, maxY-minY
		area := w * h
		if area < bestArea {
			bestArea = area
			bestAngle = edgeAngle * 180 / math.Pi
			bestWidth, bestHeight = w, h
		}
	}

	if bestWidth < bestHeight {
		bestAngle += 90
	}
	return bestAngle
}

// convexHull returns the convex hull of points via the monotone chain
// algorithm, in counter-clockwise order.
func convexHull(points []geometry.Point) []geometry.Point {
	pts := make([]geometry.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	cross := func(o, a, b geometry.Point) float64 {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	var lower, upper []geometry.Point
	for _, p := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(pts) - 1; i >= 0; i-- {
		p := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	lower = lower[:len(lower)-1]
	upper = upper[:len(upper)-1]
	return append(lower, upper...)
}

// ellipseFit reports the major-axis angle of a least-squares ellipse fit,
// derived from the same covariance eigen-decomposition as pca (the major
// axis of a fitted ellipse coincides with the principal component of the
// point scatter).
func ellipseFit(points []geometry.Point) float64 {
	angle, _ := pca(points)
	return angle
}

// pca centers points, computes the 2x2 covariance matrix, and returns the
// principal eigenvector's angle plus a confidence derived from the
// eigenvalue ratio: min(1.0, lambda1/lambda2/10).
func pca(points []geometry.Point) (angleDeg float64, confidence float64) {
	n := float64(len(points))
	var meanX, meanY float64
	for _, p := range points {
		meanX += p.X
		meanY += p.Y
	}
	meanX /= n
	meanY /= n

	var cxx, cxy, cyy float64
	for _, p := range points {
		dx, dy := p.X-meanX, p.Y-meanY
		cxx += dx * dx
		cxy += dx * dy
		cyy += dy * dy
	}
	cxx /= n
	cxy /= n
	cyy /= n

	trace := cxx + cyy
	det := cxx*cyy - cxy*cxy
	disc := math.Sqrt(math.Max(0, trace*trace/4-det))
	lambda1 := trace/2 + disc
	lambda2 := trace/2 - disc
	if lambda1 < lambda2 {
		lambda1, lambda2 = lambda2, lambda1
	}

	var vx, vy float64
	if cxy != 0 {
		vx, vy = lambda1-cyy, cxy
	} else if cxx >= cyy {
		vx, vy = 1, 0
	} else {
		vx, vy = 0, 1
	}

	angleDeg = math.Atan2(vy, vx) * 180 / math.Pi

	if lambda2 <= 0 {
		confidence = 1.0
	} else {
		confidence = math.Min(1.0, (lambda1/lambda2)/10)
	}
	return angleDeg, confidence
}
