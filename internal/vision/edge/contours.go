package edge

import (
	"image"
	"image/color"
	"math"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
)

func color8(v uint8) color.Gray { return color.Gray{Y: v} }

// traceContours extracts external contours from a binary edge image using
// Moore boundary tracing over connected components of foreground pixels,
// matching the "closed, ordered points" contract of spec.md §4.5.2 step 4.
func traceContours(binary *image.Gray) [][]geometry.Point {
	b := binary.Bounds()
	w, h := b.Dx(), b.Dy()
	visited := make([]bool, w*h)

	isForeground := func(x, y int) bool {
		if x < 0 || x >= w || y < 0 || y >= h {
			return false
		}
		return binary.GrayAt(b.Min.X+x, b.Min.Y+y).Y > 0
	}

	var contours [][]geometry.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] || !isForeground(x, y) {
				continue
			}
			contour := traceBoundary(x, y, isForeground, visited, w)
			if len(contour) >= 3 {
				contours = append(contours, contour)
			}
		}
	}
	return contours
}

// traceBoundary walks the 8-connected boundary of the component containing
// (startX, startY) using Moore-neighbor tracing, marking every visited
// foreground pixel so each component is traced once.
func traceBoundary(startX, startY int, isForeground func(x, y int) bool, visited []bool, w int) []geometry.Point {
	dirs := [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}

	var points []geometry.Point
	x, y := startX, startY
	visited[y*w+x] = true
	points = append(points, geometry.NewPoint(float64(x), float64(y)))

	startDir := 0
	cx, cy := x, y
	for step := 0; step < w*w+64; step++ {
		found := false
		for k := 0; k < 8; k++ {
			d := (startDir + k) % 8
			nx, ny := cx+dirs[d][0], cy+dirs[d][1]
			if isForeground(nx, ny) {
				cx, cy = nx, ny
				startDir = (d + 6) % 8
				found = true
				break
			}
		}
		if !found {
			break
		}
		idx := cy*w + cx
		if !visited[idx] {
			visited[idx] = true
			points = append(points, geometry.NewPoint(float64(cx), float64(cy)))
		}
		if cx == startX && cy == startY {
			break
		}
	}
	return points
}

// shoelaceArea returns the absolute polygon area of a closed point list.
func shoelaceArea(points []geometry.Point) float64 {
	if len(points) < 3 {
		return 0
	}
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

// perimeterOf returns the closed-polyline length of points.
func perimeterOf(points []geometry.Point) float64 {
	if len(points) < 2 {
		return 0
	}
	var total float64
	n := len(points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		dx := points[j].X - points[i].X
		dy := points[j].Y - points[i].Y
		total += hypot(dx, dy)
	}
	return total
}

func hypot(dx, dy float64) float64 {
	return math.Sqrt(dx*dx + dy*dy)
}

// centroidOf computes the polygon centroid from image moments; when the
// polygon's signed area is zero, it falls back to (0, 0) per spec.md
// §4.5.2 step 5.
func centroidOf(points []geometry.Point) geometry.Point {
	if len(points) < 3 {
		return geometry.NewPoint(0, 0)
	}
	var a, cx, cy float64
	n := len(points)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := points[i].X*points[j].Y - points[j].X*points[i].Y
		a += cross
		cx += (points[i].X + points[j].X) * cross
		cy += (points[i].Y + points[j].Y) * cross
	}
	a /= 2
	if a == 0 {
		return geometry.NewPoint(0, 0)
	}
	cx /= (6 * a)
	cy /= (6 * a)
	return geometry.NewPoint(cx, cy)
}

// approxPolygon implements Douglas-Peucker polygon simplification with the
// given epsilon, matching cv2.approxPolyDP's contract used in the original
// for the "vertex_count" property.
func approxPolygon(points []geometry.Point, epsilon float64) []geometry.Point {
	if len(points) < 3 {
		return points
	}
	return douglasPeucker(points, epsilon)
}

func douglasPeucker(points []geometry.Point, epsilon float64) []geometry.Point {
	if len(points) < 3 {
		return points
	}
	first, last := points[0], points[len(points)-1]

	maxDist := -1.0
	maxIdx := -1
	for i := 1; i < len(points)-1; i++ {
		d := perpendicularDistance(points[i], first, last)
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}

	if maxDist <= epsilon || maxIdx == -1 {
		return []geometry.Point{first, last}
	}

	left := douglasPeucker(points[:maxIdx+1], epsilon)
	right := douglasPeucker(points[maxIdx:], epsilon)
	return append(left[:len(left)-1], right...)
}

func perpendicularDistance(p, a, b geometry.Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	if dx == 0 && dy == 0 {
		return hypot(p.X-a.X, p.Y-a.Y)
	}
	num := dy*p.X - dx*p.Y + b.X*a.Y - b.Y*a.X
	if num < 0 {
		num = -num
	}
	return num / hypot(dx, dy)
}
