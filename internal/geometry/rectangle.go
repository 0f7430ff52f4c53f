// Package geometry provides the pure value types shared by every detector
// and store: axis-aligned rectangles and points in image-pixel space.
package geometry

// Rectangle is an axis-aligned integer rectangle with non-negative origin
// and strictly positive width/height once valid. Operations never mutate
// the receiver; they return a new Rectangle.
type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewRectangle builds a Rectangle from explicit fields.
func NewRectangle(x, y, width, height int) Rectangle {
	return Rectangle{X: x, Y: y, Width: width, Height: height}
}

// FromPoints builds a Rectangle from two corner points, normalizing order.
func FromPoints(x1, y1, x2, y2 int) Rectangle {
	x := min(x1, x2)
	y := min(y1, y2)
	return Rectangle{X: x, Y: y, Width: abs(x2 - x1), Height: abs(y2 - y1)}
}

// X2 returns the right edge coordinate (exclusive).
func (r Rectangle) X2() int { return r.X + r.Width }

// Y2 returns the bottom edge coordinate (exclusive).
func (r Rectangle) Y2() int { return r.Y + r.Height }

// Area returns width*height.
func (r Rectangle) Area() int { return r.Width * r.Height }

// Center returns the integer-truncated center point.
func (r Rectangle) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// ContainsPoint reports whether (x,y) lies inside the rectangle, half-open
// on the right and bottom edges: x <= px < x2, y <= py < y2.
func (r Rectangle) ContainsPoint(x, y int) bool {
	return r.X <= x && x < r.X2() && r.Y <= y && y < r.Y2()
}

// Intersects reports whether r and other overlap. Edge-only touches do not
// count as intersecting (strict inequality).
func (r Rectangle) Intersects(other Rectangle) bool {
	return !(r.X2() <= other.X || other.X2() <= r.X || r.Y2() <= other.Y || other.Y2() <= r.Y)
}

// Intersection returns the overlapping rectangle and true, or the zero
// value and false when r and other are disjoint.
func (r Rectangle) Intersection(other Rectangle) (Rectangle, bool) {
	if !r.Intersects(other) {
		return Rectangle{}, false
	}
	x1 := max(r.X, other.X)
	y1 := max(r.Y, other.Y)
	x2 := min(r.X2(), other.X2())
	y2 := min(r.Y2(), other.Y2())
	return FromPoints(x1, y1, x2, y2), true
}

// Union returns the bounding rectangle of r and other.
func (r Rectangle) Union(other Rectangle) Rectangle {
	x1 := min(r.X, other.X)
	y1 := min(r.Y, other.Y)
	x2 := max(r.X2(), other.X2())
	y2 := max(r.Y2(), other.Y2())
	return FromPoints(x1, y1, x2, y2)
}

// Scale scales the rectangle by factor. When fromCenter is true, the
// rectangle grows/shrinks around its own center; otherwise it grows from
// the top-left corner (origin unchanged).
func (r Rectangle) Scale(factor float64, fromCenter bool) Rectangle {
	newW := int(float64(r.Width) * factor)
	newH := int(float64(r.Height) * factor)
	if !fromCenter {
		return Rectangle{X: r.X, Y: r.Y, Width: newW, Height: newH}
	}
	cx, cy := r.Center()
	return Rectangle{X: cx - newW/2, Y: cy - newH/2, Width: newW, Height: newH}
}

// Expand grows the rectangle by pixels in every direction. The result may
// have a negative origin or collapse in size; callers clip before use.
func (r Rectangle) Expand(pixels int) Rectangle {
	return Rectangle{
		X:      r.X - pixels,
		Y:      r.Y - pixels,
		Width:  r.Width + 2*pixels,
		Height: r.Height + 2*pixels,
	}
}

// Clip snaps r to [0, imgW] x [0, imgH]. The result may collapse to an
// empty rectangle (zero width or height); callers treat that as absent.
func (r Rectangle) Clip(imgW, imgH int) Rectangle {
	x := clampInt(r.X, 0, imgW)
	y := clampInt(r.Y, 0, imgH)
	x2 := clampInt(r.X2(), 0, imgW)
	y2 := clampInt(r.Y2(), 0, imgH)
	return FromPoints(x, y, x2, y2)
}

// IsValid reports whether the rectangle has positive dimensions and a
// non-negative origin. When imgW/imgH are both non-zero, it additionally
// requires the rectangle to lie within [0,imgW]x[0,imgH].
func (r Rectangle) IsValid(imgW, imgH int) bool {
	if r.Width <= 0 || r.Height <= 0 {
		return false
	}
	if r.X < 0 || r.Y < 0 {
		return false
	}
	if imgW > 0 && r.X2() > imgW {
		return false
	}
	if imgH > 0 && r.Y2() > imgH {
		return false
	}
	return true
}

// MergeOverlapping merges rectangles whose mutual overlap ratio (relative
// to the smaller of the pair) meets or exceeds threshold. It is a pure
// geometry utility, not required by any store, ported from the original
// system's ROIHandler.merge_overlapping_rois.
func MergeOverlapping(rects []Rectangle, threshold float64) []Rectangle {
	used := make(map[int]bool)
	var merged []Rectangle

	for i := range rects {
		if used[i] {
			continue
		}
		current := rects[i]
		mergedAny := true
		for mergedAny {
			mergedAny = false
			for j := i + 1; j < len(rects); j++ {
				if used[j] {
					continue
				}
				inter, ok := current.Intersection(rects[j])
				if !ok {
					continue
				}
				smaller := min(current.Area(), rects[j].Area())
				if smaller == 0 {
					continue
				}
				overlapRatio := float64(inter.Area()) / float64(smaller)
				if overlapRatio >= threshold {
					current = current.Union(rects[j])
					used[j] = true
					mergedAny = true
				}
			}
		}
		merged = append(merged, current)
	}
	return merged
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
