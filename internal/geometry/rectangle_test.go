package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectangleDerived(t *testing.T) {
	r := NewRectangle(10, 20, 30, 40)
	assert.Equal(t, 40, r.X2())
	assert.Equal(t, 60, r.Y2())
	assert.Equal(t, 1200, r.Area())
	cx, cy := r.Center()
	assert.Equal(t, 25, cx)
	assert.Equal(t, 40, cy)
}

func TestContainsPointHalfOpen(t *testing.T) {
	r := NewRectangle(0, 0, 10, 10)
	assert.True(t, r.ContainsPoint(0, 0))
	assert.True(t, r.ContainsPoint(9, 9))
	assert.False(t, r.ContainsPoint(10, 5))
	assert.False(t, r.ContainsPoint(5, 10))
}

func TestIntersectsStrict(t *testing.T) {
	a := NewRectangle(0, 0, 10, 10)
	b := NewRectangle(10, 0, 10, 10)
	assert.False(t, a.Intersects(b), "edge-only touch must not intersect")

	c := NewRectangle(5, 0, 10, 10)
	assert.True(t, a.Intersects(c))
}

func TestIntersectionDisjoint(t *testing.T) {
	a := NewRectangle(0, 0, 5, 5)
	b := NewRectangle(100, 100, 5, 5)
	_, ok := a.Intersection(b)
	assert.False(t, ok)
}

func TestIntersectionOverlap(t *testing.T) {
	a := NewRectangle(0, 0, 10, 10)
	b := NewRectangle(5, 5, 10, 10)
	inter, ok := a.Intersection(b)
	assert.True(t, ok)
	assert.Equal(t, NewRectangle(5, 5, 5, 5), inter)
}

func TestUnion(t *testing.T) {
	a := NewRectangle(0, 0, 5, 5)
	b := NewRectangle(10, 10, 5, 5)
	u := a.Union(b)
	assert.Equal(t, NewRectangle(0, 0, 15, 15), u)
}

func TestClipCollapsesToEmpty(t *testing.T) {
	r := NewRectangle(200, 200, 50, 50)
	clipped := r.Clip(100, 100)
	assert.Equal(t, 0, clipped.Width)
	assert.Equal(t, 0, clipped.Height)
}

func TestClipIdempotent(t *testing.T) {
	r := NewRectangle(50, 50, 200, 200)
	once := r.Clip(100, 100)
	twice := once.Clip(100, 100)
	assert.Equal(t, once, twice)
}

func TestExpandMayGoNegative(t *testing.T) {
	r := NewRectangle(2, 2, 4, 4)
	expanded := r.Expand(5)
	assert.Equal(t, -3, expanded.X)
	assert.Equal(t, -3, expanded.Y)
	assert.Equal(t, 14, expanded.Width)
	assert.Equal(t, 14, expanded.Height)
}

func TestIsValid(t *testing.T) {
	assert.True(t, NewRectangle(0, 0, 10, 10).IsValid(100, 100))
	assert.False(t, NewRectangle(0, 0, 0, 10).IsValid(100, 100))
	assert.False(t, NewRectangle(-1, 0, 10, 10).IsValid(100, 100))
	assert.False(t, NewRectangle(95, 0, 10, 10).IsValid(100, 100))
	assert.True(t, NewRectangle(95, 0, 10, 10).IsValid(0, 0))
}

func TestFromDictRoundTrip(t *testing.T) {
	r := NewRectangle(3, 4, 5, 6)
	// Simulates ROI.from_dict(to_dict(r)) = r from the Python original:
	// a Rectangle built from its own fields must equal itself.
	rebuilt := NewRectangle(r.X, r.Y, r.Width, r.Height)
	assert.Equal(t, r, rebuilt)
}

func TestMergeOverlapping(t *testing.T) {
	rects := []Rectangle{
		NewRectangle(0, 0, 10, 10),
		NewRectangle(5, 5, 10, 10),
		NewRectangle(100, 100, 10, 10),
	}
	merged := MergeOverlapping(rects, 0.2)
	assert.Len(t, merged, 2)
}
