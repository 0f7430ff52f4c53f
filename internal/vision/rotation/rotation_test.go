package rotation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
)

func TestPCAOnCollinearPointsMatchesLineAngle(t *testing.T) {
	var points []geometry.Point
	for i := -5; i <= 5; i++ {
		points = append(points, geometry.NewPoint(float64(i), 2*float64(i)))
	}

	result, err := Estimate(points, PCA, RangeNeg180To180)
	require.NoError(t, err)

	expected := math.Atan2(2, 1) * 180 / math.Pi
	diff := math.Abs(result.AngleDeg - expected)
	if diff > 180 {
		diff = 360 - diff
	}
	assert.InDelta(t, 0, diff, 1e-4)
	assert.GreaterOrEqual(t, result.Confidence, 0.99)
}

func TestMinAreaRectBelowMinimumPointsErrors(t *testing.T) {
	_, err := Estimate([]geometry.Point{geometry.NewPoint(0, 0), geometry.NewPoint(1, 1)}, MinAreaRect, Range0To360)
	assert.Error(t, err)
}

func TestEllipseFitRequiresFivePoints(t *testing.T) {
	pts := []geometry.Point{
		geometry.NewPoint(0, 0), geometry.NewPoint(1, 0),
		geometry.NewPoint(2, 1), geometry.NewPoint(1, 2),
	}
	_, err := Estimate(pts, EllipseFit, Range0To360)
	assert.Error(t, err)

	pts = append(pts, geometry.NewPoint(0, 1))
	result, err := Estimate(pts, EllipseFit, Range0To360)
	require.NoError(t, err)
	assert.Equal(t, 0.9, result.Confidence)
}

func TestMinAreaRectAxisAlignedRectangle(t *testing.T) {
	pts := []geometry.Point{
		geometry.NewPoint(0, 0), geometry.NewPoint(10, 0),
		geometry.NewPoint(10, 4), geometry.NewPoint(0, 4),
	}
	result, err := Estimate(pts, MinAreaRect, Range0To360)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Confidence)
	assert.True(t, result.AngleDeg >= 0 && result.AngleDeg < 360)
}

func TestNormalizeRanges(t *testing.T) {
	assert.InDelta(t, 350.0, normalize(-10, 1, Range0To360).AngleDeg, 1e-9)
	assert.InDelta(t, -10.0, normalize(350, 1, RangeNeg180To180).AngleDeg, 1e-9)
	assert.InDelta(t, 10.0, normalize(190, 1, Range0To180).AngleDeg, 1e-9)
}
