// Package vision defines the uniform detector output shared by every
// detection algorithm (template match, edge, color, fiducial, rotation)
// so the Pipeline Orchestrator can treat them interchangeably.
package vision

import (
	"image"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
)

// ObjectType is the closed set of detector output tags.
type ObjectType string

const (
	TemplateMatch    ObjectType = "template_match"
	EdgeContour      ObjectType = "edge_contour"
	ColorRegion      ObjectType = "color_region"
	ArucoMarker      ObjectType = "aruco_marker"
	RotationAnalysis ObjectType = "rotation_analysis"
	CameraCapture    ObjectType = "camera_capture"
)

// Object is the uniform VisionObject row every detector emits. Coordinates
// are relative to the buffer the detector was handed; the orchestrator
// remaps them to full-image space when the detector ran on an ROI
// subview.
type Object struct {
	ObjectID    string                 `json:"object_id"`
	ObjectType  ObjectType             `json:"object_type"`
	BoundingBox geometry.Rectangle     `json:"bounding_box"`
	Center      geometry.Point         `json:"center"`
	Confidence  float64                `json:"confidence"`
	Area        *float64               `json:"area,omitempty"`
	Perimeter   *float64               `json:"perimeter,omitempty"`
	RotationDeg *float64               `json:"rotation_deg,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
	Contour     []geometry.Point       `json:"contour,omitempty"`
}

// Translate shifts an object's coordinate-bearing fields by (dx, dy). This
// is the remap operation the orchestrator applies when a detector ran on
// an ROI subview: bounding_box, center, and every contour point move by
// the ROI offset; no other field is touched.
func (o *Object) Translate(dx, dy int) {
	o.BoundingBox.X += dx
	o.BoundingBox.Y += dy
	o.Center = o.Center.Translate(float64(dx), float64(dy))
	for i := range o.Contour {
		o.Contour[i] = o.Contour[i].Translate(float64(dx), float64(dy))
	}
}

// Result is what every detector's detect() returns: the objects found and,
// optionally, an image buffer. The pipeline orchestrator does not read
// Image; it renders the overlay itself onto the full image after remapping.
type Result struct {
	Objects []*Object
	Image   Image
}

// Image wraps a decoded pixel buffer with the channel-count metadata the
// Image Store needs for byte accounting. Channels is 1 for grayscale
// (image.Gray) and 3 for color (image.NRGBA/RGBA, alpha not counted
// against the budget).
type Image struct {
	Img      image.Image
	Channels int
}

// NewImage wraps img, inferring Channels from its concrete type.
func NewImage(img image.Image) Image {
	channels := 3
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		channels = 1
	}
	return Image{Img: img, Channels: channels}
}

// Width returns the pixel width of the wrapped image.
func (img Image) Width() int { return img.Img.Bounds().Dx() }

// Height returns the pixel height of the wrapped image.
func (img Image) Height() int { return img.Img.Bounds().Dy() }

// ByteCost is height*width*channels*1 byte-per-sample, per spec.md §4.2.
func (img Image) ByteCost() int64 {
	return int64(img.Height()) * int64(img.Width()) * int64(img.Channels)
}
