// Package pipeline implements the single Pipeline Orchestrator (spec.md
// §4.7) shared by every detection entry point: acquire image -> extract
// ROI -> run detector -> remap coordinates -> render overlay -> encode
// thumbnail. Grounded on spec.md §4.7's pseudocontract directly, with
// timer placement informed by the teacher's AppWithCache goroutine/timing
// idioms.
package pipeline

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
	"github.com/uragamarco/proyecto-balistica/internal/imagestore"
	"github.com/uragamarco/proyecto-balistica/internal/overlay"
	"github.com/uragamarco/proyecto-balistica/internal/verrors"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

// DetectorFunc runs one detector over sub, returning its found objects
// (coordinates relative to sub) and the same buffer, annotated or not —
// the orchestrator renders the overlay itself after remapping.
type DetectorFunc func(sub vision.Image) (*vision.Result, error)

// Result is what Orchestrate returns.
type Result struct {
	Objects         []*vision.Object
	ThumbnailBase64 string
	ElapsedMs       float64
}

// Orchestrator ties the Image Store to detector execution, coordinate
// remap, overlay rendering, and thumbnail encoding.
type Orchestrator struct {
	images           *imagestore.Store
	thumbnailMaxW    int
	thumbnailQuality int
	logger           *zap.Logger
}

// cleanupHighWaterMark is the Image Store occupancy percentage above which
// Orchestrate opportunistically evicts a batch before acquiring more
// memory, matching the Image Store's cleanup contract: invoked by the
// orchestrator on memory pressure.
const cleanupHighWaterMark = 90.0

// New builds an Orchestrator bound to the given Image Store.
func New(images *imagestore.Store, thumbnailMaxWidth, thumbnailJPEGQuality int, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		images:           images,
		thumbnailMaxW:    thumbnailMaxWidth,
		thumbnailQuality: thumbnailJPEGQuality,
		logger:           logger,
	}
}

// Orchestrate runs detectorFn over imageID (optionally restricted to roi),
// remaps detected objects back to full-image coordinates, renders the
// overlay, and encodes a thumbnail. Timing is captured with a monotonic
// clock and the elapsed value is taken AFTER thumbnail encoding.
func (o *Orchestrator) Orchestrate(imageID string, roi *geometry.Rectangle, detectorFn DetectorFunc) (*Result, error) {
	start := time.Now()

	if stats := o.images.Stats(); stats.Percent >= cleanupHighWaterMark {
		removed := o.images.Cleanup()
		if o.logger != nil && removed > 0 {
			o.logger.Debug("cleaned up image store under memory pressure",
				zap.Float64("percent", stats.Percent), zap.Int("removed", removed))
		}
	}

	entry, err := o.images.Get(imageID)
	if err != nil {
		return nil, err
	}
	full := entry.Image

	sub := full
	offsetX, offsetY := 0, 0
	if roi != nil {
		clipped := roi.Clip(full.Width(), full.Height())
		if clipped.Width == 0 || clipped.Height == 0 {
			return nil, verrors.New(verrors.InvalidROI, "roi clips to an empty region")
		}
		cropped := imaging.Crop(full.Img, image.Rect(clipped.X, clipped.Y, clipped.X2(), clipped.Y2()))
		sub = vision.NewImage(cropped)
		offsetX, offsetY = clipped.X, clipped.Y
	}

	raw, err := detectorFn(sub)
	if err != nil {
		return nil, err
	}

	for _, obj := range raw.Objects {
		obj.Translate(offsetX, offsetY)
	}

	annotated := overlay.Render(full, raw.Objects)
	thumb := imaging.Resize(annotated, o.thumbnailMaxW, 0, imaging.Lanczos)

	encoded, err := encodeJPEGBase64(thumb, o.thumbnailQuality)
	if err != nil {
		return nil, verrors.Wrap(verrors.InternalError, "encoding thumbnail", err)
	}

	elapsed := time.Since(start).Seconds() * 1000

	if o.logger != nil {
		o.logger.Debug("orchestrated detection",
			zap.String("image_id", imageID),
			zap.Int("objects", len(raw.Objects)),
			zap.Float64("elapsed_ms", elapsed))
	}

	return &Result{
		Objects:         raw.Objects,
		ThumbnailBase64: encoded,
		ElapsedMs:       elapsed,
	}, nil
}

// encodeJPEGBase64 resizes has already happened by the caller; this
// encodes img as JPEG (promoting grayscale to 3-channel, matching the
// contract that the encoder tolerates single-channel input) and
// base64-encodes the result.
func encodeJPEGBase64(img image.Image, quality int) (string, error) {
	rgba := image.NewNRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
