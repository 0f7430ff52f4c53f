// Package service implements the Service Facade (spec.md §4.8): the sole
// entry point the collaborator HTTP layer calls for a detection. It wires
// one detector package's quirks into the Pipeline Orchestrator's uniform
// DetectorFunc contract, derives a PASS/FAIL/ERROR outcome, and optionally
// appends an Inspection History record. Grounded on the teacher's
// internal/api/handlers.go Handlers struct shape, adapted to the vision
// domain's outcome rules.
package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/uragamarco/proyecto-balistica/internal/geometry"
	"github.com/uragamarco/proyecto-balistica/internal/history"
	"github.com/uragamarco/proyecto-balistica/internal/imagestore"
	"github.com/uragamarco/proyecto-balistica/internal/pipeline"
	"github.com/uragamarco/proyecto-balistica/internal/templatestore"
	"github.com/uragamarco/proyecto-balistica/internal/verrors"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
	"github.com/uragamarco/proyecto-balistica/internal/vision/color"
	"github.com/uragamarco/proyecto-balistica/internal/vision/edge"
	"github.com/uragamarco/proyecto-balistica/internal/vision/fiducial"
	"github.com/uragamarco/proyecto-balistica/internal/vision/rotation"
	"github.com/uragamarco/proyecto-balistica/internal/vision/templatematch"
)

// Facade is the only thing the HTTP collaborator layer holds a reference
// to for running a detection.
type Facade struct {
	images    *imagestore.Store
	templates *templatestore.Store
	history   *history.Ring
	orch      *pipeline.Orchestrator
	logger    *zap.Logger
}

// New builds a Facade over its already-constructed collaborators.
func New(images *imagestore.Store, templates *templatestore.Store, hist *history.Ring, orch *pipeline.Orchestrator, logger *zap.Logger) *Facade {
	return &Facade{images: images, templates: templates, history: hist, orch: orch, logger: logger}
}

// Inspection is what every facade detection method returns: the pipeline
// result plus the outcome it was recorded under (if recordHistory asked
// for a record).
type Inspection struct {
	*pipeline.Result
	Outcome   history.Outcome
	HistoryID string
}

// TemplateMatch runs sliding-window template matching against a stored
// template. scaleRange, when non-nil, enables multi-scale matching across
// scaleSteps samples in [scaleRange[0], scaleRange[1]].
func (f *Facade) TemplateMatch(imageID string, roi *geometry.Rectangle, templateID string, method templatematch.Method, threshold float64, scaleRange *[2]float64, scaleSteps int, recordHistory bool) (*Inspection, error) {
	tmplImg, err := f.templates.Get(templateID)
	if err != nil {
		return nil, err
	}

	detectorFn := func(sub vision.Image) (*vision.Result, error) {
		obj, ok, err := templatematch.Detect(sub, tmplImg, templatematch.Params{
			TemplateID: templateID,
			Method:     method,
			Threshold:  threshold,
			ScaleRange: scaleRange,
			ScaleSteps: scaleSteps,
		})
		if err != nil {
			return nil, verrors.Wrap(verrors.InvalidParameter, "template match", err)
		}
		var objs []*vision.Object
		if ok {
			objs = []*vision.Object{obj}
		}
		return &vision.Result{Objects: objs}, nil
	}

	return f.run(imageID, roi, "template_match", false, recordHistory, detectorFn)
}

// EdgeDetect runs edge-operator based contour extraction.
func (f *Facade) EdgeDetect(imageID string, roi *geometry.Rectangle, params edge.Params, recordHistory bool) (*Inspection, error) {
	detectorFn := func(sub vision.Image) (*vision.Result, error) {
		objs, _, err := edge.Detect(sub, params)
		if err != nil {
			return nil, verrors.Wrap(verrors.InvalidParameter, "edge detect", err)
		}
		return &vision.Result{Objects: objs}, nil
	}

	return f.run(imageID, roi, "edge_detect", false, recordHistory, detectorFn)
}

// ColorDetect runs dominant-color classification, optionally masked by a
// contour and filtered against an expected color.
func (f *Facade) ColorDetect(imageID string, roi *geometry.Rectangle, params color.Params, recordHistory bool) (*Inspection, error) {
	detectorFn := func(sub vision.Image) (*vision.Result, error) {
		obj, ok := color.Detect(sub, params)
		if !ok {
			return &vision.Result{}, nil
		}
		// A non-matching expected_color is a FAIL, not an absence of
		// objects found; the facade models this by omitting the object
		// from the result so the generic PASS-if-non-empty rule applies.
		if match, _ := obj.Properties["match"].(bool); params.ExpectedColor != "" && !match {
			return &vision.Result{}, nil
		}
		return &vision.Result{Objects: []*vision.Object{obj}}, nil
	}

	return f.run(imageID, roi, "color_detect", false, recordHistory, detectorFn)
}

// FiducialDetect runs synthetic marker detection and decoding.
func (f *Facade) FiducialDetect(imageID string, roi *geometry.Rectangle, params fiducial.Params, recordHistory bool) (*Inspection, error) {
	detectorFn := func(sub vision.Image) (*vision.Result, error) {
		obj, ok := fiducial.Detect(sub, params)
		var objs []*vision.Object
		if ok {
			objs = []*vision.Object{obj}
		}
		return &vision.Result{Objects: objs}, nil
	}

	return f.run(imageID, roi, "fiducial_detect", false, recordHistory, detectorFn)
}

// RotationEstimate fits an angle to a contour the caller already holds
// (typically the output of a prior EdgeDetect call). It does not inspect
// sub's pixels, but still rides the orchestrator so the result carries a
// thumbnail and an overlaid arrow, and so the coordinate remap applies
// uniformly to every detector. Rotation always PASSES once Estimate
// succeeds, regardless of how many objects that implies.
func (f *Facade) RotationEstimate(imageID string, roi *geometry.Rectangle, contour []geometry.Point, method rotation.Method, rng rotation.AngleRange, recordHistory bool) (*Inspection, error) {
	detectorFn := func(sub vision.Image) (*vision.Result, error) {
		result, err := rotation.Estimate(contour, method, rng)
		if err != nil {
			return nil, verrors.Wrap(verrors.InsufficientContourPoints, "rotation estimate", err)
		}

		angle := result.AngleDeg
		obj := &vision.Object{
			ObjectType:  vision.RotationAnalysis,
			BoundingBox: boundingBoxOf(contour),
			Center:      meanPoint(contour),
			Confidence:  result.Confidence,
			RotationDeg: &angle,
			Contour:     contour,
		}
		return &vision.Result{Objects: []*vision.Object{obj}}, nil
	}

	return f.run(imageID, roi, "rotation_estimate", true, recordHistory, detectorFn)
}

// run is the shared validate -> orchestrate -> derive-outcome -> optional
// history append shape every facade method rides.
func (f *Facade) run(imageID string, roi *geometry.Rectangle, op string, alwaysPassOnSuccess, recordHistory bool, detectorFn pipeline.DetectorFunc) (*Inspection, error) {
	start := time.Now()

	if _, err := f.images.GetMetadata(imageID); err != nil {
		return nil, err
	}

	result, err := f.orch.Orchestrate(imageID, roi, detectorFn)
	if err != nil {
		// A detector-raised error (bad parameters, too few contour
		// points) still produces an ERROR history record when there is a
		// valid image to record it against; a store-level validation
		// error (image missing, ROI empty) does not, since no inspection
		// of that image actually ran. The pre-check on imageID here is a
		// courtesy for a cleaner error, not what enforces this rule —
		// isDetectorError already tells the two apart.
		if recordHistory && isDetectorError(err) {
			f.recordError(imageID, op, start, err)
		}
		return nil, err
	}

	outcome := history.Fail
	if alwaysPassOnSuccess || len(result.Objects) > 0 {
		outcome = history.Pass
	}

	var histID string
	if recordHistory {
		histID = f.history.Add(imageID, outcome,
			[]history.Detection{{Name: op, Found: outcome == history.Pass}},
			result.ElapsedMs, result.ThumbnailBase64, nil)
	}

	if f.logger != nil {
		f.logger.Debug("facade detection complete",
			zap.String("operation", op),
			zap.String("image_id", imageID),
			zap.String("outcome", string(outcome)))
	}

	return &Inspection{Result: result, Outcome: outcome, HistoryID: histID}, nil
}

func (f *Facade) recordError(imageID, op string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds() * 1000
	f.history.Add(imageID, history.Error,
		[]history.Detection{{Name: op, Found: false}},
		elapsed, "", map[string]interface{}{"error": err.Error()})
}

// isDetectorError reports whether err originated from a detector's own
// logic (bad parameters, insufficient geometry) rather than from store
// lookups or ROI validation, which the orchestrator already rejects
// before any detector runs.
func isDetectorError(err error) bool {
	return verrors.Is(err, verrors.InvalidParameter) || verrors.Is(err, verrors.InsufficientContourPoints)
}

func meanPoint(points []geometry.Point) geometry.Point {
	if len(points) == 0 {
		return geometry.NewPoint(0, 0)
	}
	var sx, sy float64
	for _, p := range points {
		sx += p.X
		sy += p.Y
	}
	n := float64(len(points))
	return geometry.NewPoint(sx/n, sy/n)
}

func boundingBoxOf(points []geometry.Point) geometry.Rectangle {
	if len(points) == 0 {
		return geometry.Rectangle{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := points[0].X, points[0].Y
	for _, p := range points[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return geometry.FromPoints(int(minX), int(minY), int(maxX), int(maxY))
}
