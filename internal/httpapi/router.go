// Package httpapi is the thin, collaborator-only HTTP route table over the
// Service Facade and its stores (spec.md §6): JSON request/response, one
// route group per resource. Grounded on the teacher's
// internal/api/router_with_cache.go (gin engine construction, CORS and
// logging middleware, grouped routes) and handlers.go (APIError-shaped
// error responses), generalized from ballistics endpoints to the vision
// surface named in spec.md §6.
package httpapi

import (
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"time"

	"bytes"
	"encoding/base64"
	"image/jpeg"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"go.uber.org/zap"

	"github.com/uragamarco/proyecto-balistica/internal/cameraid"
	"github.com/uragamarco/proyecto-balistica/internal/geometry"
	"github.com/uragamarco/proyecto-balistica/internal/history"
	"github.com/uragamarco/proyecto-balistica/internal/imagestore"
	"github.com/uragamarco/proyecto-balistica/internal/service"
	"github.com/uragamarco/proyecto-balistica/internal/templatestore"
	"github.com/uragamarco/proyecto-balistica/internal/verrors"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
	"github.com/uragamarco/proyecto-balistica/internal/vision/color"
	"github.com/uragamarco/proyecto-balistica/internal/vision/edge"
	"github.com/uragamarco/proyecto-balistica/internal/vision/fiducial"
	"github.com/uragamarco/proyecto-balistica/internal/vision/rotation"
	"github.com/uragamarco/proyecto-balistica/internal/vision/templatematch"
)

// Router owns the gin engine and every collaborator handle it dispatches
// to.
type Router struct {
	images    *imagestore.Store
	templates *templatestore.Store
	history   *history.Ring
	facade    *service.Facade
	logger    *zap.Logger
	engine    *gin.Engine
}

// New builds a Router wired to its already-constructed collaborators and
// sets up every route group.
func New(images *imagestore.Store, templates *templatestore.Store, hist *history.Ring, facade *service.Facade, logger *zap.Logger) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(loggingMiddleware(logger))

	r := &Router{images: images, templates: templates, history: hist, facade: facade, logger: logger, engine: engine}
	r.setupRoutes()
	return r
}

// Engine returns the underlying gin.Engine, for cmd/server to hand to
// http.Server.
func (r *Router) Engine() *gin.Engine { return r.engine }

func (r *Router) setupRoutes() {
	camera := r.engine.Group("/camera")
	camera.POST("/capture", r.captureHandler)

	tmpl := r.engine.Group("/template")
	tmpl.GET("/list", r.templateListHandler)
	tmpl.POST("/upload", r.templateUploadHandler)
	tmpl.POST("/learn", r.templateLearnHandler)
	tmpl.DELETE("/:id", r.templateDeleteHandler)
	tmpl.GET("/:id/thumbnail", r.templateThumbnailHandler)

	visionGroup := r.engine.Group("/vision")
	visionGroup.POST("/template-match", r.templateMatchHandler)
	visionGroup.POST("/edge-detect", r.edgeDetectHandler)
	visionGroup.POST("/color-detect", r.colorDetectHandler)
	visionGroup.POST("/aruco-detect", r.arucoDetectHandler)
	visionGroup.POST("/rotation-detect", r.rotationDetectHandler)

	r.engine.POST("/image/extract-roi", r.extractROIHandler)

	hist := r.engine.Group("/history")
	hist.GET("/recent", r.historyRecentHandler)
	hist.GET("/statistics", r.historyStatisticsHandler)
	hist.POST("/clear", r.historyClearHandler)
	hist.GET("/timeseries", r.historyTimeSeriesHandler)
	hist.GET("/failure-analysis", r.historyFailureAnalysisHandler)
	hist.GET("/:id", r.historyByIDHandler)

	sys := r.engine.Group("/system")
	sys.GET("/status", r.systemStatusHandler)
	sys.GET("/health", r.systemHealthHandler)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		logger.Info("http request",
			zap.String("method", param.Method),
			zap.String("path", param.Path),
			zap.Int("status", param.StatusCode),
			zap.Duration("latency", param.Latency),
			zap.String("ip", param.ClientIP))
		return ""
	})
}

func respondError(c *gin.Context, err error) {
	kind := verrors.InternalError
	var verr *verrors.Error
	if errors.As(err, &verr) {
		kind = verr.Kind
	}
	c.JSON(verrors.HTTPStatus(kind), gin.H{"error": err.Error(), "kind": kind})
}

func respondInspection(c *gin.Context, insp *service.Inspection, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"objects":            insp.Objects,
		"thumbnail_base64":   insp.ThumbnailBase64,
		"processing_time_ms": insp.ElapsedMs,
		"outcome":            insp.Outcome,
		"history_id":         insp.HistoryID,
	})
}

// --- /camera -----------------------------------------------------------

func (r *Router) captureHandler(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		respondError(c, verrors.Wrap(verrors.InvalidParameter, "missing image file", err))
		return
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		respondError(c, verrors.Wrap(verrors.InvalidParameter, "decoding uploaded image", err))
		return
	}

	parsed := cameraid.Parse(c.PostForm("camera_id"), r.logger)
	normalizedID, _ := cameraid.Format(parsed.Type, parsed.Source)

	metadata := map[string]any{
		"filename":   header.Filename,
		"camera_id":  normalizedID,
		"capture_at": time.Now().Format(time.RFC3339),
	}
	entry, err := r.images.Put(normalizedID, metadata, vision.NewImage(img))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"image_id":  entry.ImageID,
		"camera_id": entry.CameraID,
		"stored_at": entry.StoredAt.Format(time.RFC3339),
		"byte_cost": entry.ByteCost,
		"filename":  header.Filename,
	})
}

// --- /template -----------------------------------------------------------

func (r *Router) templateListHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": r.templates.List()})
}

func (r *Router) templateUploadHandler(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		respondError(c, verrors.Wrap(verrors.InvalidParameter, "missing image file", err))
		return
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		respondError(c, verrors.Wrap(verrors.InvalidParameter, "decoding uploaded image", err))
		return
	}

	id, err := r.templates.Upload(c.PostForm("name"), c.PostForm("description"), vision.NewImage(img))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template_id": id})
}

func (r *Router) templateLearnHandler(c *gin.Context) {
	var req struct {
		ImageID     string             `json:"image_id"`
		ROI         geometry.Rectangle `json:"roi"`
		Name        string             `json:"name"`
		Description string             `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, verrors.Wrap(verrors.InvalidParameter, "decoding request body", err))
		return
	}

	entry, err := r.images.Get(req.ImageID)
	if err != nil {
		respondError(c, err)
		return
	}

	id, err := r.templates.LearnFromROI(entry.Image, req.ROI, req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template_id": id})
}

func (r *Router) templateDeleteHandler(c *gin.Context) {
	if !r.templates.Delete(c.Param("id")) {
		respondError(c, verrors.New(verrors.TemplateNotFound, c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (r *Router) templateThumbnailHandler(c *gin.Context) {
	maxWidth := 160
	if w := c.Query("max_width"); w != "" {
		if parsed, err := strconv.Atoi(w); err == nil {
			maxWidth = parsed
		}
	}
	thumb, err := r.templates.Thumbnail(c.Param("id"), maxWidth)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thumbnail_base64": thumb})
}

// --- /vision -----------------------------------------------------------

func (r *Router) templateMatchHandler(c *gin.Context) {
	var req struct {
		ImageID       string              `json:"image_id"`
		ROI           *geometry.Rectangle `json:"roi,omitempty"`
		TemplateID    string              `json:"template_id"`
		Method        string              `json:"method"`
		Threshold     float64             `json:"threshold"`
		ScaleRange    *[2]float64         `json:"scale_range,omitempty"`
		ScaleSteps    int                 `json:"scale_steps"`
		RecordHistory bool                `json:"record_history"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, verrors.Wrap(verrors.InvalidParameter, "decoding request body", err))
		return
	}
	insp, err := r.facade.TemplateMatch(req.ImageID, req.ROI, req.TemplateID,
		templatematch.Method(req.Method), req.Threshold, req.ScaleRange, req.ScaleSteps, req.RecordHistory)
	respondInspection(c, insp, err)
}

func (r *Router) edgeDetectHandler(c *gin.Context) {
	var req struct {
		ImageID       string              `json:"image_id"`
		ROI           *geometry.Rectangle `json:"roi,omitempty"`
		Params        edge.Params         `json:"params"`
		RecordHistory bool                `json:"record_history"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, verrors.Wrap(verrors.InvalidParameter, "decoding request body", err))
		return
	}
	insp, err := r.facade.EdgeDetect(req.ImageID, req.ROI, req.Params, req.RecordHistory)
	respondInspection(c, insp, err)
}

func (r *Router) colorDetectHandler(c *gin.Context) {
	var req struct {
		ImageID       string              `json:"image_id"`
		ROI           *geometry.Rectangle `json:"roi,omitempty"`
		Params        color.Params        `json:"params"`
		RecordHistory bool                `json:"record_history"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, verrors.Wrap(verrors.InvalidParameter, "decoding request body", err))
		return
	}
	insp, err := r.facade.ColorDetect(req.ImageID, req.ROI, req.Params, req.RecordHistory)
	respondInspection(c, insp, err)
}

func (r *Router) arucoDetectHandler(c *gin.Context) {
	var req struct {
		ImageID       string              `json:"image_id"`
		ROI           *geometry.Rectangle `json:"roi,omitempty"`
		Params        fiducial.Params     `json:"params"`
		RecordHistory bool                `json:"record_history"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, verrors.Wrap(verrors.InvalidParameter, "decoding request body", err))
		return
	}
	insp, err := r.facade.FiducialDetect(req.ImageID, req.ROI, req.Params, req.RecordHistory)
	respondInspection(c, insp, err)
}

func (r *Router) rotationDetectHandler(c *gin.Context) {
	var req struct {
		ImageID       string              `json:"image_id"`
		ROI           *geometry.Rectangle `json:"roi,omitempty"`
		Contour       []geometry.Point    `json:"contour"`
		Method        string              `json:"method"`
		AngleRange    string              `json:"angle_range"`
		RecordHistory bool                `json:"record_history"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, verrors.Wrap(verrors.InvalidParameter, "decoding request body", err))
		return
	}
	insp, err := r.facade.RotationEstimate(req.ImageID, req.ROI, req.Contour,
		rotation.Method(req.Method), rotation.AngleRange(req.AngleRange), req.RecordHistory)
	respondInspection(c, insp, err)
}

// --- /image/extract-roi --------------------------------------------------

func (r *Router) extractROIHandler(c *gin.Context) {
	var req struct {
		ImageID string             `json:"image_id"`
		ROI     geometry.Rectangle `json:"roi"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, verrors.Wrap(verrors.InvalidParameter, "decoding request body", err))
		return
	}

	entry, err := r.images.Get(req.ImageID)
	if err != nil {
		respondError(c, err)
		return
	}

	clipped := req.ROI.Clip(entry.Image.Width(), entry.Image.Height())
	if clipped.Width == 0 || clipped.Height == 0 {
		respondError(c, verrors.New(verrors.InvalidROI, "roi clips to an empty region"))
		return
	}

	cropped := imaging.Crop(entry.Image.Img, image.Rect(clipped.X, clipped.Y, clipped.X2(), clipped.Y2()))
	encoded, err := encodeJPEGBase64(cropped, 85)
	if err != nil {
		respondError(c, verrors.Wrap(verrors.InternalError, "encoding roi thumbnail", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"roi": clipped, "thumbnail_base64": encoded})
}

func encodeJPEGBase64(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// --- /history -----------------------------------------------------------

func (r *Router) historyRecentHandler(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}
	var filter *history.Outcome
	if o := c.Query("outcome"); o != "" {
		oc := history.Outcome(o)
		filter = &oc
	}
	c.JSON(http.StatusOK, gin.H{"records": r.history.Recent(limit, filter)})
}

func (r *Router) historyStatisticsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, r.history.Statistics())
}

func (r *Router) historyClearHandler(c *gin.Context) {
	r.history.Clear()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (r *Router) historyTimeSeriesHandler(c *gin.Context) {
	bucketMinutes := 5
	durationHours := 24.0
	if b := c.Query("bucket_minutes"); b != "" {
		if parsed, err := strconv.Atoi(b); err == nil {
			bucketMinutes = parsed
		}
	}
	if d := c.Query("duration_hours"); d != "" {
		if parsed, err := strconv.ParseFloat(d, 64); err == nil {
			durationHours = parsed
		}
	}
	c.JSON(http.StatusOK, gin.H{"buckets": r.history.TimeSeries(bucketMinutes, durationHours)})
}

func (r *Router) historyFailureAnalysisHandler(c *gin.Context) {
	c.JSON(http.StatusOK, r.history.FailureAnalysisReport())
}

func (r *Router) historyByIDHandler(c *gin.Context) {
	rec, err := r.history.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- /system -----------------------------------------------------------

func (r *Router) systemStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"images":    r.images.Stats(),
		"templates": len(r.templates.List()),
		"history":   r.history.Statistics(),
	})
}

func (r *Router) systemHealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
