package httpapi

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uragamarco/proyecto-balistica/internal/history"
	"github.com/uragamarco/proyecto-balistica/internal/imagestore"
	"github.com/uragamarco/proyecto-balistica/internal/pipeline"
	"github.com/uragamarco/proyecto-balistica/internal/service"
	"github.com/uragamarco/proyecto-balistica/internal/templatestore"
	"github.com/uragamarco/proyecto-balistica/internal/vision"
)

func newTestRouter(t *testing.T) (*Router, *imagestore.Store, *templatestore.Store, *history.Ring) {
	t.Helper()
	images := imagestore.New(10, 1<<30, 5, nil)
	templates, err := templatestore.Open(filepath.Join(t.TempDir(), "templates"), 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { templates.Close() })
	hist := history.New(100, nil)
	orch := pipeline.New(images, 64, 70, nil)
	facade := service.New(images, templates, hist, orch, nil)
	return New(images, templates, hist, facade, nil), images, templates, hist
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartImage(t *testing.T, field, filename string, data []byte, extraFields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range extraFields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestCaptureHandlerStoresImageAndNormalizesCameraID(t *testing.T) {
	router, images, _, _ := newTestRouter(t)

	body, contentType := multipartImage(t, "image", "frame.png", pngBytes(t, 4, 4, color.White), map[string]string{
		"camera_id": "usb_2",
	})

	req := httptest.NewRequest(http.MethodPost, "/camera/capture", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ImageID  string `json:"image_id"`
		CameraID string `json:"camera_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "usb_2", resp.CameraID)
	assert.Equal(t, 1, images.Count())

	_, err := images.Get(resp.ImageID)
	assert.NoError(t, err)
}

func TestTemplateUploadAndListRoundTrip(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	body, contentType := multipartImage(t, "image", "tmpl.png", pngBytes(t, 8, 8, color.Black), map[string]string{
		"name":        "fiducial-a",
		"description": "corner marker",
	})
	req := httptest.NewRequest(http.MethodPost, "/template/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/template/list", nil)
	listRec := httptest.NewRecorder()
	router.Engine().ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var listResp struct {
		Templates []templatestore.Info `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Templates, 1)
	assert.Equal(t, "fiducial-a", listResp.Templates[0].Name)
}

func TestColorDetectHandlerReturnsInspection(t *testing.T) {
	router, images, _, _ := newTestRouter(t)

	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 20, B: 20, A: 255})
		}
	}
	entry, err := images.Put("test", nil, vision.NewImage(img))
	require.NoError(t, err)

	reqBody, err := json.Marshal(map[string]interface{}{
		"image_id": entry.ImageID,
		"params": map[string]interface{}{
			"k": 1,
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/vision/color-detect", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Outcome string `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Outcome)
}

func TestHistoryRecentHandlerReturnsRecordedInspections(t *testing.T) {
	router, images, _, hist := newTestRouter(t)

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	entry, err := images.Put("test", nil, vision.NewImage(img))
	require.NoError(t, err)

	hist.Add(entry.ImageID, history.Pass, []history.Detection{{Name: "color_detect", Found: true}}, 1.2, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/history/recent?limit=10", nil)
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Records []*history.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, entry.ImageID, resp.Records[0].ImageID)
}

func TestExtractROIHandlerRejectsEmptyClip(t *testing.T) {
	router, images, _, _ := newTestRouter(t)

	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	entry, err := images.Put("test", nil, vision.NewImage(img))
	require.NoError(t, err)

	reqBody, err := json.Marshal(map[string]interface{}{
		"image_id": entry.ImageID,
		"roi":      map[string]int{"X": 100, "Y": 100, "Width": 10, "Height": 10},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/image/extract-roi", bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSystemHealthHandler(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/system/health", nil)
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
