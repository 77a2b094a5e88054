package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Brownie44l1/deepcatcher-api/internal/classifier"
	"github.com/Brownie44l1/deepcatcher-api/internal/imageproc"
	"github.com/Brownie44l1/deepcatcher-api/internal/metrics"
	"github.com/Brownie44l1/deepcatcher-api/internal/pipeline"
	"github.com/Brownie44l1/deepcatcher-api/internal/userservice"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Handler struct {
	pipeline   *pipeline.Orchestrator
	classifier pipeline.Classifier
	classes    []string
	imageSize  int
	maxUpload  int64
}

func NewHandler(p *pipeline.Orchestrator, c pipeline.Classifier, classes []string, imageSize int, maxUpload int64) *Handler {
	return &Handler{
		pipeline:   p,
		classifier: c,
		classes:    classes,
		imageSize:  imageSize,
		maxUpload:  maxUpload,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.POST("/predict", h.Predict)
	r.POST("/predict/image", h.PredictFromImage)
	r.POST("/predictions", h.SavePrediction)
	r.GET("/history", h.History)
	r.GET("/reports", h.Reports)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "classes": h.classes})
}

// Predict classifies an already normalized tensor sent as a flat JSON array.
func (h *Handler) Predict(c *gin.Context) {
	var req PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON", "message": err.Error()})
		return
	}

	expected := h.imageSize * h.imageSize * imageproc.Channels
	if len(req.Image) != expected {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Expected %d values, got %d", expected, len(req.Image))})
		return
	}
	for i, v := range req.Image {
		if v < 0 || v > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Value %d is outside [0,1]: %v", i, v)})
			return
		}
	}

	tensor := &imageproc.Tensor{
		Shape: [4]int64{1, int64(h.imageSize), int64(h.imageSize), imageproc.Channels},
		Data:  req.Image,
	}
	result, err := h.classifier.Classify(tensor)
	if err != nil {
		requestLogger(c).Error().Err(err).Msg("prediction error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Prediction failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// PredictFromImage classifies every uploaded image. Images that fail are
// reported individually; the request still succeeds.
func (h *Handler) PredictFromImage(c *gin.Context) {
	uploads, ok := h.readUploads(c, "images", "image")
	if !ok {
		return
	}

	items := h.pipeline.ClassifyBatch(c.Request.Context(), uploads)

	resp := BatchResponse{Results: make([]ItemResponse, len(items))}
	for i, item := range items {
		resp.Results[i] = newItemResponse(item)
		if item.Err == nil {
			resp.Classified++
		} else {
			resp.Failed++
		}
	}
	c.JSON(http.StatusOK, resp)
}

// SavePrediction classifies the uploaded image and stores the result for the
// logged-in user.
func (h *Handler) SavePrediction(c *gin.Context) {
	uploads, ok := h.readUploads(c, "image")
	if !ok {
		return
	}
	if len(uploads) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Send exactly one 'image' file"})
		return
	}

	ctx := c.Request.Context()
	item := h.pipeline.Classify(ctx, uploads[0])
	if item.Err != nil {
		c.JSON(errorStatus(item.Err), newItemResponse(item))
		return
	}

	out, err := h.pipeline.Save(ctx, sessionFromRequest(c.Request), &item)
	if err != nil {
		h.upstreamError(c, err, gin.H{"result": newItemResponse(item)})
		return
	}
	if out.Refused {
		c.JSON(http.StatusUnauthorized, gin.H{"warning": out.Warning, "result": newItemResponse(item)})
		return
	}

	body := gin.H{"message": "Prediction result successfully saved.", "result": newItemResponse(item)}
	if out.Ack != nil && out.Ack.Record != nil {
		body["record"] = out.Ack.Record
	}
	c.JSON(http.StatusCreated, body)
}

func (h *Handler) History(c *gin.Context) {
	var user *userservice.UserID
	if raw := c.Query("user"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
			return
		}
		uid := userservice.UserID(id)
		user = &uid
	}

	out, err := h.pipeline.History(c.Request.Context(), sessionFromRequest(c.Request), user)
	if err != nil {
		h.upstreamError(c, err, nil)
		return
	}
	if out.Refused {
		c.JSON(http.StatusUnauthorized, gin.H{"warning": out.Warning})
		return
	}

	records := out.Records
	if records == nil {
		records = []userservice.PredictionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"predictions": records})
}

func (h *Handler) Reports(c *gin.Context) {
	out, err := h.pipeline.Reports(c.Request.Context(), sessionFromRequest(c.Request))
	if err != nil {
		h.upstreamError(c, err, nil)
		return
	}
	if out.Refused {
		c.JSON(http.StatusUnauthorized, gin.H{"warning": out.Warning})
		return
	}

	reports := out.Reports
	if reports == nil {
		reports = []userservice.Report{}
	}
	c.JSON(http.StatusOK, gin.H{"user": out.User, "reports": reports})
}

// readUploads reads every file sent under the given form fields. On failure
// it writes the response and returns false.
func (h *Handler) readUploads(c *gin.Context, fields ...string) ([]pipeline.Upload, bool) {
	if c.Request.ContentLength > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Upload exceeds %d bytes", h.maxUpload)})
		return nil, false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Upload exceeds %d bytes", h.maxUpload)})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse form", "message": err.Error()})
		return nil, false
	}

	var headers []*multipart.FileHeader
	for _, field := range fields {
		headers = append(headers, form.File[field]...)
	}
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("No image file provided. Use '%s' as the form field name", fields[0])})
		return nil, false
	}

	log := requestLogger(c)
	uploads := make([]pipeline.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readFile(fh)
		if err != nil {
			log.Err(err).Str("filename", fh.Filename).Msg("read uploaded file")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to open form file", "message": err.Error()})
			return nil, false
		}
		log.Debug().Str("filename", fh.Filename).Int64("size", fh.Size).Msg("received file")
		uploads = append(uploads, pipeline.Upload{
			Filename: fh.Filename,
			Format:   detectFormat(data),
			Data:     data,
		})
	}
	return uploads, true
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func detectFormat(data []byte) string {
	ct := http.DetectContentType(data)
	if format, ok := strings.CutPrefix(ct, "image/"); ok {
		return format
	}
	return ""
}

// upstreamError reports a failed user-service call.
func (h *Handler) upstreamError(c *gin.Context, err error, extra gin.H) {
	body := gin.H{"error": err.Error()}
	if code := userservice.StatusCode(err); code != 0 {
		body["status"] = code
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(errorStatus(err), body)
}

// errorStatus maps pipeline and user-service errors onto HTTP statuses.
func errorStatus(err error) int {
	var (
		decodeErr    *imageproc.DecodeError
		inferenceErr *classifier.InferenceError
		authErr      *userservice.AuthError
		malformedErr *userservice.MalformedResponseError
		persistErr   *userservice.PersistError
		fetchErr     *userservice.FetchError
	)
	switch {
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &inferenceErr):
		return http.StatusInternalServerError
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &malformedErr), errors.As(err, &persistErr), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func requestLogger(c *gin.Context) *zerolog.Logger {
	return zerolog.Ctx(c.Request.Context())
}
