// Package handler provides HTTP handlers for the docqa service.
package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "docqa"

// DocQAHandler handles docqa HTTP requests.
type DocQAHandler struct {
	service biz.Service
	metrics *metrics.DocQAMetrics
}

// NewDocQAHandler creates a new DocQAHandler. m may be nil, in which case
// /metrics reports 404.
func NewDocQAHandler(service biz.Service, m *metrics.DocQAMetrics) *DocQAHandler {
	return &DocQAHandler{
		service: service,
		metrics: m,
	}
}

// HealthResponse is the body of GET /.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// UploadResponse is the body of a successful POST /upload.
type UploadResponse struct {
	Message    string `json:"message"`
	Chunks     int    `json:"chunks"`
	Generation string `json:"generation"`
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Question string `json:"question"`
}

// Health reports liveness.
func (h *DocQAHandler) Health(c *gin.Context) {
	response.OK(c, HealthResponse{Status: "ok", Service: ServiceName})
}

// Status reports whether a document is indexed, with its manifest.
func (h *DocQAHandler) Status(c *gin.Context) {
	st, err := h.service.Status(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, st)
}

// Upload ingests the multipart field "file", replacing the current index.
func (h *DocQAHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, uploadError(err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.Fail(c, errors.ErrBind.WithCause(err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.Fail(c, uploadError(err))
		return
	}

	res, err := h.service.Ingest(c.Request.Context(), fh.Filename, data)
	if err != nil {
		response.Fail(c, err)
		return
	}

	logger.Infow("Document uploaded",
		"document", res.Document,
		"size", len(data),
		"chunks", res.Chunks,
		"generation", res.Generation,
	)
	response.OK(c, UploadResponse{
		Message:    fmt.Sprintf("Ingested %d chunks from '%s'", res.Chunks, res.Document),
		Chunks:     res.Chunks,
		Generation: res.Generation,
	})
}

// Ask answers a question against the current index.
func (h *DocQAHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.ErrBind.WithCause(err))
		return
	}

	answer, err := h.service.Ask(c.Request.Context(), req.Question)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, answer)
}

// Metrics writes business metrics in Prometheus text format.
func (h *DocQAHandler) Metrics(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusNotFound)
		return
	}

	c.Header("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	c.Status(http.StatusOK)
	if err := h.metrics.WritePrometheus(c.Writer, ServiceName); err != nil {
		logger.Warnw("Failed to write metrics", "error", err)
	}
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errors.ErrRequestTooLarge.WithCause(err)
	}
	if errors.Is(err, http.ErrMissingFile) {
		return errors.ErrBind.WithMessage("Missing multipart field 'file'")
	}
	return errors.ErrBind.WithCause(err)
}
