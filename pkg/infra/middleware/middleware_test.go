package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/utils/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	return r
}

func TestRequestID_Generated(t *testing.T) {
	var seen string
	r := newEngine(RequestID())
	r.GET("/", func(c *gin.Context) {
		seen = GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(HeaderXRequestID))
}

func TestRequestID_Propagated(t *testing.T) {
	r := newEngine(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))
}

func TestGetRequestID_Missing(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestRecovery(t *testing.T) {
	r := newEngine(RequestID(), Recovery())
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")
}

func TestTimeout_SetsDeadline(t *testing.T) {
	r := newEngine(Timeout(time.Minute, "/skip"))
	handler := func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		if ok {
			c.String(http.StatusOK, "deadline")
			return
		}
		c.String(http.StatusOK, "none")
	}
	r.GET("/ask", handler)
	r.GET("/skip", handler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ask", nil))
	assert.Equal(t, "deadline", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/skip", nil))
	assert.Equal(t, "none", w.Body.String())
}

func TestTimeout_Disabled(t *testing.T) {
	r := newEngine(Timeout(0))
	r.GET("/", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.False(t, ok)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBodyLimit(t *testing.T) {
	r := newEngine(BodyLimit(8))
	r.POST("/upload", func(c *gin.Context) {
		buf := make([]byte, 64)
		n, err := c.Request.Body.Read(buf)
		if err != nil && n == 0 {
			c.Status(http.StatusBadRequest)
			return
		}
		c.String(http.StatusOK, string(buf[:n]))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("small")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "small", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("this body is far too large")))
	assert.Equal(t, errors.ErrRequestTooLarge.HTTPStatus(), w.Code)
	assert.Contains(t, w.Body.String(), "Request body too large")
}

func TestLogger_PassesThrough(t *testing.T) {
	r := newEngine(RequestID(), Logger(DefaultSkipPaths...))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/status", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}
