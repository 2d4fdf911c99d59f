package server

import (
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"
	"github.com/yuya-takeyama/manifest-s3-sync/pkg/queue"
)

const apiKeyHeader = "X-API-Key"

// response is the envelope of every /requests reply.
type response struct {
	Errors       []string `json:"errors,omitempty"`
	Data         any      `json:"data,omitempty"`
	IsSuccessful bool     `json:"isSuccessful"`
}

func ok(data any) response {
	return response{Data: data, IsSuccessful: true}
}

func fail(msgs ...string) response {
	return response{Errors: msgs}
}

type submitBody struct {
	Sources []string `json:"sources"`
}

type handler struct {
	queue   *queue.Queue
	version string
}

func SetupRoutes(h *handler, apiKey string, log *slog.Logger) http.Handler {
	r := gin.New()

	httpLogger := log.WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	r.Use(gin.Recovery())

	r.GET("/", h.index)
	r.GET("/healthz", h.health)

	requests := r.Group("/requests")
	requests.Use(APIKeyAuth(apiKey))
	{
		requests.GET("", h.listRequests)
		requests.POST("", h.submitRequest)
		requests.GET("/:id", h.getRequest)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, fail("not found"))
	})

	return r.Handler()
}

// APIKeyAuth rejects requests without the configured key in the "key" query
// parameter or the X-API-Key header. An empty key disables the check.
func APIKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		given := c.GetHeader(apiKeyHeader)
		if given == "" {
			given = c.Query("key")
		}
		if subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, fail("invalid or missing API key"))
			return
		}
		c.Next()
	}
}

func (h *handler) index(c *gin.Context) {
	c.String(http.StatusOK, "manifest-s3-sync %s", h.version)
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (h *handler) listRequests(c *gin.Context) {
	c.JSON(http.StatusOK, ok(h.queue.ListAll()))
}

func (h *handler) getRequest(c *gin.Context) {
	rc, found := h.queue.Get(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, fail("request not found"))
		return
	}
	c.JSON(http.StatusOK, ok(rc))
}

// submitRequest accepts {"sources": [...]} or ?sources=a+b (space separated).
func (h *handler) submitRequest(c *gin.Context) {
	var body submitBody
	if c.ContentType() == gin.MIMEJSON {
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, fail("invalid request body: "+err.Error()))
			return
		}
	}
	if q := c.Query("sources"); q != "" {
		body.Sources = append(body.Sources, strings.Fields(q)...)
	}

	req, err := queue.NewSyncRequest(body.Sources...)
	if err != nil {
		c.JSON(http.StatusBadRequest, fail(err.Error()))
		return
	}

	rc, admitted := h.queue.Submit(c.Request.Context(), req)
	if !admitted {
		c.JSON(http.StatusServiceUnavailable, response{
			Errors: []string{"queue is full, request was not admitted"},
			Data:   rc,
		})
		return
	}
	c.JSON(http.StatusCreated, ok(rc))
}
