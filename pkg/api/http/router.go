// Package http provides HTTP API handlers.
package http

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/uprelay/uprelay/internal/common/errors"
	"github.com/uprelay/uprelay/internal/relay/listing"
	"github.com/uprelay/uprelay/internal/relay/service"
)

// Handler provides HTTP handlers for the relay API.
type Handler struct {
	relay *service.RelayService
}

// NewHandler creates a new Handler.
func NewHandler(relay *service.RelayService) *Handler {
	return &Handler{
		relay: relay,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/files", h.ListFiles)
		api.POST("/upload", h.Upload)
		api.GET("/dl", h.Download)
		api.GET("/uploads/recent", h.RecentUploads)
	}

	r.GET("/health", h.Health)
	r.GET("/", h.Root)
}

// ListFiles returns all stored objects, newest first.
// GET /api/files
func (h *Handler) ListFiles(c *gin.Context) {
	objects, err := h.relay.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	if objects == nil {
		objects = []listing.Object{}
	}
	c.JSON(http.StatusOK, objects)
}

// Upload accepts a multipart batch under the "file" field.
// POST /api/upload
func (h *Handler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "invalid multipart form",
		})
		return
	}

	var files []service.UploadFile
	for _, header := range form.File["file"] {
		part, err := header.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"ok":    false,
				"error": err.Error(),
			})
			return
		}

		// Payloads are held in memory for the request; there is no
		// streaming to the backend.
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"ok":    false,
				"error": err.Error(),
			})
			return
		}

		files = append(files, service.UploadFile{
			Name:        header.Filename,
			Size:        int64(len(data)),
			ContentType: header.Header.Get("Content-Type"),
			Content:     bytes.NewReader(data),
		})
	}

	result, err := h.relay.Upload(c.Request.Context(), files)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errors.ErrBatchTooLarge) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}

	uploaded := result.Files
	if uploaded == nil {
		uploaded = []service.UploadedFile{}
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"count": result.Count,
		"files": uploaded,
	})
}

// Download redirects to a short-lived signed URL forcing a download.
// GET /api/dl?key=<k>
func (h *Handler) Download(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "missing key parameter",
		})
		return
	}

	url, err := h.relay.ResolveDownload(c.Request.Context(), key)
	if err != nil {
		if errors.IsNotFound(err) || errors.IsNotSupported(err) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "object not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.Redirect(http.StatusFound, url)
}

// RecentUploads returns the most recent upload batches.
// GET /api/uploads/recent?limit=<n>
func (h *Handler) RecentUploads(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	batches, err := h.relay.RecentBatches(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batches": batches,
	})
}

// Health handles liveness probes.
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Root redirects to the login page.
// GET /
func (h *Handler) Root(c *gin.Context) {
	c.Redirect(http.StatusFound, "/login.html")
}
