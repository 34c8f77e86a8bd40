package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"comic-shelf/internal/domain"
	"comic-shelf/internal/storage"
)

// serveUpload streams a stored image by its key under /uploads/.
func (h *Handler) serveUpload(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("filepath"), "/")
	if key == "" || strings.HasSuffix(key, "/") {
		_ = c.Error(domain.Errorf(domain.ErrNotFound, "File not found"))
		return
	}

	body, info, err := h.storage.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			err = domain.Errorf(domain.ErrNotFound, "File not found")
		}
		_ = c.Error(err)
		return
	}
	defer body.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := info.Size
	if size <= 0 {
		size = -1
	}

	extra := map[string]string{"Cache-Control": "public, max-age=86400"}
	if info.LastModified != nil {
		extra["Last-Modified"] = info.LastModified.UTC().Format(http.TimeFormat)
	}
	c.DataFromReader(http.StatusOK, size, contentType, body, extra)
}
