package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"comic-shelf/internal/domain"
	"comic-shelf/internal/upload"
)

func (h *Handler) listComics(c *gin.Context) {
	comics, err := h.comics.ListComics(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := make([]ComicResponse, 0, len(comics))
	for _, comic := range comics {
		out = append(out, comicToResponse(comic))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out})
}

func (h *Handler) createComic(c *gin.Context) {
	if h.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes)
	}

	form, err := c.MultipartForm()
	if err != nil {
		_ = c.Error(multipartError(err))
		return
	}
	defer func() { _ = form.RemoveAll() }()

	var meta comicForm
	if err := c.ShouldBind(&meta); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	comic, err := h.comics.CreateComic(c.Request.Context(), currentUser(c).ID, domain.ComicMeta{
		Title:       meta.Title,
		Author:      meta.Author,
		Description: meta.Description,
	}, upload.Form{
		Cover: form.File[upload.FieldCover],
		Pages: form.File[upload.FieldPages],
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": comicToResponse(*comic)})
}

func (h *Handler) deleteComic(c *gin.Context) {
	if err := h.comics.DeleteComic(c.Request.Context(), c.Param("id"), currentUser(c).ID); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Comic deleted successfully"})
}

func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return domain.Errorf(domain.ErrFileTooLarge, "Upload is too large")
	}
	if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
		return domain.Errorf(domain.ErrValidation, "Invalid input: expected multipart/form-data")
	}
	return domain.Errorf(domain.ErrValidation, "Invalid input: %v", err)
}
