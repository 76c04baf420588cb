package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skillproof/skillproof-backend/internal/response"
	"github.com/skillproof/skillproof-backend/internal/service"
)

// MaterialHandler handles material upload and signed file streaming.
type MaterialHandler struct {
	materialService *service.MaterialService
}

// NewMaterialHandler creates a new MaterialHandler.
func NewMaterialHandler(materialService *service.MaterialService) *MaterialHandler {
	return &MaterialHandler{materialService: materialService}
}

// Upload godoc
// POST /api/v1/admin/media/upload
// Stores a material file and returns the reference to use in a test.
func (h *MaterialHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	storePath, err := h.materialService.SaveMaterial(file, header)
	if err != nil {
		failFromService(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"material_ref": storePath})
}

// StreamSigned godoc
// GET /files/*filepath?exp=...&sig=...
// Streams a stored file after verifying the signed URL. No other
// authentication applies here: the signature is the credential.
func (h *MaterialHandler) StreamSigned(c *gin.Context) {
	storePath := strings.TrimPrefix(c.Param("filepath"), "/")

	if err := h.materialService.VerifySignedPath(storePath, c.Query("exp"), c.Query("sig")); err != nil {
		response.Fail(c, http.StatusForbidden, response.ErrMaterialUnavailable)
		return
	}

	f, err := h.materialService.Open(storePath)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	// ServeContent gets range requests right, which PDF viewers rely on.
	http.ServeContent(c.Writer, c.Request, stat.Name(), stat.ModTime(), f)
}

// FetchPrivate godoc
// GET /api/v1/admin/material?path=...
// Streams stored bytes to an authenticated admin without requiring a
// signature, for previewing material from the dashboard.
func (h *MaterialHandler) FetchPrivate(c *gin.Context) {
	storePath := strings.TrimPrefix(c.Query("path"), "/")
	if storePath == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	f, err := h.materialService.Open(storePath)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	http.ServeContent(c.Writer, c.Request, stat.Name(), stat.ModTime(), f)
}
