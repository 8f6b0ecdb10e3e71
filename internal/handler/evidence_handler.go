package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusport/achievement-api/internal/dto"
	"github.com/campusport/achievement-api/internal/service"
	appErrors "github.com/campusport/achievement-api/pkg/errors"
	"github.com/campusport/achievement-api/pkg/response"
)

type evidenceService interface {
	Upload(originalName, mimeType string, size int64, r io.Reader) (*dto.EvidenceUploadResponse, error)
	ResolveDownload(token string) (*service.EvidenceDownload, error)
}

// EvidenceHandler exposes evidence blob upload and signed download.
type EvidenceHandler struct {
	service evidenceService
}

// NewEvidenceHandler constructs the handler.
func NewEvidenceHandler(service evidenceService) *EvidenceHandler {
	return &EvidenceHandler{service: service}
}

// Upload godoc
// @Summary Upload an evidence file
// @Tags Evidence
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Evidence file"
// @Success 201 {object} response.Envelope
// @Router /evidence [post]
func (h *EvidenceHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file field is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	mimeType := fileHeader.Header.Get("Content-Type")
	resp, err := h.service.Upload(fileHeader.Filename, mimeType, fileHeader.Size, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resp)
}

// Download godoc
// @Summary Download evidence via a signed token
// @Tags Evidence
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /evidence/{token} [get]
func (h *EvidenceHandler) Download(c *gin.Context) {
	download, err := h.service.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, download.SizeBytes, "application/octet-stream", download.File, nil)
}
