package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/blob"
	"github.com/psds-microservice/ticket-chat-service/internal/errs"
)

// MaxUploadBytes bounds a single attachment.
const MaxUploadBytes = 10 << 20

// multipartOverhead is the allowance for form fields and part headers on
// top of the attachment itself.
const multipartOverhead = 1 << 20

type FileHandler struct {
	store blob.Store
	log   *slog.Logger
}

func NewFileHandler(store blob.Store, log *slog.Logger) *FileHandler {
	return &FileHandler{store: store, log: log}
}

// Upload stores a multipart "file" under the ticket given in "ticketId".
func (h *FileHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadBytes+multipartOverhead)
	if _, err := c.MultipartForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fileTooLarge(c)
			return
		}
		badRequest(c, "File is required")
		return
	}
	ticketID, err := uuid.Parse(strings.TrimSpace(c.PostForm("ticketId")))
	if err != nil {
		badRequest(c, "Ticket ID is required")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "File is required")
		return
	}
	if fh.Size > MaxUploadBytes {
		fileTooLarge(c)
		return
	}
	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		badRequest(c, "only images can be attached")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "File is required")
		return
	}
	defer f.Close()

	obj, err := h.store.Upload(c.Request.Context(), ticketID.String(), fh.Filename, contentType, f, fh.Size)
	if err != nil {
		writeError(c, h.log, errors.Join(errs.ErrUpstream, err))
		return
	}
	c.JSON(http.StatusCreated, obj)
}

// RefreshURL re-signs a stored file path whose earlier URL expired.
func (h *FileHandler) RefreshURL(c *gin.Context) {
	filePath := strings.TrimSpace(c.Query("filePath"))
	if filePath == "" {
		badRequest(c, "File path is required")
		return
	}
	url, err := h.store.SignedURL(c.Request.Context(), filePath)
	if err != nil {
		if errors.Is(err, blob.ErrInvalidKey) {
			badRequest(c, "invalid file path")
			return
		}
		writeError(c, h.log, errors.Join(errs.ErrUpstream, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"signedUrl": url})
}

func fileTooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
}
