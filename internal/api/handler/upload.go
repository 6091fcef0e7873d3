package handler

import (
	"bytes"
	"encoding/csv"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pkaminski/adspulse/internal/api/middleware"
	"github.com/pkaminski/adspulse/internal/domain"
	"github.com/pkaminski/adspulse/internal/logger"
	"github.com/pkaminski/adspulse/internal/service"
	"github.com/pkaminski/adspulse/internal/storage"
)

// previewRows is how many data rows the preview endpoint returns.
const previewRows = 10

// UploadHandler accepts spreadsheet uploads and serves previews. The bytes
// land in object storage; metadata goes through the upload store so the
// import orchestrator can resolve the file later.
type UploadHandler struct {
	uploads  service.UploadStore
	files    storage.ObjectStorage
	maxBytes int64
}

// NewUploadHandler creates a new upload handler.
// Parameters:
//   - uploads: upload metadata store.
//   - files: object storage receiving the spreadsheet bytes.
//   - maxBytes: upload size ceiling; non-positive means 10 MiB.
// Returns:
//   - *UploadHandler: initialized handler.
func NewUploadHandler(uploads service.UploadStore, files storage.ObjectStorage, maxBytes int64) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &UploadHandler{
		uploads:  uploads,
		files:    files,
		maxBytes: maxBytes,
	}
}

// Upload handles POST /api/v1/upload (multipart: file, profile_id).
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *UploadHandler) Upload(c *gin.Context) {
	profileID := strings.TrimSpace(c.PostForm("profile_id"))
	if profileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile_id is required"})
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type " + ext + ": only .csv is accepted"})
		return
	}
	if fileHeader.Size > h.maxBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds the size limit"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer src.Close()

	uploadID := uuid.New().String()
	key := storage.UploadKey(profileID, uploadID, ext)
	ctx := c.Request.Context()
	if err := h.files.Upload(ctx, key, src, fileHeader.Size, "text/csv"); err != nil {
		respondError(c, err)
		return
	}

	upload := &domain.Upload{
		ID:         uploadID,
		ProfileID:  profileID,
		Filename:   fileHeader.Filename,
		FileType:   ext,
		SizeBytes:  fileHeader.Size,
		StorageKey: key,
	}
	if err := h.uploads.Create(ctx, upload); err != nil {
		respondError(c, err)
		return
	}

	middleware.GetLogger(c).WithFields(logger.Fields{
		logger.FieldUploadID:  uploadID,
		logger.FieldProfileID: profileID,
		logger.FieldSize:      fileHeader.Size,
	}).Info("Spreadsheet uploaded")
	c.JSON(http.StatusOK, upload)
}

// List handles GET /api/v1/uploads?profile_id=&limit=.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *UploadHandler) List(c *gin.Context) {
	profileID := strings.TrimSpace(c.Query("profile_id"))
	if profileID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile_id is required"})
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit " + s})
			return
		}
		limit = n
	}

	uploads, err := h.uploads.ListByProfile(c.Request.Context(), profileID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if uploads == nil {
		uploads = []domain.Upload{}
	}
	c.JSON(http.StatusOK, gin.H{
		"uploads": uploads,
		"count":   len(uploads),
	})
}

// Preview handles GET /api/v1/upload/:upload_id/preview. It returns the
// first rows of the file plus which required columns were detected, so a
// caller can sanity-check the layout before starting an import.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *UploadHandler) Preview(c *gin.Context) {
	ctx := c.Request.Context()
	upload, err := h.uploads.Get(ctx, c.Param("upload_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	body, err := h.files.Download(ctx, upload.StorageKey)
	if err != nil {
		respondError(c, err)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(body, h.maxBytes+1))
	body.Close()
	if err != nil {
		respondError(c, err)
		return
	}

	header, err := csv.NewReader(bytes.NewReader(payload)).Read()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spreadsheet has no readable header row"})
		return
	}
	detected, missing := service.ValidateColumns(header)

	rows, total, err := service.PreviewCSV(bytes.NewReader(payload), previewRows)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"upload_id":        upload.ID,
		"filename":         upload.Filename,
		"rows":             rows,
		"total_rows":       total,
		"detected_columns": detected,
		"missing_columns":  missing,
	})
}
