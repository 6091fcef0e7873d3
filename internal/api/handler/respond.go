package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pkaminski/adspulse/internal/api/middleware"
	"github.com/pkaminski/adspulse/internal/domain"
	"github.com/pkaminski/adspulse/internal/registry"
)

// respondError maps core errors onto HTTP statuses: validation failures are
// the caller's fault (400), lookup misses are 404, everything else is a 500
// with the detail kept in the server log.
func respondError(c *gin.Context, err error) {
	switch {
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, domain.ErrUploadNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
	default:
		middleware.GetLogger(c).WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
