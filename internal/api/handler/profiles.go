package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pkaminski/adspulse/internal/ads"
	"github.com/pkaminski/adspulse/internal/api/middleware"
)

// ProfileHandler lists the advertising profiles visible to the configured
// credentials. It doubles as a connectivity check against the external API.
type ProfileHandler struct {
	client *ads.Client
}

// NewProfileHandler creates a new profile handler.
// Parameters:
//   - client: shared ads API client.
// Returns:
//   - *ProfileHandler: initialized handler.
func NewProfileHandler(client *ads.Client) *ProfileHandler {
	return &ProfileHandler{client: client}
}

// List handles GET /api/v1/profiles.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProfileHandler) List(c *gin.Context) {
	profiles, err := h.client.ListProfiles(c.Request.Context())
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to list advertising profiles")
		c.JSON(http.StatusBadGateway, gin.H{"error": "advertising API unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profiles": profiles,
		"count":    len(profiles),
	})
}
