package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles liveness and readiness endpoints.
type HealthHandler struct {
	// ping checks the backing datastore; nil means there is nothing to
	// check and readiness equals liveness.
	ping func(ctx context.Context) error
}

// NewHealthHandler creates a new health handler.
// Parameters:
//   - ping: datastore ping used by the readiness probe; nil disables it.
// Returns:
//   - *HealthHandler: initialized handler.
func NewHealthHandler(ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{ping: ping}
}

// Health handles GET /health (liveness).
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles GET /health/ready (readiness, including the datastore).
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}
