package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rcrowley/go-metrics"

	"coffee-fleet-console/internal/datasync"
)

// Refresh handles POST /refresh: one synchronous sync and alert poll.
func (h *Handler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	syncErr := h.data.FetchAll(ctx)
	pollErr := h.alerts.Poll(ctx)
	h.views.Flush()

	if errors.Is(syncErr, datasync.ErrAllSourcesFailed) {
		c.JSON(http.StatusBadGateway, gin.H{"error": h.data.Error()})
		return
	}
	if errors.Is(syncErr, datasync.ErrSuperseded) {
		c.JSON(http.StatusConflict, gin.H{"error": "Session ended during refresh"})
		return
	}

	resp := gin.H{"stats": h.data.DashboardStats()}
	if pollErr != nil {
		resp["alertsError"] = h.alerts.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Health handles GET /health. It reports the backend's own health endpoint.
func (h *Handler) Health(c *gin.Context) {
	report, err := h.backend.Health.Check(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": report})
}

// Metrics handles GET /debug/metrics.
func (h *Handler) Metrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "metrics are disabled"})
		return
	}
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Status(http.StatusOK)
	metrics.WriteJSONOnce(h.metrics, c.Writer)
}

// Live handles GET /ws.
func (h *Handler) Live(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "live updates are disabled"})
		return
	}
	h.hub.ServeWS(c)
}
