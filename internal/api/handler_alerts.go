package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coffee-fleet-console/internal/alerts"
	"coffee-fleet-console/internal/backend"
)

// AlertResponse is an active alert as the alerts view lists it.
type AlertResponse struct {
	backend.Alert
	Severity    alerts.Severity `json:"severity"`
	State       alerts.State    `json:"state"`
	MachineName string          `json:"machineName,omitempty"`
}

// GetAlerts handles GET /alerts?filter=all|critical|supply|recent.
func (h *Handler) GetAlerts(c *gin.Context) {
	sess := currentSession(c)
	filter := alerts.ParseFilter(c.Query("filter"))
	now := h.now()

	visible := h.visibleAlerts(sess, h.alerts.Active(alerts.FilterAll))
	counts := make(map[alerts.Filter]int, len(alerts.Filters))
	for _, f := range alerts.Filters {
		counts[f] = len(alerts.Apply(visible, f, now))
	}

	selected := alerts.Apply(visible, filter, now)
	responses := make([]AlertResponse, 0, len(selected))
	for _, a := range selected {
		resp := AlertResponse{
			Alert:    a,
			Severity: alerts.SeverityOf(a.AlertType),
			State:    h.alerts.State(a.ID),
		}
		if m, ok := h.data.MachineByID(a.MachineID); ok {
			resp.MachineName = m.Name
		}
		responses = append(responses, resp)
	}

	c.JSON(http.StatusOK, gin.H{
		"filter":   filter,
		"alerts":   responses,
		"counts":   counts,
		"lastPoll": h.alerts.LastPoll(),
		"error":    h.alerts.Error(),
	})
}

// AcknowledgeAlert handles POST /alerts/:id/acknowledge.
func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	sess := currentSession(c)
	found := false
	for _, a := range h.visibleAlerts(sess, h.alerts.Active(alerts.FilterAll)) {
		if a.ID == id {
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}

	if err := h.alerts.Acknowledge(c.Request.Context(), id); err != nil {
		if errors.Is(err, alerts.ErrAcknowledgeInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": h.alerts.Error()})
		return
	}

	h.views.Flush()
	c.JSON(http.StatusOK, gin.H{"id": id, "state": h.alerts.State(id)})
}
