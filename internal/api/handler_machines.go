package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"coffee-fleet-console/internal/analytics"
	"coffee-fleet-console/internal/authz"
	"coffee-fleet-console/internal/backend"
	"coffee-fleet-console/internal/session"
)

// MachineResponse is a machine with its display classes.
type MachineResponse struct {
	backend.Machine
	WaterClass       string `json:"waterClass"`
	MilkClass        string `json:"milkClass"`
	BeansClass       string `json:"beansClass"`
	SugarClass       string `json:"sugarClass"`
	TemperatureClass string `json:"temperatureClass"`
}

func newMachineResponse(m backend.Machine) MachineResponse {
	return MachineResponse{
		Machine:          m,
		WaterClass:       analytics.Level(m.WaterLevel),
		MilkClass:        analytics.Level(m.MilkLevel),
		BeansClass:       analytics.Level(m.BeansLevel),
		SugarClass:       analytics.Level(m.SugarLevel),
		TemperatureClass: analytics.TemperatureClass(m.Temperature),
	}
}

// GetMachines handles GET /machines with optional status and facilityId filters.
func (h *Handler) GetMachines(c *gin.Context) {
	sess := currentSession(c)
	machines := h.visibleMachines(sess)

	var status backend.MachineStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := backend.ParseMachineStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status = parsed
	}
	var facilityID backend.ID
	if raw := c.Query("facilityId"); raw != "" {
		parsed, err := backend.ParseID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid facilityId"})
			return
		}
		facilityID = parsed
	}

	responses := make([]MachineResponse, 0, len(machines))
	for _, m := range machines {
		if status != "" && m.Status != status {
			continue
		}
		if facilityID != 0 && m.FacilityID != facilityID {
			continue
		}
		responses = append(responses, newMachineResponse(m))
	}

	c.JSON(http.StatusOK, gin.H{
		"machines":   responses,
		"lastUpdate": h.data.LastUpdate(),
		"loading":    h.data.Loading(),
		"error":      h.data.Error(),
	})
}

// lookupMachine finds a machine sess may see, answering 404 otherwise.
// Machines missing from the cache are fetched from the backend; machines of
// other facilities are reported as missing.
func (h *Handler) lookupMachine(c *gin.Context, sess session.Session) (backend.Machine, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return backend.Machine{}, false
	}
	m, found := h.data.MachineByID(id)
	if !found {
		fetched, err := h.backend.Machines.Get(c.Request.Context(), id)
		if err != nil && backend.StatusCode(err) != http.StatusNotFound {
			backendError(c, err)
			return backend.Machine{}, false
		}
		if err == nil {
			m, found = *fetched, true
		}
	}
	if !found || !authz.CanAccessFacility(sess, m.FacilityID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Machine not found"})
		return backend.Machine{}, false
	}
	return m, true
}

// GetMachine handles GET /machines/:id. The alert history includes resolved
// and acknowledged alerts; it is left empty when the backend can't serve it.
func (h *Handler) GetMachine(c *gin.Context) {
	sess := currentSession(c)
	m, ok := h.lookupMachine(c, sess)
	if !ok {
		return
	}

	history, err := h.backend.Alerts.ListByMachine(c.Request.Context(), m.ID)
	if err != nil {
		log.Printf("Failed to load alert history for machine %d: %v", m.ID, err)
	}
	if history == nil {
		history = []backend.Alert{}
	}

	c.JSON(http.StatusOK, gin.H{
		"machine":      newMachineResponse(m),
		"usageCount":   h.data.UsageCountForMachine(m.ID),
		"alerts":       h.alerts.ForMachine(m.ID),
		"alertHistory": history,
		"canToggle":    authz.Can(sess.Role, authz.ToggleMachines),
		"canRefill":    authz.Can(sess.Role, authz.RefillMachines),
	})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateMachineStatus handles POST /machines/:id/status.
func (h *Handler) UpdateMachineStatus(c *gin.Context) {
	m, ok := h.lookupMachine(c, currentSession(c))
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	status, err := backend.ParseMachineStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.data.UpdateMachineStatus(c.Request.Context(), m.ID, status) {
		c.JSON(http.StatusBadGateway, gin.H{"error": h.data.Error()})
		return
	}
	h.respondMachine(c, m.ID)
}

// RefillMachine handles POST /machines/:id/refill. Omitted supplies are left
// as they are; levels are clamped to 0..100.
func (h *Handler) RefillMachine(c *gin.Context) {
	m, ok := h.lookupMachine(c, currentSession(c))
	if !ok {
		return
	}
	var levels backend.Levels
	if err := c.ShouldBindJSON(&levels); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if levels.WaterLevel == nil && levels.MilkLevel == nil && levels.BeansLevel == nil && levels.SugarLevel == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one supply level is required"})
		return
	}

	if !h.data.RefillMachine(c.Request.Context(), m.ID, levels) {
		c.JSON(http.StatusBadGateway, gin.H{"error": h.data.Error()})
		return
	}
	h.respondMachine(c, m.ID)
}

func (h *Handler) respondMachine(c *gin.Context, id backend.ID) {
	h.views.Flush()
	if m, ok := h.data.MachineByID(id); ok {
		c.JSON(http.StatusOK, newMachineResponse(m))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}
