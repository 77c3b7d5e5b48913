package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coffee-fleet-console/internal/analytics"
	"coffee-fleet-console/internal/authz"
	"coffee-fleet-console/internal/backend"
	"coffee-fleet-console/internal/datasync"
)

// FacilityResponse is a facility with the counts the list view shows.
type FacilityResponse struct {
	backend.Facility
	MachineCount int `json:"machineCount"`
	ActiveCount  int `json:"activeCount"`
	UsageCount   int `json:"usageCount"`
}

// GetFacilities handles GET /facilities.
func (h *Handler) GetFacilities(c *gin.Context) {
	snap := h.data.Snapshot()

	responses := make([]FacilityResponse, 0, len(snap.Facilities))
	for _, f := range snap.Facilities {
		machines, usage := datasync.FilterByFacility(snap.Machines, snap.UsageHistory, f.ID)
		active := 0
		for _, m := range machines {
			if m.Status == backend.StatusOn && m.IsActive {
				active++
			}
		}
		responses = append(responses, FacilityResponse{
			Facility:     f,
			MachineCount: len(machines),
			ActiveCount:  active,
			UsageCount:   len(usage),
		})
	}
	c.JSON(http.StatusOK, responses)
}

// GetFacility handles GET /facilities/:id. Facilities missing from the cache
// are fetched from the backend together with their machines.
func (h *Handler) GetFacility(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !authz.CanAccessFacility(currentSession(c), id) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have access to this facility"})
		return
	}

	if facility, found := h.data.FacilityByID(id); found {
		c.JSON(http.StatusOK, gin.H{
			"facility": facility,
			"machines": h.data.MachinesByFacility(id),
		})
		return
	}

	fetched, err := h.backend.Facilities.GetWithMachines(c.Request.Context(), id)
	if err != nil {
		if backend.StatusCode(err) == http.StatusNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Facility not found"})
			return
		}
		backendError(c, err)
		return
	}
	machines := fetched.Machines
	if machines == nil {
		machines = []backend.Machine{}
	}
	fetched.Machines = nil
	c.JSON(http.StatusOK, gin.H{
		"facility": fetched,
		"machines": machines,
	})
}

// GetFacilityUsage handles GET /facilities/:id/usage?days=N.
func (h *Handler) GetFacilityUsage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	sess := currentSession(c)
	if !authz.CanAccessFacility(sess, id) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have access to this facility"})
		return
	}
	h.facilityUsage(c, id)
}

// GetOwnFacilityUsage handles GET /facility-usage for facility-bound sessions.
func (h *Handler) GetOwnFacilityUsage(c *gin.Context) {
	sess := currentSession(c)
	if !sess.HasFacility() {
		c.JSON(http.StatusNotFound, gin.H{"error": "No facility is assigned to this account"})
		return
	}
	h.facilityUsage(c, sess.FacilityID)
}

const defaultUsageDays = 7

func usageDays(c *gin.Context) int {
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(defaultUsageDays)))
	if err != nil || days < 0 || days > 365 {
		return defaultUsageDays
	}
	return days
}

func (h *Handler) facilityUsage(c *gin.Context, facilityID backend.ID) {
	machines, history := h.data.UsageForFacility(facilityID)
	report := h.analytics.Report(c.Request.Context(), machineIDs(h.data.Machines()))
	r := analytics.LastDays(h.now(), usageDays(c))

	resp := gin.H{
		"facilityId": facilityID,
		"from":       r.Start.Format("2006-01-02"),
		"to":         r.End.Format("2006-01-02"),
		"summary":    analytics.Summarize(report, machines, history, r),
		"machines":   machines,
	}
	if f, ok := h.data.FacilityByID(facilityID); ok {
		resp["facility"] = f
	}
	if report.Simulated {
		resp["notice"] = report.Notice
	}
	c.JSON(http.StatusOK, resp)
}
