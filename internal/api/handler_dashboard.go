package api

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"coffee-fleet-console/internal/alerts"
	"coffee-fleet-console/internal/authz"
	"coffee-fleet-console/internal/backend"
	"coffee-fleet-console/internal/datasync"
	"coffee-fleet-console/internal/session"
)

type dashboardResponse struct {
	Stats       datasync.DashboardStats `json:"stats"`
	LowSupply   []backend.Machine       `json:"lowSupply"`
	AlertCounts map[alerts.Filter]int   `json:"alertCounts"`
	Critical    []backend.Alert         `json:"criticalAlerts"`
	Facility    string                  `json:"facilityName,omitempty"`
	Loading     bool                    `json:"loading"`
	Error       string                  `json:"error,omitempty"`
	Navigation  []authz.NavItem         `json:"navigation"`

	BackendSummary *backend.DashboardSummary `json:"backendSummary,omitempty"`
}

// GetDashboard handles GET /dashboard. Facility-scoped sessions only see
// their own facility's figures.
func (h *Handler) GetDashboard(c *gin.Context) {
	sess := currentSession(c)
	now := h.now()

	snap := h.data.Snapshot()
	if authz.ScopedToFacility(sess) {
		snap = snap.ForFacility(sess.FacilityID, now)
		if !sess.HasFacility() {
			snap.Machines = []backend.Machine{}
			snap.UsageHistory = []backend.UsageRecord{}
			snap.TodayUsage = datasync.TodayUsage{Source: datasync.SourceHistory}
		}
	}

	visible := h.visibleAlerts(sess, h.alerts.Active(alerts.FilterAll))
	counts := make(map[alerts.Filter]int, len(alerts.Filters))
	for _, f := range alerts.Filters {
		counts[f] = len(alerts.Apply(visible, f, now))
	}

	lowSupply := []backend.Machine{}
	for _, m := range snap.Machines {
		if m.HasLowSupplies {
			lowSupply = append(lowSupply, m)
		}
	}

	errMsg := snap.Error
	if errMsg == "" {
		errMsg = h.alerts.Error()
	}

	c.JSON(http.StatusOK, dashboardResponse{
		BackendSummary: h.backendSummary(c.Request.Context(), sess),
		Stats:       datasync.StatsOf(snap),
		LowSupply:   lowSupply,
		AlertCounts: counts,
		Critical:    alerts.Apply(visible, alerts.FilterCritical, now),
		Facility:    sess.FacilityName,
		Loading:     snap.Loading,
		Error:       errMsg,
		Navigation:  authz.Navigation(sess.Role),
	})
}

// backendSummary asks the backend for its own dashboard figures. Backends
// without the dashboard endpoints answer 404; that and any other failure
// leave the summary out.
func (h *Handler) backendSummary(ctx context.Context, sess session.Session) *backend.DashboardSummary {
	var (
		summary *backend.DashboardSummary
		err     error
	)
	switch {
	case !authz.ScopedToFacility(sess):
		summary, err = h.backend.Dashboard.Summary(ctx)
	case sess.HasFacility():
		summary, err = h.backend.Dashboard.Facility(ctx, sess.FacilityID)
	default:
		return nil
	}
	if err != nil {
		if backend.StatusCode(err) != http.StatusNotFound {
			log.Printf("Backend dashboard summary unavailable: %v", err)
		}
		return nil
	}
	return summary
}
