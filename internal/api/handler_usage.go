package api

import (
	"context"
	"log"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"coffee-fleet-console/internal/analytics"
	"coffee-fleet-console/internal/authz"
	"coffee-fleet-console/internal/backend"
)

const maxUsageRows = 200

// GetUsage handles GET /usage, the fleet-wide usage view.
func (h *Handler) GetUsage(c *gin.Context) {
	sess := currentSession(c)
	machines, history := h.visibleUsage(sess)

	var machineID backend.ID
	if raw := c.Query("machineId"); raw != "" {
		parsed, err := backend.ParseID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid machineId"})
			return
		}
		machineID = parsed
	}
	limit := maxUsageRows
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < maxUsageRows {
			limit = n
		}
	}

	rows := make([]backend.UsageRecord, 0, len(history))
	if machineID != 0 {
		rows = append(rows, h.machineUsage(c.Request.Context(), machines, history, machineID)...)
	} else {
		rows = append(rows, history...)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.After(rows[j].Timestamp.Time)
	})
	total := len(rows)
	if len(rows) > limit {
		rows = rows[:limit]
	}

	report := h.analytics.Report(c.Request.Context(), machineIDs(machines))
	r := analytics.LastDays(h.now(), usageDays(c))

	resp := gin.H{
		"records":          rows,
		"totalRecords":     total,
		"todayUsage":       h.data.TodayUsage(),
		"summary":          analytics.Summarize(report, machines, history, r),
		"brewTypes":        report.BrewTypes,
		"resourceAverages": report.ResourceAverages,
		"simulated":        report.Simulated,
	}
	if report.Simulated {
		resp["notice"] = report.Notice
	}
	if !authz.ScopedToFacility(sess) {
		if stats, err := h.backend.Usage.Statistics(c.Request.Context()); err == nil {
			resp["statistics"] = stats
		} else {
			log.Printf("Backend usage statistics unavailable: %v", err)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// machineUsage returns the usage of one visible machine straight from the
// backend, falling back to the cached history when that fails. Machines sess
// can't see have no usage.
func (h *Handler) machineUsage(ctx context.Context, machines []backend.Machine, history []backend.UsageRecord, machineID backend.ID) []backend.UsageRecord {
	visible := false
	for _, m := range machines {
		if m.ID == machineID {
			visible = true
			break
		}
	}
	if !visible {
		return nil
	}

	records, err := h.backend.Usage.ListByMachine(ctx, machineID)
	if err == nil {
		return records
	}
	log.Printf("Failed to load usage of machine %d, using cached history: %v", machineID, err)
	cached := []backend.UsageRecord{}
	for _, u := range history {
		if u.MachineID == machineID {
			cached = append(cached, u)
		}
	}
	return cached
}
