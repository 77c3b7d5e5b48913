package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/rcrowley/go-metrics"

	"coffee-fleet-console/internal/alerts"
	"coffee-fleet-console/internal/analytics"
	"coffee-fleet-console/internal/authz"
	"coffee-fleet-console/internal/backend"
	"coffee-fleet-console/internal/datasync"
	"coffee-fleet-console/internal/live"
	"coffee-fleet-console/internal/session"
	"coffee-fleet-console/internal/store"
)

// Deps are the services the console views read from.
type Deps struct {
	Store     store.Store
	Webpush   *webpush.Options
	Session   *session.Store
	Data      *datasync.Store
	Alerts    *alerts.Tracker
	Analytics *analytics.Service
	Backend   *backend.API
	Hub       *live.Hub
	Metrics   metrics.Registry
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	webpush   *webpush.Options
	session   *session.Store
	data      *datasync.Store
	alerts    *alerts.Tracker
	analytics *analytics.Service
	backend   *backend.API
	hub       *live.Hub
	metrics   metrics.Registry

	// views caches rendered GET responses until the data under them changes.
	views *cache.Cache
	now   func() time.Time
}

// NewHandler creates a new API handler. The view cache is flushed on every
// committed sync and on logout.
func NewHandler(d Deps, viewTTL time.Duration) *Handler {
	if viewTTL <= 0 {
		viewTTL = 5 * time.Second
	}
	h := &Handler{
		store:     d.Store,
		webpush:   d.Webpush,
		session:   d.Session,
		data:      d.Data,
		alerts:    d.Alerts,
		analytics: d.Analytics,
		backend:   d.Backend,
		hub:       d.Hub,
		metrics:   d.Metrics,
		views:     cache.New(viewTTL, 2*viewTTL),
		now:       time.Now,
	}
	if h.data != nil {
		h.data.OnCommit(func(datasync.Snapshot) { h.views.Flush() })
	}
	if h.session != nil {
		h.session.OnLogout(h.views.Flush)
	}
	return h
}

const sessionKey = "session"

func currentSession(c *gin.Context) session.Session {
	v, _ := c.Get(sessionKey)
	sess, _ := v.(session.Session)
	return sess
}

// paramID parses an id path parameter, answering 400 when it is malformed.
func paramID(c *gin.Context, name string) (backend.ID, bool) {
	id, err := backend.ParseID(c.Param(name))
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// backendError maps a backend failure to a console response. Client errors
// keep their status; everything else is a bad gateway.
func backendError(c *gin.Context, err error) {
	if errors.Is(err, backend.ErrUnauthorized) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
		return
	}
	status := backend.StatusCode(err)
	if status < 400 || status >= 500 {
		status = http.StatusBadGateway
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// visibleMachines returns the machines sess may see. A scoped session
// without a facility sees none.
func (h *Handler) visibleMachines(sess session.Session) []backend.Machine {
	machines, _ := h.visibleUsage(sess)
	return machines
}

// visibleUsage returns the machines and usage history sess may see.
func (h *Handler) visibleUsage(sess session.Session) ([]backend.Machine, []backend.UsageRecord) {
	if !authz.ScopedToFacility(sess) {
		return h.data.Machines(), h.data.UsageHistory()
	}
	if !sess.HasFacility() {
		return []backend.Machine{}, []backend.UsageRecord{}
	}
	return h.data.UsageForFacility(sess.FacilityID)
}

// alertFacility resolves the facility of an alert, looking at the cached
// machine when the alert does not carry it.
func (h *Handler) alertFacility(a backend.Alert) backend.ID {
	if a.MachineFacilityID != 0 {
		return a.MachineFacilityID
	}
	if m, ok := h.data.MachineByID(a.MachineID); ok {
		return m.FacilityID
	}
	return 0
}

func (h *Handler) visibleAlerts(sess session.Session, list []backend.Alert) []backend.Alert {
	if !authz.ScopedToFacility(sess) {
		return list
	}
	out := []backend.Alert{}
	for _, a := range list {
		if sess.HasFacility() && h.alertFacility(a) == sess.FacilityID {
			out = append(out, a)
		}
	}
	return out
}

func machineIDs(machines []backend.Machine) []backend.ID {
	ids := make([]backend.ID, 0, len(machines))
	for _, m := range machines {
		ids = append(ids, m.ID)
	}
	return ids
}
