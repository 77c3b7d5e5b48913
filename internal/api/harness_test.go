package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coffee-fleet-console/config"
	"coffee-fleet-console/internal/alerts"
	"coffee-fleet-console/internal/analytics"
	"coffee-fleet-console/internal/backend"
	"coffee-fleet-console/internal/datasync"
	"coffee-fleet-console/internal/db"
	"coffee-fleet-console/internal/live"
	"coffee-fleet-console/internal/session"
	"coffee-fleet-console/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var dbSeq int64

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:api_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return store.NewGormStore(gormDB)
}

// fakeBackend is an in-memory machine-management service.
type fakeBackend struct {
	mu         sync.Mutex
	machines   []backend.Machine
	facilities []backend.Facility
	usage      []backend.UsageRecord
	alerts     []backend.Alert
	users      []backend.User
	resolved   []backend.Alert
	remote     []backend.Machine
	revoked    bool

	statusCalls []string
	refills     []url.Values
	acked       []string
	deleted     []string

	srv *httptest.Server
}

var accounts = map[string]backend.LoginResponse{
	"admin": {JWT: "tok-admin", UserID: 1, Role: "ROLE_ADMIN"},
	"op":    {JWT: "tok-op", UserID: 2, Role: "FACILITY", FacilityID: 1, FacilityName: "HQ"},
	"tech":  {JWT: "tok-tech", UserID: 3, Role: "TECHNICIAN", FacilityID: 2, FacilityName: "Annex"},
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	now := time.Now()
	fb := &fakeBackend{
		machines: []backend.Machine{
			{ID: 1, Name: "Lobby", FacilityID: 1, Status: backend.StatusOn, IsActive: true, WaterLevel: 80, Temperature: 92},
			{ID: 2, Name: "Kitchen", FacilityID: 1, Status: backend.StatusOff, IsActive: true, HasLowSupplies: true, MilkLevel: 10},
			{ID: 3, Name: "Annex", FacilityID: 2, Status: backend.StatusOn, IsActive: true},
		},
		facilities: []backend.Facility{
			{ID: 1, Name: "HQ", Location: "Floor 1", IsActive: true},
			{ID: 2, Name: "Annex", Location: "Building B", IsActive: true},
		},
		usage: []backend.UsageRecord{
			{ID: 1, MachineID: 1, Timestamp: backend.Timestamp{Time: now}, BrewType: "Espresso"},
			{ID: 2, MachineID: 1, Timestamp: backend.Timestamp{Time: now}, BrewType: "Latte"},
			{ID: 3, MachineID: 3, Timestamp: backend.Timestamp{Time: now}, BrewType: "Espresso"},
		},
		alerts: []backend.Alert{
			{ID: 10, MachineID: 1, AlertType: "MALFUNCTION", Message: "Grinder jammed", Timestamp: backend.Timestamp{Time: now}},
			{ID: 11, MachineID: 2, AlertType: "LOW_MILK", Message: "Milk low", Timestamp: backend.Timestamp{Time: now}},
			{ID: 12, MachineID: 3, AlertType: "OFFLINE", Message: "No heartbeat", Timestamp: backend.Timestamp{Time: now}},
		},
		resolved: []backend.Alert{
			{ID: 9, MachineID: 1, AlertType: "LOW_WATER", Message: "Water low", IsResolved: true, Timestamp: backend.Timestamp{Time: now.Add(-time.Hour)}},
		},
		remote: []backend.Machine{
			{ID: 8, Name: "Rooftop", FacilityID: 1, Status: backend.StatusOn, IsActive: true},
			{ID: 9, Name: "Depot", FacilityID: 2, Status: backend.StatusOn, IsActive: true},
		},
		users: []backend.User{
			{ID: 1, Username: "admin", Role: "ROLE_ADMIN", IsActive: true},
			{ID: 2, Username: "op", Role: "ROLE_FACILITY", IsActive: true, FacilityID: 1},
		},
	}

	r := gin.New()
	r.POST("/api/auth/login", func(c *gin.Context) {
		var req backend.LoginRequest
		c.ShouldBindJSON(&req)
		resp, ok := accounts[req.Username]
		if !ok || req.Password != "pw" {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Bad credentials"})
			return
		}
		fb.mu.Lock()
		fb.revoked = false
		fb.mu.Unlock()
		c.JSON(http.StatusOK, resp)
	})
	r.POST("/api/auth/signup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "User registered successfully!"})
	})

	authed := r.Group("/api", func(c *gin.Context) {
		fb.mu.Lock()
		revoked := fb.revoked
		fb.mu.Unlock()
		if revoked || !strings.HasPrefix(c.GetHeader("Authorization"), "Bearer tok-") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	})
	authed.GET("/machines", func(c *gin.Context) { fb.respond(c, func() any { return fb.machines }) })
	authed.GET("/facilities", func(c *gin.Context) { fb.respond(c, func() any { return fb.facilities }) })
	authed.GET("/machines/:id", func(c *gin.Context) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		for _, m := range append(append([]backend.Machine{}, fb.machines...), fb.remote...) {
			if m.ID.String() == c.Param("id") {
				c.JSON(http.StatusOK, m)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"message": "Machine not found"})
	})
	authed.GET("/facilities/:id/with-machines", func(c *gin.Context) {
		if c.Param("id") != "5" {
			c.JSON(http.StatusNotFound, gin.H{"message": "Facility not found"})
			return
		}
		c.JSON(http.StatusOK, backend.Facility{
			ID: 5, Name: "Satellite", Location: "Annex C", IsActive: true,
			Machines: []backend.Machine{{ID: 20, Name: "Satellite 1", FacilityID: 5, Status: backend.StatusOff}},
		})
	})
	authed.GET("/usage", func(c *gin.Context) { fb.respond(c, func() any { return fb.usage }) })
	authed.GET("/usage/today", func(c *gin.Context) { fb.respond(c, func() any { return fb.usage }) })
	authed.GET("/usage/statistics", func(c *gin.Context) {
		fb.respond(c, func() any { return gin.H{"totalBrews": len(fb.usage)} })
	})
	authed.GET("/usage/machine/:id", func(c *gin.Context) {
		fb.respond(c, func() any {
			out := []backend.UsageRecord{}
			for _, u := range fb.usage {
				if u.MachineID.String() == c.Param("id") {
					out = append(out, u)
				}
			}
			return out
		})
	})
	authed.GET("/alerts", func(c *gin.Context) { fb.respond(c, func() any { return fb.alerts }) })
	authed.GET("/alerts/machine/:id", func(c *gin.Context) {
		fb.respond(c, func() any {
			out := []backend.Alert{}
			for _, a := range append(append([]backend.Alert{}, fb.alerts...), fb.resolved...) {
				if a.MachineID.String() == c.Param("id") {
					out = append(out, a)
				}
			}
			return out
		})
	})
	authed.GET("/dashboard/summary", func(c *gin.Context) {
		fb.respond(c, func() any {
			return backend.DashboardSummary{TotalMachines: int64(len(fb.machines)), TotalFacilities: int64(len(fb.facilities))}
		})
	})
	authed.GET("/dashboard/facility/:id", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
	})
	authed.POST("/alerts/:id/acknowledge", func(c *gin.Context) {
		fb.mu.Lock()
		fb.acked = append(fb.acked, c.Param("id"))
		fb.mu.Unlock()
		c.Status(http.StatusOK)
	})
	authed.POST("/machines/:id/status", func(c *gin.Context) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.statusCalls = append(fb.statusCalls, c.Param("id")+"="+c.Query("status"))
		for i := range fb.machines {
			if fb.machines[i].ID.String() == c.Param("id") {
				fb.machines[i].Status = backend.MachineStatus(c.Query("status"))
			}
		}
		c.Status(http.StatusOK)
	})
	authed.POST("/machines/:id/refill", func(c *gin.Context) {
		fb.mu.Lock()
		fb.refills = append(fb.refills, c.Request.URL.Query())
		fb.mu.Unlock()
		c.Status(http.StatusOK)
	})
	authed.GET("/users", func(c *gin.Context) { fb.respond(c, func() any { return fb.users }) })
	authed.GET("/users/:id", func(c *gin.Context) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		for _, u := range fb.users {
			if u.ID.String() == c.Param("id") {
				c.JSON(http.StatusOK, u)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
	})
	authed.DELETE("/users/:id", func(c *gin.Context) {
		fb.mu.Lock()
		fb.deleted = append(fb.deleted, c.Param("id"))
		fb.mu.Unlock()
		c.Status(http.StatusOK)
	})
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	fb.srv = httptest.NewServer(r)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) respond(c *gin.Context, get func() any) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	c.JSON(http.StatusOK, get())
}

func (fb *fakeBackend) revoke() {
	fb.mu.Lock()
	fb.revoked = true
	fb.mu.Unlock()
}

type harness struct {
	t       *testing.T
	router  *gin.Engine
	handler *Handler
	kv      store.Store
	session *session.Store
	data    *datasync.Store
	tracker *alerts.Tracker
	backend *fakeBackend
}

// newHarness wires the console against a fake backend. The analytics host is
// down, so analytics are simulated.
func newHarness(t *testing.T, restore bool) *harness {
	t.Helper()
	fb := newFakeBackend(t)
	kv := newTestStore(t)

	client := backend.NewClient(fb.srv.URL, backend.WithTimeout(2*time.Second))
	api := backend.NewAPI(client)
	sess := session.NewStore(kv, api.Auth)
	client.SetTokenSource(sess)
	client.OnUnauthorized(sess.Expire)

	data := datasync.NewStore(api.Machines, api.Facilities, api.Usage, kv, config.SyncConfig{
		AdminInterval:    time.Hour,
		OperatorInterval: time.Hour,
		InitialDelay:     time.Hour,
	}, nil)
	tracker := alerts.NewTracker(api.Alerts, config.AlertsConfig{PollInterval: time.Hour, AckTTL: time.Minute}, nil, nil)
	sess.OnLogout(data.Reset)
	sess.OnLogout(tracker.Reset)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)

	h := NewHandler(Deps{
		Store:     kv,
		Session:   sess,
		Data:      data,
		Alerts:    tracker,
		Analytics: analytics.NewService(backend.NewClient(down.URL), time.Minute),
		Backend:   api,
		Hub:       live.NewHub(),
	}, time.Minute)
	router := NewRouter(h, config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000})

	if restore {
		require.NoError(t, sess.Restore(context.Background()))
	}
	return &harness{t: t, router: router, handler: h, kv: kv, session: sess, data: data, tracker: tracker, backend: fb}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(h.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// login signs in and loads the cache the way the background loops would.
func (h *harness) login(username string) {
	h.t.Helper()
	w := h.do(http.MethodPost, "/login", gin.H{"username": username, "password": "pw"})
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(h.t, h.data.FetchAll(context.Background()))
	require.NoError(h.t, h.tracker.Poll(context.Background()))
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
