package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffee-fleet-console/internal/authz"
	"coffee-fleet-console/internal/session"
)

func TestGuard_LoadingAnswers503(t *testing.T) {
	h := newHarness(t, false)

	w := h.do(http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"loading":true}`, w.Body.String())
}

func TestGuard_Redirects(t *testing.T) {
	h := newHarness(t, true)

	w := h.do(http.MethodGet, "/machines", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = h.do(http.MethodGet, "/no/such/page", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))

	w = h.do(http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	h.login("admin")
	w = h.do(http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t, true)

	w := h.do(http.MethodPost, "/login", gin.H{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid username or password"}`, w.Body.String())
	assert.False(t, h.session.Authenticated())

	w = h.do(http.MethodPost, "/login", gin.H{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_ReturnsSessionAndNavigation(t *testing.T) {
	h := newHarness(t, true)

	w := h.do(http.MethodPost, "/login", gin.H{"username": "op", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[sessionResponse](t, w)
	assert.True(t, resp.Authenticated)
	assert.True(t, resp.IsFacility)
	assert.False(t, resp.IsAdmin)
	require.NotNil(t, resp.Session)
	assert.Equal(t, session.RoleFacility, resp.Session.Role)
	assert.Equal(t, "HQ", resp.Session.FacilityName)
	assert.Contains(t, resp.Navigation, authz.NavItem{Path: "/facility-usage", Label: "Usage"})
}

func TestSignup_Validation(t *testing.T) {
	h := newHarness(t, true)

	w := h.do(http.MethodPost, "/signup", gin.H{"username": "new", "email": "bad", "password": "123", "role": "TECHNICIAN"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, w)
	assert.Contains(t, resp.Fields, "email")
	assert.Contains(t, resp.Fields, "password")
	assert.Contains(t, resp.Fields, "facilityId")

	w = h.do(http.MethodPost, "/signup", gin.H{"username": "new", "email": "new@example.com", "password": "secret", "role": "ADMIN"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.False(t, h.session.Authenticated(), "signup does not sign in")
}

func TestDashboard_AdminSeesFleet(t *testing.T) {
	h := newHarness(t, true)
	h.login("admin")

	w := h.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[struct {
		Stats struct {
			TotalMachines     int `json:"totalMachines"`
			ActiveMachines    int `json:"activeMachines"`
			TotalFacilities   int `json:"totalFacilities"`
			LowSupplyMachines int `json:"lowSupplyMachines"`
		} `json:"stats"`
		AlertCounts    map[string]int `json:"alertCounts"`
		BackendSummary *struct {
			TotalMachines int `json:"totalMachines"`
		} `json:"backendSummary"`
	}](t, w)
	assert.Equal(t, 3, resp.Stats.TotalMachines)
	require.NotNil(t, resp.BackendSummary)
	assert.Equal(t, 3, resp.BackendSummary.TotalMachines)
	assert.Equal(t, 2, resp.Stats.ActiveMachines)
	assert.Equal(t, 2, resp.Stats.TotalFacilities)
	assert.Equal(t, 1, resp.Stats.LowSupplyMachines)
	assert.Equal(t, 3, resp.AlertCounts["all"])
	assert.Equal(t, 2, resp.AlertCounts["critical"])
}

func TestFacilityScope(t *testing.T) {
	h := newHarness(t, true)
	h.login("op")

	w := h.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dash := decode[struct {
		Stats struct {
			TotalMachines int `json:"totalMachines"`
			TodayUsage    struct {
				Count int `json:"count"`
			} `json:"todayUsage"`
		} `json:"stats"`
		AlertCounts map[string]int `json:"alertCounts"`
	}](t, w)
	assert.Equal(t, 2, dash.Stats.TotalMachines)
	assert.Equal(t, 2, dash.Stats.TodayUsage.Count)
	assert.Equal(t, 2, dash.AlertCounts["all"], "alert 12 belongs to the annex")
	assert.NotContains(t, w.Body.String(), "backendSummary", "facility summary endpoint is missing")

	w = h.do(http.MethodGet, "/machines", nil)
	machines := decode[struct {
		Machines []MachineResponse `json:"machines"`
	}](t, w)
	assert.Len(t, machines.Machines, 2)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/machines/3", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/machines/1", nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/facilities", nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/facilities/2", nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/usage", nil).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodGet, "/users", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/alerts/12/acknowledge", nil).Code)
}

func TestFacilityUsage_Simulated(t *testing.T) {
	h := newHarness(t, true)
	h.login("op")

	w := h.do(http.MethodGet, "/facility-usage?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		FacilityID int64  `json:"facilityId"`
		Notice     string `json:"notice"`
		Summary    struct {
			TotalMachines  int    `json:"totalMachines"`
			ActiveMachines int    `json:"activeMachines"`
			Source         string `json:"source"`
		} `json:"summary"`
	}](t, w)
	assert.Equal(t, int64(1), resp.FacilityID)
	assert.Equal(t, "Using demo data - Simulator not connected", resp.Notice)
	assert.Equal(t, 2, resp.Summary.TotalMachines)
	assert.Equal(t, 1, resp.Summary.ActiveMachines)
	assert.Equal(t, "simulated", resp.Summary.Source)
}

func TestMachineStatusAndRefill(t *testing.T) {
	h := newHarness(t, true)
	h.login("admin")

	w := h.do(http.MethodPost, "/machines/2/status", gin.H{"status": "on"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"2=ON"}, h.backend.statusCalls)
	m, ok := h.data.MachineByID(2)
	require.True(t, ok)
	assert.Equal(t, "ON", string(m.Status), "the cache was refreshed after the update")

	w = h.do(http.MethodPost, "/machines/2/status", gin.H{"status": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Admins hold no refill permission.
	w = h.do(http.MethodPost, "/machines/1/refill", gin.H{"waterLevel": 150})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRefill_ClampsLevels(t *testing.T) {
	h := newHarness(t, true)
	h.login("op")

	w := h.do(http.MethodPost, "/machines/2/refill", gin.H{"milkLevel": 150, "beansLevel": -5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, h.backend.refills, 1)
	assert.Equal(t, "100", h.backend.refills[0].Get("milkLevel"))
	assert.Equal(t, "0", h.backend.refills[0].Get("beansLevel"))
	assert.False(t, h.backend.refills[0].Has("waterLevel"))

	w = h.do(http.MethodPost, "/machines/2/refill", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlerts_FilterAndAcknowledge(t *testing.T) {
	h := newHarness(t, true)
	h.login("admin")

	w := h.do(http.MethodGet, "/alerts?filter=supply", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Filter string          `json:"filter"`
		Alerts []AlertResponse `json:"alerts"`
	}](t, w)
	assert.Equal(t, "supply", resp.Filter)
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, "warning", string(resp.Alerts[0].Severity))
	assert.Equal(t, "Kitchen", resp.Alerts[0].MachineName)

	w = h.do(http.MethodPost, "/alerts/10/acknowledge", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":10,"state":"ACKNOWLEDGED"}`, w.Body.String())
	assert.Equal(t, []string{"10"}, h.backend.acked)

	// The backend still reports the alert; the mask hides it.
	require.NoError(t, h.tracker.Poll(context.Background()))
	w = h.do(http.MethodGet, "/alerts", nil)
	all := decode[struct {
		Alerts []AlertResponse `json:"alerts"`
	}](t, w)
	for _, a := range all.Alerts {
		assert.NotEqual(t, int64(10), int64(a.ID))
	}
	assert.Len(t, all.Alerts, 2)
}

func TestLogout_ClearsSession(t *testing.T) {
	h := newHarness(t, true)
	h.login("op")

	w := h.do(http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, h.session.Authenticated())
	assert.Empty(t, h.data.Machines())

	values, err := h.kv.GetMany(context.Background(), session.PersistedKeys...)
	require.NoError(t, err)
	assert.Empty(t, values)

	w = h.do(http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestRefresh_RevokedTokenEndsSession(t *testing.T) {
	h := newHarness(t, true)
	h.login("admin")

	h.backend.revoke()
	w := h.do(http.MethodPost, "/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.False(t, h.session.Authenticated())

	w = h.do(http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestUsers_Admin(t *testing.T) {
	h := newHarness(t, true)
	h.login("admin")

	w := h.do(http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"op"`)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodDelete, "/users/1", nil).Code, "admins cannot delete themselves")
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/users/2", nil).Code)
	assert.Equal(t, []string{"2"}, h.backend.deleted)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/users?role=owner", nil).Code)

	w = h.do(http.MethodGet, "/users/2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"op"`)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/users/42", nil).Code)
}

func TestMachine_DetailAndBackendLookup(t *testing.T) {
	h := newHarness(t, true)
	h.login("admin")

	w := h.do(http.MethodGet, "/machines/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[struct {
		Alerts       []struct{ ID int64 } `json:"alerts"`
		AlertHistory []struct {
			ID         int64 `json:"id"`
			IsResolved bool  `json:"isResolved"`
		} `json:"alertHistory"`
	}](t, w)
	assert.Len(t, detail.Alerts, 1)
	require.Len(t, detail.AlertHistory, 2)
	assert.True(t, detail.AlertHistory[1].IsResolved)

	w = h.do(http.MethodGet, "/machines/8", nil)
	require.Equal(t, http.StatusOK, w.Code, "machines missing from the cache come from the backend")
	assert.Contains(t, w.Body.String(), `"name":"Rooftop"`)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/machines/99", nil).Code)

	h.do(http.MethodPost, "/logout", nil)
	h.login("op")
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/machines/8", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/machines/9", nil).Code, "depot belongs to facility 2")
}

func TestUsage_MachineFilterAndStatistics(t *testing.T) {
	h := newHarness(t, true)
	h.login("admin")

	w := h.do(http.MethodGet, "/usage?machineId=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		TotalRecords int            `json:"totalRecords"`
		Statistics   map[string]int `json:"statistics"`
	}](t, w)
	assert.Equal(t, 2, resp.TotalRecords)
	assert.Equal(t, 3, resp.Statistics["totalBrews"])

	w = h.do(http.MethodGet, "/usage?machineId=42", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[struct {
		TotalRecords int `json:"totalRecords"`
	}](t, w).TotalRecords)
}

func TestFacility_NotFound(t *testing.T) {
	h := newHarness(t, true)
	h.login("admin")

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/facilities/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/facilities/99", nil).Code)

	w := h.do(http.MethodGet, "/facilities/5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	remote := decode[struct {
		Facility struct {
			Name string `json:"name"`
		} `json:"facility"`
		Machines []struct {
			ID int64 `json:"id"`
		} `json:"machines"`
	}](t, w)
	assert.Equal(t, "Satellite", remote.Facility.Name)
	require.Len(t, remote.Machines, 1)
	assert.Equal(t, int64(20), remote.Machines[0].ID)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/facilities/abc", nil).Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, true)

	w := h.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","backend":{"status":"UP"}}`, w.Body.String())
}
