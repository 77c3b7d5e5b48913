package analytics

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffee-fleet-console/internal/backend"
)

func newSimulator(t *testing.T, failActivity bool) (*httptest.Server, *int32) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/analytics/usage/brew-types", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"Espresso": 4, "Latte": 2}`))
	})
	mux.HandleFunc("/api/analytics/resources/averages", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"waterLevel": 50, "milkLevel": 40, "beansLevel": 30, "sugarLevel": 20, "temperature": 90}`))
	})
	mux.HandleFunc("/api/analytics/recent-activity", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if failActivity {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[
			{"timestamp": "2024-05-02T09:00:00", "machineId": 1, "brewType": "Espresso", "status": "Completed"},
			{"timestamp": "2024-05-02T09:30:00", "machineId": "M3", "brewType": "Latte"}
		]`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &hits
}

func TestReport_FromSimulator(t *testing.T) {
	server, hits := newSimulator(t, false)
	svc := NewService(backend.NewClient(server.URL), time.Minute)

	report := svc.Report(context.Background(), nil)
	assert.False(t, report.Simulated)
	assert.Empty(t, report.Notice)
	assert.Equal(t, 4.0, report.BrewTypes["Espresso"])
	assert.Equal(t, 90.0, report.ResourceAverages.Temperature)
	require.Len(t, report.RecentActivity, 2)
	assert.Equal(t, backend.ID(1), report.RecentActivity[0].MachineID)
	assert.Equal(t, backend.ID(0), report.RecentActivity[1].MachineID)

	// Cached.
	svc.Report(context.Background(), nil)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))

	svc.Invalidate()
	svc.Report(context.Background(), nil)
	assert.Equal(t, int32(6), atomic.LoadInt32(hits))
}

func TestReport_FallsBackToPlaceholder(t *testing.T) {
	server, _ := newSimulator(t, true)
	svc := NewService(backend.NewClient(server.URL), time.Minute)

	report := svc.Report(context.Background(), []backend.ID{7, 8})
	assert.True(t, report.Simulated)
	assert.Equal(t, DemoNotice, report.Notice)
	assert.Equal(t, 25.0, report.BrewTypes["Espresso"])
	assert.Equal(t, 75.5, report.ResourceAverages.WaterLevel)
	require.Len(t, report.RecentActivity, 50)
	for _, a := range report.RecentActivity {
		assert.Contains(t, []backend.ID{7, 8}, a.MachineID)
	}

	again := svc.Report(context.Background(), []backend.ID{8, 7})
	assert.Same(t, report, again)
}

func TestPlaceholder_Spacing(t *testing.T) {
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	report := Placeholder(nil, now, rand.New(rand.NewSource(1)))

	require.Len(t, report.RecentActivity, 50)
	assert.Equal(t, now, report.RecentActivity[0].Timestamp.Time)
	assert.Equal(t, now.Add(-49*30*time.Minute), report.RecentActivity[49].Timestamp.Time)
	for _, a := range report.RecentActivity {
		assert.True(t, a.MachineID >= 1 && a.MachineID <= 5)
	}
}

func TestSummarize(t *testing.T) {
	day := time.Date(2024, 5, 2, 0, 0, 0, 0, time.Local)
	machines := []backend.Machine{
		{ID: 1, FacilityID: 9, Status: backend.StatusOn},
		{ID: 2, FacilityID: 9, Status: backend.StatusOn},
		{ID: 3, FacilityID: 9, Status: backend.StatusOff},
	}
	at := func(h int) backend.Timestamp { return backend.Timestamp{Time: day.Add(time.Duration(h) * time.Hour)} }
	report := &Report{RecentActivity: []Activity{
		{Timestamp: at(8), MachineID: 1, BrewType: "Latte"},
		{Timestamp: at(9), MachineID: 2, BrewType: "Latte"},
		{Timestamp: at(10), MachineID: 3, BrewType: "Mocha"},
		{Timestamp: at(11), MachineID: 4, BrewType: "Latte"},
		{Timestamp: at(12), MachineID: 1, BrewType: "None"},
		{Timestamp: at(-30), MachineID: 1, BrewType: "Latte"},
	}}

	summary := Summarize(report, machines, nil, DateRange{Start: day, End: day})
	assert.Equal(t, 3, summary.TotalBrews)
	assert.Equal(t, 3.0, summary.AveragePerDay)
	assert.Equal(t, "Latte", summary.MostPopularBrew)
	assert.Equal(t, map[string]int{"Latte": 2, "Mocha": 1}, summary.BrewTypeCounts)
	assert.Equal(t, 2, summary.ActiveMachines)
	assert.Equal(t, 3, summary.TotalMachines)
	assert.Equal(t, 67, summary.Efficiency)
	assert.Equal(t, "analytics", summary.Source)

	week := Summarize(report, machines, nil, DateRange{Start: day.AddDate(0, 0, -6), End: day})
	assert.Equal(t, 4, week.TotalBrews)
	assert.Equal(t, 0.6, week.AveragePerDay)
}

func TestSummarize_HistoryFallback(t *testing.T) {
	machines := []backend.Machine{{ID: 1, Status: backend.StatusOff}}
	history := []backend.UsageRecord{{ID: 1, MachineID: 1}, {ID: 2, MachineID: 1}, {ID: 3, MachineID: 2}}

	summary := Summarize(nil, machines, history, LastDays(time.Now(), 7))
	assert.Equal(t, 2, summary.TotalBrews)
	assert.Equal(t, 0.0, summary.AveragePerDay)
	assert.Equal(t, "N/A", summary.MostPopularBrew)
	assert.Equal(t, 0, summary.Efficiency)
	assert.Equal(t, "history", summary.Source)

	empty := Summarize(nil, nil, nil, LastDays(time.Now(), 0))
	assert.Equal(t, 0, empty.Efficiency)
	assert.Equal(t, 0, empty.TotalMachines)
}

func TestLevelClasses(t *testing.T) {
	assert.Equal(t, "high", Level(70))
	assert.Equal(t, "medium", Level(30))
	assert.Equal(t, "low", Level(29.9))
	assert.Equal(t, "good", TemperatureClass(92.5))
	assert.Equal(t, "warning", TemperatureClass(98))
	assert.Equal(t, "critical", TemperatureClass(60))
}
