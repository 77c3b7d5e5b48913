package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"coffee-fleet-console/internal/backend"
)

// DemoNotice is shown when the report is placeholder data.
const DemoNotice = "Using demo data - Simulator not connected"

// Activity is one brew event reported by the simulator.
type Activity struct {
	Timestamp backend.Timestamp `json:"timestamp"`
	MachineID backend.ID        `json:"machineId"`
	BrewType  string            `json:"brewType"`
	Status    string            `json:"status,omitempty"`
}

// UnmarshalJSON tolerates machine ids the simulator sends as labels ("M1");
// those map to no machine.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp backend.Timestamp `json:"timestamp"`
		MachineID json.RawMessage   `json:"machineId"`
		BrewType  string            `json:"brewType"`
		Status    string            `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Timestamp = raw.Timestamp
	a.BrewType = raw.BrewType
	a.Status = raw.Status
	a.MachineID = 0
	if len(raw.MachineID) > 0 {
		var id backend.ID
		if err := json.Unmarshal(raw.MachineID, &id); err == nil {
			a.MachineID = id
		}
	}
	return nil
}

// ResourceAverages are fleet-wide average supply levels.
type ResourceAverages struct {
	WaterLevel  float64 `json:"waterLevel"`
	MilkLevel   float64 `json:"milkLevel"`
	BeansLevel  float64 `json:"beansLevel"`
	SugarLevel  float64 `json:"sugarLevel"`
	Temperature float64 `json:"temperature"`
}

// Report bundles the three analytics feeds.
type Report struct {
	BrewTypes        map[string]float64 `json:"brewTypes"`
	ResourceAverages ResourceAverages   `json:"resourceAverages"`
	RecentActivity   []Activity         `json:"recentActivity"`
	Simulated        bool               `json:"simulated"`
	Notice           string             `json:"notice,omitempty"`
	GeneratedAt      time.Time          `json:"generatedAt"`
}

// Service reads the secondary analytics host. When the host is unreachable it
// serves placeholder data flagged as simulated.
type Service struct {
	client *backend.Client
	cache  *cache.Cache
	now    func() time.Time
}

// NewService creates an analytics service caching reports for ttl.
func NewService(client *backend.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		client: client,
		cache:  cache.New(ttl, 2*ttl),
		now:    time.Now,
	}
}

const liveKey = "report"

// Report returns the analytics report. machineIDs seed the placeholder
// activity when the simulator is down.
func (s *Service) Report(ctx context.Context, machineIDs []backend.ID) *Report {
	if cached, ok := s.cache.Get(liveKey); ok {
		return cached.(*Report)
	}

	report, err := s.fetch(ctx)
	if err == nil {
		s.cache.SetDefault(liveKey, report)
		return report
	}
	log.Printf("Using placeholder analytics instead of simulator: %v", err)

	key := placeholderKey(machineIDs)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*Report)
	}
	placeholder := Placeholder(machineIDs, s.now(), rand.New(rand.NewSource(s.now().UnixNano())))
	s.cache.SetDefault(key, placeholder)
	return placeholder
}

// Invalidate drops cached reports so the next call goes to the simulator.
func (s *Service) Invalidate() {
	s.cache.Flush()
}

func (s *Service) fetch(ctx context.Context) (*Report, error) {
	report := &Report{GeneratedAt: s.now()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.client.Get(gctx, "/api/analytics/usage/brew-types", nil, &report.BrewTypes)
	})
	g.Go(func() error {
		return s.client.Get(gctx, "/api/analytics/resources/averages", nil, &report.ResourceAverages)
	})
	g.Go(func() error {
		return s.client.Get(gctx, "/api/analytics/recent-activity", nil, &report.RecentActivity)
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch simulator analytics: %w", err)
	}

	if report.BrewTypes == nil {
		report.BrewTypes = map[string]float64{}
	}
	if report.RecentActivity == nil {
		report.RecentActivity = []Activity{}
	}
	return report, nil
}

func placeholderKey(ids []backend.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	sort.Strings(parts)
	return "placeholder:" + strings.Join(parts, ",")
}

var (
	placeholderBrewTypes = map[string]float64{
		"Espresso":   25,
		"Cappuccino": 20,
		"Latte":      18,
		"Americano":  15,
		"Mocha":      12,
		"Macchiato":  10,
	}
	brewNames      = []string{"Espresso", "Cappuccino", "Latte", "Americano", "Mocha", "Macchiato"}
	activityStates = []string{"Brewing", "Completed", "Ready"}
)

// Placeholder builds demo analytics: fixed brew mix and averages plus fifty
// brews half an hour apart ending at now, spread over machineIDs (or machines
// 1 to 5 when none are given).
func Placeholder(machineIDs []backend.ID, now time.Time, rng *rand.Rand) *Report {
	ids := machineIDs
	if len(ids) == 0 {
		ids = []backend.ID{1, 2, 3, 4, 5}
	}

	activity := make([]Activity, 0, 50)
	for i := 0; i < 50; i++ {
		activity = append(activity, Activity{
			Timestamp: backend.Timestamp{Time: now.Add(-time.Duration(i) * 30 * time.Minute)},
			MachineID: ids[rng.Intn(len(ids))],
			BrewType:  brewNames[rng.Intn(len(brewNames))],
			Status:    activityStates[rng.Intn(len(activityStates))],
		})
	}

	brewTypes := make(map[string]float64, len(placeholderBrewTypes))
	for k, v := range placeholderBrewTypes {
		brewTypes[k] = v
	}

	return &Report{
		BrewTypes: brewTypes,
		ResourceAverages: ResourceAverages{
			WaterLevel:  75.5,
			MilkLevel:   60.2,
			BeansLevel:  85.8,
			SugarLevel:  45.3,
			Temperature: 92.5,
		},
		RecentActivity: activity,
		Simulated:      true,
		Notice:         DemoNotice,
		GeneratedAt:    now,
	}
}

// ForMachines returns a copy of r whose activity is limited to machineIDs.
func (r *Report) ForMachines(machineIDs []backend.ID) *Report {
	own := make(map[backend.ID]struct{}, len(machineIDs))
	for _, id := range machineIDs {
		own[id] = struct{}{}
	}
	out := *r
	out.RecentActivity = []Activity{}
	for _, a := range r.RecentActivity {
		if _, ok := own[a.MachineID]; ok {
			out.RecentActivity = append(out.RecentActivity, a)
		}
	}
	return &out
}

// Level classifies a supply level for display.
func Level(level float64) string {
	switch {
	case level >= 70:
		return "high"
	case level >= 30:
		return "medium"
	}
	return "low"
}

// TemperatureClass rates a brewing temperature in °C.
func TemperatureClass(temp float64) string {
	switch {
	case temp >= 85 && temp <= 95:
		return "good"
	case temp >= 80 && temp <= 100:
		return "warning"
	}
	return "critical"
}
