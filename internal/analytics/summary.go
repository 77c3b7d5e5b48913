package analytics

import (
	"math"
	"sort"
	"time"

	"coffee-fleet-console/internal/backend"
)

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// LastDays returns the range covering the past n days up to today; n = 0 is today only.
func LastDays(now time.Time, n int) DateRange {
	return DateRange{Start: now.AddDate(0, 0, -n), End: now}
}

// bounds returns [Start 00:00, End 00:00 + 24h] in the range's location.
func (r DateRange) bounds() (time.Time, time.Time) {
	start := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, r.Start.Location())
	end := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 0, 0, 0, 0, r.End.Location()).Add(24 * time.Hour)
	return start, end
}

// Days is the number of days the range covers, at least one.
func (r DateRange) Days() int {
	start, end := r.bounds()
	days := int(math.Ceil(end.Sub(start).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// Summary is the facility usage panel.
type Summary struct {
	TotalBrews      int            `json:"totalBrews"`
	AveragePerDay   float64        `json:"averagePerDay"`
	MostPopularBrew string         `json:"mostPopularBrew"`
	ActiveMachines  int            `json:"activeMachines"`
	TotalMachines   int            `json:"totalMachines"`
	Efficiency      int            `json:"efficiency"`
	BrewTypeCounts  map[string]int `json:"brewTypeCounts"`
	Source          string         `json:"source"`
}

// Summarize computes the usage summary of one facility. machines must be the
// facility's machines and history its usage records. Without a report the
// summary falls back to counting history.
func Summarize(report *Report, machines []backend.Machine, history []backend.UsageRecord, r DateRange) Summary {
	active := 0
	ids := make(map[backend.ID]struct{}, len(machines))
	for _, m := range machines {
		ids[m.ID] = struct{}{}
		if m.Status == backend.StatusOn {
			active++
		}
	}
	efficiency := 0
	if len(machines) > 0 {
		efficiency = int(math.Round(float64(active) / float64(len(machines)) * 100))
	}

	summary := Summary{
		ActiveMachines:  active,
		TotalMachines:   len(machines),
		Efficiency:      efficiency,
		MostPopularBrew: "N/A",
		BrewTypeCounts:  map[string]int{},
	}

	if report == nil {
		for _, u := range history {
			if _, ok := ids[u.MachineID]; ok {
				summary.TotalBrews++
			}
		}
		summary.Source = "history"
		return summary
	}

	start, end := r.bounds()
	for _, a := range report.RecentActivity {
		if _, ok := ids[a.MachineID]; !ok {
			continue
		}
		if a.Timestamp.IsZero() || a.BrewType == "" || a.BrewType == "None" {
			continue
		}
		if a.Timestamp.Before(start) || a.Timestamp.After(end) {
			continue
		}
		summary.TotalBrews++
		summary.BrewTypeCounts[a.BrewType]++
	}

	summary.AveragePerDay = math.Round(float64(summary.TotalBrews)/float64(r.Days())*10) / 10
	summary.MostPopularBrew = mostPopular(summary.BrewTypeCounts)
	summary.Source = "analytics"
	if report.Simulated {
		summary.Source = "simulated"
	}
	return summary
}

// mostPopular picks the highest count; ties go to the alphabetically first brew.
func mostPopular(counts map[string]int) string {
	if len(counts) == 0 {
		return "N/A"
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	best := names[0]
	for _, name := range names[1:] {
		if counts[name] > counts[best] {
			best = name
		}
	}
	return best
}
