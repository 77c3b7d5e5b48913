package alerts

import (
	"strings"
	"time"

	"coffee-fleet-console/internal/backend"
)

// Filter selects a subset of the active alerts.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterCritical Filter = "critical"
	FilterSupply   Filter = "supply"
	FilterRecent   Filter = "recent"
)

// Filters lists every filter in display order.
var Filters = []Filter{FilterAll, FilterCritical, FilterSupply, FilterRecent}

// ParseFilter maps a query value to a Filter; unknown values select all.
func ParseFilter(s string) Filter {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterCritical, FilterSupply, FilterRecent:
		return f
	}
	return FilterAll
}

// RecentWindow is how far back the recent filter reaches.
const RecentWindow = 24 * time.Hour

var (
	criticalTypes = map[string]bool{"MALFUNCTION": true, "OFFLINE": true, "EMERGENCY": true}
	supplyTypes   = map[string]bool{"LOW_WATER": true, "LOW_MILK": true, "LOW_BEANS": true, "LOW_SUGAR": true}
)

// IsCritical reports whether the alert type signals a broken machine.
func IsCritical(alertType string) bool {
	return criticalTypes[strings.ToUpper(alertType)]
}

// IsSupply reports whether the alert type is a low-supply warning.
func IsSupply(alertType string) bool {
	return supplyTypes[strings.ToUpper(alertType)]
}

// Severity is the display severity of an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// SeverityOf classifies an alert type.
func SeverityOf(alertType string) Severity {
	switch {
	case IsCritical(alertType):
		return SeverityCritical
	case IsSupply(alertType):
		return SeverityWarning
	}
	return SeverityInfo
}

// Matches reports whether a passes filter f at time now.
func Matches(a backend.Alert, f Filter, now time.Time) bool {
	switch f {
	case FilterCritical:
		return IsCritical(a.AlertType)
	case FilterSupply:
		return IsSupply(a.AlertType)
	case FilterRecent:
		return a.Timestamp.After(now.Add(-RecentWindow))
	}
	return true
}

// Apply returns the alerts passing f.
func Apply(list []backend.Alert, f Filter, now time.Time) []backend.Alert {
	out := []backend.Alert{}
	for _, a := range list {
		if Matches(a, f, now) {
			out = append(out, a)
		}
	}
	return out
}
