// Package authz is the single place that decides what a role may see and do.
package authz

import (
	"coffee-fleet-console/internal/backend"
	"coffee-fleet-console/internal/session"
)

// Permission names a console capability.
type Permission string

const (
	ViewDashboard     Permission = "view_dashboard"
	ViewMachines      Permission = "view_machines"
	ToggleMachines    Permission = "toggle_machines"
	RefillMachines    Permission = "refill_machines"
	ViewAlerts        Permission = "view_alerts"
	AcknowledgeAlerts Permission = "acknowledge_alerts"
	ViewFacilities    Permission = "view_facilities"
	ViewFleetUsage    Permission = "view_fleet_usage"
	ViewFacilityUsage Permission = "view_facility_usage"
	ManageUsers       Permission = "manage_users"
)

var grants = map[session.Role]map[Permission]bool{
	session.RoleAdmin: {
		ViewDashboard:     true,
		ViewMachines:      true,
		ToggleMachines:    true,
		ViewAlerts:        true,
		AcknowledgeAlerts: true,
		ViewFacilities:    true,
		ViewFleetUsage:    true,
		ViewFacilityUsage: true,
		ManageUsers:       true,
	},
	session.RoleFacility: {
		ViewDashboard:     true,
		ViewMachines:      true,
		ToggleMachines:    true,
		RefillMachines:    true,
		ViewAlerts:        true,
		AcknowledgeAlerts: true,
		ViewFacilityUsage: true,
	},
	session.RoleTechnician: {
		ViewDashboard:     true,
		ViewMachines:      true,
		ToggleMachines:    true,
		RefillMachines:    true,
		ViewAlerts:        true,
		AcknowledgeAlerts: true,
		ViewFacilityUsage: true,
	},
}

// Can reports whether role holds permission p.
func Can(role session.Role, p Permission) bool {
	return grants[role][p]
}

// CanAccessFacility reports whether sess may open the given facility. Admins
// see every facility; everyone else only their own.
func CanAccessFacility(sess session.Session, id backend.ID) bool {
	if sess.Role == session.RoleAdmin {
		return true
	}
	return sess.HasFacility() && sess.FacilityID == id
}

// ScopedToFacility reports whether sess only sees one facility's data. A
// scoped session without a facility id sees nothing.
func ScopedToFacility(sess session.Session) bool {
	return sess.Role != session.RoleAdmin
}

// NavItem is one entry of the console navigation.
type NavItem struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

var baseNav = []NavItem{
	{Path: "/dashboard", Label: "Dashboard"},
	{Path: "/machines", Label: "Machines"},
	{Path: "/alerts", Label: "Alerts"},
}

// Navigation returns the navigation entries for role.
func Navigation(role session.Role) []NavItem {
	items := append([]NavItem{}, baseNav...)
	switch {
	case role == session.RoleAdmin:
		items = append(items,
			NavItem{Path: "/facilities", Label: "Facilities"},
			NavItem{Path: "/usage", Label: "Usage"},
			NavItem{Path: "/users", Label: "Users"},
		)
	case role.Valid():
		items = append(items, NavItem{Path: "/facility-usage", Label: "Usage"})
	}
	return items
}
