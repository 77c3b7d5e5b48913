package backend

// API groups the typed request builders of every backend resource.
type API struct {
	Auth       *AuthAPI
	Users      *UsersAPI
	Facilities *FacilitiesAPI
	Machines   *MachinesAPI
	Alerts     *AlertsAPI
	Usage      *UsageAPI
	Dashboard  *DashboardAPI
	Health     *HealthAPI
}

// NewAPI binds every resource module to c.
func NewAPI(c *Client) *API {
	return &API{
		Auth:       &AuthAPI{c: c},
		Users:      &UsersAPI{c: c},
		Facilities: &FacilitiesAPI{c: c},
		Machines:   &MachinesAPI{c: c},
		Alerts:     &AlertsAPI{c: c},
		Usage:      &UsageAPI{c: c},
		Dashboard:  &DashboardAPI{c: c},
		Health:     &HealthAPI{c: c},
	}
}
