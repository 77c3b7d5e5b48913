package backend

import "context"

// DashboardAPI wraps /api/dashboard, which not every backend build exposes.
type DashboardAPI struct {
	c *Client
}

func (d *DashboardAPI) Summary(ctx context.Context) (*DashboardSummary, error) {
	var summary DashboardSummary
	if err := d.c.Get(ctx, "/api/dashboard/summary", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (d *DashboardAPI) Facility(ctx context.Context, facilityID ID) (*DashboardSummary, error) {
	var summary DashboardSummary
	if err := d.c.Get(ctx, "/api/dashboard/facility/"+facilityID.String(), nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
