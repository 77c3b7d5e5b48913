package backend

import "context"

// AlertsAPI wraps /api/alerts.
type AlertsAPI struct {
	c *Client
}

func (a *AlertsAPI) List(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	err := a.c.Get(ctx, "/api/alerts", nil, &alerts)
	return alerts, err
}

func (a *AlertsAPI) ListByMachine(ctx context.Context, machineID ID) ([]Alert, error) {
	var alerts []Alert
	err := a.c.Get(ctx, "/api/alerts/machine/"+machineID.String(), nil, &alerts)
	return alerts, err
}

func (a *AlertsAPI) Acknowledge(ctx context.Context, id ID) error {
	return a.c.Post(ctx, "/api/alerts/"+id.String()+"/acknowledge", nil, nil, nil)
}
