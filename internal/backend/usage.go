package backend

import "context"

// UsageAPI wraps /api/usage.
type UsageAPI struct {
	c *Client
}

func (u *UsageAPI) List(ctx context.Context) ([]UsageRecord, error) {
	var records []UsageRecord
	err := u.c.Get(ctx, "/api/usage", nil, &records)
	return records, err
}

func (u *UsageAPI) ListByMachine(ctx context.Context, machineID ID) ([]UsageRecord, error) {
	var records []UsageRecord
	err := u.c.Get(ctx, "/api/usage/machine/"+machineID.String(), nil, &records)
	return records, err
}

// ListToday returns today's brews as counted by the backend.
func (u *UsageAPI) ListToday(ctx context.Context) ([]UsageRecord, error) {
	var records []UsageRecord
	err := u.c.Get(ctx, "/api/usage/today", nil, &records)
	return records, err
}

// Statistics returns the backend's free-form usage statistics.
func (u *UsageAPI) Statistics(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	err := u.c.Get(ctx, "/api/usage/statistics", nil, &stats)
	return stats, err
}
