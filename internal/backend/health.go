package backend

import "context"

// HealthAPI wraps /api/health.
type HealthAPI struct {
	c *Client
}

func (h *HealthAPI) Check(ctx context.Context) (map[string]any, error) {
	var report map[string]any
	err := h.c.Get(ctx, "/api/health", nil, &report)
	return report, err
}
