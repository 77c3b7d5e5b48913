package backend

import (
	"context"
	"net/url"
	"strconv"
)

// Levels is a partial supply update. Nil fields are left unchanged by the backend.
type Levels struct {
	WaterLevel *float64 `json:"waterLevel,omitempty"`
	MilkLevel  *float64 `json:"milkLevel,omitempty"`
	BeansLevel *float64 `json:"beansLevel,omitempty"`
	SugarLevel *float64 `json:"sugarLevel,omitempty"`
}

// Clamped returns a copy with every present level bounded to [0, 100].
func (l Levels) Clamped() Levels {
	return Levels{
		WaterLevel: clampLevel(l.WaterLevel),
		MilkLevel:  clampLevel(l.MilkLevel),
		BeansLevel: clampLevel(l.BeansLevel),
		SugarLevel: clampLevel(l.SugarLevel),
	}
}

// Query encodes only the present levels.
func (l Levels) Query() url.Values {
	q := url.Values{}
	add := func(name string, v *float64) {
		if v != nil {
			q.Set(name, strconv.FormatFloat(*v, 'f', -1, 64))
		}
	}
	add("waterLevel", l.WaterLevel)
	add("milkLevel", l.MilkLevel)
	add("beansLevel", l.BeansLevel)
	add("sugarLevel", l.SugarLevel)
	return q
}

func clampLevel(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	switch {
	case c < 0:
		c = 0
	case c > 100:
		c = 100
	}
	return &c
}

// MachinesAPI wraps /api/machines.
type MachinesAPI struct {
	c *Client
}

func (m *MachinesAPI) List(ctx context.Context) ([]Machine, error) {
	var machines []Machine
	err := m.c.Get(ctx, "/api/machines", nil, &machines)
	return machines, err
}

func (m *MachinesAPI) Get(ctx context.Context, id ID) (*Machine, error) {
	var machine Machine
	if err := m.c.Get(ctx, "/api/machines/"+id.String(), nil, &machine); err != nil {
		return nil, err
	}
	return &machine, nil
}

// UpdateStatus switches a machine ON or OFF.
func (m *MachinesAPI) UpdateStatus(ctx context.Context, id ID, status MachineStatus) error {
	q := url.Values{"status": []string{string(status)}}
	return m.c.Post(ctx, "/api/machines/"+id.String()+"/status", q, nil, nil)
}

// Refill submits a partial level update. Levels are clamped before sending.
func (m *MachinesAPI) Refill(ctx context.Context, id ID, levels Levels) error {
	return m.c.Post(ctx, "/api/machines/"+id.String()+"/refill", levels.Clamped().Query(), nil, nil)
}
