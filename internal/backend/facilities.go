package backend

import "context"

// FacilitiesAPI wraps /api/facilities.
type FacilitiesAPI struct {
	c *Client
}

func (f *FacilitiesAPI) List(ctx context.Context) ([]Facility, error) {
	var facilities []Facility
	err := f.c.Get(ctx, "/api/facilities", nil, &facilities)
	return facilities, err
}

// GetWithMachines returns the facility with its machines embedded.
func (f *FacilitiesAPI) GetWithMachines(ctx context.Context, id ID) (*Facility, error) {
	var facility Facility
	if err := f.c.Get(ctx, "/api/facilities/"+id.String()+"/with-machines", nil, &facility); err != nil {
		return nil, err
	}
	return &facility, nil
}
