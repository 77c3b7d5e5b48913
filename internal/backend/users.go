package backend

import "context"

// UsersAPI wraps /api/users.
type UsersAPI struct {
	c *Client
}

func (u *UsersAPI) List(ctx context.Context) ([]User, error) {
	var users []User
	err := u.c.Get(ctx, "/api/users", nil, &users)
	return users, err
}

func (u *UsersAPI) Get(ctx context.Context, id ID) (*User, error) {
	var user User
	if err := u.c.Get(ctx, "/api/users/"+id.String(), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *UsersAPI) ListByRole(ctx context.Context, role string) ([]User, error) {
	var users []User
	err := u.c.Get(ctx, "/api/users/role/"+role, nil, &users)
	return users, err
}

func (u *UsersAPI) Create(ctx context.Context, req SignupRequest) (*User, error) {
	var user User
	if err := u.c.Post(ctx, "/api/users", nil, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *UsersAPI) Update(ctx context.Context, id ID, user User) (*User, error) {
	var updated User
	if err := u.c.Put(ctx, "/api/users/"+id.String(), user, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (u *UsersAPI) Delete(ctx context.Context, id ID) error {
	return u.c.Delete(ctx, "/api/users/"+id.String())
}

func (u *UsersAPI) Reactivate(ctx context.Context, id ID) error {
	return u.c.Post(ctx, "/api/users/"+id.String()+"/reactivate", nil, nil, nil)
}
