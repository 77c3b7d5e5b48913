package backend

import (
	"context"
	"errors"
	"net/http"
)

// ErrInvalidLoginResponse is returned when a 2xx login answer carries no token.
var ErrInvalidLoginResponse = errors.New("invalid login response")

// AuthAPI wraps /api/auth.
type AuthAPI struct {
	c *Client
}

// Login exchanges credentials for a token.
func (a *AuthAPI) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := a.c.do(ctx, http.MethodPost, "/api/auth/login", nil, req, &resp, false); err != nil {
		return nil, err
	}
	if resp.JWT == "" {
		return nil, ErrInvalidLoginResponse
	}
	return &resp, nil
}

// Signup registers a new account. The caller is not signed in by it.
func (a *AuthAPI) Signup(ctx context.Context, req SignupRequest) error {
	return a.c.do(ctx, http.MethodPost, "/api/auth/signup", nil, req, nil, false)
}
