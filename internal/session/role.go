package session

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"coffee-fleet-console/internal/backend"
)

// Role is the closed set of console roles.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleFacility   Role = "FACILITY"
	RoleTechnician Role = "TECHNICIAN"
)

// ParseRole accepts a role name in any case, with or without the ROLE_ prefix
// the backend's authority names carry.
func ParseRole(s string) (Role, bool) {
	name := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "ROLE_")
	switch Role(name) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleFacility:
		return RoleFacility, true
	case RoleTechnician:
		return RoleTechnician, true
	}
	return "", false
}

// Valid reports whether r is one of the known roles, spelled exactly.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleFacility || r == RoleTechnician
}

// RequiresFacility reports whether signing up for this role needs a facility.
// Only technicians are assigned one by the backend at signup; facility
// accounts are bound to theirs later.
func (r Role) RequiresFacility() bool {
	return r == RoleTechnician
}

// Authority is the role name as the backend's signup endpoint expects it.
func (r Role) Authority() string {
	return "ROLE_" + string(r)
}

const minPasswordLength = 6

// ValidationError lists the rejected signup fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range []string{"username", "email", "password", "role", "facilityId"} {
		if msg, ok := e.Fields[field]; ok {
			parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
		}
	}
	return "invalid signup: " + strings.Join(parts, "; ")
}

// SignupRequest is the signup form.
type SignupRequest struct {
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	Password   string     `json:"password"`
	Role       Role       `json:"role"`
	FacilityID backend.ID `json:"facilityId"`
}

// Validate checks the form the way the signup view does before submitting.
func (r *SignupRequest) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(r.Username) == "" {
		fields["username"] = "Username is required"
	}
	if strings.TrimSpace(r.Email) == "" {
		fields["email"] = "Email is required"
	} else if _, err := mail.ParseAddress(r.Email); err != nil {
		fields["email"] = "Please enter a valid email"
	}
	if r.Password == "" {
		fields["password"] = "Password is required"
	} else if len(r.Password) < minPasswordLength {
		fields["password"] = "Password must be at least 6 characters"
	}
	if role, ok := ParseRole(string(r.Role)); !ok {
		fields["role"] = "Role is required"
	} else {
		r.Role = role
		if role.RequiresFacility() && r.FacilityID == 0 {
			fields["facilityId"] = "Facility is required"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// BackendRequest converts the form into the backend signup body. The facility
// is only sent for technicians.
func (r SignupRequest) BackendRequest() backend.SignupRequest {
	req := backend.SignupRequest{
		Username: strings.TrimSpace(r.Username),
		Email:    strings.TrimSpace(r.Email),
		Password: r.Password,
		Role:     r.Role.Authority(),
	}
	if r.Role.RequiresFacility() {
		id := r.FacilityID
		req.FacilityID = &id
	}
	return req
}

// IsValidationError reports whether err came from signup validation.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
