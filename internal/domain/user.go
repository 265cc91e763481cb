package domain

import (
	"strings"

	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// User is the signed-in identity.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    Role   `json:"role"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// FirstName returns the first word of the name.
func (u *User) FirstName() string {
	parts := strings.Fields(u.Name)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// LastName returns everything after the first word of the name.
func (u *User) LastName() string {
	parts := strings.Fields(u.Name)
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[1:], " ")
}

// Valid reports whether the identity has the fields every screen relies on.
func (u *User) Valid() bool {
	return u != nil && u.ID != "" && u.Email != "" && u.Role.Valid()
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the credentials before they are sent.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Email) == "" || c.Password == "" {
		return apierrors.Validation("Email and password are required.")
	}
	if !ValidateEmail(c.Email) {
		return apierrors.Validation("Please enter a valid email address.")
	}
	return nil
}

// Registration is the sign-up payload.
type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
}

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

// Validate checks the registration before it is sent.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return apierrors.Validation("Name is required.")
	}
	if !ValidateEmail(r.Email) {
		return apierrors.Validation("Please enter a valid email address.")
	}
	if len(r.Password) < MinPasswordLength {
		return apierrors.Validationf("Password must be at least %d characters.", MinPasswordLength)
	}
	if r.Phone != "" && !ValidatePhone(r.Phone) {
		return apierrors.Validation("Please enter a valid phone number.")
	}
	return nil
}

// ProfilePatch carries the profile fields to change. Nil fields are left alone.
type ProfilePatch struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

// Validate checks the patch before it is sent.
func (p ProfilePatch) Validate() error {
	if p.Name == nil && p.Phone == nil && p.Address == nil {
		return apierrors.Validation("Nothing to update.")
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return apierrors.Validation("Name cannot be empty.")
	}
	if p.Phone != nil && *p.Phone != "" && !ValidatePhone(*p.Phone) {
		return apierrors.Validation("Please enter a valid phone number.")
	}
	return nil
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}
