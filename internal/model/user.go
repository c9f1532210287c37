package model

import (
	"net/mail"
	"strings"
	"time"
)

// Role determines which lifecycle operations a user may perform.
type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleAuthority Role = "authority"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleCitizen || r == RoleAuthority
}

// User is an account holder. Users are immutable after creation; the role is
// fixed at that point.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsAuthority reports whether u may triage reports. A nil user is never an
// authority.
func (u *User) IsAuthority() bool {
	return u != nil && u.Role == RoleAuthority
}

// IsCitizen reports whether u may author reports.
func (u *User) IsCitizen() bool {
	return u != nil && u.Role == RoleCitizen
}

// Validate checks the structural shape of a user record.
func (u *User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return Invalid("id", "is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return Invalid("email", "is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return Invalid("email", "is not a valid address")
	}
	if strings.TrimSpace(u.Name) == "" {
		return Invalid("name", "is required")
	}
	if !u.Role.Valid() {
		return Invalid("role", "must be citizen or authority")
	}
	return nil
}
