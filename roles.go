package auth

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is the principal's role. The set is closed.
type Role string

const (
	// RoleUser can act on resources it owns
	RoleUser Role = "USER"
	// RoleAdmin can act on any resource
	RoleAdmin Role = "ADMIN"
)

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role bypasses ownership checks
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}

// Value implements driver.Valuer
func (r Role) Value() (driver.Value, error) {
	if r == "" {
		return string(RoleUser), nil
	}
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid role %q", string(r))
	}
	return string(r), nil
}

// Scan implements sql.Scanner
func (r *Role) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case nil:
		*r = RoleUser
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}

	role, ok := ParseRole(raw)
	if !ok {
		return fmt.Errorf("invalid role %q", raw)
	}
	*r = role
	return nil
}

// ParseRole parses a role, case insensitive
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	return role, role.IsValid()
}

// GetAllRoles returns all roles
func GetAllRoles() []Role {
	return []Role{RoleUser, RoleAdmin}
}
