package identity

import "time"

// Role classifies a principal's access category.
type Role string

const (
	// RoleParent principals authenticate with email/password and manage the household.
	RoleParent Role = "parent"
	// RoleKid principals authenticate with a 4-digit PIN and only see their own rows.
	RoleKid Role = "kid"
)

// Valid reports whether the role is one of the known categories.
func (r Role) Valid() bool {
	return r == RoleParent || r == RoleKid
}

// Principal represents a person with access to the household.
//
// PasswordHash and PINHash are mutually exclusive by role convention:
// parents carry a password hash, kids carry a PIN hash. The convention is
// enforced in the verification paths, not by the schema.
type Principal struct {
	ID           int64
	Name         string
	Email        string
	Role         Role
	PasswordHash string
	PINHash      string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
