package domain

import dErrors "khata/pkg/domain-errors"

// Role names a directory user's position in the collection hierarchy.
type Role string

// Supported roles.
const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleAgent   Role = "agent"
	RoleClient  Role = "client"
)

var validRoles = map[Role]bool{
	RoleAdmin:   true,
	RoleManager: true,
	RoleAgent:   true,
	RoleClient:  true,
}

// ParseRole constructs a Role from external input (JWT claims, seed data).
//
// Errors: returns CodeValidation when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid role %q", s)
	}
	return r, nil
}

// IsValid checks if the role is one of the supported enum values.
func (r Role) IsValid() bool {
	return validRoles[r]
}

// CanCollect reports whether the role may record deposits at all.
// Clients hold accounts; they never write to them.
func (r Role) CanCollect() bool {
	return r == RoleAgent || r == RoleManager || r == RoleAdmin
}

// CanCorrect reports whether the role may edit or remove recorded deposits.
// Corrections rewrite ledger history, so only the back office holds this.
func (r Role) CanCorrect() bool {
	return r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
