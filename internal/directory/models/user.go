// Package models defines the directory user record backing authentication
// subjects and scope resolution.
package models

import (
	"strings"
	"time"

	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
)

// User is a directory principal: an operator (admin, manager, agent) or a
// depositor (client). Assignments live on the user row itself: an agent
// carries the manager who supervises them.
//
// Invariants:
//   - Username is non-empty, at most 64 characters, unique (store-enforced)
//   - Role is one of the supported enum values
//   - ManagerID is set only for agents
type User struct {
	ID           id.UserID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         id.Role   `json:"role"`
	ManagerID    id.UserID `json:"manager_id,omitzero"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUser validates and constructs a directory user. The password hash is
// attached separately by the caller (see the secrets package).
func NewUser(userID id.UserID, username string, role id.Role, now time.Time) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "username cannot be empty")
	}
	if len(username) > 64 {
		return nil, dErrors.New(dErrors.CodeValidation, "username must be 64 characters or less")
	}
	if !role.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid role %q", role)
	}
	return &User{
		ID:        userID,
		Username:  username,
		Role:      role,
		CreatedAt: now,
	}, nil
}

// SupervisedBy assigns the agent to a manager. Only agents carry this link.
func (u *User) SupervisedBy(managerID id.UserID) error {
	if u.Role != id.RoleAgent {
		return dErrors.Newf(dErrors.CodeValidation, "role %q cannot be assigned a manager", u.Role)
	}
	u.ManagerID = managerID
	return nil
}
