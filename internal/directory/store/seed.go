package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"khata/internal/directory/models"
	"khata/internal/directory/secrets"
	id "khata/pkg/domain"
	"khata/pkg/platform/sentinel"
)

// Creator is the slice of the store needed for seeding.
type Creator interface {
	Create(ctx context.Context, user *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

// SeedResult reports the principals provisioned by Seed.
type SeedResult struct {
	Admin   id.UserID
	Manager id.UserID
	Agent   id.UserID
	Clients []id.UserID
}

// Seed provisions the development directory: one admin, one manager, one
// agent under that manager, and two clients. Passwords are "<username>-dev".
// Re-running against an already seeded store is a no-op that returns the
// existing IDs.
func Seed(ctx context.Context, users Creator) (*SeedResult, error) {
	now := time.Now()

	admin, err := seedUser(ctx, users, "admin", id.RoleAdmin, id.UserID{}, now)
	if err != nil {
		return nil, err
	}
	manager, err := seedUser(ctx, users, "manager", id.RoleManager, id.UserID{}, now)
	if err != nil {
		return nil, err
	}
	agent, err := seedUser(ctx, users, "agent", id.RoleAgent, manager.ID, now)
	if err != nil {
		return nil, err
	}

	result := &SeedResult{
		Admin:   admin.ID,
		Manager: manager.ID,
		Agent:   agent.ID,
	}

	for _, name := range []string{"client-one", "client-two"} {
		client, err := seedUser(ctx, users, name, id.RoleClient, id.UserID{}, now)
		if err != nil {
			return nil, err
		}
		result.Clients = append(result.Clients, client.ID)
	}

	return result, nil
}

func seedUser(ctx context.Context, users Creator, username string, role id.Role, managerID id.UserID, now time.Time) (*models.User, error) {
	user, err := models.NewUser(id.NewUserID(), username, role, now)
	if err != nil {
		return nil, err
	}
	if !managerID.IsNil() {
		if err := user.SupervisedBy(managerID); err != nil {
			return nil, err
		}
	}

	hash, err := secrets.Hash(username + "-dev")
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	err = users.Create(ctx, user)
	if errors.Is(err, sentinel.ErrDuplicate) {
		return users.FindByUsername(ctx, username)
	}
	if err != nil {
		return nil, fmt.Errorf("seed user %q: %w", username, err)
	}
	return user, nil
}
