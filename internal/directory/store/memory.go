// Package store persists directory users. Both implementations enforce
// username uniqueness and surface sentinel errors for the service layer to
// translate.
package store

import (
	"context"
	"strings"
	"sync"

	"khata/internal/directory/models"
	id "khata/pkg/domain"
	"khata/pkg/platform/sentinel"
)

// InMemory is a map-backed user store for tests and the dev profile.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[id.UserID]*models.User
	byName map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.UserID]*models.User),
		byName: make(map[string]id.UserID),
	}
}

// Create inserts a user, rejecting duplicate usernames case-insensitively.
func (s *InMemory) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Username)
	if _, taken := s.byName[key]; taken {
		return sentinel.ErrDuplicate
	}

	copied := *user
	s.byID[user.ID] = &copied
	s.byName[key] = user.ID
	return nil
}

// FindByID returns the user or sentinel.ErrNotFound.
func (s *InMemory) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// FindByUsername looks a user up case-insensitively.
func (s *InMemory) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byName[strings.ToLower(username)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *s.byID[userID]
	return &copied, nil
}

// ListAgentsByManager returns the IDs of agents supervised by managerID.
func (s *InMemory) ListAgentsByManager(ctx context.Context, managerID id.UserID) ([]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var agents []id.UserID
	for _, user := range s.byID {
		if user.Role == id.RoleAgent && user.ManagerID == managerID {
			agents = append(agents, user.ID)
		}
	}
	return agents, nil
}
