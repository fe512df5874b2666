package store

import (
	"context"
	"sort"
	"sync"

	"khata/internal/account/models"
	id "khata/pkg/domain"
	"khata/pkg/platform/sentinel"
)

// InMemory is a map-backed account store for tests and local development.
// Accounts are copied on the way in and out so callers never share memory
// with the store.
type InMemory struct {
	mu   sync.RWMutex
	byID map[id.AccountID]*models.Account
}

// NewInMemory creates an empty in-memory account store.
func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[id.AccountID]*models.Account)}
}

func (s *InMemory) Create(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[account.ID]; ok {
		return sentinel.ErrDuplicate
	}
	cp := *account
	s.byID[account.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, accountID id.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.byID[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *stored
	return &cp, nil
}

// FindByIDForUpdate behaves like FindByID; callers get exclusivity from the
// sharded transaction runner, not from this store.
func (s *InMemory) FindByIDForUpdate(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	return s.FindByID(ctx, accountID)
}

func (s *InMemory) Save(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[account.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != account.Version {
		return sentinel.ErrConflict
	}
	cp := *account
	cp.Version++
	s.byID[account.ID] = &cp
	account.Version = cp.Version
	return nil
}

func (s *InMemory) List(_ context.Context, f Filter) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Account
	for _, a := range s.byID {
		if !matches(a, f) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func matches(a *models.Account, f Filter) bool {
	if len(f.AgentIDs) > 0 {
		found := false
		for _, agentID := range f.AgentIDs {
			if a.AgentID == agentID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.ClientID.IsNil() && a.ClientID != f.ClientID {
		return false
	}
	if f.ExcludeMatured && a.Status == models.StatusMatured {
		return false
	}
	if f.OpenOnly && a.FullyPaid {
		return false
	}
	if f.MaturityDueBy != nil && a.MaturityDate.After(*f.MaturityDueBy) {
		return false
	}
	return true
}
