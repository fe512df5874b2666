package store

import (
	"context"
	"sort"
	"sync"

	"khata/internal/deposit/models"
	id "khata/pkg/domain"
	"khata/pkg/platform/sentinel"
)

// InMemory is a map-backed deposit store for tests and local development.
// Deposits are copied on the way in and out so callers never share memory
// with the store.
type InMemory struct {
	mu   sync.RWMutex
	byID map[id.DepositID]*models.Deposit
}

// NewInMemory creates an empty in-memory deposit store.
func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[id.DepositID]*models.Deposit)}
}

func (s *InMemory) Insert(_ context.Context, deposit *models.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[deposit.ID]; ok {
		return sentinel.ErrDuplicate
	}
	cp := *deposit
	s.byID[deposit.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, depositID id.DepositID) (*models.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.byID[depositID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *stored
	return &cp, nil
}

func (s *InMemory) Update(_ context.Context, deposit *models.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[deposit.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *deposit
	s.byID[deposit.ID] = &cp
	return nil
}

func (s *InMemory) Delete(_ context.Context, depositID id.DepositID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[depositID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byID, depositID)
	return nil
}

func (s *InMemory) ListByAccount(_ context.Context, accountID id.AccountID) ([]*models.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Deposit
	for _, d := range s.byID {
		if d.AccountID != accountID {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DepositDate.Equal(out[j].DepositDate) {
			return out[i].DepositDate.Before(out[j].DepositDate)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *InMemory) SumByAccount(_ context.Context, accountID id.AccountID, f Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, d := range s.byID {
		if d.AccountID == accountID && f.matches(d) {
			sum += d.Amount
		}
	}
	return sum, nil
}

func (s *InMemory) CountByAccount(_ context.Context, accountID id.AccountID, f Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, d := range s.byID {
		if d.AccountID == accountID && f.matches(d) {
			count++
		}
	}
	return count, nil
}
