// Package store persists accounts. Implementations return sentinel errors
// (ErrNotFound, ErrDuplicate, ErrConflict); the service layer translates
// them into domain errors.
package store

import (
	"context"
	"time"

	"khata/internal/account/models"
	id "khata/pkg/domain"
)

// Store is the persistence surface for accounts.
type Store interface {
	// Create inserts a new account. Returns sentinel.ErrDuplicate when the
	// ID already exists.
	Create(ctx context.Context, account *models.Account) error

	// FindByID loads one account. Returns sentinel.ErrNotFound when absent.
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)

	// FindByIDForUpdate loads one account and, inside a transaction, locks
	// its row for the remainder of that transaction. The deposit commit
	// pipeline reads history and writes derived state under this lock.
	FindByIDForUpdate(ctx context.Context, accountID id.AccountID) (*models.Account, error)

	// Save persists the account guarded by its Version. On success the
	// stored and in-memory versions are bumped by one. Returns
	// sentinel.ErrConflict when the version is stale.
	Save(ctx context.Context, account *models.Account) error

	// List returns accounts matching the filter, ordered by opening time.
	List(ctx context.Context, f Filter) ([]*models.Account, error)
}

// Filter narrows List. Zero-valued fields do not constrain.
type Filter struct {
	// AgentIDs restricts to accounts collected by these agents.
	AgentIDs []id.UserID
	// ClientID restricts to one owner.
	ClientID id.UserID
	// ExcludeMatured drops accounts already in their terminal status.
	ExcludeMatured bool
	// OpenOnly drops fully paid accounts.
	OpenOnly bool
	// MaturityDueBy keeps only accounts whose term ends at or before the
	// given instant. The maturity sweep pairs it with ExcludeMatured.
	MaturityDueBy *time.Time
}
