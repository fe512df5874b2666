// Package store persists deposits. Implementations return sentinel errors
// (ErrNotFound, ErrDuplicate); the service layer translates them into
// domain errors.
package store

import (
	"context"

	"khata/internal/deposit/models"
	id "khata/pkg/domain"
	"khata/pkg/platform/period"
)

// Store is the persistence surface for deposits.
type Store interface {
	// Insert records a new deposit. Returns sentinel.ErrDuplicate when the
	// ID already exists.
	Insert(ctx context.Context, deposit *models.Deposit) error

	// FindByID loads one deposit. Returns sentinel.ErrNotFound when absent.
	FindByID(ctx context.Context, depositID id.DepositID) (*models.Deposit, error)

	// Update rewrites a deposit's correctable fields. Returns
	// sentinel.ErrNotFound when the deposit is gone.
	Update(ctx context.Context, deposit *models.Deposit) error

	// Delete removes a deposit. Returns sentinel.ErrNotFound when the
	// deposit is gone.
	Delete(ctx context.Context, depositID id.DepositID) error

	// ListByAccount returns an account's full history ordered by deposit
	// date, then by recording time.
	ListByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Deposit, error)

	// SumByAccount totals matching deposit amounts. An empty filter sums
	// the whole history, which is the account's balance.
	SumByAccount(ctx context.Context, accountID id.AccountID, f Filter) (int64, error)

	// CountByAccount counts matching deposits.
	CountByAccount(ctx context.Context, accountID id.AccountID, f Filter) (int64, error)
}

// Filter narrows SumByAccount and CountByAccount. Zero-valued fields do not
// constrain.
type Filter struct {
	// Window restricts to deposits dated within [From, To).
	Window *period.Window
	// Exclude omits one deposit, so a correction can total the history as
	// it would look without the record under edit.
	Exclude id.DepositID
}

func (f Filter) matches(d *models.Deposit) bool {
	if f.Window != nil && !f.Window.Contains(d.DepositDate) {
		return false
	}
	if !f.Exclude.IsNil() && d.ID == f.Exclude {
		return false
	}
	return true
}
