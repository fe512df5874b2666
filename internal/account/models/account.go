// Package models defines the savings account aggregate and its derived
// state. Balance, FullyPaid and Status are always re-derived from the full
// deposit history by the reconciler; nothing else writes them.
package models

import (
	"time"

	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
)

// Status is the lifecycle position of an account.
//
// Transitions are re-derived after every committed mutation, with one
// exception: Matured is sticky. Once an account matures it never leaves
// that state, whichever way its history is later corrected.
type Status string

const (
	// StatusInactive marks an account with no deposits yet.
	StatusInactive Status = "Inactive"
	// StatusActive marks a Monthly book with the current month's installment
	// recorded.
	StatusActive Status = "Active"
	// StatusPending marks the current period's collection still outstanding.
	StatusPending Status = "Pending"
	// StatusOnTrack marks the monthly target met (Daily), or the account paid off.
	StatusOnTrack Status = "OnTrack"
	// StatusMatured marks the term end. Sticky.
	StatusMatured Status = "Matured"
)

// Account is the aggregate root for one recurring-deposit contract.
//
// Invariants:
//   - TotalPayable > 0
//   - The scheme's required configuration field is > 0; the others are 0
//   - Balance <= TotalPayable at every commit point
//   - Version increases by exactly 1 per successful save
//   - Status == Matured is never recomputed away
type Account struct {
	ID       id.AccountID   `json:"id"`
	ClientID id.UserID      `json:"client_id"`
	AgentID  id.UserID      `json:"agent_id"`
	Scheme   id.PaymentMode `json:"scheme"`

	TotalPayable      int64 `json:"total_payable"`
	InstallmentAmount int64 `json:"installment_amount,omitempty"`
	MonthlyTarget     int64 `json:"monthly_target,omitempty"`
	YearlyAmount      int64 `json:"yearly_amount,omitempty"`

	Balance   int64  `json:"balance"`
	Status    Status `json:"status"`
	FullyPaid bool   `json:"fully_paid"`

	OpenedAt     time.Time `json:"opened_at"`
	MaturityDate time.Time `json:"maturity_date"`

	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SchemeConfig bundles the per-scheme amounts supplied when opening an
// account. Exactly one field is meaningful per scheme.
type SchemeConfig struct {
	InstallmentAmount int64 // Monthly: the fixed installment
	MonthlyTarget     int64 // Daily: the per-month collection cap
	YearlyAmount      int64 // Yearly: the single payment, equal to TotalPayable
}

// NewAccount validates and constructs an account. MaturityDate is computed
// from the term length in months.
func NewAccount(
	accountID id.AccountID,
	clientID id.UserID,
	agentID id.UserID,
	scheme id.PaymentMode,
	totalPayable int64,
	cfg SchemeConfig,
	termMonths int,
	now time.Time,
) (*Account, error) {
	if clientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "client id is required")
	}
	if agentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "agent id is required")
	}
	if !scheme.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid scheme %q", scheme)
	}
	if totalPayable <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "total payable must be positive")
	}
	if termMonths <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "term must be at least one month")
	}

	a := &Account{
		ID:           accountID,
		ClientID:     clientID,
		AgentID:      agentID,
		Scheme:       scheme,
		TotalPayable: totalPayable,
		Status:       StatusInactive,
		OpenedAt:     now,
		MaturityDate: now.AddDate(0, termMonths, 0),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	switch scheme {
	case id.PaymentModeDaily:
		if cfg.MonthlyTarget <= 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "daily scheme requires a monthly target")
		}
		a.MonthlyTarget = cfg.MonthlyTarget
	case id.PaymentModeMonthly:
		if cfg.InstallmentAmount <= 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "monthly scheme requires an installment amount")
		}
		a.InstallmentAmount = cfg.InstallmentAmount
	case id.PaymentModeYearly:
		if cfg.YearlyAmount != totalPayable {
			return nil, dErrors.New(dErrors.CodeValidation, "yearly amount must equal total payable")
		}
		a.YearlyAmount = cfg.YearlyAmount
	}

	return a, nil
}

// IsMatured reports whether the account has been marked matured.
func (a *Account) IsMatured() bool {
	return a.Status == StatusMatured
}

// MaturityReached reports whether the term has ended as of now. The status
// flip itself happens through MarkMatured so it can be persisted and audited.
func (a *Account) MaturityReached(now time.Time) bool {
	return !a.MaturityDate.After(now)
}

// MarkMatured flips the account into its terminal status.
func (a *Account) MarkMatured(now time.Time) {
	a.Status = StatusMatured
	a.UpdatedAt = now
}

// Remaining is the headroom left under the contractual ceiling.
func (a *Account) Remaining() int64 {
	if a.Balance >= a.TotalPayable {
		return 0
	}
	return a.TotalPayable - a.Balance
}

// LedgerFacts summarises the deposit history the status derivation needs.
// Period sums are reckoned against the current wall-clock month in the
// business time zone, not against any deposit's own date.
type LedgerFacts struct {
	Balance            int64
	DepositCount       int64
	CollectedThisMonth int64
	CountThisMonth     int64
}

// DeriveStatus computes the account's status from its history.
//
// Matured is sticky. A fully paid account is OnTrack regardless of scheme.
// An untouched account stays Inactive until its first deposit commits.
func (a *Account) DeriveStatus(f LedgerFacts) Status {
	if a.Status == StatusMatured {
		return StatusMatured
	}
	if f.Balance >= a.TotalPayable {
		return StatusOnTrack
	}
	if f.DepositCount == 0 && a.Status == StatusInactive {
		return StatusInactive
	}

	switch a.Scheme {
	case id.PaymentModeDaily:
		// A partial month is Pending however much of the target is in;
		// OnTrack answers only for the target met or the book filled.
		if a.MonthlyTarget > 0 && f.CollectedThisMonth >= a.MonthlyTarget {
			return StatusOnTrack
		}
		return StatusPending
	case id.PaymentModeMonthly:
		// The month's installment activates the book; OnTrack is reserved
		// for full payment, handled by the balance rule above.
		if f.CountThisMonth > 0 {
			return StatusActive
		}
		return StatusPending
	default:
		// Yearly: the paid case is the FullyPaid rule above.
		return StatusPending
	}
}
