// Package models defines the deposit record. A deposit is one collected
// installment against an account; history is the source of truth for the
// account's balance, so deposits carry everything reconciliation needs.
package models

import (
	"encoding/json"
	"time"

	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
)

// DateLayout is the wire format for deposit dates. A deposit belongs to a
// calendar day, not an instant; internally the day is represented as its
// UTC-midnight time so Go and SQL compare it identically.
const DateLayout = "2006-01-02"

// Deposit is one collected amount against an account.
//
// Invariants:
//   - Amount > 0
//   - DepositDate is a UTC-midnight instant (date-only)
//   - Scheme mirrors the account's scheme at collection time
type Deposit struct {
	ID          id.DepositID   `json:"id"`
	AccountID   id.AccountID   `json:"account_id"`
	ClientID    id.UserID      `json:"client_id"`
	CollectedBy id.UserID      `json:"collected_by"`
	Amount      int64          `json:"amount"`
	DepositDate time.Time      `json:"deposit_date"`
	Scheme      id.PaymentMode `json:"scheme"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewDeposit constructs a deposit from values the policy pipeline has
// already admitted. Only referential integrity is re-checked here.
func NewDeposit(
	depositID id.DepositID,
	accountID id.AccountID,
	clientID id.UserID,
	collectedBy id.UserID,
	amount int64,
	depositDate time.Time,
	scheme id.PaymentMode,
	now time.Time,
) (*Deposit, error) {
	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "account id is required")
	}
	if clientID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "client id is required")
	}
	if collectedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "collector id is required")
	}
	return &Deposit{
		ID:          depositID,
		AccountID:   accountID,
		ClientID:    clientID,
		CollectedBy: collectedBy,
		Amount:      amount,
		DepositDate: depositDate,
		Scheme:      scheme,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// depositAlias breaks the MarshalJSON recursion.
type depositAlias Deposit

type depositWire struct {
	depositAlias
	DepositDate string `json:"deposit_date"`
}

// MarshalJSON renders the deposit date as a plain calendar day.
func (d Deposit) MarshalJSON() ([]byte, error) {
	return json.Marshal(depositWire{
		depositAlias: depositAlias(d),
		DepositDate:  d.DepositDate.Format(DateLayout),
	})
}

// UnmarshalJSON accepts the date-only wire form.
func (d *Deposit) UnmarshalJSON(b []byte) error {
	var wire depositWire
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	parsed, err := time.Parse(DateLayout, wire.DepositDate)
	if err != nil {
		return err
	}
	*d = Deposit(wire.depositAlias)
	d.DepositDate = parsed
	return nil
}
