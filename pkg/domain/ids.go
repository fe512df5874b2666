// Package domain holds the shared domain primitives: typed identifiers and
// the closed enumerations (payment modes, roles) that every feature package
// speaks. Values are constructed through Parse* functions at trust
// boundaries; direct casting bypasses validation and is reserved for code
// that already holds a verified value.
package domain

import (
	"github.com/google/uuid"

	dErrors "khata/pkg/domain-errors"
)

// Typed identifiers. Distinct types keep an account ID from ever being
// passed where a user ID belongs; the compiler enforces what code review
// would otherwise have to catch.
type (
	// AccountID identifies a savings account.
	AccountID uuid.UUID
	// DepositID identifies a single recorded deposit.
	DepositID uuid.UUID
	// UserID identifies a directory user (admin, manager, agent or client).
	UserID uuid.UUID
)

// NewAccountID returns a fresh random account ID.
func NewAccountID() AccountID { return AccountID(uuid.New()) }

// NewDepositID returns a fresh random deposit ID.
func NewDepositID() DepositID { return DepositID(uuid.New()) }

// NewUserID returns a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// parseUUID enforces the shared identifier invariant: valid, non-empty,
// non-nil UUIDs only. All Parse*ID functions funnel through here.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s id cannot be empty", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "invalid %s id", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s id cannot be the nil uuid", kind)
	}
	return u, nil
}

// ParseAccountID validates external input into an AccountID.
func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID(s, "account")
	if err != nil {
		return AccountID{}, err
	}
	return AccountID(u), nil
}

// ParseDepositID validates external input into a DepositID.
func ParseDepositID(s string) (DepositID, error) {
	u, err := parseUUID(s, "deposit")
	if err != nil {
		return DepositID{}, err
	}
	return DepositID(u), nil
}

// ParseUserID validates external input into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user")
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

func (id AccountID) String() string { return uuid.UUID(id).String() }
func (id DepositID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string    { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero value.
func (id AccountID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// IsNil reports whether the ID is the zero value.
func (id DepositID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// IsNil reports whether the ID is the zero value.
func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text round-tripping. Defining our own types drops uuid.UUID's methods,
// so JSON and text encoding are restated here; unmarshalling runs the same
// validation as the Parse functions.

func (id AccountID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id DepositID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func (id *AccountID) UnmarshalText(b []byte) error {
	parsed, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *DepositID) UnmarshalText(b []byte) error {
	parsed, err := ParseDepositID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
