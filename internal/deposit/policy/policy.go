// Package policy decides whether a ledger mutation is admitted. Every
// rejection carries a stable machine reason; reasons are API surface and
// appear verbatim in responses, audit events and batch failure summaries,
// so they are never renamed once released.
//
// Checks are pure functions over the account, the attempted mutation and
// period facts the service gathers under the account lock. The service runs
// them in a fixed order and stops at the first rejection.
package policy

import (
	"time"

	accmodels "khata/internal/account/models"
	"khata/internal/scope"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	"khata/pkg/platform/period"
)

// Rejection reasons.
const (
	ReasonRoleNotAllowed        = "ROLE_NOT_ALLOWED"
	ReasonInvalidAmount         = "INVALID_AMOUNT"
	ReasonInvalidDate           = "INVALID_DATE"
	ReasonAccountNotFound       = "ACCOUNT_NOT_FOUND"
	ReasonUserAccountMismatch   = "USER_ACCOUNT_MISMATCH"
	ReasonAgentScopeViolation   = "AGENT_SCOPE_VIOLATION"
	ReasonManagerScopeViolation = "MANAGER_SCOPE_VIOLATION"
	ReasonMissingTotalPayable   = "MISSING_TOTAL_PAYABLE"
	ReasonTotalPayableExceeded  = "TOTAL_PAYABLE_EXCEEDED"
	ReasonAccountMatured        = "ACCOUNT_MATURED"

	ReasonYearlyAlreadyPaid     = "YEARLY_ALREADY_PAID"
	ReasonYearlyAmountMismatch  = "YEARLY_AMOUNT_MISMATCH"
	ReasonMissingInstallment    = "MISSING_INSTALLMENT_AMOUNT"
	ReasonMonthlyAmountMismatch = "MONTHLY_AMOUNT_MISMATCH"
	ReasonMonthlyAlreadyPaid    = "MONTHLY_ALREADY_PAID"
	ReasonMonthlyMultiple       = "MONTHLY_MULTIPLE_DEPOSITS"
	ReasonMissingMonthlyTarget  = "MISSING_MONTHLY_TARGET"
	ReasonDailyTargetExceeded   = "DAILY_MONTHLY_TARGET_EXCEEDED"
	ReasonDailyAlreadyCollected = "DAILY_ALREADY_COLLECTED"

	ReasonDepositNotFound     = "DEPOSIT_NOT_FOUND"
	ReasonCannotDeleteYearly  = "CANNOT_DELETE_ONLY_YEARLY_DEPOSIT"
	ReasonCollectedByMismatch = "COLLECTED_BY_MISMATCH"
)

// Op names the mutation being checked. A few reasons differ between the
// original collection and a later correction of it.
type Op int

const (
	OpCreate Op = iota
	OpUpdate
)

// AccountNotFound is the reasoned rejection for a missing account.
func AccountNotFound() error {
	return dErrors.NewWithReason(dErrors.CodeNotFound, ReasonAccountNotFound, "account not found")
}

// DepositNotFound is the reasoned rejection for a missing deposit.
func DepositNotFound() error {
	return dErrors.NewWithReason(dErrors.CodeNotFound, ReasonDepositNotFound, "deposit not found")
}

// CheckAmount admits only positive amounts.
func CheckAmount(amount int64) error {
	if amount <= 0 {
		return dErrors.NewWithReason(dErrors.CodeValidation, ReasonInvalidAmount, "deposit amount must be positive")
	}
	return nil
}

// ParseDate parses a wire date and pins it to a calendar day. Days later
// than the current business day are rejected; the business day is reckoned
// in loc, so a collector working late in UTC terms still books "today".
func ParseDate(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, dErrors.NewWithReason(dErrors.CodeValidation, ReasonInvalidDate, "deposit date is invalid or in the future")
	}
	day := period.CivilDay(parsed, time.UTC)
	if day.After(period.CivilDay(now, loc)) {
		return time.Time{}, dErrors.NewWithReason(dErrors.CodeValidation, ReasonInvalidDate, "deposit date is invalid or in the future")
	}
	return day, nil
}

// CheckCollectRole admits the roles that may record new deposits.
func CheckCollectRole(role id.Role) error {
	if !role.CanCollect() {
		return dErrors.NewWithReason(dErrors.CodeForbidden, ReasonRoleNotAllowed, "role does not permit this operation")
	}
	return nil
}

// CheckCorrectRole admits the roles that may rewrite recorded history.
func CheckCorrectRole(role id.Role) error {
	if !role.CanCorrect() {
		return dErrors.NewWithReason(dErrors.CodeForbidden, ReasonRoleNotAllowed, "role does not permit this operation")
	}
	return nil
}

// CheckSheetRole admits the one role that may submit a collection sheet.
// Sheets are the field agent's instrument; managers and admins record
// single deposits instead.
func CheckSheetRole(role id.Role) error {
	if role != id.RoleAgent {
		return dErrors.NewWithReason(dErrors.CodeForbidden, ReasonRoleNotAllowed, "role does not permit this operation")
	}
	return nil
}

// CheckClientMatch rejects deposits naming a client who does not own the
// account.
func CheckClientMatch(account *accmodels.Account, clientID id.UserID) error {
	if account.ClientID != clientID {
		return dErrors.NewWithReason(dErrors.CodeValidation, ReasonUserAccountMismatch, "client does not own this account")
	}
	return nil
}

// CheckScope rejects collectors acting outside their book. The reason names
// the role so security reviews can tell a stray agent from a stray manager.
func CheckScope(role id.Role, callerScope scope.Scope, account *accmodels.Account) error {
	if callerScope.Covers(account.AgentID) {
		return nil
	}
	if role == id.RoleManager {
		return dErrors.NewWithReason(dErrors.CodeForbidden, ReasonManagerScopeViolation, "manager cannot record deposits outside their team")
	}
	return dErrors.NewWithReason(dErrors.CodeForbidden, ReasonAgentScopeViolation, "agent cannot record deposits for another agent's account")
}

// CheckMaturity rejects new collections once the term has ended. The call
// sites persist the Matured status before rejecting, so the gate also
// answers for accounts whose sweep has not run yet.
func CheckMaturity(account *accmodels.Account, now time.Time) error {
	if account.IsMatured() || account.MaturityReached(now) {
		return dErrors.NewWithReason(dErrors.CodePolicy, ReasonAccountMatured, "account has matured")
	}
	return nil
}

// CheckCeiling rejects amounts that would push the balance past the
// contract. survivingSum is the balance excluding any deposit under edit.
func CheckCeiling(account *accmodels.Account, survivingSum, amount int64) error {
	if account.TotalPayable <= 0 {
		return dErrors.NewWithReason(dErrors.CodeDefect, ReasonMissingTotalPayable, "account has no total payable configured")
	}
	if survivingSum+amount > account.TotalPayable {
		return dErrors.NewWithReason(dErrors.CodePolicy, ReasonTotalPayableExceeded, "deposit would push the balance past the total payable")
	}
	return nil
}

// SchemeFacts are the period sums the scheme check runs against, reckoned
// over the calendar month of the deposit's own date. The deposit under
// edit, if any, is excluded from every figure.
type SchemeFacts struct {
	// MonthCount and MonthSum cover surviving deposits in the deposit's
	// target month.
	MonthCount int64
	MonthSum   int64
	// LifetimeCount covers all surviving deposits on the account.
	LifetimeCount int64
}

// CheckScheme applies the per-scheme admission rule against the deposit's
// own target period.
func CheckScheme(account *accmodels.Account, amount int64, facts SchemeFacts, op Op) error {
	switch account.Scheme {
	case id.PaymentModeYearly:
		if facts.LifetimeCount > 0 {
			return dErrors.NewWithReason(dErrors.CodePolicy, ReasonYearlyAlreadyPaid, "yearly account is already paid")
		}
		if amount != account.TotalPayable {
			return dErrors.NewWithReason(dErrors.CodePolicy, ReasonYearlyAmountMismatch, "yearly deposit must equal the total payable")
		}
	case id.PaymentModeMonthly:
		if account.InstallmentAmount <= 0 {
			return dErrors.NewWithReason(dErrors.CodeDefect, ReasonMissingInstallment, "monthly account has no installment amount configured")
		}
		if amount != account.InstallmentAmount {
			return dErrors.NewWithReason(dErrors.CodePolicy, ReasonMonthlyAmountMismatch, "deposit must equal the monthly installment")
		}
		if facts.MonthCount > 0 {
			if op == OpUpdate {
				return dErrors.NewWithReason(dErrors.CodePolicy, ReasonMonthlyMultiple, "month already holds another installment")
			}
			return dErrors.NewWithReason(dErrors.CodePolicy, ReasonMonthlyAlreadyPaid, "installment for this month is already recorded")
		}
	case id.PaymentModeDaily:
		if account.MonthlyTarget <= 0 {
			return dErrors.NewWithReason(dErrors.CodeDefect, ReasonMissingMonthlyTarget, "daily account has no monthly target configured")
		}
		if facts.MonthSum+amount > account.MonthlyTarget {
			return dErrors.NewWithReason(dErrors.CodePolicy, ReasonDailyTargetExceeded, "deposit would exceed the monthly collection target")
		}
	}
	return nil
}

// CheckDailyFirstOfDay is the batch pre-check: field collection visits each
// account once per day, so a second same-day deposit in a batch is rejected
// even though the single-deposit path would admit it under the monthly cap.
func CheckDailyFirstOfDay(account *accmodels.Account, dayCount int64) error {
	if account.Scheme == id.PaymentModeDaily && dayCount > 0 {
		return dErrors.NewWithReason(dErrors.CodePolicy, ReasonDailyAlreadyCollected, "account already has a collection today")
	}
	return nil
}

// CheckPeriodFree reports whether the account's current collection period
// already holds a deposit: today for daily accounts, the calendar month for
// monthly accounts, and the whole lifetime for yearly ones. The batch path
// and the eligible-accounts listing both run it before the full pipeline.
func CheckPeriodFree(account *accmodels.Account, facts SchemeFacts, dayCount int64) error {
	switch account.Scheme {
	case id.PaymentModeDaily:
		return CheckDailyFirstOfDay(account, dayCount)
	case id.PaymentModeMonthly:
		if facts.MonthCount > 0 {
			return dErrors.NewWithReason(dErrors.CodePolicy, ReasonMonthlyAlreadyPaid, "installment for this month is already recorded")
		}
	case id.PaymentModeYearly:
		if facts.LifetimeCount > 0 {
			return dErrors.NewWithReason(dErrors.CodePolicy, ReasonYearlyAlreadyPaid, "yearly account is already paid")
		}
	}
	return nil
}

// CheckDeleteGuard rejects deletions that would erase a yearly account's
// single payment. The guard keys off the account's scheme: a yearly account
// holds exactly one deposit by construction, so any deletion on it empties
// the book.
func CheckDeleteGuard(account *accmodels.Account) error {
	if account.Scheme == id.PaymentModeYearly {
		return dErrors.NewWithReason(dErrors.CodePolicy, ReasonCannotDeleteYearly, "cannot delete the only deposit of a yearly account")
	}
	return nil
}

// CheckCollectedByMatch rejects corrections that misattribute the original
// collector.
func CheckCollectedByMatch(recordedCollector, claimed id.UserID) error {
	if recordedCollector != claimed {
		return dErrors.NewWithReason(dErrors.CodeValidation, ReasonCollectedByMismatch, "collected_by does not match the recorded collector")
	}
	return nil
}
