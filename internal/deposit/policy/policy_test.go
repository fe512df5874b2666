package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accmodels "khata/internal/account/models"
	"khata/internal/scope"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
)

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return loc
}

func requireRejection(t *testing.T, err error, code dErrors.Code, reason string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, dErrors.CodeOf(err))
	assert.Equal(t, reason, dErrors.ReasonOf(err))
}

func dailyAccount() *accmodels.Account {
	return &accmodels.Account{
		ID:            id.NewAccountID(),
		ClientID:      id.NewUserID(),
		AgentID:       id.NewUserID(),
		Scheme:        id.PaymentModeDaily,
		TotalPayable:  120_000_00,
		MonthlyTarget: 10_000_00,
		Status:        accmodels.StatusActive,
		MaturityDate:  time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func monthlyAccount() *accmodels.Account {
	a := dailyAccount()
	a.Scheme = id.PaymentModeMonthly
	a.MonthlyTarget = 0
	a.InstallmentAmount = 5_000_00
	a.TotalPayable = 60_000_00
	return a
}

func yearlyAccount() *accmodels.Account {
	a := dailyAccount()
	a.Scheme = id.PaymentModeYearly
	a.MonthlyTarget = 0
	a.YearlyAmount = 50_000_00
	a.TotalPayable = 50_000_00
	return a
}

func TestCheckAmount(t *testing.T) {
	assert.NoError(t, CheckAmount(1))
	requireRejection(t, CheckAmount(0), dErrors.CodeValidation, ReasonInvalidAmount)
	requireRejection(t, CheckAmount(-500), dErrors.CodeValidation, ReasonInvalidAmount)
}

func TestParseDate(t *testing.T) {
	loc := kolkata(t)
	// 2026-08-25 20:00 UTC is already 2026-08-26 in Kolkata.
	now := time.Date(2026, 8, 25, 20, 0, 0, 0, time.UTC)

	t.Run("valid past date", func(t *testing.T) {
		day, err := ParseDate("2026-08-20", now, loc)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), day)
	})

	t.Run("business today is allowed even past UTC midnight", func(t *testing.T) {
		day, err := ParseDate("2026-08-26", now, loc)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), day)
	})

	t.Run("tomorrow is rejected", func(t *testing.T) {
		_, err := ParseDate("2026-08-27", now, loc)
		requireRejection(t, err, dErrors.CodeValidation, ReasonInvalidDate)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		for _, raw := range []string{"", "26-08-2026", "2026/08/25", "2026-13-01", "yesterday"} {
			_, err := ParseDate(raw, now, loc)
			requireRejection(t, err, dErrors.CodeValidation, ReasonInvalidDate)
		}
	})
}

func TestRoleChecks(t *testing.T) {
	for _, role := range []id.Role{id.RoleAgent, id.RoleManager, id.RoleAdmin} {
		assert.NoError(t, CheckCollectRole(role), role)
	}
	requireRejection(t, CheckCollectRole(id.RoleClient), dErrors.CodeForbidden, ReasonRoleNotAllowed)

	assert.NoError(t, CheckCorrectRole(id.RoleAdmin))
	for _, role := range []id.Role{id.RoleAgent, id.RoleManager, id.RoleClient} {
		requireRejection(t, CheckCorrectRole(role), dErrors.CodeForbidden, ReasonRoleNotAllowed)
	}

	assert.NoError(t, CheckSheetRole(id.RoleAgent))
	for _, role := range []id.Role{id.RoleManager, id.RoleAdmin, id.RoleClient} {
		requireRejection(t, CheckSheetRole(role), dErrors.CodeForbidden, ReasonRoleNotAllowed)
	}
}

func TestCheckClientMatch(t *testing.T) {
	account := dailyAccount()
	assert.NoError(t, CheckClientMatch(account, account.ClientID))
	requireRejection(t, CheckClientMatch(account, id.NewUserID()), dErrors.CodeValidation, ReasonUserAccountMismatch)
}

func TestCheckScope(t *testing.T) {
	account := dailyAccount()

	t.Run("admin is unbounded", func(t *testing.T) {
		assert.NoError(t, CheckScope(id.RoleAdmin, scope.Scope{Unbounded: true}, account))
	})

	t.Run("covering agent passes", func(t *testing.T) {
		callerScope := scope.Scope{AgentIDs: []id.UserID{account.AgentID}}
		assert.NoError(t, CheckScope(id.RoleAgent, callerScope, account))
	})

	t.Run("foreign agent gets the agent reason", func(t *testing.T) {
		callerScope := scope.Scope{AgentIDs: []id.UserID{id.NewUserID()}}
		requireRejection(t, CheckScope(id.RoleAgent, callerScope, account),
			dErrors.CodeForbidden, ReasonAgentScopeViolation)
	})

	t.Run("manager outside their team gets the manager reason", func(t *testing.T) {
		callerScope := scope.Scope{AgentIDs: []id.UserID{id.NewUserID()}}
		requireRejection(t, CheckScope(id.RoleManager, callerScope, account),
			dErrors.CodeForbidden, ReasonManagerScopeViolation)
	})
}

func TestCheckMaturity(t *testing.T) {
	account := dailyAccount()

	assert.NoError(t, CheckMaturity(account, account.MaturityDate.Add(-time.Hour)))
	requireRejection(t, CheckMaturity(account, account.MaturityDate), dErrors.CodePolicy, ReasonAccountMatured)

	marked := dailyAccount()
	marked.Status = accmodels.StatusMatured
	requireRejection(t, CheckMaturity(marked, marked.MaturityDate.Add(-time.Hour)),
		dErrors.CodePolicy, ReasonAccountMatured)
}

func TestCheckCeiling(t *testing.T) {
	account := dailyAccount()

	assert.NoError(t, CheckCeiling(account, 119_000_00, 1_000_00), "exactly reaching the total is allowed")
	requireRejection(t, CheckCeiling(account, 119_000_00, 1_000_01), dErrors.CodePolicy, ReasonTotalPayableExceeded)

	broken := dailyAccount()
	broken.TotalPayable = 0
	requireRejection(t, CheckCeiling(broken, 0, 100), dErrors.CodeDefect, ReasonMissingTotalPayable)
}

func TestCheckSchemeYearly(t *testing.T) {
	account := yearlyAccount()

	assert.NoError(t, CheckScheme(account, 50_000_00, SchemeFacts{}, OpCreate))

	requireRejection(t, CheckScheme(account, 50_000_00, SchemeFacts{LifetimeCount: 1}, OpCreate),
		dErrors.CodePolicy, ReasonYearlyAlreadyPaid)
	requireRejection(t, CheckScheme(account, 49_999_99, SchemeFacts{}, OpCreate),
		dErrors.CodePolicy, ReasonYearlyAmountMismatch)
}

func TestCheckSchemeMonthly(t *testing.T) {
	account := monthlyAccount()

	assert.NoError(t, CheckScheme(account, 5_000_00, SchemeFacts{}, OpCreate))

	requireRejection(t, CheckScheme(account, 4_000_00, SchemeFacts{}, OpCreate),
		dErrors.CodePolicy, ReasonMonthlyAmountMismatch)
	requireRejection(t, CheckScheme(account, 5_000_00, SchemeFacts{MonthCount: 1}, OpCreate),
		dErrors.CodePolicy, ReasonMonthlyAlreadyPaid)
	requireRejection(t, CheckScheme(account, 5_000_00, SchemeFacts{MonthCount: 1}, OpUpdate),
		dErrors.CodePolicy, ReasonMonthlyMultiple)

	broken := monthlyAccount()
	broken.InstallmentAmount = 0
	requireRejection(t, CheckScheme(broken, 5_000_00, SchemeFacts{}, OpCreate),
		dErrors.CodeDefect, ReasonMissingInstallment)
}

func TestCheckSchemeDaily(t *testing.T) {
	account := dailyAccount()

	assert.NoError(t, CheckScheme(account, 400_00, SchemeFacts{MonthSum: 9_600_00}, OpCreate),
		"exactly reaching the target is allowed")
	requireRejection(t, CheckScheme(account, 400_01, SchemeFacts{MonthSum: 9_600_00}, OpCreate),
		dErrors.CodePolicy, ReasonDailyTargetExceeded)

	broken := dailyAccount()
	broken.MonthlyTarget = 0
	requireRejection(t, CheckScheme(broken, 100, SchemeFacts{}, OpCreate),
		dErrors.CodeDefect, ReasonMissingMonthlyTarget)
}

func TestCheckDailyFirstOfDay(t *testing.T) {
	daily := dailyAccount()
	assert.NoError(t, CheckDailyFirstOfDay(daily, 0))
	requireRejection(t, CheckDailyFirstOfDay(daily, 1), dErrors.CodePolicy, ReasonDailyAlreadyCollected)

	// The once-per-day rule is a field-collection convention for daily books
	// only; other schemes enforce their own period rules.
	assert.NoError(t, CheckDailyFirstOfDay(monthlyAccount(), 3))
}

func TestCheckPeriodFree(t *testing.T) {
	t.Run("daily keys off today's count", func(t *testing.T) {
		daily := dailyAccount()
		assert.NoError(t, CheckPeriodFree(daily, SchemeFacts{MonthCount: 5, MonthSum: 2_500_00}, 0))
		requireRejection(t, CheckPeriodFree(daily, SchemeFacts{}, 1), dErrors.CodePolicy, ReasonDailyAlreadyCollected)
	})

	t.Run("monthly keys off the month", func(t *testing.T) {
		monthly := monthlyAccount()
		assert.NoError(t, CheckPeriodFree(monthly, SchemeFacts{LifetimeCount: 7}, 0))
		requireRejection(t, CheckPeriodFree(monthly, SchemeFacts{MonthCount: 1, LifetimeCount: 7}, 0),
			dErrors.CodePolicy, ReasonMonthlyAlreadyPaid)
	})

	t.Run("yearly keys off the lifetime", func(t *testing.T) {
		yearly := yearlyAccount()
		assert.NoError(t, CheckPeriodFree(yearly, SchemeFacts{}, 0))
		requireRejection(t, CheckPeriodFree(yearly, SchemeFacts{LifetimeCount: 1}, 0),
			dErrors.CodePolicy, ReasonYearlyAlreadyPaid)
	})
}

func TestCheckDeleteGuard(t *testing.T) {
	assert.NoError(t, CheckDeleteGuard(dailyAccount()))
	assert.NoError(t, CheckDeleteGuard(monthlyAccount()))
	requireRejection(t, CheckDeleteGuard(yearlyAccount()), dErrors.CodePolicy, ReasonCannotDeleteYearly)
}

func TestCheckCollectedByMatch(t *testing.T) {
	collector := id.NewUserID()
	assert.NoError(t, CheckCollectedByMatch(collector, collector))
	requireRejection(t, CheckCollectedByMatch(collector, id.NewUserID()),
		dErrors.CodeValidation, ReasonCollectedByMismatch)
}

func TestNotFoundHelpers(t *testing.T) {
	requireRejection(t, AccountNotFound(), dErrors.CodeNotFound, ReasonAccountNotFound)
	requireRejection(t, DepositNotFound(), dErrors.CodeNotFound, ReasonDepositNotFound)
}
