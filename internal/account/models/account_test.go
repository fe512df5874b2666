package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
)

var (
	clientID = id.NewUserID()
	agentID  = id.NewUserID()
	openedAt = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
)

func TestNewAccount(t *testing.T) {
	t.Run("daily account", func(t *testing.T) {
		a, err := NewAccount(id.NewAccountID(), clientID, agentID, id.PaymentModeDaily,
			120_000_00, SchemeConfig{MonthlyTarget: 10_000_00}, 12, openedAt)
		require.NoError(t, err)

		assert.Equal(t, StatusInactive, a.Status)
		assert.Equal(t, int64(10_000_00), a.MonthlyTarget)
		assert.Zero(t, a.InstallmentAmount)
		assert.Zero(t, a.Balance)
		assert.False(t, a.FullyPaid)
		assert.Equal(t, int64(1), a.Version)
		assert.Equal(t, openedAt.AddDate(0, 12, 0), a.MaturityDate)
	})

	t.Run("monthly account", func(t *testing.T) {
		a, err := NewAccount(id.NewAccountID(), clientID, agentID, id.PaymentModeMonthly,
			60_000_00, SchemeConfig{InstallmentAmount: 5_000_00}, 12, openedAt)
		require.NoError(t, err)

		assert.Equal(t, int64(5_000_00), a.InstallmentAmount)
		assert.Zero(t, a.MonthlyTarget)
	})

	t.Run("yearly account", func(t *testing.T) {
		a, err := NewAccount(id.NewAccountID(), clientID, agentID, id.PaymentModeYearly,
			50_000_00, SchemeConfig{YearlyAmount: 50_000_00}, 12, openedAt)
		require.NoError(t, err)
		assert.Equal(t, a.TotalPayable, a.YearlyAmount)
	})

	t.Run("validation failures", func(t *testing.T) {
		cases := []struct {
			name   string
			scheme id.PaymentMode
			total  int64
			cfg    SchemeConfig
			term   int
		}{
			{"zero total payable", id.PaymentModeDaily, 0, SchemeConfig{MonthlyTarget: 100}, 12},
			{"negative total payable", id.PaymentModeDaily, -1, SchemeConfig{MonthlyTarget: 100}, 12},
			{"zero term", id.PaymentModeDaily, 1000, SchemeConfig{MonthlyTarget: 100}, 0},
			{"invalid scheme", id.PaymentMode("Weekly"), 1000, SchemeConfig{}, 12},
			{"daily without monthly target", id.PaymentModeDaily, 1000, SchemeConfig{}, 12},
			{"monthly without installment", id.PaymentModeMonthly, 1000, SchemeConfig{}, 12},
			{"yearly amount below total", id.PaymentModeYearly, 1000, SchemeConfig{YearlyAmount: 999}, 12},
			{"yearly amount above total", id.PaymentModeYearly, 1000, SchemeConfig{YearlyAmount: 1001}, 12},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := NewAccount(id.NewAccountID(), clientID, agentID, tc.scheme, tc.total, tc.cfg, tc.term, openedAt)
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			})
		}
	})

	t.Run("missing parties", func(t *testing.T) {
		_, err := NewAccount(id.NewAccountID(), id.UserID{}, agentID, id.PaymentModeDaily,
			1000, SchemeConfig{MonthlyTarget: 100}, 12, openedAt)
		require.Error(t, err)

		_, err = NewAccount(id.NewAccountID(), clientID, id.UserID{}, id.PaymentModeDaily,
			1000, SchemeConfig{MonthlyTarget: 100}, 12, openedAt)
		require.Error(t, err)
	})
}

func TestMaturity(t *testing.T) {
	a, err := NewAccount(id.NewAccountID(), clientID, agentID, id.PaymentModeDaily,
		120_000_00, SchemeConfig{MonthlyTarget: 10_000_00}, 12, openedAt)
	require.NoError(t, err)

	assert.False(t, a.MaturityReached(openedAt.AddDate(0, 11, 29)))
	assert.True(t, a.MaturityReached(a.MaturityDate))
	assert.True(t, a.MaturityReached(a.MaturityDate.Add(time.Hour)))
	assert.False(t, a.IsMatured())

	a.MarkMatured(a.MaturityDate)
	assert.True(t, a.IsMatured())
	assert.Equal(t, StatusMatured, a.Status)
}

func TestRemaining(t *testing.T) {
	a := &Account{TotalPayable: 1000, Balance: 400}
	assert.Equal(t, int64(600), a.Remaining())

	a.Balance = 1000
	assert.Zero(t, a.Remaining())
}

func TestDeriveStatus(t *testing.T) {
	daily := func(status Status) *Account {
		return &Account{Scheme: id.PaymentModeDaily, TotalPayable: 120_000_00, MonthlyTarget: 10_000_00, Status: status}
	}
	monthly := func(status Status) *Account {
		return &Account{Scheme: id.PaymentModeMonthly, TotalPayable: 60_000_00, InstallmentAmount: 5_000_00, Status: status}
	}
	yearly := func(status Status) *Account {
		return &Account{Scheme: id.PaymentModeYearly, TotalPayable: 50_000_00, YearlyAmount: 50_000_00, Status: status}
	}

	cases := []struct {
		name    string
		account *Account
		facts   LedgerFacts
		want    Status
	}{
		{"matured is sticky", daily(StatusMatured), LedgerFacts{Balance: 10_000_00, DepositCount: 3, CollectedThisMonth: 10_000_00}, StatusMatured},
		{"fully paid is on track", daily(StatusActive), LedgerFacts{Balance: 120_000_00, DepositCount: 40}, StatusOnTrack},
		{"untouched account stays inactive", daily(StatusInactive), LedgerFacts{}, StatusInactive},

		{"daily target met", daily(StatusPending), LedgerFacts{Balance: 10_000_00, DepositCount: 5, CollectedThisMonth: 10_000_00, CountThisMonth: 5}, StatusOnTrack},
		{"daily partial month stays pending", daily(StatusPending), LedgerFacts{Balance: 4_000_00, DepositCount: 2, CollectedThisMonth: 4_000_00, CountThisMonth: 2}, StatusPending},
		{"daily nothing this month", daily(StatusOnTrack), LedgerFacts{Balance: 10_000_00, DepositCount: 5}, StatusPending},

		{"monthly installment activates the book", monthly(StatusInactive), LedgerFacts{Balance: 5_000_00, DepositCount: 1, CollectedThisMonth: 5_000_00, CountThisMonth: 1}, StatusActive},
		{"monthly mid-term installment is active not on track", monthly(StatusPending), LedgerFacts{Balance: 15_000_00, DepositCount: 3, CollectedThisMonth: 5_000_00, CountThisMonth: 1}, StatusActive},
		{"monthly missed this month with history", monthly(StatusActive), LedgerFacts{Balance: 10_000_00, DepositCount: 2}, StatusPending},
		{"monthly no history after activation", monthly(StatusPending), LedgerFacts{}, StatusPending},

		{"yearly unpaid", yearly(StatusPending), LedgerFacts{}, StatusPending},
		{"yearly paid", yearly(StatusPending), LedgerFacts{Balance: 50_000_00, DepositCount: 1}, StatusOnTrack},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.account.DeriveStatus(tc.facts))
		})
	}
}
