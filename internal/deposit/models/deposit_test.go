package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
)

func TestNewDeposit(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	t.Run("valid deposit", func(t *testing.T) {
		d, err := NewDeposit(id.NewDepositID(), id.NewAccountID(), id.NewUserID(), id.NewUserID(),
			250_00, day, id.PaymentModeDaily, now)
		require.NoError(t, err)
		assert.Equal(t, int64(250_00), d.Amount)
		assert.Equal(t, day, d.DepositDate)
		assert.Equal(t, now, d.CreatedAt)
	})

	t.Run("missing references are rejected", func(t *testing.T) {
		_, err := NewDeposit(id.NewDepositID(), id.AccountID{}, id.NewUserID(), id.NewUserID(),
			250_00, day, id.PaymentModeDaily, now)
		assert.Equal(t, dErrors.CodeValidation, dErrors.CodeOf(err))

		_, err = NewDeposit(id.NewDepositID(), id.NewAccountID(), id.UserID{}, id.NewUserID(),
			250_00, day, id.PaymentModeDaily, now)
		assert.Equal(t, dErrors.CodeValidation, dErrors.CodeOf(err))
	})
}

// TestDepositWireDate pins the date-only JSON form: an instant goes out as a
// calendar day and comes back as that day's UTC midnight.
func TestDepositWireDate(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	d, err := NewDeposit(id.NewDepositID(), id.NewAccountID(), id.NewUserID(), id.NewUserID(),
		250_00, time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), id.PaymentModeDaily, now)
	require.NoError(t, err)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"deposit_date":"2026-03-03"`)

	var decoded Deposit
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.DepositDate.Equal(d.DepositDate))
	assert.Equal(t, d.Amount, decoded.Amount)
}
