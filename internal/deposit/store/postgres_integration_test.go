//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	accmodels "khata/internal/account/models"
	accstore "khata/internal/account/store"
	"khata/internal/deposit/models"
	"khata/internal/deposit/store"
	id "khata/pkg/domain"
	"khata/pkg/platform/period"
	"khata/pkg/platform/sentinel"
	"khata/pkg/platform/tx"
	"khata/pkg/testutil/containers"
)

type PostgresDepositSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	accounts *accstore.Postgres
	account  *accmodels.Account
}

func TestPostgresDepositSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresDepositSuite))
}

func (s *PostgresDepositSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.accounts = accstore.NewPostgres(s.postgres.DB)
}

// SetupTest resets the tables and plants the parent account the foreign key
// requires.
func (s *PostgresDepositSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "deposits", "accounts")
	s.Require().NoError(err)

	account, err := accmodels.NewAccount(id.NewAccountID(), id.NewUserID(), id.NewUserID(),
		id.PaymentModeDaily, 120_000_00, accmodels.SchemeConfig{MonthlyTarget: 10_000_00}, 12,
		time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	s.Require().NoError(s.accounts.Create(ctx, account))
	s.account = account
}

func (s *PostgresDepositSuite) newDeposit(amount int64, day time.Time, recordedAt time.Time) *models.Deposit {
	deposit, err := models.NewDeposit(id.NewDepositID(), s.account.ID, s.account.ClientID,
		s.account.AgentID, amount, day, s.account.Scheme, recordedAt)
	s.Require().NoError(err)
	return deposit
}

func utcDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TestRoundTrip verifies deposits survive a write and read unchanged.
func (s *PostgresDepositSuite) TestRoundTrip() {
	ctx := context.Background()

	deposit := s.newDeposit(500_00, utcDay(2026, 6, 3), time.Date(2026, 6, 3, 11, 0, 0, 0, time.UTC))
	s.Require().NoError(s.store.Insert(ctx, deposit))

	found, err := s.store.FindByID(ctx, deposit.ID)
	s.Require().NoError(err)
	s.Equal(deposit.ID, found.ID)
	s.Equal(s.account.ID, found.AccountID)
	s.Equal(s.account.ClientID, found.ClientID)
	s.Equal(s.account.AgentID, found.AgentID)
	s.Equal(int64(500_00), found.Amount)
	s.Equal(id.PaymentModeDaily, found.Scheme)
	s.True(found.DepositDate.Equal(utcDay(2026, 6, 3)), "date survives as the same instant")
}

// TestDuplicateID verifies the primary key maps to ErrDuplicate.
func (s *PostgresDepositSuite) TestDuplicateID() {
	ctx := context.Background()

	deposit := s.newDeposit(500_00, utcDay(2026, 6, 3), time.Now())
	s.Require().NoError(s.store.Insert(ctx, deposit))
	s.ErrorIs(s.store.Insert(ctx, deposit), sentinel.ErrDuplicate)
}

// TestUpdateAndDelete verifies corrections and removals against real rows.
func (s *PostgresDepositSuite) TestUpdateAndDelete() {
	ctx := context.Background()

	deposit := s.newDeposit(500_00, utcDay(2026, 6, 3), time.Now())
	s.Require().NoError(s.store.Insert(ctx, deposit))

	s.Run("update rewrites amount and date", func() {
		deposit.Amount = 750_00
		deposit.DepositDate = utcDay(2026, 6, 4)
		deposit.UpdatedAt = time.Now()
		s.Require().NoError(s.store.Update(ctx, deposit))

		found, err := s.store.FindByID(ctx, deposit.ID)
		s.Require().NoError(err)
		s.Equal(int64(750_00), found.Amount)
		s.True(found.DepositDate.Equal(utcDay(2026, 6, 4)))
	})

	s.Run("updating unknown deposit returns ErrNotFound", func() {
		ghost := s.newDeposit(100_00, utcDay(2026, 6, 5), time.Now())
		s.ErrorIs(s.store.Update(ctx, ghost), sentinel.ErrNotFound)
	})

	s.Run("delete removes the row", func() {
		s.Require().NoError(s.store.Delete(ctx, deposit.ID))
		_, err := s.store.FindByID(ctx, deposit.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)

		s.ErrorIs(s.store.Delete(ctx, deposit.ID), sentinel.ErrNotFound)
	})
}

// TestAggregates verifies the SQL behind the ledger derivation: full-history
// balance, period windows and the exclude-under-edit clause.
func (s *PostgresDepositSuite) TestAggregates() {
	ctx := context.Background()
	recordedAt := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)

	may := s.newDeposit(300_00, utcDay(2026, 5, 28), recordedAt)
	early := s.newDeposit(400_00, utcDay(2026, 6, 3), recordedAt)
	late := s.newDeposit(500_00, utcDay(2026, 6, 3), recordedAt.Add(time.Hour))
	for _, d := range []*models.Deposit{may, early, late} {
		s.Require().NoError(s.store.Insert(ctx, d))
	}

	s.Run("list orders by date then recording time", func() {
		history, err := s.store.ListByAccount(ctx, s.account.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 3)
		s.Equal(may.ID, history[0].ID)
		s.Equal(early.ID, history[1].ID)
		s.Equal(late.ID, history[2].ID)
	})

	s.Run("whole history", func() {
		sum, err := s.store.SumByAccount(ctx, s.account.ID, store.Filter{})
		s.Require().NoError(err)
		s.Equal(int64(1_200_00), sum)

		count, err := s.store.CountByAccount(ctx, s.account.ID, store.Filter{})
		s.Require().NoError(err)
		s.Equal(int64(3), count)
	})

	s.Run("month window", func() {
		june := period.Month(utcDay(2026, 6, 15), time.UTC)
		sum, err := s.store.SumByAccount(ctx, s.account.ID, store.Filter{Window: &june})
		s.Require().NoError(err)
		s.Equal(int64(900_00), sum)
	})

	s.Run("day window", func() {
		third := period.Day(utcDay(2026, 6, 3), time.UTC)
		count, err := s.store.CountByAccount(ctx, s.account.ID, store.Filter{Window: &third})
		s.Require().NoError(err)
		s.Equal(int64(2), count)
	})

	s.Run("excluding the record under edit", func() {
		june := period.Month(utcDay(2026, 6, 15), time.UTC)
		sum, err := s.store.SumByAccount(ctx, s.account.ID, store.Filter{Window: &june, Exclude: early.ID})
		s.Require().NoError(err)
		s.Equal(int64(500_00), sum)
	})

	s.Run("unknown account sums to zero", func() {
		sum, err := s.store.SumByAccount(ctx, id.NewAccountID(), store.Filter{})
		s.Require().NoError(err)
		s.Zero(sum)
	})
}

// TestJoinsCallerTransaction verifies writes issued under a context-carried
// transaction vanish with its rollback.
func (s *PostgresDepositSuite) TestJoinsCallerTransaction() {
	ctx := context.Background()

	dbTx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	txCtx := tx.WithTx(ctx, dbTx)

	deposit := s.newDeposit(500_00, utcDay(2026, 6, 3), time.Now())
	s.Require().NoError(s.store.Insert(txCtx, deposit))

	inside, err := s.store.SumByAccount(txCtx, s.account.ID, store.Filter{})
	s.Require().NoError(err)
	s.Equal(int64(500_00), inside, "the transaction sees its own insert")

	s.Require().NoError(dbTx.Rollback())

	_, err = s.store.FindByID(ctx, deposit.ID)
	s.ErrorIs(err, sentinel.ErrNotFound, "rollback discards the insert")
}
