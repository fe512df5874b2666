package service

import (
	"context"

	accmodels "khata/internal/account/models"
	"khata/internal/deposit/policy"
	dirmodels "khata/internal/directory/models"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	audit "khata/pkg/platform/audit"
	"khata/pkg/requestcontext"
)

func (s *DepositServiceSuite) TestBulkCreate() {
	dailyA := s.openDaily()
	dailyB := s.openDaily()
	dailyC := s.openDaily()
	monthly := s.openMonthly()
	_, err := s.svc.Create(s.as(s.agentID, id.RoleAgent), CreateParams{AccountID: monthly.ID, Amount: 5_000_00})
	s.Require().NoError(err)

	createdBefore := len(s.eventsByAction(audit.EventDepositCreated))
	agent := s.agentID.String()

	result, err := s.svc.BulkCreate(s.as(s.agentID, id.RoleAgent), []BulkItem{
		{AccountID: dailyA.ID.String(), Amount: 100_00, CollectedBy: agent},
		{AccountID: dailyA.ID.String(), Amount: 200_00, CollectedBy: agent},
		{AccountID: dailyB.ID.String(), Amount: 150_00, CollectedBy: agent},
		{AccountID: dailyB.ID.String(), Amount: 50_00, CollectedBy: s.managerID.String()},
		{AccountID: monthly.ID.String(), Amount: 5_000_00, CollectedBy: agent},
		{AccountID: dailyC.ID.String(), Amount: 20_000_00, CollectedBy: agent},
		{AccountID: "not-an-account-id", Amount: 100_00, CollectedBy: agent},
	})
	s.Require().NoError(err)

	s.Equal(7, result.Total)
	s.Equal(2, result.SuccessCount)
	s.Equal(5, result.FailedCount)
	s.Require().Len(result.Items, 7)

	s.Run("outcomes keep input order", func() {
		s.Require().NotNil(result.Items[0].Receipt)
		s.Equal(int64(100_00), result.Items[0].Receipt.Deposit.Amount)
		s.Require().NotNil(result.Items[2].Receipt)
		s.Equal(int64(150_00), result.Items[2].Receipt.Deposit.Amount)
	})

	s.Run("a second visit to the same account fails behind the first", func() {
		s.Equal(policy.ReasonDailyAlreadyCollected, dErrors.ReasonOf(result.Items[1].Err))
		s.Equal(int64(100_00), s.storedAccount(dailyA.ID).Balance)
	})

	s.Run("the collector on the sheet must be the caller", func() {
		s.Equal(policy.ReasonCollectedByMismatch, dErrors.ReasonOf(result.Items[3].Err))
	})

	s.Run("the friendly guard answers for an already paid month", func() {
		s.Equal(policy.ReasonMonthlyAlreadyPaid, dErrors.ReasonOf(result.Items[4].Err))
	})

	s.Run("pipeline rejections pass through with their own reason", func() {
		s.Equal(policy.ReasonDailyTargetExceeded, dErrors.ReasonOf(result.Items[5].Err))
	})

	s.Run("a malformed account id fails its row alone", func() {
		s.Error(result.Items[6].Err)
	})

	s.Run("the histogram tallies failures by message", func() {
		s.Len(result.FailureSummary, 5)
		s.Equal(1, result.FailureSummary["account already has a collection today"])
		s.Equal(1, result.FailureSummary["installment for this month is already recorded"])
		s.Equal(1, result.FailureSummary["collected_by does not match the recorded collector"])
		s.Equal(1, result.FailureSummary["deposit would exceed the monthly collection target"])
	})

	s.Run("only pipeline outcomes reach the audit book", func() {
		s.Len(s.eventsByAction(audit.EventDepositCreated), createdBefore+2)
		s.Len(s.eventsByAction(audit.EventDepositCreateFailed), 1)

		batch := s.lastEvent(audit.EventBulkDepositsCreated)
		s.Equal(7, batch.Details["total"])
		s.Equal(2, batch.Details["success_count"])
		s.Equal(5, batch.Details["failed_count"])
	})
}

func (s *DepositServiceSuite) TestBulkCreateAuthority() {
	account := s.openDaily()
	item := BulkItem{AccountID: account.ID.String(), Amount: 100_00, CollectedBy: s.clientID.String()}

	s.Run("clients cannot submit a sheet", func() {
		_, err := s.svc.BulkCreate(s.as(s.clientID, id.RoleClient), []BulkItem{item})
		s.requireRejection(err, dErrors.CodeForbidden, policy.ReasonRoleNotAllowed)
	})

	s.Run("sheets are the agent's instrument", func() {
		_, err := s.svc.BulkCreate(s.as(s.managerID, id.RoleManager), []BulkItem{item})
		s.requireRejection(err, dErrors.CodeForbidden, policy.ReasonRoleNotAllowed)

		_, err = s.svc.BulkCreate(s.as(s.adminID, id.RoleAdmin), []BulkItem{item})
		s.requireRejection(err, dErrors.CodeForbidden, policy.ReasonRoleNotAllowed)
	})

	s.Run("an empty sheet is rejected", func() {
		_, err := s.svc.BulkCreate(s.as(s.agentID, id.RoleAgent), nil)
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Empty(s.eventsByAction(audit.EventBulkDepositsCreated))
}

func (s *DepositServiceSuite) TestBulkCreateSpansSubBatches() {
	items := make([]BulkItem, 0, 12)
	for i := 0; i < 12; i++ {
		account := s.openDaily()
		items = append(items, BulkItem{
			AccountID:   account.ID.String(),
			Amount:      100_00,
			CollectedBy: s.agentID.String(),
		})
	}

	result, err := s.svc.BulkCreate(s.as(s.agentID, id.RoleAgent), items)
	s.Require().NoError(err)
	s.Equal(12, result.Total)
	s.Equal(12, result.SuccessCount)
	for i, outcome := range result.Items {
		s.Require().NoError(outcome.Err, "item %d", i)
		s.Equal(items[i].AccountID, outcome.AccountID)
	}
}

func (s *DepositServiceSuite) TestEligibleAccounts() {
	dailyFresh := s.openDaily()
	dailyVisited := s.openDaily()
	monthlyDue := s.openMonthly()
	monthlyPaid := s.openMonthly()
	yearlyOpen := s.openYearly()
	yearlyPaid := s.openYearly()

	matured := s.openDaily()
	maturedStored := s.storedAccount(matured.ID)
	maturedStored.MarkMatured(s.now)
	s.Require().NoError(s.accounts.Save(context.Background(), maturedStored))

	foreign, err := accmodels.NewAccount(id.NewAccountID(), s.clientID, s.outsiderID,
		id.PaymentModeDaily, 120_000_00, accmodels.SchemeConfig{MonthlyTarget: 10_000_00}, 12, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.accounts.Create(context.Background(), foreign))

	ctx := s.as(s.agentID, id.RoleAgent)
	for _, params := range []CreateParams{
		{AccountID: dailyVisited.ID, Amount: 100_00},
		{AccountID: monthlyPaid.ID, Amount: 5_000_00},
		{AccountID: yearlyPaid.ID, Amount: 50_000_00},
	} {
		_, err := s.svc.Create(ctx, params)
		s.Require().NoError(err)
	}

	byAccount := func(entries []EligibleAccount) map[id.AccountID]EligibleAccount {
		out := make(map[id.AccountID]EligibleAccount, len(entries))
		for _, entry := range entries {
			out[entry.Account.ID] = entry
		}
		return out
	}

	s.Run("an agent sees their open books with a free period", func() {
		entries, err := s.svc.EligibleAccounts(ctx)
		s.Require().NoError(err)
		listed := byAccount(entries)
		s.Require().Len(listed, 3)

		s.Equal(int64(120_000_00), listed[dailyFresh.ID].Remaining)
		s.Equal(int64(60_000_00), listed[monthlyDue.ID].Remaining)
		s.Equal(int64(5_000_00), listed[monthlyDue.ID].ExpectedInstallment)
		s.Zero(listed[yearlyOpen.ID].ExpectedInstallment)
	})

	s.Run("a manager sees their team's books", func() {
		entries, err := s.svc.EligibleAccounts(s.as(s.managerID, id.RoleManager))
		s.Require().NoError(err)
		s.Len(entries, 3)
	})

	s.Run("an admin sees every agent's books", func() {
		entries, err := s.svc.EligibleAccounts(s.as(s.adminID, id.RoleAdmin))
		s.Require().NoError(err)
		listed := byAccount(entries)
		s.Len(listed, 4)
		s.Contains(listed, foreign.ID)
	})

	s.Run("a teamless manager gets an empty worklist", func() {
		loner, err := dirmodels.NewUser(id.NewUserID(), "loner-manager", id.RoleManager, s.now)
		s.Require().NoError(err)
		s.Require().NoError(s.directory.Create(context.Background(), loner))

		entries, listErr := s.svc.EligibleAccounts(s.as(loner.ID, id.RoleManager))
		s.Require().NoError(listErr)
		s.NotNil(entries)
		s.Empty(entries)
	})

	s.Run("clients are refused", func() {
		_, err := s.svc.EligibleAccounts(s.as(s.clientID, id.RoleClient))
		s.requireRejection(err, dErrors.CodeForbidden, policy.ReasonRoleNotAllowed)
	})

	s.Run("a new period frees the visited books", func() {
		entries, err := s.svc.EligibleAccounts(s.asAt(s.agentID, id.RoleAgent, s.now.AddDate(0, 1, 0)))
		s.Require().NoError(err)
		s.Len(entries, 5)
	})
}

func (s *DepositServiceSuite) TestRepairDrift() {
	account := s.openDaily()
	ctx := s.as(s.agentID, id.RoleAgent)
	for _, amount := range []int64{300_00, 200_00} {
		_, err := s.svc.Create(ctx, CreateParams{AccountID: account.ID, Amount: amount})
		s.Require().NoError(err)
	}

	corrupted := s.storedAccount(account.ID)
	corrupted.Balance = 9_999_00
	corrupted.Status = accmodels.StatusOnTrack
	s.Require().NoError(s.accounts.Save(context.Background(), corrupted))

	sweepCtx := requestcontext.WithTime(context.Background(), s.now)

	s.Run("drifted figures are re-derived from history", func() {
		repaired, err := s.svc.RepairDrift(sweepCtx)
		s.Require().NoError(err)
		s.Equal(1, repaired)

		stored := s.storedAccount(account.ID)
		s.Equal(int64(500_00), stored.Balance)
		s.Equal(accmodels.StatusPending, stored.Status)

		event := s.lastEvent(audit.EventLedgerDriftRepaired)
		s.Equal(account.ID, event.AccountID)
		s.Equal(int64(9_999_00), event.Details["old_balance"])
		s.Equal(int64(500_00), event.Details["new_balance"])
	})

	s.Run("a clean ledger is left alone", func() {
		repaired, err := s.svc.RepairDrift(sweepCtx)
		s.Require().NoError(err)
		s.Zero(repaired)
		s.Len(s.eventsByAction(audit.EventLedgerDriftRepaired), 1)
	})
}
