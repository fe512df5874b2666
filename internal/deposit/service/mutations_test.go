package service

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	accmodels "khata/internal/account/models"
	"khata/internal/deposit/policy"
	"khata/internal/scope"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	audit "khata/pkg/platform/audit"
)

func (s *DepositServiceSuite) TestUpdate() {
	account := s.openDaily()
	receipt, err := s.svc.Create(s.as(s.agentID, id.RoleAgent), CreateParams{AccountID: account.ID, Amount: 500_00})
	s.Require().NoError(err)
	depositID := receipt.Deposit.ID

	admin := s.as(s.adminID, id.RoleAdmin)
	amount := func(v int64) *int64 { return &v }
	date := func(v string) *string { return &v }

	s.Run("only admins may correct", func() {
		for _, caller := range []struct {
			userID id.UserID
			role   id.Role
		}{
			{s.agentID, id.RoleAgent},
			{s.managerID, id.RoleManager},
		} {
			_, err := s.svc.Update(s.as(caller.userID, caller.role), UpdateParams{DepositID: depositID, Amount: amount(600_00)})
			s.requireRejection(err, dErrors.CodeForbidden, policy.ReasonRoleNotAllowed)
		}
		s.Equal(policy.ReasonRoleNotAllowed, s.lastEvent(audit.EventDepositUpdateFailed).Reason)
	})

	s.Run("a correction must name a field", func() {
		_, err := s.svc.Update(admin, UpdateParams{DepositID: depositID})
		s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
	})

	s.Run("an unknown deposit is not found", func() {
		_, err := s.svc.Update(admin, UpdateParams{DepositID: id.NewDepositID(), Amount: amount(600_00)})
		s.requireRejection(err, dErrors.CodeNotFound, policy.ReasonDepositNotFound)
	})

	s.Run("an amount correction re-derives the book", func() {
		updated, err := s.svc.Update(admin, UpdateParams{DepositID: depositID, Amount: amount(800_00)})
		s.Require().NoError(err)
		s.Equal(int64(800_00), updated.Deposit.Amount)
		s.Equal(int64(800_00), updated.Balance)
		s.Equal(int64(800_00), s.storedAccount(account.ID).Balance)

		event := s.lastEvent(audit.EventDepositUpdated)
		oldFields, ok := event.Details["old"].(map[string]any)
		s.Require().True(ok)
		newFields, ok := event.Details["new"].(map[string]any)
		s.Require().True(ok)
		s.Equal(int64(500_00), oldFields["amount"])
		s.Equal(int64(800_00), newFields["amount"])
	})

	s.Run("the ceiling applies to the corrected amount", func() {
		_, err := s.svc.Update(admin, UpdateParams{DepositID: depositID, Amount: amount(121_000_00)})
		s.requireRejection(err, dErrors.CodePolicy, policy.ReasonTotalPayableExceeded)
		s.Equal(int64(800_00), s.storedAccount(account.ID).Balance)
	})

	s.Run("a future date is rejected", func() {
		_, err := s.svc.Update(admin, UpdateParams{DepositID: depositID, Date: date("2026-03-11")})
		s.requireRejection(err, dErrors.CodeValidation, policy.ReasonInvalidDate)
	})

	s.Run("the collector can be corrected to another collector", func() {
		collector := s.managerID
		updated, err := s.svc.Update(admin, UpdateParams{DepositID: depositID, CollectedBy: &collector})
		s.Require().NoError(err)
		s.Equal(s.managerID, updated.Deposit.CollectedBy)
	})

	s.Run("the collector cannot be corrected to a non-collector", func() {
		for _, collector := range []id.UserID{s.clientID, id.NewUserID()} {
			_, err := s.svc.Update(admin, UpdateParams{DepositID: depositID, CollectedBy: &collector})
			s.requireRejection(err, dErrors.CodeValidation, policy.ReasonCollectedByMismatch)
		}
	})
}

func (s *DepositServiceSuite) TestUpdateMonthlyMoves() {
	account := s.openMonthly()
	_, err := s.svc.Create(s.as(s.agentID, id.RoleAgent), CreateParams{AccountID: account.ID, Amount: 5_000_00})
	s.Require().NoError(err)

	april := s.now.AddDate(0, 1, 0)
	aprilReceipt, err := s.svc.Create(s.asAt(s.agentID, id.RoleAgent, april), CreateParams{AccountID: account.ID, Amount: 5_000_00})
	s.Require().NoError(err)

	admin := s.asAt(s.adminID, id.RoleAdmin, april)
	amount := func(v int64) *int64 { return &v }
	date := func(v string) *string { return &v }

	s.Run("a wrong installment amount is rejected", func() {
		_, err := s.svc.Update(admin, UpdateParams{DepositID: aprilReceipt.Deposit.ID, Amount: amount(4_000_00)})
		s.requireRejection(err, dErrors.CodePolicy, policy.ReasonMonthlyAmountMismatch)
	})

	s.Run("moving into an occupied month is rejected", func() {
		_, err := s.svc.Update(admin, UpdateParams{DepositID: aprilReceipt.Deposit.ID, Date: date("2026-03-15")})
		s.requireRejection(err, dErrors.CodePolicy, policy.ReasonMonthlyMultiple)
	})

	s.Run("moving into a free month commits", func() {
		updated, err := s.svc.Update(admin, UpdateParams{DepositID: aprilReceipt.Deposit.ID, Date: date("2026-02-15")})
		s.Require().NoError(err)
		s.Equal(time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC), updated.Deposit.DepositDate)
		s.Equal(int64(10_000_00), updated.Balance)
		s.Equal(accmodels.StatusPending, updated.Status)
	})

	s.Run("the vacated month accepts an installment again", func() {
		_, err := s.svc.Create(s.asAt(s.agentID, id.RoleAgent, april), CreateParams{
			AccountID: account.ID,
			Amount:    5_000_00,
		})
		s.Require().NoError(err)
	})
}

func (s *DepositServiceSuite) TestUpdateOnMaturedAccount() {
	account := s.openDaily()
	receipt, err := s.svc.Create(s.as(s.agentID, id.RoleAgent), CreateParams{AccountID: account.ID, Amount: 500_00})
	s.Require().NoError(err)

	stored := s.storedAccount(account.ID)
	stored.MarkMatured(s.now)
	s.Require().NoError(s.accounts.Save(context.Background(), stored))

	amount := int64(700_00)
	updated, err := s.svc.Update(s.as(s.adminID, id.RoleAdmin), UpdateParams{DepositID: receipt.Deposit.ID, Amount: &amount})
	s.Require().NoError(err)
	s.Equal(int64(700_00), updated.Balance)
	s.Equal(accmodels.StatusMatured, updated.Status)
}

func (s *DepositServiceSuite) TestUpdateYearlyDateMove() {
	account := s.openYearly()
	receipt, err := s.svc.Create(s.as(s.agentID, id.RoleAgent), CreateParams{AccountID: account.ID, Amount: 50_000_00})
	s.Require().NoError(err)

	date := "2026-02-01"
	updated, err := s.svc.Update(s.as(s.adminID, id.RoleAdmin), UpdateParams{DepositID: receipt.Deposit.ID, Date: &date})
	s.Require().NoError(err)
	s.Equal(time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), updated.Deposit.DepositDate)
	s.True(s.storedAccount(account.ID).FullyPaid)
}

func (s *DepositServiceSuite) TestDelete() {
	account := s.openDaily()
	ctx := s.as(s.agentID, id.RoleAgent)
	first, err := s.svc.Create(ctx, CreateParams{AccountID: account.ID, Amount: 300_00})
	s.Require().NoError(err)
	second, err := s.svc.Create(ctx, CreateParams{AccountID: account.ID, Amount: 200_00})
	s.Require().NoError(err)

	s.Run("the attempt is recorded before the role check", func() {
		_, err := s.svc.Delete(s.as(s.agentID, id.RoleAgent), second.Deposit.ID)
		s.requireRejection(err, dErrors.CodeForbidden, policy.ReasonRoleNotAllowed)

		s.Len(s.eventsByAction(audit.EventDepositDeleteAttempt), 1)
		s.Equal(policy.ReasonRoleNotAllowed, s.lastEvent(audit.EventDepositDeleteFailed).Reason)
		s.Equal(int64(500_00), s.storedAccount(account.ID).Balance)
	})

	s.Run("an admin removes the record and the book follows", func() {
		receipt, err := s.svc.Delete(s.as(s.adminID, id.RoleAdmin), second.Deposit.ID)
		s.Require().NoError(err)
		s.Equal(int64(200_00), receipt.Deposit.Amount)
		s.Equal(int64(300_00), receipt.Balance)
		s.Equal(int64(300_00), s.storedAccount(account.ID).Balance)

		event := s.lastEvent(audit.EventDepositDeleted)
		s.Equal(second.Deposit.ID.String(), event.EntityID)
		s.Equal(int64(200_00), event.Details["amount"])

		history, err := s.svc.History(ctx, account.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		s.Equal(first.Deposit.ID, history[0].ID)
	})

	s.Run("an unknown deposit is not found but still attempted", func() {
		before := len(s.eventsByAction(audit.EventDepositDeleteAttempt))
		_, err := s.svc.Delete(s.as(s.adminID, id.RoleAdmin), id.NewDepositID())
		s.requireRejection(err, dErrors.CodeNotFound, policy.ReasonDepositNotFound)
		s.Len(s.eventsByAction(audit.EventDepositDeleteAttempt), before+1)
	})
}

func (s *DepositServiceSuite) TestDeleteYearlyGuard() {
	account := s.openYearly()
	receipt, err := s.svc.Create(s.as(s.agentID, id.RoleAgent), CreateParams{AccountID: account.ID, Amount: 50_000_00})
	s.Require().NoError(err)

	_, err = s.svc.Delete(s.as(s.adminID, id.RoleAdmin), receipt.Deposit.ID)
	s.requireRejection(err, dErrors.CodePolicy, policy.ReasonCannotDeleteYearly)

	history, err := s.svc.History(s.as(s.adminID, id.RoleAdmin), account.ID)
	s.Require().NoError(err)
	s.Len(history, 1)
	s.True(s.storedAccount(account.ID).FullyPaid)
}

func (s *DepositServiceSuite) TestDeleteReopensFilledBook() {
	account := s.openAccount(id.PaymentModeDaily, 15_000_00, accmodels.SchemeConfig{MonthlyTarget: 10_000_00})
	_, err := s.svc.Create(s.as(s.agentID, id.RoleAgent), CreateParams{AccountID: account.ID, Amount: 10_000_00})
	s.Require().NoError(err)

	april := s.now.AddDate(0, 1, 0)
	filler, err := s.svc.Create(s.asAt(s.agentID, id.RoleAgent, april), CreateParams{AccountID: account.ID, Amount: 5_000_00})
	s.Require().NoError(err)
	s.True(s.storedAccount(account.ID).FullyPaid)

	receipt, err := s.svc.Delete(s.asAt(s.adminID, id.RoleAdmin, april), filler.Deposit.ID)
	s.Require().NoError(err)
	s.Equal(int64(10_000_00), receipt.Balance)

	stored := s.storedAccount(account.ID)
	s.False(stored.FullyPaid)
	s.Equal(accmodels.StatusPending, stored.Status)
}

func (s *DepositServiceSuite) TestDeleteAbortsWhenAttemptUnrecorded() {
	account := s.openDaily()
	receipt, err := s.svc.Create(s.as(s.agentID, id.RoleAgent), CreateParams{AccountID: account.ID, Amount: 300_00})
	s.Require().NoError(err)

	svc := New(s.deposits, s.accounts, s.directory, scope.NewDirectoryResolver(s.directory),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
		WithAuditPublisher(failingPublisher{}),
	)
	_, err = svc.Delete(s.as(s.adminID, id.RoleAdmin), receipt.Deposit.ID)
	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))

	history, err := s.svc.History(s.as(s.adminID, id.RoleAdmin), account.ID)
	s.Require().NoError(err)
	s.Len(history, 1)
}
