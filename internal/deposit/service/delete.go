package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"khata/internal/deposit/models"
	"khata/internal/deposit/policy"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	audit "khata/pkg/platform/audit"
	"khata/pkg/platform/sentinel"
	"khata/pkg/requestcontext"
)

// Delete removes a recorded deposit and re-derives the account from the
// surviving history. Removing money from the book is the most sensitive
// mutation there is, so the attempt itself is recorded before any check
// runs; if that record cannot be written the deletion does not proceed.
func (s *Service) Delete(ctx context.Context, depositID id.DepositID) (*Receipt, error) {
	caller, ok := requestcontext.CallerFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity missing")
	}

	ctx, span := s.startSpan(ctx, opDelete, attribute.String("deposit.id", depositID.String()))
	defer span.End()
	s.metrics.IncrementAttempt(opDelete)

	attempt := s.baseEvent(ctx, caller, audit.EventDepositDeleteAttempt)
	attempt.EntityID = depositID.String()
	if err := s.emit(ctx, attempt); err != nil {
		finishSpan(span, err)
		s.metrics.IncrementRejected(opDelete, reasonLabel(err))
		return nil, err
	}

	receipt, accountID, err := s.deleteOne(ctx, caller, depositID)
	finishSpan(span, err)
	if err != nil {
		s.metrics.IncrementRejected(opDelete, reasonLabel(err))
		s.emitRejection(ctx, caller, audit.EventDepositDeleteFailed, accountID, depositID.String(), err, nil)
		return nil, err
	}

	s.metrics.IncrementAdmitted(opDelete)
	s.invalidateEligible(ctx, caller.UserID)
	return receipt, nil
}

func (s *Service) deleteOne(ctx context.Context, caller requestcontext.Caller, depositID id.DepositID) (*Receipt, id.AccountID, error) {
	if err := policy.CheckCorrectRole(caller.Role); err != nil {
		return nil, id.AccountID{}, err
	}

	routing, err := s.deposits.FindByID(ctx, depositID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, id.AccountID{}, policy.DepositNotFound()
		}
		return nil, id.AccountID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load deposit")
	}
	accountID := routing.AccountID

	var receipt *Receipt
	err = s.tx.RunInTx(ctx, accountID, func(txCtx context.Context) error {
		deposit, err := s.deposits.FindByID(txCtx, depositID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return policy.DepositNotFound()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load deposit")
		}

		account, err := s.accounts.FindByIDForUpdate(txCtx, deposit.AccountID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return policy.AccountNotFound()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
		}

		if err := policy.CheckDeleteGuard(account); err != nil {
			return err
		}

		if err := s.deposits.Delete(txCtx, deposit.ID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return policy.DepositNotFound()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete deposit")
		}

		now := requestcontext.Now(txCtx)
		if err := s.reconcile(txCtx, account, now); err != nil {
			return err
		}

		event := s.baseEvent(txCtx, caller, audit.EventDepositDeleted)
		event.EntityID = deposit.ID.String()
		event.AccountID = account.ID
		event.Details = map[string]any{
			"amount":       deposit.Amount,
			"deposit_date": deposit.DepositDate.Format(models.DateLayout),
			"collected_by": deposit.CollectedBy.String(),
			"balance":      account.Balance,
			"status":       string(account.Status),
		}
		if err := s.emit(txCtx, event); err != nil {
			return err
		}

		receipt = &Receipt{Deposit: deposit, Balance: account.Balance, Status: account.Status}
		return nil
	})
	if err != nil {
		return nil, accountID, err
	}
	return receipt, accountID, nil
}
