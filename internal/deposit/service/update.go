package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"khata/internal/deposit/models"
	"khata/internal/deposit/policy"
	"khata/internal/deposit/store"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	audit "khata/pkg/platform/audit"
	"khata/pkg/platform/sentinel"
	"khata/pkg/requestcontext"
)

// UpdateParams carries a correction to a recorded deposit. Nil fields keep
// their recorded value.
type UpdateParams struct {
	DepositID   id.DepositID
	Amount      *int64
	Date        *string
	CollectedBy *id.UserID
}

// Update corrects a recorded deposit's amount, date or collector and
// re-derives the account from the corrected history. Corrections are an
// admin surface: the scheme is re-evaluated with the deposit's own figures
// excluded, so moving a payment to another month answers for that month.
// Maturity does not block a correction; fixing history on a closed book is
// the whole point.
func (s *Service) Update(ctx context.Context, params UpdateParams) (*Receipt, error) {
	caller, ok := requestcontext.CallerFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity missing")
	}

	ctx, span := s.startSpan(ctx, opUpdate, attribute.String("deposit.id", params.DepositID.String()))
	defer span.End()
	s.metrics.IncrementAttempt(opUpdate)

	receipt, accountID, err := s.updateOne(ctx, caller, params)
	finishSpan(span, err)
	if err != nil {
		s.metrics.IncrementRejected(opUpdate, reasonLabel(err))
		s.emitRejection(ctx, caller, audit.EventDepositUpdateFailed, accountID, params.DepositID.String(), err, updateAttemptDetails(params))
		return nil, err
	}

	s.metrics.IncrementAdmitted(opUpdate)
	s.invalidateEligible(ctx, caller.UserID)
	return receipt, nil
}

func (s *Service) updateOne(ctx context.Context, caller requestcontext.Caller, params UpdateParams) (*Receipt, id.AccountID, error) {
	if err := policy.CheckCorrectRole(caller.Role); err != nil {
		return nil, id.AccountID{}, err
	}
	if params.Amount == nil && params.Date == nil && params.CollectedBy == nil {
		return nil, id.AccountID{}, dErrors.New(dErrors.CodeValidation, "correction names no fields")
	}

	// The transaction is keyed by account, which only the deposit row knows.
	// This read routes the lock; the copy inside the transaction is the one
	// the checks run on.
	routing, err := s.deposits.FindByID(ctx, params.DepositID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, id.AccountID{}, policy.DepositNotFound()
		}
		return nil, id.AccountID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load deposit")
	}
	accountID := routing.AccountID

	var receipt *Receipt
	err = s.tx.RunInTx(ctx, accountID, func(txCtx context.Context) error {
		deposit, err := s.deposits.FindByID(txCtx, params.DepositID)
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

		now := requestcontext.Now(txCtx)
		newAmount := deposit.Amount
		if params.Amount != nil {
			if err := policy.CheckAmount(*params.Amount); err != nil {
				return err
			}
			newAmount = *params.Amount
		}
		newDate := deposit.DepositDate
		if params.Date != nil {
			parsed, err := policy.ParseDate(*params.Date, now, s.loc)
			if err != nil {
				return err
			}
			newDate = parsed
		}
		newCollector := deposit.CollectedBy
		if params.CollectedBy != nil {
			if err := s.checkCollector(txCtx, *params.CollectedBy); err != nil {
				return err
			}
			newCollector = *params.CollectedBy
		}

		facts, err := s.gatherFacts(txCtx, account.ID, newDate, deposit.ID)
		if err != nil {
			return err
		}
		if err := policy.CheckScheme(account, newAmount, facts, policy.OpUpdate); err != nil {
			return err
		}

		survivingSum, err := s.deposits.SumByAccount(txCtx, account.ID, store.Filter{Exclude: deposit.ID})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to sum deposits")
		}
		if err := policy.CheckCeiling(account, survivingSum, newAmount); err != nil {
			return err
		}

		oldAmount, oldDate, oldCollector := deposit.Amount, deposit.DepositDate, deposit.CollectedBy
		deposit.Amount = newAmount
		deposit.DepositDate = newDate
		deposit.CollectedBy = newCollector
		// The recorded scheme follows the account; a correction written
		// after a scheme migration carries the current one.
		deposit.Scheme = account.Scheme
		deposit.UpdatedAt = now

		if err := s.deposits.Update(txCtx, deposit); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return policy.DepositNotFound()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update deposit")
		}

		if err := s.reconcile(txCtx, account, now); err != nil {
			return err
		}

		event := s.baseEvent(txCtx, caller, audit.EventDepositUpdated)
		event.EntityID = deposit.ID.String()
		event.AccountID = account.ID
		event.Details = map[string]any{
			"old": map[string]any{
				"amount":       oldAmount,
				"deposit_date": oldDate.Format(models.DateLayout),
				"collected_by": oldCollector.String(),
			},
			"new": map[string]any{
				"amount":       deposit.Amount,
				"deposit_date": deposit.DepositDate.Format(models.DateLayout),
				"collected_by": deposit.CollectedBy.String(),
			},
			"balance": account.Balance,
			"status":  string(account.Status),
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

// checkCollector verifies that a correction's collected_by names a real
// collector-capable user.
func (s *Service) checkCollector(ctx context.Context, collectorID id.UserID) error {
	user, err := s.directory.FindByID(ctx, collectorID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.NewWithReason(dErrors.CodeValidation, policy.ReasonCollectedByMismatch, "collected_by does not name a known collector")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if !user.Role.CanCollect() {
		return dErrors.NewWithReason(dErrors.CodeValidation, policy.ReasonCollectedByMismatch, "collected_by does not name a known collector")
	}
	return nil
}

func updateAttemptDetails(params UpdateParams) map[string]any {
	details := map[string]any{}
	if params.Amount != nil {
		details["amount"] = *params.Amount
	}
	if params.Date != nil {
		details["deposit_date"] = *params.Date
	}
	if params.CollectedBy != nil {
		details["collected_by"] = params.CollectedBy.String()
	}
	return details
}
