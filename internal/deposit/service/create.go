package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	accmodels "khata/internal/account/models"
	"khata/internal/deposit/models"
	"khata/internal/deposit/policy"
	"khata/internal/deposit/store"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	audit "khata/pkg/platform/audit"
	"khata/pkg/platform/sentinel"
	"khata/pkg/requestcontext"
)

// CreateParams carries one deposit attempt. The caller from the request
// context is recorded as the collector.
type CreateParams struct {
	AccountID id.AccountID
	// ClientID is the owner named on the request; the handler requires it.
	// Collection-sheet rows identify the book by account alone and leave it
	// zero, which skips the ownership cross-check.
	ClientID id.UserID
	Amount   int64
	// Date is the civil day of collection, "2006-01-02". Empty means the
	// current business day.
	Date string
}

// Create records one deposit. The checks run in a fixed order inside the
// account's transaction and the first rejection wins; a committed deposit
// comes back with the account state re-derived from the full history.
//
// One rejection still writes: an account found past its term is marked
// Matured before the attempt is refused, so the gate's answer is persisted
// even when the sweep has not run yet.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Receipt, error) {
	caller, ok := requestcontext.CallerFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity missing")
	}

	ctx, span := s.startSpan(ctx, opCreate, attribute.String("account.id", params.AccountID.String()))
	defer span.End()
	s.metrics.IncrementAttempt(opCreate)

	receipt, err := s.createOne(ctx, caller, params)
	finishSpan(span, err)
	if err != nil {
		s.metrics.IncrementRejected(opCreate, reasonLabel(err))
		s.emitRejection(ctx, caller, audit.EventDepositCreateFailed, params.AccountID, "", err, createAttemptDetails(params))
		return nil, err
	}

	s.metrics.IncrementAdmitted(opCreate)
	s.invalidateEligible(ctx, caller.UserID)
	return receipt, nil
}

func (s *Service) createOne(ctx context.Context, caller requestcontext.Caller, params CreateParams) (*Receipt, error) {
	if err := policy.CheckAmount(params.Amount); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	depositDate := s.businessDay(now)
	if params.Date != "" {
		parsed, err := policy.ParseDate(params.Date, now, s.loc)
		if err != nil {
			return nil, err
		}
		depositDate = parsed
	}

	if err := policy.CheckCollectRole(caller.Role); err != nil {
		return nil, err
	}

	callerScope, err := s.scopes.Resolve(ctx, caller)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve caller scope")
	}

	var (
		receipt          *Receipt
		maturedRejection error
	)
	err = s.tx.RunInTx(ctx, params.AccountID, func(txCtx context.Context) error {
		account, err := s.accounts.FindByIDForUpdate(txCtx, params.AccountID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return policy.AccountNotFound()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
		}

		if !params.ClientID.IsNil() {
			if err := policy.CheckClientMatch(account, params.ClientID); err != nil {
				return err
			}
		}
		if err := policy.CheckScope(caller.Role, callerScope, account); err != nil {
			return err
		}

		if rejection := policy.CheckMaturity(account, now); rejection != nil {
			// The only rejection that commits: the flip to Matured is
			// persisted so later attempts and listings see it without
			// waiting for the sweep.
			if !account.IsMatured() {
				account.MarkMatured(now)
				if err := s.saveAccount(txCtx, account); err != nil {
					return err
				}
				matured := s.baseEvent(txCtx, caller, audit.EventAccountMatured)
				matured.EntityType = "account"
				matured.EntityID = account.ID.String()
				matured.AccountID = account.ID
				matured.Details = map[string]any{
					"maturity_date": account.MaturityDate.Format(models.DateLayout),
					"status":        string(account.Status),
				}
				if err := s.emit(txCtx, matured); err != nil {
					return err
				}
			}
			maturedRejection = rejection
			return nil
		}

		survivingSum, err := s.deposits.SumByAccount(txCtx, account.ID, store.Filter{})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to sum deposits")
		}
		if err := policy.CheckCeiling(account, survivingSum, params.Amount); err != nil {
			return err
		}

		facts, err := s.gatherFacts(txCtx, account.ID, depositDate, id.DepositID{})
		if err != nil {
			return err
		}
		if err := policy.CheckScheme(account, params.Amount, facts, policy.OpCreate); err != nil {
			return err
		}

		deposit, err := models.NewDeposit(
			id.NewDepositID(), account.ID, account.ClientID, caller.UserID,
			params.Amount, depositDate, account.Scheme, now,
		)
		if err != nil {
			return err
		}
		if err := s.deposits.Insert(txCtx, deposit); err != nil {
			if errors.Is(err, sentinel.ErrDuplicate) {
				return dErrors.New(dErrors.CodeConflict, "deposit already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to insert deposit")
		}

		if err := s.reconcile(txCtx, account, now); err != nil {
			return err
		}

		event := s.baseEvent(txCtx, caller, audit.EventDepositCreated)
		event.EntityID = deposit.ID.String()
		event.AccountID = account.ID
		event.Details = map[string]any{
			"amount":       deposit.Amount,
			"deposit_date": deposit.DepositDate.Format(models.DateLayout),
			"scheme":       string(deposit.Scheme),
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
		return nil, err
	}
	if maturedRejection != nil {
		return nil, maturedRejection
	}
	return receipt, nil
}

// saveAccount persists an account mutation, translating a lost version race
// into a conflict the handler maps to 409.
func (s *Service) saveAccount(ctx context.Context, account *accmodels.Account) error {
	if err := s.accounts.Save(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncrementCommitConflict()
			return dErrors.New(dErrors.CodeConflict, "account was modified concurrently")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save account")
	}
	return nil
}

func createAttemptDetails(params CreateParams) map[string]any {
	details := map[string]any{"amount": params.Amount}
	if params.Date != "" {
		details["deposit_date"] = params.Date
	}
	if !params.ClientID.IsNil() {
		details["client_id"] = params.ClientID.String()
	}
	return details
}
