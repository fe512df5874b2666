package service

import (
	"context"
	"time"

	accmodels "khata/internal/account/models"
	accstore "khata/internal/account/store"
	"khata/internal/deposit/store"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	audit "khata/pkg/platform/audit"
	"khata/pkg/platform/period"
	"khata/pkg/requestcontext"
)

// reconcile re-derives the account's balance, paid flag and status from the
// full surviving deposit history and persists them. The balance is never
// incremented in place; an account's stored figures are always the output
// of this derivation.
//
// Period figures are reckoned against the current wall-clock month in the
// business zone: a backdated deposit is admitted against its own period but
// the status answers "where does this account stand today". Runs inside
// the mutation's transaction.
func (s *Service) reconcile(ctx context.Context, account *accmodels.Account, now time.Time) error {
	facts, err := s.ledgerFacts(ctx, account.ID, now)
	if err != nil {
		return err
	}

	account.Balance = facts.Balance
	account.FullyPaid = account.TotalPayable > 0 && facts.Balance >= account.TotalPayable
	account.Status = account.DeriveStatus(facts)
	account.UpdatedAt = now

	return s.saveAccount(ctx, account)
}

// ledgerFacts gathers the sums the status derivation runs on.
func (s *Service) ledgerFacts(ctx context.Context, accountID id.AccountID, now time.Time) (accmodels.LedgerFacts, error) {
	month := period.Month(s.businessDay(now), time.UTC)

	balance, err := s.deposits.SumByAccount(ctx, accountID, store.Filter{})
	if err != nil {
		return accmodels.LedgerFacts{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sum deposits")
	}
	count, err := s.deposits.CountByAccount(ctx, accountID, store.Filter{})
	if err != nil {
		return accmodels.LedgerFacts{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count deposits")
	}
	monthSum, err := s.deposits.SumByAccount(ctx, accountID, store.Filter{Window: &month})
	if err != nil {
		return accmodels.LedgerFacts{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sum deposits")
	}
	monthCount, err := s.deposits.CountByAccount(ctx, accountID, store.Filter{Window: &month})
	if err != nil {
		return accmodels.LedgerFacts{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count deposits")
	}

	return accmodels.LedgerFacts{
		Balance:            balance,
		DepositCount:       count,
		CollectedThisMonth: monthSum,
		CountThisMonth:     monthCount,
	}, nil
}

// RepairDrift re-reconciles every account and persists any account whose
// stored figures disagree with its deposit history. Drift appears after
// crashes between historical bugs or manual surgery on the tables; the
// sweep brings the book back to its derived truth. Returns the number of
// accounts repaired.
func (s *Service) RepairDrift(ctx context.Context) (int, error) {
	accounts, err := s.accounts.List(ctx, accstore.Filter{})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list accounts")
	}

	repaired := 0
	for _, stale := range accounts {
		fixed, err := s.repairAccount(ctx, stale.ID)
		if err != nil {
			// One broken account must not stall the sweep over the rest.
			s.logger.ErrorContext(ctx, "drift repair failed",
				"account_id", stale.ID,
				"error", err,
			)
			continue
		}
		if fixed {
			repaired++
		}
	}

	if repaired > 0 {
		s.logger.InfoContext(ctx, "ledger drift repaired",
			"accounts_repaired", repaired,
			"accounts_checked", len(accounts),
		)
	}
	return repaired, nil
}

func (s *Service) repairAccount(ctx context.Context, accountID id.AccountID) (bool, error) {
	repaired := false
	err := s.tx.RunInTx(ctx, accountID, func(txCtx context.Context) error {
		account, err := s.accounts.FindByIDForUpdate(txCtx, accountID)
		if err != nil {
			return s.translateAccountErr(err)
		}

		facts, err := s.ledgerFacts(txCtx, account.ID, requestcontext.Now(txCtx))
		if err != nil {
			return err
		}

		derivedPaid := account.TotalPayable > 0 && facts.Balance >= account.TotalPayable
		derivedStatus := account.DeriveStatus(facts)
		if account.Balance == facts.Balance && account.FullyPaid == derivedPaid && account.Status == derivedStatus {
			return nil
		}

		oldBalance, oldStatus := account.Balance, account.Status
		if err := s.reconcile(txCtx, account, requestcontext.Now(txCtx)); err != nil {
			return err
		}

		event := audit.Event{
			Action:     string(audit.EventLedgerDriftRepaired),
			EntityType: "account",
			EntityID:   account.ID.String(),
			AccountID:  account.ID,
			Role:       "system",
			Timestamp:  requestcontext.Now(txCtx),
			Details: map[string]any{
				"old_balance": oldBalance,
				"new_balance": account.Balance,
				"old_status":  string(oldStatus),
				"new_status":  string(account.Status),
			},
		}
		if err := s.emit(txCtx, event); err != nil {
			return err
		}

		repaired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if repaired {
		s.metrics.IncrementDriftRepaired()
	}
	return repaired, nil
}
