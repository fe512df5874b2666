package service

import (
	"context"
	"errors"
	"time"

	"khata/internal/account/store"
	dErrors "khata/pkg/domain-errors"
	audit "khata/pkg/platform/audit"
	"khata/pkg/platform/sentinel"
)

// MatureDue stamps the terminal status onto every account whose term has
// ended. The deposit pipeline stamps maturity when a collection hits a
// matured book, so the sweep picks up the quiet accounts nobody visited.
// Returns the number of accounts matured.
func (s *Service) MatureDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.accounts.List(ctx, store.Filter{
		MaturityDueBy:  &now,
		ExcludeMatured: true,
	})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list due accounts")
	}

	matured := 0
	for _, account := range due {
		account.MarkMatured(now)
		if err := s.accounts.Save(ctx, account); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				// A concurrent writer got there first; the next sweep picks
				// the account up if it is still unmatured.
				continue
			}
			// One broken account must not stall the sweep over the rest.
			s.logger.ErrorContext(ctx, "maturity stamp failed",
				"account_id", account.ID,
				"error", err,
			)
			continue
		}

		if s.auditPublisher != nil {
			event := audit.Event{
				Action:     string(audit.EventAccountMatured),
				EntityType: "account",
				EntityID:   account.ID.String(),
				AccountID:  account.ID,
				Role:       "system",
				Timestamp:  now,
				Details: map[string]any{
					"maturity_date": account.MaturityDate.Format(time.DateOnly),
					"status":        string(account.Status),
				},
			}
			if err := s.auditPublisher.Emit(ctx, event); err != nil {
				s.logger.ErrorContext(ctx, "maturity audit write failed",
					"account_id", account.ID,
					"error", err,
				)
			}
		}

		s.metrics.IncrementMatured()
		matured++
	}

	if matured > 0 {
		s.logger.InfoContext(ctx, "accounts matured",
			"accounts_matured", matured,
			"accounts_due", len(due),
		)
	}
	return matured, nil
}
