package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"khata/internal/deposit/policy"
	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	audit "khata/pkg/platform/audit"
	"khata/pkg/platform/sentinel"
	"khata/pkg/requestcontext"
)

// bulkSubBatchSize paces a day's collection sheet through the pipeline.
const bulkSubBatchSize = 10

// BulkItem is one row of a collection sheet. IDs arrive as wire strings and
// are parsed per item, so one malformed row fails alone.
type BulkItem struct {
	AccountID   string
	Amount      int64
	CollectedBy string
	// Date is optional; empty means the current business day.
	Date string
}

// BulkOutcome pairs one input item with its result, in input order.
type BulkOutcome struct {
	AccountID string
	Receipt   *Receipt
	Err       error
}

// BulkResult summarises a processed batch. FailureSummary tallies failures
// by their human-readable message.
type BulkResult struct {
	Total          int
	SuccessCount   int
	FailedCount    int
	Items          []BulkOutcome
	FailureSummary map[string]int
}

// BulkCreate records a collection sheet: items run in sub-batches of ten,
// account groups within a sub-batch run concurrently, and items of one
// account stay sequential in input order. Every item runs the full
// single-deposit pipeline after a friendlier duplicate guard for its
// period; one item's failure never aborts its siblings.
func (s *Service) BulkCreate(ctx context.Context, items []BulkItem) (*BulkResult, error) {
	caller, ok := requestcontext.CallerFrom(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity missing")
	}
	if err := policy.CheckSheetRole(caller.Role); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "batch holds no items")
	}

	ctx, span := s.startSpan(ctx, "bulk_create", attribute.Int("batch.size", len(items)))
	defer span.End()

	outcomes := make([]BulkOutcome, len(items))
	for start := 0; start < len(items); start += bulkSubBatchSize {
		end := min(start+bulkSubBatchSize, len(items))
		s.runSubBatch(ctx, caller, items[start:end], outcomes[start:end])
	}

	result := &BulkResult{
		Total:          len(items),
		Items:          outcomes,
		FailureSummary: make(map[string]int),
	}
	for i := range outcomes {
		if outcomes[i].Err != nil {
			result.FailedCount++
			result.FailureSummary[failureMessage(outcomes[i].Err)]++
		} else {
			result.SuccessCount++
		}
	}

	s.metrics.IncrementBulkBatch()
	s.metrics.AddBulkItems("successful", result.SuccessCount)
	s.metrics.AddBulkItems("failed", result.FailedCount)

	// Per-item events are already on the book; the batch summary is a
	// reporting convenience, so losing it does not unwind committed items.
	event := s.baseEvent(ctx, caller, audit.EventBulkDepositsCreated)
	event.Details = map[string]any{
		"total":           result.Total,
		"success_count":   result.SuccessCount,
		"failed_count":    result.FailedCount,
		"failure_summary": result.FailureSummary,
	}
	if err := s.emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to record batch audit event",
			"total", result.Total,
			"error", err,
		)
	}

	return result, nil
}

// runSubBatch fans the sub-batch out by account. Two items on the same
// account are never in flight together; their input order is their ledger
// order.
func (s *Service) runSubBatch(ctx context.Context, caller requestcontext.Caller, items []BulkItem, outcomes []BulkOutcome) {
	groups := make(map[string][]int)
	var order []string
	for i, item := range items {
		if _, seen := groups[item.AccountID]; !seen {
			order = append(order, item.AccountID)
		}
		groups[item.AccountID] = append(groups[item.AccountID], i)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for _, accountID := range order {
		indexes := groups[accountID]
		g.Go(func() error {
			for _, i := range indexes {
				outcomes[i] = s.bulkOne(groupCtx, caller, items[i])
			}
			return nil
		})
	}
	// Failures live in outcomes; the group only bounds the fan-out.
	_ = g.Wait()
}

func (s *Service) bulkOne(ctx context.Context, caller requestcontext.Caller, item BulkItem) BulkOutcome {
	outcome := BulkOutcome{AccountID: item.AccountID}

	accountID, err := id.ParseAccountID(item.AccountID)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	collectedBy, err := id.ParseUserID(item.CollectedBy)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	if err := policy.CheckCollectedByMatch(caller.UserID, collectedBy); err != nil {
		outcome.Err = err
		return outcome
	}

	if err := s.bulkPreCheck(ctx, accountID, item.Date); err != nil {
		outcome.Err = err
		return outcome
	}

	receipt, err := s.Create(ctx, CreateParams{AccountID: accountID, Amount: item.Amount, Date: item.Date})
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Receipt = receipt
	return outcome
}

// bulkPreCheck is the friendly duplicate guard: it answers "this account
// was already visited this period" before the pipeline answers with the
// scheme's own vocabulary. Read-only and unaudited; the authoritative
// check reruns under the account lock.
func (s *Service) bulkPreCheck(ctx context.Context, accountID id.AccountID, rawDate string) error {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return policy.AccountNotFound()
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}

	now := requestcontext.Now(ctx)
	day := s.businessDay(now)
	if rawDate != "" {
		parsed, err := policy.ParseDate(rawDate, now, s.loc)
		if err != nil {
			return err
		}
		day = parsed
	}
	return s.periodCheck(ctx, account, day)
}

// failureMessage keys the batch histogram: the domain error's message, or
// the raw error text for anything else.
func failureMessage(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message()
	}
	return err.Error()
}
