package main

import (
	"context"
	"database/sql"
	"time"

	id "khata/pkg/domain"
	dErrors "khata/pkg/domain-errors"
	"khata/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// depositPostgresTx brackets every ledger mutation in one database
// transaction. The deposit and account stores pick the transaction up from
// the context, so the deposit write and the derived account save commit or
// roll back together. Serialisation per account comes from the row lock the
// pipeline takes inside the transaction, not from the account ID here.
type depositPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newDepositPostgresTx(db *sql.DB) *depositPostgresTx {
	return &depositPostgresTx{db: db}
}

func (t *depositPostgresTx) RunInTx(ctx context.Context, _ id.AccountID, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dbTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, dbTx)); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}
