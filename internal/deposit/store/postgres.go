package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"khata/internal/deposit/models"
	id "khata/pkg/domain"
	"khata/pkg/platform/sentinel"
	"khata/pkg/platform/tx"
)

const depositColumns = `id, account_id, client_id, collected_by, amount,
	deposit_date, scheme, created_at, updated_at`

// Postgres persists deposits in the deposits table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL-backed deposit store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// runner joins the caller's transaction when one is in flight. The commit
// pipeline sums and counts history under the locked account row, so those
// reads must see the same transaction as the write that follows them.
func (s *Postgres) runner(ctx context.Context) dbRunner {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *Postgres) Insert(ctx context.Context, deposit *models.Deposit) error {
	query := `
		INSERT INTO deposits (` + depositColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(deposit.ID),
		uuid.UUID(deposit.AccountID),
		uuid.UUID(deposit.ClientID),
		uuid.UUID(deposit.CollectedBy),
		deposit.Amount,
		deposit.DepositDate,
		deposit.Scheme.String(),
		deposit.CreatedAt,
		deposit.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("inserting deposit: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, depositID id.DepositID) (*models.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE id = $1`

	deposit, err := scan(s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(depositID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning deposit: %w", err)
	}
	return deposit, nil
}

func (s *Postgres) Update(ctx context.Context, deposit *models.Deposit) error {
	query := `
		UPDATE deposits
		SET amount = $1, deposit_date = $2, collected_by = $3, scheme = $4, updated_at = $5
		WHERE id = $6`

	res, err := s.runner(ctx).ExecContext(ctx, query,
		deposit.Amount,
		deposit.DepositDate,
		uuid.UUID(deposit.CollectedBy),
		deposit.Scheme.String(),
		deposit.UpdatedAt,
		uuid.UUID(deposit.ID),
	)
	if err != nil {
		return fmt.Errorf("updating deposit: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating deposit: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, depositID id.DepositID) error {
	res, err := s.runner(ctx).ExecContext(ctx,
		`DELETE FROM deposits WHERE id = $1`, uuid.UUID(depositID))
	if err != nil {
		return fmt.Errorf("deleting deposit: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting deposit: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits
		WHERE account_id = $1
		ORDER BY deposit_date, created_at, id`

	rows, err := s.runner(ctx).QueryContext(ctx, query, uuid.UUID(accountID))
	if err != nil {
		return nil, fmt.Errorf("listing deposits: %w", err)
	}
	defer rows.Close()

	var out []*models.Deposit
	for rows.Next() {
		deposit, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning deposit: %w", err)
		}
		out = append(out, deposit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing deposits: %w", err)
	}
	return out, nil
}

func (s *Postgres) SumByAccount(ctx context.Context, accountID id.AccountID, f Filter) (int64, error) {
	query, args := aggregate(`COALESCE(SUM(amount), 0)`, accountID, f)

	var sum int64
	if err := s.runner(ctx).QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("summing deposits: %w", err)
	}
	return sum, nil
}

func (s *Postgres) CountByAccount(ctx context.Context, accountID id.AccountID, f Filter) (int64, error) {
	query, args := aggregate(`COUNT(*)`, accountID, f)

	var count int64
	if err := s.runner(ctx).QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting deposits: %w", err)
	}
	return count, nil
}

func aggregate(expr string, accountID id.AccountID, f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conds = append(conds, "account_id = "+arg(uuid.UUID(accountID)))
	if f.Window != nil {
		conds = append(conds, "deposit_date >= "+arg(f.Window.From))
		conds = append(conds, "deposit_date < "+arg(f.Window.To))
	}
	if !f.Exclude.IsNil() {
		conds = append(conds, "id <> "+arg(uuid.UUID(f.Exclude)))
	}

	query := "SELECT " + expr + " FROM deposits WHERE " + strings.Join(conds, " AND ")
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(r rowScanner) (*models.Deposit, error) {
	var (
		deposit     models.Deposit
		depositID   uuid.UUID
		accountID   uuid.UUID
		clientID    uuid.UUID
		collectedBy uuid.UUID
		scheme      string
	)
	err := r.Scan(
		&depositID,
		&accountID,
		&clientID,
		&collectedBy,
		&deposit.Amount,
		&deposit.DepositDate,
		&scheme,
		&deposit.CreatedAt,
		&deposit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	deposit.ID = id.DepositID(depositID)
	deposit.AccountID = id.AccountID(accountID)
	deposit.ClientID = id.UserID(clientID)
	deposit.CollectedBy = id.UserID(collectedBy)
	deposit.Scheme = id.PaymentMode(scheme)
	return &deposit, nil
}
