package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"khata/internal/account/models"
	id "khata/pkg/domain"
	"khata/pkg/platform/sentinel"
	"khata/pkg/platform/tx"
)

const accountColumns = `id, client_id, agent_id, scheme, total_payable,
	installment_amount, monthly_target, yearly_amount, balance, status,
	fully_paid, opened_at, maturity_date, version, created_at, updated_at`

// Postgres persists accounts in the accounts table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL-backed account store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// runner joins the caller's transaction when one is in flight. Unlike the
// audit store, reads go through it too: the commit pipeline sums history
// under the account row lock, so its reads must see the same transaction.
func (s *Postgres) runner(ctx context.Context) dbRunner {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := s.runner(ctx).ExecContext(ctx, query,
		uuid.UUID(account.ID),
		uuid.UUID(account.ClientID),
		uuid.UUID(account.AgentID),
		account.Scheme.String(),
		account.TotalPayable,
		nullableAmount(account.InstallmentAmount),
		nullableAmount(account.MonthlyTarget),
		nullableAmount(account.YearlyAmount),
		account.Balance,
		string(account.Status),
		account.FullyPaid,
		account.OpenedAt,
		account.MaturityDate,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return s.scanAccount(s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(accountID)))
}

func (s *Postgres) FindByIDForUpdate(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return s.scanAccount(s.runner(ctx).QueryRowContext(ctx, query, uuid.UUID(accountID)))
}

func (s *Postgres) Save(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE accounts
		SET balance = $1, status = $2, fully_paid = $3, updated_at = $4,
			version = version + 1
		WHERE id = $5 AND version = $6`

	res, err := s.runner(ctx).ExecContext(ctx, query,
		account.Balance,
		string(account.Status),
		account.FullyPaid,
		account.UpdatedAt,
		uuid.UUID(account.ID),
		account.Version,
	)
	if err != nil {
		return fmt.Errorf("saving account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving account: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrConflict
	}
	account.Version++
	return nil
}

func (s *Postgres) List(ctx context.Context, f Filter) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.AgentIDs) > 0 {
		ids := make([]uuid.UUID, len(f.AgentIDs))
		for i, agentID := range f.AgentIDs {
			ids[i] = uuid.UUID(agentID)
		}
		conds = append(conds, "agent_id = ANY("+arg(ids)+")")
	}
	if !f.ClientID.IsNil() {
		conds = append(conds, "client_id = "+arg(uuid.UUID(f.ClientID)))
	}
	if f.ExcludeMatured {
		conds = append(conds, "status <> "+arg(string(models.StatusMatured)))
	}
	if f.OpenOnly {
		conds = append(conds, "fully_paid = FALSE")
	}
	if f.MaturityDueBy != nil {
		conds = append(conds, "maturity_date <= "+arg(*f.MaturityDueBy))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY opened_at, id"

	rows, err := s.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		account, err := s.scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scanAccount(row *sql.Row) (*models.Account, error) {
	account, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	return account, nil
}

func (s *Postgres) scanAccountRow(rows *sql.Rows) (*models.Account, error) {
	account, err := scan(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	return account, nil
}

func scan(r rowScanner) (*models.Account, error) {
	var (
		account     models.Account
		accountID   uuid.UUID
		clientID    uuid.UUID
		agentID     uuid.UUID
		scheme      string
		status      string
		installment sql.NullInt64
		target      sql.NullInt64
		yearly      sql.NullInt64
	)
	err := r.Scan(
		&accountID,
		&clientID,
		&agentID,
		&scheme,
		&account.TotalPayable,
		&installment,
		&target,
		&yearly,
		&account.Balance,
		&status,
		&account.FullyPaid,
		&account.OpenedAt,
		&account.MaturityDate,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.ID = id.AccountID(accountID)
	account.ClientID = id.UserID(clientID)
	account.AgentID = id.UserID(agentID)
	account.Scheme = id.PaymentMode(scheme)
	account.Status = models.Status(status)
	account.InstallmentAmount = installment.Int64
	account.MonthlyTarget = target.Int64
	account.YearlyAmount = yearly.Int64
	return &account, nil
}

// nullableAmount stores unset scheme amounts as NULL rather than zero.
func nullableAmount(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
