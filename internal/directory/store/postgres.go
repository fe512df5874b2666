package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"khata/internal/directory/models"
	id "khata/pkg/domain"
	"khata/pkg/platform/sentinel"
	"khata/pkg/platform/tx"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// Postgres persists users in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer returns the transaction from ctx when one is open, else the pool.
// Reads go straight to the pool; only writes need to join a transaction.
func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, user *models.User) error {
	var managerID *uuid.UUID
	if !user.ManagerID.IsNil() {
		u := uuid.UUID(user.ManagerID)
		managerID = &u
	}

	query := `
		INSERT INTO users (id, username, password_hash, role, manager_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(user.ID),
		user.Username,
		user.PasswordHash,
		string(user.Role),
		managerID,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, role, manager_id, created_at
		FROM users
		WHERE id = $1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, uuid.UUID(userID)))
}

func (s *Postgres) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, role, manager_id, created_at
		FROM users
		WHERE lower(username) = lower($1)
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *Postgres) ListAgentsByManager(ctx context.Context, managerID id.UserID) ([]id.UserID, error) {
	query := `SELECT id FROM users WHERE role = $1 AND manager_id = $2`
	rows, err := s.db.QueryContext(ctx, query, string(id.RoleAgent), uuid.UUID(managerID))
	if err != nil {
		return nil, fmt.Errorf("list agents by manager: %w", err)
	}
	defer rows.Close()

	var agents []id.UserID
	for rows.Next() {
		var agentID uuid.UUID
		if err := rows.Scan(&agentID); err != nil {
			return nil, fmt.Errorf("scan agent id: %w", err)
		}
		agents = append(agents, id.UserID(agentID))
	}
	return agents, rows.Err()
}

func (s *Postgres) scanUser(row *sql.Row) (*models.User, error) {
	var (
		user      models.User
		userID    uuid.UUID
		role      string
		managerID *uuid.UUID
	)
	err := row.Scan(&userID, &user.Username, &user.PasswordHash, &role, &managerID, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.ID = id.UserID(userID)
	user.Role = id.Role(role)
	if managerID != nil {
		user.ManagerID = id.UserID(*managerID)
	}
	return &user, nil
}
