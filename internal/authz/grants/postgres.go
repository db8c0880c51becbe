package grants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
	"github.com/odyssey-erp/odyssey-authz/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS role_permissions (
		id BIGSERIAL PRIMARY KEY,
		role TEXT NOT NULL,
		module TEXT NOT NULL,
		action TEXT NOT NULL,
		allowed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_role_permissions UNIQUE (role, module, action),
		CONSTRAINT ck_role_permissions_role CHECK (role IN ('owner', 'admin', 'manager', 'user'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_role_permissions_role ON role_permissions (role)`,
}

// PostgresStore persists the matrix in the role_permissions table.
type PostgresStore struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, pool: pool}
}

// EnsureSchema creates the table and index when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("grants: ensure schema: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) Lookup(ctx context.Context, role authz.Role, module authz.Module, action authz.Action) (authz.GrantState, error) {
	var allowed bool
	err := s.db.QueryRow(ctx,
		`SELECT allowed FROM role_permissions WHERE role = $1 AND module = $2 AND action = $3`,
		string(role), string(module), string(action),
	).Scan(&allowed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.GrantUnset, nil
		}
		return authz.GrantUnset, classifyPgError(err)
	}
	return authz.StateOf(allowed), nil
}

func (s *PostgresStore) Set(ctx context.Context, g authz.Grant) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO role_permissions (role, module, action, allowed)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (role, module, action)
		 DO UPDATE SET allowed = EXCLUDED.allowed, updated_at = NOW()`,
		string(g.Role), string(g.Module), string(g.Action), g.Allowed,
	)
	return classifyPgError(err)
}

func (s *PostgresStore) ListByRole(ctx context.Context, role authz.Role) ([]authz.Grant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT role, module, action, allowed FROM role_permissions WHERE role = $1 ORDER BY module, action`,
		string(role),
	)
	if err != nil {
		return nil, classifyPgError(err)
	}
	return scanGrants(rows)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]authz.Grant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT role, module, action, allowed FROM role_permissions ORDER BY role, module, action`,
	)
	if err != nil {
		return nil, classifyPgError(err)
	}
	return scanGrants(rows)
}

func scanGrants(rows pgx.Rows) ([]authz.Grant, error) {
	defer rows.Close()
	var out []authz.Grant
	for rows.Next() {
		var role, module, action string
		var g authz.Grant
		if err := rows.Scan(&role, &module, &action, &g.Allowed); err != nil {
			return nil, err
		}
		g.Role, g.Module, g.Action = authz.Role(role), authz.Module(module), authz.Action(action)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError(err)
	}
	return out, nil
}

// classifyPgError maps constraint violations to ErrInvalidGrantTuple. Other
// errors are returned as is for the service to classify.
func classifyPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23514", "23502", "22P02":
			return fmt.Errorf("%w: %s", authz.ErrInvalidGrantTuple, pgErr.Message)
		}
	}
	return err
}

var _ authz.GrantStore = (*PostgresStore)(nil)
