// Package directory reads actors, branches and branch assignments from the
// user directory.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-authz/internal/authz"
)

// PostgresDirectory reads the users, user_branches and branches tables.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory constructs a directory backed by pool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// GetActor loads one user. Ids that are not UUIDs cannot exist.
func (d *PostgresDirectory) GetActor(ctx context.Context, id string) (authz.Actor, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return authz.Actor{}, fmt.Errorf("%w: %q", authz.ErrActorNotFound, id)
	}
	var actor authz.Actor
	err = d.pool.QueryRow(ctx,
		`SELECT id::text, COALESCE(role, ''), is_active FROM users WHERE id = $1`, uid,
	).Scan(&actor.ID, &actor.RawRole, &actor.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Actor{}, fmt.Errorf("%w: %q", authz.ErrActorNotFound, id)
		}
		return authz.Actor{}, err
	}
	return actor, nil
}

// ListActors returns every user, active or not.
func (d *PostgresDirectory) ListActors(ctx context.Context) ([]authz.Actor, error) {
	rows, err := d.pool.Query(ctx, `SELECT id::text, COALESCE(role, ''), is_active FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actors []authz.Actor
	for rows.Next() {
		var a authz.Actor
		if err := rows.Scan(&a.ID, &a.RawRole, &a.Active); err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actors, nil
}

// ListBranches returns all branches ordered by name.
func (d *PostgresDirectory) ListBranches(ctx context.Context) ([]authz.Branch, error) {
	rows, err := d.pool.Query(ctx, `SELECT id::text, name FROM branches ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var branches []authz.Branch
	for rows.Next() {
		var b authz.Branch
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

// BranchAssignment returns the branch ids stored for the user. Unknown
// users have no assignment.
func (d *PostgresDirectory) BranchAssignment(ctx context.Context, actorID string) ([]string, error) {
	uid, err := uuid.Parse(actorID)
	if err != nil {
		return nil, nil
	}
	rows, err := d.pool.Query(ctx, `SELECT branch_id::text FROM user_branches WHERE user_id = $1 ORDER BY branch_id`, uid)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

var _ authz.Directory = (*PostgresDirectory)(nil)
