package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nbsearch/notebook-indexer/internal/notebook"
)

// RepoStore persists repository records in Postgres.
type RepoStore struct {
	pool  pgxPool
	idGen notebook.IDGenerator
}

// NewRepoStore constructs a store over an existing pool.
func NewRepoStore(pool pgxPool, idGen notebook.IDGenerator) (*RepoStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RepoStore{pool: pool, idGen: idGen}, nil
}

const upsertRepoSQL = `
INSERT INTO repositories (id, owner, name)
VALUES ($1, $2, $3)
ON CONFLICT (owner, name) DO UPDATE SET owner = EXCLUDED.owner
RETURNING id, owner, name, default_branch`

// Ensure creates the repository record if absent and returns it either way.
func (s *RepoStore) Ensure(ctx context.Context, owner, name string) (notebook.Repository, error) {
	id, err := s.idGen.NewID()
	if err != nil {
		return notebook.Repository{}, fmt.Errorf("generate repository id: %w", err)
	}
	var repo notebook.Repository
	row := s.pool.QueryRow(ctx, upsertRepoSQL, id, owner, name)
	if err := row.Scan(&repo.ID, &repo.Owner, &repo.Name, &repo.DefaultBranch); err != nil {
		return notebook.Repository{}, fmt.Errorf("ensure repository %s/%s: %w", owner, name, err)
	}
	return repo, nil
}

// Load returns one repository or notebook.ErrNotFound.
func (s *RepoStore) Load(ctx context.Context, id string) (notebook.Repository, error) {
	var repo notebook.Repository
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner, name, default_branch FROM repositories WHERE id = $1`, id)
	err := row.Scan(&repo.ID, &repo.Owner, &repo.Name, &repo.DefaultBranch)
	if errors.Is(err, pgx.ErrNoRows) {
		return notebook.Repository{}, notebook.ErrNotFound
	}
	if err != nil {
		return notebook.Repository{}, fmt.Errorf("load repository %s: %w", id, err)
	}
	return repo, nil
}

// SetDefaultBranch records the repository's default branch.
func (s *RepoStore) SetDefaultBranch(ctx context.Context, id, branch string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE repositories SET default_branch = $2 WHERE id = $1`, id, branch)
	if err != nil {
		return fmt.Errorf("set default branch for repository %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notebook.ErrNotFound
	}
	return nil
}
