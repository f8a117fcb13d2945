// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nbsearch/notebook-indexer/internal/notebook"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewPool builds a pgx pool from the config.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// NotebookStore persists notebook records in Postgres.
type NotebookStore struct {
	pool  pgxPool
	idGen notebook.IDGenerator
	clock notebook.Clock
}

// NewNotebookStore constructs a store over an existing pool.
func NewNotebookStore(pool pgxPool, idGen notebook.IDGenerator, clock notebook.Clock) (*NotebookStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &NotebookStore{pool: pool, idGen: idGen, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *NotebookStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const notebookColumns = `id, user_id, repo_id, owner_login, owner_avatar_url,
	repo_name, filename, html_url, url, content, title, created_at, updated_at, synced_at`

const upsertNotebookSQL = `
INSERT INTO notebooks (
	id, user_id, repo_id, owner_login, owner_avatar_url,
	repo_name, filename, html_url, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
ON CONFLICT (owner_login, repo_name, filename) DO UPDATE SET
	owner_avatar_url = EXCLUDED.owner_avatar_url,
	html_url = EXCLUDED.html_url,
	updated_at = EXCLUDED.updated_at
RETURNING ` + notebookColumns

// Upsert creates or refreshes a candidate's record atomically on the
// (owner_login, repo_name, filename) unique key.
func (s *NotebookStore) Upsert(ctx context.Context, c notebook.Candidate, repoID string) (notebook.Notebook, error) {
	id, err := s.idGen.NewID()
	if err != nil {
		return notebook.Notebook{}, fmt.Errorf("generate notebook id: %w", err)
	}
	row := s.pool.QueryRow(ctx, upsertNotebookSQL,
		id,
		c.OwnerLogin,
		repoID,
		c.OwnerLogin,
		c.OwnerAvatarURL,
		c.RepoName,
		c.Filename,
		c.HTMLURL,
		s.clock.Now(),
	)
	nb, err := scanNotebook(row)
	if err != nil {
		return notebook.Notebook{}, fmt.Errorf("upsert notebook %s/%s/%s: %w", c.OwnerLogin, c.RepoName, c.Filename, err)
	}
	return nb, nil
}

// Load returns one notebook or notebook.ErrNotFound.
func (s *NotebookStore) Load(ctx context.Context, id string) (notebook.Notebook, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+notebookColumns+` FROM notebooks WHERE id = $1`, id)
	nb, err := scanNotebook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return notebook.Notebook{}, notebook.ErrNotFound
	}
	if err != nil {
		return notebook.Notebook{}, fmt.Errorf("load notebook %s: %w", id, err)
	}
	return nb, nil
}

// UpdateContent persists the enrichment attributes for one notebook.
func (s *NotebookStore) UpdateContent(ctx context.Context, id string, update notebook.ContentUpdate) error {
	now := s.clock.Now()
	tag, err := s.pool.Exec(ctx, `
UPDATE notebooks
SET content = $2, url = $3, title = $4, updated_at = $5, synced_at = $5
WHERE id = $1`,
		id, update.Content, update.URL, update.Title, now)
	if err != nil {
		return fmt.Errorf("update notebook %s content: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notebook.ErrNotFound
	}
	return nil
}

// ListByRepo returns all notebooks referencing the repository.
func (s *NotebookStore) ListByRepo(ctx context.Context, repoID string) ([]notebook.Notebook, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+notebookColumns+` FROM notebooks WHERE repo_id = $1 ORDER BY created_at`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list notebooks for repo %s: %w", repoID, err)
	}
	defer rows.Close()
	return collectNotebooks(rows)
}

// ListUnresolved returns notebooks whose content has not been fetched yet.
func (s *NotebookStore) ListUnresolved(ctx context.Context, limit int) ([]notebook.Notebook, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+notebookColumns+` FROM notebooks WHERE content IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unresolved notebooks: %w", err)
	}
	defer rows.Close()
	return collectNotebooks(rows)
}

func collectNotebooks(rows pgx.Rows) ([]notebook.Notebook, error) {
	var out []notebook.Notebook
	for rows.Next() {
		nb, err := scanNotebook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notebook row: %w", err)
		}
		out = append(out, nb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notebook rows: %w", err)
	}
	return out, nil
}

func scanNotebook(row pgx.Row) (notebook.Notebook, error) {
	var nb notebook.Notebook
	err := row.Scan(
		&nb.ID,
		&nb.UserID,
		&nb.RepoID,
		&nb.OwnerLogin,
		&nb.OwnerAvatarURL,
		&nb.RepoName,
		&nb.Filename,
		&nb.HTMLURL,
		&nb.URL,
		&nb.Content,
		&nb.Title,
		&nb.CreatedAt,
		&nb.UpdatedAt,
		&nb.SyncedAt,
	)
	return nb, err
}
