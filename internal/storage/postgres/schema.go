package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS repositories (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		default_branch TEXT,
		UNIQUE (owner, name)
	)`,
	`CREATE TABLE IF NOT EXISTS notebooks (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		repo_id TEXT NOT NULL REFERENCES repositories (id),
		owner_login TEXT NOT NULL,
		owner_avatar_url TEXT NOT NULL DEFAULT '',
		repo_name TEXT NOT NULL,
		filename TEXT NOT NULL,
		html_url TEXT NOT NULL,
		url TEXT,
		content TEXT,
		title TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		synced_at TIMESTAMPTZ,
		UNIQUE (owner_login, repo_name, filename)
	)`,
	`CREATE INDEX IF NOT EXISTS notebooks_repo_id_idx ON notebooks (repo_id)`,
	`CREATE INDEX IF NOT EXISTS notebooks_unresolved_idx ON notebooks (created_at) WHERE content IS NULL`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, pool pgxPool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
