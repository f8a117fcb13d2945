// Package notebook defines core types shared across subsystems.
package notebook

import "time"

// Candidate is a normalized search-result item that has not been persisted yet.
type Candidate struct {
	OwnerLogin     string `json:"owner_login"`
	OwnerAvatarURL string `json:"owner_avatar_url"`
	RepoName       string `json:"repo_name"`
	Filename       string `json:"filename"`
	HTMLURL        string `json:"html_url"`
}

// Notebook is a discovered document persisted by the indexer.
//
// (OwnerLogin, RepoName, Filename) uniquely identifies a notebook;
// re-ingesting the same candidate upserts rather than duplicates.
type Notebook struct {
	ID             string     `json:"id"`
	UserID         *string    `json:"user_id,omitempty"`
	RepoID         string     `json:"repo_id"`
	OwnerLogin     string     `json:"owner_login"`
	OwnerAvatarURL string     `json:"owner_avatar_url"`
	RepoName       string     `json:"repo_name"`
	Filename       string     `json:"filename"`
	HTMLURL        string     `json:"html_url"`
	URL            *string    `json:"url,omitempty"`
	Content        *string    `json:"content,omitempty"`
	Title          string     `json:"title,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	SyncedAt       *time.Time `json:"synced_at,omitempty"`
}

// Repository is an owner/name pair with a default branch that stays nil
// until a repo sync job resolves it.
type Repository struct {
	ID            string    `json:"id"`
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	DefaultBranch *string   `json:"default_branch,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ContentUpdate carries the attributes a content sync job persists.
// URL stays nil when only the commit-pinned fetch succeeded.
type ContentUpdate struct {
	Content string
	URL     *string
	Title   string
}
