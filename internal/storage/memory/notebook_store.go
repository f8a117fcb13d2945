// Package memory contains in-memory store implementations for tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nbsearch/notebook-indexer/internal/notebook"
)

// NotebookStore keeps notebook records in memory with upsert semantics on
// (owner_login, repo_name, filename).
type NotebookStore struct {
	mu    sync.RWMutex
	byID  map[string]notebook.Notebook
	byKey map[string]string
	idGen notebook.IDGenerator
	clock notebook.Clock
}

// NewNotebookStore constructs an empty store.
func NewNotebookStore(idGen notebook.IDGenerator, clock notebook.Clock) *NotebookStore {
	return &NotebookStore{
		byID:  make(map[string]notebook.Notebook),
		byKey: make(map[string]string),
		idGen: idGen,
		clock: clock,
	}
}

func identityKey(owner, repo, filename string) string {
	return owner + "\x00" + repo + "\x00" + filename
}

// Upsert creates or refreshes the record for a candidate. Attribution is
// keyed on the owner login at creation time.
func (s *NotebookStore) Upsert(_ context.Context, c notebook.Candidate, repoID string) (notebook.Notebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	key := identityKey(c.OwnerLogin, c.RepoName, c.Filename)
	if id, ok := s.byKey[key]; ok {
		nb := s.byID[id]
		nb.OwnerAvatarURL = c.OwnerAvatarURL
		nb.HTMLURL = c.HTMLURL
		nb.UpdatedAt = now
		s.byID[id] = nb
		return nb, nil
	}

	id, err := s.idGen.NewID()
	if err != nil {
		return notebook.Notebook{}, fmt.Errorf("generate notebook id: %w", err)
	}
	owner := c.OwnerLogin
	nb := notebook.Notebook{
		ID:             id,
		UserID:         &owner,
		RepoID:         repoID,
		OwnerLogin:     c.OwnerLogin,
		OwnerAvatarURL: c.OwnerAvatarURL,
		RepoName:       c.RepoName,
		Filename:       c.Filename,
		HTMLURL:        c.HTMLURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.byID[id] = nb
	s.byKey[key] = id
	return nb, nil
}

// Load returns the record or notebook.ErrNotFound.
func (s *NotebookStore) Load(_ context.Context, id string) (notebook.Notebook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nb, ok := s.byID[id]
	if !ok {
		return notebook.Notebook{}, notebook.ErrNotFound
	}
	return nb, nil
}

// UpdateContent persists the enrichment attributes for one notebook.
func (s *NotebookStore) UpdateContent(_ context.Context, id string, update notebook.ContentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nb, ok := s.byID[id]
	if !ok {
		return notebook.ErrNotFound
	}
	now := s.clock.Now()
	content := update.Content
	nb.Content = &content
	nb.URL = update.URL
	nb.Title = update.Title
	nb.UpdatedAt = now
	nb.SyncedAt = &now
	s.byID[id] = nb
	return nil
}

// ListByRepo returns all notebooks referencing the repository.
func (s *NotebookStore) ListByRepo(_ context.Context, repoID string) ([]notebook.Notebook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []notebook.Notebook
	for _, nb := range s.byID {
		if nb.RepoID == repoID {
			out = append(out, nb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListUnresolved returns notebooks whose content has not been fetched yet.
func (s *NotebookStore) ListUnresolved(_ context.Context, limit int) ([]notebook.Notebook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []notebook.Notebook
	for _, nb := range s.byID {
		if nb.Content == nil {
			out = append(out, nb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored notebooks.
func (s *NotebookStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
