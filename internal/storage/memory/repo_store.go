package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/nbsearch/notebook-indexer/internal/notebook"
)

// RepoStore keeps repository records in memory keyed by (owner, name).
type RepoStore struct {
	mu    sync.RWMutex
	byID  map[string]notebook.Repository
	byKey map[string]string
	idGen notebook.IDGenerator
	clock notebook.Clock
}

// NewRepoStore constructs an empty store.
func NewRepoStore(idGen notebook.IDGenerator, clock notebook.Clock) *RepoStore {
	return &RepoStore{
		byID:  make(map[string]notebook.Repository),
		byKey: make(map[string]string),
		idGen: idGen,
		clock: clock,
	}
}

// Ensure returns the repository for (owner, name), creating it on first
// reference with an unknown default branch.
func (s *RepoStore) Ensure(_ context.Context, owner, name string) (notebook.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := owner + "\x00" + name
	if id, ok := s.byKey[key]; ok {
		return s.byID[id], nil
	}

	id, err := s.idGen.NewID()
	if err != nil {
		return notebook.Repository{}, fmt.Errorf("generate repository id: %w", err)
	}
	now := s.clock.Now()
	repo := notebook.Repository{
		ID:        id,
		Owner:     owner,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[id] = repo
	s.byKey[key] = id
	return repo, nil
}

// Load returns the record or notebook.ErrNotFound.
func (s *RepoStore) Load(_ context.Context, id string) (notebook.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	repo, ok := s.byID[id]
	if !ok {
		return notebook.Repository{}, notebook.ErrNotFound
	}
	return repo, nil
}

// SetDefaultBranch overwrites the default branch for the repository.
func (s *RepoStore) SetDefaultBranch(_ context.Context, id, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.byID[id]
	if !ok {
		return notebook.ErrNotFound
	}
	repo.DefaultBranch = &branch
	repo.UpdatedAt = s.clock.Now()
	s.byID[id] = repo
	return nil
}
