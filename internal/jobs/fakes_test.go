package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/nbsearch/notebook-indexer/internal/metrics"
	"github.com/nbsearch/notebook-indexer/internal/notebook"
	"github.com/nbsearch/notebook-indexer/internal/queue"
)

func init() {
	metrics.Init()
}

type fakeNotebookStore struct {
	mu        sync.Mutex
	notebooks map[string]notebook.Notebook
	updates   []notebook.ContentUpdate
	loadErr   error
	updateErr error
	listErr   error
}

func newFakeNotebookStore(nbs ...notebook.Notebook) *fakeNotebookStore {
	s := &fakeNotebookStore{notebooks: make(map[string]notebook.Notebook)}
	for _, nb := range nbs {
		s.notebooks[nb.ID] = nb
	}
	return s
}

func (s *fakeNotebookStore) Upsert(_ context.Context, c notebook.Candidate, _ string) (notebook.Notebook, error) {
	return notebook.Notebook{}, fmt.Errorf("not used in job tests: %v", c)
}

func (s *fakeNotebookStore) Load(_ context.Context, id string) (notebook.Notebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return notebook.Notebook{}, s.loadErr
	}
	nb, ok := s.notebooks[id]
	if !ok {
		return notebook.Notebook{}, notebook.ErrNotFound
	}
	return nb, nil
}

func (s *fakeNotebookStore) UpdateContent(_ context.Context, id string, update notebook.ContentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	nb, ok := s.notebooks[id]
	if !ok {
		return notebook.ErrNotFound
	}
	content := update.Content
	nb.Content = &content
	nb.URL = update.URL
	nb.Title = update.Title
	s.notebooks[id] = nb
	s.updates = append(s.updates, update)
	return nil
}

func (s *fakeNotebookStore) ListByRepo(_ context.Context, repoID string) ([]notebook.Notebook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []notebook.Notebook
	for _, nb := range s.notebooks {
		if nb.RepoID == repoID {
			out = append(out, nb)
		}
	}
	return out, nil
}

func (s *fakeNotebookStore) ListUnresolved(context.Context, int) ([]notebook.Notebook, error) {
	return nil, nil
}

func (s *fakeNotebookStore) get(id string) notebook.Notebook {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notebooks[id]
}

type fakeRepoStore struct {
	mu       sync.Mutex
	repos    map[string]notebook.Repository
	branches []string
	setErr   error
}

func newFakeRepoStore(repos ...notebook.Repository) *fakeRepoStore {
	s := &fakeRepoStore{repos: make(map[string]notebook.Repository)}
	for _, r := range repos {
		s.repos[r.ID] = r
	}
	return s
}

func (s *fakeRepoStore) Ensure(_ context.Context, owner, name string) (notebook.Repository, error) {
	return notebook.Repository{}, fmt.Errorf("not used in job tests: %s/%s", owner, name)
}

func (s *fakeRepoStore) Load(_ context.Context, id string) (notebook.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return notebook.Repository{}, notebook.ErrNotFound
	}
	return r, nil
}

func (s *fakeRepoStore) SetDefaultBranch(_ context.Context, id, branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	r, ok := s.repos[id]
	if !ok {
		return notebook.ErrNotFound
	}
	r.DefaultBranch = &branch
	s.repos[id] = r
	s.branches = append(s.branches, branch)
	return nil
}

func (s *fakeRepoStore) get(id string) notebook.Repository {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos[id]
}

type fakeRawFetcher struct {
	mu        sync.Mutex
	responses map[string]notebook.RawResponse
	errs      map[string]error
	requested []string
}

func newFakeRawFetcher() *fakeRawFetcher {
	return &fakeRawFetcher{
		responses: make(map[string]notebook.RawResponse),
		errs:      make(map[string]error),
	}
}

func (f *fakeRawFetcher) respond(url string, status int, body string) {
	f.responses[url] = notebook.RawResponse{URL: url, StatusCode: status, Body: []byte(body)}
}

func (f *fakeRawFetcher) Fetch(_ context.Context, url string) (notebook.RawResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, url)
	if err, ok := f.errs[url]; ok {
		return notebook.RawResponse{}, err
	}
	resp, ok := f.responses[url]
	if !ok {
		return notebook.RawResponse{}, fmt.Errorf("unexpected fetch of %s", url)
	}
	return resp, nil
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	items []queue.Item
	err   error
}

func (e *fakeEnqueuer) Enqueue(_ context.Context, item queue.Item) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.items = append(e.items, item)
	return nil
}

func (e *fakeEnqueuer) enqueued() []queue.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]queue.Item, len(e.items))
	copy(out, e.items)
	return out
}

type fakeMetadataClient struct {
	metadata notebook.RepoMetadata
	err      error
	calls    int
}

func (c *fakeMetadataClient) Metadata(context.Context, string, string) (notebook.RepoMetadata, error) {
	c.calls++
	if c.err != nil {
		return notebook.RepoMetadata{}, c.err
	}
	return c.metadata, nil
}

type fakeBlobStore struct {
	mu    sync.Mutex
	paths []string
}

func (b *fakeBlobStore) PutObject(_ context.Context, path, _ string, _ []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.paths = append(b.paths, path)
	return "mem://" + path, nil
}

type fakeHasher struct{ hash string }

func (h *fakeHasher) Hash([]byte) (string, error) { return h.hash, nil }

func strPtr(s string) *string { return &s }
