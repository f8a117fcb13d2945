package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nbsearch/notebook-indexer/internal/config"
	"github.com/nbsearch/notebook-indexer/internal/metrics"
	"github.com/nbsearch/notebook-indexer/internal/notebook"
	"github.com/nbsearch/notebook-indexer/internal/queue"
	storemem "github.com/nbsearch/notebook-indexer/internal/storage/memory"
)

func init() {
	metrics.Init()
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return string(rune('a'+g.n-1)) + "-id", nil
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	items []queue.Item
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, item queue.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	return nil
}

func (r *recordingEnqueuer) recorded() []queue.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]queue.Item, len(r.items))
	copy(out, r.items)
	return out
}

type serverFixture struct {
	server    *Server
	notebooks *storemem.NotebookStore
	repos     *storemem.RepoStore
	enqueuer  *recordingEnqueuer
}

func newFixture(t *testing.T, cfg config.Config) *serverFixture {
	t.Helper()
	ids := &seqIDGen{}
	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	notebooks := storemem.NewNotebookStore(ids, clk)
	repos := storemem.NewRepoStore(ids, clk)
	enq := &recordingEnqueuer{}
	return &serverFixture{
		server:    NewServer(notebooks, repos, enq, clk, cfg, zap.NewNop()),
		notebooks: notebooks,
		repos:     repos,
		enqueuer:  enq,
	}
}

func (f *serverFixture) seed(t *testing.T) notebook.Notebook {
	t.Helper()
	repo, err := f.repos.Ensure(context.Background(), "alice", "charts")
	require.NoError(t, err)
	nb, err := f.notebooks.Upsert(context.Background(), notebook.Candidate{
		OwnerLogin: "alice",
		RepoName:   "charts",
		Filename:   "nb/plot.ipynb",
		HTMLURL:    "https://github.com/alice/charts/blob/main/nb/plot.ipynb",
	}, repo.ID)
	require.NoError(t, err)
	return nb
}

func TestServerGetNotebook(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	nb := f.seed(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/notebooks/"+nb.ID, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), nb.ID)
	require.Contains(t, rec.Body.String(), "nb/plot.ipynb")
}

func TestServerGetNotebookNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/notebooks/ghost", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerSyncNotebookEnqueues(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	nb := f.seed(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/notebooks/"+nb.ID+"/sync", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	items := f.enqueuer.recorded()
	require.Len(t, items, 1)
	require.Equal(t, queue.KindContentSync, items[0].Kind)
	require.Equal(t, nb.ID, items[0].Key)
}

func TestServerSyncRepoEnqueues(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	nb := f.seed(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/repos/"+nb.RepoID+"/sync", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	items := f.enqueuer.recorded()
	require.Len(t, items, 1)
	require.Equal(t, queue.KindRepoSync, items[0].Kind)
	require.Equal(t, nb.RepoID, items[0].Key)
}

func TestServerSyncUnknownRecordRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/notebooks/ghost/sync", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, f.enqueuer.recorded())
}

func TestServerListRepoNotebooks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	nb := f.seed(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/repos/"+nb.RepoID+"/notebooks", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), nb.ID)
}

func TestServerListUnresolved(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	nb := f.seed(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/notebooks/unresolved", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), nb.ID)
}

func TestServerListUnresolvedHonorsLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	repo, err := f.repos.Ensure(context.Background(), "alice", "charts")
	require.NoError(t, err)
	for _, filename := range []string{"nb/a.ipynb", "nb/b.ipynb", "nb/c.ipynb"} {
		_, err := f.notebooks.Upsert(context.Background(), notebook.Candidate{
			OwnerLogin: "alice",
			RepoName:   "charts",
			Filename:   filename,
			HTMLURL:    "https://github.com/alice/charts/blob/main/" + filename,
		}, repo.ID)
		require.NoError(t, err)
	}

	list := func(query string) []notebook.Notebook {
		req := httptest.NewRequest(http.MethodGet, "/v1/notebooks/unresolved"+query, nil)
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Notebooks []notebook.Notebook `json:"notebooks"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Notebooks
	}

	require.Len(t, list("?limit=2"), 2)
	require.Len(t, list(""), 3)
	require.Len(t, list("?limit=bogus"), 3, "bad limit falls back to the default")
	require.Len(t, list("?limit=-5"), 3)
}

func TestServerHealthEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		f.server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestServerAPIKeyGuardsV1Only(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	f := newFixture(t, cfg)
	nb := f.seed(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/notebooks/"+nb.ID, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/notebooks/"+nb.ID, nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Probes stay open even with auth enabled.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
