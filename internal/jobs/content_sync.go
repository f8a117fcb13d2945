// Package jobs implements the asynchronous enrichment jobs executed by the
// worker runtime.
package jobs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nbsearch/notebook-indexer/internal/metrics"
	"github.com/nbsearch/notebook-indexer/internal/notebook"
	"github.com/nbsearch/notebook-indexer/internal/queue"
)

// ContentSync resolves a notebook's raw content and canonical URL.
//
// The run is a four-stage railway: load and validate, resolve URLs, fetch
// with the default-branch-first fallback, persist. Any stage can produce a
// cancelled or retryable outcome, which skips the remaining stages.
type ContentSync struct {
	notebooks notebook.Store
	repos     notebook.RepoStore
	fetcher   notebook.RawFetcher
	enqueuer  queue.Enqueuer
	archive   notebook.BlobStore
	hasher    notebook.Hasher
	publisher notebook.Publisher
	topic     string
	logger    *zap.Logger
}

// ContentSyncOption customizes optional collaborators.
type ContentSyncOption func(*ContentSync)

// WithArchive enables raw payload archival.
func WithArchive(store notebook.BlobStore, hasher notebook.Hasher) ContentSyncOption {
	return func(j *ContentSync) {
		j.archive = store
		j.hasher = hasher
	}
}

// WithPublisher enables synced-notebook event publishing.
func WithPublisher(p notebook.Publisher, topic string) ContentSyncOption {
	return func(j *ContentSync) {
		j.publisher = p
		j.topic = topic
	}
}

// NewContentSync constructs the job.
func NewContentSync(
	notebooks notebook.Store,
	repos notebook.RepoStore,
	fetcher notebook.RawFetcher,
	enqueuer queue.Enqueuer,
	logger *zap.Logger,
	opts ...ContentSyncOption,
) *ContentSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &ContentSync{
		notebooks: notebooks,
		repos:     repos,
		fetcher:   fetcher,
		enqueuer:  enqueuer,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// contentSyncState threads intermediate values between stages.
type contentSyncState struct {
	nb           notebook.Notebook
	repo         notebook.Repository
	urls         notebook.Urls
	content      []byte
	canonicalURL *string
}

// Sync runs the pipeline for one notebook id. Re-running after a partial
// failure is safe: every stage re-derives its inputs and the final persist
// overwrites.
func (j *ContentSync) Sync(ctx context.Context, notebookID string) notebook.Outcome {
	var st contentSyncState
	out := j.load(ctx, notebookID, &st).
		Then(func() notebook.Outcome { return j.resolveURLs(&st) }).
		Then(func() notebook.Outcome { return j.fetchContent(ctx, &st) }).
		Then(func() notebook.Outcome { return j.persist(ctx, &st) })

	j.logger.Debug("content sync finished",
		zap.String("notebook_id", notebookID),
		zap.String("outcome", out.String()),
	)
	return out
}

// load fetches the notebook with its associations and validates the
// prerequisites that retrying cannot fix.
func (j *ContentSync) load(ctx context.Context, id string, st *contentSyncState) notebook.Outcome {
	nb, err := j.notebooks.Load(ctx, id)
	switch {
	case err == nil:
	case isNotFound(err):
		return notebook.Cancelledf("notebook %s not found", id)
	default:
		return notebook.Retryablef("load notebook %s: %w", id, err)
	}
	if nb.UserID == nil || *nb.UserID == "" {
		return notebook.Cancelledf("notebook %s has no user association", id)
	}
	if nb.RepoID == "" {
		return notebook.Cancelledf("notebook %s has no repository association", id)
	}

	repo, err := j.repos.Load(ctx, nb.RepoID)
	switch {
	case err == nil:
	case isNotFound(err):
		return notebook.Cancelledf("notebook %s references missing repository %s", id, nb.RepoID)
	default:
		return notebook.Retryablef("load repository %s: %w", nb.RepoID, err)
	}

	if repo.DefaultBranch == nil || *repo.DefaultBranch == "" {
		// Dependency chaining: never block on the repo sync, just hand the
		// repository off and rely on its completion to re-enqueue us.
		if err := j.enqueuer.Enqueue(ctx, queue.Item{Kind: queue.KindRepoSync, Key: repo.ID}); err != nil {
			return notebook.Retryablef("enqueue repo sync for %s: %w", repo.ID, err)
		}
		return notebook.Cancelledf("repository %s has no default branch; repo sync enqueued", repo.ID)
	}

	st.nb = nb
	st.repo = repo
	return notebook.Synced()
}

func (j *ContentSync) resolveURLs(st *contentSyncState) notebook.Outcome {
	st.urls = notebook.ResolveURLs(
		st.nb.OwnerLogin,
		st.nb.RepoName,
		st.nb.Filename,
		st.repo.DefaultBranch,
		st.nb.HTMLURL,
	)
	if st.urls.Empty() {
		return notebook.Cancelledf("no resolvable content urls for notebook %s", st.nb.ID)
	}
	return notebook.Synced()
}

// fetchContent tries the default-branch URL first; only 200 and 404 are
// meaningful, anything else is transient.
func (j *ContentSync) fetchContent(ctx context.Context, st *contentSyncState) notebook.Outcome {
	if url := st.urls.RawDefaultBranchURL; url != "" {
		resp, err := j.fetcher.Fetch(ctx, url)
		if err != nil {
			return notebook.Retryablef("fetch %s: %w", url, err)
		}
		metrics.ObserveRawFetch(resp.StatusCode)
		switch resp.StatusCode {
		case http.StatusOK:
			st.content = resp.Body
			st.canonicalURL = &st.urls.RawDefaultBranchURL
			return notebook.Synced()
		case http.StatusNotFound:
			// fall through to the commit-pinned attempt
		default:
			return notebook.Retryablef("fetch %s returned status %d", url, resp.StatusCode)
		}
	}

	if st.urls.RawCommitURL == "" {
		return notebook.Cancelled("raw_commit_url is nil")
	}

	resp, err := j.fetcher.Fetch(ctx, st.urls.RawCommitURL)
	if err != nil {
		return notebook.Retryablef("fetch %s: %w", st.urls.RawCommitURL, err)
	}
	metrics.ObserveRawFetch(resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusOK:
		// The commit-pinned URL is not canonical; content is kept, url stays nil.
		st.content = resp.Body
		st.canonicalURL = nil
		return notebook.Synced()
	case http.StatusNotFound:
		return notebook.Cancelledf("content for notebook %s gone upstream: both raw urls returned 404", st.nb.ID)
	default:
		return notebook.Retryablef("fetch %s returned status %d", st.urls.RawCommitURL, resp.StatusCode)
	}
}

// persist writes the update unconditionally; empty content is a legitimate
// record. Archive and publish are best-effort extras and never change the
// outcome.
func (j *ContentSync) persist(ctx context.Context, st *contentSyncState) notebook.Outcome {
	update := notebook.ContentUpdate{
		Content: string(st.content),
		URL:     st.canonicalURL,
		Title:   notebook.TitleFromContent(st.content, st.nb.Filename),
	}
	if err := j.notebooks.UpdateContent(ctx, st.nb.ID, update); err != nil {
		return notebook.Retryablef("persist notebook %s (url=%s, %d bytes): %w",
			st.nb.ID, urlForLog(update.URL), len(update.Content), err)
	}

	j.archivePayload(ctx, st)
	j.publishSynced(ctx, st, update)
	return notebook.Synced()
}

func (j *ContentSync) archivePayload(ctx context.Context, st *contentSyncState) {
	if j.archive == nil || j.hasher == nil || len(st.content) == 0 {
		return
	}
	hash, err := j.hasher.Hash(st.content)
	if err != nil {
		j.logger.Warn("hash content failed", zap.String("notebook_id", st.nb.ID), zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/%s.ipynb", st.nb.OwnerLogin, st.nb.RepoName, hash)
	if _, err := j.archive.PutObject(ctx, path, "application/x-ipynb+json", st.content); err != nil {
		j.logger.Warn("archive content failed",
			zap.String("notebook_id", st.nb.ID),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

func (j *ContentSync) publishSynced(ctx context.Context, st *contentSyncState, update notebook.ContentUpdate) {
	if j.publisher == nil || j.topic == "" {
		return
	}
	payload := map[string]any{
		"notebook_id": st.nb.ID,
		"owner":       st.nb.OwnerLogin,
		"repo":        st.nb.RepoName,
		"filename":    st.nb.Filename,
		"url":         update.URL,
		"bytes":       len(update.Content),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := j.publisher.Publish(ctx, j.topic, payload); err != nil {
		j.logger.Warn("publish synced event failed", zap.String("notebook_id", st.nb.ID), zap.Error(err))
	}
}

func urlForLog(u *string) string {
	if u == nil {
		return "<nil>"
	}
	return *u
}
