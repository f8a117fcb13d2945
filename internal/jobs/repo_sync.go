package jobs

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/nbsearch/notebook-indexer/internal/notebook"
	"github.com/nbsearch/notebook-indexer/internal/queue"
)

// RepoSync resolves a repository's default branch from the hosting API and
// persists it. The branch is always re-derived from the authoritative source
// and overwritten, so re-running after a partial failure is safe.
type RepoSync struct {
	repos     notebook.RepoStore
	notebooks notebook.Store
	metadata  notebook.RepoMetadataClient
	enqueuer  queue.Enqueuer
	logger    *zap.Logger
}

// NewRepoSync constructs the job.
func NewRepoSync(
	repos notebook.RepoStore,
	notebooks notebook.Store,
	metadata notebook.RepoMetadataClient,
	enqueuer queue.Enqueuer,
	logger *zap.Logger,
) *RepoSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepoSync{
		repos:     repos,
		notebooks: notebooks,
		metadata:  metadata,
		enqueuer:  enqueuer,
		logger:    logger,
	}
}

// Sync resolves and persists the default branch for one repository id, then
// re-enqueues a content sync for every notebook of that repository.
func (j *RepoSync) Sync(ctx context.Context, repoID string) notebook.Outcome {
	repo, err := j.repos.Load(ctx, repoID)
	switch {
	case err == nil:
	case isNotFound(err):
		return notebook.Cancelledf("repository %s not found", repoID)
	default:
		return notebook.Retryablef("load repository %s: %w", repoID, err)
	}

	md, err := j.metadata.Metadata(ctx, repo.Owner, repo.Name)
	switch {
	case err == nil:
	case isNotFound(err):
		return notebook.Cancelledf("repository %s/%s no longer exists upstream", repo.Owner, repo.Name)
	default:
		return notebook.Retryablef("fetch metadata for %s/%s: %w", repo.Owner, repo.Name, err)
	}
	if md.DefaultBranch == "" {
		return notebook.Retryablef("metadata for %s/%s carries no default branch", repo.Owner, repo.Name)
	}

	if err := j.repos.SetDefaultBranch(ctx, repoID, md.DefaultBranch); err != nil {
		return notebook.Retryablef("persist default branch for %s: %w", repoID, err)
	}
	j.logger.Info("default branch resolved",
		zap.String("repo_id", repoID),
		zap.String("owner", repo.Owner),
		zap.String("name", repo.Name),
		zap.String("default_branch", md.DefaultBranch),
	)

	return j.retriggerContentSyncs(ctx, repoID)
}

// retriggerContentSyncs enqueues a fresh content sync for every notebook
// referencing the repository; the chained jobs were cancelled while the
// branch was unknown.
func (j *RepoSync) retriggerContentSyncs(ctx context.Context, repoID string) notebook.Outcome {
	nbs, err := j.notebooks.ListByRepo(ctx, repoID)
	if err != nil {
		return notebook.Retryablef("list notebooks for repository %s: %w", repoID, err)
	}
	for _, nb := range nbs {
		if err := j.enqueuer.Enqueue(ctx, queue.Item{Kind: queue.KindContentSync, Key: nb.ID}); err != nil {
			return notebook.Retryablef("enqueue content sync for %s: %w", nb.ID, err)
		}
	}
	return notebook.Synced()
}

func isNotFound(err error) bool {
	return errors.Is(err, notebook.ErrNotFound)
}
