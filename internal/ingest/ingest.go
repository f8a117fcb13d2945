// Package ingest drives periodic discovery sweeps: it pages through code
// search results, persists candidates, and enqueues content syncs.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nbsearch/notebook-indexer/internal/metrics"
	"github.com/nbsearch/notebook-indexer/internal/notebook"
	"github.com/nbsearch/notebook-indexer/internal/queue"
	"github.com/nbsearch/notebook-indexer/internal/search"
)

// Searcher is the slice of the search fetcher the ingest loop needs.
type Searcher interface {
	Search(ctx context.Context, opts search.Options) (search.Outcome, error)
}

// Config controls sweep pacing and paging.
type Config struct {
	APIKey     string
	Query      string
	PerPage    int
	MaxPages   int
	Interval   time.Duration
	Ascending  bool
	SweepLimit int
}

// CycleStats summarizes one discovery cycle.
type CycleStats struct {
	Pages      int
	Upserted   int
	Skipped    int
	Enqueued   int
	Reenqueued int
}

// Service runs the discovery loop.
type Service struct {
	fetcher   Searcher
	repos     notebook.RepoStore
	notebooks notebook.Store
	enqueuer  queue.Enqueuer
	cfg       Config
	logger    *zap.Logger
}

// New constructs an ingest service.
func New(fetcher Searcher, repos notebook.RepoStore, notebooks notebook.Store, enqueuer queue.Enqueuer, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 30
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.SweepLimit <= 0 {
		cfg.SweepLimit = 100
	}
	return &Service{
		fetcher:   fetcher,
		repos:     repos,
		notebooks: notebooks,
		enqueuer:  enqueuer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes one cycle immediately and then one per interval until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Service) runCycle(ctx context.Context) {
	stats, err := s.Cycle(ctx)
	if err != nil {
		s.logger.Warn("ingest cycle finished with error",
			zap.Error(err),
			zap.Int("pages", stats.Pages),
			zap.Int("upserted", stats.Upserted))
		return
	}
	s.logger.Info("ingest cycle complete",
		zap.Int("pages", stats.Pages),
		zap.Int("upserted", stats.Upserted),
		zap.Int("skipped", stats.Skipped),
		zap.Int("enqueued", stats.Enqueued),
		zap.Int("reenqueued", stats.Reenqueued))
}

// Cycle pages through search results until an empty page, the reported total,
// or the page cap, then re-enqueues stale unresolved records.
func (s *Service) Cycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	for page := 1; page <= s.cfg.MaxPages; page++ {
		outcome, err := s.fetcher.Search(ctx, search.Options{
			Page:      page,
			PerPage:   s.cfg.PerPage,
			Ascending: s.cfg.Ascending,
			Query:     s.cfg.Query,
			APIKey:    s.cfg.APIKey,
		})
		if err != nil {
			return stats, fmt.Errorf("search page %d: %w", page, err)
		}
		stats.Pages++
		stats.Skipped += outcome.Skipped
		metrics.ObserveSearchPage(len(outcome.Candidates), outcome.Skipped)

		if len(outcome.Candidates) == 0 {
			break
		}
		for _, cand := range outcome.Candidates {
			if err := s.ingestCandidate(ctx, cand, &stats); err != nil {
				s.logger.Warn("candidate ingest failed",
					zap.String("owner", cand.OwnerLogin),
					zap.String("repo", cand.RepoName),
					zap.String("filename", cand.Filename),
					zap.Error(err))
			}
		}
		if page*s.cfg.PerPage >= outcome.TotalCount {
			break
		}
	}

	if err := s.sweepUnresolved(ctx, &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *Service) ingestCandidate(ctx context.Context, cand notebook.Candidate, stats *CycleStats) error {
	repo, err := s.repos.Ensure(ctx, cand.OwnerLogin, cand.RepoName)
	if err != nil {
		return fmt.Errorf("ensure repository: %w", err)
	}
	nb, err := s.notebooks.Upsert(ctx, cand, repo.ID)
	if err != nil {
		return fmt.Errorf("upsert notebook: %w", err)
	}
	metrics.ObserveNotebookUpsert()
	stats.Upserted++

	if err := s.enqueuer.Enqueue(ctx, queue.Item{
		Kind:       queue.KindContentSync,
		Key:        nb.ID,
		EnqueuedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("enqueue content sync: %w", err)
	}
	stats.Enqueued++
	return nil
}

// sweepUnresolved re-enqueues records whose content never arrived, so
// transient failures from earlier cycles are retried eventually.
func (s *Service) sweepUnresolved(ctx context.Context, stats *CycleStats) error {
	unresolved, err := s.notebooks.ListUnresolved(ctx, s.cfg.SweepLimit)
	if err != nil {
		return fmt.Errorf("list unresolved notebooks: %w", err)
	}
	for _, nb := range unresolved {
		if err := s.enqueuer.Enqueue(ctx, queue.Item{
			Kind:       queue.KindContentSync,
			Key:        nb.ID,
			EnqueuedAt: time.Now(),
		}); err != nil {
			return fmt.Errorf("re-enqueue notebook %s: %w", nb.ID, err)
		}
		stats.Reenqueued++
	}
	return nil
}
