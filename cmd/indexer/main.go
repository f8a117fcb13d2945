package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/nbsearch/notebook-indexer/internal/api"
	archivegcs "github.com/nbsearch/notebook-indexer/internal/archive/gcs"
	archivelocal "github.com/nbsearch/notebook-indexer/internal/archive/local"
	archivememory "github.com/nbsearch/notebook-indexer/internal/archive/memory"
	"github.com/nbsearch/notebook-indexer/internal/clock/system"
	"github.com/nbsearch/notebook-indexer/internal/config"
	"github.com/nbsearch/notebook-indexer/internal/dispatcher"
	"github.com/nbsearch/notebook-indexer/internal/githubapi"
	"github.com/nbsearch/notebook-indexer/internal/hash/sha256"
	"github.com/nbsearch/notebook-indexer/internal/id/uuid"
	"github.com/nbsearch/notebook-indexer/internal/ingest"
	"github.com/nbsearch/notebook-indexer/internal/jobs"
	"github.com/nbsearch/notebook-indexer/internal/logging"
	"github.com/nbsearch/notebook-indexer/internal/metrics"
	"github.com/nbsearch/notebook-indexer/internal/notebook"
	pubsubpublisher "github.com/nbsearch/notebook-indexer/internal/publisher/pubsub"
	"github.com/nbsearch/notebook-indexer/internal/queue"
	queueMemory "github.com/nbsearch/notebook-indexer/internal/queue/memory"
	"github.com/nbsearch/notebook-indexer/internal/ratelimit"
	"github.com/nbsearch/notebook-indexer/internal/search"
	storageMemory "github.com/nbsearch/notebook-indexer/internal/storage/memory"
	storagePostgres "github.com/nbsearch/notebook-indexer/internal/storage/postgres"
	"github.com/nbsearch/notebook-indexer/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.NewUUIDGenerator()
	hasher := sha256.New()

	notebooks, repos, closeStores, err := buildStores(ctx, cfg, idGen, clock)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer closeStores()

	q := queueMemory.NewQueue(cfg.Queue.Depth, cfg.DedupWindow())
	defer q.Close()

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.GitHub.RPS,
		DefaultBurst: cfg.GitHub.Burst,
	})
	ghClient := githubapi.NewClient(githubapi.WithLimiter(limiter))
	repoClient := githubapi.NewRepoClient(cfg.GitHub.Token)

	contentOpts, closeExtras, err := buildContentSyncOptions(ctx, cfg, hasher, logger)
	if err != nil {
		logger.Fatal("archive/publisher init failed", zap.Error(err))
	}
	defer closeExtras()

	contentSync := jobs.NewContentSync(notebooks, repos, ghClient, q, logger.Named("content_sync"), contentOpts...)
	repoSync := jobs.NewRepoSync(repos, notebooks, repoClient, q, logger.Named("repo_sync"))

	handlers := map[queue.Kind]worker.Handler{
		queue.KindContentSync: contentSync.Sync,
		queue.KindRepoSync:    repoSync.Sync,
	}
	retry := worker.NewRetryPolicy(cfg.Queue.MaxAttempts, cfg.BackoffBase(), cfg.BackoffMax())

	var workers []*worker.Worker
	for i := 0; i < cfg.Workers.Concurrency; i++ {
		workers = append(workers, worker.New(
			q,
			handlers,
			retry,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(q, workers)

	apiServer := api.NewServer(notebooks, repos, q, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Workers.Concurrency))
		dispatch.Run(ctx)
	}()

	if cfg.Search.Enabled {
		fetcher := search.NewFetcher(ghClient, logger.Named("search"))
		svc := ingest.New(fetcher, repos, notebooks, q, ingest.Config{
			APIKey:     cfg.GitHub.APIKey,
			Query:      cfg.Search.Query,
			PerPage:    cfg.Search.PerPage,
			MaxPages:   cfg.Search.MaxPages,
			Interval:   cfg.SearchInterval(),
			Ascending:  cfg.Search.Ascending,
			SweepLimit: cfg.Search.SweepLimit,
		}, logger.Named("ingest"))
		go func() {
			logger.Info("ingest loop started", zap.Duration("interval", cfg.SearchInterval()))
			if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("ingest loop stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildStores(
	ctx context.Context,
	cfg config.Config,
	idGen notebook.IDGenerator,
	clock notebook.Clock,
) (notebook.Store, notebook.RepoStore, func(), error) {
	if cfg.DB.DSN == "" {
		return storageMemory.NewNotebookStore(idGen, clock),
			storageMemory.NewRepoStore(idGen, clock),
			func() {}, nil
	}
	pool, err := storagePostgres.NewPool(ctx, storagePostgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := storagePostgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	notebooks, err := storagePostgres.NewNotebookStore(pool, idGen, clock)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	repos, err := storagePostgres.NewRepoStore(pool, idGen)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return notebooks, repos, pool.Close, nil
}

func buildContentSyncOptions(
	ctx context.Context,
	cfg config.Config,
	hasher notebook.Hasher,
	logger *zap.Logger,
) ([]jobs.ContentSyncOption, func(), error) {
	var opts []jobs.ContentSyncOption
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	switch cfg.Archive.Backend {
	case "", "none":
	case "memory":
		opts = append(opts, jobs.WithArchive(archivememory.NewBlobStore(), hasher))
	case "local":
		store, err := archivelocal.New(archivelocal.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			return nil, closeAll, err
		}
		opts = append(opts, jobs.WithArchive(store, hasher))
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("gcs client close failed", zap.Error(err))
			}
		})
		store, err := archivegcs.New(ctx, client, archivegcs.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		opts = append(opts, jobs.WithArchive(store, hasher))
	}

	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		client, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		pub, err := pubsubpublisher.New(client)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("pubsub client close failed", zap.Error(err))
			}
		})
		opts = append(opts, jobs.WithPublisher(pub, cfg.PubSub.TopicName))
	}

	return opts, closeAll, nil
}
