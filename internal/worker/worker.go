// Package worker implements the sync job execution loop.
package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/nbsearch/notebook-indexer/internal/metrics"
	"github.com/nbsearch/notebook-indexer/internal/notebook"
	"github.com/nbsearch/notebook-indexer/internal/queue"
)

// Handler executes one job run for a key and reports its outcome.
type Handler func(ctx context.Context, key string) notebook.Outcome

// Worker consumes queue items and executes the registered job handlers,
// applying the retry policy to retryable outcomes. Cancelled outcomes are
// terminal: no retry, no alert.
type Worker struct {
	queue    queue.Queue
	handlers map[queue.Kind]Handler
	retry    *RetryPolicy
	logger   *zap.Logger
}

// New constructs a Worker.
func New(q queue.Queue, handlers map[queue.Kind]Handler, retry *RetryPolicy, logger *zap.Logger) *Worker {
	if retry == nil {
		retry = NewRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    q,
		handlers: handlers,
		retry:    retry,
		logger:   logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("kind", string(item.Kind)),
			zap.String("key", item.Key),
			zap.Int("attempt", item.Attempt),
		)
		w.processItem(ctx, item)
	}
}

func (w *Worker) processItem(ctx context.Context, item queue.Item) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	handler, ok := w.handlers[item.Kind]
	if !ok {
		w.logger.Error("no handler registered for job kind", zap.String("kind", string(item.Kind)))
		metrics.ObserveJob(string(item.Kind), "unhandled")
		w.queue.Complete(item)
		return
	}

	outcome := handler(ctx, item.Key)
	switch {
	case outcome.IsSynced():
		metrics.ObserveJob(string(item.Kind), "synced")
		w.logger.Debug("job synced",
			zap.String("kind", string(item.Kind)),
			zap.String("key", item.Key),
		)
		w.queue.Complete(item)

	case outcome.IsCancelled():
		metrics.ObserveJob(string(item.Kind), "cancelled")
		w.logger.Info("job cancelled",
			zap.String("kind", string(item.Kind)),
			zap.String("key", item.Key),
			zap.String("reason", outcome.Reason()),
		)
		w.queue.Complete(item)

	case outcome.IsRetryable():
		w.handleRetryable(ctx, item, outcome)
	}
}

func (w *Worker) handleRetryable(ctx context.Context, item queue.Item, outcome notebook.Outcome) {
	if !w.retry.ShouldRetry(item.Attempt) {
		metrics.ObserveJob(string(item.Kind), "exhausted")
		w.logger.Error("job retries exhausted",
			zap.String("kind", string(item.Kind)),
			zap.String("key", item.Key),
			zap.Int("attempts", item.Attempt+1),
			zap.Error(outcome.Err()),
		)
		w.queue.Complete(item)
		return
	}

	delay := w.retry.Backoff(item.Attempt)
	next := item
	next.Attempt++
	if err := w.queue.EnqueueAfter(ctx, next, delay); err != nil {
		w.logger.Error("requeue failed",
			zap.String("kind", string(item.Kind)),
			zap.String("key", item.Key),
			zap.Error(err),
		)
		w.queue.Complete(item)
		return
	}
	metrics.ObserveJob(string(item.Kind), "retried")
	w.logger.Warn("job will retry",
		zap.String("kind", string(item.Kind)),
		zap.String("key", item.Key),
		zap.Int("next_attempt", next.Attempt),
		zap.Duration("backoff", delay),
		zap.Error(outcome.Err()),
	)
}
