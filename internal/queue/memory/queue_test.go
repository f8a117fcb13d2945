package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nbsearch/notebook-indexer/internal/queue"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1, time.Minute)
	defer q.Close()

	item := queue.Item{Kind: queue.KindContentSync, Key: "nb-1"}
	require.NoError(t, q.Enqueue(context.Background(), item))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "nb-1", got.Key)
	require.Equal(t, queue.KindContentSync, got.Kind)
}

func TestQueueDeduplicatesWithinWindow(t *testing.T) {
	t.Parallel()

	q := NewQueue(8, time.Minute)
	defer q.Close()

	item := queue.Item{Kind: queue.KindContentSync, Key: "nb-1"}
	require.NoError(t, q.Enqueue(context.Background(), item))
	require.NoError(t, q.Enqueue(context.Background(), item))
	require.NoError(t, q.Enqueue(context.Background(), item))

	_, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(ctx)
	require.Error(t, err, "duplicate enqueues must be no-ops")
}

func TestQueueDifferentKindsDoNotCollide(t *testing.T) {
	t.Parallel()

	q := NewQueue(8, time.Minute)
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), queue.Item{Kind: queue.KindContentSync, Key: "id-1"}))
	require.NoError(t, q.Enqueue(context.Background(), queue.Item{Kind: queue.KindRepoSync, Key: "id-1"}))

	first, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	second, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.Kind, second.Kind)
}

func TestQueueCompleteReleasesHold(t *testing.T) {
	t.Parallel()

	q := NewQueue(8, time.Hour)
	defer q.Close()

	item := queue.Item{Kind: queue.KindRepoSync, Key: "repo-1"}
	require.NoError(t, q.Enqueue(context.Background(), item))
	_, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	q.Complete(item)
	require.NoError(t, q.Enqueue(context.Background(), item))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "repo-1", got.Key)
}

func TestQueueHoldExpiresAfterWindow(t *testing.T) {
	t.Parallel()

	q := NewQueue(8, 20*time.Millisecond)
	defer q.Close()

	item := queue.Item{Kind: queue.KindContentSync, Key: "nb-2"}
	require.NoError(t, q.Enqueue(context.Background(), item))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), item))

	for i := 0; i < 2; i++ {
		_, err := q.Dequeue(context.Background())
		require.NoError(t, err)
	}
}

func TestQueueEnqueueAfterDeliversLater(t *testing.T) {
	t.Parallel()

	q := NewQueue(8, time.Minute)
	defer q.Close()

	item := queue.Item{Kind: queue.KindContentSync, Key: "nb-3", Attempt: 1}
	require.NoError(t, q.EnqueueAfter(context.Background(), item, 20*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	_, err := q.Dequeue(ctx)
	cancel()
	require.Error(t, err, "item must not be visible before the delay")

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, got.Attempt)
}

func TestQueueCloseUnblocksPendingSends(t *testing.T) {
	t.Parallel()

	q := NewQueue(1, time.Minute)
	require.NoError(t, q.Enqueue(context.Background(), queue.Item{Kind: queue.KindContentSync, Key: "nb-1"}))

	// Blocked on a full channel when Close fires.
	errs := make(chan error, 1)
	go func() {
		errs <- q.Enqueue(context.Background(), queue.Item{Kind: queue.KindContentSync, Key: "nb-2"})
	}()

	// A scheduled retry whose timer fires after Close must not panic either.
	require.NoError(t, q.EnqueueAfter(context.Background(), queue.Item{Kind: queue.KindRepoSync, Key: "repo-1"}, 10*time.Millisecond))

	time.Sleep(5 * time.Millisecond)
	q.Close()

	select {
	case err := <-errs:
		require.EqualError(t, err, "queue closed")
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue was not released by Close")
	}

	time.Sleep(20 * time.Millisecond)
	_, err := q.Dequeue(context.Background())
	require.EqualError(t, err, "queue closed")
}

func TestQueueDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1, time.Minute)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	require.Error(t, err)
}
