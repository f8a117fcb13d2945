// Package memory provides the in-process queue implementation.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nbsearch/notebook-indexer/internal/queue"
)

// Queue is a bounded in-memory queue with a per-(kind, key) dedup window.
// A second enqueue of the same key while a hold is live is a no-op; holds
// cover queued, scheduled, and executing items and are released either by
// Complete or by window expiry.
type Queue struct {
	ch     chan queue.Item
	window time.Duration

	mu     sync.Mutex
	holds  map[string]time.Time
	closed bool
	done   chan struct{}
}

// NewQueue constructs a queue with the provided capacity and dedup window.
func NewQueue(capacity int, window time.Duration) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{
		ch:     make(chan queue.Item, capacity),
		window: window,
		holds:  make(map[string]time.Time),
		done:   make(chan struct{}),
	}
}

// Enqueue pushes an item unless its (kind, key) is already held.
func (q *Queue) Enqueue(ctx context.Context, item queue.Item) error {
	if !q.acquireHold(item, q.window) {
		return nil
	}
	select {
	case <-ctx.Done():
		q.Complete(item)
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		q.Complete(item)
		return errors.New("queue closed")
	case q.ch <- item:
		return nil
	}
}

// EnqueueAfter schedules a retry attempt after the delay. The key's hold is
// extended so a fresh Enqueue cannot race a scheduled retry.
func (q *Queue) EnqueueAfter(_ context.Context, item queue.Item, delay time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("queue closed")
	}
	q.holds[item.DedupKey()] = time.Now().Add(delay + q.window)
	q.mu.Unlock()

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.done:
		case <-timer.C:
			select {
			case q.ch <- item:
			case <-q.done:
			}
		}
	}()
	return nil
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (queue.Item, error) {
	select {
	case <-q.done:
		return queue.Item{}, errors.New("queue closed")
	default:
	}
	select {
	case <-ctx.Done():
		return queue.Item{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return queue.Item{}, errors.New("queue closed")
	case item := <-q.ch:
		return item, nil
	}
}

// Complete releases the dedup hold for a finished item.
func (q *Queue) Complete(item queue.Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.holds, item.DedupKey())
}

// Close shuts the queue down for process exit. The item channel is never
// closed: an Enqueue or retry timer that won its hold before Close may still
// be trying to send, and a send into a closed channel would panic. Shutdown
// is signalled through done only.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.done)
	q.closed = true
}

// acquireHold records a hold for the item unless a live one exists.
func (q *Queue) acquireHold(item queue.Item, window time.Duration) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	now := time.Now()
	if expiry, ok := q.holds[item.DedupKey()]; ok && now.Before(expiry) {
		return false
	}
	q.holds[item.DedupKey()] = now.Add(window)
	return true
}
