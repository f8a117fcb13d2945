// Package queue defines the job queue consumed by the sync worker runtime.
package queue

import (
	"context"
	"time"
)

// Kind identifies the job type carried by an item.
type Kind string

// Job kinds executed by the worker runtime.
const (
	KindContentSync Kind = "content_sync"
	KindRepoSync    Kind = "repo_sync"
)

// Item is one unit of work: a kind plus a key argument (notebook id or
// repository id). Only one item per (kind, key) may be queued, scheduled,
// or executing inside the dedup window.
type Item struct {
	Kind       Kind
	Key        string
	Attempt    int
	EnqueuedAt time.Time
}

// DedupKey is the uniqueness scope for the dedup window.
func (i Item) DedupKey() string {
	return string(i.Kind) + ":" + i.Key
}

// Enqueuer is the narrow interface handed to jobs and the ingest service.
type Enqueuer interface {
	Enqueue(ctx context.Context, item Item) error
}

// Queue provides enqueue/dequeue semantics with per-key deduplication.
// Enqueue of a duplicate (kind, key) inside the window is a silent no-op.
// EnqueueAfter schedules a retry attempt and keeps the key's hold alive.
// Complete releases the key once a run ends.
type Queue interface {
	Enqueuer
	EnqueueAfter(ctx context.Context, item Item, delay time.Duration) error
	Dequeue(ctx context.Context) (Item, error)
	Complete(item Item)
}
