package notebook

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store persists notebook records with atomic upsert-by-unique-key semantics
// over (owner_login, repo_name, filename).
type Store interface {
	Upsert(ctx context.Context, c Candidate, repoID string) (Notebook, error)
	Load(ctx context.Context, id string) (Notebook, error)
	UpdateContent(ctx context.Context, id string, update ContentUpdate) error
	ListByRepo(ctx context.Context, repoID string) ([]Notebook, error)
	ListUnresolved(ctx context.Context, limit int) ([]Notebook, error)
}

// RepoStore persists repository records keyed by (owner, name).
type RepoStore interface {
	Ensure(ctx context.Context, owner, name string) (Repository, error)
	Load(ctx context.Context, id string) (Repository, error)
	SetDefaultBranch(ctx context.Context, id, branch string) error
}

// RawResponse is the envelope returned by a raw-content fetch.
type RawResponse struct {
	URL        string
	StatusCode int
	Body       []byte
}

// RawFetcher performs a plain GET against a computed raw-content URL.
// Transport failures surface as errors; any HTTP status is a valid response.
type RawFetcher interface {
	Fetch(ctx context.Context, url string) (RawResponse, error)
}

// RepoMetadata is the slice of hosting-API repository data consumed here.
type RepoMetadata struct {
	DefaultBranch string
}

// RepoMetadataClient resolves repository metadata from the hosting API.
// ErrNotFound means the repository no longer exists upstream.
type RepoMetadataClient interface {
	Metadata(ctx context.Context, owner, name string) (RepoMetadata, error)
}

// Publisher pushes sync events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher computes digests for archive paths.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
