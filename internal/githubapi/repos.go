package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"github.com/nbsearch/notebook-indexer/internal/notebook"
)

// RepoClient wraps go-github for repository metadata lookups.
type RepoClient struct {
	gh *github.Client
}

// NewRepoClient builds a RepoClient authenticated with the provided token.
// An empty token falls back to unauthenticated requests.
func NewRepoClient(token string) *RepoClient {
	if token == "" {
		return &RepoClient{gh: github.NewClient(nil)}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return &RepoClient{gh: github.NewClient(tc)}
}

// NewRepoClientWithHTTP builds a RepoClient over an explicit HTTP client,
// primarily for tests against httptest servers.
func NewRepoClientWithHTTP(hc *http.Client, baseURL string) (*RepoClient, error) {
	gh, err := github.NewClient(hc).WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("configure github base url: %w", err)
	}
	return &RepoClient{gh: gh}, nil
}

// Metadata fetches the repository and extracts the fields consumed by the
// repo sync job. A 404 maps to notebook.ErrNotFound so callers can cancel
// instead of retrying.
func (c *RepoClient) Metadata(ctx context.Context, owner, name string) (notebook.RepoMetadata, error) {
	repo, resp, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return notebook.RepoMetadata{}, fmt.Errorf("repository %s/%s: %w", owner, name, notebook.ErrNotFound)
		}
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return notebook.RepoMetadata{}, fmt.Errorf("repository %s/%s: %w", owner, name, notebook.ErrNotFound)
		}
		return notebook.RepoMetadata{}, fmt.Errorf("get repository %s/%s: %w", owner, name, err)
	}
	return notebook.RepoMetadata{
		DefaultBranch: repo.GetDefaultBranch(),
	}, nil
}
