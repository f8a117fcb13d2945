// Package search queries the code-search API and normalizes hits into
// notebook candidates.
package search

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nbsearch/notebook-indexer/internal/githubapi"
	"github.com/nbsearch/notebook-indexer/internal/notebook"
)

// DefaultQuery matches Jupyter notebooks with real cell content.
const DefaultQuery = "extension:ipynb nbformat_minor"

// Options controls one paginated search call.
type Options struct {
	Page      int
	PerPage   int
	Ascending bool
	Query     string
	APIKey    string
}

// Outcome carries the normalized candidates plus the raw envelope for
// diagnostics. Skipped counts malformed items dropped during mapping.
type Outcome struct {
	Candidates []notebook.Candidate
	TotalCount int
	Skipped    int
	RequestURL string
	Response   *githubapi.Response
}

// ValidationError reports configuration problems detected before any network
// call is made. Keys are field names, values the failed constraints.
type ValidationError map[string][]string

func (e ValidationError) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e[k], ", ")))
	}
	return "search options invalid: " + strings.Join(parts, "; ")
}

// Client is the slice of githubapi.Client the fetcher needs.
type Client interface {
	SearchCode(ctx context.Context, apiKey string, query url.Values) (*githubapi.Response, error)
}

// Fetcher issues search calls and maps results.
type Fetcher struct {
	client Client
	logger *zap.Logger
}

// NewFetcher constructs a Fetcher.
func NewFetcher(client Client, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, logger: logger}
}

// Search issues one paginated request and normalizes every well-formed item.
// A malformed item is skipped without discarding the rest of the page.
// Persistence is left to the caller.
func (f *Fetcher) Search(ctx context.Context, opts Options) (Outcome, error) {
	if err := validate(opts); err != nil {
		return Outcome{}, err
	}

	resp, err := f.client.SearchCode(ctx, opts.APIKey, buildQuery(opts))
	if err != nil {
		return Outcome{}, fmt.Errorf("search page %d: %w", opts.Page, err)
	}

	outcome := Outcome{
		TotalCount: resp.Search.TotalCount,
		RequestURL: resp.RequestURL,
		Response:   resp,
	}
	for _, item := range resp.Search.Items {
		candidate, ok := mapItem(item)
		if !ok {
			outcome.Skipped++
			f.logger.Warn("skipping malformed search item",
				zap.String("name", item.Name),
				zap.String("html_url", item.HTMLURL),
			)
			continue
		}
		outcome.Candidates = append(outcome.Candidates, candidate)
	}
	return outcome, nil
}

func validate(opts Options) error {
	errs := ValidationError{}
	if opts.APIKey == "" {
		errs["github_api_key"] = append(errs["github_api_key"], "is missing")
	}
	if opts.Page < 1 {
		errs["page"] = append(errs["page"], "must be >= 1")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func buildQuery(opts Options) url.Values {
	q := opts.Query
	if q == "" {
		q = DefaultQuery
	}
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 30
	}
	order := "desc"
	if opts.Ascending {
		order = "asc"
	}

	values := url.Values{}
	values.Set("q", q)
	values.Set("page", strconv.Itoa(opts.Page))
	values.Set("per_page", strconv.Itoa(perPage))
	values.Set("sort", "indexed")
	values.Set("order", order)
	return values
}

// mapItem extracts candidate fields; absence of any nested structure
// marks the item malformed.
func mapItem(item githubapi.SearchItem) (notebook.Candidate, bool) {
	if item.Repository == nil || item.Repository.Owner == nil {
		return notebook.Candidate{}, false
	}
	if item.Repository.Owner.Login == "" || item.Repository.Name == "" || item.Name == "" {
		return notebook.Candidate{}, false
	}
	return notebook.Candidate{
		OwnerLogin:     item.Repository.Owner.Login,
		OwnerAvatarURL: item.Repository.Owner.AvatarURL,
		RepoName:       item.Repository.Name,
		Filename:       filenameFromHTMLURL(item.HTMLURL, item.Name),
		HTMLURL:        item.HTMLURL,
	}, true
}

// filenameFromHTMLURL recovers the repository-relative path from the blob
// URL so notebooks nested in directories keep their full path. Falls back
// to the bare item name.
func filenameFromHTMLURL(htmlURL, name string) string {
	u, err := url.Parse(htmlURL)
	if err != nil {
		return name
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// owner/repo/blob/ref/path...
	if len(parts) >= 5 && parts[2] == "blob" {
		if path, err := url.PathUnescape(strings.Join(parts[4:], "/")); err == nil {
			return path
		}
	}
	return name
}
