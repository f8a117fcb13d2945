package notebook

import (
	"fmt"
	"net/url"
	"strings"
)

const rawHost = "https://raw.githubusercontent.com"

// Urls holds the candidate raw-content URLs for one notebook. Either field
// may be empty when the inputs needed to build it are missing; a transient,
// derived value that is never persisted.
type Urls struct {
	RawDefaultBranchURL string
	RawCommitURL        string
}

// Empty reports whether neither URL could be resolved.
func (u Urls) Empty() bool {
	return u.RawDefaultBranchURL == "" && u.RawCommitURL == ""
}

// ResolveURLs computes the raw-content URLs for a notebook. It is total:
// a missing default branch or an unparseable commit SHA yields an absent
// URL, never an error.
func ResolveURLs(owner, repo, filename string, defaultBranch *string, htmlURL string) Urls {
	var urls Urls
	if owner == "" || repo == "" || filename == "" {
		return urls
	}
	if defaultBranch != nil && *defaultBranch != "" {
		urls.RawDefaultBranchURL = rawURL(owner, repo, *defaultBranch, filename)
	}
	if sha := CommitSHA(htmlURL); sha != "" {
		urls.RawCommitURL = rawURL(owner, repo, sha, filename)
	}
	return urls
}

func rawURL(owner, repo, ref, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s",
		rawHost,
		url.PathEscape(owner),
		url.PathEscape(repo),
		url.PathEscape(ref),
		escapePath(filename),
	)
}

// escapePath escapes each path segment while preserving separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// CommitSHA extracts the commit SHA from a hosting blob URL of the form
// https://github.com/{owner}/{repo}/blob/{sha}/{path}. Returns "" when the
// URL does not carry a hex SHA.
func CommitSHA(htmlURL string) string {
	u, err := url.Parse(htmlURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p != "blob" || i+1 >= len(parts) {
			continue
		}
		if sha := parts[i+1]; isHexSHA(sha) {
			return sha
		}
		return ""
	}
	return ""
}

func isHexSHA(s string) bool {
	if len(s) < 7 || len(s) > 40 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
