package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/majorcontext/hublink/internal/archive"
	"github.com/majorcontext/hublink/internal/ignore"
	"github.com/majorcontext/hublink/internal/log"
)

// Release is the subset of a GitHub release used for downloads.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	ZipballURL  string    `json:"zipball_url"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
}

// FetchReleaseData returns the release tagged tag, or the latest release
// when tag is empty.
func (c *Client) FetchReleaseData(ctx context.Context, repo, tag string) (*Release, error) {
	if err := validateRepo(repo); err != nil {
		return nil, err
	}
	u := "/repos/" + repo + "/releases/latest"
	if tag != "" {
		u = "/repos/" + repo + "/releases/tags/" + url.PathEscape(tag)
	}
	var rel Release
	if _, err := c.get(ctx, u, nil, &rel); err != nil {
		return nil, fmt.Errorf("fetching release for %s: %w", repo, err)
	}
	return &rel, nil
}

// FetchOptions selects what FetchRepoAsZip downloads.
type FetchOptions struct {
	// Ref is a branch, tag or commit. Empty means the default branch.
	Ref string

	// IsRelease downloads a release zipball instead of a ref.
	IsRelease bool

	// Tag picks the release when IsRelease is set. Empty means latest.
	Tag string
}

// FetchRepoAsZip downloads the repository zipball.
func (c *Client) FetchRepoAsZip(ctx context.Context, repo string, opts FetchOptions) ([]byte, error) {
	if err := validateRepo(repo); err != nil {
		return nil, err
	}

	var u string
	if opts.IsRelease {
		rel, err := c.FetchReleaseData(ctx, repo, opts.Tag)
		if err != nil {
			return nil, err
		}
		u = rel.ZipballURL
		log.Debug("downloading release zipball", "repo", repo, "tag", rel.TagName)
	} else {
		u = "/repos/" + repo + "/zipball"
		if opts.Ref != "" {
			u += "/" + url.PathEscape(opts.Ref)
		}
		log.Debug("downloading repository zipball", "repo", repo, "ref", opts.Ref)
	}

	data, err := c.get(ctx, u, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", repo, err)
	}
	return data, nil
}

// CloneOptions configures CloneRepo.
type CloneOptions struct {
	FetchOptions

	// SourceDirs limits the copy to these directories of the repository.
	SourceDirs []string

	// NoRootDir is set when the archive has no top-level directory.
	NoRootDir bool

	// Ignore prunes matching files. Nil uses ignore.Default.
	Ignore *ignore.Rules
}

// CloneRepo downloads repo and extracts it into dest.
func (c *Client) CloneRepo(ctx context.Context, repo, dest string, opts CloneOptions) error {
	data, err := c.FetchRepoAsZip(ctx, repo, opts.FetchOptions)
	if err != nil {
		return err
	}
	rules := opts.Ignore
	if rules == nil {
		rules = ignore.Default()
	}
	name := repo[strings.IndexByte(repo, '/')+1:]
	err = archive.ExtractZip(ctx, data, name, dest, archive.ExtractOptions{
		SourceDirs: opts.SourceDirs,
		NoRootDir:  opts.NoRootDir,
		Ignore:     rules,
	})
	if err != nil {
		return fmt.Errorf("extracting %s: %w", repo, err)
	}
	return nil
}

// FetchRepoFile returns one file from the raw content host. An empty ref
// means HEAD.
func (c *Client) FetchRepoFile(ctx context.Context, repo, path, ref string) ([]byte, error) {
	if err := validateRepo(repo); err != nil {
		return nil, err
	}
	if ref == "" {
		ref = "HEAD"
	}
	u := fmt.Sprintf("%s/%s/%s/%s", c.rawURL, repo, url.PathEscape(ref), escapePath(path))
	data, err := c.get(ctx, u, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching %s from %s: %w", path, repo, err)
	}
	return data, nil
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
