package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ContentItem is an entry from the repository contents API.
type ContentItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"` // file, dir, symlink or submodule
	Size        int64  `json:"size"`
	SHA         string `json:"sha"`
	DownloadURL string `json:"download_url"`
}

// ListContents lists contentPath in repo at ref. A file path yields a
// single item.
func (c *Client) ListContents(ctx context.Context, repo, contentPath, ref string) ([]ContentItem, error) {
	if err := validateRepo(repo); err != nil {
		return nil, err
	}
	u := "/repos/" + repo + "/contents"
	if p := escapePath(contentPath); p != "" {
		u += "/" + p
	}
	var q url.Values
	if ref != "" {
		q = url.Values{"ref": {ref}}
	}
	data, err := c.get(ctx, u, q, nil)
	if err != nil {
		return nil, fmt.Errorf("listing %s in %s: %w", contentPath, repo, err)
	}

	var items []ContentItem
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var item ContentItem
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return nil, fmt.Errorf("decoding contents of %s: %w", contentPath, err)
		}
		return []ContentItem{item}, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding contents of %s: %w", contentPath, err)
	}
	return items, nil
}

// DownloadContents writes contentPath from repo into dest, recursing into
// directories. Paths in dest are relative to contentPath. filter, when
// non-nil, is asked about every file and directory; returning false skips
// it. It returns the number of files written.
func (c *Client) DownloadContents(ctx context.Context, repo, contentPath, dest, ref string, filter func(ContentItem) bool) (int, error) {
	base := strings.Trim(contentPath, "/")
	return c.downloadContents(ctx, repo, base, base, dest, ref, filter)
}

func (c *Client) downloadContents(ctx context.Context, repo, base, dir, dest, ref string, filter func(ContentItem) bool) (int, error) {
	items, err := c.ListContents(ctx, repo, dir, ref)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if filter != nil && !filter(item) {
			continue
		}
		switch item.Type {
		case "dir":
			n, err := c.downloadContents(ctx, repo, base, item.Path, dest, ref, filter)
			written += n
			if err != nil {
				return written, err
			}
		case "file":
			target, err := contentTarget(base, item, dest)
			if err != nil {
				return written, err
			}
			if err := c.downloadFile(ctx, item, target); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}

// contentTarget maps item onto dest. A single file requested directly
// lands in dest under its own name.
func contentTarget(base string, item ContentItem, dest string) (string, error) {
	rel := item.Name
	if base != item.Path {
		r, ok := strings.CutPrefix(item.Path, base+"/")
		if base == "" {
			r, ok = item.Path, true
		}
		if !ok {
			return "", fmt.Errorf("content path %q is outside %q", item.Path, base)
		}
		rel = r
	}
	rel = path.Clean("/" + rel)[1:]
	if rel == "" {
		return "", fmt.Errorf("invalid content path %q", item.Path)
	}
	return filepath.Join(dest, filepath.FromSlash(rel)), nil
}

func (c *Client) downloadFile(ctx context.Context, item ContentItem, target string) error {
	if item.DownloadURL == "" {
		return fmt.Errorf("no download URL for %s", item.Path)
	}
	data, err := c.get(ctx, item.DownloadURL, nil, nil)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", item.Path, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return nil
}
