// Package github downloads repository archives and files from GitHub for
// project scaffolding.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/majorcontext/hublink/internal/log"
)

// Default endpoints.
const (
	DefaultAPIURL = "https://api.github.com"
	DefaultRawURL = "https://raw.githubusercontent.com"
)

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ErrInvalidRepo is returned for repository names not in owner/name form.
var ErrInvalidRepo = errors.New("repository must be in owner/name form")

// Options configures a Client.
type Options struct {
	Token     string
	UserAgent string
	Timeout   time.Duration

	// APIURL and RawURL override the GitHub hosts. Tests point them at an
	// httptest server.
	APIURL string
	RawURL string
}

// Client talks to the GitHub REST API and raw content host.
type Client struct {
	rc     *resty.Client
	rawURL string
}

// NewClient returns a Client for opts.
func NewClient(opts Options) *Client {
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	rawURL := opts.RawURL
	if rawURL == "" {
		rawURL = DefaultRawURL
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "hublink"
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		SetLogger(log.HTTPLogger{Component: "github"}).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28").
		SetHeader("User-Agent", ua)
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	if opts.Token != "" {
		rc.SetAuthToken(opts.Token)
	}
	return &Client{rc: rc, rawURL: strings.TrimRight(rawURL, "/")}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.rc.Client().CloseIdleConnections()
	return c.rc.Close()
}

// Error is a non-2xx response from GitHub.
type Error struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("GitHub request %s failed: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Hint returns a remediation hint, or "".
func (e *Error) Hint() string {
	switch e.StatusCode {
	case http.StatusNotFound:
		return "Check the repository name and ref. Private repositories need GITHUB_TOKEN set."
	case http.StatusUnauthorized:
		return "GitHub rejected the token. Check GITHUB_TOKEN or GH_TOKEN."
	case http.StatusForbidden, http.StatusTooManyRequests:
		return "GitHub rate limit reached. Set GITHUB_TOKEN to raise the limit."
	}
	return ""
}

func validateRepo(repo string) error {
	if !repoPattern.MatchString(repo) {
		return fmt.Errorf("%w: %q", ErrInvalidRepo, repo)
	}
	for _, part := range strings.Split(repo, "/") {
		if part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidRepo, repo)
		}
	}
	return nil
}

// get issues a GET and returns the body. out, when non-nil, receives the
// decoded JSON body.
func (c *Client) get(ctx context.Context, u string, query url.Values, out any) ([]byte, error) {
	req := c.rc.R().SetContext(ctx)
	for k, vs := range query {
		for _, v := range vs {
			req.SetQueryParam(k, v)
		}
	}
	log.Debug("github request", "url", u)
	resp, err := req.Get(u)
	if err != nil {
		return nil, fmt.Errorf("GitHub request %s: %w", u, err)
	}
	if resp.IsError() {
		e := &Error{URL: u, StatusCode: resp.StatusCode()}
		var body struct {
			Message string `json:"message"`
		}
		if data := resp.Bytes(); len(data) > 0 && json.Unmarshal(data, &body) == nil {
			e.Message = body.Message
		}
		return nil, e
	}
	data := resp.Bytes()
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("decoding GitHub response from %s: %w", u, err)
		}
	}
	return data, nil
}
