package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"resty.dev/v3"

	"github.com/majorcontext/hublink/internal/config"
	"github.com/majorcontext/hublink/internal/log"
)

// NewClient builds a resty client from opts.
func NewClient(opts Options) *resty.Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetLogger(log.HTTPLogger{Component: "transport"}).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	if opts.Timeout > 0 {
		c.SetTimeout(opts.Timeout)
	}
	if len(opts.Headers) > 0 {
		c.SetHeaders(opts.Headers)
	}
	for k, v := range opts.Query {
		c.SetQueryParam(k, v)
	}
	return c
}

// Authorizer attaches credentials for account to req.
type Authorizer interface {
	Authorize(ctx context.Context, account *config.Account, req *resty.Request) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, account *config.Account, req *resty.Request) error

func (f AuthorizerFunc) Authorize(ctx context.Context, account *config.Account, req *resty.Request) error {
	return f(ctx, account, req)
}

// WithAccount scopes req to accountID with the portalId query parameter.
func WithAccount(req *resty.Request, accountID int64) *resty.Request {
	return req.SetQueryParam("portalId", strconv.FormatInt(accountID, 10))
}

// RequestOption customizes a single request.
type RequestOption func(*resty.Request)

// WithQuery sets a query parameter.
func WithQuery(key, value string) RequestOption {
	return func(r *resty.Request) { r.SetQueryParam(key, value) }
}

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *resty.Request) { r.SetHeader(key, value) }
}

// Client sends authorized, account-scoped requests. One resty client is
// kept per account so each uses its own origin and timeout.
type Client struct {
	cfg  *config.CLIConfiguration
	auth Authorizer

	// BaseURL, when set, replaces the per-account origin. Tests point it
	// at an httptest server.
	BaseURL string

	mu      sync.Mutex
	clients map[int64]*resty.Client
}

// New returns a Client resolving accounts from cfg and credentials from auth.
func New(cfg *config.CLIConfiguration, auth Authorizer) *Client {
	return &Client{cfg: cfg, auth: auth, clients: map[int64]*resty.Client{}}
}

// Config returns the account configuration the client resolves against.
func (c *Client) Config() *config.CLIConfiguration { return c.cfg }

func (c *Client) restyFor(accountID int64) (*resty.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rc, ok := c.clients[accountID]; ok {
		return rc, nil
	}
	opts, err := BuildOptions(c.cfg, accountID)
	if err != nil {
		return nil, err
	}
	if c.BaseURL != "" {
		opts.BaseURL = c.BaseURL
	}
	rc := NewClient(opts)
	c.clients[accountID] = rc
	return rc, nil
}

// Close releases the underlying HTTP clients.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, rc := range c.clients {
		rc.Client().CloseIdleConnections()
		rc.Close()
		delete(c.clients, id)
	}
	return nil
}

// Request prepares an authorized request for accountID. Callers that need
// more control than Do offers (streaming, custom decoding) start here.
func (c *Client) Request(ctx context.Context, accountID int64) (*resty.Request, error) {
	account, err := c.cfg.AccountByID(accountID)
	if err != nil {
		return nil, err
	}
	rc, err := c.restyFor(accountID)
	if err != nil {
		return nil, err
	}
	req := WithAccount(rc.R().SetContext(ctx), accountID)
	if c.auth != nil {
		if err := c.auth.Authorize(ctx, account, req); err != nil {
			return nil, fmt.Errorf("authorizing account %s: %w", account.DisplayName(), err)
		}
	}
	return req, nil
}

// Do sends method to path for accountID. body, when non-nil, is sent as
// JSON; a 2xx response body is decoded into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method string, accountID int64, path string, body, out any, opts ...RequestOption) error {
	req, err := c.Request(ctx, accountID)
	if err != nil {
		return err
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	for _, opt := range opts {
		opt(req)
	}

	path = strings.TrimLeft(path, "/")
	log.Debug("api request", "method", method, "path", path, "account", accountID)
	resp, err := req.Execute(method, "/"+path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return decodeResponse(method, path, resp, out)
}

// Get is Do with GET.
func (c *Client) Get(ctx context.Context, accountID int64, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, accountID, path, nil, out, opts...)
}

// Post is Do with POST.
func (c *Client) Post(ctx context.Context, accountID int64, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, accountID, path, body, out, opts...)
}

// Put is Do with PUT.
func (c *Client) Put(ctx context.Context, accountID int64, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, accountID, path, body, out, opts...)
}

// Patch is Do with PATCH.
func (c *Client) Patch(ctx context.Context, accountID int64, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, accountID, path, body, out, opts...)
}

// Delete is Do with DELETE.
func (c *Client) Delete(ctx context.Context, accountID int64, path string, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, accountID, path, nil, nil, opts...)
}

// Download streams the response for path into dest, creating parent
// directories as needed. The file is only put in place on success.
func (c *Client) Download(ctx context.Context, accountID int64, path, dest string, opts ...RequestOption) error {
	req, err := c.Request(ctx, accountID)
	if err != nil {
		return err
	}
	req.SetHeader("Accept", "application/octet-stream").SetDoNotParseResponse(true)
	for _, opt := range opts {
		opt(req)
	}

	path = strings.TrimLeft(path, "/")
	resp, err := req.Get("/" + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return newAPIError(http.MethodGet, path, resp.StatusCode(), data)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("creating download file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("downloading %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("downloading %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("moving download into place: %w", err)
	}
	return nil
}
