package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/majorcontext/hublink/internal/log"
	"github.com/majorcontext/hublink/internal/ui"
)

// DefaultCallbackPort is the local port the OAuth2 redirect URI points at.
const DefaultCallbackPort = 3000

const callbackTimeout = 5 * time.Minute

// AuthorizeOptions controls the interactive OAuth2 flow.
type AuthorizeOptions struct {
	// Port for the local callback server. 0 picks a free port.
	Port int
	// Open is handed the authorization URL. It defaults to printing the
	// URL for the user to open.
	Open func(url string)
	// Timeout bounds the wait for the callback. Defaults to 5 minutes.
	Timeout time.Duration
}

type callbackResult struct {
	code string
	err  error
}

// callbackServer receives the authorization redirect on
// 127.0.0.1:<port>/oauth-callback.
type callbackServer struct {
	state       string
	redirectURI string
	results     chan callbackResult
	server      *http.Server
}

func startCallbackServer(port int) (*callbackServer, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("starting callback server on port %d: %w", port, err)
	}
	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, fmt.Errorf("unexpected listener address type: %T", listener.Addr())
	}

	cs := &callbackServer{
		state:       uuid.NewString(),
		redirectURI: fmt.Sprintf("http://127.0.0.1:%d/oauth-callback", addr.Port),
		results:     make(chan callbackResult, 1),
	}

	r := chi.NewRouter()
	r.Get("/oauth-callback", cs.handleCallback)
	cs.server = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := cs.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cs.deliver(callbackResult{err: fmt.Errorf("callback server: %w", err)})
		}
	}()
	return cs, nil
}

// deliver records the first result; later callbacks are ignored.
func (cs *callbackServer) deliver(res callbackResult) {
	select {
	case cs.results <- res:
	default:
	}
}

func (cs *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("state") != cs.state {
		cs.deliver(callbackResult{err: errors.New("invalid state parameter in OAuth2 callback")})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}
	if msg := q.Get("error"); msg != "" {
		if desc := q.Get("error_description"); desc != "" {
			msg += ": " + desc
		}
		cs.deliver(callbackResult{err: fmt.Errorf("authorization denied: %s", msg)})
		fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>%s</p><p>You can close this tab.</p></body></html>", html.EscapeString(msg))
		return
	}
	code := q.Get("code")
	if code == "" {
		cs.deliver(callbackResult{err: errors.New("no authorization code in OAuth2 callback")})
		http.Error(w, "No authorization code", http.StatusBadRequest)
		return
	}
	cs.deliver(callbackResult{code: code})
	fmt.Fprint(w, "<html><body><h1>Authorization successful</h1><p>You can close this tab and return to the terminal.</p></body></html>")
}

func (cs *callbackServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = cs.server.Shutdown(ctx)
}

func (cs *callbackServer) wait(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case res := <-cs.results:
		return res.code, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("authorization timed out after %s", timeout)
		}
		return "", ctx.Err()
	}
}

// Authorize runs the authorization-code flow for the account: it starts
// the callback server, hands the authorization URL to opts.Open, waits
// for the redirect and stores the exchanged tokens in the config.
func (o *OAuth2Manager) Authorize(ctx context.Context, opts AuthorizeOptions) error {
	if opts.Open == nil {
		opts.Open = func(u string) {
			ui.Infof("\nOpen this URL in your browser to authorize:\n\n  %s\n", u)
			ui.Info("Waiting for authorization...")
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = callbackTimeout
	}

	cs, err := startCallbackServer(opts.Port)
	if err != nil {
		return err
	}
	defer cs.shutdown()

	conf := o.oauthConfig(cs.redirectURI)
	opts.Open(conf.AuthCodeURL(cs.state))

	code, err := cs.wait(ctx, opts.Timeout)
	if err != nil {
		return err
	}
	log.Debug("received oauth2 authorization code", "account", o.account.AccountID)

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	return o.persist(tok)
}

